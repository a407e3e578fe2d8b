package crop

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"cropcore/internal/kernel"
	"cropcore/internal/params"
	"cropcore/pkg/sim"
)

// Stage is the phenological state machine of the crop.
type Stage string

const (
	StageEmerging     Stage = "emerging"
	StageVegetative   Stage = "vegetative"
	StageReproductive Stage = "reproductive"
	StageMature       Stage = "mature"
)

// Phenology tracks crop development stage (DVS) through thermal time, with an
// optional day-length reduction. It publishes DVS, fires the emergence signal
// when the crop breaks ground and requests the crop finish on maturity when
// the campaign ends on maturity.
type Phenology struct {
	vars *access
	bus  *kernel.Bus
	log  zerolog.Logger

	// parameters
	tsumem  float64 // temperature sum sowing to emergence
	tbasem  float64 // base temperature for emergence
	teffmx  float64 // maximum effective temperature for emergence
	tsum1   float64 // temperature sum emergence to anthesis
	tsum2   float64 // temperature sum anthesis to maturity
	idsl    float64 // >= 1 enables day-length response
	dlo     float64 // optimum day length
	dlc     float64 // critical day length
	dvsi    float64 // initial development stage
	dvsend  float64 // development stage at maturity
	dtsmtb  *sim.Curve
	endType string

	// state
	stage      Stage
	dvs        float64
	tsum       float64
	tsume      float64
	daySowing  *time.Time
	dayEmerged *time.Time
	dayAnth    *time.Time
	dayMature  *time.Time

	// rates
	dtsume float64
	dtsum  float64
	dvr    float64
}

// NewPhenology constructs the phenology component and publishes its initial
// state. With crop start type "emergence" the crop starts in the vegetative
// stage and the emergence signal fires immediately.
func NewPhenology(x *kernel.Exchange, bus *kernel.Bus, p *params.Provider, agro params.Agromanagement, log zerolog.Logger) (*Phenology, error) {
	f := params.NewFetcher(p)
	ph := &Phenology{
		vars:    newAccess(x, "phenology"),
		bus:     bus,
		log:     log,
		tsumem:  f.Float("TSUMEM"),
		tbasem:  f.Float("TBASEM"),
		teffmx:  f.Float("TEFFMX"),
		tsum1:   f.Float("TSUM1"),
		tsum2:   f.Float("TSUM2"),
		idsl:    f.Float("IDSL"),
		dlo:     f.Float("DLO"),
		dlc:     f.Float("DLC"),
		dvsi:    f.Float("DVSI"),
		dvsend:  f.Float("DVSEND"),
		dtsmtb:  f.Curve("DTSMTB"),
		endType: agro.CropEndType,
	}
	if err := f.Err(); err != nil {
		return nil, fmt.Errorf("phenology: %w", err)
	}

	day := agro.CampaignStart
	switch agro.CropStartType {
	case "emergence":
		ph.stage = StageVegetative
		ph.dvs = ph.dvsi
		ph.dayEmerged = &day
		bus.Publish(sim.SignalCropEmerged, sim.CropEmerged{Day: day})
	case "sowing":
		ph.stage = StageEmerging
		ph.dvs = -0.1
		ph.daySowing = &day
	default:
		return nil, fmt.Errorf("phenology: unknown crop start type %q", agro.CropStartType)
	}

	ph.vars.register("DVS", kernel.KindState, true)
	ph.vars.register("DTSUM", kernel.KindRate, false)
	ph.vars.register("DTSUME", kernel.KindRate, false)
	ph.vars.register("DVR", kernel.KindRate, false)
	ph.vars.write("DVS", ph.dvs)
	if err := ph.vars.take(); err != nil {
		return nil, fmt.Errorf("phenology: %w", err)
	}
	return ph, nil
}

func (ph *Phenology) Name() string { return "phenology" }

// Stage returns the current phenological stage.
func (ph *Phenology) Stage() Stage { return ph.stage }

// DVS returns the current development stage value.
func (ph *Phenology) DVS() float64 { return ph.dvs }

func (ph *Phenology) CalcRates(day time.Time, drv *sim.Drivers) error {
	dvred := 1.0
	if ph.idsl >= 1 {
		dayl := drv.DayLength()
		dvred = sim.Limit(0, 1, (dayl-ph.dlc)/(ph.dlo-ph.dlc))
	}

	switch ph.stage {
	case StageEmerging:
		ph.dtsume = sim.Limit(0, ph.teffmx-ph.tbasem, drv.Temp-ph.tbasem)
		ph.dtsum = 0
		ph.dvr = 0.1 * ph.dtsume / ph.tsumem
	case StageVegetative:
		ph.dtsume = 0
		ph.dtsum = ph.dtsmtb.At(drv.Temp) * dvred
		ph.dvr = ph.dtsum / ph.tsum1
	case StageReproductive:
		ph.dtsume = 0
		ph.dtsum = ph.dtsmtb.At(drv.Temp)
		ph.dvr = ph.dtsum / ph.tsum2
	case StageMature:
		ph.dtsume = 0
		ph.dtsum = 0
		ph.dvr = 0
	default:
		return fmt.Errorf("phenology: unrecognized stage %q", ph.stage)
	}

	ph.vars.write("DTSUME", ph.dtsume)
	ph.vars.write("DTSUM", ph.dtsum)
	ph.vars.write("DVR", ph.dvr)
	return ph.vars.take()
}

func (ph *Phenology) Integrate(day time.Time, delt float64) error {
	ph.tsume += ph.dtsume * delt
	ph.tsum += ph.dtsum * delt
	ph.dvs += ph.dvr * delt

	switch ph.stage {
	case StageEmerging:
		if ph.dvs >= 0 {
			ph.nextStage(day)
			ph.dvs = 0
		}
	case StageVegetative:
		if ph.dvs >= 1 {
			ph.nextStage(day)
			ph.dvs = 1
		}
	case StageReproductive:
		if ph.dvs >= ph.dvsend {
			ph.nextStage(day)
			ph.dvs = ph.dvsend
		}
	case StageMature:
	default:
		return fmt.Errorf("phenology: unrecognized stage %q", ph.stage)
	}

	ph.vars.write("DVS", ph.dvs)
	return ph.vars.take()
}

func (ph *Phenology) nextStage(day time.Time) {
	from := ph.stage
	switch ph.stage {
	case StageEmerging:
		ph.stage = StageVegetative
		d := day
		ph.dayEmerged = &d
		ph.bus.Publish(sim.SignalCropEmerged, sim.CropEmerged{Day: day})
	case StageVegetative:
		ph.stage = StageReproductive
		d := day
		ph.dayAnth = &d
	case StageReproductive:
		ph.stage = StageMature
		d := day
		ph.dayMature = &d
		if ph.endType == "maturity" || ph.endType == "earliest" {
			ph.bus.Publish(sim.SignalCropFinish, sim.CropFinish{
				Day:    day,
				Reason: sim.FinishMaturity,
				Delete: true,
			})
		}
	}
	ph.log.Info().Str("from", string(from)).Str("to", string(ph.stage)).Time("day", day).Msg("phenological stage changed")
}

func (ph *Phenology) Touch(day time.Time) error {
	ph.vars.write("DVS", ph.dvs)
	return ph.vars.take()
}

func (ph *Phenology) Finalize(day time.Time) error { return nil }
