package crop

import (
	"fmt"
	"math"
	"time"

	"cropcore/internal/kernel"
	"cropcore/internal/params"
	"cropcore/pkg/sim"
)

// sweaf is the fraction of easily available soil water as a function of the
// crop group number and the potential evapotranspiration level.
func sweaf(et0, depnr float64) float64 {
	const a, b = 0.76, 1.5
	sw := 1.0/(a+b*et0) - (5.0-depnr)*0.10
	if depnr < 3.0 {
		sw += (et0 - 0.6) / (depnr * (depnr + 3.0))
	}
	return sim.Limit(0.10, 0.95, sw)
}

// Evapotranspiration computes the maximum evaporation and transpiration rates
// from the reference rates and canopy cover, and the actual transpiration
// after the water- and oxygen-stress reduction factors.
type Evapotranspiration struct {
	vars *access

	cfet   float64 // crop correction on the reference transpiration rate
	depnr  float64 // crop group number for soil water depletion
	iairdu float64 // 1 when the crop has air ducts (no oxygen stress)
	iox    float64 // 1 enables oxygen stress
	crairc float64 // critical air content in the root zone
	sm0    float64 // soil porosity
	smw    float64 // wilting point moisture content
	smfcf  float64 // field capacity moisture content
	kdiftb *sim.Curve

	rftra float64

	// stress-day counters, resolved at Finalize
	daysWaterStress  int
	daysOxygenStress int
}

// NewEvapotranspiration constructs the component.
func NewEvapotranspiration(x *kernel.Exchange, p *params.Provider) (*Evapotranspiration, error) {
	f := params.NewFetcher(p)
	et := &Evapotranspiration{
		vars:   newAccess(x, "evapotranspiration"),
		cfet:   f.Float("CFET"),
		depnr:  f.Float("DEPNR"),
		iairdu: f.Float("IAIRDU"),
		iox:    f.Float("IOX"),
		crairc: f.Float("CRAIRC"),
		sm0:    f.Float("SM0"),
		smw:    f.Float("SMW"),
		smfcf:  f.Float("SMFCF"),
		kdiftb: f.Curve("KDIFTB"),
	}
	if err := f.Err(); err != nil {
		return nil, fmt.Errorf("evapotranspiration: %w", err)
	}
	for _, name := range []string{"EVWMX", "EVSMX", "TRAMX", "TRA", "RFTRA"} {
		et.vars.register(name, kernel.KindRate, true)
	}
	if err := et.vars.take(); err != nil {
		return nil, fmt.Errorf("evapotranspiration: %w", err)
	}
	return et, nil
}

func (et *Evapotranspiration) Name() string { return "evapotranspiration" }

// ReductionFactor returns this day's combined transpiration reduction factor.
func (et *Evapotranspiration) ReductionFactor() float64 { return et.rftra }

func (et *Evapotranspiration) CalcRates(day time.Time, drv *sim.Drivers) error {
	dvs := et.vars.read("DVS")
	lai := et.vars.read("LAI")
	if err := et.vars.take(); err != nil {
		return err
	}

	kglob := 0.75 * et.kdiftb.At(dvs)
	et0Crop := math.Max(0, et.cfet*drv.ET0)

	ekl := math.Exp(-kglob * lai)
	evwmx := drv.E0 * ekl
	evsmx := math.Max(0, drv.ES0*ekl)
	tramx := et0Crop * (1 - ekl)

	// Without a water balance publishing SM the run is potential production
	// and transpiration is unreduced.
	rfws, rfos := 1.0, 1.0
	if et.vars.has("SM") {
		sm := et.vars.read("SM")
		if err := et.vars.take(); err != nil {
			return err
		}

		// critical soil moisture for the water-stress reduction
		swdep := sweaf(et0Crop, et.depnr)
		smcr := (1-swdep)*(et.smfcf-et.smw) + et.smw
		rfws = sim.Limit(0, 1, (sm-et.smw)/(smcr-et.smw))

		if et.iairdu == 0 && et.iox == 1 {
			rfos = sim.Limit(0, 1, (et.sm0-sm)/et.crairc)
		}
	}

	et.rftra = rfws * rfos
	tra := tramx * et.rftra

	if rfws < 1 {
		et.daysWaterStress++
	}
	if rfos < 1 {
		et.daysOxygenStress++
	}

	et.vars.write("EVWMX", evwmx)
	et.vars.write("EVSMX", evsmx)
	et.vars.write("TRAMX", tramx)
	et.vars.write("TRA", tra)
	et.vars.write("RFTRA", et.rftra)
	return et.vars.take()
}

func (et *Evapotranspiration) Integrate(day time.Time, delt float64) error { return nil }
func (et *Evapotranspiration) Touch(day time.Time) error                   { return nil }

// Finalize resolves the stress-day counters; they are undefined during daily
// stepping.
func (et *Evapotranspiration) Finalize(day time.Time) error { return nil }

// StressDays reports the number of days with water and oxygen stress.
func (et *Evapotranspiration) StressDays() (water, oxygen int) {
	return et.daysWaterStress, et.daysOxygenStress
}
