package crop

import (
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"

	"cropcore/internal/kernel"
	"cropcore/internal/params"
	"cropcore/pkg/sim"
)

// Cumulative kill beyond which the crop is considered dead and the finish
// signal fires.
const lethalKillFraction = 0.95

// crownTemperature estimates the minimum and mean temperature at the crown
// (2 cm below the surface) from the air temperature and the snow depth. Snow
// buffers the crown against low air temperatures; depth is capped at 15 cm.
func crownTemperature(drv *sim.Drivers, a, b float64) (tmin, temp float64) {
	if drv.TMin >= 0 {
		return drv.TMin, drv.Temp
	}
	rsd := sim.Limit(0, 15, drv.SnowDepth) / 15.0
	f := a + b*(1-rsd)*(1-rsd)
	tminCrown := drv.TMin * f
	tmaxCrown := drv.TMax * f
	return tminCrown, (tminCrown + tmaxCrown) / 2
}

// FrostKill models winter frost tolerance with an LT50 hardening state: cold
// but non-freezing crown temperatures lower LT50 (hardening), warm spells,
// respiration under snow and severe cold stress raise it back (dehardening).
// The daily kill fraction follows a logistic of the minimum crown temperature
// against LT50 and is published for the leaf death demand. When the
// cumulative kill becomes lethal the crop finish is requested.
type FrostKill struct {
	vars *access
	bus  *kernel.Bus
	log  zerolog.Logger

	crownA  float64 // crown temperature coefficient A
	crownB  float64 // crown temperature coefficient B
	lt50c   float64 // lowest attainable LT50 for the variety
	coefH   float64 // hardening coefficient
	coefD   float64 // dehardening coefficient
	coefS   float64 // low-temperature stress coefficient
	coefR   float64 // respiration stress coefficient
	sdBase  float64 // snow depth below which respiration stress is zero
	sdMax   float64 // snow depth above which respiration stress saturates
	killCf  float64 // steepness of the kill logistic
	dvsVern float64 // development stage at which the crop counts as vernalised

	lt50i     float64
	lt50t     float64
	remaining float64 // fraction of the crop still alive
	frostDays int
	finished  bool

	rh      float64
	rdhTemp float64
	rdhResp float64
	rdhTstr float64
	kill    float64
}

// NewFrostKill constructs the component.
func NewFrostKill(x *kernel.Exchange, bus *kernel.Bus, p *params.Provider, log zerolog.Logger) (*FrostKill, error) {
	f := params.NewFetcher(p)
	fk := &FrostKill{
		vars:    newAccess(x, "frost kill"),
		bus:     bus,
		log:     log,
		crownA:  f.Float("CROWNTMPA"),
		crownB:  f.Float("CROWNTMPB"),
		lt50c:   f.Float("LT50C"),
		coefH:   f.Float("FROSTOL_H"),
		coefD:   f.Float("FROSTOL_D"),
		coefS:   f.Float("FROSTOL_S"),
		coefR:   f.Float("FROSTOL_R"),
		sdBase:  f.Float("FROSTOL_SDBASE"),
		sdMax:   f.Float("FROSTOL_SDMAX"),
		killCf:  f.Float("FROSTOL_KILLCF"),
		dvsVern: f.Float("FROSTOL_DVSVERN"),
	}
	if err := f.Err(); err != nil {
		return nil, fmt.Errorf("frost kill: %w", err)
	}
	if fk.sdMax <= fk.sdBase {
		return nil, fmt.Errorf("frost kill: FROSTOL_SDMAX %g must exceed FROSTOL_SDBASE %g", fk.sdMax, fk.sdBase)
	}

	fk.lt50i = -0.6 + 0.142*fk.lt50c
	fk.lt50t = fk.lt50i
	fk.remaining = 1.0

	fk.vars.register("RF_FROST", kernel.KindRate, true)
	if err := fk.vars.take(); err != nil {
		return nil, fmt.Errorf("frost kill: %w", err)
	}
	return fk, nil
}

func (fk *FrostKill) Name() string { return "frost kill" }

// LT50 returns the current hardening state.
func (fk *FrostKill) LT50() float64 { return fk.lt50t }

// FrostDays returns the cumulative number of days with frost damage.
func (fk *FrostKill) FrostDays() int { return fk.frostDays }

func (fk *FrostKill) CalcRates(day time.Time, drv *sim.Drivers) error {
	dvs := fk.vars.read("DVS")
	if err := fk.vars.take(); err != nil {
		return err
	}
	vernalized := dvs >= fk.dvsVern

	tminCrown, tempCrown := crownTemperature(drv, fk.crownA, fk.crownB)

	// hardening, only before vernalisation and at crown temperatures below 10
	fk.rh = 0
	if !vernalized && tempCrown < 10 {
		xtc := sim.Limit(0, 10, tempCrown)
		fk.rh = fk.coefH * (10 - xtc) * (fk.lt50t - fk.lt50c)
	}

	// temperature-driven dehardening
	tcCrit := 10.0
	if vernalized {
		tcCrit = -4.0
	}
	fk.rdhTemp = 0
	if tempCrown > tcCrit {
		d := tempCrown + 4
		fk.rdhTemp = fk.coefD * (fk.lt50i - fk.lt50t) * d * d * d
	}

	// respiration stress under snow cover
	xtc := math.Max(tempCrown, -2.5)
	resp := (math.Exp(0.84+0.051*xtc) - 2.0) / 1.85
	fsnow := sim.Limit(0, 1, (drv.SnowDepth-fk.sdBase)/(fk.sdMax-fk.sdBase))
	fk.rdhResp = fk.coefR * resp * fsnow

	// stress from temperatures near LT50
	dt := fk.lt50t - tempCrown
	fk.rdhTstr = dt / math.Exp(-fk.coefS*dt-3.74)

	// kill fraction from the minimum crown temperature, clipped at the tails
	// of the logistic
	fk.kill = 0
	if tminCrown < 0 {
		kf := 1 / (1 + math.Exp((tminCrown-fk.lt50t)/fk.killCf))
		switch {
		case kf < 0.05:
			kf = 0
		case kf > 0.95:
			kf = 1
		}
		fk.kill = kf
	}

	fk.vars.write("RF_FROST", fk.kill)
	return fk.vars.take()
}

func (fk *FrostKill) Integrate(day time.Time, delt float64) error {
	lt50 := fk.lt50t + (fk.rdhTemp+fk.rdhResp+fk.rdhTstr-fk.rh)*delt
	fk.lt50t = sim.Limit(fk.lt50c, fk.lt50i, lt50)

	if fk.kill > 0 {
		fk.frostDays++
	}
	fk.remaining *= 1 - fk.kill

	if !fk.finished && 1-fk.remaining >= lethalKillFraction {
		fk.finished = true
		fk.log.Warn().Float64("killed", 1-fk.remaining).Time("day", day).Msg("lethal cumulative frost kill")
		fk.bus.Publish(sim.SignalCropFinish, sim.CropFinish{
			Day:    day,
			Reason: sim.FinishFrostKill,
			Delete: true,
		})
	}
	return nil
}

func (fk *FrostKill) Touch(day time.Time) error    { return nil }
func (fk *FrostKill) Finalize(day time.Time) error { return nil }

// KilledFraction returns the cumulative fraction of the crop killed by frost.
func (fk *FrostKill) KilledFraction() float64 { return 1 - fk.remaining }
