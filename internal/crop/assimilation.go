package crop

import (
	"fmt"
	"math"
	"time"

	"cropcore/internal/kernel"
	"cropcore/internal/params"
	"cropcore/pkg/sim"
)

// Assimilation computes potential daily gross CO2 assimilation from incoming
// radiation and canopy light interception, with a big-leaf light response
// saturating at the DVS- and temperature-dependent maximum rate.
type Assimilation struct {
	vars *access

	amaxtb *sim.Curve // maximum leaf assimilation rate vs DVS, kg ha-1 hr-1
	tmpftb *sim.Curve // reduction factor vs daytime temperature
	kdiftb *sim.Curve // extinction coefficient for diffuse light vs DVS
	eff    float64    // initial light-use efficiency

	pgass float64
}

// NewAssimilation constructs the component.
func NewAssimilation(x *kernel.Exchange, p *params.Provider) (*Assimilation, error) {
	f := params.NewFetcher(p)
	as := &Assimilation{
		vars:   newAccess(x, "assimilation"),
		amaxtb: f.Curve("AMAXTB"),
		tmpftb: f.Curve("TMPFTB"),
		kdiftb: f.Curve("KDIFTB"),
		eff:    f.Float("EFF"),
	}
	if err := f.Err(); err != nil {
		return nil, fmt.Errorf("assimilation: %w", err)
	}
	as.vars.register("PGASS", kernel.KindRate, true)
	if err := as.vars.take(); err != nil {
		return nil, fmt.Errorf("assimilation: %w", err)
	}
	return as, nil
}

func (as *Assimilation) Name() string { return "assimilation" }

// Potential returns this day's potential gross assimilation in kg CH2O ha-1 d-1.
func (as *Assimilation) Potential() float64 { return as.pgass }

func (as *Assimilation) CalcRates(day time.Time, drv *sim.Drivers) error {
	dvs := as.vars.read("DVS")
	lai := as.vars.read("LAI")
	if err := as.vars.take(); err != nil {
		return err
	}

	amax := as.amaxtb.At(dvs) * as.tmpftb.At(drv.Temp)
	kdif := as.kdiftb.At(dvs)
	dayl := drv.DayLength()

	// Photosynthetically active radiation absorbed by the canopy, J m-2 d-1.
	parAbs := 0.5 * drv.Rad * (1 - math.Exp(-kdif*lai))

	as.pgass = 0
	if amax > 0 && lai > 0 && dayl > 0 {
		// Saturating response of the daily canopy rate to absorbed PAR.
		hourly := amax * lai * (1 - math.Exp(-as.eff*parAbs/(amax*lai*dayl)))
		as.pgass = hourly * dayl
	}

	as.vars.write("PGASS", as.pgass)
	return as.vars.take()
}

func (as *Assimilation) Integrate(day time.Time, delt float64) error { return nil }
func (as *Assimilation) Touch(day time.Time) error                   { return nil }
func (as *Assimilation) Finalize(day time.Time) error                { return nil }
