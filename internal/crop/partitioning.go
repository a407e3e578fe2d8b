package crop

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"cropcore/internal/kernel"
	"cropcore/internal/params"
	"cropcore/pkg/sim"
)

// Factors bundles the biomass partitioning fractions for one day.
type Factors struct {
	FR float64 // roots, fraction of total dry matter
	FL float64 // leaves, fraction of above-ground dry matter
	FS float64 // stems
	FO float64 // storage organs
}

// Partitioning derives the partitioning fractions from fixed DVS-keyed
// response curves. The fractions are a derived state: they change at
// integration time, when DVS moves. The closure checksum
// FR+(FL+FS+FO)(1-FR)-1 is checked at warn severity because response-curve
// interpolation legitimately produces small deviations.
type Partitioning struct {
	vars *access
	log  zerolog.Logger

	frtb, fltb, fstb, fotb *sim.Curve
	check                  kernel.Balance

	factors Factors
}

// NewPartitioning constructs the component and publishes the fractions for
// the initial DVS.
func NewPartitioning(x *kernel.Exchange, p *params.Provider, dvs float64, log zerolog.Logger) (*Partitioning, error) {
	f := params.NewFetcher(p)
	pt := &Partitioning{
		vars: newAccess(x, "partitioning"),
		log:  log,
		frtb: f.Curve("FRTB"),
		fltb: f.Curve("FLTB"),
		fstb: f.Curve("FSTB"),
		fotb: f.Curve("FOTB"),
		check: kernel.Balance{
			Name:      "partitioning closure",
			Tolerance: 1e-4,
			Severity:  sim.SeverityWarn,
		},
	}
	if err := f.Err(); err != nil {
		return nil, fmt.Errorf("partitioning: %w", err)
	}

	for _, name := range []string{"FR", "FL", "FS", "FO"} {
		pt.vars.register(name, kernel.KindState, true)
	}
	pt.factors = pt.at(dvs)
	pt.publish()
	if err := pt.vars.take(); err != nil {
		return nil, fmt.Errorf("partitioning: %w", err)
	}
	pt.warnOnViolation(time.Time{})
	return pt, nil
}

func (pt *Partitioning) Name() string { return "partitioning" }

// Factors returns the fractions for the current day.
func (pt *Partitioning) Factors() Factors { return pt.factors }

func (pt *Partitioning) at(dvs float64) Factors {
	return Factors{
		FR: pt.frtb.At(dvs),
		FL: pt.fltb.At(dvs),
		FS: pt.fstb.At(dvs),
		FO: pt.fotb.At(dvs),
	}
}

func (pt *Partitioning) publish() {
	pt.vars.write("FR", pt.factors.FR)
	pt.vars.write("FL", pt.factors.FL)
	pt.vars.write("FS", pt.factors.FS)
	pt.vars.write("FO", pt.factors.FO)
}

func (pt *Partitioning) warnOnViolation(day time.Time) {
	f := pt.factors
	closure := f.FR + (f.FL+f.FS+f.FO)*(1-f.FR)
	res := pt.check.Check(day, closure, nil, []float64{1}, nil)
	for _, v := range res.Violations {
		pt.log.Warn().Str("violation", v.String()).Msg("partitioning fractions do not close")
	}
}

// CalcRates is a no-op: partitioning has no rates of its own, the fractions
// are re-derived from DVS during integration.
func (pt *Partitioning) CalcRates(day time.Time, drv *sim.Drivers) error { return nil }

func (pt *Partitioning) Integrate(day time.Time, delt float64) error {
	dvs := pt.vars.read("DVS")
	pt.factors = pt.at(dvs)
	pt.publish()
	if err := pt.vars.take(); err != nil {
		return err
	}
	pt.warnOnViolation(day)
	return nil
}

func (pt *Partitioning) Touch(day time.Time) error {
	pt.publish()
	return pt.vars.take()
}

func (pt *Partitioning) Finalize(day time.Time) error { return nil }
