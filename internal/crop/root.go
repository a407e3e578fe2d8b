package crop

import (
	"fmt"
	"math"
	"time"

	"cropcore/internal/kernel"
	"cropcore/internal/params"
	"cropcore/pkg/sim"
)

// RootDynamics tracks living and dead root biomass and the rooting depth,
// which deepens at a fixed daily rate while assimilates keep flowing to the
// roots and stops at the crop- or soil-imposed maximum.
type RootDynamics struct {
	vars *access

	rdi    float64 // initial rooting depth, cm
	rri    float64 // daily rooting depth increase, cm
	rdmcr  float64 // crop-imposed maximum rooting depth
	rdmsol float64 // soil-imposed maximum rooting depth
	tdwi   float64 // initial total crop dry weight
	rdrrtb *sim.Curve

	rdm  float64
	rd   float64
	wrt  float64
	dwrt float64

	grrt float64
	drrt float64
	rr   float64
}

// NewRootDynamics constructs the component. Partitioning must already have
// published FR.
func NewRootDynamics(x *kernel.Exchange, p *params.Provider) (*RootDynamics, error) {
	f := params.NewFetcher(p)
	ro := &RootDynamics{
		vars:   newAccess(x, "root dynamics"),
		rdi:    f.Float("RDI"),
		rri:    f.Float("RRI"),
		rdmcr:  f.Float("RDMCR"),
		rdmsol: f.Float("RDMSOL"),
		tdwi:   f.Float("TDWI"),
		rdrrtb: f.Curve("RDRRTB"),
	}
	if err := f.Err(); err != nil {
		return nil, fmt.Errorf("root dynamics: %w", err)
	}

	fr := ro.vars.read("FR")
	if err := ro.vars.take(); err != nil {
		return nil, fmt.Errorf("root dynamics: %w", err)
	}

	ro.rdm = math.Max(ro.rdi, math.Min(ro.rdmcr, ro.rdmsol))
	ro.rd = ro.rdi
	ro.wrt = ro.tdwi * fr

	ro.vars.register("WRT", kernel.KindState, true)
	ro.vars.register("TWRT", kernel.KindState, true)
	ro.vars.register("RD", kernel.KindState, true)
	ro.vars.register("DRRT", kernel.KindRate, true)
	ro.publishState()
	if err := ro.vars.take(); err != nil {
		return nil, fmt.Errorf("root dynamics: %w", err)
	}
	return ro, nil
}

func (ro *RootDynamics) Name() string { return "root dynamics" }

func (ro *RootDynamics) publishState() {
	ro.vars.write("WRT", ro.wrt)
	ro.vars.write("TWRT", ro.wrt+ro.dwrt)
	ro.vars.write("RD", ro.rd)
}

func (ro *RootDynamics) CalcRates(day time.Time, drv *sim.Drivers) error {
	dmi := ro.vars.read("DMI")
	fr := ro.vars.read("FR")
	dvs := ro.vars.read("DVS")

	ro.grrt = fr * dmi
	ro.drrt = ro.wrt * ro.rdrrtb.At(dvs)

	// depth growth stops when assimilates no longer flow to the roots
	ro.rr = 0
	if ro.grrt > 0 {
		ro.rr = math.Min(ro.rdm-ro.rd, ro.rri)
	}

	ro.vars.write("DRRT", ro.drrt)
	return ro.vars.take()
}

func (ro *RootDynamics) Integrate(day time.Time, delt float64) error {
	ro.wrt += (ro.grrt - ro.drrt) * delt
	ro.dwrt += ro.drrt * delt
	ro.rd += ro.rr * delt

	ro.publishState()
	return ro.vars.take()
}

func (ro *RootDynamics) Touch(day time.Time) error {
	ro.publishState()
	return ro.vars.take()
}

func (ro *RootDynamics) Finalize(day time.Time) error { return nil }
