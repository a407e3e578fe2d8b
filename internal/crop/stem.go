package crop

import (
	"fmt"
	"time"

	"cropcore/internal/kernel"
	"cropcore/internal/params"
	"cropcore/pkg/sim"
)

// StemDynamics tracks living and dead stem biomass and the stem area index,
// the stems' contribution to light interception.
type StemDynamics struct {
	vars *access

	tdwi   float64
	ssatb  *sim.Curve // specific stem area vs DVS
	rdrstb *sim.Curve // relative death rate vs DVS

	wst  float64
	dwst float64
	sai  float64

	grst float64
	drst float64
}

// NewStemDynamics constructs the component. Partitioning must already have
// published FR and FS.
func NewStemDynamics(x *kernel.Exchange, p *params.Provider, dvs float64) (*StemDynamics, error) {
	f := params.NewFetcher(p)
	st := &StemDynamics{
		vars:   newAccess(x, "stem dynamics"),
		tdwi:   f.Float("TDWI"),
		ssatb:  f.Curve("SSATB"),
		rdrstb: f.Curve("RDRSTB"),
	}
	if err := f.Err(); err != nil {
		return nil, fmt.Errorf("stem dynamics: %w", err)
	}

	fr := st.vars.read("FR")
	fs := st.vars.read("FS")
	if err := st.vars.take(); err != nil {
		return nil, fmt.Errorf("stem dynamics: %w", err)
	}

	st.wst = st.tdwi * (1 - fr) * fs
	st.sai = st.wst * st.ssatb.At(dvs)

	st.vars.register("WST", kernel.KindState, true)
	st.vars.register("TWST", kernel.KindState, true)
	st.vars.register("SAI", kernel.KindState, true)
	st.vars.register("DRST", kernel.KindRate, true)
	st.publishState()
	if err := st.vars.take(); err != nil {
		return nil, fmt.Errorf("stem dynamics: %w", err)
	}
	return st, nil
}

func (st *StemDynamics) Name() string { return "stem dynamics" }

func (st *StemDynamics) publishState() {
	st.vars.write("WST", st.wst)
	st.vars.write("TWST", st.wst+st.dwst)
	st.vars.write("SAI", st.sai)
}

func (st *StemDynamics) CalcRates(day time.Time, drv *sim.Drivers) error {
	admi := st.vars.read("ADMI")
	fs := st.vars.read("FS")
	dvs := st.vars.read("DVS")

	st.grst = admi * fs
	st.drst = st.wst * st.rdrstb.At(dvs)

	st.vars.write("DRST", st.drst)
	return st.vars.take()
}

func (st *StemDynamics) Integrate(day time.Time, delt float64) error {
	dvs := st.vars.read("DVS")
	if err := st.vars.take(); err != nil {
		return err
	}

	st.wst += (st.grst - st.drst) * delt
	st.dwst += st.drst * delt
	st.sai = st.wst * st.ssatb.At(dvs)

	st.publishState()
	return st.vars.take()
}

func (st *StemDynamics) Touch(day time.Time) error {
	st.publishState()
	return st.vars.take()
}

func (st *StemDynamics) Finalize(day time.Time) error { return nil }
