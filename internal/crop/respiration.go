package crop

import (
	"fmt"
	"math"
	"time"

	"cropcore/internal/kernel"
	"cropcore/internal/params"
	"cropcore/pkg/sim"
)

// Respiration computes the potential maintenance respiration rate from organ
// dry weights, a senescence reduction curve and the Q10 temperature response.
type Respiration struct {
	vars *access

	q10    float64
	rmr    float64 // maintenance coefficient roots, kg CH2O per kg dry weight per day
	rml    float64 // leaves
	rms    float64 // stems
	rmo    float64 // storage organs
	rfsetb *sim.Curve

	pmres float64
}

// NewRespiration constructs the component.
func NewRespiration(x *kernel.Exchange, p *params.Provider) (*Respiration, error) {
	f := params.NewFetcher(p)
	r := &Respiration{
		vars:   newAccess(x, "respiration"),
		q10:    f.Float("Q10"),
		rmr:    f.Float("RMR"),
		rml:    f.Float("RML"),
		rms:    f.Float("RMS"),
		rmo:    f.Float("RMO"),
		rfsetb: f.Curve("RFSETB"),
	}
	if err := f.Err(); err != nil {
		return nil, fmt.Errorf("respiration: %w", err)
	}
	r.vars.register("PMRES", kernel.KindRate, true)
	if err := r.vars.take(); err != nil {
		return nil, fmt.Errorf("respiration: %w", err)
	}
	return r, nil
}

func (r *Respiration) Name() string { return "respiration" }

// Potential returns this day's potential maintenance respiration in
// kg CH2O ha-1 d-1.
func (r *Respiration) Potential() float64 { return r.pmres }

func (r *Respiration) CalcRates(day time.Time, drv *sim.Drivers) error {
	dvs := r.vars.read("DVS")
	wrt := r.vars.read("WRT")
	wlv := r.vars.read("WLV")
	wst := r.vars.read("WST")
	wso := r.vars.read("WSO")
	if err := r.vars.take(); err != nil {
		return err
	}

	rmres := r.rmr*wrt + r.rml*wlv + r.rms*wst + r.rmo*wso
	rmres *= r.rfsetb.At(dvs)
	teff := math.Pow(r.q10, (drv.Temp-25.0)/10.0)

	r.pmres = rmres * teff
	r.vars.write("PMRES", r.pmres)
	return r.vars.take()
}

func (r *Respiration) Integrate(day time.Time, delt float64) error { return nil }
func (r *Respiration) Touch(day time.Time) error                   { return nil }
func (r *Respiration) Finalize(day time.Time) error                { return nil }
