package crop

import (
	"fmt"
	"math"
	"time"

	"cropcore/internal/kernel"
	"cropcore/internal/params"
	"cropcore/pkg/sim"
)

// nutrient carries the per-element parameters and pools of the NPK balance.
// The three elements share all dynamics except nitrogen's biological
// fixation.
type nutrient struct {
	symbol string

	maxLvTb *sim.Curve // maximum concentration in leaves vs DVS, kg kg-1
	maxStFr float64    // maximum stem concentration as fraction of the leaf maximum
	maxRtFr float64    // same for roots
	maxSo   float64    // maximum concentration in storage organs
	residLv float64    // residual concentration in dying leaves
	residSt float64    // residual concentration in dying stems
	residRt float64    // residual concentration in dying roots
	fixFr   float64    // fraction of demand met by fixation, nitrogen only

	// pools, kg ha-1
	amountLv  float64
	amountSt  float64
	amountRt  float64
	amountSo  float64
	available float64 // unclaimed soil supply
	uptakeT   float64
	fixedT    float64
	lossT     float64
	initial   float64

	// daily flows
	upLv, upSt, upRt float64
	fix              float64
	transSo          float64
	frTransLv        float64 // share of the storage-organ demand drawn from leaves
	frTransSt        float64
	frTransRt        float64
	lossLv           float64
	lossSt           float64
	lossRt           float64

	check kernel.Balance
}

func (n *nutrient) amount() float64 {
	return n.amountLv + n.amountSt + n.amountRt + n.amountSo
}

// NPKDynamics tracks nitrogen, phosphorus and potassium amounts in the crop
// organs: daily uptake from a finite soil supply driven by concentration
// deficits, translocation from vegetative organs into the storage organs, and
// losses at the residual concentration with dying biomass. Each element's
// mass balance is enforced daily at blocking severity.
type NPKDynamics struct {
	vars      *access
	nutrients [3]*nutrient
}

// NewNPKDynamics constructs the component. The organ dynamics must already
// have published their weights.
func NewNPKDynamics(x *kernel.Exchange, p *params.Provider) (*NPKDynamics, error) {
	f := params.NewFetcher(p)
	d := &NPKDynamics{vars: newAccess(x, "npk dynamics")}
	for i, sym := range []string{"N", "P", "K"} {
		n := &nutrient{
			symbol:  sym,
			maxLvTb: f.Curve(sym + "MAXLV_TB"),
			maxStFr: f.Float(sym + "MAXST_FR"),
			maxRtFr: f.Float(sym + "MAXRT_FR"),
			maxSo:   f.Float(sym + "MAXSO"),
			residLv: f.Float(sym + "RESIDLV"),
			residSt: f.Float(sym + "RESIDST"),
			residRt: f.Float(sym + "RESIDRT"),
			check: kernel.Balance{
				Name:      sym + " balance",
				Tolerance: 1.0,
				Severity:  sim.SeverityBlock,
			},
		}
		n.available = f.Float(sym + "AVAILI")
		if sym == "N" {
			n.fixFr = f.Float("NFIX_FR")
		}
		d.nutrients[i] = n
	}
	if err := f.Err(); err != nil {
		return nil, fmt.Errorf("npk dynamics: %w", err)
	}

	dvs := d.vars.read("DVS")
	wlv := d.vars.read("WLV")
	wst := d.vars.read("WST")
	wrt := d.vars.read("WRT")
	if err := d.vars.take(); err != nil {
		return nil, fmt.Errorf("npk dynamics: %w", err)
	}

	for _, n := range d.nutrients {
		maxLv := n.maxLvTb.At(dvs)
		n.amountLv = maxLv * wlv
		n.amountSt = maxLv * n.maxStFr * wst
		n.amountRt = maxLv * n.maxRtFr * wrt
		n.initial = n.amount()
		d.vars.register(n.symbol+"AMOUNT", kernel.KindState, true)
	}
	d.publishState()
	if err := d.vars.take(); err != nil {
		return nil, fmt.Errorf("npk dynamics: %w", err)
	}
	return d, nil
}

func (d *NPKDynamics) Name() string { return "npk dynamics" }

func (d *NPKDynamics) publishState() {
	for _, n := range d.nutrients {
		d.vars.write(n.symbol+"AMOUNT", n.amount())
	}
}

// Amounts returns the total crop amounts of N, P and K in kg ha-1.
func (d *NPKDynamics) Amounts() (nAmt, pAmt, kAmt float64) {
	return d.nutrients[0].amount(), d.nutrients[1].amount(), d.nutrients[2].amount()
}

func (d *NPKDynamics) CalcRates(day time.Time, drv *sim.Drivers) error {
	dvs := d.vars.read("DVS")
	wlv := d.vars.read("WLV")
	wst := d.vars.read("WST")
	wrt := d.vars.read("WRT")
	wso := d.vars.read("WSO")
	drlv := d.vars.read("DRLV")
	drst := d.vars.read("DRST")
	drrt := d.vars.read("DRRT")
	if err := d.vars.take(); err != nil {
		return err
	}

	for _, n := range d.nutrients {
		maxLv := n.maxLvTb.At(dvs)

		// demand is the deficit against the maximum concentration
		demLv := math.Max(0, maxLv*wlv-n.amountLv)
		demSt := math.Max(0, maxLv*n.maxStFr*wst-n.amountSt)
		demRt := math.Max(0, maxLv*n.maxRtFr*wrt-n.amountRt)
		demand := demLv + demSt + demRt

		n.fix = n.fixFr * demand
		uptake := math.Min(demand-n.fix, n.available)
		supply := uptake + n.fix

		n.upLv, n.upSt, n.upRt = 0, 0, 0
		if demand > 0 {
			n.upLv = supply * demLv / demand
			n.upSt = supply * demSt / demand
			n.upRt = supply * demRt / demand
		}

		// storage-organ demand is met by translocation from the vegetative
		// organs, drained proportionally to what each can spare above its
		// residual
		demSo := math.Max(0, n.maxSo*wso-n.amountSo)
		transLv := math.Max(0, n.amountLv-n.residLv*wlv)
		transSt := math.Max(0, n.amountSt-n.residSt*wst)
		transRt := math.Max(0, n.amountRt-n.residRt*wrt)
		translocatable := transLv + transSt + transRt
		n.transSo = math.Min(demSo, translocatable)
		n.frTransLv, n.frTransSt, n.frTransRt = 0, 0, 0
		if translocatable > 0 {
			n.frTransLv = transLv / translocatable
			n.frTransSt = transSt / translocatable
			n.frTransRt = transRt / translocatable
		}

		// dying biomass leaves at the residual concentration
		n.lossLv = n.residLv * drlv
		n.lossSt = n.residSt * drst
		n.lossRt = n.residRt * drrt
	}
	return nil
}

func (d *NPKDynamics) Integrate(day time.Time, delt float64) error {
	// All three element balances are checked before the step fails, so one
	// broken flow equation does not hide another.
	var res sim.Result
	for _, n := range d.nutrients {
		n.amountLv += (n.upLv - n.frTransLv*n.transSo - n.lossLv) * delt
		n.amountSt += (n.upSt - n.frTransSt*n.transSo - n.lossSt) * delt
		n.amountRt += (n.upRt - n.frTransRt*n.transSo - n.lossRt) * delt
		n.amountSo += n.transSo * delt

		uptake := n.upLv + n.upSt + n.upRt - n.fix
		n.available -= uptake * delt
		n.uptakeT += uptake * delt
		n.fixedT += n.fix * delt
		n.lossT += (n.lossLv + n.lossSt + n.lossRt) * delt

		res.Merge(n.check.Check(day,
			n.initial,
			[]float64{n.uptakeT, n.fixedT},
			[]float64{n.amountLv, n.amountSt, n.amountRt, n.amountSo},
			[]float64{n.lossT},
		))
	}
	if res.HasBlocking() {
		return sim.BalanceError{Violation: res.Violations[0]}
	}

	d.publishState()
	return d.vars.take()
}

func (d *NPKDynamics) Touch(day time.Time) error {
	d.publishState()
	return d.vars.take()
}

func (d *NPKDynamics) Finalize(day time.Time) error { return nil }
