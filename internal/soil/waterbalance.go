// Package soil implements the soil water balance component feeding the root
// zone moisture back to the crop.
package soil

import (
	"fmt"
	"math"
	"time"

	"cropcore/internal/kernel"
	"cropcore/internal/params"
	"cropcore/pkg/sim"
)

// Rooting depth assumed when no crop publishes RD, covering bare soil periods
// before emergence and after harvest.
const bareSoilDepth = 10.0

// WaterBalance is a free-drainage two-reservoir bucket: a root zone that
// deepens with the crop and a subsoil reservoir below it down to the maximum
// soil depth. Rain infiltrates into the root zone, percolates to the subsoil
// at field capacity and drains out at the bottom. The root zone moisture SM
// is published for the transpiration reduction. All amounts are in cm of
// water.
type WaterBalance struct {
	vars *access

	sm0    float64 // porosity
	smfcf  float64 // field capacity
	smw    float64 // wilting point
	smlim  float64 // initial moisture cap
	sope   float64 // maximum percolation rate root zone
	ksub   float64 // maximum percolation rate subsoil
	rdmsol float64 // soil depth, cm
	ssmax  float64 // maximum surface storage
	notinf float64 // fraction of rain not infiltrating

	sm   float64
	ss   float64
	w    float64 // root zone water
	wlow float64 // subsoil water
	rd   float64
	dslr float64 // days since last significant rain, drives soil evaporation

	initialTotal float64
	wint         float64 // total water income reaching the system
	wtrat        float64
	evst         float64
	evwt         float64
	totinf       float64
	perct        float64
	losst        float64
	wdrt         float64 // water gained by root zone deepening

	// daily rates
	rin, evs, evw, wtra, perc, loss, dss, wdr float64

	check kernel.Balance
}

// New constructs the water balance from the soil parameter group and
// publishes the initial moisture state.
func New(x *kernel.Exchange, p *params.Provider) (*WaterBalance, error) {
	f := params.NewFetcher(p)
	wb := &WaterBalance{
		vars:   newAccess(x, "water balance"),
		sm0:    f.Float("SM0"),
		smfcf:  f.Float("SMFCF"),
		smw:    f.Float("SMW"),
		smlim:  f.Float("SMLIM"),
		sope:   f.Float("SOPE"),
		ksub:   f.Float("KSUB"),
		rdmsol: f.Float("RDMSOL"),
		ssmax:  f.Float("SSMAX"),
		notinf: f.Float("NOTINF"),
		ss:     f.Float("SSI"),
		dslr:   1,
		check: kernel.Balance{
			Name:      "soil water balance",
			Tolerance: 1e-4,
			Severity:  sim.SeverityBlock,
		},
	}
	wav := f.Float("WAV")
	if err := f.Err(); err != nil {
		return nil, fmt.Errorf("water balance: %w", err)
	}

	wb.rd = bareSoilDepth
	wb.smlim = sim.Limit(wb.smw, wb.sm0, wb.smlim)

	// initially available water is capped by SMLIM in the root zone, the
	// remainder sits in the subsoil up to porosity
	wb.sm = sim.Limit(wb.smw, wb.smlim, wb.smw+wav/wb.rd)
	wb.w = wb.sm * wb.rd
	lowerCap := (wb.rdmsol - wb.rd) * wb.sm0
	wb.wlow = sim.Limit(0, lowerCap, wav+wb.rdmsol*wb.smw-wb.w)
	wb.initialTotal = wb.w + wb.wlow + wb.ss

	wb.vars.register("SM", kernel.KindState, true)
	wb.vars.register("SS", kernel.KindState, true)
	wb.vars.register("W", kernel.KindState, true)
	wb.publishState()
	if err := wb.vars.take(); err != nil {
		return nil, fmt.Errorf("water balance: %w", err)
	}
	return wb, nil
}

func (wb *WaterBalance) Name() string { return "water balance" }

func (wb *WaterBalance) publishState() {
	wb.vars.write("SM", wb.sm)
	wb.vars.write("SS", wb.ss)
	wb.vars.write("W", wb.w)
}

// SM returns the current root zone moisture content.
func (wb *WaterBalance) SM() float64 { return wb.sm }

func (wb *WaterBalance) CalcRates(day time.Time, drv *sim.Drivers) error {
	// crop demand rates are stale when the crop subtree is dormant or gone
	wb.wtra = 0
	evwmx, evsmx := drv.E0, drv.ES0
	if wb.vars.has("TRA") {
		wb.wtra = wb.vars.read("TRA")
		evwmx = wb.vars.read("EVWMX")
		evsmx = wb.vars.read("EVSMX")
		if err := wb.vars.take(); err != nil {
			return err
		}
	}

	// evaporation from surface water when ponded, otherwise from the soil
	// with the square-root-of-time drying cycle
	wb.evw, wb.evs = 0, 0
	if wb.ss > 1 {
		wb.evw = evwmx
	} else {
		if drv.Rain >= 1 {
			wb.dslr = 1
			wb.evs = math.Min(evsmx, drv.Rain+wb.ss)
		} else {
			wb.dslr++
			evsmxt := evsmx * (math.Sqrt(wb.dslr) - math.Sqrt(wb.dslr-1))
			wb.evs = math.Min(evsmx, evsmxt+drv.Rain+wb.ss)
		}
		// never evaporate below wilting point
		extractable := math.Max(0, wb.w-wb.smw*wb.rd) + (1-wb.notinf)*drv.Rain
		wb.evs = math.Min(wb.evs, extractable)
	}

	// percolation to the subsoil above field capacity, drainage out of the
	// profile above subsoil field capacity
	wfc := wb.smfcf * wb.rd
	wb.perc = sim.Limit(0, wb.sope, wb.w-wfc)
	lowerFC := (wb.rdmsol - wb.rd) * wb.smfcf
	wb.loss = sim.Limit(0, wb.ksub, wb.wlow-lowerFC)

	// infiltration limited by the remaining pore space plus what leaves the
	// root zone today
	rinpre := (1-wb.notinf)*drv.Rain + wb.ss
	avail := (wb.sm0-wb.sm)*wb.rd + wb.wtra + wb.evs + wb.perc
	wb.rin = math.Min(rinpre, avail)

	wb.dss = math.Min((1-wb.notinf)*drv.Rain-wb.rin-wb.evw, wb.ssmax-wb.ss)

	// water picked up from the subsoil when the root zone deepens
	wb.wdr = 0
	if wb.vars.has("RD") {
		rdNew := wb.vars.read("RD")
		if err := wb.vars.take(); err != nil {
			return err
		}
		if rdNew > wb.rd && wb.rdmsol > wb.rd {
			wb.wdr = wb.wlow * (rdNew - wb.rd) / (wb.rdmsol - wb.rd)
		}
		wb.rd = rdNew
	}
	return wb.vars.take()
}

func (wb *WaterBalance) Integrate(day time.Time, delt float64) error {
	wb.w += (wb.rin - wb.wtra - wb.evs - wb.perc + wb.wdr) * delt
	wb.wlow += (wb.perc - wb.loss - wb.wdr) * delt
	wb.ss += wb.dss * delt
	wb.sm = wb.w / wb.rd

	wb.wint += (wb.rin + wb.dss + wb.evw) * delt
	wb.wtrat += wb.wtra * delt
	wb.evst += wb.evs * delt
	wb.evwt += wb.evw * delt
	wb.totinf += wb.rin * delt
	wb.perct += wb.perc * delt
	wb.losst += wb.loss * delt
	wb.wdrt += wb.wdr * delt

	wb.publishState()
	return wb.vars.take()
}

func (wb *WaterBalance) Touch(day time.Time) error {
	wb.publishState()
	return wb.vars.take()
}

// Finalize closes the water balance over the whole run.
func (wb *WaterBalance) Finalize(day time.Time) error {
	_, err := wb.check.Verify(day,
		wb.initialTotal,
		[]float64{wb.wint},
		[]float64{wb.w, wb.wlow, wb.ss},
		[]float64{wb.wtrat, wb.evst, wb.evwt, wb.losst},
	)
	return err
}

// Summary reports the run totals of the water balance.
func (wb *WaterBalance) Summary() map[string]float64 {
	return map[string]float64{
		"WINT":  wb.wint,
		"WTRAT": wb.wtrat,
		"EVST":  wb.evst,
		"EVWT":  wb.evwt,
		"PERCT": wb.perct,
		"LOSST": wb.losst,
	}
}
