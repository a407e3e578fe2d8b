package crop

import (
	"math"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"cropcore/internal/kernel"
	"cropcore/internal/params"
	"cropcore/pkg/sim"
)

func frostProvider(t *testing.T, overrides map[string]float64) *params.Provider {
	t.Helper()
	scalars := map[string]float64{
		"CROWNTMPA":       0.2,
		"CROWNTMPB":       0.5,
		"LT50C":           -23,
		"FROSTOL_H":       0.0093,
		"FROSTOL_D":       2.7e-5,
		"FROSTOL_S":       1.9,
		"FROSTOL_R":       0.54,
		"FROSTOL_SDBASE":  12.5,
		"FROSTOL_SDMAX":   25,
		"FROSTOL_KILLCF":  0.5,
		"FROSTOL_DVSVERN": 1,
	}
	for k, v := range overrides {
		scalars[k] = v
	}
	p, err := params.New(scalars, nil)
	if err != nil {
		t.Fatalf("provider: %v", err)
	}
	return p
}

// frostExchange seeds the development stage the frost component reads from
// phenology.
func frostExchange(t *testing.T, dvs float64) *kernel.Exchange {
	t.Helper()
	x := kernel.NewExchange()
	if err := x.Register("upstream", "DVS", kernel.KindState, true); err != nil {
		t.Fatalf("register DVS: %v", err)
	}
	if err := x.Write("upstream", "DVS", dvs); err != nil {
		t.Fatalf("write DVS: %v", err)
	}
	return x
}

func stepFrost(t *testing.T, x *kernel.Exchange, fk *FrostKill, n int, drv *sim.Drivers) {
	t.Helper()
	x.BeginDay(n)
	day := time.Date(2025, 11, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, n)
	if err := fk.CalcRates(day, drv); err != nil {
		t.Fatalf("day %d rates: %v", n, err)
	}
	if err := fk.Integrate(day, 1); err != nil {
		t.Fatalf("day %d integrate: %v", n, err)
	}
}

func TestCrownTemperature(t *testing.T) {
	// above freezing the crown follows the air
	tmin, temp := crownTemperature(&sim.Drivers{TMin: 2, TMax: 10, Temp: 6}, 0.2, 0.5)
	if tmin != 2 || temp != 6 {
		t.Fatalf("crown above freezing = %g, %g", tmin, temp)
	}

	// bare soil passes 70 percent of the frost through
	tmin, temp = crownTemperature(&sim.Drivers{TMin: -20, TMax: -10}, 0.2, 0.5)
	if !near(tmin, -14) || !near(temp, -10.5) {
		t.Fatalf("bare crown = %g, %g", tmin, temp)
	}

	// a full snow pack reduces the pass-through to the base coefficient
	tmin, temp = crownTemperature(&sim.Drivers{TMin: -20, TMax: -10, SnowDepth: 15}, 0.2, 0.5)
	if !near(tmin, -4) || !near(temp, -3) {
		t.Fatalf("snow crown = %g, %g", tmin, temp)
	}

	// depth beyond 15 cm adds no further insulation
	deep, _ := crownTemperature(&sim.Drivers{TMin: -20, TMax: -10, SnowDepth: 40}, 0.2, 0.5)
	if !near(deep, tmin) {
		t.Fatalf("capped snow crown = %g, want %g", deep, tmin)
	}
}

func TestFrostKill_HardeningLowersLT50(t *testing.T) {
	x := frostExchange(t, 0)
	fk, err := NewFrostKill(x, kernel.NewBus(), frostProvider(t, nil), zerolog.Nop())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	// LT50I = -0.6 + 0.142 * LT50C
	if math.Abs(fk.LT50()+3.866) > 1e-9 {
		t.Fatalf("initial LT50 = %g", fk.LT50())
	}

	// cold but frost-free days harden the unvernalised crop
	drv := &sim.Drivers{TMin: 0, TMax: 6, Temp: 3}
	stepFrost(t, x, fk, 1, drv)
	if fk.LT50() >= -5 {
		t.Fatalf("LT50 after one cold day = %g", fk.LT50())
	}
	if kill, err := x.Read("RF_FROST"); err != nil || kill != 0 {
		t.Fatalf("frost-free day killed: RF_FROST = %g, %v", kill, err)
	}
	for n := 2; n <= 60; n++ {
		stepFrost(t, x, fk, n, drv)
	}
	if fk.LT50() < -23-1e-9 || fk.LT50() > -20 {
		t.Fatalf("LT50 after two cold months = %g", fk.LT50())
	}
	if fk.FrostDays() != 0 || fk.KilledFraction() != 0 {
		t.Fatalf("hardening alone damaged the crop: %d days, killed %g", fk.FrostDays(), fk.KilledFraction())
	}
}

func TestFrostKill_WarmSpellDehardens(t *testing.T) {
	x := frostExchange(t, 0)
	fk, err := NewFrostKill(x, kernel.NewBus(), frostProvider(t, nil), zerolog.Nop())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	cold := &sim.Drivers{TMin: 0, TMax: 6, Temp: 3}
	for n := 1; n <= 60; n++ {
		stepFrost(t, x, fk, n, cold)
	}
	hardened := fk.LT50()

	warm := &sim.Drivers{TMin: 5, TMax: 25, Temp: 15}
	for n := 61; n <= 90; n++ {
		stepFrost(t, x, fk, n, warm)
	}
	if fk.LT50() <= hardened+5 {
		t.Fatalf("warm spell kept LT50 at %g (hardened %g)", fk.LT50(), hardened)
	}
	if fk.LT50() > -3.866+1e-9 {
		t.Fatalf("dehardening overshot LT50I: %g", fk.LT50())
	}
}

func TestFrostKill_VernalisedCropStopsHardening(t *testing.T) {
	x := frostExchange(t, 1.5)
	fk, err := NewFrostKill(x, kernel.NewBus(), frostProvider(t, nil), zerolog.Nop())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	drv := &sim.Drivers{TMin: 0, TMax: 6, Temp: 3}
	for n := 1; n <= 5; n++ {
		stepFrost(t, x, fk, n, drv)
	}
	if math.Abs(fk.LT50()+3.866) > 0.01 {
		t.Fatalf("vernalised crop hardened to %g", fk.LT50())
	}
}

func TestFrostKill_SnowCoverPreventsKill(t *testing.T) {
	// the same air frost kills a bare crown and spares one under 15 cm of
	// snow, with the logistic clipped to 1 and 0 at the tails
	air := sim.Drivers{TMin: -8, TMax: -2, Temp: -5}

	x := frostExchange(t, 0)
	fk, err := NewFrostKill(x, kernel.NewBus(), frostProvider(t, nil), zerolog.Nop())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	covered := air
	covered.SnowDepth = 15
	stepFrost(t, x, fk, 1, &covered)
	if kill, err := x.Read("RF_FROST"); err != nil || kill != 0 {
		t.Fatalf("snow-covered crown killed: RF_FROST = %g, %v", kill, err)
	}
	if fk.FrostDays() != 0 {
		t.Fatalf("frost days under snow = %d", fk.FrostDays())
	}

	x = frostExchange(t, 0)
	fk, err = NewFrostKill(x, kernel.NewBus(), frostProvider(t, nil), zerolog.Nop())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	stepFrost(t, x, fk, 1, &air)
	if kill, err := x.Read("RF_FROST"); err != nil || kill != 1 {
		t.Fatalf("bare crown survived: RF_FROST = %g, %v", kill, err)
	}
}

func TestFrostKill_PartialKillAccumulates(t *testing.T) {
	x := frostExchange(t, 0)
	fk, err := NewFrostKill(x, kernel.NewBus(), frostProvider(t, nil), zerolog.Nop())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	// a minimum near LT50 lands mid-logistic, below both clipping tails
	stepFrost(t, x, fk, 1, &sim.Drivers{TMin: -5.5, TMax: -1, Temp: -3})
	kill, err := x.Read("RF_FROST")
	if err != nil || kill <= 0 || kill >= 1 {
		t.Fatalf("RF_FROST = %g, %v", kill, err)
	}
	if fk.FrostDays() != 1 {
		t.Fatalf("frost days = %d", fk.FrostDays())
	}
	if got := fk.KilledFraction(); !near(got, kill) {
		t.Fatalf("killed fraction %g after kill %g", got, kill)
	}
}

func TestFrostKill_LethalKillRequestsFinishOnce(t *testing.T) {
	x := frostExchange(t, 0)
	bus := kernel.NewBus()
	var finishes []sim.CropFinish
	if err := bus.Subscribe(sim.SignalCropFinish, func(p any) {
		finishes = append(finishes, p.(sim.CropFinish))
	}); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	fk, err := NewFrostKill(x, bus, frostProvider(t, nil), zerolog.Nop())
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	severe := &sim.Drivers{TMin: -30, TMax: -20, Temp: -25}
	stepFrost(t, x, fk, 1, severe)
	if fk.KilledFraction() != 1 {
		t.Fatalf("killed fraction = %g", fk.KilledFraction())
	}
	if len(finishes) != 1 {
		t.Fatalf("finish signalled %d times", len(finishes))
	}
	if finishes[0].Reason != sim.FinishFrostKill || !finishes[0].Delete {
		t.Fatalf("finish %#v", finishes[0])
	}

	// a dead crop stays dead without a second request
	stepFrost(t, x, fk, 2, severe)
	if len(finishes) != 1 {
		t.Fatalf("finish signalled %d times after the kill", len(finishes))
	}
}

func TestNewFrostKill_SnowDepthBoundsOrdered(t *testing.T) {
	_, err := NewFrostKill(frostExchange(t, 0), kernel.NewBus(),
		frostProvider(t, map[string]float64{"FROSTOL_SDMAX": 12.5}), zerolog.Nop())
	if err == nil {
		t.Fatalf("equal snow depth bounds accepted")
	}
}
