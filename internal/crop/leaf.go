package crop

import (
	"fmt"
	"math"
	"time"

	"cropcore/internal/cohort"
	"cropcore/internal/kernel"
	"cropcore/internal/params"
	"cropcore/pkg/sim"
)

// DeathPolicy selects how the stress-driven death rate and the age-threshold
// death mass are merged into one death demand. The reference model family has
// two variants and it is unresolved whether the second is an intentional
// refinement, so both are preserved under explicit names.
type DeathPolicy string

const (
	// DeathMaxOfCauses takes max(stress death, age death): the causes are
	// alternative explanations of the same physical loss, not additive.
	DeathMaxOfCauses DeathPolicy = "max-of-causes"
	// DeathScaledAge multiplies the age-threshold death mass by a separate
	// factor before taking the max.
	DeathScaledAge DeathPolicy = "scaled-age"
)

// demand merges the two death rates under the policy. ageScale is only used
// by DeathScaledAge.
func (p DeathPolicy) demand(stress, age, ageScale float64) (float64, error) {
	switch p {
	case "", DeathMaxOfCauses:
		return math.Max(stress, age), nil
	case DeathScaledAge:
		return math.Max(stress, ageScale*age), nil
	default:
		return 0, fmt.Errorf("unknown death policy %q", p)
	}
}

// LeafDynamics tracks leaf biomass as an age-cohort ledger: one cohort of
// daily growth inserted at the head, death consumed from the oldest cohorts
// at the tail, and ages advanced by a temperature-scaled day equivalent.
// Senescence is driven by water stress, self-shading above a critical LAI,
// frost kill and exceeding the physiological lifespan.
type LeafDynamics struct {
	vars   *access
	policy DeathPolicy

	rgrlai   float64 // maximum relative increase of LAI per day
	span     float64 // leaf lifespan at the reference temperature
	tbase    float64 // base temperature for physiological ageing
	perdl    float64 // maximum relative death rate under water stress
	tdwi     float64 // initial total crop dry weight
	ageScale float64 // multiplier on age-threshold death under DeathScaledAge
	slatb    *sim.Curve
	kdiftb   *sim.Curve

	ledger *cohort.Ledger

	// state
	laiExp float64 // LAI under unconstrained exponential growth
	laiMax float64
	lai    float64
	wlv    float64
	dwlv   float64

	// rates
	grlv   float64
	drlv   float64
	slat   float64
	fysage float64
	glaiex float64
}

// NewLeafDynamics constructs the component. Partitioning, stem and storage
// dynamics must already have published FL, FR, SAI and PAI.
func NewLeafDynamics(x *kernel.Exchange, p *params.Provider, policy DeathPolicy) (*LeafDynamics, error) {
	f := params.NewFetcher(p)
	lv := &LeafDynamics{
		vars:   newAccess(x, "leaf dynamics"),
		policy: policy,
		rgrlai: f.Float("RGRLAI"),
		span:   f.Float("SPAN"),
		tbase:  f.Float("TBASE"),
		perdl:  f.Float("PERDL"),
		tdwi:   f.Float("TDWI"),
		slatb:  f.Curve("SLATB"),
		kdiftb: f.Curve("KDIFTB"),
	}
	if policy == DeathScaledAge {
		lv.ageScale = f.Float("AGESCALE")
	}
	if err := f.Err(); err != nil {
		return nil, fmt.Errorf("leaf dynamics: %w", err)
	}

	fl := lv.vars.read("FL")
	fr := lv.vars.read("FR")
	dvs := lv.vars.read("DVS")
	sai := lv.vars.read("SAI")
	pai := lv.vars.read("PAI")
	if err := lv.vars.take(); err != nil {
		return nil, fmt.Errorf("leaf dynamics: %w", err)
	}

	lv.wlv = lv.tdwi * (1 - fr) * fl
	lv.ledger = cohort.New(lv.wlv, lv.slatb.At(dvs))
	lv.laiExp = lv.ledger.Area()
	lv.lai = lv.ledger.Area() + sai + pai
	lv.laiMax = lv.lai

	lv.vars.register("LAI", kernel.KindState, true)
	lv.vars.register("WLV", kernel.KindState, true)
	lv.vars.register("TWLV", kernel.KindState, true)
	lv.vars.register("GRLV", kernel.KindRate, false)
	lv.vars.register("DRLV", kernel.KindRate, true)
	lv.publishState()
	if err := lv.vars.take(); err != nil {
		return nil, fmt.Errorf("leaf dynamics: %w", err)
	}
	return lv, nil
}

func (lv *LeafDynamics) Name() string { return "leaf dynamics" }

func (lv *LeafDynamics) publishState() {
	lv.vars.write("LAI", lv.lai)
	lv.vars.write("WLV", lv.wlv)
	lv.vars.write("TWLV", lv.wlv+lv.dwlv)
}

// Ledger exposes the cohort ledger for inspection.
func (lv *LeafDynamics) Ledger() *cohort.Ledger { return lv.ledger }

func (lv *LeafDynamics) CalcRates(day time.Time, drv *sim.Drivers) error {
	admi := lv.vars.read("ADMI")
	fl := lv.vars.read("FL")
	dvs := lv.vars.read("DVS")
	rftra := lv.vars.read("RFTRA")

	// growth of new leaf biomass
	lv.grlv = admi * fl

	// death from water/oxygen stress
	dslv1 := lv.wlv * (1 - rftra) * lv.perdl

	// death from self-shading above the critical LAI
	laicr := 3.2 / lv.kdiftb.At(dvs)
	dslv2 := lv.wlv * sim.Limit(0, 0.03, 0.03*(lv.lai-laicr)/laicr)

	// death from frost kill when a frost component is wired
	dslv3 := 0.0
	if lv.vars.has("RF_FROST") {
		dslv3 = lv.wlv * lv.vars.read("RF_FROST")
	}

	dslv := math.Max(dslv1, math.Max(dslv2, dslv3))

	// biomass beyond the physiological lifespan
	dalv := lv.ledger.MassOlderThan(lv.span)

	drlv, err := lv.policy.demand(dslv, dalv, lv.ageScale)
	if err != nil {
		return err
	}
	lv.drlv = drlv

	// physiological ageing advances by a temperature-scaled day equivalent
	lv.fysage = math.Max(0, (drv.Temp-lv.tbase)/(35.0-lv.tbase))

	lv.slat = lv.slatb.At(dvs)

	// sink limitation: leaf area may not outgrow the exponential curve
	lv.glaiex = 0
	if lv.laiExp < 6 {
		dteff := math.Max(0, drv.Temp-lv.tbase)
		lv.glaiex = lv.laiExp * lv.rgrlai * dteff
		glasol := lv.grlv * lv.slat
		gla := math.Min(lv.glaiex, glasol)
		if lv.grlv > 0 {
			lv.slat = gla / lv.grlv
		}
	}

	lv.vars.write("GRLV", lv.grlv)
	lv.vars.write("DRLV", lv.drlv)
	return lv.vars.take()
}

func (lv *LeafDynamics) Integrate(day time.Time, delt float64) error {
	died := math.Min(lv.drlv, lv.ledger.Mass())
	lv.ledger.Update(lv.grlv, lv.slat, lv.fysage, lv.drlv)

	sai := lv.vars.read("SAI")
	pai := lv.vars.read("PAI")
	if err := lv.vars.take(); err != nil {
		return err
	}

	lv.laiExp += lv.glaiex
	lv.wlv = lv.ledger.Mass()
	lv.dwlv += died
	lv.lai = lv.ledger.Area() + sai + pai
	lv.laiMax = math.Max(lv.lai, lv.laiMax)

	lv.publishState()
	return lv.vars.take()
}

func (lv *LeafDynamics) Touch(day time.Time) error {
	lv.publishState()
	return lv.vars.take()
}

func (lv *LeafDynamics) Finalize(day time.Time) error { return nil }

// MaxLAI returns the highest LAI reached during the run.
func (lv *LeafDynamics) MaxLAI() float64 { return lv.laiMax }

// OverrideLAI forcibly rescales the ledger so the leaf contribution to LAI
// matches the target, preserving cohort ordering and per-cohort specific
// areas. Used when an external observation overrides the simulated canopy.
func (lv *LeafDynamics) OverrideLAI(target float64) error {
	sai := lv.vars.read("SAI")
	pai := lv.vars.read("PAI")
	dvs := lv.vars.read("DVS")
	if err := lv.vars.take(); err != nil {
		return err
	}
	targetArea := target - sai - pai
	if targetArea < 0 {
		return fmt.Errorf("leaf dynamics: LAI override %g below stem and pod area %g", target, sai+pai)
	}

	currentArea := lv.ledger.Area()
	if currentArea > 0 {
		lv.ledger.Rescale(lv.ledger.Mass()*targetArea/currentArea, lv.slatb.At(dvs))
	} else {
		slat := lv.slatb.At(dvs)
		mass := 0.0
		if slat > 0 {
			mass = targetArea / slat
		}
		lv.ledger.Rescale(mass, slat)
	}
	lv.wlv = lv.ledger.Mass()
	lv.lai = lv.ledger.Area() + sai + pai
	lv.publishState()
	return lv.vars.take()
}
