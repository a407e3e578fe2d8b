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

// Options selects the optional parts of the crop component tree.
type Options struct {
	// DeathPolicy for leaf senescence; empty means DeathMaxOfCauses.
	DeathPolicy DeathPolicy
	// Frost enables the frost kill component. Requires the FROSTOL parameter
	// group.
	Frost bool
}

// Crop is the composite crop component: phenology, carbon assimilation and
// its allocation over the organs, water-limited transpiration, nutrient
// amounts and optional frost kill, stepped as one subtree in dependency
// order. The daily carbon balance between gross assimilation, maintenance
// respiration and dry matter increase is enforced at blocking severity.
type Crop struct {
	vars *access
	bus  *kernel.Bus
	log  zerolog.Logger

	pheno *Phenology
	part  *Partitioning
	assim *Assimilation
	mres  *Respiration
	evtra *Evapotranspiration
	roots *RootDynamics
	stems *StemDynamics
	store *StorageOrganDynamics
	leaf  *LeafDynamics
	npk   *NPKDynamics
	frost *FrostKill

	// conversion efficiencies of assimilates into organ dry matter
	cvl, cvs, cvo, cvr float64

	carbonCheck kernel.Balance

	campaignStart time.Time
	campaignEnd   time.Time
	endType       string
	maxDuration   int
	finishSent    bool

	gass, mresd, dmi, admi float64
	ratesActive            bool

	gasst float64
	mrest float64

	hi   float64
	tagp float64
}

// New builds the crop component tree over the exchange and bus. Construction
// publishes every organ's initial state; the order follows the variable
// dependencies between the sub-models.
func New(x *kernel.Exchange, bus *kernel.Bus, p *params.Provider, agro params.Agromanagement, opts Options, log zerolog.Logger) (*Crop, error) {
	f := params.NewFetcher(p)
	c := &Crop{
		vars: newAccess(x, "crop"),
		bus:  bus,
		log:  log,
		cvl:  f.Float("CVL"),
		cvs:  f.Float("CVS"),
		cvo:  f.Float("CVO"),
		cvr:  f.Float("CVR"),
		carbonCheck: kernel.Balance{
			Name:      "carbon balance",
			Tolerance: 1e-4,
			Relative:  true,
			Severity:  sim.SeverityBlock,
		},
		campaignStart: agro.CampaignStart,
		campaignEnd:   agro.CampaignEnd,
		endType:       agro.CropEndType,
		maxDuration:   agro.MaxDuration,
	}
	tdwi := f.Float("TDWI")
	if err := f.Err(); err != nil {
		return nil, fmt.Errorf("crop: %w", err)
	}

	var err error
	if c.pheno, err = NewPhenology(x, bus, p, agro, log); err != nil {
		return nil, err
	}
	if c.part, err = NewPartitioning(x, p, c.pheno.DVS(), log); err != nil {
		return nil, err
	}
	if c.roots, err = NewRootDynamics(x, p); err != nil {
		return nil, err
	}
	if c.stems, err = NewStemDynamics(x, p, c.pheno.DVS()); err != nil {
		return nil, err
	}
	if c.store, err = NewStorageOrganDynamics(x, p); err != nil {
		return nil, err
	}
	if c.leaf, err = NewLeafDynamics(x, p, opts.DeathPolicy); err != nil {
		return nil, err
	}
	if c.assim, err = NewAssimilation(x, p); err != nil {
		return nil, err
	}
	if c.mres, err = NewRespiration(x, p); err != nil {
		return nil, err
	}
	if c.evtra, err = NewEvapotranspiration(x, p); err != nil {
		return nil, err
	}
	if opts.Frost {
		if c.frost, err = NewFrostKill(x, bus, p, log); err != nil {
			return nil, err
		}
	}
	if c.npk, err = NewNPKDynamics(x, p); err != nil {
		return nil, err
	}

	c.vars.register("GASS", kernel.KindRate, false)
	c.vars.register("DMI", kernel.KindRate, true)
	c.vars.register("ADMI", kernel.KindRate, true)
	if err := c.vars.take(); err != nil {
		return nil, fmt.Errorf("crop: %w", err)
	}

	c.checkInitialPartition(tdwi)
	return c, nil
}

// checkInitialPartition verifies that the initial dry weight distributed over
// the organs sums back to TDWI. A deviation means the partitioning fractions
// do not close at the initial development stage.
func (c *Crop) checkInitialPartition(tdwi float64) {
	wrt := c.vars.read("WRT")
	wlv := c.vars.read("WLV")
	wst := c.vars.read("WST")
	wso := c.vars.read("WSO")
	if err := c.vars.take(); err != nil {
		return
	}
	check := kernel.Balance{
		Name:      "initial biomass partition",
		Tolerance: 1e-4,
		Relative:  true,
		Severity:  sim.SeverityWarn,
	}
	res := check.Check(c.campaignStart, tdwi, nil, []float64{wrt, wlv, wst, wso}, nil)
	for _, v := range res.Violations {
		c.log.Warn().Str("violation", v.String()).Msg("initial dry weight does not close over the organs")
	}
}

func (c *Crop) Name() string { return "crop" }

// organs lists the sub-models below phenology, in dependency order.
func (c *Crop) organs() []sim.Component {
	list := []sim.Component{c.part, c.assim, c.mres, c.evtra}
	if c.frost != nil {
		list = append(list, c.frost)
	}
	list = append(list, c.roots, c.stems, c.store, c.leaf, c.npk)
	return list
}

func (c *Crop) CalcRates(day time.Time, drv *sim.Drivers) error {
	c.requestScheduledFinish(day)

	if err := c.pheno.CalcRates(day, drv); err != nil {
		return err
	}

	// Before emergence only phenology accumulates; the rest of the tree is
	// dormant and just republishes its state.
	if c.pheno.Stage() == StageEmerging {
		c.ratesActive = false
		for _, o := range c.organs() {
			if err := o.Touch(day); err != nil {
				return err
			}
		}
		return nil
	}
	c.ratesActive = true

	if err := c.assim.CalcRates(day, drv); err != nil {
		return err
	}
	if err := c.evtra.CalcRates(day, drv); err != nil {
		return err
	}
	if err := c.mres.CalcRates(day, drv); err != nil {
		return err
	}

	// gross assimilation reduced by transpiration stress, maintenance
	// respiration capped by what is assimilated
	c.gass = c.assim.Potential() * c.evtra.ReductionFactor()
	c.mresd = math.Min(c.gass, c.mres.Potential())
	asrc := c.gass - c.mresd

	pf := c.part.Factors()
	cvf := 1.0 / ((pf.FL/c.cvl+pf.FS/c.cvs+pf.FO/c.cvo)*(1-pf.FR) + pf.FR/c.cvr)
	c.dmi = cvf * asrc
	c.admi = (1 - pf.FR) * c.dmi

	partitioned := (pf.FR + (pf.FL+pf.FS+pf.FO)*(1-pf.FR)) * c.dmi / cvf
	if _, err := c.carbonCheck.Verify(day, 0, []float64{c.gass}, []float64{c.mresd, partitioned}, nil); err != nil {
		return err
	}

	c.vars.write("GASS", c.gass)
	c.vars.write("DMI", c.dmi)
	c.vars.write("ADMI", c.admi)
	if err := c.vars.take(); err != nil {
		return err
	}

	if c.frost != nil {
		if err := c.frost.CalcRates(day, drv); err != nil {
			return err
		}
	}
	if err := c.part.CalcRates(day, drv); err != nil {
		return err
	}
	if err := c.roots.CalcRates(day, drv); err != nil {
		return err
	}
	if err := c.stems.CalcRates(day, drv); err != nil {
		return err
	}
	if err := c.store.CalcRates(day, drv); err != nil {
		return err
	}
	if err := c.leaf.CalcRates(day, drv); err != nil {
		return err
	}
	return c.npk.CalcRates(day, drv)
}

// requestScheduledFinish fires the crop finish when the campaign runs out of
// calendar: the harvest date, or the maximum crop duration.
func (c *Crop) requestScheduledFinish(day time.Time) {
	if c.finishSent {
		return
	}
	if (c.endType == "harvest" || c.endType == "earliest") && !day.Before(c.campaignEnd) {
		c.finishSent = true
		c.bus.Publish(sim.SignalCropFinish, sim.CropFinish{Day: day, Reason: sim.FinishHarvest, Delete: true})
		return
	}
	if c.maxDuration > 0 {
		days := int(day.Sub(c.campaignStart).Hours() / 24)
		if days >= c.maxDuration {
			c.finishSent = true
			c.bus.Publish(sim.SignalCropFinish, sim.CropFinish{Day: day, Reason: sim.FinishMaxDuration, Delete: true})
		}
	}
}

func (c *Crop) Integrate(day time.Time, delt float64) error {
	if err := c.pheno.Integrate(day, delt); err != nil {
		return err
	}
	if !c.ratesActive {
		for _, o := range c.organs() {
			if err := o.Touch(day); err != nil {
				return err
			}
		}
		return nil
	}
	for _, o := range c.organs() {
		if err := o.Integrate(day, delt); err != nil {
			return err
		}
	}

	c.gasst += c.gass * delt
	c.mrest += c.mresd * delt
	return nil
}

func (c *Crop) Touch(day time.Time) error {
	if err := c.pheno.Touch(day); err != nil {
		return err
	}
	for _, o := range c.organs() {
		if err := o.Touch(day); err != nil {
			return err
		}
	}
	return nil
}

// Finalize resolves the end-of-run results: total above-ground production and
// the harvest index, undefined during daily stepping.
func (c *Crop) Finalize(day time.Time) error {
	if err := c.pheno.Finalize(day); err != nil {
		return err
	}
	for _, o := range c.organs() {
		if err := o.Finalize(day); err != nil {
			return err
		}
	}

	twlv := c.vars.read("TWLV")
	twst := c.vars.read("TWST")
	twso := c.vars.read("TWSO")
	if err := c.vars.take(); err != nil {
		return err
	}
	c.tagp = twlv + twst + twso
	c.hi = 0
	if c.tagp > 0 {
		c.hi = twso / c.tagp
	}
	return nil
}

// Summary reports the finalization results.
func (c *Crop) Summary() map[string]float64 {
	water, oxygen := c.evtra.StressDays()
	s := map[string]float64{
		"TAGP":   c.tagp,
		"HI":     c.hi,
		"GASST":  c.gasst,
		"MREST":  c.mrest,
		"LAIMAX": c.leaf.MaxLAI(),
		"DVS":    c.pheno.DVS(),

		"DaysWaterStress":  float64(water),
		"DaysOxygenStress": float64(oxygen),
	}
	if c.frost != nil {
		s["FrostDays"] = float64(c.frost.FrostDays())
		s["FrostKilled"] = c.frost.KilledFraction()
	}
	return s
}
