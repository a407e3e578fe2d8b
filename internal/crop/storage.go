package crop

import (
	"fmt"
	"time"

	"cropcore/internal/kernel"
	"cropcore/internal/params"
	"cropcore/pkg/sim"
)

// StorageOrganDynamics tracks the storage organ biomass (grains, tubers,
// pods) and the pod area index. Storage organs do not die during the run.
type StorageOrganDynamics struct {
	vars *access

	tdwi float64
	spa  float64 // specific pod area, ha kg-1

	wso  float64
	dwso float64
	pai  float64

	grso float64
}

// NewStorageOrganDynamics constructs the component. Partitioning must already
// have published FR and FO.
func NewStorageOrganDynamics(x *kernel.Exchange, p *params.Provider) (*StorageOrganDynamics, error) {
	f := params.NewFetcher(p)
	so := &StorageOrganDynamics{
		vars: newAccess(x, "storage organ dynamics"),
		tdwi: f.Float("TDWI"),
		spa:  f.Float("SPA"),
	}
	if err := f.Err(); err != nil {
		return nil, fmt.Errorf("storage organ dynamics: %w", err)
	}

	fr := so.vars.read("FR")
	fo := so.vars.read("FO")
	if err := so.vars.take(); err != nil {
		return nil, fmt.Errorf("storage organ dynamics: %w", err)
	}

	so.wso = so.tdwi * (1 - fr) * fo
	so.pai = so.wso * so.spa

	so.vars.register("WSO", kernel.KindState, true)
	so.vars.register("TWSO", kernel.KindState, true)
	so.vars.register("PAI", kernel.KindState, true)
	so.publishState()
	if err := so.vars.take(); err != nil {
		return nil, fmt.Errorf("storage organ dynamics: %w", err)
	}
	return so, nil
}

func (so *StorageOrganDynamics) Name() string { return "storage organ dynamics" }

func (so *StorageOrganDynamics) publishState() {
	so.vars.write("WSO", so.wso)
	so.vars.write("TWSO", so.wso+so.dwso)
	so.vars.write("PAI", so.pai)
}

func (so *StorageOrganDynamics) CalcRates(day time.Time, drv *sim.Drivers) error {
	admi := so.vars.read("ADMI")
	fo := so.vars.read("FO")
	so.grso = admi * fo
	return so.vars.take()
}

func (so *StorageOrganDynamics) Integrate(day time.Time, delt float64) error {
	so.wso += so.grso * delt
	so.pai = so.wso * so.spa

	so.publishState()
	return so.vars.take()
}

func (so *StorageOrganDynamics) Touch(day time.Time) error {
	so.publishState()
	return so.vars.take()
}

func (so *StorageOrganDynamics) Finalize(day time.Time) error { return nil }
