package crop

import (
	"testing"
	"time"

	"github.com/rs/zerolog"

	"cropcore/internal/kernel"
	"cropcore/internal/params"
	"cropcore/internal/soil"
	"cropcore/pkg/sim"
)

// constantWeather supplies an endless mild growing day.
type constantWeather struct{}

func (constantWeather) Drivers(day time.Time) (*sim.Drivers, error) {
	return &sim.Drivers{
		Day:      day,
		TMin:     10,
		TMax:     20,
		Temp:     15,
		Rad:      15e6,
		ET0:      0.3,
		E0:       0.35,
		ES0:      0.33,
		Rain:     0.4,
		Latitude: 52,
	}, nil
}

// fullProvider carries a complete synthetic spring cereal parameter set.
func fullProvider(t *testing.T) *params.Provider {
	t.Helper()
	scalars := map[string]float64{
		// phenology
		"TSUMEM": 80, "TBASEM": 0, "TEFFMX": 30,
		"TSUM1": 150, "TSUM2": 150, "IDSL": 0, "DLO": 14, "DLC": 8,
		"DVSI": 0, "DVSEND": 2,
		// assimilate conversion and initial weight
		"CVL": 0.685, "CVS": 0.662, "CVO": 0.709, "CVR": 0.694,
		"TDWI": 100,
		// leaves
		"RGRLAI": 0.0082, "SPAN": 30, "TBASE": 0, "PERDL": 0.03,
		// roots
		"RDI": 10, "RRI": 1.2, "RDMCR": 100, "RDMSOL": 120,
		// storage organs
		"SPA": 0,
		// maintenance respiration
		"Q10": 2, "RMR": 0.015, "RML": 0.03, "RMS": 0.015, "RMO": 0.01,
		// assimilation
		"EFF": 0.45,
		// evapotranspiration
		"CFET": 1, "DEPNR": 4.5, "IAIRDU": 0, "IOX": 0, "CRAIRC": 0.06,
		// soil physics, shared with the water balance
		"SM0": 0.46, "SMW": 0.1, "SMFCF": 0.36,
		"SMLIM": 0.36, "SOPE": 1.47, "KSUB": 1.47,
		"SSMAX": 0, "NOTINF": 0, "SSI": 0, "WAV": 10,
		// nutrients
		"NMAXST_FR": 0.5, "NMAXRT_FR": 0.5, "NMAXSO": 0.02,
		"NRESIDLV": 0.005, "NRESIDST": 0.002, "NRESIDRT": 0.002,
		"NAVAILI": 50, "NFIX_FR": 0,
		"PMAXST_FR": 0.5, "PMAXRT_FR": 0.5, "PMAXSO": 0.004,
		"PRESIDLV": 0.0005, "PRESIDST": 0.0002, "PRESIDRT": 0.0002,
		"PAVAILI": 10,
		"KMAXST_FR": 0.5, "KMAXRT_FR": 0.5, "KMAXSO": 0.01,
		"KRESIDLV": 0.002, "KRESIDST": 0.002, "KRESIDRT": 0.002,
		"KAVAILI": 60,
	}
	curves := map[string][]float64{
		"DTSMTB": {0, 0, 30, 30},
		// the partitioning fractions close to 1 at every stage
		"FRTB": {0, 0.5, 1, 0, 2, 0},
		"FLTB": {0, 0.6, 1, 0.2, 2, 0},
		"FSTB": {0, 0.4, 1, 0.4, 2, 0},
		"FOTB": {0, 0, 1, 0.4, 2, 1},
		"SLATB":  {0, 0.002, 2, 0.002},
		"SSATB":  {0, 0, 2, 0},
		"KDIFTB": {0, 0.6, 2, 0.6},
		"AMAXTB": {0, 35, 2, 35},
		"TMPFTB": {0, 0, 10, 1, 30, 1, 35, 0},
		"RFSETB": {0, 1, 2, 1},
		"RDRRTB": {0, 0, 1.5, 0, 2, 0.02},
		"RDRSTB": {0, 0, 1.5, 0, 2, 0.02},
		"NMAXLV_TB": {0, 0.06, 2, 0.02},
		"PMAXLV_TB": {0, 0.01, 2, 0.004},
		"KMAXLV_TB": {0, 0.08, 2, 0.03},
	}
	p, err := params.New(scalars, curves)
	if err != nil {
		t.Fatalf("provider: %v", err)
	}
	return p
}

func fullAgro() params.Agromanagement {
	return params.Agromanagement{
		CampaignStart: time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC),
		CampaignEnd:   time.Date(2025, 9, 30, 0, 0, 0, 0, time.UTC),
		CropStartType: "sowing",
		CropEndType:   "earliest",
		MaxDuration:   200,
		Latitude:      52,
	}
}

func TestCrop_FullSeasonWaterLimited(t *testing.T) {
	x := kernel.NewExchange()
	bus := kernel.NewBus()
	p := fullProvider(t)
	agro := fullAgro()

	c, err := New(x, bus, p, agro, Options{}, zerolog.Nop())
	if err != nil {
		t.Fatalf("crop: %v", err)
	}
	wb, err := soil.New(x, p)
	if err != nil {
		t.Fatalf("soil: %v", err)
	}

	eng, err := kernel.New(kernel.Config{
		Exchange:   x,
		Bus:        bus,
		Weather:    constantWeather{},
		Crop:       c,
		Soil:       wb,
		Start:      agro.CampaignStart,
		End:        agro.CampaignEnd,
		OutputVars: []string{"DVS", "LAI", "TWSO", "SM", "RD"},
		Logger:     zerolog.Nop(),
	})
	if err != nil {
		t.Fatalf("engine: %v", err)
	}

	summary, err := eng.Run()
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if summary.FinishReason != sim.FinishMaturity {
		t.Fatalf("finish reason %q", summary.FinishReason)
	}
	if summary.FinishDay == nil {
		t.Fatalf("no finish day recorded")
	}
	// 15 degree days per day: emergence around day 6, anthesis 10 days later,
	// maturity 10 days after that
	matured := int(summary.FinishDay.Sub(agro.CampaignStart).Hours() / 24)
	if matured < 20 || matured > 35 {
		t.Fatalf("matured after %d days", matured)
	}

	v := summary.Values
	if v["DVS"] != 2 {
		t.Fatalf("final DVS = %g", v["DVS"])
	}
	if v["TAGP"] <= 50 {
		t.Fatalf("TAGP = %g, no growth", v["TAGP"])
	}
	if v["HI"] <= 0 || v["HI"] > 1 {
		t.Fatalf("harvest index = %g", v["HI"])
	}
	if v["LAIMAX"] <= 0.06 {
		t.Fatalf("LAIMAX = %g, canopy never grew", v["LAIMAX"])
	}
	if v["GASST"] <= 0 || v["MREST"] <= 0 || v["GASST"] <= v["MREST"] {
		t.Fatalf("assimilation totals GASST %g MREST %g", v["GASST"], v["MREST"])
	}
	// the soil component keeps running after the crop is deleted and
	// contributes its own totals
	if _, ok := v["WTRAT"]; !ok {
		t.Fatalf("summary missing water balance totals: %v", v)
	}

	outputs := eng.Outputs()
	if len(outputs) != summary.DaysRun {
		t.Fatalf("%d output rows over %d days", len(outputs), summary.DaysRun)
	}
	last := outputs[len(outputs)-1]
	if last.Values["DVS"] != 2 {
		t.Fatalf("last snapshot DVS = %g", last.Values["DVS"])
	}
	if sm, ok := last.Values["SM"]; !ok || sm < 0.1-1e-9 || sm > 0.46+1e-9 {
		t.Fatalf("last snapshot SM = %g (%v)", sm, ok)
	}
}

func TestCrop_PotentialProductionWithoutSoil(t *testing.T) {
	x := kernel.NewExchange()
	bus := kernel.NewBus()
	agro := fullAgro()

	c, err := New(x, bus, fullProvider(t), agro, Options{}, zerolog.Nop())
	if err != nil {
		t.Fatalf("crop: %v", err)
	}
	eng, err := kernel.New(kernel.Config{
		Exchange: x,
		Bus:      bus,
		Weather:  constantWeather{},
		Crop:     c,
		Start:    agro.CampaignStart,
		End:      agro.CampaignEnd,
		Logger:   zerolog.Nop(),
	})
	if err != nil {
		t.Fatalf("engine: %v", err)
	}

	summary, err := eng.Run()
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if summary.FinishReason != sim.FinishMaturity {
		t.Fatalf("finish reason %q", summary.FinishReason)
	}
	// without a published soil moisture the run is potential production
	if summary.Values["DaysWaterStress"] != 0 {
		t.Fatalf("potential run counted %g water stress days", summary.Values["DaysWaterStress"])
	}
	if summary.Values["TAGP"] <= 50 {
		t.Fatalf("TAGP = %g", summary.Values["TAGP"])
	}
}

func TestCrop_MaxDurationFinish(t *testing.T) {
	x := kernel.NewExchange()
	bus := kernel.NewBus()
	agro := fullAgro()
	agro.CropEndType = "harvest"
	agro.MaxDuration = 15

	c, err := New(x, bus, fullProvider(t), agro, Options{}, zerolog.Nop())
	if err != nil {
		t.Fatalf("crop: %v", err)
	}
	eng, err := kernel.New(kernel.Config{
		Exchange: x,
		Bus:      bus,
		Weather:  constantWeather{},
		Crop:     c,
		Start:    agro.CampaignStart,
		End:      agro.CampaignEnd,
		Logger:   zerolog.Nop(),
	})
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	summary, err := eng.Run()
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if summary.FinishReason != sim.FinishMaxDuration {
		t.Fatalf("finish reason %q", summary.FinishReason)
	}
	if summary.DaysRun != 16 {
		t.Fatalf("ran %d days", summary.DaysRun)
	}
}
