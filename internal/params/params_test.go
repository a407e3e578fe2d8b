package params

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestProvider_Lookups(t *testing.T) {
	p, err := New(
		map[string]float64{"TSUM1": 900, "TBASE": 0},
		map[string][]float64{"SLATB": {0, 0.0022, 2, 0.0015}},
	)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if v, err := p.Float("TSUM1"); err != nil || v != 900 {
		t.Fatalf("float: %v %v", v, err)
	}
	c, err := p.Curve("SLATB")
	if err != nil {
		t.Fatalf("curve: %v", err)
	}
	if got := c.At(0); got != 0.0022 {
		t.Fatalf("curve at 0 = %g", got)
	}

	var missing ErrMissingParameter
	if _, err := p.Float("NOPE"); !errors.As(err, &missing) {
		t.Fatalf("expected ErrMissingParameter, got %v", err)
	}
	if missing.Name != "NOPE" {
		t.Fatalf("missing name = %q", missing.Name)
	}
	if !p.Has("SLATB") || p.Has("NOPE") {
		t.Fatalf("has lookups wrong")
	}
}

func TestProvider_RejectsMalformedCurve(t *testing.T) {
	_, err := New(nil, map[string][]float64{"BAD": {0, 1, 0, 2}})
	if err == nil {
		t.Fatalf("malformed curve accepted")
	}
}

func TestFetcher_FirstErrorWins(t *testing.T) {
	p, err := New(map[string]float64{"A": 1}, nil)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	f := NewFetcher(p)
	if v := f.Float("A"); v != 1 {
		t.Fatalf("float = %g", v)
	}
	_ = f.Float("MISSING_1")
	_ = f.Float("MISSING_2")
	var missing ErrMissingParameter
	if !errors.As(f.Err(), &missing) || missing.Name != "MISSING_1" {
		t.Fatalf("first error not kept: %v", f.Err())
	}
	// lookups after a failure return zero values without clearing the error
	if v := f.Float("A"); v != 0 {
		t.Fatalf("post-failure float = %g", v)
	}
	if c := f.Curve("A"); c != nil {
		t.Fatalf("post-failure curve not nil")
	}
}

func TestParseCrop(t *testing.T) {
	raw := []byte(`crop_name: winter-wheat
scalars:
  TSUM1: 900
  TDWI: 210
curves:
  SLATB: [0.0, 0.00212, 0.5, 0.00212, 2.0, 0.00212]
`)
	p, err := ParseCrop(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if v, err := p.Float("TDWI"); err != nil || v != 210 {
		t.Fatalf("scalar: %v %v", v, err)
	}
	c, err := p.Curve("SLATB")
	if err != nil {
		t.Fatalf("curve: %v", err)
	}
	if got := c.At(1.0); got != 0.00212 {
		t.Fatalf("curve at 1.0 = %g", got)
	}
}

func TestParseCrop_BadYAML(t *testing.T) {
	if _, err := ParseCrop([]byte("scalars: [not, a, map]")); err == nil {
		t.Fatalf("bad yaml accepted")
	}
}

func TestLoadAgromanagement(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "agro.yaml")
	raw := `campaign_start: 2025-10-01T00:00:00Z
campaign_end: 2026-08-01T00:00:00Z
crop_start_type: sowing
crop_end_type: earliest
max_duration: 330
latitude: 52.0
`
	if err := os.WriteFile(path, []byte(raw), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	a, err := LoadAgromanagement(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if a.CropStartType != "sowing" || a.MaxDuration != 330 || a.Latitude != 52 {
		t.Fatalf("decoded %#v", a)
	}
	if !a.CampaignStart.Equal(time.Date(2025, 10, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("start %v", a.CampaignStart)
	}
}

func TestAgromanagement_Validate(t *testing.T) {
	base := Agromanagement{
		CampaignStart: time.Date(2025, 10, 1, 0, 0, 0, 0, time.UTC),
		CampaignEnd:   time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC),
		CropStartType: "sowing",
		CropEndType:   "maturity",
	}
	if err := base.Validate(); err != nil {
		t.Fatalf("valid rejected: %v", err)
	}

	a := base
	a.CropStartType = "transplant"
	if err := a.Validate(); err == nil {
		t.Fatalf("bad start type accepted")
	}
	a = base
	a.CropEndType = "whenever"
	if err := a.Validate(); err == nil {
		t.Fatalf("bad end type accepted")
	}
	a = base
	a.CampaignEnd = a.CampaignStart
	if err := a.Validate(); err == nil {
		t.Fatalf("empty window accepted")
	}
}
