package weather

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"cropcore/pkg/sim"
)

const sampleCSV = `DAY,TMIN,TMAX,RAD,RAIN,ET0,E0,ES0,SNOWDEPTH
2025-04-01,4.2,14.8,14500000,0.12,0.31,0.35,0.33,0
2025-04-02,5.0,16.0,16200000,0.0,0.34,0.38,0.36,0
`

func TestCSVProvider_Parse(t *testing.T) {
	p, err := ParseCSV(strings.NewReader(sampleCSV), 52)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if p.Days() != 2 {
		t.Fatalf("days = %d", p.Days())
	}

	d, err := p.Drivers(time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("drivers: %v", err)
	}
	if d.TMin != 4.2 || d.TMax != 14.8 || d.Rad != 14500000 {
		t.Fatalf("record %#v", d)
	}
	if d.Temp != (4.2+14.8)/2 {
		t.Fatalf("mean temp = %g", d.Temp)
	}
	if d.Latitude != 52 {
		t.Fatalf("latitude = %g", d.Latitude)
	}

	// time-of-day on the lookup key is irrelevant
	if _, err := p.Drivers(time.Date(2025, 4, 2, 13, 30, 0, 0, time.UTC)); err != nil {
		t.Fatalf("midday lookup: %v", err)
	}
}

func TestCSVProvider_MissingDay(t *testing.T) {
	p, err := ParseCSV(strings.NewReader(sampleCSV), 52)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	_, err = p.Drivers(time.Date(2025, 4, 3, 0, 0, 0, 0, time.UTC))
	var noWeather ErrNoWeather
	if !errors.As(err, &noWeather) {
		t.Fatalf("expected ErrNoWeather, got %v", err)
	}
}

func TestCSVProvider_MissingColumn(t *testing.T) {
	if _, err := ParseCSV(strings.NewReader("DAY,TMIN,TMAX\n2025-04-01,1,2\n"), 52); err == nil {
		t.Fatalf("header without radiation accepted")
	}
}

func TestCSVProvider_BadRow(t *testing.T) {
	bad := "DAY,TMIN,TMAX,RAD,RAIN,ET0,E0,ES0\nnot-a-date,1,2,3,4,5,6,7\n"
	if _, err := ParseCSV(strings.NewReader(bad), 52); err == nil {
		t.Fatalf("bad date accepted")
	}
}

// countingProvider records how often the upstream is consulted.
type countingProvider struct {
	inner Provider
	calls int
}

func (c *countingProvider) Drivers(day time.Time) (*sim.Drivers, error) {
	c.calls++
	return c.inner.Drivers(day)
}

func TestSQLiteCache_ReadThrough(t *testing.T) {
	inner, err := ParseCSV(strings.NewReader(sampleCSV), 52)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	upstream := &countingProvider{inner: inner}

	path := filepath.Join(t.TempDir(), "weather.db")
	cache, err := NewSQLiteCache(path, upstream)
	if err != nil {
		t.Fatalf("open cache: %v", err)
	}
	defer func() { _ = cache.Close() }()

	day := time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)
	first, err := cache.Drivers(day)
	if err != nil {
		t.Fatalf("first read: %v", err)
	}
	second, err := cache.Drivers(day)
	if err != nil {
		t.Fatalf("second read: %v", err)
	}
	if upstream.calls != 1 {
		t.Fatalf("upstream consulted %d times, want 1", upstream.calls)
	}
	if first.TMin != second.TMin || !first.Day.Equal(second.Day) {
		t.Fatalf("cache round trip changed the record: %#v vs %#v", first, second)
	}

	// misses propagate the upstream error and are not cached
	if _, err := cache.Drivers(time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)); err == nil {
		t.Fatalf("expected upstream miss to propagate")
	}
}
