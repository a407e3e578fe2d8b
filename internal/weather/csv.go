package weather

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"cropcore/pkg/sim"
)

// CSVProvider loads a whole weather file at open time and serves records from
// memory. Expected header: DAY,TMIN,TMAX,RAD,RAIN,ET0,E0,ES0 with an optional
// SNOWDEPTH column; DAY is formatted YYYY-MM-DD.
type CSVProvider struct {
	latitude float64
	records  map[time.Time]*sim.Drivers
}

// OpenCSV reads the file at path.
func OpenCSV(path string, latitude float64) (*CSVProvider, error) {
	if path == "" {
		return nil, fmt.Errorf("csv weather path required")
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open weather csv: %w", err)
	}
	defer func() { _ = f.Close() }()
	return ParseCSV(f, latitude)
}

// ParseCSV decodes weather rows from r.
func ParseCSV(r io.Reader, latitude float64) (*CSVProvider, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read weather header: %w", err)
	}
	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.ToUpper(strings.TrimSpace(name))] = i
	}
	for _, required := range []string{"DAY", "TMIN", "TMAX", "RAD", "RAIN", "ET0", "E0", "ES0"} {
		if _, ok := cols[required]; !ok {
			return nil, fmt.Errorf("weather csv missing column %s", required)
		}
	}

	p := &CSVProvider{latitude: latitude, records: make(map[time.Time]*sim.Drivers)}
	line := 1
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read weather row: %w", err)
		}
		line++
		d, err := parseRow(row, cols, latitude)
		if err != nil {
			return nil, fmt.Errorf("weather csv line %d: %w", line, err)
		}
		p.records[d.Day] = d
	}
	return p, nil
}

func parseRow(row []string, cols map[string]int, latitude float64) (*sim.Drivers, error) {
	field := func(name string) (float64, error) {
		i, ok := cols[name]
		if !ok || i >= len(row) {
			return 0, nil
		}
		return strconv.ParseFloat(strings.TrimSpace(row[i]), 64)
	}

	day, err := time.Parse("2006-01-02", strings.TrimSpace(row[cols["DAY"]]))
	if err != nil {
		return nil, fmt.Errorf("parse DAY: %w", err)
	}
	d := &sim.Drivers{Day: day, Latitude: latitude}
	for name, dst := range map[string]*float64{
		"TMIN":      &d.TMin,
		"TMAX":      &d.TMax,
		"RAD":       &d.Rad,
		"RAIN":      &d.Rain,
		"ET0":       &d.ET0,
		"E0":        &d.E0,
		"ES0":       &d.ES0,
		"SNOWDEPTH": &d.SnowDepth,
	} {
		v, err := field(name)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", name, err)
		}
		*dst = v
	}
	d.Temp = (d.TMin + d.TMax) / 2.0
	return d, nil
}

// Drivers returns the record for day.
func (p *CSVProvider) Drivers(day time.Time) (*sim.Drivers, error) {
	key := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	d, ok := p.records[key]
	if !ok {
		return nil, ErrNoWeather{Day: day}
	}
	return d, nil
}

// Days returns the number of loaded records.
func (p *CSVProvider) Days() int { return len(p.records) }
