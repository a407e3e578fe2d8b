// Package params supplies the flat name→value and name→response-curve mapping
// components read once at construction. Values are immutable for the run;
// a missing parameter or malformed curve is a construction-time error.
package params

import (
	"fmt"
	"sort"

	"cropcore/pkg/sim"
)

// ErrMissingParameter identifies the absent name.
type ErrMissingParameter struct {
	Name string
}

func (e ErrMissingParameter) Error() string {
	return fmt.Sprintf("missing required parameter %q", e.Name)
}

// Provider holds scalar parameters and piecewise-linear response curves.
type Provider struct {
	scalars map[string]float64
	curves  map[string]*sim.Curve
}

// New builds a provider from scalar values and flat x,y curve tables.
func New(scalars map[string]float64, curveTables map[string][]float64) (*Provider, error) {
	p := &Provider{
		scalars: make(map[string]float64, len(scalars)),
		curves:  make(map[string]*sim.Curve, len(curveTables)),
	}
	for name, v := range scalars {
		p.scalars[name] = v
	}
	for name, table := range curveTables {
		c, err := sim.NewCurve(table)
		if err != nil {
			return nil, fmt.Errorf("parameter %q: %w", name, err)
		}
		p.curves[name] = c
	}
	return p, nil
}

// Float returns a scalar parameter.
func (p *Provider) Float(name string) (float64, error) {
	v, ok := p.scalars[name]
	if !ok {
		return 0, ErrMissingParameter{Name: name}
	}
	return v, nil
}

// Curve returns a response-curve parameter.
func (p *Provider) Curve(name string) (*sim.Curve, error) {
	c, ok := p.curves[name]
	if !ok {
		return nil, ErrMissingParameter{Name: name}
	}
	return c, nil
}

// Has reports whether a scalar or curve with the given name exists.
func (p *Provider) Has(name string) bool {
	if _, ok := p.scalars[name]; ok {
		return true
	}
	_, ok := p.curves[name]
	return ok
}

// Names lists all parameter names, sorted, for diagnostics.
func (p *Provider) Names() []string {
	names := make([]string, 0, len(p.scalars)+len(p.curves))
	for n := range p.scalars {
		names = append(names, n)
	}
	for n := range p.curves {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Fetcher collects parameter lookups and reports the first failure once, so
// component constructors can read a dozen parameters without per-call error
// plumbing.
type Fetcher struct {
	p   *Provider
	err error
}

// NewFetcher wraps a provider.
func NewFetcher(p *Provider) *Fetcher {
	return &Fetcher{p: p}
}

// Float returns the named scalar, or 0 after the first recorded failure.
func (f *Fetcher) Float(name string) float64 {
	if f.err != nil {
		return 0
	}
	v, err := f.p.Float(name)
	if err != nil {
		f.err = err
	}
	return v
}

// Curve returns the named curve, or nil after the first recorded failure.
func (f *Fetcher) Curve(name string) *sim.Curve {
	if f.err != nil {
		return nil
	}
	c, err := f.p.Curve(name)
	if err != nil {
		f.err = err
	}
	return c
}

// Err returns the first lookup failure, if any.
func (f *Fetcher) Err() error { return f.err }
