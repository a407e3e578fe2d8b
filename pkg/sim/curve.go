package sim

import "fmt"

// Curve is a piecewise-linear response function of one driving variable
// (development stage, temperature, ...). X values must be strictly ascending;
// evaluation clamps to the first/last Y value outside the table range.
type Curve struct {
	x      []float64
	y      []float64
	slopes []float64
}

// NewCurve builds a response curve from a flat x1,y1,x2,y2,... table, the
// layout crop parameter files use. At least two points are required.
func NewCurve(table []float64) (*Curve, error) {
	if len(table) < 4 || len(table)%2 != 0 {
		return nil, fmt.Errorf("response curve needs an even number of values (>= 4), got %d", len(table))
	}
	n := len(table) / 2
	c := &Curve{
		x: make([]float64, n),
		y: make([]float64, n),
	}
	for i := 0; i < n; i++ {
		c.x[i] = table[2*i]
		c.y[i] = table[2*i+1]
		if i > 0 && c.x[i] <= c.x[i-1] {
			return nil, fmt.Errorf("response curve x values not strictly ascending at index %d: %g <= %g", i, c.x[i], c.x[i-1])
		}
	}
	c.slopes = make([]float64, n-1)
	for i := 0; i < n-1; i++ {
		c.slopes[i] = (c.y[i+1] - c.y[i]) / (c.x[i+1] - c.x[i])
	}
	return c, nil
}

// MustCurve is a construction helper for fixed tables in tests and defaults.
func MustCurve(table ...float64) *Curve {
	c, err := NewCurve(table)
	if err != nil {
		panic(err)
	}
	return c
}

// At evaluates the curve at x.
func (c *Curve) At(x float64) float64 {
	if x <= c.x[0] {
		return c.y[0]
	}
	last := len(c.x) - 1
	if x >= c.x[last] {
		return c.y[last]
	}
	i := 0
	for c.x[i+1] < x {
		i++
	}
	return c.y[i] + (x-c.x[i])*c.slopes[i]
}
