package kernel

import (
	"math"
	"strconv"
	"time"

	"cropcore/pkg/sim"
)

// Balance is a stateless conservation check for one tracked substance:
// initial + inflows - pools - losses must vanish within tolerance. A blocking
// violation is evidence of a bug in a flow equation somewhere in the
// component tree.
type Balance struct {
	Name      string
	Tolerance float64
	// Relative scales the checksum by the total inflow before comparing
	// against Tolerance. The carbon balance uses this; nutrient balances use
	// an absolute tolerance in mass units.
	Relative bool
	Severity sim.Severity
}

// Check computes the checksum and returns a Result carrying every operand
// when it exceeds tolerance. An empty Result means the pool is consistent.
func (b Balance) Check(day time.Time, initial float64, inflows, pools, losses []float64) sim.Result {
	var in, pool, loss float64
	operands := map[string]float64{"initial": initial}
	for i, v := range inflows {
		in += v
		operands[operandName("inflow", i)] = v
	}
	for i, v := range pools {
		pool += v
		operands[operandName("pool", i)] = v
	}
	for i, v := range losses {
		loss += v
		operands[operandName("loss", i)] = v
	}

	checksum := initial + in - pool - loss
	if b.Relative {
		checksum /= math.Max(1e-4, initial+in)
	}
	if math.Abs(checksum) < b.Tolerance {
		return sim.Result{}
	}

	severity := b.Severity
	if severity == "" {
		severity = sim.SeverityBlock
	}
	return sim.Result{Violations: []sim.Violation{{
		Check:    b.Name,
		Severity: severity,
		Day:      day,
		Checksum: checksum,
		Operands: operands,
	}}}
}

// Verify runs Check and converts a blocking violation into a BalanceError.
// Warn-level violations are returned in the Result for the caller to log.
func (b Balance) Verify(day time.Time, initial float64, inflows, pools, losses []float64) (sim.Result, error) {
	res := b.Check(day, initial, inflows, pools, losses)
	if res.HasBlocking() {
		return res, sim.BalanceError{Violation: res.Violations[0]}
	}
	return res, nil
}

func operandName(prefix string, i int) string {
	return prefix + "_" + strconv.Itoa(i)
}
