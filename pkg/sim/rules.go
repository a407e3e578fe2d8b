package sim

import (
	"fmt"
	"strings"
	"time"
)

// Severity captures balance-check outcomes.
type Severity string

// Check severities determine whether a violation aborts the daily step or is
// only logged.
const (
	// SeverityBlock aborts the run; the violated invariant is a correctness
	// oracle and execution must not continue with an inconsistent pool.
	SeverityBlock Severity = "block"
	// SeverityWarn logs the violation but lets the step continue. Used for
	// checks where response-curve rounding produces small deviations.
	SeverityWarn Severity = "warn"
)

// Violation reports a failed balance check with every operand that entered
// the checksum, for diagnosis.
type Violation struct {
	Check    string
	Severity Severity
	Day      time.Time
	Checksum float64
	Operands map[string]float64
	Message  string
}

func (v Violation) String() string {
	parts := make([]string, 0, len(v.Operands))
	for name, val := range v.Operands {
		parts = append(parts, fmt.Sprintf("%s=%g", name, val))
	}
	return fmt.Sprintf("%s violated on %s: checksum %g (%s)",
		v.Check, v.Day.Format("2006-01-02"), v.Checksum, strings.Join(parts, ", "))
}

// Result aggregates violations from balance checks.
type Result struct {
	Violations []Violation
}

// Merge appends violations from another result.
func (r *Result) Merge(other Result) {
	if len(other.Violations) == 0 {
		return
	}
	r.Violations = append(r.Violations, other.Violations...)
}

// HasBlocking reports whether the result contains blocking violations.
func (r Result) HasBlocking() bool {
	for _, v := range r.Violations {
		if v.Severity == SeverityBlock {
			return true
		}
	}
	return false
}

// BalanceError is returned when a blocking conservation violation occurred.
// It indicates a bug in one of the flow equations, not a runtime condition.
type BalanceError struct {
	Violation Violation
}

func (e BalanceError) Error() string {
	return e.Violation.String()
}
