package kernel

import "fmt"

// Kind classifies a variable record on the exchange.
type Kind string

const (
	// KindParameter marks a value immutable for the run.
	KindParameter Kind = "parameter"
	// KindRate marks a per-day flow, rewritten every rate phase and stale
	// outside it.
	KindRate Kind = "rate"
	// KindState marks persistent model memory, mutated only during the
	// integration phase.
	KindState Kind = "state"
)

// ErrDuplicateRegistration is returned when a second owner registers an
// already-owned name.
type ErrDuplicateRegistration struct {
	Name  string
	Owner string
	Other string
}

func (e ErrDuplicateRegistration) Error() string {
	return fmt.Sprintf("variable %q already registered by %q, rejected for %q", e.Name, e.Other, e.Owner)
}

// ErrNotOwner is returned when a writer does not own the record.
type ErrNotOwner struct {
	Name   string
	Owner  string
	Writer string
}

func (e ErrNotOwner) Error() string {
	return fmt.Sprintf("variable %q owned by %q, write by %q denied", e.Name, e.Owner, e.Writer)
}

// ErrUnknownVariable is returned when a name was never registered or never
// published.
type ErrUnknownVariable struct {
	Name string
}

func (e ErrUnknownVariable) Error() string {
	return fmt.Sprintf("unknown variable %q", e.Name)
}

// ErrStaleRate is returned when a rate is read before its writer ran during
// the current day's rate phase. It indicates an ordering bug in the component
// tree, not a recoverable condition.
type ErrStaleRate struct {
	Name  string
	Owner string
	Day   int
}

func (e ErrStaleRate) Error() string {
	return fmt.Sprintf("rate %q (owner %q) not written on day %d", e.Name, e.Owner, e.Day)
}

type record struct {
	owner     string
	kind      Kind
	value     float64
	published bool
	written   bool // value assigned at least once
	fresh     bool // rate written during the current day's rate phase
	lastDay   int
}

// Exchange is the shared variable registry: a single simulation run scoped
// blackboard mapping a name to its current value, owner and kind. At most one
// owner may ever write a given name; reads of published names are
// unrestricted. Rate-kind records become stale at the start of every day and
// must be rewritten before they can be read again.
type Exchange struct {
	records map[string]*record
	day     int
}

// NewExchange constructs an empty exchange.
func NewExchange() *Exchange {
	return &Exchange{records: make(map[string]*record)}
}

// Register claims a name for owner. Registration fails if the name is held by
// a different owner; re-registering an own name is also rejected to surface
// double-construction bugs early.
func (x *Exchange) Register(owner, name string, kind Kind, publish bool) error {
	if existing, ok := x.records[name]; ok {
		return ErrDuplicateRegistration{Name: name, Owner: owner, Other: existing.owner}
	}
	x.records[name] = &record{owner: owner, kind: kind, published: publish}
	return nil
}

// Write assigns a value to an owned record and stamps the current day.
func (x *Exchange) Write(owner, name string, value float64) error {
	rec, ok := x.records[name]
	if !ok {
		return ErrUnknownVariable{Name: name}
	}
	if rec.owner != owner {
		return ErrNotOwner{Name: name, Owner: rec.owner, Writer: owner}
	}
	rec.value = value
	rec.written = true
	rec.lastDay = x.day
	if rec.kind == KindRate {
		rec.fresh = true
	}
	return nil
}

// Read returns the current value of a published name. Reading a rate that has
// not been written since the start of the current day's rate phase is an
// error.
func (x *Exchange) Read(name string) (float64, error) {
	rec, ok := x.records[name]
	if !ok || !rec.published {
		return 0, ErrUnknownVariable{Name: name}
	}
	if !rec.written {
		return 0, ErrUnknownVariable{Name: name}
	}
	if rec.kind == KindRate && !rec.fresh {
		return 0, ErrStaleRate{Name: name, Owner: rec.owner, Day: x.day}
	}
	return rec.value, nil
}

// Has reports whether a published value is currently readable. Rates count
// only when fresh; optional upstream components are probed this way.
func (x *Exchange) Has(name string) bool {
	rec, ok := x.records[name]
	if !ok || !rec.published || !rec.written {
		return false
	}
	if rec.kind == KindRate && !rec.fresh {
		return false
	}
	return true
}

// BeginDay advances the exchange to a new simulated day and marks every
// rate-kind record stale. It must run once, before any component's rate phase.
func (x *Exchange) BeginDay(day int) {
	x.day = day
	for _, rec := range x.records {
		if rec.kind == KindRate {
			rec.fresh = false
		}
	}
}

// Owner returns the owner of a registered name, or "" when unregistered.
func (x *Exchange) Owner(name string) string {
	if rec, ok := x.records[name]; ok {
		return rec.owner
	}
	return ""
}
