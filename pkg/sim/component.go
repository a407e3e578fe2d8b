package sim

import "time"

// Component is the protocol every biophysical sub-model implements. A
// simulated day is driven in two phases: the engine calls CalcRates on the
// whole component tree in dependency order, then Integrate on the same tree.
// No state may change during CalcRates and no rate may be written during
// Integrate; the engine never interleaves the phases.
type Component interface {
	// Name identifies the component and is used as the owner id for every
	// variable it registers on the exchange.
	Name() string

	// CalcRates computes and writes this day's rate variables from the state
	// as it stood at the end of the previous day. Every declared rate must be
	// written exactly once per call.
	CalcRates(day time.Time, drv *Drivers) error

	// Integrate consumes the rates written this day and produces new state
	// values. delt is the timestep in days, normally 1.
	Integrate(day time.Time, delt float64) error

	// Touch re-publishes unchanged state so downstream readers of a dormant
	// component do not observe missing values. It must not alter any value
	// or advance any counter.
	Touch(day time.Time) error

	// Finalize runs once after the last simulated day and may compute derived
	// summary values. It must not further mutate published state.
	Finalize(day time.Time) error
}

// Finisher is implemented by components that expose a summary record after
// Finalize has run.
type Finisher interface {
	Summary() map[string]float64
}
