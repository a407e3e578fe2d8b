package kernel

import (
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"cropcore/pkg/sim"
)

// DriverProvider supplies the per-day weather/forcing record. The engine never
// mutates the returned record.
type DriverProvider interface {
	Drivers(day time.Time) (*sim.Drivers, error)
}

// OutputRow is one day's snapshot of the configured output variables.
type OutputRow struct {
	Day    time.Time          `json:"day"`
	Values map[string]float64 `json:"values"`
}

// Summary is the finalization output of a run: values that are undefined
// during daily stepping and only valid after Finalize.
type Summary struct {
	StartDay     time.Time          `json:"start_day"`
	LastDay      time.Time          `json:"last_day"`
	DaysRun      int                `json:"days_run"`
	FinishDay    *time.Time         `json:"finish_day,omitempty"`
	FinishReason string             `json:"finish_reason,omitempty"`
	Values       map[string]float64 `json:"values"`
}

// Config wires an engine. Crop is required; Soil is optional and keeps
// stepping after the crop cycle ends.
type Config struct {
	Exchange *Exchange
	Bus      *Bus
	Weather  DriverProvider
	Crop     sim.Component
	Soil     sim.Component
	Start    time.Time
	End      time.Time
	// OutputVars are published exchange names snapshotted after every
	// integration phase.
	OutputVars []string
	Logger     zerolog.Logger
	Metrics    MetricsRecorder
}

// Engine drives the component tree through the daily two-phase protocol:
// all CalcRates calls across the tree complete, in dependency order, before
// any Integrate call begins. It is single-threaded; the phase barrier is
// enforced by construction, not by locking.
type Engine struct {
	exchange *Exchange
	bus      *Bus
	weather  DriverProvider
	crop     sim.Component
	soil     sim.Component
	log      zerolog.Logger
	metrics  MetricsRecorder

	start    time.Time
	end      time.Time
	day      time.Time
	dayIndex int

	cropFinished bool
	cropDeleted  bool
	finishDay    time.Time
	finishReason string
	terminated   bool
	finalized    bool

	outputVars []string
	outputs    []OutputRow
}

// New constructs an engine and registers its lifecycle signal handlers.
func New(cfg Config) (*Engine, error) {
	if cfg.Exchange == nil || cfg.Bus == nil {
		return nil, fmt.Errorf("engine requires an exchange and a bus")
	}
	if cfg.Crop == nil {
		return nil, fmt.Errorf("engine requires a crop component")
	}
	if cfg.Weather == nil {
		return nil, fmt.Errorf("engine requires a driver provider")
	}
	if !cfg.End.After(cfg.Start) {
		return nil, fmt.Errorf("end day %s not after start day %s", cfg.End.Format("2006-01-02"), cfg.Start.Format("2006-01-02"))
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = NopMetrics{}
	}
	e := &Engine{
		exchange:   cfg.Exchange,
		bus:        cfg.Bus,
		weather:    cfg.Weather,
		crop:       cfg.Crop,
		soil:       cfg.Soil,
		log:        cfg.Logger,
		metrics:    metrics,
		start:      cfg.Start,
		end:        cfg.End,
		day:        cfg.Start,
		outputVars: append([]string(nil), cfg.OutputVars...),
	}
	if err := cfg.Bus.Subscribe(sim.SignalCropFinish, e.onCropFinish); err != nil {
		return nil, err
	}
	if err := cfg.Bus.Subscribe(sim.SignalTerminate, e.onTerminate); err != nil {
		return nil, err
	}
	return e, nil
}

// onCropFinish records the first finish request; later requests (a second
// detector firing the same day, or any day after) are accepted silently.
func (e *Engine) onCropFinish(payload any) {
	e.metrics.CountSignal(sim.SignalCropFinish)
	fin, ok := payload.(sim.CropFinish)
	if !ok {
		return
	}
	if e.cropFinished {
		e.log.Debug().Str("reason", fin.Reason).Msg("redundant crop finish request ignored")
		return
	}
	e.cropFinished = true
	e.finishDay = fin.Day
	e.finishReason = fin.Reason
	e.cropDeleted = fin.Delete
	e.log.Info().Time("day", fin.Day).Str("reason", fin.Reason).Msg("crop cycle finished")
}

func (e *Engine) onTerminate(payload any) {
	e.metrics.CountSignal(sim.SignalTerminate)
	e.terminated = true
}

// Step runs one simulated day: rate phase over the whole tree in dependency
// order, then integration phase over the same tree. Errors abort the run; no
// partial-day retry is attempted.
func (e *Engine) Step() error {
	if e.terminated || e.finalized {
		return fmt.Errorf("step after run end on %s", e.day.Format("2006-01-02"))
	}

	drv, err := e.weather.Drivers(e.day)
	if err != nil {
		return fmt.Errorf("drivers for %s: %w", e.day.Format("2006-01-02"), err)
	}

	e.exchange.BeginDay(e.dayIndex)

	cropActive := !e.cropFinished
	if cropActive {
		if err := e.crop.CalcRates(e.day, drv); err != nil {
			return e.stepError("rate phase", e.crop, err)
		}
	}
	if e.soil != nil {
		if err := e.soil.CalcRates(e.day, drv); err != nil {
			return e.stepError("rate phase", e.soil, err)
		}
	}

	// The crop may have requested its finish during the rate phase (frost
	// kill); its rates for this day are still consistent, so the day is
	// completed before the subtree stops.
	if cropActive {
		if err := e.crop.Integrate(e.day, 1.0); err != nil {
			return e.stepError("integration phase", e.crop, err)
		}
	} else if !e.cropDeleted {
		if err := e.crop.Touch(e.day); err != nil {
			return e.stepError("touch", e.crop, err)
		}
	}
	if e.soil != nil {
		if err := e.soil.Integrate(e.day, 1.0); err != nil {
			return e.stepError("integration phase", e.soil, err)
		}
	}

	if cropActive && e.cropFinished {
		if err := e.crop.Finalize(e.finishDay); err != nil {
			return fmt.Errorf("finalize crop: %w", err)
		}
	}

	if err := e.collectOutput(); err != nil {
		return err
	}

	e.metrics.CountDay()
	e.log.Debug().Time("day", e.day).Msg("day completed")
	e.day = e.day.AddDate(0, 0, 1)
	e.dayIndex++
	return nil
}

func (e *Engine) stepError(phase string, c sim.Component, err error) error {
	var balErr sim.BalanceError
	if errors.As(err, &balErr) {
		e.metrics.CountViolation(balErr.Violation.Check, balErr.Violation.Severity)
	}
	return fmt.Errorf("%s of %s on %s: %w", phase, c.Name(), e.day.Format("2006-01-02"), err)
}

func (e *Engine) collectOutput() error {
	if len(e.outputVars) == 0 {
		return nil
	}
	row := OutputRow{Day: e.day, Values: make(map[string]float64, len(e.outputVars))}
	for _, name := range e.outputVars {
		// A dormant or finished subtree leaves its rates stale; the snapshot
		// records only what is currently readable.
		if !e.exchange.Has(name) {
			continue
		}
		v, err := e.exchange.Read(name)
		if err != nil {
			return fmt.Errorf("collect output %q: %w", name, err)
		}
		row.Values[name] = v
	}
	e.outputs = append(e.outputs, row)
	return nil
}

// Run steps the simulation until the end day, a terminate signal, or a crop
// finish with subtree deletion and no soil component left to step.
func (e *Engine) Run() (Summary, error) {
	started := time.Now()
	for !e.terminated && !e.day.After(e.end) {
		if e.cropFinished && e.soil == nil {
			break
		}
		if err := e.Step(); err != nil {
			return Summary{}, err
		}
	}
	e.metrics.ObserveRunDuration(time.Since(started))
	return e.finalizeRun()
}

func (e *Engine) finalizeRun() (Summary, error) {
	lastDay := e.day.AddDate(0, 0, -1)
	if !e.cropFinished {
		if err := e.crop.Finalize(lastDay); err != nil {
			return Summary{}, fmt.Errorf("finalize crop: %w", err)
		}
	}
	if e.soil != nil {
		if err := e.soil.Finalize(lastDay); err != nil {
			return Summary{}, fmt.Errorf("finalize soil: %w", err)
		}
	}
	e.finalized = true

	s := Summary{
		StartDay: e.start,
		LastDay:  lastDay,
		DaysRun:  e.dayIndex,
		Values:   make(map[string]float64),
	}
	if e.cropFinished {
		day := e.finishDay
		s.FinishDay = &day
		s.FinishReason = e.finishReason
	}
	for _, c := range []sim.Component{e.crop, e.soil} {
		if f, ok := c.(sim.Finisher); ok {
			for k, v := range f.Summary() {
				s.Values[k] = v
			}
		}
	}
	return s, nil
}

// Outputs returns the daily snapshots collected so far.
func (e *Engine) Outputs() []OutputRow {
	out := make([]OutputRow, len(e.outputs))
	copy(out, e.outputs)
	return out
}

// Day returns the next day to be simulated.
func (e *Engine) Day() time.Time { return e.day }

// CropFinished reports whether the crop cycle has ended, with the recorded
// day and reason.
func (e *Engine) CropFinished() (bool, time.Time, string) {
	return e.cropFinished, e.finishDay, e.finishReason
}
