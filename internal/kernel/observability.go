package kernel

import (
	"expvar"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"cropcore/pkg/sim"
)

// MetricsRecorder receives run-level counters from the engine. Implementations
// must be cheap; the recorder is called once per simulated day and per signal.
type MetricsRecorder interface {
	CountDay()
	CountSignal(name string)
	CountViolation(check string, severity sim.Severity)
	ObserveRunDuration(d time.Duration)
}

// NopMetrics discards all observations.
type NopMetrics struct{}

func (NopMetrics) CountDay()                           {}
func (NopMetrics) CountSignal(string)                  {}
func (NopMetrics) CountViolation(string, sim.Severity) {}
func (NopMetrics) ObserveRunDuration(time.Duration)    {}

var expvarSeq uint64

// ExpvarMetrics publishes run counters via expvar for deployments that prefer
// process-local metrics without external dependencies.
type ExpvarMetrics struct {
	name string
	mu   sync.Mutex

	days       int64
	signals    map[string]int64
	violations map[string]int64
	durationMS float64
}

// ExpvarSnapshot is a read-only view of the recorded counters.
type ExpvarSnapshot struct {
	Days           int64            `json:"days_total"`
	Signals        map[string]int64 `json:"signals_total"`
	Violations     map[string]int64 `json:"violations_total"`
	RunDurationsMS float64          `json:"run_durations_ms_total"`
	RecordedAt     time.Time        `json:"recorded_at"`
}

// NewExpvarMetrics constructs an expvar-backed recorder published under the
// supplied name. When name is empty a unique identifier is generated.
func NewExpvarMetrics(name string) *ExpvarMetrics {
	if name == "" {
		id := atomic.AddUint64(&expvarSeq, 1)
		name = fmt.Sprintf("cropcore_run_metrics_%d", id)
	}
	m := &ExpvarMetrics{
		name:       name,
		signals:    make(map[string]int64),
		violations: make(map[string]int64),
	}
	expvar.Publish(name, expvar.Func(func() any {
		return m.Snapshot()
	}))
	return m
}

// Name returns the expvar export name.
func (m *ExpvarMetrics) Name() string { return m.name }

func (m *ExpvarMetrics) CountDay() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.days++
}

func (m *ExpvarMetrics) CountSignal(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.signals[name]++
}

func (m *ExpvarMetrics) CountViolation(check string, severity sim.Severity) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.violations[check+":"+string(severity)]++
}

func (m *ExpvarMetrics) ObserveRunDuration(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.durationMS += float64(d.Milliseconds())
}

// Snapshot returns an immutable copy of the counters.
func (m *ExpvarMetrics) Snapshot() ExpvarSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	signals := make(map[string]int64, len(m.signals))
	for k, v := range m.signals {
		signals[k] = v
	}
	violations := make(map[string]int64, len(m.violations))
	for k, v := range m.violations {
		violations[k] = v
	}
	return ExpvarSnapshot{
		Days:           m.days,
		Signals:        signals,
		Violations:     violations,
		RunDurationsMS: m.durationMS,
		RecordedAt:     time.Now().UTC(),
	}
}

// PrometheusMetrics exports run counters through a prometheus registry.
type PrometheusMetrics struct {
	days       prometheus.Counter
	signals    *prometheus.CounterVec
	violations *prometheus.CounterVec
	duration   prometheus.Histogram
}

// NewPrometheusMetrics constructs and registers the collectors on reg.
func NewPrometheusMetrics(reg prometheus.Registerer) (*PrometheusMetrics, error) {
	m := &PrometheusMetrics{
		days: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cropcore_simulated_days_total",
			Help: "Number of simulated days completed.",
		}),
		signals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cropcore_signals_total",
			Help: "Lifecycle signals published, by signal name.",
		}, []string{"signal"}),
		violations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cropcore_balance_violations_total",
			Help: "Conservation-balance violations, by check and severity.",
		}, []string{"check", "severity"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "cropcore_run_duration_seconds",
			Help:    "Wall-clock duration of completed runs.",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
		}),
	}
	for _, c := range []prometheus.Collector{m.days, m.signals, m.violations, m.duration} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *PrometheusMetrics) CountDay() { m.days.Inc() }

func (m *PrometheusMetrics) CountSignal(name string) {
	m.signals.WithLabelValues(name).Inc()
}

func (m *PrometheusMetrics) CountViolation(check string, severity sim.Severity) {
	m.violations.WithLabelValues(check, string(severity)).Inc()
}

func (m *PrometheusMetrics) ObserveRunDuration(d time.Duration) {
	m.duration.Observe(d.Seconds())
}
