package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Fan-out step outcomes.
const (
	OutcomeDone    = "done"
	OutcomeSkipped = "skipped"
	OutcomeFailed  = "failed"
)

// Registration window close triggers.
const (
	TriggerManual = "manual"
	TriggerSweep  = "sweep"
)

var durationBuckets = []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5}

// Metrics holds every Prometheus collector the service exports. All methods
// are safe on a nil receiver so services can run without metrics in tests.
type Metrics struct {
	FanOutSteps        *prometheus.CounterVec
	PartialFanOuts     *prometheus.CounterVec
	UpdateConflicts    *prometheus.CounterVec
	WindowsClosed      *prometheus.CounterVec
	NotesMerged        prometheus.Counter
	OperationDuration  *prometheus.HistogramVec
	RankingCacheLookup *prometheus.CounterVec
}

// New registers the collectors with the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry registers the collectors with reg. Tests pass a fresh
// prometheus.NewRegistry() to avoid duplicate registration.
func NewWithRegistry(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		FanOutSteps: f.NewCounterVec(prometheus.CounterOpts{
			Name: "kindergarten_fanout_steps_total",
			Help: "Fan-out steps executed, by operation, step, and outcome",
		}, []string{"operation", "step", "outcome"}),
		PartialFanOuts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "kindergarten_partial_fanouts_total",
			Help: "Operations that left replicas partially updated",
		}, []string{"operation"}),
		UpdateConflicts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "kindergarten_update_conflicts_total",
			Help: "Version-guarded writes that lost a race and were retried",
		}, []string{"collection"}),
		WindowsClosed: f.NewCounterVec(prometheus.CounterOpts{
			Name: "kindergarten_registration_windows_closed_total",
			Help: "Registration windows closed, by trigger",
		}, []string{"trigger"}),
		NotesMerged: f.NewCounter(prometheus.CounterOpts{
			Name: "kindergarten_notes_merged_total",
			Help: "Note merge operations applied to a replica",
		}),
		OperationDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "kindergarten_operation_duration_seconds",
			Help:    "Duration of service operations",
			Buckets: durationBuckets,
		}, []string{"operation"}),
		RankingCacheLookup: f.NewCounterVec(prometheus.CounterOpts{
			Name: "kindergarten_ranking_cache_lookups_total",
			Help: "Ranking cache lookups by result",
		}, []string{"result"}),
	}
}

// IncrementFanOutStep records one executed fan-out step.
func (m *Metrics) IncrementFanOutStep(operation, step, outcome string) {
	if m == nil {
		return
	}
	m.FanOutSteps.WithLabelValues(operation, step, outcome).Inc()
}

// IncrementPartialFanOut records an operation that ended partially applied.
func (m *Metrics) IncrementPartialFanOut(operation string) {
	if m == nil {
		return
	}
	m.PartialFanOuts.WithLabelValues(operation).Inc()
}

// IncrementUpdateConflict records one lost optimistic-concurrency race.
func (m *Metrics) IncrementUpdateConflict(collection string) {
	if m == nil {
		return
	}
	m.UpdateConflicts.WithLabelValues(collection).Inc()
}

// IncrementWindowClosed records a registration window closing.
func (m *Metrics) IncrementWindowClosed(trigger string) {
	if m == nil {
		return
	}
	m.WindowsClosed.WithLabelValues(trigger).Inc()
}

// IncrementNotesMerged records a note merge written to one replica.
func (m *Metrics) IncrementNotesMerged() {
	if m == nil {
		return
	}
	m.NotesMerged.Inc()
}

// IncrementRankingCache records a ranking cache hit or miss.
func (m *Metrics) IncrementRankingCache(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.RankingCacheLookup.WithLabelValues(result).Inc()
}

// ObserveOperation records the duration of operation.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveOperation(operation string, start time.Time) {
	if m == nil {
		return
	}
	m.OperationDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}
