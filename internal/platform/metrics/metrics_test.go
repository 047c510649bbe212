package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestNilMetricsAreNoOps(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.IncrementFanOutStep("register", "parent", OutcomeDone)
		m.IncrementPartialFanOut("register")
		m.IncrementUpdateConflict("Kindergartens")
		m.IncrementWindowClosed(TriggerSweep)
		m.IncrementNotesMerged()
		m.IncrementRankingCache(true)
		m.ObserveOperation("register", time.Now())
	})
}

func TestCounters(t *testing.T) {
	m := NewWithRegistry(prometheus.NewRegistry())

	m.IncrementFanOutStep("remove", "child", OutcomeFailed)
	m.IncrementFanOutStep("remove", "child", OutcomeFailed)
	m.IncrementWindowClosed(TriggerSweep)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.FanOutSteps.WithLabelValues("remove", "child", OutcomeFailed)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.WindowsClosed.WithLabelValues(TriggerSweep)))
	assert.Zero(t, testutil.ToFloat64(m.WindowsClosed.WithLabelValues(TriggerManual)))
}
