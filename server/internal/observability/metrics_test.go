package observability

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMetricsSnapshot(t *testing.T) {
	m := NewMetrics(10)

	m.Record("/api/v1/pipeline/message", 200, 10*time.Millisecond)
	m.Record("/api/v1/pipeline/message", 200, 30*time.Millisecond)
	m.Record("/api/v1/pipeline/message", 502, 100*time.Millisecond)
	m.Record("/healthz", 200, 1*time.Millisecond)

	snap := m.Snapshot()
	require.Equal(t, int64(4), snap.TotalRequests)
	require.Equal(t, int64(1), snap.ErrorCount)
	require.InDelta(t, 0.75, snap.SuccessRate, 0.001)

	pipeline := snap.Routes["/api/v1/pipeline/message"]
	require.Equal(t, int64(3), pipeline.Count)
	require.Equal(t, int64(1), pipeline.ErrorCount)

	health := snap.Routes["/healthz"]
	require.Equal(t, int64(1), health.Count)
	require.Equal(t, int64(0), health.ErrorCount)
}

func TestMetricsClientErrorsAreNotFailures(t *testing.T) {
	m := NewMetrics(10)
	m.Record("/api/v1/records", 400, time.Millisecond)

	snap := m.Snapshot()
	require.Equal(t, int64(1), snap.TotalRequests)
	require.Equal(t, int64(0), snap.ErrorCount)
	require.Equal(t, float64(1), snap.SuccessRate)
}

func TestMetricsDurationWindowIsBounded(t *testing.T) {
	m := NewMetrics(5)
	for i := 0; i < 20; i++ {
		m.Record("/x", 200, time.Duration(i)*time.Millisecond)
	}

	snap := m.Snapshot()
	// Only the last 5 latencies (15..19ms) remain in the window.
	require.GreaterOrEqual(t, snap.P50LatencyMs, int64(15))
	require.Equal(t, int64(20), snap.Routes["/x"].Count)
}
