// Package observability collects in-process request metrics for the
// HTTP surface.
package observability

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Metrics aggregates request counts and latencies per route.
type Metrics struct {
	mu sync.Mutex

	requestTotal  atomic.Int64
	requestFailed atomic.Int64

	routeMetrics map[string]*routeMetrics

	// durations is a FIFO window of recent request latencies used for
	// percentile estimates.
	durations    []time.Duration
	maxDurations int
}

type routeMetrics struct {
	count         atomic.Int64
	errorCount    atomic.Int64
	totalDuration atomic.Int64 // milliseconds
}

// NewMetrics creates a metrics collector keeping the last maxDurations
// request latencies.
func NewMetrics(maxDurations int) *Metrics {
	if maxDurations <= 0 {
		maxDurations = 1000
	}
	return &Metrics{
		routeMetrics: make(map[string]*routeMetrics),
		durations:    make([]time.Duration, 0, maxDurations),
		maxDurations: maxDurations,
	}
}

// Record registers one finished request.
func (m *Metrics) Record(route string, status int, duration time.Duration) {
	m.requestTotal.Add(1)
	rm := m.getRouteMetrics(route)
	rm.count.Add(1)
	rm.totalDuration.Add(duration.Milliseconds())
	if status >= 500 {
		m.requestFailed.Add(1)
		rm.errorCount.Add(1)
	}

	m.mu.Lock()
	if len(m.durations) >= m.maxDurations {
		m.durations = m.durations[1:]
	}
	m.durations = append(m.durations, duration)
	m.mu.Unlock()
}

func (m *Metrics) getRouteMetrics(route string) *routeMetrics {
	m.mu.Lock()
	defer m.mu.Unlock()
	rm, ok := m.routeMetrics[route]
	if !ok {
		rm = &routeMetrics{}
		m.routeMetrics[route] = rm
	}
	return rm
}

// RouteSnapshot is the aggregated view of one route.
type RouteSnapshot struct {
	Count        int64 `json:"count"`
	ErrorCount   int64 `json:"error_count"`
	AvgLatencyMs int64 `json:"avg_latency_ms"`
}

// Snapshot is a point-in-time view of all collected metrics.
type Snapshot struct {
	TotalRequests int64                    `json:"total_requests"`
	ErrorCount    int64                    `json:"error_count"`
	SuccessRate   float64                  `json:"success_rate"`
	AvgLatencyMs  int64                    `json:"avg_latency_ms"`
	P50LatencyMs  int64                    `json:"p50_latency_ms"`
	P95LatencyMs  int64                    `json:"p95_latency_ms"`
	Routes        map[string]RouteSnapshot `json:"routes"`
}

// Snapshot aggregates the collected metrics.
func (m *Metrics) Snapshot() Snapshot {
	total := m.requestTotal.Load()
	failed := m.requestFailed.Load()

	snap := Snapshot{
		TotalRequests: total,
		ErrorCount:    failed,
		SuccessRate:   1,
		Routes:        make(map[string]RouteSnapshot),
	}
	if total > 0 {
		snap.SuccessRate = float64(total-failed) / float64(total)
	}

	m.mu.Lock()
	sorted := make([]time.Duration, len(m.durations))
	copy(sorted, m.durations)
	for route, rm := range m.routeMetrics {
		count := rm.count.Load()
		rs := RouteSnapshot{Count: count, ErrorCount: rm.errorCount.Load()}
		if count > 0 {
			rs.AvgLatencyMs = rm.totalDuration.Load() / count
		}
		snap.Routes[route] = rs
	}
	m.mu.Unlock()

	if len(sorted) > 0 {
		sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
		var sum time.Duration
		for _, d := range sorted {
			sum += d
		}
		snap.AvgLatencyMs = (sum / time.Duration(len(sorted))).Milliseconds()
		snap.P50LatencyMs = percentile(sorted, 50).Milliseconds()
		snap.P95LatencyMs = percentile(sorted, 95).Milliseconds()
	}
	return snap
}

// percentile expects sorted ascending.
func percentile(sorted []time.Duration, p int) time.Duration {
	idx := len(sorted) * p / 100
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
