package app

import (
	"sync/atomic"
	"time"
)

// Metrics tracks session and rendering activity of a running host.
type Metrics struct {
	// Sessions
	resolveCount    atomic.Uint64
	resolveTotalNs  atomic.Int64
	resolveMaxNs    atomic.Int64
	resolveFailures atomic.Uint64
	sessionsClosed  atomic.Uint64

	// Preview rendering
	renderCount   atomic.Uint64
	renderTotalNs atomic.Int64

	startTime atomic.Int64
}

// NewMetrics creates a new metrics tracker.
func NewMetrics() *Metrics {
	m := &Metrics{}
	m.startTime.Store(time.Now().UnixNano())
	return m
}

// RecordResolve records a session that bound successfully.
func (m *Metrics) RecordResolve(duration time.Duration) {
	ns := duration.Nanoseconds()
	m.resolveCount.Add(1)
	m.resolveTotalNs.Add(ns)
	for {
		old := m.resolveMaxNs.Load()
		if ns <= old || m.resolveMaxNs.CompareAndSwap(old, ns) {
			return
		}
	}
}

// RecordResolveFailure records a document that could not be bound.
func (m *Metrics) RecordResolveFailure() {
	m.resolveFailures.Add(1)
}

// RecordSessionClosed records a disposed session.
func (m *Metrics) RecordSessionClosed() {
	m.sessionsClosed.Add(1)
}

// RecordRender records a preview render.
func (m *Metrics) RecordRender(duration time.Duration) {
	m.renderCount.Add(1)
	m.renderTotalNs.Add(duration.Nanoseconds())
}

// Snapshot returns a snapshot of current metrics.
func (m *Metrics) Snapshot() MetricsSnapshot {
	resolveCount := m.resolveCount.Load()
	renderCount := m.renderCount.Load()

	var avgResolveNs int64
	if resolveCount > 0 {
		avgResolveNs = m.resolveTotalNs.Load() / int64(resolveCount)
	}

	var avgRenderNs int64
	if renderCount > 0 {
		avgRenderNs = m.renderTotalNs.Load() / int64(renderCount)
	}

	return MetricsSnapshot{
		Uptime:          time.Since(time.Unix(0, m.startTime.Load())),
		SessionsOpened:  resolveCount,
		SessionsClosed:  m.sessionsClosed.Load(),
		ResolveFailures: m.resolveFailures.Load(),
		AvgResolveNs:    avgResolveNs,
		MaxResolveNs:    m.resolveMaxNs.Load(),
		RenderCount:     renderCount,
		AvgRenderNs:     avgRenderNs,
	}
}

// Reset clears all metrics.
func (m *Metrics) Reset() {
	m.resolveCount.Store(0)
	m.resolveTotalNs.Store(0)
	m.resolveMaxNs.Store(0)
	m.resolveFailures.Store(0)
	m.sessionsClosed.Store(0)
	m.renderCount.Store(0)
	m.renderTotalNs.Store(0)
	m.startTime.Store(time.Now().UnixNano())
}

// MetricsSnapshot is a point-in-time view of metrics.
type MetricsSnapshot struct {
	Uptime          time.Duration `json:"uptime"`
	SessionsOpened  uint64        `json:"sessionsOpened"`
	SessionsClosed  uint64        `json:"sessionsClosed"`
	ResolveFailures uint64        `json:"resolveFailures"`
	AvgResolveNs    int64         `json:"avgResolveNs"`
	MaxResolveNs    int64         `json:"maxResolveNs"`
	RenderCount     uint64        `json:"renderCount"`
	AvgRenderNs     int64         `json:"avgRenderNs"`
}

// ActiveSessions returns the number of sessions still open.
func (s MetricsSnapshot) ActiveSessions() uint64 {
	if s.SessionsClosed > s.SessionsOpened {
		return 0
	}
	return s.SessionsOpened - s.SessionsClosed
}

// FailureRate returns the percentage of resolve attempts that failed.
func (s MetricsSnapshot) FailureRate() float64 {
	total := s.SessionsOpened + s.ResolveFailures
	if total == 0 {
		return 0
	}
	return float64(s.ResolveFailures) / float64(total) * 100
}

// Timer provides a simple way to measure elapsed time.
type Timer struct {
	start time.Time
}

// StartTimer starts a new timer.
func StartTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Elapsed returns the elapsed time since the timer started.
func (t *Timer) Elapsed() time.Duration {
	return time.Since(t.start)
}
