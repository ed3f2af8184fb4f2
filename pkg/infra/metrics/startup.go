package metrics

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jguan/throwaway/pkg/container"
)

// StartupMetrics tracks how long fixtures take from creation until their
// ready strategy succeeds, and how many never got there.
// Counters are lock-free; only the pending creation times share a mutex.
type StartupMetrics struct {
	started      atomic.Int64
	failed       atomic.Int64
	totalStartMs atomic.Int64
	maxStartMs   atomic.Int64

	mu      sync.Mutex
	created map[string]time.Time
}

var _ container.Observer = (*StartupMetrics)(nil)

// NewStartupMetrics creates a new StartupMetrics instance.
func NewStartupMetrics() *StartupMetrics {
	return &StartupMetrics{created: make(map[string]time.Time)}
}

// Record records one start attempt. latency is the time from creation to
// readiness; failed attempts only count towards the failure rate.
func (m *StartupMetrics) Record(latency time.Duration, failed bool) {
	if failed {
		m.failed.Add(1)
		return
	}
	ms := latency.Milliseconds()
	m.started.Add(1)
	m.totalStartMs.Add(ms)
	for {
		cur := m.maxStartMs.Load()
		if ms <= cur || m.maxStartMs.CompareAndSwap(cur, ms) {
			return
		}
	}
}

// OnEvent implements container.Observer.
func (m *StartupMetrics) OnEvent(_ context.Context, ev container.Event) {
	switch ev.Type {
	case container.EventCreated:
		m.mu.Lock()
		m.created[ev.ContainerID] = ev.Time
		m.mu.Unlock()
	case container.EventReady, container.EventFailed:
		m.mu.Lock()
		at, ok := m.created[ev.ContainerID]
		delete(m.created, ev.ContainerID)
		m.mu.Unlock()
		if !ok {
			at = ev.Time
		}
		m.Record(ev.Time.Sub(at), ev.Type == container.EventFailed)
	}
}

// Snapshot returns a point-in-time snapshot of the counters.
func (m *StartupMetrics) Snapshot() StartupSnapshot {
	started := m.started.Load()
	failed := m.failed.Load()

	var avg float64
	if started > 0 {
		avg = float64(m.totalStartMs.Load()) / float64(started)
	}
	var failureRate float64
	if attempts := started + failed; attempts > 0 {
		failureRate = float64(failed) / float64(attempts)
	}

	return StartupSnapshot{
		Started:      started,
		Failed:       failed,
		AvgStartupMs: avg,
		MaxStartupMs: m.maxStartMs.Load(),
		FailureRate:  failureRate,
	}
}

// StartupSnapshot is an immutable snapshot of startup metrics.
type StartupSnapshot struct {
	Started      int64
	Failed       int64
	AvgStartupMs float64
	MaxStartupMs int64
	FailureRate  float64
}
