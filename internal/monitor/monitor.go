// Package monitor tracks operation latency and outcomes across the
// duplicate-check pipeline. It keeps a bounded ring of recent samples,
// derives per-operation statistics and a weighted health score from the
// window, and exports Prometheus metrics for scraping.
//
// Monitor satisfies the observer hooks of the detector, the decision
// processor, and the audit store, so one instance can watch the whole
// pipeline.
package monitor

import (
	"math"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/guestledger/dupguard/internal/config"
)

// Sample is one recorded operation outcome.
type Sample struct {
	Operation string        `json:"operation"`
	Duration  time.Duration `json:"duration"`
	Success   bool          `json:"success"`
	CacheHit  bool          `json:"cache_hit"`
	At        time.Time     `json:"at"`
}

// OpStats aggregates the window's samples for one operation type.
type OpStats struct {
	Operation   string        `json:"operation"`
	Count       int           `json:"count"`
	Failures    int           `json:"failures"`
	SuccessRate float64       `json:"success_rate"`
	CacheHits   int           `json:"cache_hits"`
	AvgDuration time.Duration `json:"avg_duration"`
	P95Duration time.Duration `json:"p95_duration"`
	MaxDuration time.Duration `json:"max_duration"`
}

// Monitor keeps a fixed-size ring of recent samples. Once the ring is
// full the oldest sample is evicted, so statistics always describe the
// most recent window rather than the whole process lifetime.
type Monitor struct {
	cfg    config.MonitorConfig
	target float64
	log    zerolog.Logger

	mu      sync.RWMutex
	samples []Sample
	next    int
	filled  bool
}

// New returns a Monitor with an empty sample window. cacheTarget is the
// cache hit-rate goal the health score measures efficiency against.
func New(cfg config.MonitorConfig, cacheTarget float64, log zerolog.Logger) *Monitor {
	if cfg.SampleWindowSize <= 0 {
		cfg.SampleWindowSize = config.Default().Monitor.SampleWindowSize
	}
	if cacheTarget <= 0 {
		cacheTarget = config.Default().Cache.TargetHitRate
	}
	return &Monitor{
		cfg:     cfg,
		target:  cacheTarget,
		log:     log.With().Str("component", "monitor").Logger(),
		samples: make([]Sample, cfg.SampleWindowSize),
	}
}

// Observe records one operation outcome. The signature matches the
// observer hooks declared by the detect, decision, and audit packages.
func (m *Monitor) Observe(operation string, d time.Duration, success, cacheHit bool) {
	m.Record(Sample{Operation: operation, Duration: d, Success: success, CacheHit: cacheHit})
}

// Record appends a sample to the ring, evicting the oldest when full.
func (m *Monitor) Record(s Sample) {
	if s.At.IsZero() {
		s.At = time.Now()
	}

	m.mu.Lock()
	m.samples[m.next] = s
	m.next++
	if m.next == len(m.samples) {
		m.next = 0
		m.filled = true
	}
	m.mu.Unlock()

	recordMetrics(s)
}

// SampleCount reports how many samples the window currently holds.
func (m *Monitor) SampleCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.filled {
		return len(m.samples)
	}
	return m.next
}

// WindowSize reports the ring capacity.
func (m *Monitor) WindowSize() int {
	return len(m.samples)
}

// Reset clears the sample window. Prometheus counters are cumulative
// and are left alone.
func (m *Monitor) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.next = 0
	m.filled = false
	for i := range m.samples {
		m.samples[i] = Sample{}
	}
}

// Snapshot returns per-operation statistics over the current window,
// keyed by operation type.
func (m *Monitor) Snapshot() map[string]OpStats {
	recent := m.recent()

	durations := make(map[string][]time.Duration)
	stats := make(map[string]OpStats)
	for _, s := range recent {
		st := stats[s.Operation]
		st.Operation = s.Operation
		st.Count++
		if !s.Success {
			st.Failures++
		}
		if s.CacheHit {
			st.CacheHits++
		}
		if s.Duration > st.MaxDuration {
			st.MaxDuration = s.Duration
		}
		stats[s.Operation] = st
		durations[s.Operation] = append(durations[s.Operation], s.Duration)
	}

	for op, st := range stats {
		ds := durations[op]
		var total time.Duration
		for _, d := range ds {
			total += d
		}
		st.AvgDuration = total / time.Duration(len(ds))
		st.P95Duration = percentile(ds, 0.95)
		st.SuccessRate = float64(st.Count-st.Failures) / float64(st.Count)
		stats[op] = st
	}
	return stats
}

// SlowOperations returns window samples at or above the configured slow
// threshold, most recent first, capped at limit (20 when limit <= 0).
func (m *Monitor) SlowOperations(limit int) []Sample {
	if limit <= 0 {
		limit = 20
	}
	recent := m.recent()

	var slow []Sample
	for i := len(recent) - 1; i >= 0 && len(slow) < limit; i-- {
		if recent[i].Duration >= m.cfg.SlowThreshold {
			slow = append(slow, recent[i])
		}
	}
	return slow
}

// recent copies the window in chronological order.
func (m *Monitor) recent() []Sample {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if !m.filled {
		out := make([]Sample, m.next)
		copy(out, m.samples[:m.next])
		return out
	}
	out := make([]Sample, 0, len(m.samples))
	out = append(out, m.samples[m.next:]...)
	out = append(out, m.samples[:m.next]...)
	return out
}

// percentile returns the p-th percentile of ds using the nearest-rank
// method. Returns 0 for an empty slice.
func percentile(ds []time.Duration, p float64) time.Duration {
	if len(ds) == 0 {
		return 0
	}
	sorted := make([]time.Duration, len(ds))
	copy(sorted, ds)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	idx := int(math.Ceil(p*float64(len(sorted)))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
