package monitor

import (
	"fmt"
	"math"
	"time"

	"github.com/guestledger/dupguard/internal/audit"
	"github.com/guestledger/dupguard/internal/cache"
	"github.com/guestledger/dupguard/internal/detect"
)

// Band classifies a health score.
type Band string

const (
	BandHealthy  Band = "healthy"  // score >= 90
	BandDegraded Band = "degraded" // 70 <= score < 90
	BandWarning  Band = "warning"  // 50 <= score < 70
	BandCritical Band = "critical" // score < 50
)

// BandFor returns the band a score falls in.
func BandFor(score float64) Band {
	switch {
	case score >= 90:
		return BandHealthy
	case score >= 70:
		return BandDegraded
	case score >= 50:
		return BandWarning
	default:
		return BandCritical
	}
}

// AuditStats is the audit store's contribution to the health report.
type AuditStats struct {
	QueueDepth int `json:"queue_depth"`
}

// HealthReport is a point-in-time assessment of the pipeline, computed
// on demand from the sample window and never persisted.
type HealthReport struct {
	Score            float64   `json:"score"`
	Status           Band      `json:"status"`
	QueryPerfScore   float64   `json:"query_perf_score"`
	ErrorRate        float64   `json:"error_rate"`
	CacheEfficiency  float64   `json:"cache_efficiency"`
	CacheHitRate     float64   `json:"cache_hit_rate"`
	AuditSuccessRate float64   `json:"audit_success_rate"`
	AuditQueueDepth  int       `json:"audit_queue_depth"`
	SampleCount      int       `json:"sample_count"`
	GeneratedAt      time.Time `json:"generated_at"`
	Recommendations  []string  `json:"recommendations,omitempty"`
}

// Score combines the four health components into a 0-100 score:
// 40% query performance, 30% success rate, 20% cache efficiency,
// 10% audit success. Each component is clamped to [0, 1] first.
func Score(queryPerf, errorRate, cacheEfficiency, auditSuccess float64) float64 {
	queryPerf = clamp01(queryPerf)
	errorRate = clamp01(errorRate)
	cacheEfficiency = clamp01(cacheEfficiency)
	auditSuccess = clamp01(auditSuccess)

	return 100 * (0.40*queryPerf + 0.30*(1-errorRate) + 0.20*cacheEfficiency + 0.10*auditSuccess)
}

// Health scores the pipeline from the current sample window plus the
// cache and audit statistics. Components with no evidence in the window
// score as perfect rather than dragging an idle system down.
func (m *Monitor) Health(cacheStats cache.Stats, auditStats AuditStats) HealthReport {
	recent := m.recent()

	var failures, checks, underBudget, auditTotal, auditOK int
	for _, s := range recent {
		if !s.Success {
			failures++
		}
		switch s.Operation {
		case detect.OpDuplicateCheck:
			checks++
			if s.Duration < m.cfg.QueryBudget {
				underBudget++
			}
		case audit.OpAuditWrite:
			auditTotal++
			if s.Success {
				auditOK++
			}
		}
	}

	queryPerf := 1.0
	if checks > 0 {
		queryPerf = float64(underBudget) / float64(checks)
	}
	errorRate := 0.0
	if len(recent) > 0 {
		errorRate = float64(failures) / float64(len(recent))
	}
	auditRate := 1.0
	if auditTotal > 0 {
		auditRate = float64(auditOK) / float64(auditTotal)
	}

	lookups := cacheStats.Hits + cacheStats.Misses
	efficiency := 1.0
	if lookups > 0 {
		efficiency = math.Min(1, cacheStats.HitRate/m.target)
	}

	report := HealthReport{
		Score:            Score(queryPerf, errorRate, efficiency, auditRate),
		QueryPerfScore:   queryPerf,
		ErrorRate:        errorRate,
		CacheEfficiency:  efficiency,
		CacheHitRate:     cacheStats.HitRate,
		AuditSuccessRate: auditRate,
		AuditQueueDepth:  auditStats.QueueDepth,
		SampleCount:      len(recent),
		GeneratedAt:      time.Now().UTC(),
	}
	report.Status = BandFor(report.Score)
	report.Recommendations = recommend(report, lookups)

	healthScore.Set(report.Score)
	auditQueueDepth.Set(float64(auditStats.QueueDepth))

	if report.Status != BandHealthy {
		m.log.Warn().
			Float64("score", report.Score).
			Str("status", string(report.Status)).
			Float64("error_rate", report.ErrorRate).
			Msg("pipeline health below healthy band")
	}
	return report
}

// minCacheLookups gates the cache recommendation so a cold cache does
// not trigger noise on startup.
const minCacheLookups = 100

func recommend(r HealthReport, lookups int64) []string {
	var recs []string
	if r.QueryPerfScore < 0.80 {
		recs = append(recs, "duplicate checks are exceeding the latency budget; run a database analyze")
	}
	if r.ErrorRate > 0.10 {
		recs = append(recs, "more than 10% of recent operations failed; check store availability")
	}
	if lookups >= minCacheLookups && r.CacheEfficiency < 1 {
		recs = append(recs, "cache hit rate is below target; consider a longer cache TTL")
	}
	if r.AuditSuccessRate < 1 {
		recs = append(recs, "audit writes are being deferred; check store health")
	}
	if r.AuditQueueDepth > 0 {
		recs = append(recs, fmt.Sprintf("%d audit entries are queued for redelivery", r.AuditQueueDepth))
	}
	return recs
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
