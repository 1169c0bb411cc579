package api

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/guestledger/dupguard/internal/cache"
	"github.com/guestledger/dupguard/internal/detect"
	"github.com/guestledger/dupguard/internal/monitor"
)

// StoreTotals summarizes decision log volume for the status endpoint.
type StoreTotals struct {
	DecisionEntries int            `json:"decision_entries"`
	Transactions    int            `json:"transactions"`
	ByDecision      map[string]int `json:"by_decision"`
	OldestEntry     time.Time      `json:"oldest_entry,omitempty"`
	NewestEntry     time.Time      `json:"newest_entry,omitempty"`
}

// StatusResponse is the full operational picture.
type StatusResponse struct {
	Operations      map[string]monitor.OpStats `json:"operations"`
	Cache           cache.Stats                `json:"cache"`
	AuditQueueDepth int                        `json:"audit_queue_depth"`
	SampleCount     int                        `json:"sample_count"`
	WindowSize      int                        `json:"window_size"`
	Totals          *StoreTotals               `json:"totals,omitempty"`
}

// HandlePerformanceStatus handles GET /v1/performance/status. Store
// totals are best effort: if the store is slow the monitor numbers
// still come back.
func (h *Handlers) HandlePerformanceStatus(c *gin.Context) {
	resp := StatusResponse{
		Operations:      h.monitor.Snapshot(),
		Cache:           h.cache.Stats(),
		AuditQueueDepth: h.audit.QueueDepth(),
		SampleCount:     h.monitor.SampleCount(),
		WindowSize:      h.monitor.WindowSize(),
	}

	counts, err := h.store.GetAuditCounts(c.Request.Context())
	if err != nil {
		h.log.Warn().Err(err).Msg("store totals unavailable for status")
	} else {
		resp.Totals = &StoreTotals{
			DecisionEntries: counts.TotalEntries,
			Transactions:    counts.TotalTransactions,
			ByDecision:      counts.EntriesByDecision,
			OldestEntry:     counts.OldestEntry,
			NewestEntry:     counts.NewestEntry,
		}
	}
	c.JSON(http.StatusOK, resp)
}

// HandlePerformanceHealth handles GET /v1/performance/health.
func (h *Handlers) HandlePerformanceHealth(c *gin.Context) {
	report := h.monitor.Health(h.cache.Stats(), monitor.AuditStats{QueueDepth: h.audit.QueueDepth()})
	c.JSON(http.StatusOK, report)
}

// HandleCacheStats handles GET /v1/performance/cache.
func (h *Handlers) HandleCacheStats(c *gin.Context) {
	c.JSON(http.StatusOK, h.cache.Stats())
}

// QueryStatsResponse focuses on duplicate-check latency.
type QueryStatsResponse struct {
	QueryBudget time.Duration    `json:"query_budget"`
	Checks      monitor.OpStats  `json:"checks"`
	Slow        []monitor.Sample `json:"slow_operations"`
}

// HandleQueryStats handles GET /v1/performance/queries. limit caps the
// slow-operation listing.
func (h *Handlers) HandleQueryStats(c *gin.Context) {
	limit := 0
	if s := c.Query("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			badRequest(c, fmt.Errorf("invalid limit %q", s))
			return
		}
		limit = n
	}

	slow := h.monitor.SlowOperations(limit)
	if slow == nil {
		slow = []monitor.Sample{}
	}
	c.JSON(http.StatusOK, QueryStatsResponse{
		QueryBudget: h.cfg.Monitor.QueryBudget,
		Checks:      h.monitor.Snapshot()[detect.OpDuplicateCheck],
		Slow:        slow,
	})
}

// OptimizeRequest selects maintenance actions. All false is a no-op.
type OptimizeRequest struct {
	CleanupCache   bool `json:"cleanup_cache"`
	ResetStats     bool `json:"reset_stats"`
	AnalyzeQueries bool `json:"analyze_queries"`
	Vacuum         bool `json:"vacuum"`
}

// OptimizeResponse reports what ran.
type OptimizeResponse struct {
	SweptEntries int  `json:"swept_entries"`
	StatsReset   bool `json:"stats_reset"`
	Analyzed     bool `json:"analyzed"`
	Vacuumed     bool `json:"vacuumed"`
}

// HandleOptimize handles POST /v1/performance/optimize.
func (h *Handlers) HandleOptimize(c *gin.Context) {
	var req OptimizeRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, fmt.Errorf("invalid optimize body: %v", err))
			return
		}
	}

	var resp OptimizeResponse
	if req.CleanupCache {
		resp.SweptEntries = h.cache.Sweep()
	}
	if req.ResetStats {
		h.monitor.Reset()
		h.cache.ResetStats()
		resp.StatsReset = true
	}
	if req.AnalyzeQueries {
		if err := h.store.AnalyzeDatabase(c.Request.Context()); err != nil {
			h.serverError(c, "analyze failed", err)
			return
		}
		resp.Analyzed = true
	}
	if req.Vacuum {
		if err := h.store.VacuumDatabase(c.Request.Context()); err != nil {
			h.serverError(c, "vacuum failed", err)
			return
		}
		resp.Vacuumed = true
	}

	h.log.Info().
		Bool("cleanup_cache", req.CleanupCache).
		Bool("reset_stats", req.ResetStats).
		Bool("analyze", req.AnalyzeQueries).
		Bool("vacuum", req.Vacuum).
		Msg("optimize run")
	c.JSON(http.StatusOK, resp)
}

// LoadTestRequest shapes POST /v1/performance/test.
type LoadTestRequest struct {
	TestCount   int     `json:"test_count"`
	UseCache    bool    `json:"use_cache"`
	Concurrency int     `json:"concurrency"`
	RatePerSec  float64 `json:"rate_per_sec"`
}

// HandlePerformanceTest handles POST /v1/performance/test, driving
// synthetic checks through the live detector.
func (h *Handlers) HandlePerformanceTest(c *gin.Context) {
	var req LoadTestRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, fmt.Errorf("invalid test body: %v", err))
			return
		}
	}

	report, err := h.monitor.LoadTest(c.Request.Context(), h.detector, h.cache, monitor.LoadTestOptions{
		Count:       req.TestCount,
		UseCache:    req.UseCache,
		Concurrency: req.Concurrency,
		RatePerSec:  req.RatePerSec,
	})
	if err != nil {
		h.serverError(c, "load test aborted", err)
		return
	}
	c.JSON(http.StatusOK, report)
}
