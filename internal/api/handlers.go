package api

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/guestledger/dupguard/internal/audit"
	"github.com/guestledger/dupguard/internal/cache"
	"github.com/guestledger/dupguard/internal/config"
	"github.com/guestledger/dupguard/internal/detect"
	"github.com/guestledger/dupguard/internal/monitor"
	"github.com/guestledger/dupguard/internal/storage"
	"github.com/guestledger/dupguard/internal/types"
)

const (
	defaultPageLimit = 50
	maxPageLimit     = 500
	defaultPeriod    = 30 * 24 * time.Hour
)

// ErrorResponse is the uniform error body.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// Deps carries the pipeline components the handlers serve.
type Deps struct {
	Audit    *audit.Store
	Monitor  *monitor.Monitor
	Cache    *cache.Cache
	Detector *detect.Detector
	Store    storage.Storage
	Config   config.Config
}

// Handlers contains the HTTP handlers for the audit and performance
// surface.
type Handlers struct {
	audit    *audit.Store
	monitor  *monitor.Monitor
	cache    *cache.Cache
	detector *detect.Detector
	store    storage.Storage
	cfg      config.Config
	log      zerolog.Logger
}

// NewHandlers creates handlers over the given dependencies.
func NewHandlers(d Deps, log zerolog.Logger) *Handlers {
	return &Handlers{
		audit:    d.Audit,
		monitor:  d.Monitor,
		cache:    d.Cache,
		detector: d.Detector,
		store:    d.Store,
		cfg:      d.Config,
		log:      log.With().Str("component", "api").Logger(),
	}
}

// RegisterRoutes registers the audit and performance endpoints on rg
// (typically /v1).
//
//	GET  /v1/audit/logs                  query the decision log
//	GET  /v1/audit/logs/count            count matching entries
//	GET  /v1/audit/trail                 decision history for one transaction
//	GET  /v1/audit/reports/compliance    compliance report for a period
//	GET  /v1/audit/reports/user-activity per-user activity report
//	POST /v1/audit/export                CSV export of matching entries
//	POST /v1/audit/cleanup               retention cleanup
//	GET  /v1/performance/status          monitor snapshot plus store totals
//	GET  /v1/performance/health          weighted health score
//	GET  /v1/performance/cache           cache statistics
//	GET  /v1/performance/queries         per-operation stats and slow listings
//	POST /v1/performance/optimize        cache purge, stats reset, db maintenance
//	POST /v1/performance/test            synthetic load test
func RegisterRoutes(rg *gin.RouterGroup, h *Handlers) {
	auditGroup := rg.Group("/audit")
	{
		auditGroup.GET("/logs", h.HandleAuditLogs)
		auditGroup.GET("/logs/count", h.HandleAuditCount)
		auditGroup.GET("/trail", h.HandleAuditTrail)
		auditGroup.GET("/reports/compliance", h.HandleComplianceReport)
		auditGroup.GET("/reports/user-activity", h.HandleUserActivity)
		auditGroup.POST("/export", h.HandleAuditExport)
		auditGroup.POST("/cleanup", h.HandleAuditCleanup)
	}

	perf := rg.Group("/performance")
	{
		perf.GET("/status", h.HandlePerformanceStatus)
		perf.GET("/health", h.HandlePerformanceHealth)
		perf.GET("/cache", h.HandleCacheStats)
		perf.GET("/queries", h.HandleQueryStats)
		perf.POST("/optimize", h.HandleOptimize)
		perf.POST("/test", h.HandlePerformanceTest)
	}
}

// AuditLogsResponse is one page of decision log entries.
type AuditLogsResponse struct {
	Entries []*types.DecisionLogEntry `json:"entries"`
	Count   int                       `json:"count"`
	Limit   int                       `json:"limit"`
	Offset  int                       `json:"offset"`
}

// HandleAuditLogs handles GET /v1/audit/logs. Filters: reference_number,
// user_id, decision, start_date, end_date. Paged by limit and offset,
// newest first.
func (h *Handlers) HandleAuditLogs(c *gin.Context) {
	filter, err := filterFromQuery(c)
	if err != nil {
		badRequest(c, err)
		return
	}
	limit, offset, err := pageFromQuery(c)
	if err != nil {
		badRequest(c, err)
		return
	}

	entries, err := h.audit.Query(c.Request.Context(), filter, limit, offset)
	if err != nil {
		h.serverError(c, "audit query failed", err)
		return
	}
	if entries == nil {
		entries = []*types.DecisionLogEntry{}
	}
	c.JSON(http.StatusOK, AuditLogsResponse{
		Entries: entries,
		Count:   len(entries),
		Limit:   limit,
		Offset:  offset,
	})
}

// HandleAuditCount handles GET /v1/audit/logs/count with the same
// filters as the log query.
func (h *Handlers) HandleAuditCount(c *gin.Context) {
	filter, err := filterFromQuery(c)
	if err != nil {
		badRequest(c, err)
		return
	}

	count, err := h.audit.Count(c.Request.Context(), filter)
	if err != nil {
		h.serverError(c, "audit count failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": count})
}

// HandleAuditTrail handles GET /v1/audit/trail. Requires
// reference_number, date, and amount; returns every decision ever made
// for that transaction identity, oldest first.
func (h *Handlers) HandleAuditTrail(c *gin.Context) {
	ref := c.Query("reference_number")
	if ref == "" {
		badRequest(c, fmt.Errorf("reference_number is required"))
		return
	}
	date, err := parseDateParam(c.Query("date"), false)
	if err != nil {
		badRequest(c, err)
		return
	}
	if date.IsZero() {
		badRequest(c, fmt.Errorf("date is required"))
		return
	}
	amount, err := strconv.ParseFloat(c.Query("amount"), 64)
	if err != nil {
		badRequest(c, fmt.Errorf("invalid amount %q", c.Query("amount")))
		return
	}

	entries, err := h.audit.Trail(c.Request.Context(), ref, date, amount, h.cfg.Detector.AmountEpsilon)
	if err != nil {
		h.serverError(c, "audit trail failed", err)
		return
	}
	if entries == nil {
		entries = []*types.DecisionLogEntry{}
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries, "count": len(entries)})
}

// HandleComplianceReport handles GET /v1/audit/reports/compliance.
// The period defaults to the last 30 days; include_details=true embeds
// the matching entries.
func (h *Handlers) HandleComplianceReport(c *gin.Context) {
	from, to, err := periodFromQuery(c)
	if err != nil {
		badRequest(c, err)
		return
	}
	includeDetails := c.Query("include_details") == "true"

	report, err := h.audit.Compliance(c.Request.Context(), from, to, includeDetails)
	if err != nil {
		h.serverError(c, "compliance report failed", err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// HandleUserActivity handles GET /v1/audit/reports/user-activity.
// Requires user_id; the period defaults to the last 30 days.
func (h *Handlers) HandleUserActivity(c *gin.Context) {
	userID := c.Query("user_id")
	if userID == "" {
		badRequest(c, fmt.Errorf("user_id is required"))
		return
	}
	from, to, err := periodFromQuery(c)
	if err != nil {
		badRequest(c, err)
		return
	}

	report, err := h.audit.UserActivity(c.Request.Context(), userID, from, to)
	if err != nil {
		h.serverError(c, "user activity report failed", err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// HandleAuditExport handles POST /v1/audit/export. The body is an
// optional AuditFilter; the response streams matching entries as a CSV
// attachment.
func (h *Handlers) HandleAuditExport(c *gin.Context) {
	var filter types.AuditFilter
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&filter); err != nil {
			badRequest(c, fmt.Errorf("invalid filter body: %v", err))
			return
		}
	}
	if err := filter.Validate(); err != nil {
		badRequest(c, err)
		return
	}

	filename := fmt.Sprintf("audit-export-%s.csv", time.Now().UTC().Format("20060102"))
	c.Header("Content-Type", "text/csv")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Status(http.StatusOK)

	rows, err := h.audit.ExportCSV(c.Request.Context(), c.Writer, filter)
	if err != nil {
		// Headers are gone; all we can do is cut the stream and log.
		h.log.Error().Err(err).Int("rows", rows).Msg("csv export aborted")
		c.Abort()
		return
	}
	h.log.Info().Int("rows", rows).Str("filename", filename).Msg("audit export served")
}

// CleanupRequest selects the retention window for a cleanup run. A zero
// RetentionDays uses the configured default.
type CleanupRequest struct {
	RetentionDays int `json:"retention_days"`
}

// HandleAuditCleanup handles POST /v1/audit/cleanup.
func (h *Handlers) HandleAuditCleanup(c *gin.Context) {
	var req CleanupRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, fmt.Errorf("invalid cleanup body: %v", err))
			return
		}
	}
	if req.RetentionDays < 0 {
		badRequest(c, fmt.Errorf("retention_days cannot be negative"))
		return
	}

	deleted, err := h.audit.Cleanup(c.Request.Context(), req.RetentionDays)
	if err != nil {
		h.serverError(c, "audit cleanup failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted_count": deleted})
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: "INVALID_REQUEST"})
}

func (h *Handlers) serverError(c *gin.Context, msg string, err error) {
	h.log.Error().Err(err).Str("path", c.Request.URL.Path).Msg(msg)
	status := http.StatusInternalServerError
	code := "INTERNAL"
	if types.IsUnavailable(err) {
		status = http.StatusServiceUnavailable
		code = "STORE_UNAVAILABLE"
	}
	c.JSON(status, ErrorResponse{Error: msg, Code: code})
}

// filterFromQuery builds an AuditFilter from query parameters. Dates
// accept YYYY-MM-DD or RFC 3339; a bare end date is made inclusive of
// the whole day.
func filterFromQuery(c *gin.Context) (types.AuditFilter, error) {
	filter := types.AuditFilter{
		ReferenceNumber: c.Query("reference_number"),
		UserID:          c.Query("user_id"),
		Decision:        types.Decision(c.Query("decision")),
	}
	var err error
	if filter.StartDate, err = parseDateParam(c.Query("start_date"), false); err != nil {
		return filter, err
	}
	if filter.EndDate, err = parseDateParam(c.Query("end_date"), true); err != nil {
		return filter, err
	}
	if err := filter.Validate(); err != nil {
		return filter, err
	}
	return filter, nil
}

// parseDateParam accepts YYYY-MM-DD or RFC 3339. Empty means unset.
// endOfDay advances a bare date to its last stored instant so that
// "end_date=2025-06-01" includes entries from that day.
func parseDateParam(s string, endOfDay bool) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		if endOfDay {
			t = t.Add(24*time.Hour - time.Millisecond)
		}
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q (want YYYY-MM-DD or RFC 3339)", s)
	}
	return t, nil
}

func pageFromQuery(c *gin.Context) (limit, offset int, err error) {
	limit = defaultPageLimit
	if s := c.Query("limit"); s != "" {
		limit, err = strconv.Atoi(s)
		if err != nil || limit <= 0 {
			return 0, 0, fmt.Errorf("invalid limit %q", s)
		}
		if limit > maxPageLimit {
			limit = maxPageLimit
		}
	}
	if s := c.Query("offset"); s != "" {
		offset, err = strconv.Atoi(s)
		if err != nil || offset < 0 {
			return 0, 0, fmt.Errorf("invalid offset %q", s)
		}
	}
	return limit, offset, nil
}

// periodFromQuery reads start_date and end_date, defaulting to the last
// 30 days ending now.
func periodFromQuery(c *gin.Context) (from, to time.Time, err error) {
	if from, err = parseDateParam(c.Query("start_date"), false); err != nil {
		return
	}
	if to, err = parseDateParam(c.Query("end_date"), true); err != nil {
		return
	}
	if to.IsZero() {
		to = time.Now().UTC()
	}
	if from.IsZero() {
		from = to.Add(-defaultPeriod)
	}
	if to.Before(from) {
		err = fmt.Errorf("end_date precedes start_date")
	}
	return
}
