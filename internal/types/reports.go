package types

import "time"

// ComplianceReport aggregates decision activity over a period for
// compliance review. Details is populated only when requested.
type ComplianceReport struct {
	PeriodStart     time.Time            `json:"period_start"`
	PeriodEnd       time.Time            `json:"period_end"`
	TotalDecisions  int64                `json:"total_decisions"`
	ContinueCount   int64                `json:"continue_count"`
	CancelCount     int64                `json:"cancel_count"`
	ContinuePercent float64              `json:"continue_percent"`
	CancelPercent   float64              `json:"cancel_percent"`
	ByReference     []ReferenceBreakdown `json:"by_reference"`
	Daily           []DailyCount         `json:"daily"`
	Details         []DecisionLogEntry   `json:"details,omitempty"`
	GeneratedAt     time.Time            `json:"generated_at"`
}

// ReferenceBreakdown is per-reference-number decision totals within a report
type ReferenceBreakdown struct {
	ReferenceNumber string `json:"reference_number"`
	Total           int64  `json:"total"`
	ContinueCount   int64  `json:"continue_count"`
	CancelCount     int64  `json:"cancel_count"`
}

// DailyCount is one day of decision activity in a report time series.
// Day is formatted YYYY-MM-DD.
type DailyCount struct {
	Day           string `json:"day"`
	Total         int64  `json:"total"`
	ContinueCount int64  `json:"continue_count"`
	CancelCount   int64  `json:"cancel_count"`
}

// UserActivityReport summarizes one user's decision activity over a period
type UserActivityReport struct {
	UserID         string       `json:"user_id"`
	PeriodStart    time.Time    `json:"period_start"`
	PeriodEnd      time.Time    `json:"period_end"`
	TotalDecisions int64        `json:"total_decisions"`
	ContinueCount  int64        `json:"continue_count"`
	CancelCount    int64        `json:"cancel_count"`
	FirstDecision  time.Time    `json:"first_decision,omitempty"`
	LastDecision   time.Time    `json:"last_decision,omitempty"`
	Daily          []DailyCount `json:"daily"`
	GeneratedAt    time.Time    `json:"generated_at"`
}

// Percent returns 100*part/total, or 0 when total is 0
func Percent(part, total int64) float64 {
	if total == 0 {
		return 0
	}
	return float64(part) / float64(total) * 100
}
