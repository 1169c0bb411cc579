package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/guestledger/dupguard/internal/types"
)

// ComplianceReport aggregates the decision log over [from, to] for
// regulator-facing review: overall totals with percentages, a per-reference
// breakdown (busiest references first) and a daily time series. Full entries
// are attached only when includeDetails is set.
func (s *Store) ComplianceReport(ctx context.Context, from, to time.Time, includeDetails bool) (*types.ComplianceReport, error) {
	if to.Before(from) {
		return nil, fmt.Errorf("report period end precedes start")
	}

	report := &types.ComplianceReport{
		PeriodStart: from,
		PeriodEnd:   to,
		GeneratedAt: time.Now().UTC(),
	}

	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(CASE WHEN decision = 'continue' THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN decision = 'cancel' THEN 1 ELSE 0 END), 0)
		FROM decision_log
		WHERE timestamp >= ? AND timestamp <= ?
	`, storeTime(from), storeTime(to)).Scan(&report.TotalDecisions, &report.ContinueCount, &report.CancelCount)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate decisions: %w", err)
	}

	report.ContinuePercent = types.Percent(report.ContinueCount, report.TotalDecisions)
	report.CancelPercent = types.Percent(report.CancelCount, report.TotalDecisions)

	rows, err := s.db.QueryContext(ctx, `
		SELECT reference_number,
		       COUNT(*),
		       SUM(CASE WHEN decision = 'continue' THEN 1 ELSE 0 END),
		       SUM(CASE WHEN decision = 'cancel' THEN 1 ELSE 0 END)
		FROM decision_log
		WHERE timestamp >= ? AND timestamp <= ?
		GROUP BY reference_number
		ORDER BY COUNT(*) DESC, reference_number ASC
	`, storeTime(from), storeTime(to))
	if err != nil {
		return nil, fmt.Errorf("failed to query reference breakdown: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var b types.ReferenceBreakdown
		if err := rows.Scan(&b.ReferenceNumber, &b.Total, &b.ContinueCount, &b.CancelCount); err != nil {
			return nil, fmt.Errorf("failed to scan reference breakdown: %w", err)
		}
		report.ByReference = append(report.ByReference, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating reference breakdown: %w", err)
	}

	report.Daily, err = s.dailySeries(ctx, from, to, "")
	if err != nil {
		return nil, err
	}

	if includeDetails {
		entries, err := s.QueryDecisions(ctx, types.AuditFilter{StartDate: from, EndDate: to}, 0, 0)
		if err != nil {
			return nil, fmt.Errorf("failed to load report details: %w", err)
		}
		for _, e := range entries {
			report.Details = append(report.Details, *e)
		}
	}

	return report, nil
}

// UserActivityReport summarizes one user's decision activity over [from, to]
func (s *Store) UserActivityReport(ctx context.Context, userID string, from, to time.Time) (*types.UserActivityReport, error) {
	if userID == "" {
		return nil, fmt.Errorf("user_id is required")
	}
	if to.Before(from) {
		return nil, fmt.Errorf("report period end precedes start")
	}

	report := &types.UserActivityReport{
		UserID:      userID,
		PeriodStart: from,
		PeriodEnd:   to,
		GeneratedAt: time.Now().UTC(),
	}

	var first, last sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(CASE WHEN decision = 'continue' THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN decision = 'cancel' THEN 1 ELSE 0 END), 0),
		       MIN(timestamp),
		       MAX(timestamp)
		FROM decision_log
		WHERE user_id = ? AND timestamp >= ? AND timestamp <= ?
	`, userID, storeTime(from), storeTime(to)).Scan(
		&report.TotalDecisions, &report.ContinueCount, &report.CancelCount, &first, &last,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate user activity: %w", err)
	}

	if first.Valid {
		if report.FirstDecision, err = parseStoredTime(first.String); err != nil {
			return nil, fmt.Errorf("bad first decision timestamp: %w", err)
		}
	}
	if last.Valid {
		if report.LastDecision, err = parseStoredTime(last.String); err != nil {
			return nil, fmt.Errorf("bad last decision timestamp: %w", err)
		}
	}

	report.Daily, err = s.dailySeries(ctx, from, to, userID)
	if err != nil {
		return nil, err
	}

	return report, nil
}

// dailySeries returns per-day decision counts over [from, to], optionally
// restricted to one user. Days with no activity are absent from the series.
func (s *Store) dailySeries(ctx context.Context, from, to time.Time, userID string) ([]types.DailyCount, error) {
	query := `
		SELECT strftime('%Y-%m-%d', timestamp) AS day,
		       COUNT(*),
		       SUM(CASE WHEN decision = 'continue' THEN 1 ELSE 0 END),
		       SUM(CASE WHEN decision = 'cancel' THEN 1 ELSE 0 END)
		FROM decision_log
		WHERE timestamp >= ? AND timestamp <= ?
	`
	args := []interface{}{storeTime(from), storeTime(to)}

	if userID != "" {
		query += " AND user_id = ?"
		args = append(args, userID)
	}

	query += " GROUP BY day ORDER BY day ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query daily series: %w", err)
	}
	defer rows.Close()

	var series []types.DailyCount
	for rows.Next() {
		var d types.DailyCount
		if err := rows.Scan(&d.Day, &d.Total, &d.ContinueCount, &d.CancelCount); err != nil {
			return nil, fmt.Errorf("failed to scan daily count: %w", err)
		}
		series = append(series, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating daily series: %w", err)
	}

	return series, nil
}
