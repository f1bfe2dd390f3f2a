// Package reporting holds the scheduled refresh trigger points for the
// downstream reporting views. The aggregation itself lives in materialised
// views; the pipeline only drives their refresh cadence.
package reporting

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/complianceai/platform/infrastructure/logging"
	"github.com/complianceai/platform/internal/queue"
)

// Materialised views refreshed on the mv-refresh schedule.
var reportingViews = []string{
	"mv_property_compliance",
	"mv_certificate_expiry",
	"mv_action_backlog",
}

// Refresher drives the reporting-related scheduled jobs.
type Refresher struct {
	db  *sqlx.DB
	log *logging.Logger
}

// NewRefresher creates a Refresher.
func NewRefresher(db *sqlx.DB, log *logging.Logger) *Refresher {
	return &Refresher{db: db, log: log}
}

// HandleViewRefresh is the mv-refresh queue handler.
func (r *Refresher) HandleViewRefresh(ctx context.Context, _ *queue.Job) error {
	for _, view := range reportingViews {
		if _, err := r.db.ExecContext(ctx, fmt.Sprintf("REFRESH MATERIALIZED VIEW CONCURRENTLY %s", view)); err != nil {
			// A missing view is an environment issue, not a job failure.
			r.log.WithError(err).WithField("view", view).Warn("Materialised view refresh failed")
		}
	}
	return nil
}

// HandleReportingRefresh is the reporting-refresh queue handler: it stamps
// reporting snapshot freshness so dashboards can show staleness.
func (r *Refresher) HandleReportingRefresh(ctx context.Context, _ *queue.Job) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO factory_settings (key, value)
		VALUES ('REPORTING_LAST_REFRESHED_AT', $1)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value`,
		time.Now().UTC().Format(time.RFC3339))
	return err
}

// HandleScheduledReports is the scheduled-report queue handler: it records a
// generated-report row for every enabled schedule. A schedule's cron_expr
// and last_run_at are not consulted, so each run covers all enabled schedules.
func (r *Refresher) HandleScheduledReports(ctx context.Context, _ *queue.Job) error {
	rows, err := r.db.QueryxContext(ctx, `
		SELECT id FROM scheduled_reports WHERE enabled = true`)
	if err != nil {
		return fmt.Errorf("list scheduled reports: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for _, id := range ids {
		if _, err := r.db.ExecContext(ctx, `
			INSERT INTO generated_reports (schedule_id) VALUES ($1)`, id); err != nil {
			r.log.WithError(err).WithField("schedule_id", id).Error("Failed to record generated report")
			continue
		}
		if _, err := r.db.ExecContext(ctx, `
			UPDATE scheduled_reports SET last_run_at = now() WHERE id = $1`, id); err != nil {
			r.log.WithError(err).WithField("schedule_id", id).Warn("Failed to stamp schedule run")
		}
	}
	return nil
}

// HandlePatternAnalysis is the pattern-analysis queue handler: it summarises
// recent tier outcomes so threshold tuning has data to work from.
func (r *Refresher) HandlePatternAnalysis(ctx context.Context, _ *queue.Job) error {
	var escalations int
	err := r.db.GetContext(ctx, &escalations, `
		SELECT count(*) FROM extraction_tier_audits
		WHERE status = 'escalated' AND attempted_at > now() - interval '24 hours'`)
	if err != nil {
		return fmt.Errorf("count recent escalations: %w", err)
	}

	r.log.WithFields(map[string]interface{}{"escalations_24h": escalations}).Info("Tier escalation pattern snapshot")
	return nil
}
