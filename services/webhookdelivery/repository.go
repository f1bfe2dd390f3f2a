// Package webhookdelivery implements reliable outbound webhook delivery.
package webhookdelivery

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/complianceai/platform/domain/webhook"
)

// Repository provides webhook data access.
type Repository struct {
	db *sqlx.DB
}

// NewRepository creates a Repository.
func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

// UnprocessedEvents returns staged events awaiting fan-out, oldest first.
func (r *Repository) UnprocessedEvents(ctx context.Context, limit int) ([]webhook.Event, error) {
	var events []webhook.Event
	err := r.db.SelectContext(ctx, &events, `
		SELECT * FROM webhook_events
		WHERE processed = false
		ORDER BY created_at
		LIMIT $1`, limit)
	return events, err
}

// MarkEventProcessed flags an event as fanned out.
func (r *Repository) MarkEventProcessed(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE webhook_events SET processed = true WHERE id = $1`, id)
	return err
}

// ReplayEvent stages an event for fan-out again. Existing deliveries are
// untouched; the fan-out pass creates fresh delivery rows.
func (r *Repository) ReplayEvent(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE webhook_events SET processed = false WHERE id = $1`, id)
	return err
}

// ActiveEndpoints returns endpoints eligible for delivery.
func (r *Repository) ActiveEndpoints(ctx context.Context) ([]webhook.Endpoint, error) {
	var endpoints []webhook.Endpoint
	err := r.db.SelectContext(ctx, &endpoints, `
		SELECT * FROM webhook_endpoints WHERE status = 'ACTIVE'`)
	return endpoints, err
}

// GetEndpoint returns an endpoint by id.
func (r *Repository) GetEndpoint(ctx context.Context, id string) (*webhook.Endpoint, error) {
	var ep webhook.Endpoint
	err := r.db.GetContext(ctx, &ep, `SELECT * FROM webhook_endpoints WHERE id = $1`, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &ep, nil
}

// GetEvent returns an event by id.
func (r *Repository) GetEvent(ctx context.Context, id string) (*webhook.Event, error) {
	var ev webhook.Event
	err := r.db.GetContext(ctx, &ev, `SELECT * FROM webhook_events WHERE id = $1`, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &ev, nil
}

// CreateDelivery inserts one (event, endpoint) delivery row.
func (r *Repository) CreateDelivery(ctx context.Context, eventID, endpointID string) (*webhook.Delivery, error) {
	var d webhook.Delivery
	err := r.db.QueryRowxContext(ctx, `
		INSERT INTO webhook_deliveries (event_id, endpoint_id, status)
		VALUES ($1, $2, 'PENDING')
		RETURNING id, event_id, endpoint_id, attempt_count, status, created_at`,
		eventID, endpointID,
	).StructScan(&d)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// GetDelivery returns a delivery by id.
func (r *Repository) GetDelivery(ctx context.Context, id string) (*webhook.Delivery, error) {
	var d webhook.Delivery
	err := r.db.GetContext(ctx, &d, `SELECT * FROM webhook_deliveries WHERE id = $1`, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// DueDeliveries returns deliveries ready for an attempt.
func (r *Repository) DueDeliveries(ctx context.Context, limit int) ([]webhook.Delivery, error) {
	var deliveries []webhook.Delivery
	err := r.db.SelectContext(ctx, &deliveries, `
		SELECT * FROM webhook_deliveries
		WHERE status = 'PENDING'
		   OR (status = 'RETRYING' AND next_retry_at <= now())
		ORDER BY created_at
		LIMIT $1`, limit)
	return deliveries, err
}

// RecordSuccess marks a delivery SENT and resets the endpoint health.
func (r *Repository) RecordSuccess(ctx context.Context, deliveryID, endpointID string, responseStatus int, responseBody string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		UPDATE webhook_deliveries
		SET status = 'SENT', attempt_count = attempt_count + 1, last_attempt_at = now(),
		    response_status = $2, response_body = $3, next_retry_at = NULL
		WHERE id = $1`, deliveryID, responseStatus, truncateBody(responseBody)); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE webhook_endpoints
		SET failure_count = 0, last_success_at = now()
		WHERE id = $1`, endpointID); err != nil {
		return err
	}

	return tx.Commit()
}

// RecordRetry marks a delivery RETRYING with its next attempt time and bumps
// the endpoint failure counter, disabling the endpoint at the threshold.
func (r *Repository) RecordRetry(ctx context.Context, deliveryID, endpointID string,
	responseStatus *int, responseBody string, nextRetry time.Time) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		UPDATE webhook_deliveries
		SET status = 'RETRYING', attempt_count = attempt_count + 1, last_attempt_at = now(),
		    response_status = $2, response_body = $3, next_retry_at = $4
		WHERE id = $1`, deliveryID, responseStatus, truncateBody(responseBody), nextRetry); err != nil {
		return err
	}

	if err := bumpEndpointFailure(ctx, tx, endpointID); err != nil {
		return err
	}

	return tx.Commit()
}

// RecordFailure marks a delivery terminally FAILED.
func (r *Repository) RecordFailure(ctx context.Context, deliveryID, endpointID string,
	responseStatus *int, responseBody string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		UPDATE webhook_deliveries
		SET status = 'FAILED', attempt_count = attempt_count + 1, last_attempt_at = now(),
		    response_status = $2, response_body = $3, next_retry_at = NULL
		WHERE id = $1`, deliveryID, responseStatus, truncateBody(responseBody)); err != nil {
		return err
	}

	if err := bumpEndpointFailure(ctx, tx, endpointID); err != nil {
		return err
	}

	return tx.Commit()
}

func bumpEndpointFailure(ctx context.Context, tx *sqlx.Tx, endpointID string) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE webhook_endpoints
		SET failure_count = failure_count + 1,
		    status = CASE WHEN failure_count + 1 >= $2 THEN 'FAILED' ELSE status END
		WHERE id = $1`, endpointID, webhook.DisableThreshold)
	return err
}

// LogIncoming persists one inbound webhook body.
func (r *Repository) LogIncoming(ctx context.Context, source string, eventType *string,
	payload, headers json.RawMessage, processed bool, errorMessage *string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO incoming_webhook_logs (source, event_type, payload, headers, processed, error_message)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		source, eventType, payload, headers, processed, errorMessage)
	return err
}

func truncateBody(body string) string {
	if len(body) > 1024 {
		return body[:1024]
	}
	return body
}
