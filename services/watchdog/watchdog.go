// Package watchdog recovers certificates stuck in PROCESSING.
package watchdog

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/complianceai/platform/domain/certificate"
	"github.com/complianceai/platform/infrastructure/logging"
	"github.com/complianceai/platform/internal/queue"
	"github.com/complianceai/platform/services/events"
)

// SingletonKey deduplicates watchdog runs triggered manually alongside the
// cron tick.
const SingletonKey = "manual-watchdog-trigger"

// SingletonWindow is the dedupe window for manual triggers.
const SingletonWindow = 60

// stuckCertificate is the projection the sweep operates on.
type stuckCertificate struct {
	ID         string `db:"id"`
	PropertyID string `db:"property_id"`
}

// Watchdog sweeps certificates whose processing stalled.
type Watchdog struct {
	db      *sqlx.DB
	hub     *events.Hub
	timeout time.Duration
	log     *logging.Logger
}

// New creates a Watchdog. timeout is how long a certificate may sit in
// PROCESSING before it is declared failed.
func New(db *sqlx.DB, hub *events.Hub, timeout time.Duration, log *logging.Logger) *Watchdog {
	return &Watchdog{db: db, hub: hub, timeout: timeout, log: log}
}

// HandleJob is the certificate-watchdog queue handler.
func (w *Watchdog) HandleJob(ctx context.Context, _ *queue.Job) error {
	return w.Sweep(ctx)
}

// Sweep transitions every stuck certificate to FAILED and notifies
// subscribers.
func (w *Watchdog) Sweep(ctx context.Context) error {
	message := fmt.Sprintf("processing timed out after %d minutes", int(w.timeout.Minutes()))

	var stuck []stuckCertificate
	err := w.db.SelectContext(ctx, &stuck, `
		UPDATE certificates
		SET status = 'FAILED', status_message = $1, updated_at = now()
		WHERE status = 'PROCESSING' AND updated_at < now() - $2::interval
		RETURNING id, property_id`,
		message, fmt.Sprintf("%d seconds", int(w.timeout.Seconds())))
	if err != nil {
		return fmt.Errorf("watchdog sweep: %w", err)
	}

	for _, cert := range stuck {
		w.log.WithFields(map[string]interface{}{
			"certificate_id": cert.ID,
			"property_id":    cert.PropertyID,
		}).Warn("Certificate stuck in processing, marked failed")

		w.hub.Broadcast(events.Event{
			Type:          events.TypeExtractionFailed,
			CertificateID: cert.ID,
			PropertyID:    cert.PropertyID,
			Status:        string(certificate.StatusFailed),
			Message:       message,
		})
	}

	if len(stuck) > 0 {
		w.log.WithFields(map[string]interface{}{"count": len(stuck)}).Info("Watchdog sweep complete")
	}
	return nil
}
