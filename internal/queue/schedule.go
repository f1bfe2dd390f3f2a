package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Schedule registers a recurring emitter for a queue. The cron expression is
// interpreted in UTC unless timezone is non-empty. Re-scheduling a queue
// replaces its previous entry. Each tick enqueues with the singleton key from
// opts, or a per-tick key when opts has none, so overlapping schedulers (or
// restarts) stay idempotent.
func (m *Manager) Schedule(queue, cronExpr string, payload interface{}, opts *Options, timezone string) error {
	spec := cronExpr
	if timezone != "" {
		spec = "CRON_TZ=" + timezone + " " + cronExpr
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if prev, ok := m.entries[queue]; ok {
		m.cron.Remove(prev)
		delete(m.entries, queue)
	}

	id, err := m.cron.AddFunc(spec, func() {
		tickOpts := Options{}
		if opts != nil {
			tickOpts = *opts
		}
		tick := time.Now().UTC().Truncate(time.Minute)
		if tickOpts.SingletonKey == "" {
			tickOpts.SingletonKey = fmt.Sprintf("%s@%s", queue, tick.Format(time.RFC3339))
		}
		if tickOpts.SingletonSeconds <= 0 {
			tickOpts.SingletonSeconds = 60
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if _, err := m.Send(ctx, queue, payload, &tickOpts); err != nil {
			m.log.WithError(err).WithField("queue", queue).Error("Scheduled enqueue failed")
		}
	})
	if err != nil {
		return fmt.Errorf("schedule %s (%q): %w", queue, cronExpr, err)
	}
	m.entries[queue] = id

	tz := timezone
	if tz == "" {
		tz = "UTC"
	}
	if _, err := m.db.Exec(`
		INSERT INTO queue_schedules (queue, cron_expr, timezone, payload, updated_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (queue) DO UPDATE
		SET cron_expr = EXCLUDED.cron_expr, timezone = EXCLUDED.timezone,
		    payload = EXCLUDED.payload, updated_at = now()`,
		queue, cronExpr, tz, mustJSON(payload)); err != nil {
		m.log.WithError(err).WithField("queue", queue).Warn("Failed to persist schedule")
	}

	return nil
}

// Unschedule removes a queue's recurring emitter.
func (m *Manager) Unschedule(queue string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if id, ok := m.entries[queue]; ok {
		m.cron.Remove(id)
		delete(m.entries, queue)
	}

	if _, err := m.db.Exec(`DELETE FROM queue_schedules WHERE queue = $1`, queue); err != nil {
		return fmt.Errorf("unschedule %s: %w", queue, err)
	}
	return nil
}

// ScheduledQueues lists queues with a registered cron entry.
func (m *Manager) ScheduledQueues() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.entries))
	for q := range m.entries {
		out = append(out, q)
	}
	return out
}

func mustJSON(v interface{}) []byte {
	if v == nil {
		return []byte("null")
	}
	b, err := json.Marshal(v)
	if err != nil {
		return []byte("null")
	}
	return b
}
