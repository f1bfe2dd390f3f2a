package queue

import (
	"context"
)

// Stat is the per-queue, per-state job count.
type Stat struct {
	Queue string `db:"queue"`
	State string `db:"state"`
	Count int64  `db:"count"`
}

// Stats returns job counts grouped by queue and state.
func (m *Manager) Stats(ctx context.Context) ([]Stat, error) {
	var stats []Stat
	err := m.db.SelectContext(ctx, &stats, `
		SELECT queue, state, count(*) AS count
		FROM queue_jobs
		GROUP BY queue, state
		ORDER BY queue, state`)
	if err != nil {
		return nil, err
	}
	return stats, nil
}

// PublishDepthMetrics pushes waiting-job counts into the queue depth gauge.
func (m *Manager) PublishDepthMetrics(ctx context.Context) error {
	if m.metrics == nil {
		return nil
	}
	stats, err := m.Stats(ctx)
	if err != nil {
		return err
	}
	depth := make(map[string]int64)
	for _, s := range stats {
		if s.State == stateCreated || s.State == stateRetry {
			depth[s.Queue] += s.Count
		}
	}
	for q, n := range depth {
		m.metrics.QueueDepth.WithLabelValues(q).Set(float64(n))
	}
	return nil
}
