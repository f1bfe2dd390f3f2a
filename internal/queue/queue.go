// Package queue implements durable PostgreSQL-backed job queues with
// retry/backoff, cron schedules and singleton semantics.
package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/robfig/cron/v3"

	"github.com/complianceai/platform/infrastructure/config"
	"github.com/complianceai/platform/infrastructure/logging"
	"github.com/complianceai/platform/infrastructure/metrics"
)

// Queue names used by the pipeline.
const (
	QueueCertificateIngestion = "certificate-ingestion"
	QueueWebhookDelivery      = "webhook-delivery"
	QueueRateLimitCleanup     = "rate-limit-cleanup"
	QueueCertificateWatchdog  = "certificate-watchdog"
	QueueReportingRefresh     = "reporting-refresh"
	QueueScheduledReport      = "scheduled-report"
	QueuePatternAnalysis      = "pattern-analysis"
	QueueMVRefresh            = "mv-refresh"
)

// Job states.
const (
	stateCreated   = "created"
	stateRetry     = "retry"
	stateActive    = "active"
	stateCompleted = "completed"
	stateFailed    = "failed"
	stateArchived  = "archived"
)

// Job is one durable queue job handed to a handler.
type Job struct {
	ID         string          `db:"id"`
	Queue      string          `db:"queue"`
	Payload    json.RawMessage `db:"payload"`
	State      string          `db:"state"`
	RetryLimit int             `db:"retry_limit"`
	RetryCount int             `db:"retry_count"`
	CreatedAt  time.Time       `db:"created_at"`
}

// Handler processes one job. A returned error triggers the retry policy.
type Handler func(ctx context.Context, job *Job) error

// Options control enqueue behavior.
type Options struct {
	RetryLimit       int
	RetryDelay       int // seconds
	RetryBackoff     bool // doubling
	ExpireInMinutes  int
	SingletonKey     string
	SingletonSeconds int
	StartAfter       time.Time
}

type workerReg struct {
	queue       string
	concurrency int
	handler     Handler
}

// Manager owns the queue runtime: enqueue, dispatch, schedules, maintenance.
// It is initialised once at start-up and shut down once at teardown.
type Manager struct {
	db       *sqlx.DB
	log      *logging.Logger
	metrics  *metrics.Metrics
	settings config.FactorySettings

	pollInterval time.Duration

	mu       sync.Mutex
	workers  []workerReg
	cron     *cron.Cron
	entries  map[string]cron.EntryID
	started  bool
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// New creates a queue manager. Settings come from factory_settings with
// defaults applied by the caller.
func New(db *sqlx.DB, log *logging.Logger, m *metrics.Metrics, settings config.FactorySettings) *Manager {
	return &Manager{
		db:           db,
		log:          log,
		metrics:      m,
		settings:     settings,
		pollInterval: 2 * time.Second,
		cron:         cron.New(cron.WithLocation(time.UTC)),
		entries:      make(map[string]cron.EntryID),
		stopCh:       make(chan struct{}),
	}
}

// Send enqueues a job. The returned id is empty when a singleton key
// deduplicated the enqueue inside its window.
func (m *Manager) Send(ctx context.Context, queue string, payload interface{}, opts *Options) (string, error) {
	if opts == nil {
		opts = &Options{}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}

	retryLimit := opts.RetryLimit
	if retryLimit == 0 {
		retryLimit = m.settings.JobRetryLimit
	}
	retryDelay := opts.RetryDelay
	if retryDelay == 0 {
		retryDelay = int(m.settings.JobRetryDelay.Seconds())
	}

	startAfter := opts.StartAfter
	if startAfter.IsZero() {
		startAfter = time.Now().UTC()
	}

	var expireAt *time.Time
	if opts.ExpireInMinutes > 0 {
		t := time.Now().UTC().Add(time.Duration(opts.ExpireInMinutes) * time.Minute)
		expireAt = &t
	}

	var singletonKey *string
	var singletonUntil *time.Time
	if opts.SingletonKey != "" {
		singletonKey = &opts.SingletonKey
		window := opts.SingletonSeconds
		if window <= 0 {
			window = 60
		}
		t := time.Now().UTC().Add(time.Duration(window) * time.Second)
		singletonUntil = &t
	}

	// The NOT EXISTS guard covers both an in-flight job with the same
	// singleton key and a finished one still inside its window.
	const insert = `
		INSERT INTO queue_jobs
			(queue, payload, state, retry_limit, retry_delay, retry_backoff,
			 singleton_key, singleton_until, start_after, expire_at)
		SELECT $1, $2, 'created', $3, $4, $5, $6, $7, $8, $9
		WHERE $6::text IS NULL OR NOT EXISTS (
			SELECT 1 FROM queue_jobs
			WHERE queue = $1 AND singleton_key = $6
			  AND (state IN ('created','retry','active') OR singleton_until > now())
		)
		RETURNING id`

	var id string
	err = m.db.QueryRowxContext(ctx, insert,
		queue, body, retryLimit, retryDelay, opts.RetryBackoff,
		singletonKey, singletonUntil, startAfter, expireAt,
	).Scan(&id)
	if err == sql.ErrNoRows {
		m.log.WithFields(map[string]interface{}{
			"queue":         queue,
			"singleton_key": opts.SingletonKey,
		}).Debug("Enqueue deduplicated by singleton key")
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("enqueue on %s: %w", queue, err)
	}
	return id, nil
}

// Work registers a worker pool for a queue. Must be called before Start.
func (m *Manager) Work(queue string, concurrency int, handler Handler) {
	if concurrency <= 0 {
		concurrency = 1
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.workers = append(m.workers, workerReg{queue: queue, concurrency: concurrency, handler: handler})
}

// Start launches worker pools, cron schedules and the maintenance sweeper.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return fmt.Errorf("queue manager already started")
	}
	m.started = true
	workers := make([]workerReg, len(m.workers))
	copy(workers, m.workers)
	m.mu.Unlock()

	for _, reg := range workers {
		for i := 0; i < reg.concurrency; i++ {
			m.wg.Add(1)
			go m.runWorker(ctx, reg)
		}
	}

	m.wg.Add(1)
	go m.runMaintenance(ctx)

	m.cron.Start()
	m.log.WithFields(map[string]interface{}{"workers": len(workers)}).Info("Queue manager started")
	return nil
}

// Stop shuts down workers and the cron runner, waiting for in-flight jobs.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.started {
		m.mu.Unlock()
		return
	}
	m.started = false
	m.mu.Unlock()

	close(m.stopCh)
	<-m.cron.Stop().Done()
	m.wg.Wait()
	m.log.Logger.Info("Queue manager stopped")
}

func (m *Manager) runWorker(ctx context.Context, reg workerReg) {
	defer m.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stopCh:
			return
		default:
		}

		job, err := m.fetch(ctx, reg.queue)
		if err != nil {
			m.log.WithError(err).WithField("queue", reg.queue).Warn("Job fetch failed")
		}
		if job == nil {
			select {
			case <-ctx.Done():
				return
			case <-m.stopCh:
				return
			case <-time.After(m.pollInterval):
			}
			continue
		}

		m.dispatch(ctx, reg, job)
	}
}

func (m *Manager) dispatch(ctx context.Context, reg workerReg, job *Job) {
	start := time.Now()
	jobCtx := logging.WithJobID(ctx, job.ID)

	err := reg.handler(jobCtx, job)

	if m.metrics != nil {
		m.metrics.QueueJobLatency.WithLabelValues(reg.queue).Observe(time.Since(start).Seconds())
	}

	if err == nil {
		if cErr := m.complete(ctx, job.ID); cErr != nil {
			m.log.WithError(cErr).WithField("job_id", job.ID).Error("Failed to mark job completed")
		}
		if m.metrics != nil {
			m.metrics.QueueJobsTotal.WithLabelValues(reg.queue, stateCompleted).Inc()
		}
		return
	}

	m.log.WithContext(jobCtx).WithError(err).
		WithField("queue", reg.queue).
		WithField("retry_count", job.RetryCount).
		Warn("Job handler failed")

	retried, fErr := m.fail(ctx, job, err)
	if fErr != nil {
		m.log.WithError(fErr).WithField("job_id", job.ID).Error("Failed to record job failure")
	}
	if m.metrics != nil {
		if retried {
			m.metrics.QueueJobsTotal.WithLabelValues(reg.queue, stateRetry).Inc()
		} else {
			m.metrics.QueueJobsTotal.WithLabelValues(reg.queue, stateFailed).Inc()
		}
	}
}

// fetch claims the oldest runnable job using SKIP LOCKED so parallel workers
// never double-dispatch.
func (m *Manager) fetch(ctx context.Context, queue string) (*Job, error) {
	const claim = `
		UPDATE queue_jobs SET state = 'active', started_at = now()
		WHERE id = (
			SELECT id FROM queue_jobs
			WHERE queue = $1 AND state IN ('created','retry') AND start_after <= now()
			ORDER BY created_at
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, queue, payload, state, retry_limit, retry_count, created_at`

	var job Job
	err := m.db.QueryRowxContext(ctx, claim, queue).StructScan(&job)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &job, nil
}

func (m *Manager) complete(ctx context.Context, jobID string) error {
	_, err := m.db.ExecContext(ctx,
		`UPDATE queue_jobs SET state = 'completed', completed_at = now() WHERE id = $1`, jobID)
	return err
}

// fail applies the retry policy: exponential back-off when configured,
// terminal failure once the retry limit is exhausted.
func (m *Manager) fail(ctx context.Context, job *Job, cause error) (retried bool, err error) {
	output := cause.Error()
	if len(output) > 2048 {
		output = output[:2048]
	}

	if job.RetryCount < job.RetryLimit {
		const retry = `
			UPDATE queue_jobs
			SET state = 'retry',
			    retry_count = retry_count + 1,
			    start_after = now() + make_interval(secs =>
			        CASE WHEN retry_backoff
			             THEN retry_delay * power(2, retry_count)
			             ELSE retry_delay END),
			    output = $2
			WHERE id = $1`
		_, err = m.db.ExecContext(ctx, retry, job.ID, output)
		return true, err
	}

	_, err = m.db.ExecContext(ctx,
		`UPDATE queue_jobs SET state = 'failed', completed_at = now(), output = $2 WHERE id = $1`,
		job.ID, output)
	return false, err
}

// runMaintenance expires stuck jobs, archives failures and prunes archives.
func (m *Manager) runMaintenance(ctx context.Context) {
	defer m.wg.Done()

	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.maintain(ctx)
		}
	}
}

func (m *Manager) maintain(ctx context.Context) {
	// Active jobs past their expiry are treated as failed attempts.
	if _, err := m.db.ExecContext(ctx, `
		UPDATE queue_jobs
		SET state = CASE WHEN retry_count < retry_limit THEN 'retry' ELSE 'failed' END,
		    retry_count = LEAST(retry_count + 1, retry_limit + 1),
		    start_after = now() + make_interval(secs => retry_delay),
		    output = 'expired'
		WHERE state = 'active' AND expire_at IS NOT NULL AND expire_at < now()`); err != nil {
		m.log.WithError(err).Warn("Queue maintenance: expire pass failed")
	}

	archiveAfter := m.settings.JobArchiveFailedAfter
	if _, err := m.db.ExecContext(ctx, `
		UPDATE queue_jobs SET state = 'archived', archived_at = now()
		WHERE state IN ('failed','completed') AND completed_at < now() - $1::interval`,
		fmt.Sprintf("%d seconds", int(archiveAfter.Seconds()))); err != nil {
		m.log.WithError(err).Warn("Queue maintenance: archive pass failed")
	}

	deleteAfter := m.settings.JobDeleteAfter
	if _, err := m.db.ExecContext(ctx, `
		DELETE FROM queue_jobs
		WHERE state = 'archived' AND archived_at < now() - $1::interval`,
		fmt.Sprintf("%d seconds", int(deleteAfter.Seconds()))); err != nil {
		m.log.WithError(err).Warn("Queue maintenance: delete pass failed")
	}
}
