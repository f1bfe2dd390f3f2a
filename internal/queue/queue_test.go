package queue

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/complianceai/platform/infrastructure/config"
	"github.com/complianceai/platform/infrastructure/logging"
)

func newTestManager(t *testing.T) (*Manager, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	sqlxDB := sqlx.NewDb(db, "sqlmock")
	m := New(sqlxDB, logging.New("test", "error", "text"), nil, config.DefaultFactorySettings())
	return m, mock
}

func TestSendReturnsJobID(t *testing.T) {
	m, mock := newTestManager(t)

	mock.ExpectQuery(`INSERT INTO queue_jobs`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("job-123"))

	id, err := m.Send(context.Background(), QueueCertificateIngestion,
		map[string]string{"jobId": "ing-1"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "job-123", id)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSendSingletonDeduplicates(t *testing.T) {
	m, mock := newTestManager(t)

	// The guarded INSERT returns no row when the singleton already exists.
	mock.ExpectQuery(`INSERT INTO queue_jobs`).WillReturnError(sql.ErrNoRows)

	id, err := m.Send(context.Background(), QueueCertificateIngestion,
		map[string]string{"jobId": "ing-1"},
		&Options{SingletonKey: "job-X", SingletonSeconds: 60})
	require.NoError(t, err)
	assert.Empty(t, id, "singleton duplicate must yield an empty id, not an error")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFetchClaimsOldestRunnableJob(t *testing.T) {
	m, mock := newTestManager(t)

	rows := sqlmock.NewRows([]string{"id", "queue", "payload", "state", "retry_limit", "retry_count", "created_at"}).
		AddRow("job-1", QueueCertificateIngestion, []byte(`{"jobId":"ing-1"}`), stateActive, 3, 0, time.Now())
	mock.ExpectQuery(`UPDATE queue_jobs SET state = 'active'`).
		WithArgs(QueueCertificateIngestion).
		WillReturnRows(rows)

	job, err := m.fetch(context.Background(), QueueCertificateIngestion)
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, "job-1", job.ID)
	assert.Equal(t, 3, job.RetryLimit)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFetchReturnsNilWhenEmpty(t *testing.T) {
	m, mock := newTestManager(t)

	mock.ExpectQuery(`UPDATE queue_jobs SET state = 'active'`).
		WillReturnError(sql.ErrNoRows)

	job, err := m.fetch(context.Background(), QueueWebhookDelivery)
	require.NoError(t, err)
	assert.Nil(t, job)
}

func TestFailSchedulesRetryWithBackoff(t *testing.T) {
	m, mock := newTestManager(t)

	mock.ExpectExec(`SET state = 'retry'`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	retried, err := m.fail(context.Background(), &Job{
		ID: "job-1", Queue: QueueCertificateIngestion, RetryLimit: 3, RetryCount: 1,
	}, assert.AnError)
	require.NoError(t, err)
	assert.True(t, retried)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFailExhaustedMovesToFailedState(t *testing.T) {
	m, mock := newTestManager(t)

	mock.ExpectExec(`SET state = 'failed'`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	retried, err := m.fail(context.Background(), &Job{
		ID: "job-1", Queue: QueueCertificateIngestion, RetryLimit: 3, RetryCount: 3,
	}, assert.AnError)
	require.NoError(t, err)
	assert.False(t, retried)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCompleteMarksJobCompleted(t *testing.T) {
	m, mock := newTestManager(t)

	mock.ExpectExec(`UPDATE queue_jobs SET state = 'completed'`).
		WithArgs("job-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, m.complete(context.Background(), "job-1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStatsGroupsByQueueAndState(t *testing.T) {
	m, mock := newTestManager(t)

	rows := sqlmock.NewRows([]string{"queue", "state", "count"}).
		AddRow(QueueCertificateIngestion, stateCreated, 4).
		AddRow(QueueCertificateIngestion, stateCompleted, 10).
		AddRow(QueueWebhookDelivery, stateRetry, 1)
	mock.ExpectQuery(`SELECT queue, state, count`).WillReturnRows(rows)

	stats, err := m.Stats(context.Background())
	require.NoError(t, err)
	require.Len(t, stats, 3)
	assert.Equal(t, int64(4), stats[0].Count)
}

func TestScheduleRegistersCronEntry(t *testing.T) {
	m, mock := newTestManager(t)

	mock.ExpectExec(`INSERT INTO queue_schedules`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, m.Schedule(QueueCertificateWatchdog, "*/5 * * * *", nil, nil, ""))
	assert.Contains(t, m.ScheduledQueues(), QueueCertificateWatchdog)

	mock.ExpectExec(`DELETE FROM queue_schedules`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, m.Unschedule(QueueCertificateWatchdog))
	assert.NotContains(t, m.ScheduledQueues(), QueueCertificateWatchdog)
}

func TestScheduleRejectsBadCron(t *testing.T) {
	m, _ := newTestManager(t)
	err := m.Schedule(QueueCertificateWatchdog, "not a cron", nil, nil, "")
	assert.Error(t, err)
}
