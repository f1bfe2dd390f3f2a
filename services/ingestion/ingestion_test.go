package ingestion

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gorilla/mux"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/complianceai/platform/domain/certificate"
	domain "github.com/complianceai/platform/domain/ingestion"
	"github.com/complianceai/platform/infrastructure/logging"
	"github.com/complianceai/platform/internal/queue"
	"github.com/complianceai/platform/services/events"
)

func newTestRepo(t *testing.T) (*Repository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewRepository(sqlx.NewDb(db, "sqlmock")), mock
}

func testLog() *logging.Logger {
	return logging.New("test", "error", "text")
}

// --- repository ---

func TestClaimJobBumpsAttemptAndFilters(t *testing.T) {
	repo, mock := newTestRepo(t)

	mock.ExpectExec(`UPDATE ingestion_jobs`).
		WithArgs("job-1", domain.MaxAttempts).
		WillReturnResult(sqlmock.NewResult(0, 1))

	claimed, err := repo.ClaimJob(context.Background(), "job-1")
	require.NoError(t, err)
	assert.True(t, claimed)

	// Terminal rows match nothing and are not claimed.
	mock.ExpectExec(`UPDATE ingestion_jobs`).
		WithArgs("job-2", domain.MaxAttempts).
		WillReturnResult(sqlmock.NewResult(0, 0))

	claimed, err = repo.ClaimJob(context.Background(), "job-2")
	require.NoError(t, err)
	assert.False(t, claimed)
}

func TestPinJobCertificateOnlyWhenUnset(t *testing.T) {
	repo, mock := newTestRepo(t)

	mock.ExpectExec(`UPDATE ingestion_jobs SET certificate_id`).
		WithArgs("job-1", "cert-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.PinJobCertificate(context.Background(), "job-1", "cert-1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

// --- coordinator idempotency gate ---

func coordinatorForSkipTests(t *testing.T, repo *Repository) *Coordinator {
	t.Helper()
	log := testLog()
	hub := events.NewHub(log, nil)
	t.Cleanup(hub.Close)
	return NewCoordinator(repo, nil, nil, nil, hub, log)
}

func TestShouldSkipCompleteJob(t *testing.T) {
	repo, _ := newTestRepo(t)
	c := coordinatorForSkipTests(t, repo)

	skip, reason := c.shouldSkip(context.Background(), &domain.Job{Status: domain.StatusComplete})
	assert.True(t, skip)
	assert.Equal(t, "already complete", reason)
}

func TestShouldSkipExhaustedFailedJob(t *testing.T) {
	repo, _ := newTestRepo(t)
	c := coordinatorForSkipTests(t, repo)

	skip, _ := c.shouldSkip(context.Background(), &domain.Job{
		Status: domain.StatusFailed, AttemptCount: domain.MaxAttempts,
	})
	assert.True(t, skip)

	skip, _ = c.shouldSkip(context.Background(), &domain.Job{
		Status: domain.StatusFailed, AttemptCount: 1,
	})
	assert.False(t, skip)
}

func TestShouldSkipHealthyCertificate(t *testing.T) {
	repo, mock := newTestRepo(t)
	c := coordinatorForSkipTests(t, repo)

	certID := "cert-1"
	columns := []string{"id", "property_id", "organisation_id", "category", "file_name",
		"file_size", "mime_type", "status", "created_at", "updated_at"}

	mock.ExpectQuery(`SELECT \* FROM certificates`).
		WillReturnRows(sqlmock.NewRows(columns).
			AddRow(certID, "prop-1", "org-1", "GAS_SAFETY", "gas.pdf",
				100, "application/pdf", string(certificate.StatusNeedsReview), time.Now(), time.Now()))

	skip, reason := c.shouldSkip(context.Background(), &domain.Job{
		Status: domain.StatusPending, CertificateID: &certID,
	})
	assert.True(t, skip)
	assert.Equal(t, "certificate already healthy", reason)

	// A FAILED certificate does not block a rerun.
	mock.ExpectQuery(`SELECT \* FROM certificates`).
		WillReturnRows(sqlmock.NewRows(columns).
			AddRow(certID, "prop-1", "org-1", "GAS_SAFETY", "gas.pdf",
				100, "application/pdf", string(certificate.StatusFailed), time.Now(), time.Now()))

	skip, _ = c.shouldSkip(context.Background(), &domain.Job{
		Status: domain.StatusPending, CertificateID: &certID,
	})
	assert.False(t, skip)
}

// --- HTTP handlers ---

type captureSender struct {
	queueName string
	payload   interface{}
	opts      *queue.Options
}

func (s *captureSender) Send(_ context.Context, queueName string, payload interface{}, opts *queue.Options) (string, error) {
	s.queueName = queueName
	s.payload = payload
	s.opts = opts
	return "queued-1", nil
}

type captureIncoming struct {
	source    string
	processed bool
	calls     int
}

func (c *captureIncoming) LogIncoming(_ context.Context, source string, _ *string, _, _ json.RawMessage, processed bool, _ *string) error {
	c.source = source
	c.processed = processed
	c.calls++
	return nil
}

func TestCreateJobEndpoint(t *testing.T) {
	repo, mock := newTestRepo(t)
	sender := &captureSender{}
	handlers := NewHandlers(repo, sender, &captureIncoming{}, testLog())

	mock.ExpectQuery(`INSERT INTO ingestion_jobs`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "status", "attempt_count", "created_at", "updated_at"}).
			AddRow("job-1", string(domain.StatusPending), 0, time.Now(), time.Now()))

	router := mux.NewRouter()
	handlers.Register(router)

	body := `{"propertyId":"prop-1","certificateType":"gas_safety","fileName":"gas.pdf","objectPath":"docs/gas.pdf"}`
	req := httptest.NewRequest(http.MethodPost, "/ingestion-jobs", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "job-1", resp["jobId"])

	assert.Equal(t, queue.QueueCertificateIngestion, sender.queueName)
	require.NotNil(t, sender.opts)
	assert.True(t, sender.opts.RetryBackoff)
	assert.Equal(t, domain.MaxAttempts, sender.opts.RetryLimit)
}

func TestCreateJobValidation(t *testing.T) {
	repo, _ := newTestRepo(t)
	handlers := NewHandlers(repo, &captureSender{}, nil, testLog())

	router := mux.NewRouter()
	handlers.Register(router)

	tests := []struct {
		name string
		body string
	}{
		{"missing property", `{"fileName":"a.pdf","objectPath":"x"}`},
		{"missing file name", `{"propertyId":"p","objectPath":"x"}`},
		{"no byte source", `{"propertyId":"p","fileName":"a.pdf"}`},
		{"malformed json", `{`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/ingestion-jobs", bytes.NewBufferString(tt.body))
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestHMSActionUpdatePersistsIncomingLog(t *testing.T) {
	repo, mock := newTestRepo(t)
	incoming := &captureIncoming{}
	handlers := NewHandlers(repo, &captureSender{}, incoming, testLog())

	mock.ExpectExec(`UPDATE remedial_actions`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	router := mux.NewRouter()
	handlers.Register(router)

	body := `{"actionId":"act-1","status":"completed","notes":"done","costActual":12500}`
	req := httptest.NewRequest(http.MethodPost, "/integrations/hms/actions", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, incoming.calls)
	assert.Equal(t, "hms-actions", incoming.source)
	assert.True(t, incoming.processed)
}

func TestHMSActionUpdateUnknownActionStillLogged(t *testing.T) {
	repo, mock := newTestRepo(t)
	incoming := &captureIncoming{}
	handlers := NewHandlers(repo, &captureSender{}, incoming, testLog())

	mock.ExpectExec(`UPDATE remedial_actions`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	router := mux.NewRouter()
	handlers.Register(router)

	body := `{"actionId":"nope","status":"COMPLETED"}`
	req := httptest.NewRequest(http.MethodPost, "/integrations/hms/work-orders", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, 1, incoming.calls)
	assert.False(t, incoming.processed)
	assert.Equal(t, "hms-work-orders", incoming.source)
}
