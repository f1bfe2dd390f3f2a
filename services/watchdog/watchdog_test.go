package watchdog

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/complianceai/platform/infrastructure/logging"
	"github.com/complianceai/platform/services/events"
)

func newTestWatchdog(t *testing.T) (*Watchdog, sqlmock.Sqlmock, *events.Hub) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	log := logging.New("test", "error", "text")
	hub := events.NewHub(log, nil)
	t.Cleanup(hub.Close)

	w := New(sqlx.NewDb(db, "sqlmock"), hub, 20*time.Minute, log)
	return w, mock, hub
}

func TestSweepTransitionsStuckCertificates(t *testing.T) {
	w, mock, _ := newTestWatchdog(t)

	rows := sqlmock.NewRows([]string{"id", "property_id"}).
		AddRow("cert-1", "prop-1").
		AddRow("cert-2", "prop-2")
	mock.ExpectQuery(`UPDATE certificates`).WillReturnRows(rows)

	require.NoError(t, w.Sweep(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSweepNoStuckCertificates(t *testing.T) {
	w, mock, _ := newTestWatchdog(t)

	mock.ExpectQuery(`UPDATE certificates`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "property_id"}))

	require.NoError(t, w.Sweep(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSweepPropagatesQueryErrors(t *testing.T) {
	w, mock, _ := newTestWatchdog(t)

	mock.ExpectQuery(`UPDATE certificates`).WillReturnError(assert.AnError)
	assert.Error(t, w.Sweep(context.Background()))
}
