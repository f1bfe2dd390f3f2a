package database

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
)

// SettingsStore reads the factory_settings table.
type SettingsStore struct {
	db *sqlx.DB
}

// NewSettingsStore creates a SettingsStore.
func NewSettingsStore(db *sqlx.DB) *SettingsStore {
	return &SettingsStore{db: db}
}

// GetSetting returns a single setting value; found=false when absent.
func (s *SettingsStore) GetSetting(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.GetContext(ctx, &value, `SELECT value FROM factory_settings WHERE key = $1`, key)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}
