package config

import (
	"context"
	"strconv"
	"time"
)

// Factory setting keys consulted at start-up.
const (
	KeyJobRetryLimit            = "JOB_RETRY_LIMIT"
	KeyJobRetryDelaySeconds     = "JOB_RETRY_DELAY_SECONDS"
	KeyJobArchiveFailedDays     = "JOB_ARCHIVE_FAILED_AFTER_DAYS"
	KeyJobDeleteAfterDays       = "JOB_DELETE_AFTER_DAYS"
	KeyWatchdogIntervalMinutes  = "CERTIFICATE_WATCHDOG_INTERVAL_MINUTES"
	KeyProcessingTimeoutMinutes = "CERTIFICATE_PROCESSING_TIMEOUT_MINUTES"
)

// FactorySettings holds operational limits loaded from the factory_settings
// table. Every field has a safe default used when the table is unreachable.
type FactorySettings struct {
	JobRetryLimit          int
	JobRetryDelay          time.Duration
	JobArchiveFailedAfter  time.Duration
	JobDeleteAfter         time.Duration
	WatchdogInterval       time.Duration
	ProcessingTimeout      time.Duration
}

// DefaultFactorySettings returns the fallback values.
func DefaultFactorySettings() FactorySettings {
	return FactorySettings{
		JobRetryLimit:         3,
		JobRetryDelay:         30 * time.Second,
		JobArchiveFailedAfter: 7 * 24 * time.Hour,
		JobDeleteAfter:        30 * 24 * time.Hour,
		WatchdogInterval:      5 * time.Minute,
		ProcessingTimeout:     20 * time.Minute,
	}
}

// SettingsSource looks up a single factory setting by key.
// The boolean reports whether the key was present.
type SettingsSource interface {
	GetSetting(ctx context.Context, key string) (string, bool, error)
}

// LoadFactorySettings reads all known keys from src, falling back to the
// default for any key that is missing, malformed, or unreadable.
func LoadFactorySettings(ctx context.Context, src SettingsSource) FactorySettings {
	s := DefaultFactorySettings()
	if src == nil {
		return s
	}

	if n, ok := intSetting(ctx, src, KeyJobRetryLimit); ok && n >= 0 {
		s.JobRetryLimit = n
	}
	if n, ok := intSetting(ctx, src, KeyJobRetryDelaySeconds); ok && n > 0 {
		s.JobRetryDelay = time.Duration(n) * time.Second
	}
	if n, ok := intSetting(ctx, src, KeyJobArchiveFailedDays); ok && n > 0 {
		s.JobArchiveFailedAfter = time.Duration(n) * 24 * time.Hour
	}
	if n, ok := intSetting(ctx, src, KeyJobDeleteAfterDays); ok && n > 0 {
		s.JobDeleteAfter = time.Duration(n) * 24 * time.Hour
	}
	if n, ok := intSetting(ctx, src, KeyWatchdogIntervalMinutes); ok && n > 0 {
		s.WatchdogInterval = time.Duration(n) * time.Minute
	}
	if n, ok := intSetting(ctx, src, KeyProcessingTimeoutMinutes); ok && n > 0 {
		s.ProcessingTimeout = time.Duration(n) * time.Minute
	}
	return s
}

func intSetting(ctx context.Context, src SettingsSource, key string) (int, bool) {
	raw, found, err := src.GetSetting(ctx, key)
	if err != nil || !found {
		return 0, false
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return n, true
}
