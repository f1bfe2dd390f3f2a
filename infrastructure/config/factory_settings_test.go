package config

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type mapSource struct {
	values map[string]string
	err    error
}

func (m *mapSource) GetSetting(_ context.Context, key string) (string, bool, error) {
	if m.err != nil {
		return "", false, m.err
	}
	v, ok := m.values[key]
	return v, ok, nil
}

func TestLoadFactorySettingsDefaults(t *testing.T) {
	s := LoadFactorySettings(context.Background(), nil)
	assert.Equal(t, 3, s.JobRetryLimit)
	assert.Equal(t, 30*time.Second, s.JobRetryDelay)
	assert.Equal(t, 7*24*time.Hour, s.JobArchiveFailedAfter)
	assert.Equal(t, 30*24*time.Hour, s.JobDeleteAfter)
	assert.Equal(t, 5*time.Minute, s.WatchdogInterval)
	assert.Equal(t, 20*time.Minute, s.ProcessingTimeout)
}

func TestLoadFactorySettingsOverrides(t *testing.T) {
	src := &mapSource{values: map[string]string{
		KeyJobRetryLimit:            "5",
		KeyJobRetryDelaySeconds:     "60",
		KeyJobArchiveFailedDays:     "14",
		KeyJobDeleteAfterDays:       "60",
		KeyWatchdogIntervalMinutes:  "10",
		KeyProcessingTimeoutMinutes: "45",
	}}
	s := LoadFactorySettings(context.Background(), src)
	assert.Equal(t, 5, s.JobRetryLimit)
	assert.Equal(t, time.Minute, s.JobRetryDelay)
	assert.Equal(t, 14*24*time.Hour, s.JobArchiveFailedAfter)
	assert.Equal(t, 60*24*time.Hour, s.JobDeleteAfter)
	assert.Equal(t, 10*time.Minute, s.WatchdogInterval)
	assert.Equal(t, 45*time.Minute, s.ProcessingTimeout)
}

func TestLoadFactorySettingsUnreachableTableFallsBack(t *testing.T) {
	src := &mapSource{err: errors.New("connection refused")}
	s := LoadFactorySettings(context.Background(), src)
	assert.Equal(t, DefaultFactorySettings(), s)
}

func TestLoadFactorySettingsIgnoresMalformedValues(t *testing.T) {
	src := &mapSource{values: map[string]string{
		KeyJobRetryLimit:           "not-a-number",
		KeyWatchdogIntervalMinutes: "-5",
	}}
	s := LoadFactorySettings(context.Background(), src)
	assert.Equal(t, 3, s.JobRetryLimit)
	assert.Equal(t, 5*time.Minute, s.WatchdogInterval)
}

func TestEnvHelpers(t *testing.T) {
	t.Setenv("TEST_STR", " hello ")
	assert.Equal(t, "hello", Env("TEST_STR", "fallback"))
	assert.Equal(t, "fallback", Env("TEST_STR_UNSET", "fallback"))

	t.Setenv("TEST_INT", "42")
	assert.Equal(t, 42, EnvInt("TEST_INT", 7))
	assert.Equal(t, 7, EnvInt("TEST_INT_UNSET", 7))

	t.Setenv("TEST_CSV", "a, b ,c,")
	assert.Equal(t, []string{"a", "b", "c"}, EnvCSV("TEST_CSV"))

	_, err := RequireEnv("TEST_REQUIRED_MISSING")
	assert.Error(t, err)
}
