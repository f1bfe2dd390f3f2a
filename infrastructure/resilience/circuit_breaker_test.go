package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBoom = errors.New("boom")

func failing() error  { return errBoom }
func succeeding() error { return nil }

func TestCircuitOpensAfterConsecutiveFailures(t *testing.T) {
	cb := New(Config{MaxFailures: 3, Timeout: time.Minute})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		assert.Equal(t, errBoom, cb.Execute(ctx, failing))
	}
	assert.Equal(t, StateOpen, cb.State())

	err := cb.Execute(ctx, succeeding)
	assert.Equal(t, ErrCircuitOpen, err)
}

func TestCircuitHalfOpensAfterTimeout(t *testing.T) {
	cb := New(Config{MaxFailures: 1, Timeout: 10 * time.Millisecond, HalfOpenMax: 1})
	ctx := context.Background()

	require.Error(t, cb.Execute(ctx, failing))
	assert.Equal(t, StateOpen, cb.State())

	time.Sleep(20 * time.Millisecond)

	require.NoError(t, cb.Execute(ctx, succeeding))
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitSuccessResetsFailureCount(t *testing.T) {
	cb := New(Config{MaxFailures: 2, Timeout: time.Minute})
	ctx := context.Background()

	require.Error(t, cb.Execute(ctx, failing))
	require.NoError(t, cb.Execute(ctx, succeeding))
	require.Error(t, cb.Execute(ctx, failing))
	assert.Equal(t, StateClosed, cb.State(), "non-consecutive failures must not open the circuit")
}

func TestBreakerGroupIsolatesKeys(t *testing.T) {
	group := NewGroup(Config{MaxFailures: 1, Timeout: time.Minute})
	ctx := context.Background()

	require.Error(t, group.Execute(ctx, "host-a", failing))
	assert.Equal(t, StateOpen, group.Get("host-a").State())
	assert.Equal(t, StateClosed, group.Get("host-b").State())

	require.NoError(t, group.Execute(ctx, "host-b", succeeding))
}

func TestRetrySucceedsAfterTransientFailures(t *testing.T) {
	attempts := 0
	err := Retry(context.Background(), RetryConfig{
		MaxAttempts:  3,
		InitialDelay: time.Millisecond,
		MaxDelay:     10 * time.Millisecond,
		Multiplier:   2,
	}, func() error {
		attempts++
		if attempts < 3 {
			return errBoom
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestRetryExhaustionReturnsLastError(t *testing.T) {
	err := Retry(context.Background(), RetryConfig{
		MaxAttempts:  2,
		InitialDelay: time.Millisecond,
		MaxDelay:     time.Millisecond,
		Multiplier:   1,
	}, failing)
	assert.Equal(t, errBoom, err)
}

func TestRetryHonoursContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Retry(ctx, RetryConfig{
		MaxAttempts:  5,
		InitialDelay: time.Second,
		MaxDelay:     time.Second,
		Multiplier:   1,
	}, failing)
	assert.ErrorIs(t, err, context.Canceled)
}
