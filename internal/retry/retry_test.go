package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guestledger/dupguard/internal/logger"
)

func fastConfig() Config {
	return Config{
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     4 * time.Millisecond,
		Multiplier:     2.0,
	}
}

func TestDoSucceedsFirstAttempt(t *testing.T) {
	calls := 0
	err := Do(context.Background(), logger.Nop(), fastConfig(), "noop", func(ctx context.Context) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestDoRetriesUntilSuccess(t *testing.T) {
	calls := 0
	err := Do(context.Background(), logger.Nop(), fastConfig(), "flaky", func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDoExhaustsAttempts(t *testing.T) {
	boom := errors.New("still broken")
	calls := 0
	err := Do(context.Background(), logger.Nop(), fastConfig(), "doomed", func(ctx context.Context) error {
		calls++
		return boom
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "after 3 attempts")
}

func TestDoStopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := Do(ctx, logger.Nop(), Config{
		MaxAttempts:    5,
		InitialBackoff: 50 * time.Millisecond,
		MaxBackoff:     time.Second,
		Multiplier:     2.0,
	}, "canceled", func(ctx context.Context) error {
		calls++
		cancel()
		return errors.New("fail then cancel")
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls, "no further attempts after cancellation")
}

func TestDoPerAttemptTimeout(t *testing.T) {
	cfg := fastConfig()
	cfg.Timeout = 5 * time.Millisecond

	var sawDeadline bool
	err := Do(context.Background(), logger.Nop(), cfg, "slow", func(ctx context.Context) error {
		select {
		case <-ctx.Done():
			sawDeadline = true
			return ctx.Err()
		case <-time.After(100 * time.Millisecond):
			return nil
		}
	})
	require.Error(t, err)
	assert.True(t, sawDeadline, "attempt context should carry the per-attempt deadline")
}

func TestNormalizedFillsZeroFields(t *testing.T) {
	cfg := Config{}.normalized()
	d := Default()
	assert.Equal(t, d.MaxAttempts, cfg.MaxAttempts)
	assert.Equal(t, d.InitialBackoff, cfg.InitialBackoff)
	assert.Equal(t, d.Multiplier, cfg.Multiplier)
	assert.GreaterOrEqual(t, cfg.MaxBackoff, cfg.InitialBackoff)
}

func TestBackoffIsCapped(t *testing.T) {
	cfg := Config{
		MaxAttempts:    4,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     2 * time.Millisecond,
		Multiplier:     10,
	}
	start := time.Now()
	_ = Do(context.Background(), logger.Nop(), cfg, "capped", func(ctx context.Context) error {
		return errors.New("always")
	})
	// Three backoffs of at most 2ms each; generous bound for slow CI.
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}
