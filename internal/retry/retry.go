// Package retry provides the bounded exponential backoff helper used by
// the file cleanup and audit write paths. Attempts are capped, delays grow
// by a multiplier up to a ceiling, and context cancellation stops the loop
// between attempts.
package retry

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Config holds retry behavior for one call site
type Config struct {
	MaxAttempts    int           // Total attempts including the first (default: 3)
	InitialBackoff time.Duration // Delay before the first retry (default: 500ms)
	MaxBackoff     time.Duration // Backoff ceiling (default: 5s)
	Multiplier     float64       // Backoff growth factor (default: 2.0)
	Timeout        time.Duration // Per-attempt timeout, 0 disables
}

// Default returns the default retry configuration
func Default() Config {
	return Config{
		MaxAttempts:    3,
		InitialBackoff: 500 * time.Millisecond,
		MaxBackoff:     5 * time.Second,
		Multiplier:     2.0,
	}
}

// normalized fills zero fields so a partially built Config behaves sanely
func (c Config) normalized() Config {
	d := Default()
	if c.MaxAttempts < 1 {
		c.MaxAttempts = d.MaxAttempts
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = d.InitialBackoff
	}
	if c.MaxBackoff < c.InitialBackoff {
		c.MaxBackoff = c.InitialBackoff
	}
	if c.Multiplier < 1 {
		c.Multiplier = d.Multiplier
	}
	return c
}

// Do executes fn with bounded exponential backoff. Every error is retried
// until attempts run out; the decision and audit paths want persistence
// over fail-fast, and callers that can classify errors do so before or
// after this loop. The returned error wraps the last attempt's error.
func Do(ctx context.Context, log zerolog.Logger, cfg Config, operation string, fn func(context.Context) error) error {
	cfg = cfg.normalized()

	var lastErr error
	backoff := cfg.InitialBackoff

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		attemptCtx := ctx
		var cancel context.CancelFunc
		if cfg.Timeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		}
		err := fn(attemptCtx)
		if cancel != nil {
			cancel()
		}

		if err == nil {
			if attempt > 1 {
				log.Info().Str("operation", operation).Int("attempt", attempt).
					Msg("succeeded after retry")
			}
			return nil
		}
		lastErr = err

		if attempt == cfg.MaxAttempts {
			break
		}
		if ctx.Err() != nil {
			return fmt.Errorf("%s: context canceled: %w", operation, ctx.Err())
		}

		log.Warn().Str("operation", operation).
			Int("attempt", attempt).Int("max_attempts", cfg.MaxAttempts).
			Dur("backoff", backoff).Err(err).
			Msg("attempt failed, backing off")

		select {
		case <-time.After(backoff):
			backoff = time.Duration(float64(backoff) * cfg.Multiplier)
			if backoff > cfg.MaxBackoff {
				backoff = cfg.MaxBackoff
			}
		case <-ctx.Done():
			return fmt.Errorf("%s: context canceled during backoff: %w", operation, ctx.Err())
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operation, cfg.MaxAttempts, lastErr)
}
