package monitor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/guestledger/dupguard/internal/cache"
	"github.com/guestledger/dupguard/internal/types"
)

// Checker is the duplicate-check surface the load test drives.
type Checker interface {
	Check(ctx context.Context, q types.DuplicateQuery) (types.CandidateSet, error)
	CheckUncached(ctx context.Context, q types.DuplicateQuery) (types.CandidateSet, error)
}

// StatsSource reports cache effectiveness counters.
type StatsSource interface {
	Stats() cache.Stats
}

// LoadTestOptions controls a synthetic check run.
type LoadTestOptions struct {
	// Count is how many checks to issue. Defaults to 100, capped at 10000.
	Count int `json:"count"`

	// Concurrency bounds in-flight checks. Defaults to 8, capped at 64.
	Concurrency int `json:"concurrency"`

	// UseCache routes checks through the cache so repeated queries hit.
	UseCache bool `json:"use_cache"`

	// RatePerSec paces check issue. Zero means unpaced.
	RatePerSec float64 `json:"rate_per_sec"`
}

const (
	maxLoadTestCount       = 10000
	maxLoadTestConcurrency = 64
)

func (o LoadTestOptions) normalized() LoadTestOptions {
	if o.Count <= 0 {
		o.Count = 100
	}
	if o.Count > maxLoadTestCount {
		o.Count = maxLoadTestCount
	}
	if o.Concurrency <= 0 {
		o.Concurrency = 8
	}
	if o.Concurrency > maxLoadTestConcurrency {
		o.Concurrency = maxLoadTestConcurrency
	}
	return o
}

// LoadTestReport summarizes a synthetic check run.
type LoadTestReport struct {
	Count       int           `json:"count"`
	Errors      int           `json:"errors"`
	UseCache    bool          `json:"use_cache"`
	Concurrency int           `json:"concurrency"`
	Elapsed     time.Duration `json:"elapsed"`
	AvgDuration time.Duration `json:"avg_duration"`
	P95Duration time.Duration `json:"p95_duration"`
	MaxDuration time.Duration `json:"max_duration"`
	PerSecond   float64       `json:"per_second"`
	CacheHits   int64         `json:"cache_hits"`
	CacheMisses int64         `json:"cache_misses"`
}

// LoadTest issues synthetic duplicate checks through checker and reports
// latency and cache behavior. Queries draw from a small key pool so
// cached runs repeat keys and produce hits. A nil cacheStats leaves the
// hit counters at zero. Cancelling ctx stops issue; checks already in
// flight are waited for.
func (m *Monitor) LoadTest(ctx context.Context, checker Checker, cacheStats StatsSource, opts LoadTestOptions) (LoadTestReport, error) {
	opts = opts.normalized()

	m.log.Info().
		Int("count", opts.Count).
		Int("concurrency", opts.Concurrency).
		Bool("use_cache", opts.UseCache).
		Float64("rate_per_sec", opts.RatePerSec).
		Msg("load test started")

	limiter := rate.NewLimiter(rate.Inf, opts.Concurrency)
	if opts.RatePerSec > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RatePerSec), 1)
	}

	var before cache.Stats
	if cacheStats != nil {
		before = cacheStats.Stats()
	}

	sem := semaphore.NewWeighted(int64(opts.Concurrency))
	var (
		mu        sync.Mutex
		durations []time.Duration
		errCount  int
	)

	distinct := opts.Count/5 + 1
	base := time.Now().UTC().Truncate(24 * time.Hour)

	start := time.Now()
	var issueErr error
	for i := 0; i < opts.Count; i++ {
		if err := limiter.Wait(ctx); err != nil {
			issueErr = err
			break
		}
		if err := sem.Acquire(ctx, 1); err != nil {
			issueErr = err
			break
		}

		q := types.DuplicateQuery{
			ReferenceNumber: fmt.Sprintf("LOAD-%05d", i%distinct),
			TransactionDate: base.AddDate(0, 0, -(i % 30)),
			Amount:          10 + float64(i%distinct),
		}
		go func(q types.DuplicateQuery) {
			defer sem.Release(1)

			checkStart := time.Now()
			var err error
			if opts.UseCache {
				_, err = checker.Check(ctx, q)
			} else {
				_, err = checker.CheckUncached(ctx, q)
			}
			d := time.Since(checkStart)

			mu.Lock()
			durations = append(durations, d)
			if err != nil {
				errCount++
			}
			mu.Unlock()
		}(q)
	}

	// Wait out in-flight checks even when ctx died; each check observes
	// ctx itself and returns promptly.
	_ = sem.Acquire(context.WithoutCancel(ctx), int64(opts.Concurrency))
	elapsed := time.Since(start)

	report := LoadTestReport{
		Count:       len(durations),
		Errors:      errCount,
		UseCache:    opts.UseCache,
		Concurrency: opts.Concurrency,
		Elapsed:     elapsed,
		P95Duration: percentile(durations, 0.95),
	}
	var total time.Duration
	for _, d := range durations {
		total += d
		if d > report.MaxDuration {
			report.MaxDuration = d
		}
	}
	if len(durations) > 0 {
		report.AvgDuration = total / time.Duration(len(durations))
		if elapsed > 0 {
			report.PerSecond = float64(len(durations)) / elapsed.Seconds()
		}
	}
	if cacheStats != nil {
		after := cacheStats.Stats()
		report.CacheHits = after.Hits - before.Hits
		report.CacheMisses = after.Misses - before.Misses
	}

	m.log.Info().
		Int("count", report.Count).
		Int("errors", report.Errors).
		Dur("elapsed", report.Elapsed).
		Dur("p95", report.P95Duration).
		Msg("load test finished")
	return report, issueErr
}
