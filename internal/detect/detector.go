package detect

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/guestledger/dupguard/internal/config"
	"github.com/guestledger/dupguard/internal/types"
)

// Store is the slice of storage the detector needs
type Store interface {
	FindMatches(ctx context.Context, q types.DuplicateQuery, epsilon float64, since time.Time, limit int) (types.CandidateSet, error)
	InsertTransaction(ctx context.Context, rec *types.TransactionRecord) (int64, error)
}

// Cache is the slice of the query cache the detector needs
type Cache interface {
	Get(q types.DuplicateQuery) (types.CandidateSet, bool)
	Put(q types.DuplicateQuery, set types.CandidateSet)
	Invalidate(predicate func(q types.DuplicateQuery) bool) int
}

// Observer receives one sample per completed check. Implementations must
// not block; samples are recorded on the check path.
type Observer interface {
	Observe(operation string, d time.Duration, success, cacheHit bool)
}

// OpDuplicateCheck is the operation label checks are observed under
const OpDuplicateCheck = "duplicate_check"

// Detector answers the question "has this transaction been seen before".
// A check matches on the exact key (reference number, calendar date, amount
// within epsilon), restricted to the detection window, newest first, capped.
type Detector struct {
	store    Store
	cache    Cache
	cfg      config.DetectorConfig
	log      zerolog.Logger
	observer Observer
	matchers map[string]Matcher
}

// New creates a detector. cache may be nil, in which case every check goes
// to the store.
func New(store Store, cache Cache, cfg config.DetectorConfig, log zerolog.Logger) *Detector {
	return &Detector{
		store: store,
		cache: cache,
		cfg:   cfg,
		log:   log.With().Str("component", "detect").Logger(),
	}
}

// SetObserver installs the performance observer. Call during startup, before
// checks begin.
func (d *Detector) SetObserver(o Observer) {
	d.observer = o
}

// Check looks up duplicate candidates for q. A query with no matches returns
// an empty, non-nil set. Store failures surface as ErrStoreUnavailable so
// callers can fail open.
func (d *Detector) Check(ctx context.Context, q types.DuplicateQuery) (types.CandidateSet, error) {
	return d.check(ctx, q, true)
}

// CheckUncached is Check with the cache bypassed in both directions, used by
// the performance test harness to measure the raw store path.
func (d *Detector) CheckUncached(ctx context.Context, q types.DuplicateQuery) (types.CandidateSet, error) {
	return d.check(ctx, q, false)
}

func (d *Detector) check(ctx context.Context, q types.DuplicateQuery, useCache bool) (set types.CandidateSet, err error) {
	start := time.Now()
	cacheHit := false
	defer func() {
		if d.observer != nil {
			d.observer.Observe(OpDuplicateCheck, time.Since(start), err == nil, cacheHit)
		}
	}()

	if verr := q.Validate(); verr != nil {
		return nil, fmt.Errorf("invalid duplicate query: %w", verr)
	}

	since := d.windowStart()

	// A date older than the window cannot match anything; skip the store
	// and the cache entirely.
	if types.DateOnly(q.TransactionDate).Before(since) {
		return types.CandidateSet{}, nil
	}

	if useCache && d.cache != nil {
		if cached, ok := d.cache.Get(q); ok {
			cacheHit = true
			return d.applyMatcher(q, cached), nil
		}
	}

	found, ferr := d.store.FindMatches(ctx, q, d.cfg.AmountEpsilon, since, d.cfg.MaxCandidates)
	if ferr != nil {
		d.log.Warn().Err(ferr).Str("reference", q.ReferenceNumber).Msg("duplicate lookup failed")
		return nil, fmt.Errorf("%w: %v", types.ErrStoreUnavailable, ferr)
	}

	if useCache && d.cache != nil {
		d.cache.Put(q, found)
	}

	return d.applyMatcher(q, found), nil
}

// Ingest stores a new transaction and invalidates cached check results for
// its reference number. Epsilon neighbors can straddle cent buckets, so
// invalidation is by reference rather than by exact key.
func (d *Detector) Ingest(ctx context.Context, rec *types.TransactionRecord) (int64, error) {
	if err := rec.Validate(); err != nil {
		return 0, fmt.Errorf("invalid transaction: %w", err)
	}

	id, err := d.store.InsertTransaction(ctx, rec)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", types.ErrStoreUnavailable, err)
	}

	if d.cache != nil {
		ref := rec.ReferenceNumber
		if n := d.cache.Invalidate(func(q types.DuplicateQuery) bool { return q.ReferenceNumber == ref }); n > 0 {
			d.log.Debug().Str("reference", ref).Int("entries", n).Msg("invalidated cached checks")
		}
	}

	return id, nil
}

// WindowStart returns the oldest calendar date still inside the detection
// window.
func (d *Detector) WindowStart() time.Time {
	return d.windowStart()
}

func (d *Detector) windowStart() time.Time {
	return types.DateOnly(time.Now().AddDate(0, 0, -d.cfg.WindowDays))
}
