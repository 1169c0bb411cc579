// Package cache implements the TTL query cache that fronts transaction
// store lookups. The cache is an explicit component instance handed to its
// callers; it is safe for concurrent use and readers never observe a
// partially written entry. Misses always fall through to a correct live
// query, so the cache can only cost latency, never correctness.
package cache

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/guestledger/dupguard/internal/types"
)

// Config holds cache tuning
type Config struct {
	// TTL is how long an entry stays valid after Put
	TTL time.Duration

	// SweepInterval is the background eviction period used by Start
	SweepInterval time.Duration
}

// DefaultConfig returns the default cache configuration
func DefaultConfig() *Config {
	return &Config{
		TTL:           300 * time.Second,
		SweepInterval: 60 * time.Second,
	}
}

// Stats is a point-in-time snapshot of cache effectiveness
type Stats struct {
	Hits        int64   `json:"hits"`
	Misses      int64   `json:"misses"`
	HitRate     float64 `json:"hit_rate"`
	Size        int     `json:"size"`
	Evictions   int64   `json:"evictions"`
	Corruptions int64   `json:"corruptions"`
}

type entry struct {
	query      types.DuplicateQuery
	candidates types.CandidateSet
	insertedAt time.Time
	ttl        time.Duration
}

func (e *entry) expiredAt(now time.Time) bool {
	return now.Sub(e.insertedAt) > e.ttl
}

// Cache is a concurrent TTL cache of duplicate-check results keyed by the
// canonical query key
type Cache struct {
	mu      sync.RWMutex
	entries map[string]*entry

	hits        int64
	misses      int64
	evictions   int64
	corruptions int64

	ttl           time.Duration
	sweepInterval time.Duration
	log           zerolog.Logger

	sweepMu   sync.Mutex
	sweepDone chan struct{}
	sweeping  bool
}

// New creates a cache with the given configuration. A nil config uses
// defaults; zero fields are filled from defaults.
func New(cfg *Config, log zerolog.Logger) *Cache {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	d := DefaultConfig()
	if cfg.TTL <= 0 {
		cfg.TTL = d.TTL
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = d.SweepInterval
	}
	return &Cache{
		entries:       make(map[string]*entry),
		ttl:           cfg.TTL,
		sweepInterval: cfg.SweepInterval,
		log:           log,
	}
}

// Get returns the cached candidate set for the query and whether it was
// present and fresh. Expired entries are dropped on access. The returned
// set is a copy; callers may mutate it freely.
func (c *Cache) Get(q types.DuplicateQuery) (types.CandidateSet, bool) {
	key := q.Key()

	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		c.misses++
		return nil, false
	}
	if e.expiredAt(time.Now()) {
		delete(c.entries, key)
		c.evictions++
		c.misses++
		return nil, false
	}
	// Integrity check: a stored entry whose query no longer keys to this
	// slot is unreadable; treat as a miss and fall through to the store.
	if e.query.Key() != key {
		delete(c.entries, key)
		c.corruptions++
		c.misses++
		c.log.Warn().Str("key", key).Msg("dropping corrupt cache entry")
		return nil, false
	}

	c.hits++
	return copySet(e.candidates), true
}

// Put stores the candidate set for the query with the configured TTL.
// Concurrent Puts for the same key are last-write-wins with a TTL reset.
func (c *Cache) Put(q types.DuplicateQuery, set types.CandidateSet) {
	e := &entry{
		query:      q,
		candidates: copySet(set),
		insertedAt: time.Now(),
		ttl:        c.ttl,
	}

	c.mu.Lock()
	c.entries[q.Key()] = e
	c.mu.Unlock()
}

// Invalidate removes every entry whose query satisfies the predicate and
// returns the number removed. The import pipeline calls this after
// inserting a new transaction so a later check in the same session cannot
// see a stale "no duplicates" result.
func (c *Cache) Invalidate(predicate func(types.DuplicateQuery) bool) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key, e := range c.entries {
		if predicate(e.query) {
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}

// InvalidateAll empties the cache and returns the number of entries removed
func (c *Cache) InvalidateAll() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := len(c.entries)
	c.entries = make(map[string]*entry)
	return removed
}

// Sweep evicts expired entries and returns the number evicted
func (c *Cache) Sweep() int {
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	evicted := 0
	for key, e := range c.entries {
		if e.expiredAt(now) {
			delete(c.entries, key)
			evicted++
		}
	}
	c.evictions += int64(evicted)
	return evicted
}

// Stats returns a snapshot of cache counters
func (c *Cache) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	total := c.hits + c.misses
	rate := 0.0
	if total > 0 {
		rate = float64(c.hits) / float64(total)
	}
	return Stats{
		Hits:        c.hits,
		Misses:      c.misses,
		HitRate:     rate,
		Size:        len(c.entries),
		Evictions:   c.evictions,
		Corruptions: c.corruptions,
	}
}

// ResetStats zeroes the hit/miss counters without touching entries
func (c *Cache) ResetStats() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.hits = 0
	c.misses = 0
	c.evictions = 0
	c.corruptions = 0
}

// Start launches the background sweep loop. Safe to call once; Stop ends
// the loop. Expiry still happens on access when the loop is not running.
func (c *Cache) Start() {
	c.sweepMu.Lock()
	defer c.sweepMu.Unlock()

	if c.sweeping {
		return
	}
	c.sweeping = true
	c.sweepDone = make(chan struct{})

	go func(done chan struct{}) {
		ticker := time.NewTicker(c.sweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if n := c.Sweep(); n > 0 {
					c.log.Debug().Int("evicted", n).Msg("cache sweep")
				}
			case <-done:
				return
			}
		}
	}(c.sweepDone)
}

// Stop ends the background sweep loop
func (c *Cache) Stop() {
	c.sweepMu.Lock()
	defer c.sweepMu.Unlock()

	if !c.sweeping {
		return
	}
	close(c.sweepDone)
	c.sweeping = false
}

func copySet(set types.CandidateSet) types.CandidateSet {
	if set == nil {
		return types.CandidateSet{}
	}
	out := make(types.CandidateSet, len(set))
	copy(out, set)
	return out
}
