package cache

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/guestledger/dupguard/internal/logger"
	"github.com/guestledger/dupguard/internal/types"
)

func testQuery(ref string, amount float64) types.DuplicateQuery {
	return types.DuplicateQuery{
		ReferenceNumber: ref,
		TransactionDate: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
		Amount:          amount,
	}
}

func testSet(ids ...int64) types.CandidateSet {
	set := make(types.CandidateSet, 0, len(ids))
	for _, id := range ids {
		set = append(set, types.TransactionRecord{
			ID:              id,
			ReferenceNumber: "Booking.com",
			TransactionDate: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
			Amount:          121.00,
		})
	}
	return set
}

func TestGetMissThenHit(t *testing.T) {
	c := New(DefaultConfig(), logger.Nop())
	q := testQuery("Booking.com", 121.00)

	if _, ok := c.Get(q); ok {
		t.Fatal("expected miss on empty cache")
	}

	c.Put(q, testSet(42, 41))

	got, ok := c.Get(q)
	if !ok {
		t.Fatal("expected hit after Put")
	}
	if len(got) != 2 || got[0].ID != 42 || got[1].ID != 41 {
		t.Errorf("unexpected candidates: %+v", got)
	}

	stats := c.Stats()
	if stats.Hits != 1 || stats.Misses != 1 {
		t.Errorf("stats = %+v, want 1 hit 1 miss", stats)
	}
	if stats.HitRate != 0.5 {
		t.Errorf("hit rate = %v, want 0.5", stats.HitRate)
	}
	if stats.Size != 1 {
		t.Errorf("size = %d, want 1", stats.Size)
	}
}

func TestGetReturnsCopy(t *testing.T) {
	c := New(DefaultConfig(), logger.Nop())
	q := testQuery("Booking.com", 121.00)
	c.Put(q, testSet(42))

	first, _ := c.Get(q)
	first[0].ID = 999

	second, _ := c.Get(q)
	if second[0].ID != 42 {
		t.Errorf("cached entry mutated through returned slice: got id %d", second[0].ID)
	}
}

func TestPutCopiesInput(t *testing.T) {
	c := New(DefaultConfig(), logger.Nop())
	q := testQuery("Booking.com", 121.00)

	set := testSet(42)
	c.Put(q, set)
	set[0].ID = 999

	got, _ := c.Get(q)
	if got[0].ID != 42 {
		t.Errorf("cache shared storage with caller slice: got id %d", got[0].ID)
	}
}

func TestTTLExpiry(t *testing.T) {
	c := New(&Config{TTL: 30 * time.Millisecond, SweepInterval: time.Hour}, logger.Nop())
	q := testQuery("Booking.com", 121.00)
	c.Put(q, testSet(42))

	if _, ok := c.Get(q); !ok {
		t.Fatal("expected hit before expiry")
	}

	time.Sleep(80 * time.Millisecond)

	if _, ok := c.Get(q); ok {
		t.Error("expected miss after TTL expiry")
	}
	if stats := c.Stats(); stats.Evictions != 1 {
		t.Errorf("evictions = %d, want 1", stats.Evictions)
	}
}

func TestEmptySetIsCacheable(t *testing.T) {
	c := New(DefaultConfig(), logger.Nop())
	q := testQuery("NoMatches", 10.00)
	c.Put(q, types.CandidateSet{})

	got, ok := c.Get(q)
	if !ok {
		t.Fatal("empty result must be cacheable; it is the common case")
	}
	if len(got) != 0 {
		t.Errorf("expected empty set, got %d candidates", len(got))
	}
}

func TestInvalidateByPredicate(t *testing.T) {
	c := New(DefaultConfig(), logger.Nop())
	c.Put(testQuery("Booking.com", 121.00), testSet(1))
	c.Put(testQuery("Booking.com", 50.00), testSet(2))
	c.Put(testQuery("Airbnb", 121.00), testSet(3))

	removed := c.Invalidate(func(q types.DuplicateQuery) bool {
		return q.ReferenceNumber == "Booking.com"
	})
	if removed != 2 {
		t.Errorf("removed = %d, want 2", removed)
	}

	if _, ok := c.Get(testQuery("Booking.com", 121.00)); ok {
		t.Error("invalidated entry still present")
	}
	if _, ok := c.Get(testQuery("Airbnb", 121.00)); !ok {
		t.Error("unrelated entry was dropped")
	}
}

func TestInvalidateAll(t *testing.T) {
	c := New(DefaultConfig(), logger.Nop())
	c.Put(testQuery("A", 1), testSet(1))
	c.Put(testQuery("B", 2), testSet(2))

	if removed := c.InvalidateAll(); removed != 2 {
		t.Errorf("removed = %d, want 2", removed)
	}
	if stats := c.Stats(); stats.Size != 0 {
		t.Errorf("size after InvalidateAll = %d, want 0", stats.Size)
	}
}

func TestSweepEvictsOnlyExpired(t *testing.T) {
	c := New(&Config{TTL: 25 * time.Millisecond, SweepInterval: time.Hour}, logger.Nop())
	c.Put(testQuery("old", 1), testSet(1))
	time.Sleep(60 * time.Millisecond)
	c.Put(testQuery("fresh", 2), testSet(2))

	if evicted := c.Sweep(); evicted != 1 {
		t.Errorf("evicted = %d, want 1", evicted)
	}
	if _, ok := c.Get(testQuery("fresh", 2)); !ok {
		t.Error("fresh entry should survive the sweep")
	}
}

func TestStartStopBackgroundSweep(t *testing.T) {
	c := New(&Config{TTL: 10 * time.Millisecond, SweepInterval: 15 * time.Millisecond}, logger.Nop())
	c.Put(testQuery("gone", 1), testSet(1))

	c.Start()
	defer c.Stop()

	deadline := time.After(2 * time.Second)
	for {
		if c.Stats().Size == 0 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("background sweep never evicted the expired entry")
		case <-time.After(10 * time.Millisecond):
		}
	}

	// Stop twice must not panic; Start after Stop resumes.
	c.Stop()
	c.Start()
	c.Stop()
}

func TestResetStats(t *testing.T) {
	c := New(DefaultConfig(), logger.Nop())
	q := testQuery("A", 1)
	c.Put(q, testSet(1))
	c.Get(q)
	c.Get(testQuery("missing", 2))

	c.ResetStats()
	stats := c.Stats()
	if stats.Hits != 0 || stats.Misses != 0 {
		t.Errorf("counters not reset: %+v", stats)
	}
	if stats.Size != 1 {
		t.Errorf("ResetStats must keep entries; size = %d", stats.Size)
	}
}

func TestConcurrentAccess(t *testing.T) {
	c := New(DefaultConfig(), logger.Nop())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				q := testQuery(fmt.Sprintf("ref-%d", j%10), float64(j%7))
				switch j % 4 {
				case 0:
					c.Put(q, testSet(int64(j)))
				case 1:
					if set, ok := c.Get(q); ok && len(set) == 0 {
						t.Error("hit returned empty set that was never stored")
					}
				case 2:
					c.Invalidate(func(q types.DuplicateQuery) bool {
						return q.Amount == float64(n%7)
					})
				default:
					c.Stats()
				}
			}
		}(i)
	}
	wg.Wait()
}
