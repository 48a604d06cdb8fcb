package cache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/revittco/fetchgate/internal/store"
)

// fakeStore is an in-memory store.EntryStore for tests. failPut makes
// every Put fail, to exercise best-effort persistence.
type fakeStore struct {
	mu      sync.Mutex
	records map[string]*store.Record
	failPut bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{records: make(map[string]*store.Record)}
}

func (f *fakeStore) Put(_ context.Context, r *store.Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failPut {
		return errors.New("disk full")
	}
	cp := *r
	f.records[r.Key] = &cp
	return nil
}

func (f *fakeStore) Get(_ context.Context, key string) (*store.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.records[key]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (f *fakeStore) Touch(_ context.Context, key string, accessCount int64, lastAccessedAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if r, ok := f.records[key]; ok {
		r.AccessCount = accessCount
		r.LastAccessedAt = lastAccessedAt
	}
	return nil
}

func (f *fakeStore) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.records, key)
	return nil
}

func (f *fakeStore) DeleteByTags(_ context.Context, tags []string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
outer:
	for k, r := range f.records {
		for _, want := range tags {
			for _, got := range r.Tags {
				if got == want {
					delete(f.records, k)
					n++
					continue outer
				}
			}
		}
	}
	return n, nil
}

func (f *fakeStore) DeleteExpired(_ context.Context, now time.Time) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for k, r := range f.records {
		if r.Expired(now) {
			delete(f.records, k)
			n++
		}
	}
	return n, nil
}

func (f *fakeStore) Clear(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = make(map[string]*store.Record)
	return nil
}

func (f *fakeStore) Count(_ context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.records), nil
}

func (f *fakeStore) Ping(context.Context) error { return nil }
func (f *fakeStore) Close() error               { return nil }

func TestGetSet(t *testing.T) {
	c := New[float64](newFakeStore(), Options{})
	ctx := context.Background()

	// Miss on empty cache.
	if _, ok := c.Get(ctx, "price:AAA"); ok {
		t.Fatal("expected miss on empty cache")
	}

	if err := c.Set(ctx, "price:AAA", 101.5, EntryOptions{TTL: time.Minute}); err != nil {
		t.Fatalf("set: %v", err)
	}
	v, ok := c.Get(ctx, "price:AAA")
	if !ok || v != 101.5 {
		t.Fatalf("Get = %v, %v; want 101.5, true", v, ok)
	}

	s := c.Stats()
	if s.Hits != 1 || s.Misses != 1 || s.TotalRequests != 2 {
		t.Fatalf("stats = %+v; want hits=1 misses=1 total=2", s)
	}
}

func TestHappyPathStats(t *testing.T) {
	c := New[float64](newFakeStore(), Options{})
	ctx := context.Background()

	if err := c.Set(ctx, "price:AAA", 101.5, EntryOptions{TTL: 60 * time.Second}); err != nil {
		t.Fatalf("set: %v", err)
	}
	v, ok := c.Get(ctx, "price:AAA")
	if !ok || v != 101.5 {
		t.Fatalf("Get = %v, %v; want 101.5, true", v, ok)
	}

	s := c.Stats()
	if s.Hits != 1 || s.Misses != 0 {
		t.Fatalf("stats = %+v; want hits=1 misses=0", s)
	}
	if s.HitRate != 1.0 {
		t.Fatalf("hitRate = %v, want 1.0", s.HitRate)
	}
}

func TestTTLExpiry(t *testing.T) {
	c := New[float64](newFakeStore(), Options{})
	ctx := context.Background()

	if err := c.Set(ctx, "price:AAA", 101.5, EntryOptions{TTL: time.Millisecond}); err != nil {
		t.Fatalf("set: %v", err)
	}
	time.Sleep(5 * time.Millisecond)

	if _, ok := c.Get(ctx, "price:AAA"); ok {
		t.Fatal("expected miss after TTL expiry")
	}
	if s := c.Stats(); s.Misses != 1 {
		t.Fatalf("misses = %d, want 1", s.Misses)
	}
}

func TestGetStaleIgnoresTTL(t *testing.T) {
	c := New[float64](newFakeStore(), Options{})
	ctx := context.Background()

	if err := c.Set(ctx, "q", 7.5, EntryOptions{TTL: time.Millisecond}); err != nil {
		t.Fatalf("set: %v", err)
	}
	time.Sleep(5 * time.Millisecond)

	if _, ok := c.Get(ctx, "q"); ok {
		t.Fatal("expected fresh miss")
	}
	v, ok := c.GetStale(ctx, "q")
	if !ok || v != 7.5 {
		t.Fatalf("GetStale = %v, %v; want 7.5, true", v, ok)
	}

	// The stale accessor must not disturb the hit/miss sequence.
	if s := c.Stats(); s.Hits != 0 || s.Misses != 1 {
		t.Fatalf("stats after GetStale = %+v; want hits=0 misses=1", s)
	}
}

func TestStaleSurvivesExpiredReadMemoryOnly(t *testing.T) {
	c := New[float64](nil, Options{})
	ctx := context.Background()

	if err := c.Set(ctx, "q", 7.5, EntryOptions{TTL: time.Millisecond}); err != nil {
		t.Fatalf("set: %v", err)
	}
	time.Sleep(5 * time.Millisecond)

	// A fresh miss must not destroy the only copy; the stale read
	// that follows it still serves the value.
	if _, ok := c.Get(ctx, "q"); ok {
		t.Fatal("expected fresh miss")
	}
	v, ok := c.GetStale(ctx, "q")
	if !ok || v != 7.5 {
		t.Fatalf("GetStale after expired Get = %v, %v; want 7.5, true", v, ok)
	}
}

func TestTagInvalidation(t *testing.T) {
	st := newFakeStore()
	c := New[int](st, Options{})
	ctx := context.Background()

	mustSet := func(key string, v int, tags ...string) {
		t.Helper()
		if err := c.Set(ctx, key, v, EntryOptions{TTL: time.Minute, Tags: tags}); err != nil {
			t.Fatalf("set %s: %v", key, err)
		}
	}
	mustSet("a", 1, "x")
	mustSet("b", 2, "x", "y")
	mustSet("c", 3, "y")

	if err := c.DeleteByTags(ctx, []string{"x"}); err != nil {
		t.Fatalf("deleteByTags: %v", err)
	}

	if _, ok := c.Get(ctx, "a"); ok {
		t.Fatal("a should be invalidated")
	}
	if _, ok := c.Get(ctx, "b"); ok {
		t.Fatal("b should be invalidated")
	}
	if v, ok := c.Get(ctx, "c"); !ok || v != 3 {
		t.Fatalf("c = %v, %v; want 3, true", v, ok)
	}

	// Durable tier is invalidated too.
	if n, _ := st.Count(ctx); n != 1 {
		t.Fatalf("durable count = %d, want 1", n)
	}
}

func TestDelete(t *testing.T) {
	st := newFakeStore()
	c := New[int](st, Options{})
	ctx := context.Background()

	if err := c.Set(ctx, "k", 1, EntryOptions{}); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := c.Delete(ctx, "k"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok := c.Get(ctx, "k"); ok {
		t.Fatal("expected miss after delete")
	}
	if n, _ := st.Count(ctx); n != 0 {
		t.Fatalf("durable count = %d, want 0", n)
	}

	// Absent key is not an error.
	if err := c.Delete(ctx, "k"); err != nil {
		t.Fatalf("delete missing: %v", err)
	}
}

func TestClearKeepsCounters(t *testing.T) {
	c := New[int](newFakeStore(), Options{})
	ctx := context.Background()

	c.Set(ctx, "k", 1, EntryOptions{}) //nolint:errcheck
	c.Get(ctx, "k")

	if err := c.Clear(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if c.Len() != 0 {
		t.Fatalf("len after clear = %d", c.Len())
	}
	if s := c.Stats(); s.Hits != 1 || s.TotalRequests != 1 {
		t.Fatalf("counters reset by Clear: %+v", s)
	}
}

func TestEvictionBound(t *testing.T) {
	c := New[int](newFakeStore(), Options{MaxEntries: 10})
	ctx := context.Background()

	for i := 0; i < 25; i++ {
		key := string(rune('a' + i))
		if err := c.Set(ctx, key, i, EntryOptions{TTL: time.Minute}); err != nil {
			t.Fatalf("set %d: %v", i, err)
		}
		if c.Len() > 10 {
			t.Fatalf("memory tier at %d entries after set %d, want <= 10", c.Len(), i)
		}
	}
	if s := c.Stats(); s.Evictions == 0 {
		t.Fatal("expected evictions to be recorded")
	}
}

func TestEvictionFavorsAccessedEntries(t *testing.T) {
	c := New[int](newFakeStore(), Options{MaxEntries: 3, EvictFraction: 0.4})
	ctx := context.Background()

	c.Set(ctx, "hot", 1, EntryOptions{TTL: time.Minute, Priority: 0.9}) //nolint:errcheck
	c.Set(ctx, "warm", 2, EntryOptions{TTL: time.Minute})               //nolint:errcheck
	c.Set(ctx, "cold", 3, EntryOptions{TTL: time.Minute})               //nolint:errcheck

	// Accessing "hot" raises its score above the untouched entries.
	for i := 0; i < 5; i++ {
		if _, ok := c.Get(ctx, "hot"); !ok {
			t.Fatal("hot should be present")
		}
	}

	// Overflow triggers eviction of the lowest-scoring entries.
	c.Set(ctx, "new", 4, EntryOptions{TTL: time.Minute}) //nolint:errcheck

	if _, ok := c.entries["hot"]; !ok {
		t.Fatal("hot should survive eviction")
	}
}

func TestEvictedEntryRetrievableFromDurable(t *testing.T) {
	st := newFakeStore()
	c := New[int](st, Options{MaxEntries: 2, EvictFraction: 0.5})
	ctx := context.Background()

	c.Set(ctx, "a", 1, EntryOptions{TTL: time.Minute}) //nolint:errcheck
	c.Set(ctx, "b", 2, EntryOptions{TTL: time.Minute}) //nolint:errcheck
	c.Set(ctx, "c", 3, EntryOptions{TTL: time.Minute}) //nolint:errcheck

	if c.Len() > 2 {
		t.Fatalf("len = %d, want <= 2", c.Len())
	}

	// Every key is still reachable: evicted ones via durable promotion.
	for _, k := range []string{"a", "b", "c"} {
		if _, ok := c.Get(ctx, k); !ok {
			t.Fatalf("%s should be retrievable after memory eviction", k)
		}
	}
}

func TestPromotionFromDurable(t *testing.T) {
	st := newFakeStore()
	now := time.Now()
	st.records["warm"] = &store.Record{
		Key:            "warm",
		Value:          []byte(`42`),
		CreatedAt:      now,
		TTL:            time.Minute,
		Priority:       0.5,
		AccessCount:    3,
		LastAccessedAt: now,
	}

	c := New[int](st, Options{})
	ctx := context.Background()

	v, ok := c.Get(ctx, "warm")
	if !ok || v != 42 {
		t.Fatalf("Get = %v, %v; want 42, true", v, ok)
	}
	if c.Len() != 1 {
		t.Fatalf("len = %d after promotion, want 1", c.Len())
	}
	if s := c.Stats(); s.Hits != 1 {
		t.Fatalf("hits = %d, want 1", s.Hits)
	}

	// Promotion carries access bookkeeping forward.
	if e := c.entries["warm"]; e.accessCount != 4 {
		t.Fatalf("accessCount = %d, want 4", e.accessCount)
	}
	if rec, _ := st.Get(ctx, "warm"); rec.AccessCount != 4 {
		t.Fatalf("durable accessCount = %d, want 4", rec.AccessCount)
	}
}

func TestExpiredDurableRecordIsMiss(t *testing.T) {
	st := newFakeStore()
	now := time.Now()
	st.records["old"] = &store.Record{
		Key:            "old",
		Value:          []byte(`1`),
		CreatedAt:      now.Add(-2 * time.Minute),
		TTL:            time.Minute,
		LastAccessedAt: now.Add(-2 * time.Minute),
	}

	c := New[int](st, Options{})
	if _, ok := c.Get(context.Background(), "old"); ok {
		t.Fatal("expired durable record must be a miss")
	}
}

func TestWriteThroughSurvivesPersistFailure(t *testing.T) {
	st := newFakeStore()
	st.failPut = true
	c := New[int](st, Options{})
	ctx := context.Background()

	if err := c.Set(ctx, "k", 9, EntryOptions{TTL: time.Minute}); err != nil {
		t.Fatalf("set should not surface durable failure: %v", err)
	}

	// Memory tier is authoritative within the process.
	v, ok := c.Get(ctx, "k")
	if !ok || v != 9 {
		t.Fatalf("Get = %v, %v; want 9, true", v, ok)
	}

	// The failure is observable on the channel.
	select {
	case f := <-c.PersistFailures():
		if f.Key != "k" || f.Op != "put" {
			t.Fatalf("failure = %+v; want key=k op=put", f)
		}
	case <-time.After(time.Second):
		t.Fatal("expected a persist failure report")
	}
}

func TestAccessStatsUpdatedOnRead(t *testing.T) {
	c := New[int](newFakeStore(), Options{})
	ctx := context.Background()

	c.Set(ctx, "k", 1, EntryOptions{TTL: time.Minute}) //nolint:errcheck
	before := c.entries["k"].lastAccessedAt

	time.Sleep(2 * time.Millisecond)
	c.Get(ctx, "k")

	e := c.entries["k"]
	if e.accessCount != 1 {
		t.Fatalf("accessCount = %d, want 1", e.accessCount)
	}
	if !e.lastAccessedAt.After(before) {
		t.Fatal("lastAccessedAt should advance on read")
	}
	if e.lastAccessedAt.Before(e.createdAt) {
		t.Fatal("lastAccessedAt must not precede createdAt")
	}
}

func TestSweepRemovesExpired(t *testing.T) {
	st := newFakeStore()
	c := New[int](st, Options{SweepInterval: 10 * time.Millisecond})
	defer c.Close()
	ctx := context.Background()

	c.Set(ctx, "short", 1, EntryOptions{TTL: time.Millisecond}) //nolint:errcheck
	c.Set(ctx, "long", 2, EntryOptions{TTL: time.Hour})         //nolint:errcheck

	deadline := time.Now().Add(time.Second)
	for c.Len() > 1 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if c.Len() != 1 {
		t.Fatalf("len = %d after sweep, want 1", c.Len())
	}
	if n, _ := st.Count(ctx); n != 1 {
		t.Fatalf("durable count = %d after sweep, want 1", n)
	}
}

func TestCloseStopsSweep(t *testing.T) {
	c := New[int](newFakeStore(), Options{SweepInterval: 5 * time.Millisecond})
	c.Close()
	// Close again is harmless.
	c.Close()
}

func TestConcurrentGetSet(t *testing.T) {
	c := New[int](newFakeStore(), Options{MaxEntries: 50})
	ctx := context.Background()

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				key := string(rune('a' + i%20))
				if i%3 == 0 {
					c.Set(ctx, key, i, EntryOptions{TTL: time.Minute}) //nolint:errcheck
				} else {
					c.Get(ctx, key)
				}
			}
		}(g)
	}
	wg.Wait()

	if c.Len() > 50 {
		t.Fatalf("len = %d, want <= 50", c.Len())
	}
}
