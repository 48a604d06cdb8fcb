package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/revittco/fetchgate/internal/store"
)

// Tiered is a two-tier cache: a mutex-guarded in-memory map on the hot
// path, backed by a durable store.EntryStore that survives restarts.
// Reads check memory first and promote durable hits; writes go through
// to the durable tier best-effort. All durable I/O happens outside the
// memory-tier lock.
type Tiered[V any] struct {
	opts   Options
	store  store.EntryStore // nil disables the durable tier
	codec  Codec[V]
	logger *slog.Logger

	mu      sync.Mutex
	entries map[string]*entry[V]
	stats   Stats

	failures chan PersistFailure

	sweepCancel context.CancelFunc
	sweepDone   chan struct{}
}

// Options configures a Tiered cache instance.
type Options struct {
	// MaxEntries caps the memory tier. Exceeding it triggers a
	// synchronous eviction pass. Defaults to 1000.
	MaxEntries int

	// EvictFraction is the share of MaxEntries removed per eviction
	// pass, rounded up. Defaults to 0.1.
	EvictFraction float64

	// DefaultTTL applies when EntryOptions.TTL is unset. Defaults to 5m.
	DefaultTTL time.Duration

	// DefaultPriority applies when EntryOptions.Priority is unset.
	// Defaults to 0.5.
	DefaultPriority float64

	// SweepInterval is how often the background sweep removes expired
	// entries from both tiers. Zero disables the sweep.
	SweepInterval time.Duration

	// Sealer encrypts serialized values before durable writes. Nil
	// stores plaintext.
	Sealer Sealer

	// Logger for advisory failures. Nil uses slog.Default().
	Logger *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.MaxEntries <= 0 {
		o.MaxEntries = 1000
	}
	if o.EvictFraction <= 0 || o.EvictFraction > 1 {
		o.EvictFraction = 0.1
	}
	if o.DefaultTTL <= 0 {
		o.DefaultTTL = 5 * time.Minute
	}
	if o.DefaultPriority <= 0 || o.DefaultPriority > 1 {
		o.DefaultPriority = 0.5
	}
	return o
}

// PersistFailure reports a best-effort durable-tier operation that
// failed. Failures are also logged; the channel exists so callers and
// tests can observe them without the write blocking the hot path.
type PersistFailure struct {
	Key string
	Op  string
	Err error
	At  time.Time
}

// New creates a tiered cache over st using JSON serialization at the
// durable boundary. st may be nil for a memory-only cache.
func New[V any](st store.EntryStore, opts Options) *Tiered[V] {
	return NewWithCodec[V](st, JSONCodec[V]{}, opts)
}

// NewWithCodec is New with a caller-supplied codec.
func NewWithCodec[V any](st store.EntryStore, codec Codec[V], opts Options) *Tiered[V] {
	opts = opts.withDefaults()
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	c := &Tiered[V]{
		opts:     opts,
		store:    st,
		codec:    codec,
		logger:   logger,
		entries:  make(map[string]*entry[V]),
		failures: make(chan PersistFailure, 16),
	}
	if opts.SweepInterval > 0 {
		ctx, cancel := context.WithCancel(context.Background())
		c.sweepCancel = cancel
		c.sweepDone = make(chan struct{})
		go c.sweepLoop(ctx)
	}
	return c
}

// Get returns the value for key if a valid (unexpired) entry exists in
// either tier. Memory hits touch access stats in place; durable hits are
// promoted into the memory tier. Expired entries count as misses and are
// removed lazily.
func (c *Tiered[V]) Get(ctx context.Context, key string) (V, bool) {
	now := time.Now()

	c.mu.Lock()
	if e, ok := c.entries[key]; ok {
		if e.valid(now) {
			e.accessCount++
			e.lastAccessedAt = now
			c.stats.Hits++
			c.stats.TotalRequests++
			v := e.value
			c.mu.Unlock()
			return v, true
		}
		// Expired in memory. Without a durable tier this copy is the
		// only stale value GetStale can serve, so leave it for the
		// sweep; with one, drop it and fall through in case a newer
		// copy was persisted elsewhere.
		if c.store != nil {
			delete(c.entries, key)
		}
	}
	c.mu.Unlock()

	if v, rec, ok := c.durableGet(ctx, key, now); ok {
		c.promote(key, v, rec, now)
		c.mu.Lock()
		c.stats.Hits++
		c.stats.TotalRequests++
		c.mu.Unlock()
		return v, true
	}

	c.mu.Lock()
	c.stats.Misses++
	c.stats.TotalRequests++
	c.mu.Unlock()
	var zero V
	return zero, false
}

// GetStale returns the value for key ignoring TTL validity, consulting
// memory then the durable tier. It does not touch access stats or the
// hit/miss counters and does not promote. Used by the fallback chain
// when a live fetch has already failed.
func (c *Tiered[V]) GetStale(ctx context.Context, key string) (V, bool) {
	c.mu.Lock()
	if e, ok := c.entries[key]; ok {
		v := e.value
		c.mu.Unlock()
		return v, true
	}
	c.mu.Unlock()

	if c.store == nil {
		var zero V
		return zero, false
	}
	rec, err := c.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			c.logger.Warn("durable read failed", "key", key, "err", err)
		}
		var zero V
		return zero, false
	}
	v, err := c.decodeRecord(rec)
	if err != nil {
		c.logger.Warn("durable record undecodable", "key", key, "err", err)
		var zero V
		return zero, false
	}
	return v, true
}

// Set caches value under key. The durable write is attempted first and
// is best-effort: failures are logged and reported on PersistFailures,
// never returned. The memory write always succeeds; if it pushes the
// tier over capacity, eviction runs synchronously before Set returns.
// A value the codec cannot serialize is an error.
func (c *Tiered[V]) Set(ctx context.Context, key string, value V, opts EntryOptions) error {
	now := time.Now()

	ttl := opts.TTL
	if ttl <= 0 {
		ttl = c.opts.DefaultTTL
	}
	priority := opts.Priority
	if priority == 0 {
		priority = c.opts.DefaultPriority
	}
	if priority < 0 {
		priority = 0
	} else if priority > 1 {
		priority = 1
	}

	if c.store != nil {
		data, err := c.encodeValue(value)
		if err != nil {
			return fmt.Errorf("encode %s: %w", key, err)
		}
		rec := &store.Record{
			Key:            key,
			Value:          data,
			CreatedAt:      now,
			TTL:            ttl,
			Tags:           opts.Tags,
			Priority:       priority,
			AccessCount:    0,
			LastAccessedAt: now,
		}
		if err := c.store.Put(ctx, rec); err != nil {
			c.reportFailure(key, "put", err)
		}
	}

	c.mu.Lock()
	c.entries[key] = &entry[V]{
		key:            key,
		value:          value,
		createdAt:      now,
		ttl:            ttl,
		tags:           tagSet(opts.Tags),
		priority:       priority,
		lastAccessedAt: now,
	}
	c.evictLocked(now)
	c.mu.Unlock()
	return nil
}

// Delete removes key from both tiers. A missing key is not an error.
func (c *Tiered[V]) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()

	if c.store == nil {
		return nil
	}
	if err := c.store.Delete(ctx, key); err != nil {
		return fmt.Errorf("delete %s from durable tier: %w", key, err)
	}
	return nil
}

// DeleteByTags removes every entry whose tag set intersects tags from
// both tiers. A durable-tier failure does not undo the memory removals.
func (c *Tiered[V]) DeleteByTags(ctx context.Context, tags []string) error {
	if len(tags) == 0 {
		return nil
	}

	c.mu.Lock()
	for k, e := range c.entries {
		if e.hasAnyTag(tags) {
			delete(c.entries, k)
		}
	}
	c.mu.Unlock()

	if c.store == nil {
		return nil
	}
	if _, err := c.store.DeleteByTags(ctx, tags); err != nil {
		return fmt.Errorf("delete by tags from durable tier: %w", err)
	}
	return nil
}

// Clear removes all entries from both tiers. Hit/miss counters are not
// reset; they are monotonic for the life of the instance.
func (c *Tiered[V]) Clear(ctx context.Context) error {
	c.mu.Lock()
	c.entries = make(map[string]*entry[V])
	c.mu.Unlock()

	if c.store == nil {
		return nil
	}
	if err := c.store.Clear(ctx); err != nil {
		return fmt.Errorf("clear durable tier: %w", err)
	}
	return nil
}

// Stats returns a snapshot of the counters, reflecting exactly the Get
// calls observed so far.
func (c *Tiered[V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.stats
	s.Entries = len(c.entries)
	if s.TotalRequests > 0 {
		s.HitRate = float64(s.Hits) / float64(s.TotalRequests)
	}
	return s
}

// Len returns the memory-tier entry count.
func (c *Tiered[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// PersistFailures exposes best-effort durable-write failures. The
// channel is buffered and never blocks writers; unread failures beyond
// the buffer are dropped (they are always logged).
func (c *Tiered[V]) PersistFailures() <-chan PersistFailure {
	return c.failures
}

// Close stops the background sweep. It does not close the durable
// store; the store's owner does that.
func (c *Tiered[V]) Close() {
	if c.sweepCancel != nil {
		c.sweepCancel()
		<-c.sweepDone
		c.sweepCancel = nil
	}
}

// durableGet reads and decodes a valid record from the durable tier.
func (c *Tiered[V]) durableGet(ctx context.Context, key string, now time.Time) (V, *store.Record, bool) {
	var zero V
	if c.store == nil {
		return zero, nil, false
	}
	rec, err := c.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			c.logger.Warn("durable read failed", "key", key, "err", err)
		}
		return zero, nil, false
	}
	if rec.Expired(now) {
		return zero, nil, false
	}
	v, err := c.decodeRecord(rec)
	if err != nil {
		c.logger.Warn("durable record undecodable", "key", key, "err", err)
		return zero, nil, false
	}
	return v, rec, true
}

// promote inserts a durable-tier hit into the memory tier, carrying the
// record's bookkeeping forward, and pushes the updated access stats back
// down best-effort.
func (c *Tiered[V]) promote(key string, v V, rec *store.Record, now time.Time) {
	c.mu.Lock()
	c.entries[key] = &entry[V]{
		key:            key,
		value:          v,
		createdAt:      rec.CreatedAt,
		ttl:            rec.TTL,
		tags:           tagSet(rec.Tags),
		priority:       rec.Priority,
		accessCount:    rec.AccessCount + 1,
		lastAccessedAt: now,
	}
	c.evictLocked(now)
	c.mu.Unlock()

	if err := c.store.Touch(context.Background(), key, rec.AccessCount+1, now); err != nil {
		c.reportFailure(key, "touch", err)
	}
}

func (c *Tiered[V]) encodeValue(v V) ([]byte, error) {
	data, err := c.codec.Encode(v)
	if err != nil {
		return nil, err
	}
	if c.opts.Sealer != nil {
		data, err = c.opts.Sealer.Encrypt(data)
		if err != nil {
			return nil, fmt.Errorf("seal: %w", err)
		}
	}
	return data, nil
}

func (c *Tiered[V]) decodeRecord(rec *store.Record) (V, error) {
	data := rec.Value
	if c.opts.Sealer != nil {
		var err error
		data, err = c.opts.Sealer.Decrypt(data)
		if err != nil {
			var zero V
			return zero, fmt.Errorf("unseal: %w", err)
		}
	}
	return c.codec.Decode(data)
}

func (c *Tiered[V]) reportFailure(key, op string, err error) {
	c.logger.Warn("durable tier write failed", "key", key, "op", op, "err", err)
	select {
	case c.failures <- PersistFailure{Key: key, Op: op, Err: err, At: time.Now()}:
	default:
	}
}

// sweepLoop periodically removes TTL-expired entries from the memory
// tier and prunes expired durable records, independent of capacity
// pressure, until Close cancels it.
func (c *Tiered[V]) sweepLoop(ctx context.Context) {
	defer close(c.sweepDone)

	ticker := time.NewTicker(c.opts.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.sweepOnce(ctx, time.Now())
		}
	}
}

func (c *Tiered[V]) sweepOnce(ctx context.Context, now time.Time) {
	c.mu.Lock()
	for k, e := range c.entries {
		if !e.valid(now) {
			delete(c.entries, k)
		}
	}
	c.mu.Unlock()

	if c.store == nil {
		return
	}
	if _, err := c.store.DeleteExpired(ctx, now); err != nil && ctx.Err() == nil {
		c.reportFailure("", "sweep", err)
	}
}
