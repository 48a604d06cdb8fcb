package store

import (
	"context"
	"time"
)

// EntryStore is the durable cache tier: a persistent key-value store that
// survives process restarts. It is consulted on memory-tier misses and
// written through on every successful set. Implementations return real
// errors; the cache layer decides which of them are advisory.
type EntryStore interface {
	// Put inserts or replaces the record for r.Key.
	Put(ctx context.Context, r *Record) error

	// Get returns the record for key, or ErrNotFound. Expiry is not
	// checked here; the cache layer owns TTL semantics.
	Get(ctx context.Context, key string) (*Record, error)

	// Touch updates access bookkeeping for key. Missing keys are ignored.
	Touch(ctx context.Context, key string, accessCount int64, lastAccessedAt time.Time) error

	// Delete removes key. A missing key is not an error.
	Delete(ctx context.Context, key string) error

	// DeleteByTags removes every record whose tag set intersects tags and
	// reports how many were removed.
	DeleteByTags(ctx context.Context, tags []string) (int, error)

	// DeleteExpired removes records whose TTL window had elapsed as of now.
	DeleteExpired(ctx context.Context, now time.Time) (int, error)

	// Clear removes all records.
	Clear(ctx context.Context) error

	// Count returns the number of stored records, expired or not.
	Count(ctx context.Context) (int, error)

	Ping(ctx context.Context) error
	Close() error
}

// Record is one persisted cache entry. Value holds the codec-serialized
// (and possibly encrypted) payload; the store never inspects it. The
// remaining fields are the minimum needed to reconstruct TTL validity and
// eviction scores after a restart.
type Record struct {
	Key            string
	Value          []byte
	CreatedAt      time.Time
	TTL            time.Duration
	Tags           []string
	Priority       float64
	AccessCount    int64
	LastAccessedAt time.Time
}

// Expired reports whether the record's validity window has elapsed at now.
func (r *Record) Expired(now time.Time) bool {
	return now.Sub(r.CreatedAt) >= r.TTL
}
