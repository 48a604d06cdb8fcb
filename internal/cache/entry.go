package cache

import "time"

// entry is one memory-tier cache entry.
type entry[V any] struct {
	key            string
	value          V
	createdAt      time.Time
	ttl            time.Duration
	tags           map[string]struct{}
	priority       float64
	accessCount    int64
	lastAccessedAt time.Time
}

// valid reports whether the entry's TTL window is still open at now.
func (e *entry[V]) valid(now time.Time) bool {
	return now.Sub(e.createdAt) < e.ttl
}

// hasAnyTag reports whether the entry carries at least one of tags.
func (e *entry[V]) hasAnyTag(tags []string) bool {
	for _, t := range tags {
		if _, ok := e.tags[t]; ok {
			return true
		}
	}
	return false
}

// EntryOptions controls how a value is cached by Set.
type EntryOptions struct {
	// TTL is the validity window. Zero or negative uses the cache default.
	TTL time.Duration

	// Tags label the entry for bulk invalidation via DeleteByTags.
	Tags []string

	// Priority weighs the entry during eviction, clamped to [0,1].
	// Zero means unset and uses the default of 0.5.
	Priority float64
}

func tagSet(tags []string) map[string]struct{} {
	s := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		s[t] = struct{}{}
	}
	return s
}
