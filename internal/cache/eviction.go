package cache

import (
	"math"
	"sort"
	"time"
)

// score ranks an entry for eviction. Lower scores are evicted first, so
// the formula favors entries that are high priority, frequently accessed,
// and recently accessed. Staleness decays the score regardless of
// priority: an important entry nobody reads drifts toward eviction too.
func (e *entry[V]) score(now time.Time) float64 {
	idle := now.Sub(e.lastAccessedAt).Seconds()
	return e.priority * float64(e.accessCount) / (idle + 1)
}

// evictLocked prunes the memory tier down after the entry count exceeds
// maxEntries. It removes ceil(maxEntries * evictFraction) of the
// lowest-scoring entries. The durable tier is untouched; evicted entries
// remain retrievable there until they separately expire or are deleted.
// Caller must hold c.mu.
func (c *Tiered[V]) evictLocked(now time.Time) {
	if len(c.entries) <= c.opts.MaxEntries {
		return
	}

	n := int(math.Ceil(float64(c.opts.MaxEntries) * c.opts.EvictFraction))
	if n < 1 {
		n = 1
	}
	if over := len(c.entries) - c.opts.MaxEntries; n < over {
		n = over
	}

	type scored struct {
		key   string
		score float64
	}
	ranked := make([]scored, 0, len(c.entries))
	for k, e := range c.entries {
		ranked = append(ranked, scored{key: k, score: e.score(now)})
	}
	sort.Slice(ranked, func(i, j int) bool { return ranked[i].score < ranked[j].score })

	if n > len(ranked) {
		n = len(ranked)
	}
	for _, s := range ranked[:n] {
		delete(c.entries, s.key)
	}
	c.stats.Evictions += int64(n)
}
