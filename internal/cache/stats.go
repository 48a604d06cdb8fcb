package cache

// Stats holds cache performance counters. Hits, Misses and TotalRequests
// are monotonic for the life of the instance; Clear does not reset them.
type Stats struct {
	Hits          int64   `json:"hits"`
	Misses        int64   `json:"misses"`
	TotalRequests int64   `json:"total_requests"`
	Evictions     int64   `json:"evictions"`
	Entries       int     `json:"entries"`
	HitRate       float64 `json:"hit_rate"`
}
