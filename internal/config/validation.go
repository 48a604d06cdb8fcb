package config

import "fmt"

func validate(cfg *FileConfig) error {
	c := cfg.Cache
	if c.MaxEntries < 0 {
		return fmt.Errorf("cache.max_entries must not be negative, got %d", c.MaxEntries)
	}
	if c.DefaultTTLSec < 0 {
		return fmt.Errorf("cache.default_ttl_sec must not be negative, got %d", c.DefaultTTLSec)
	}
	if c.DefaultPriority < 0 || c.DefaultPriority > 1 {
		return fmt.Errorf("cache.default_priority must be in [0,1], got %g", c.DefaultPriority)
	}
	if c.EvictFraction < 0 || c.EvictFraction > 1 {
		return fmt.Errorf("cache.evict_fraction must be in [0,1], got %g", c.EvictFraction)
	}
	if c.SweepIntervalSec < 0 {
		return fmt.Errorf("cache.sweep_interval_sec must not be negative, got %d", c.SweepIntervalSec)
	}

	u := cfg.Upstream
	if u.TimeoutMS < 0 {
		return fmt.Errorf("upstream.timeout_ms must not be negative, got %d", u.TimeoutMS)
	}
	if u.MaxRetries < 0 {
		return fmt.Errorf("upstream.max_retries must not be negative, got %d", u.MaxRetries)
	}
	if u.BaseRetryDelayMS < 0 {
		return fmt.Errorf("upstream.base_retry_delay_ms must not be negative, got %d", u.BaseRetryDelayMS)
	}
	return nil
}
