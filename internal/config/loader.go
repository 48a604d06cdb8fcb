package config

import (
	"fmt"
	"os"
	"time"

	"github.com/revittco/fetchgate/internal/cache"
	"github.com/revittco/fetchgate/internal/upstream"
	"gopkg.in/yaml.v3"
)

// FileConfig represents the top-level fetchgate.yaml structure.
type FileConfig struct {
	Cache      cacheConfig      `yaml:"cache"`
	Upstream   upstreamConfig   `yaml:"upstream"`
	DB         dbConfig         `yaml:"db"`
	Encryption encryptionConfig `yaml:"encryption"`
}

type cacheConfig struct {
	MaxEntries       int     `yaml:"max_entries"`
	DefaultTTLSec    int     `yaml:"default_ttl_sec"`
	DefaultPriority  float64 `yaml:"default_priority"`
	EvictFraction    float64 `yaml:"evict_fraction"`
	SweepIntervalSec int     `yaml:"sweep_interval_sec"`
}

type upstreamConfig struct {
	TimeoutMS        int `yaml:"timeout_ms"`
	MaxRetries       int `yaml:"max_retries"`
	BaseRetryDelayMS int `yaml:"base_retry_delay_ms"`
}

type dbConfig struct {
	Path string `yaml:"path"`
}

type encryptionConfig struct {
	AgeKeyFile string `yaml:"age_key_file"`
}

// LoadFile reads, parses, and validates a YAML config file.
func LoadFile(path string) (*FileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	return Parse(data)
}

// Parse parses and validates YAML config data.
func Parse(data []byte) (*FileConfig, error) {
	var cfg FileConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// CacheOptions maps the file config onto cache.Options. Unset fields
// stay zero so the cache applies its own defaults.
func (c *FileConfig) CacheOptions() cache.Options {
	return cache.Options{
		MaxEntries:      c.Cache.MaxEntries,
		DefaultTTL:      time.Duration(c.Cache.DefaultTTLSec) * time.Second,
		DefaultPriority: c.Cache.DefaultPriority,
		EvictFraction:   c.Cache.EvictFraction,
		SweepInterval:   time.Duration(c.Cache.SweepIntervalSec) * time.Second,
	}
}

// ApplyToDescriptor overrides a descriptor's retry shaping with any
// configured upstream settings.
func (c *FileConfig) ApplyToDescriptor(d *upstream.Descriptor) {
	if c.Upstream.TimeoutMS > 0 {
		d.Timeout = time.Duration(c.Upstream.TimeoutMS) * time.Millisecond
	}
	if c.Upstream.MaxRetries > 0 {
		d.MaxRetries = c.Upstream.MaxRetries
	}
	if c.Upstream.BaseRetryDelayMS > 0 {
		d.BaseRetryDelay = time.Duration(c.Upstream.BaseRetryDelayMS) * time.Millisecond
	}
}
