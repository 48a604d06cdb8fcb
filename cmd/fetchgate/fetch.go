package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/revittco/fetchgate/internal/cache"
	"github.com/revittco/fetchgate/internal/config"
	"github.com/revittco/fetchgate/internal/fallback"
	"github.com/revittco/fetchgate/internal/secrets"
	"github.com/revittco/fetchgate/internal/store/sqlite"
	"github.com/revittco/fetchgate/internal/upstream"
	"golang.org/x/sync/errgroup"
)

// fetchResult is one line of fetch output.
type fetchResult struct {
	URL    string          `json:"url"`
	Source string          `json:"source"`
	Data   json.RawMessage `json:"data,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// cmdFetch runs each URL through the guarded fetch chain and prints one
// JSON result per line. A URL that exhausts every fallback reports its
// classified error instead of a value.
func cmdFetch(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: fetchgate fetch <url> [<url>...]")
	}

	ctx, cancel := signal.NotifyContext(
		context.Background(), syscall.SIGINT, syscall.SIGTERM,
	)
	defer cancel()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))
	slog.SetDefault(logger)

	fileCfg := &config.FileConfig{}
	if _, err := os.Stat(cfg.ConfigFile); err == nil {
		fileCfg, err = config.LoadFile(cfg.ConfigFile)
		if err != nil {
			return err
		}
		logger.Info("loaded config", "file", cfg.ConfigFile)
	}

	db, err := sqlite.New(ctx, cfg.DBPath)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	opts := fileCfg.CacheOptions()
	opts.Logger = logger
	if cfg.AgeKeyPath != "" {
		enc, err := secrets.LoadIdentity(cfg.AgeKeyPath)
		if err != nil {
			return err
		}
		opts.Sealer = enc
	}

	c := cache.New[json.RawMessage](db, opts)
	defer c.Close()

	exec := upstream.NewExecutor(&http.Client{}, logger)
	rawDecode := func(data []byte) (json.RawMessage, error) {
		return json.RawMessage(data), nil
	}
	ctrl := fallback.New[json.RawMessage](exec, c, rawDecode, logger)

	var mu sync.Mutex
	out := json.NewEncoder(os.Stdout)

	g, ctx := errgroup.WithContext(ctx)
	for _, url := range args {
		url := url
		g.Go(func() error {
			d := upstream.NewDescriptor(http.MethodGet, url)
			fileCfg.ApplyToDescriptor(&d)

			res, err := ctrl.Fetch(ctx, fallback.Request[json.RawMessage]{
				Key:        url,
				Descriptor: d,
				Cache:      cache.EntryOptions{Tags: []string{"fetch"}},
			})

			line := fetchResult{URL: url}
			if err != nil {
				line.Error = err.Error()
			} else {
				line.Source = res.Source.String()
				line.Data = res.Value
			}

			mu.Lock()
			defer mu.Unlock()
			return out.Encode(line)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	s := c.Stats()
	logger.Info("cache stats",
		"hits", s.Hits, "misses", s.Misses, "hit_rate", s.HitRate)
	return nil
}
