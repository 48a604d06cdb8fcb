package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/revittco/fetchgate/internal/store/sqlite"
)

// cmdStats prints durable-tier counts as JSON.
func cmdStats() error {
	ctx := context.Background()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	db, err := sqlite.New(ctx, cfg.DBPath)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	if err := db.Ping(ctx); err != nil {
		return fmt.Errorf("db health check: %w", err)
	}

	n, err := db.Count(ctx)
	if err != nil {
		return err
	}

	return json.NewEncoder(os.Stdout).Encode(map[string]any{
		"db":      cfg.DBPath,
		"entries": n,
	})
}
