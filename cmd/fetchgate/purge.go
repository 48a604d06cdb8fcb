package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/revittco/fetchgate/internal/store/sqlite"
)

// cmdPurge invalidates durable-tier entries: everything, by tag, or
// just the expired ones.
func cmdPurge(args []string) error {
	var all, expired bool
	var tags []string
	for _, arg := range args {
		switch {
		case arg == "--all":
			all = true
		case arg == "--expired":
			expired = true
		case strings.HasPrefix(arg, "--tags="):
			tags = strings.Split(strings.TrimPrefix(arg, "--tags="), ",")
		default:
			return fmt.Errorf("unknown flag: %s", arg)
		}
	}
	if !all && !expired && len(tags) == 0 {
		return fmt.Errorf("usage: fetchgate purge [--all | --expired | --tags=a,b]")
	}

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

	switch {
	case all:
		if err := db.Clear(ctx); err != nil {
			return err
		}
		fmt.Println("cleared all entries")
	case expired:
		n, err := db.DeleteExpired(ctx, time.Now())
		if err != nil {
			return err
		}
		fmt.Printf("deleted %d expired entries\n", n)
	default:
		n, err := db.DeleteByTags(ctx, tags)
		if err != nil {
			return err
		}
		fmt.Printf("deleted %d entries tagged %s\n", n, strings.Join(tags, ","))
	}
	return nil
}
