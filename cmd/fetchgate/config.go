package main

import (
	"log/slog"
	"os"
	"path/filepath"
)

// Config holds application configuration loaded from environment variables.
type Config struct {
	DBPath     string     // sqlite file backing the durable tier
	ConfigFile string     // path to fetchgate.yaml
	AgeKeyPath string     // path to age identity file ("" = plaintext at rest)
	LogLevel   slog.Level // slog level
}

// defaultDataPath returns ~/.fetchgate/<filename>, falling back to a
// CWD-relative path if the home directory can't be resolved.
func defaultDataPath(filename string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filename
	}
	return filepath.Join(home, ".fetchgate", filename)
}

func loadConfig() (*Config, error) {
	cfg := &Config{
		DBPath:     envOr("FETCHGATE_DB", defaultDataPath("fetchgate.db")),
		ConfigFile: envOr("FETCHGATE_CONFIG", defaultDataPath("fetchgate.yaml")),
		AgeKeyPath: envOr("FETCHGATE_AGE_KEY", ""),
		LogLevel:   parseLogLevel(envOr("FETCHGATE_LOG_LEVEL", "info")),
	}
	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o700); err != nil {
		return nil, err
	}
	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func parseLogLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
