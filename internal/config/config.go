// Package config loads the Kestrel configuration from defaults, an
// optional .env file and KESTREL_* environment variables.
package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/opensource-finance/kestrel/internal/domain"
)

// Prefix is the environment variable prefix.
const Prefix = "KESTREL"

// Load builds the configuration. Defaults come from domain.DefaultConfig,
// or domain.ProConfig when KESTREL_PROFILE=pro; variables from envFile
// never override the process environment. A missing envFile is not an error.
func Load(envFile string) (*domain.Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", envFile, err)
		}
	}

	cfg := domain.DefaultConfig()
	if strings.EqualFold(os.Getenv(Prefix+"_PROFILE"), "pro") {
		cfg = domain.ProConfig()
	}

	if err := envconfig.Process(Prefix, cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}

	loc, err := time.LoadLocation(cfg.TimeZone)
	if err != nil {
		return nil, fmt.Errorf("time zone %q: %w", cfg.TimeZone, err)
	}
	cfg.Normalize(loc)

	if err := domain.Validator().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// NewLogger builds the slog logger described by cfg.
func NewLogger(cfg domain.LoggingConfig, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(cfg.Level)}
	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

// ParseLevel maps a level name to a slog level, defaulting to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}
