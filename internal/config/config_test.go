package config

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Repository.Driver)
	assert.Equal(t, "memory", cfg.Cache.Type)
	assert.Equal(t, "channel", cfg.EventBus.Type)
	assert.Equal(t, 70, cfg.Scoring.HighRiskThreshold)
	assert.Equal(t, time.UTC, cfg.Quality.Location)
	assert.True(t, cfg.Scoring.StrongAuthThreshold.Equal(decimal.NewFromInt(10_000_000)))
}

func TestLoadEnvironment(t *testing.T) {
	t.Setenv("KESTREL_SERVER_PORT", "9090")
	t.Setenv("KESTREL_STRONG_AUTH_THRESHOLD", "5000000")
	t.Setenv("KESTREL_BAND_HIGH", "65")
	t.Setenv("KESTREL_PIPELINE_INTERVAL", "15m")
	t.Setenv("KESTREL_SCORING_WEIGHT_WEAK_AUTH", "40")
	t.Setenv("KESTREL_TIMEZONE", "Asia/Ho_Chi_Minh")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 15*time.Minute, cfg.Pipeline.Interval)
	assert.Equal(t, 40, cfg.Scoring.Weights.WeakAuth)

	// shared thresholds reach every engine section
	five := decimal.NewFromInt(5_000_000)
	assert.True(t, cfg.Quality.StrongAuthThreshold.Equal(five))
	assert.True(t, cfg.Scoring.StrongAuthThreshold.Equal(five))
	assert.True(t, cfg.Aggregation.StrongAuthThreshold.Equal(five))
	assert.Equal(t, 65, cfg.Scoring.Bands.High)
	assert.Equal(t, 65, cfg.Alerting.Bands.High)
	assert.Equal(t, "Asia/Ho_Chi_Minh", cfg.Quality.Location.String())
	assert.Equal(t, "Asia/Ho_Chi_Minh", cfg.Aggregation.Location.String())
}

func TestLoadProfile(t *testing.T) {
	t.Setenv("KESTREL_PROFILE", "pro")
	t.Setenv("KESTREL_CACHE_REDIS_ADDR", "redis:6379")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Repository.Driver)
	assert.Equal(t, "redis", cfg.Cache.Type)
	assert.Equal(t, "redis:6379", cfg.Cache.RedisAddr)
	assert.Equal(t, "nats", cfg.EventBus.Type)
}

func TestLoadEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("KESTREL_LOG_LEVEL=debug\nKESTREL_LOG_FORMAT=text\n"), 0o600))
	t.Cleanup(func() {
		os.Unsetenv("KESTREL_LOG_LEVEL")
	})

	// the process environment wins over the file
	t.Setenv("KESTREL_LOG_FORMAT", "json")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)

	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "absent.env"))
		assert.NoError(t, err)
	})
}

func TestLoadInvalid(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"unknown driver", "KESTREL_DB_DRIVER", "mysql"},
		{"unknown cache", "KESTREL_CACHE_TYPE", "memcached"},
		{"bad port", "KESTREL_SERVER_PORT", "http"},
		{"port out of range", "KESTREL_SERVER_PORT", "70000"},
		{"bands out of order", "KESTREL_BAND_CRITICAL", "50"},
		{"unknown time zone", "KESTREL_TIMEZONE", "Mars/Olympus_Mons"},
		{"soft ratio above one", "KESTREL_QUALITY_SOFT_FAIL_RATIO", "1.5"},
		{"bad severity", "KESTREL_ALERT_MIN_SCORE_SEVERITY", "SEVERE"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := Load("")
			assert.Error(t, err)
		})
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer

	logger := NewLogger(domain.LoggingConfig{Level: "warn", Format: "json"}, &buf)
	logger.Info("hidden")
	logger.Warn("shown", "run_id", "run-1")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, `"run_id":"run-1"`)

	buf.Reset()
	NewLogger(domain.LoggingConfig{Level: "info", Format: "text"}, &buf).Info("hello", "k", "v")
	assert.Contains(t, buf.String(), "k=v")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warn"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel(""))
}
