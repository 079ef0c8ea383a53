package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Config holds the complete Kestrel configuration.
type Config struct {
	// Server settings
	Server ServerConfig `json:"server" envconfig:"SERVER"`

	// Component configurations
	Repository RepositoryConfig `json:"repository" envconfig:"DB"`
	Cache      CacheConfig      `json:"cache" envconfig:"CACHE"`
	EventBus   EventBusConfig   `json:"eventBus" envconfig:"BUS"`

	// Shared thresholds, copied into the engine sections by Normalize.
	StrongAuthThreshold decimal.Decimal `json:"strongAuthThreshold" envconfig:"STRONG_AUTH_THRESHOLD"`
	Bands               ScoreBands      `json:"bands" envconfig:"BAND"`
	TimeZone            string          `json:"timeZone" envconfig:"TIMEZONE"`

	// Engine
	Quality     QualityConfig     `json:"quality" envconfig:"QUALITY"`
	Scoring     ScoringConfig     `json:"scoring" envconfig:"SCORING"`
	Alerting    AlertConfig       `json:"alerting" envconfig:"ALERT"`
	Aggregation AggregationConfig `json:"aggregation" envconfig:"AGG"`
	Pipeline    PipelineConfig    `json:"pipeline" envconfig:"PIPELINE"`

	// Observability
	Logging LoggingConfig `json:"logging" envconfig:"LOG"`
	Tracing TracingConfig `json:"tracing" envconfig:"TRACING"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string `json:"host" envconfig:"HOST"`
	Port         int    `json:"port" envconfig:"PORT" validate:"min=1,max=65535"`
	ReadTimeout  int    `json:"readTimeout" envconfig:"READ_TIMEOUT"`   // seconds
	WriteTimeout int    `json:"writeTimeout" envconfig:"WRITE_TIMEOUT"` // seconds
	// CORSOrigins limits browser origins; empty allows any.
	CORSOrigins []string `json:"corsOrigins" envconfig:"CORS_ORIGINS"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `json:"level" envconfig:"LEVEL" validate:"oneof=debug info warn error"`
	Format string `json:"format" envconfig:"FORMAT" validate:"oneof=json text"`
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	Enabled     bool   `json:"enabled" envconfig:"ENABLED"`
	ServiceName string `json:"serviceName" envconfig:"SERVICE_NAME"`
}

// ScoreBands splits the 0..100 score range into levels.
type ScoreBands struct {
	Medium   int `json:"medium" envconfig:"MEDIUM" validate:"gt=0"`
	High     int `json:"high" envconfig:"HIGH" validate:"gtfield=Medium"`
	Critical int `json:"critical" envconfig:"CRITICAL" validate:"gtfield=High,lte=100"`
}

// Level maps a score to a risk level.
func (b ScoreBands) Level(score int) RiskLevel {
	switch {
	case score >= b.Critical:
		return RiskCritical
	case score >= b.High:
		return RiskHigh
	case score >= b.Medium:
		return RiskMedium
	}
	return RiskLow
}

// Severity maps a score to an alert severity.
func (b ScoreBands) Severity(score int) Severity {
	return Severity(b.Level(score))
}

// QualityConfig tunes the validation rule set.
type QualityConfig struct {
	StrongAuthThreshold   decimal.Decimal `json:"-" ignored:"true"`
	DailyStrongAuthVolume decimal.Decimal `json:"dailyStrongAuthVolume" envconfig:"DAILY_STRONG_AUTH_VOLUME"`
	MinTransactionAmount  decimal.Decimal `json:"minTransactionAmount" envconfig:"MIN_TX_AMOUNT"`
	MaxTransactionAmount  decimal.Decimal `json:"maxTransactionAmount" envconfig:"MAX_TX_AMOUNT"`
	ConsistencyTolerance  decimal.Decimal `json:"consistencyTolerance" envconfig:"CONSISTENCY_TOLERANCE"`
	MinCustomerAge        int             `json:"minCustomerAge" envconfig:"MIN_CUSTOMER_AGE"`
	MaxCustomerAge        int             `json:"maxCustomerAge" envconfig:"MAX_CUSTOMER_AGE" validate:"gtfield=MinCustomerAge"`
	SoftFailRatio         float64         `json:"softFailRatio" envconfig:"SOFT_FAIL_RATIO" validate:"gte=0,lte=1"`
	FreshnessWindow       time.Duration   `json:"freshnessWindow" envconfig:"FRESHNESS_WINDOW"`
	DeviceLookback        time.Duration   `json:"deviceLookback" envconfig:"DEVICE_LOOKBACK"`
	ConsistencyDays       int             `json:"consistencyDays" envconfig:"CONSISTENCY_DAYS"`
	MaxWorkers            int             `json:"maxWorkers" envconfig:"MAX_WORKERS"`
	Location              *time.Location  `json:"-" ignored:"true"`
}

// ScoringWeights are the additive contributions of each risk factor.
type ScoringWeights struct {
	HighValue        int `json:"highValue" envconfig:"HIGH_VALUE"`
	WeakAuth         int `json:"weakAuth" envconfig:"WEAK_AUTH"`
	UnverifiedDevice int `json:"unverifiedDevice" envconfig:"UNVERIFIED_DEVICE"`
	SuspiciousDevice int `json:"suspiciousDevice" envconfig:"SUSPICIOUS_DEVICE"`
	NewDevice        int `json:"newDevice" envconfig:"NEW_DEVICE"`
	Velocity         int `json:"velocity" envconfig:"VELOCITY"`
	HighRiskCustomer int `json:"highRiskCustomer" envconfig:"HIGH_RISK_CUSTOMER"`
	UnusualChannel   int `json:"unusualChannel" envconfig:"UNUSUAL_CHANNEL"`
	AuthFailures     int `json:"authFailures" envconfig:"AUTH_FAILURES"`
}

// ScoringConfig tunes the risk scorer.
type ScoringConfig struct {
	Weights              ScoringWeights  `json:"weights" envconfig:"WEIGHT"`
	StrongAuthThreshold  decimal.Decimal `json:"-" ignored:"true"`
	Bands                ScoreBands      `json:"-" ignored:"true"`
	HighRiskThreshold    int             `json:"highRiskThreshold" envconfig:"HIGH_RISK_THRESHOLD" validate:"gte=0,lte=100"`
	VelocityWindow       time.Duration   `json:"velocityWindow" envconfig:"VELOCITY_WINDOW"`
	VelocityThreshold    int             `json:"velocityThreshold" envconfig:"VELOCITY_THRESHOLD"`
	NewDeviceWindow      time.Duration   `json:"newDeviceWindow" envconfig:"NEW_DEVICE_WINDOW"`
	ChannelWindow        time.Duration   `json:"channelWindow" envconfig:"CHANNEL_WINDOW"`
	ChannelMinHistory    int             `json:"channelMinHistory" envconfig:"CHANNEL_MIN_HISTORY"`
	AuthFailureWindow    time.Duration   `json:"authFailureWindow" envconfig:"AUTH_FAILURE_WINDOW"`
	AuthFailureThreshold int             `json:"authFailureThreshold" envconfig:"AUTH_FAILURE_THRESHOLD"`
	MaxWorkers           int             `json:"maxWorkers" envconfig:"MAX_WORKERS"`

	// A customer is high risk for a transaction when more than
	// CustomerHighRiskLimit of their earlier transactions within
	// CustomerWindow score high risk without the customer factor.
	CustomerWindow        time.Duration `json:"customerWindow" envconfig:"CUSTOMER_WINDOW"`
	CustomerHighRiskLimit int           `json:"customerHighRiskLimit" envconfig:"CUSTOMER_HIGH_RISK_LIMIT" validate:"gte=0"`
}

// AlertConfig tunes the alert emitter and its monitors.
type AlertConfig struct {
	Bands                 ScoreBands      `json:"-" ignored:"true"`
	MinScoreSeverity      Severity        `json:"minScoreSeverity" envconfig:"MIN_SCORE_SEVERITY" validate:"oneof=LOW MEDIUM HIGH CRITICAL"`
	DeviceRiskMinAmount   decimal.Decimal `json:"deviceRiskMinAmount" envconfig:"DEVICE_RISK_MIN_AMOUNT"`
	UnverifiedDeviceLimit int             `json:"unverifiedDeviceLimit" envconfig:"UNVERIFIED_DEVICE_LIMIT" validate:"gt=0"`
	AuthFailureLimit      int             `json:"authFailureLimit" envconfig:"AUTH_FAILURE_LIMIT"`
	AuthFailureWindow     time.Duration   `json:"authFailureWindow" envconfig:"AUTH_FAILURE_WINDOW"`
	PatternCount          int             `json:"patternCount" envconfig:"PATTERN_COUNT"`
	PatternAmount         decimal.Decimal `json:"patternAmount" envconfig:"PATTERN_AMOUNT"`
	PatternWindow         time.Duration   `json:"patternWindow" envconfig:"PATTERN_WINDOW"`
	PatternLookback       time.Duration   `json:"patternLookback" envconfig:"PATTERN_LOOKBACK"`
	LimitWarningRatio     float64         `json:"limitWarningRatio" envconfig:"LIMIT_WARNING_RATIO" validate:"gt=0,lte=1"`
	Location              *time.Location  `json:"-" ignored:"true"`
}

// AggregationConfig tunes summaries and customer profiles.
type AggregationConfig struct {
	StrongAuthThreshold      decimal.Decimal `json:"-" ignored:"true"`
	ProfileWindow            time.Duration   `json:"profileWindow" envconfig:"PROFILE_WINDOW"`
	RecentAlertWindow        time.Duration   `json:"recentAlertWindow" envconfig:"RECENT_ALERT_WINDOW"`
	ComplianceWindow         time.Duration   `json:"complianceWindow" envconfig:"COMPLIANCE_WINDOW"`
	HighRiskTransactionLimit int             `json:"highRiskTransactionLimit" envconfig:"HIGH_RISK_TX_LIMIT"`
	Location                 *time.Location  `json:"-" ignored:"true"`
}

// PipelineConfig controls batch runs.
type PipelineConfig struct {
	Incremental       bool          `json:"incremental" envconfig:"INCREMENTAL"`
	IncrementalWindow time.Duration `json:"incrementalWindow" envconfig:"INCREMENTAL_WINDOW"`
	HistoryWindow     time.Duration `json:"historyWindow" envconfig:"HISTORY_WINDOW"`
	Interval          time.Duration `json:"interval" envconfig:"INTERVAL"`
	RunLockTTL        time.Duration `json:"runLockTtl" envconfig:"RUN_LOCK_TTL"`
	PurgeEnabled      bool          `json:"purgeEnabled" envconfig:"PURGE_ENABLED"`
	AuthRetention     time.Duration `json:"authRetention" envconfig:"AUTH_RETENTION"`
	AlertRetention    time.Duration `json:"alertRetention" envconfig:"ALERT_RETENTION"`
	CacheTTL          time.Duration `json:"cacheTtl" envconfig:"CACHE_TTL"`
}

// Normalize copies shared thresholds into the sections that consume them.
func (c *Config) Normalize(loc *time.Location) {
	if loc == nil {
		loc = time.UTC
	}
	c.Quality.StrongAuthThreshold = c.StrongAuthThreshold
	c.Quality.Location = loc
	c.Scoring.StrongAuthThreshold = c.StrongAuthThreshold
	c.Scoring.Bands = c.Bands
	c.Alerting.Bands = c.Bands
	c.Alerting.Location = loc
	c.Aggregation.StrongAuthThreshold = c.StrongAuthThreshold
	c.Aggregation.Location = loc
}

const day = 24 * time.Hour

// DefaultConfig returns a default single-node configuration:
// SQLite, in-process channels and the local LRU.
func DefaultConfig() *Config {
	cfg := &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30,
			WriteTimeout: 30,
		},
		Repository: RepositoryConfig{
			Driver:     "sqlite",
			SQLitePath: "./kestrel.db",
		},
		Cache: CacheConfig{
			Type:         "memory",
			LocalMaxSize: 10000,
			LocalTTL:     5 * time.Minute,
			Namespace:    "kestrel",
		},
		EventBus: EventBusConfig{
			Type:              "channel",
			ChannelBufferSize: 1000,
		},
		StrongAuthThreshold: decimal.NewFromInt(10_000_000),
		Bands:               ScoreBands{Medium: 40, High: 70, Critical: 90},
		TimeZone:            "UTC",
		Quality: QualityConfig{
			DailyStrongAuthVolume: decimal.NewFromInt(20_000_000),
			MinTransactionAmount:  decimal.NewFromInt(1),
			MaxTransactionAmount:  decimal.NewFromInt(5_000_000_000),
			ConsistencyTolerance:  decimal.NewFromInt(1000),
			MinCustomerAge:        18,
			MaxCustomerAge:        120,
			SoftFailRatio:         0.01,
			FreshnessWindow:       day,
			DeviceLookback:        7 * day,
			ConsistencyDays:       7,
			MaxWorkers:            8,
		},
		Scoring: ScoringConfig{
			Weights: ScoringWeights{
				HighValue:        25,
				WeakAuth:         30,
				UnverifiedDevice: 15,
				SuspiciousDevice: 35,
				NewDevice:        10,
				Velocity:         20,
				HighRiskCustomer: 10,
				UnusualChannel:   10,
				AuthFailures:     15,
			},
			HighRiskThreshold:     70,
			VelocityWindow:        day,
			VelocityThreshold:     10,
			NewDeviceWindow:       day,
			ChannelWindow:         30 * day,
			ChannelMinHistory:     3,
			AuthFailureWindow:     time.Hour,
			AuthFailureThreshold:  5,
			CustomerWindow:        30 * day,
			CustomerHighRiskLimit: 3,
			MaxWorkers:            8,
		},
		Alerting: AlertConfig{
			MinScoreSeverity:      SeverityMedium,
			DeviceRiskMinAmount:   decimal.NewFromInt(1_000_000),
			UnverifiedDeviceLimit: 3,
			AuthFailureLimit:      5,
			AuthFailureWindow:     time.Hour,
			PatternCount:          5,
			PatternAmount:         decimal.NewFromInt(5_000_000),
			PatternWindow:         time.Hour,
			PatternLookback:       2 * time.Hour,
			LimitWarningRatio:     0.9,
		},
		Aggregation: AggregationConfig{
			ProfileWindow:            30 * day,
			RecentAlertWindow:        30 * day,
			ComplianceWindow:         30 * day,
			HighRiskTransactionLimit: 3,
		},
		Pipeline: PipelineConfig{
			IncrementalWindow: day,
			HistoryWindow:     30 * day,
			RunLockTTL:        10 * time.Minute,
			AuthRetention:     90 * day,
			AlertRetention:    30 * day,
			CacheTTL:          5 * time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "kestrel",
		},
	}
	cfg.Normalize(time.UTC)
	return cfg
}

// ProConfig returns a configuration backed by PostgreSQL, Redis and NATS.
func ProConfig() *Config {
	cfg := DefaultConfig()
	cfg.Repository = RepositoryConfig{
		Driver:       "postgres",
		PostgresHost: "localhost",
		PostgresPort: 5432,
		PostgresDB:   "kestrel",
	}
	cfg.Cache = CacheConfig{
		Type:           "redis",
		RedisAddr:      "localhost:6379",
		EnableTwoPhase: true,
		LocalMaxSize:   1000,
		LocalTTL:       time.Minute,
		Namespace:      "kestrel",
	}
	cfg.EventBus = EventBusConfig{
		Type:              "nats",
		NATSUrl:           "nats://localhost:4222",
		NATSMaxReconnects: 10,
		NATSReconnectWait: 5,
	}
	cfg.Tracing.Enabled = true
	return cfg
}
