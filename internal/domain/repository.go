// Package domain defines the core types and interfaces for Kestrel.
package domain

import (
	"context"
	"time"
)

// Repository is both the record source and the report sink.
// AlertSettler rebuilds the alert-derived parts of report from the alerts
// that are active once the run's own alerts are stored.
type AlertSettler func(report *RunReport, active []*FraudAlert)

type Repository interface {
	// LoadSnapshot reads a consistent record set for one run.
	LoadSnapshot(ctx context.Context, opts SnapshotOptions) (*Snapshot, error)

	// Raw record ingestion
	SaveCustomer(ctx context.Context, c *Customer) error
	SaveAccount(ctx context.Context, a *Account) error
	SaveDevice(ctx context.Context, d *Device) error
	SaveAuthEvent(ctx context.Context, e *AuthEvent) error
	SaveTransaction(ctx context.Context, tx *Transaction) error

	// CommitRun writes every output of a run in a single transaction.
	// settle is called when stored alerts turn some of report.Alerts into
	// duplicates, so alert-derived outputs can be rebuilt before writing.
	CommitRun(ctx context.Context, report *RunReport, settle AlertSettler) error
	LatestRun(ctx context.Context) (*RunReport, error)

	// Alert review
	ListAlerts(ctx context.Context, filter AlertFilter) ([]*FraudAlert, error)
	GetAlert(ctx context.Context, alertID string) (*FraudAlert, error)
	UpdateAlertStatus(ctx context.Context, alertID string, update *AlertStatusUpdate, at time.Time) (*FraudAlert, error)

	// Read models
	ListCustomerProfiles(ctx context.Context, limit int) ([]*CustomerRiskProfile, error)
	ListDailySummaries(ctx context.Context, from, to string) ([]*DailySummary, error)
	ListUnverifiedDevices(ctx context.Context, limit int) ([]*UnverifiedDevice, error)

	// PurgeExpired drops auth events and resolved alerts older than the cutoffs.
	PurgeExpired(ctx context.Context, authBefore, alertsBefore time.Time) (authDeleted, alertsDeleted int64, err error)

	// Custom check configuration
	SaveRuleConfig(ctx context.Context, rule *RuleConfig) error
	GetRuleConfig(ctx context.Context, ruleID string) (*RuleConfig, error)
	ListRuleConfigs(ctx context.Context) ([]*RuleConfig, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string `envconfig:"DRIVER" validate:"oneof=sqlite postgres"`

	// SQLite specific
	SQLitePath string `envconfig:"SQLITE_PATH"`

	// PostgreSQL specific; PostgresURL overrides the individual fields.
	PostgresURL      string `envconfig:"POSTGRES_URL"`
	PostgresHost     string `envconfig:"POSTGRES_HOST"`
	PostgresPort     int    `envconfig:"POSTGRES_PORT"`
	PostgresUser     string `envconfig:"POSTGRES_USER"`
	PostgresPassword string `envconfig:"POSTGRES_PASSWORD"`
	PostgresDB       string `envconfig:"POSTGRES_DB"`
	PostgresSSLMode  string `envconfig:"POSTGRES_SSLMODE"`

	// Connection pool settings
	MaxOpenConns    int           `envconfig:"MAX_OPEN_CONNS"`
	MaxIdleConns    int           `envconfig:"MAX_IDLE_CONNS"`
	ConnMaxLifetime time.Duration `envconfig:"CONN_MAX_LIFETIME"`
}
