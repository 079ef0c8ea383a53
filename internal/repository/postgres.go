package repository

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"time"

	"github.com/lib/pq"
	"github.com/opensource-finance/kestrel/internal/domain"
)

// postgresDSN returns the lib/pq connection string for cfg. A PostgresURL
// wins over the individual fields.
func postgresDSN(cfg domain.RepositoryConfig) (string, error) {
	if cfg.PostgresURL != "" {
		dsn, err := pq.ParseURL(cfg.PostgresURL)
		if err != nil {
			return "", fmt.Errorf("parse postgres url: %w", err)
		}
		return dsn, nil
	}

	sslMode := cfg.PostgresSSLMode
	if sslMode == "" {
		sslMode = "disable"
	}

	// Round-trip through a URL so passwords with spaces or quotes survive.
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(cfg.PostgresUser, cfg.PostgresPassword),
		Host:     fmt.Sprintf("%s:%d", orDefault(cfg.PostgresHost, "localhost"), orDefaultInt(cfg.PostgresPort, 5432)),
		Path:     "/" + orDefault(cfg.PostgresDB, "kestrel"),
		RawQuery: url.Values{"sslmode": {sslMode}, "application_name": {"kestrel"}}.Encode(),
	}
	return pq.ParseURL(u.String())
}

// openPostgres opens the core banking store on PostgreSQL.
func openPostgres(cfg domain.RepositoryConfig) (*sql.DB, error) {
	dsn, err := postgresDSN(cfg)
	if err != nil {
		return nil, err
	}

	connector, err := pq.NewConnector(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to configure postgres connector: %w", err)
	}
	db := sql.OpenDB(connector)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping postgres database: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	return db, nil
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

func orDefaultInt(n, def int) int {
	if n == 0 {
		return def
	}
	return n
}
