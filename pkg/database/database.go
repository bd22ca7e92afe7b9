// Package database opens the Postgres connection pool.
package database

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	// Import PostgreSQL driver
	_ "github.com/lib/pq"

	"github.com/makemykankotri/kankotri/pkg/config"
	"github.com/makemykankotri/kankotri/pkg/observability"
)

// DriverName is the database/sql driver used for every connection
const DriverName = "postgres"

// ErrInvalidDatabaseConfig is returned when neither a DSN nor a host is set
var ErrInvalidDatabaseConfig = errors.New("invalid database configuration: missing required fields")

// connect is replaced in tests
var connect = func(ctx context.Context, dsn string) (*sqlx.DB, error) {
	return sqlx.ConnectContext(ctx, DriverName, dsn)
}

// BuildDSN returns the configured DSN, or one built from the individual fields
func BuildDSN(cfg config.DatabaseConfig) (string, error) {
	if cfg.DSN != "" {
		return cfg.DSN, nil
	}
	if cfg.Host == "" || cfg.Database == "" {
		return "", ErrInvalidDatabaseConfig
	}

	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	port := cfg.Port
	if port == 0 {
		port = 5432
	}

	u := url.URL{
		Scheme:   "postgres",
		Host:     fmt.Sprintf("%s:%d", cfg.Host, port),
		Path:     "/" + cfg.Database,
		RawQuery: url.Values{"sslmode": {sslMode}}.Encode(),
	}
	if cfg.Username != "" {
		u.User = url.UserPassword(cfg.Username, cfg.Password)
	}
	return u.String(), nil
}

// sanitizeDSN removes sensitive information from a DSN for safe logging
func sanitizeDSN(dsn string) string {
	if strings.Contains(dsn, "password=") {
		parts := strings.Split(dsn, " ")
		for i, part := range parts {
			if strings.HasPrefix(part, "password=") {
				parts[i] = "password=***"
			}
		}
		return strings.Join(parts, " ")
	}
	if idx := strings.Index(dsn, "://"); idx != -1 {
		if atIdx := strings.LastIndex(dsn, "@"); atIdx > idx {
			return dsn[:idx+3] + "***:***" + dsn[atIdx:]
		}
	}
	return dsn
}

// Connect opens the pool, retrying with exponential backoff while the
// database is unreachable.
func Connect(ctx context.Context, cfg config.DatabaseConfig, logger observability.Logger) (*sqlx.DB, error) {
	dsn, err := BuildDSN(cfg)
	if err != nil {
		return nil, err
	}

	logger.Info("Connecting to database", map[string]interface{}{"dsn": sanitizeDSN(dsn)})

	var db *sqlx.DB
	attempt := 0
	op := func() error {
		attempt++
		var err error
		db, err = connect(ctx, dsn)
		if err != nil {
			logger.Warn("Database connection failed", map[string]interface{}{
				"attempt": attempt,
				"error":   err.Error(),
			})
		}
		return err
	}

	policy := backoff.NewExponentialBackOff()
	policy.MaxElapsedTime = 2 * time.Minute
	if err := backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(policy, cfg.ConnectRetries), ctx)); err != nil {
		return nil, errors.Wrapf(err, "failed to connect to database after %d attempts", attempt)
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

	logger.Info("Connected to database", map[string]interface{}{"attempts": attempt})
	return db, nil
}

// Ping checks the database with a short timeout
func Ping(ctx context.Context, db *sqlx.DB) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return errors.Wrap(err, "database ping failed")
	}
	return nil
}
