// Package migration applies the SQL schema migrations under migrations/sql.
package migration

import (
	"context"
	"path/filepath"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/makemykankotri/kankotri/pkg/observability"
)

// Defaults applied by NewManager
const (
	DefaultMigrationsPath = "migrations/sql"
	DefaultTimeout        = time.Minute
)

// Config holds the migration configuration
type Config struct {
	// Path to migration files directory
	MigrationsPath string
	// Timeout for a single Up or Down run
	Timeout time.Duration
	// Number of steps to apply; 0 applies all pending migrations
	Steps int
}

// Manager handles database migrations
type Manager struct {
	db       *sqlx.DB
	config   Config
	migrator *migrate.Migrate
	logger   observability.Logger
}

// NewManager creates a new migration manager
func NewManager(db *sqlx.DB, config Config, logger observability.Logger) (*Manager, error) {
	if db == nil {
		return nil, errors.New("db connection cannot be nil")
	}
	if config.MigrationsPath == "" {
		config.MigrationsPath = DefaultMigrationsPath
	}
	if config.Timeout == 0 {
		config.Timeout = DefaultTimeout
	}

	path, err := filepath.Abs(config.MigrationsPath)
	if err != nil {
		return nil, errors.Wrap(err, "failed to resolve migrations path")
	}
	config.MigrationsPath = path

	return &Manager{db: db, config: config, logger: logger.WithPrefix("migration")}, nil
}

func (m *Manager) init() error {
	if m.migrator != nil {
		return nil
	}

	driver, err := postgres.WithInstance(m.db.DB, &postgres.Config{})
	if err != nil {
		return errors.Wrap(err, "failed to create postgres driver")
	}

	migrator, err := migrate.NewWithDatabaseInstance("file://"+filepath.ToSlash(m.config.MigrationsPath), "postgres", driver)
	if err != nil {
		return errors.Wrap(err, "failed to create migrator")
	}
	m.migrator = migrator
	return nil
}

// Up applies pending migrations
func (m *Manager) Up(ctx context.Context) error {
	if err := m.init(); err != nil {
		return err
	}
	return m.run(ctx, "up", func() error {
		if m.config.Steps > 0 {
			return m.migrator.Steps(m.config.Steps)
		}
		return m.migrator.Up()
	})
}

// Down rolls back the given number of migrations
func (m *Manager) Down(ctx context.Context, steps int) error {
	if err := m.init(); err != nil {
		return err
	}
	if steps <= 0 {
		steps = 1
	}
	return m.run(ctx, "down", func() error {
		return m.migrator.Steps(-steps)
	})
}

// run executes fn, giving up waiting after the configured timeout
func (m *Manager) run(ctx context.Context, direction string, fn func() error) error {
	ctx, cancel := context.WithTimeout(ctx, m.config.Timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- fn()
	}()

	select {
	case err := <-done:
		if errors.Is(err, migrate.ErrNoChange) {
			m.logger.Info("No migrations to run", map[string]interface{}{"direction": direction})
			return nil
		}
		if err != nil {
			return errors.Wrapf(err, "migration %s failed", direction)
		}
		version, _, _ := m.migrator.Version()
		m.logger.Info("Migrations applied", map[string]interface{}{"direction": direction, "version": version})
		return nil
	case <-ctx.Done():
		m.migrator.GracefulStop <- true
		return errors.Errorf("migration %s timed out after %s", direction, m.config.Timeout)
	}
}

// Version returns the current migration version and whether it is dirty
func (m *Manager) Version() (uint, bool, error) {
	if err := m.init(); err != nil {
		return 0, false, err
	}
	version, dirty, err := m.migrator.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return version, dirty, err
}

// Force sets the recorded version without running migrations
func (m *Manager) Force(version int) error {
	if err := m.init(); err != nil {
		return err
	}
	return errors.Wrap(m.migrator.Force(version), "failed to force migration version")
}

// Close releases resources used by the migration manager
func (m *Manager) Close() error {
	if m.migrator == nil {
		return nil
	}
	sourceErr, databaseErr := m.migrator.Close()
	if sourceErr != nil {
		return errors.Wrap(sourceErr, "failed to close migration source")
	}
	return errors.Wrap(databaseErr, "failed to close migration database")
}
