package migration

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"go.uber.org/zap"
)

// Migrator drives the ledger schema through golang-migrate
type Migrator struct {
	migrate *migrate.Migrate
	logger  *zap.Logger
}

// New wraps an open postgres connection and a migrations directory
func New(db *sql.DB, migrationsPath string, logger *zap.Logger) (*Migrator, error) {
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance("file://"+migrationsPath, "postgres", driver)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}

	return &Migrator{migrate: m, logger: logger}, nil
}

// run executes one migrate operation, treating ErrNoChange as a clean no-op
func (m *Migrator) run(what string, op func() error) (changed bool, err error) {
	m.logger.Info("Running migration operation", zap.String("op", what))

	if err := op(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			m.logger.Info("Schema already up to date", zap.String("op", what))
			return false, nil
		}
		return false, fmt.Errorf("migration %s failed: %w", what, err)
	}
	return true, nil
}

// logVersion reports where the schema ended up after a change
func (m *Migrator) logVersion() error {
	version, dirty, err := m.Version()
	if err != nil {
		return err
	}
	m.logger.Info("Schema version",
		zap.Uint("version", version),
		zap.Bool("dirty", dirty),
	)
	return nil
}

// Up applies every pending migration
func (m *Migrator) Up() error {
	changed, err := m.run("up", m.migrate.Up)
	if err != nil || !changed {
		return err
	}
	return m.logVersion()
}

// Down rolls the schema all the way back
func (m *Migrator) Down() error {
	_, err := m.run("down", m.migrate.Down)
	return err
}

// Steps applies n migrations: positive walks forward, negative back
func (m *Migrator) Steps(n int) error {
	changed, err := m.run(fmt.Sprintf("steps(%d)", n), func() error {
		return m.migrate.Steps(n)
	})
	if err != nil || !changed {
		return err
	}
	return m.logVersion()
}

// GoTo migrates the schema to an exact version, in either direction
func (m *Migrator) GoTo(version uint) error {
	changed, err := m.run(fmt.Sprintf("goto(%d)", version), func() error {
		return m.migrate.Migrate(version)
	})
	if err != nil || !changed {
		return err
	}
	m.logger.Info("Schema moved to version", zap.Uint("version", version))
	return nil
}

// Version reports the current schema version; a fresh database is (0, false)
func (m *Migrator) Version() (uint, bool, error) {
	version, dirty, err := m.migrate.Version()
	if err != nil {
		if errors.Is(err, migrate.ErrNilVersion) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("failed to get migration version: %w", err)
	}
	return version, dirty, nil
}

// Force stamps the version without running any SQL. Only for recovering a
// dirty schema after a failed migration.
func (m *Migrator) Force(version int) error {
	m.logger.Warn("Forcing migration version", zap.Int("version", version))

	if err := m.migrate.Force(version); err != nil {
		return fmt.Errorf("failed to force version %d: %w", version, err)
	}
	return nil
}

// Drop removes every object in the database, ledger data included
func (m *Migrator) Drop() error {
	m.logger.Warn("Dropping database, all ledger data will be lost")

	if err := m.migrate.Drop(); err != nil {
		return fmt.Errorf("failed to drop database: %w", err)
	}
	return nil
}

// Close releases the source and database handles
func (m *Migrator) Close() error {
	sourceErr, dbErr := m.migrate.Close()
	if sourceErr != nil {
		return fmt.Errorf("failed to close source: %w", sourceErr)
	}
	if dbErr != nil {
		return fmt.Errorf("failed to close database: %w", dbErr)
	}
	return nil
}
