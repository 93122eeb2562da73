package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"

	"github.com/forgelab-io/forge-engine/pkg/retry"
)

// Migrate brings the schema up to date from the migration files in
// migrationsPath. golang-migrate drives migrations through database/sql, so
// it opens its own short-lived connection via the stdlib pgx driver instead
// of borrowing from the runtime pool. Like NewConnection, the initial ping is
// retried with backoff so the engine survives a database that is still
// starting up. Idempotent; an up-to-date schema is not an error.
func Migrate(ctx context.Context, cfg *Config, migrationsPath string, logger *zap.Logger) error {
	logger = logger.Named("migrations")

	db, err := sql.Open("pgx", cfg.URL)
	if err != nil {
		return fmt.Errorf("failed to open migration connection: %w", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Warn("Failed to close migration connection", zap.Error(err))
		}
	}()

	if err := retry.Do(ctx, retry.DefaultConfig(), func() error {
		return db.PingContext(ctx)
	}); err != nil {
		return fmt.Errorf("failed to ping database for migrations: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance("file://"+migrationsPath, "postgres", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}
	defer func() {
		if srcErr, _ := m.Close(); srcErr != nil {
			logger.Warn("Failed to close migration source", zap.Error(srcErr))
		}
	}()

	before, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("failed to read schema version: %w", err)
	}
	if dirty {
		// A dirty version means an earlier run died mid-migration and the
		// schema needs manual inspection before anything else touches it.
		return fmt.Errorf("schema version %d is dirty, refusing to migrate", before)
	}

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			logger.Info("Schema up to date", zap.Uint("version", before))
			return nil
		}
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	after, _, err := m.Version()
	if err != nil {
		return fmt.Errorf("failed to read schema version after migrating: %w", err)
	}
	logger.Info("Applied migrations",
		zap.Uint("from_version", before),
		zap.Uint("to_version", after))
	return nil
}
