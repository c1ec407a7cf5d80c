package db

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"sync"

	"github.com/pressly/goose/v3"

	"dataledge/internal/shared/telemetry"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

const migrationsDir = "migrations"

// goose keeps its base FS and dialect in package state.
var migrateMu sync.Mutex

// RunMigrations brings the datasource schema up to the latest embedded
// version. A nil database means the memory repository is in use.
func RunMigrations(ctx context.Context, database *sql.DB) error {
	if database == nil {
		return nil
	}
	migrateMu.Lock()
	defer migrateMu.Unlock()

	goose.SetBaseFS(migrationFiles)
	defer goose.SetBaseFS(nil)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("goose dialect: %w", err)
	}

	from, err := goose.GetDBVersionContext(ctx, database)
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if err := goose.UpContext(ctx, database, migrationsDir); err != nil {
		telemetry.Error("db.migrate.failed", map[string]any{
			"from_version": from,
			"error":        err.Error(),
		})
		return fmt.Errorf("apply migrations: %w", err)
	}
	to, err := goose.GetDBVersionContext(ctx, database)
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	telemetry.Info("db.migrate.done", map[string]any{
		"from_version": from,
		"to_version":   to,
	})
	return nil
}

// MigrationNames lists the embedded migration files in apply order.
func MigrationNames() ([]string, error) {
	return fs.Glob(migrationFiles, migrationsDir+"/*.sql")
}
