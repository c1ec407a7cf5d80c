package main

// Run database migrations:
//   go run ./cmd/migrate

import (
	"context"
	"os"

	"dataledge/internal/shared/config"
	"dataledge/internal/shared/storage/db"
	"dataledge/internal/shared/telemetry"
)

func main() {
	defer telemetry.Sync()
	cfg := config.Load()
	ctx := context.Background()

	opts := db.OptionsFromEnv(db.DefaultMigrateOptions())
	sqlDB, err := db.Connect(ctx, cfg.DatabaseURL, opts)
	if err != nil {
		telemetry.Error("migrate.connect_failed", map[string]any{"error": err.Error()})
		os.Exit(1)
	}
	defer sqlDB.Close()

	names, err := db.MigrationNames()
	if err != nil {
		telemetry.Error("migrate.embedded_failed", map[string]any{"error": err.Error()})
		os.Exit(1)
	}
	telemetry.Info("migrate.start", map[string]any{"migrations": names})

	if err := db.RunMigrations(ctx, sqlDB); err != nil {
		telemetry.Error("migrate.failed", map[string]any{"error": err.Error()})
		os.Exit(1)
	}
	telemetry.Info("migrate.done", nil)
}
