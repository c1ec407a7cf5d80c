package db

import (
	"context"
	"strings"
	"testing"
)

func TestRunMigrationsWithoutDatabase(t *testing.T) {
	if err := RunMigrations(context.Background(), nil); err != nil {
		t.Fatalf("expected no-op, got %v", err)
	}
}

func TestEmbeddedMigrationsAreGooseFiles(t *testing.T) {
	names, err := MigrationNames()
	if err != nil {
		t.Fatalf("MigrationNames: %v", err)
	}
	if len(names) == 0 {
		t.Fatalf("expected embedded migrations")
	}
	for _, name := range names {
		body, err := migrationFiles.ReadFile(name)
		if err != nil {
			t.Fatalf("read %s: %v", name, err)
		}
		if !strings.Contains(string(body), "-- +goose Up") {
			t.Fatalf("%s has no goose Up section", name)
		}
	}
}
