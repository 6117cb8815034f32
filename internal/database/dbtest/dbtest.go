// Package dbtest opens the disposable PostgreSQL database used by the
// integration tests.
package dbtest

import (
	"context"
	"os"
	"testing"

	"github.com/alexbotov/minigames/internal/database"
)

// DSNEnv names the variable holding a disposable test database.
const DSNEnv = "MINIGAMES_TEST_DSN"

// Open connects to the test database, migrates it and truncates every
// table. The test is skipped when no database is configured.
func Open(t *testing.T) *database.DB {
	t.Helper()

	dsn := os.Getenv(DSNEnv)
	if dsn == "" {
		t.Skipf("%s not set", DSNEnv)
	}

	ctx := context.Background()
	db, err := database.New(ctx, "postgres", dsn)
	if err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}
	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("Failed to migrate: %v", err)
	}
	if err := db.CleanData(ctx); err != nil {
		t.Fatalf("Failed to clean data: %v", err)
	}

	t.Cleanup(func() {
		db.CleanData(context.Background())
		db.Close()
	})
	return db
}
