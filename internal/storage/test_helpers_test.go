package storage

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/buggu-git/taiwan-tools/internal/config"
	"github.com/buggu-git/taiwan-tools/internal/models"
)

// testContext creates a context with timeout for tests
func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func testEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func testPostgresConfig() *config.PostgresConfig {
	return &config.PostgresConfig{
		Host:           testEnv("POSTGRES_HOST", "localhost"),
		Port:           testEnv("POSTGRES_PORT", "5432"),
		Database:       testEnv("POSTGRES_DB", "etf_holdings"),
		User:           testEnv("POSTGRES_USER", "etf"),
		Password:       testEnv("POSTGRES_PASSWORD", ""),
		MaxConnections: 10,
	}
}

// setupTestDB connects to Postgres and applies the schema, skipping the test
// when no database is reachable.
func setupTestDB(t *testing.T) *PostgresDB {
	t.Helper()

	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	cfg := testPostgresConfig()
	db, err := NewPostgresDB(cfg)
	if err != nil {
		t.Skipf("Skipping test - Postgres not available: %v", err)
		return nil
	}
	t.Cleanup(db.Close)

	if err := RunMigrations(cfg.URL(), "../../"+DefaultMigrationsPath); err != nil {
		t.Fatalf("Failed to apply migrations: %v", err)
	}

	return db
}

// registerTestETF upserts a registry row for the test and deletes it at
// cleanup; the delete cascades to every history row the test created.
func registerTestETF(t *testing.T, db *PostgresDB, symbol string) {
	t.Helper()

	repo := NewETFRepository(db)
	if err := repo.UpsertMetadata(testContext(t), &models.ETF{
		Symbol: symbol,
		Name:   "Test ETF " + symbol,
	}); err != nil {
		t.Fatalf("Failed to register test ETF %s: %v", symbol, err)
	}

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = repo.Delete(ctx, symbol)
	})
}
