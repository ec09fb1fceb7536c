package storage

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/whale-role-bot/internal/config"
)

// testContext creates a context with timeout for tests
func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func testPostgresConfig() *config.PostgresConfig {
	return &config.PostgresConfig{
		Host:           envOr("TEST_POSTGRES_HOST", "localhost"),
		Port:           envOr("TEST_POSTGRES_PORT", "5432"),
		Database:       envOr("TEST_POSTGRES_DB", "wallet_verification_test"),
		User:           envOr("TEST_POSTGRES_USER", "whalebot"),
		Password:       envOr("TEST_POSTGRES_PASSWORD", "whalebot_dev_password"),
		MaxConnections: 4,
	}
}

func testClickHouseConfig() *config.ClickHouseConfig {
	return &config.ClickHouseConfig{
		Host:     envOr("TEST_CLICKHOUSE_HOST", "localhost"),
		Port:     envOr("TEST_CLICKHOUSE_PORT", "9000"),
		Database: envOr("TEST_CLICKHOUSE_DB", "whale_bot_test"),
		User:     envOr("TEST_CLICKHOUSE_USER", "default"),
		Password: envOr("TEST_CLICKHOUSE_PASSWORD", ""),
	}
}

// setupPostgres connects to the test database, applies migrations and empties
// every table. It skips the test when Postgres is not reachable.
func setupPostgres(t *testing.T) *PostgresDB {
	t.Helper()

	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	cfg := testPostgresConfig()
	db, err := NewPostgresDB(testContext(t), cfg)
	if err != nil {
		t.Skipf("Skipping test - Postgres not available: %v", err)
	}
	t.Cleanup(db.Close)

	if err := RunMigrations(cfg.URL(), "../../migrations/postgres"); err != nil {
		t.Fatalf("RunMigrations() error = %v", err)
	}

	if _, err := db.Pool().Exec(testContext(t), `TRUNCATE verified_wallets, leaderboard, whale_records`); err != nil {
		t.Fatalf("truncate error = %v", err)
	}

	return db
}

// setupClickHouse connects to the test ClickHouse and applies migrations.
// It skips the test when ClickHouse is not reachable.
func setupClickHouse(t *testing.T) *ClickHouseDB {
	t.Helper()

	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	db, err := NewClickHouseDB(testContext(t), testClickHouseConfig())
	if err != nil {
		t.Skipf("Skipping test - ClickHouse not available: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err := RunClickHouseMigrations(testContext(t), db, "../../migrations/clickhouse"); err != nil {
		t.Fatalf("RunClickHouseMigrations() error = %v", err)
	}

	return db
}
