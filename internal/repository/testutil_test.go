package repository

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// setupTestPool connects to DATABASE_URL and ensures the schema exists,
// skipping the test entirely when no database is configured.
func setupTestPool(t *testing.T) (*pgxpool.Pool, func()) {
	t.Helper()
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		t.Skip("DATABASE_URL not set, skipping integration test")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := NewPool(ctx, dbURL, 5)
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}

	migrationSQL, err := os.ReadFile("../../migrations/001_initial_schema.up.sql")
	if err != nil {
		pool.Close()
		t.Fatalf("read migration: %v", err)
	}

	var ensureErr error
	for attempt := 0; attempt < 5; attempt++ {
		if _, ensureErr = pool.Exec(ctx, string(migrationSQL)); ensureErr == nil {
			break
		}
		time.Sleep(time.Duration(attempt+1) * time.Second)
	}
	if ensureErr != nil {
		pool.Close()
		t.Fatalf("setup schema after retries: %v", ensureErr)
	}

	return pool, func() { pool.Close() }
}
