// Package testdb connects integration tests to a disposable Postgres
// database. Tests that need it skip themselves when TEST_DATABASE_DSN is not
// set, so the unit suite stays runnable without infrastructure.
package testdb

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/lib/pq"
	"github.com/pressly/goose/v3"
)

// Pool applies the migrations, truncates every table and returns a pool.
// The pool is closed automatically when the test finishes.
func Pool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	dsn := os.Getenv("TEST_DATABASE_DSN")
	if dsn == "" {
		t.Skip("TEST_DATABASE_DSN not set")
	}

	sqlDB, err := goose.OpenDBWithDriver("postgres", dsn)
	if err != nil {
		t.Fatalf("open migration connection: %v", err)
	}
	if err := goose.Up(sqlDB, migrationsDir()); err != nil {
		_ = sqlDB.Close()
		t.Fatalf("apply migrations: %v", err)
	}
	_ = sqlDB.Close()

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(pool.Close)

	if _, err := pool.Exec(ctx, `
		TRUNCATE dialog_states, audit_log, closed_requests, requests,
		         admin_grants, user_work_zones, users, geo_nodes
		RESTART IDENTITY CASCADE
	`); err != nil {
		t.Fatalf("truncate: %v", err)
	}
	return pool
}

func migrationsDir() string {
	_, file, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(file), "..", "..", "migrations")
}
