package db

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shardwork/jobmesh/internal/config"
)

func testPoolForSeed(t *testing.T) *pgxpool.Pool {
	t.Helper()
	pool, err := NewPool(testDSN())
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}
	ctx := context.Background()
	if err := EnsureSchema(ctx, pool); err != nil {
		t.Fatalf("EnsureSchema: %v", err)
	}
	if _, err := pool.Exec(ctx, "TRUNCATE refresh_tokens, users RESTART IDENTITY CASCADE"); err != nil {
		t.Fatalf("truncate: %v", err)
	}
	t.Cleanup(pool.Close)
	return pool
}

func TestEnsureAdminUser_SkipsWhenCredentialsUnset(t *testing.T) {
	pool := testPoolForSeed(t)
	cfg := config.Config{}

	if err := EnsureAdminUser(context.Background(), pool, cfg); err != nil {
		t.Fatalf("EnsureAdminUser: %v", err)
	}

	var count int
	if err := pool.QueryRow(context.Background(), "SELECT count(*) FROM users").Scan(&count); err != nil {
		t.Fatalf("count query: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected no admin user to be created, got %d rows", count)
	}
}

func TestEnsureAdminUser_CreatesAdminOnFirstRun(t *testing.T) {
	pool := testPoolForSeed(t)
	cfg := config.Config{
		AdminEmail:    "admin@example.com",
		AdminPassword: "hunter2hunter2",
		AdminName:     "Admin",
		AdminRole:     "admin",
	}

	if err := EnsureAdminUser(context.Background(), pool, cfg); err != nil {
		t.Fatalf("EnsureAdminUser: %v", err)
	}

	var email string
	if err := pool.QueryRow(context.Background(), "SELECT email FROM users WHERE email = $1", cfg.AdminEmail).Scan(&email); err != nil {
		t.Fatalf("expected the admin row to exist: %v", err)
	}
}

func TestEnsureAdminUser_IsIdempotent(t *testing.T) {
	pool := testPoolForSeed(t)
	cfg := config.Config{
		AdminEmail:    "admin2@example.com",
		AdminPassword: "hunter2hunter2",
		AdminName:     "Admin",
		AdminRole:     "admin",
	}

	if err := EnsureAdminUser(context.Background(), pool, cfg); err != nil {
		t.Fatalf("first EnsureAdminUser: %v", err)
	}
	if err := EnsureAdminUser(context.Background(), pool, cfg); err != nil {
		t.Fatalf("second EnsureAdminUser: %v", err)
	}

	var count int
	if err := pool.QueryRow(context.Background(), "SELECT count(*) FROM users WHERE email = $1", cfg.AdminEmail).Scan(&count); err != nil {
		t.Fatalf("count query: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected exactly one admin row, got %d", count)
	}
}
