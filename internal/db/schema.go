package db

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// EnsureSchema creates the engine's tables if they don't already exist.
// There's no migration tool in front of this on purpose: the schema is
// small and stable enough that idempotent DDL at startup is simpler than
// wiring one in.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS jobs (
			id BIGINT PRIMARY KEY,
			tenant_id TEXT NOT NULL,
			type TEXT NOT NULL,
			payload JSONB NOT NULL,
			status TEXT NOT NULL,
			attempts INT NOT NULL DEFAULT 0,
			max_attempts INT NOT NULL DEFAULT 3,
			priority TEXT NOT NULL DEFAULT 'normal',
			history JSONB NOT NULL DEFAULT '[]',
			result JSONB,
			last_error TEXT,
			progress JSONB,
			entity_id TEXT NOT NULL,
			"group" TEXT NOT NULL,
			dedupe_key TEXT,
			batch_id TEXT,
			scheduled_at TIMESTAMPTZ,
			duration TEXT NOT NULL DEFAULT 'short',
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL,
			completed_at TIMESTAMPTZ
		)`,
		`CREATE INDEX IF NOT EXISTS idx_jobs_tenant_status ON jobs(tenant_id, status)`,
		`CREATE INDEX IF NOT EXISTS idx_jobs_dedupe ON jobs(tenant_id, dedupe_key) WHERE dedupe_key IS NOT NULL`,
		`CREATE INDEX IF NOT EXISTS idx_jobs_stale_processing ON jobs(status, updated_at) WHERE status = 'processing'`,
		`CREATE INDEX IF NOT EXISTS idx_jobs_cursor ON jobs(tenant_id, updated_at DESC, id DESC)`,

		`CREATE TABLE IF NOT EXISTS job_dlq (
			id BIGSERIAL PRIMARY KEY,
			source_job_id BIGINT NOT NULL,
			tenant_id TEXT NOT NULL,
			type TEXT NOT NULL,
			payload JSONB NOT NULL,
			priority TEXT NOT NULL,
			max_attempts INT NOT NULL,
			attempts INT NOT NULL,
			reason TEXT NOT NULL,
			error_history TEXT[] NOT NULL DEFAULT '{}',
			replay_count INT NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL,
			last_replay_at TIMESTAMPTZ,
			resolved_at TIMESTAMPTZ
		)`,
		`CREATE INDEX IF NOT EXISTS idx_job_dlq_tenant_replay ON job_dlq(tenant_id, replay_count)`,

		`CREATE TABLE IF NOT EXISTS cluster_shard_assignment (
			"group" TEXT NOT NULL,
			shard_id INT NOT NULL,
			runner_id TEXT NOT NULL,
			lock_token BIGINT NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL,
			PRIMARY KEY ("group", shard_id)
		)`,

		// operator accounts fronting the admin RPC surface (replay/resetJob/
		// recoverInFlight), not a tenant-facing user domain.
		`CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			email TEXT NOT NULL UNIQUE,
			password_hash TEXT NOT NULL,
			name TEXT NOT NULL,
			role TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS refresh_tokens (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL REFERENCES users(id),
			token_hash TEXT NOT NULL,
			expires_at TIMESTAMPTZ NOT NULL,
			revoked_at TIMESTAMPTZ,
			replaced_by TEXT,
			created_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_refresh_tokens_user ON refresh_tokens(user_id)`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
