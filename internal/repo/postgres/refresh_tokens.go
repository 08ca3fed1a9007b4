package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrRefreshTokenNotFound is returned by GetForUpdate when no row
// matches the given id, distinguishing "never existed" from any other
// query failure.
var ErrRefreshTokenNotFound = errors.New("refresh not found")

// RefreshTokenRow mirrors the refresh_tokens table. TokenHash is
// auth.Manager's HashRefreshToken digest, never the raw token.
type RefreshTokenRow struct {
	ID         string
	UserID     string
	TokenHash  string
	ExpiresAt  time.Time
	RevokedAt  *time.Time
	ReplacedBy *string
	CreatedAt  time.Time
}

// RefreshTokensRepo persists refresh tokens behind caller-managed
// transactions (BeginTx), since refresh rotation needs the read-lock in
// GetForUpdate and the subsequent Create/Revoke pair to commit together.
type RefreshTokensRepo struct {
	pool *pgxpool.Pool
}

func NewRefreshTokensRepo(pool *pgxpool.Pool) *RefreshTokensRepo {
	return &RefreshTokensRepo{pool: pool}
}

func (r *RefreshTokensRepo) BeginTx(ctx context.Context) (pgx.Tx, error) {
	return r.pool.BeginTx(ctx, pgx.TxOptions{})
}

func (r *RefreshTokensRepo) Create(ctx context.Context, tx pgx.Tx, row RefreshTokenRow) error {
	const q = `
		INSERT INTO refresh_tokens (id, user_id, token_hash, expires_at, revoked_at, replaced_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := tx.Exec(ctx, q, row.ID, row.UserID, row.TokenHash, row.ExpiresAt, row.RevokedAt, row.ReplacedBy, row.CreatedAt)
	return err
}

// GetForUpdate row-locks the token so a concurrent refresh request using
// the same token can't both succeed and issue two replacement chains.
func (r *RefreshTokensRepo) GetForUpdate(ctx context.Context, tx pgx.Tx, id string) (RefreshTokenRow, error) {
	const q = `
		SELECT id, user_id, token_hash, expires_at, revoked_at, replaced_by, created_at
		FROM refresh_tokens
		WHERE id = $1
		FOR UPDATE`

	var row RefreshTokenRow
	err := tx.QueryRow(ctx, q, id).Scan(
		&row.ID,
		&row.UserID,
		&row.TokenHash,
		&row.ExpiresAt,
		&row.RevokedAt,
		&row.ReplacedBy,
		&row.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return RefreshTokenRow{}, ErrRefreshTokenNotFound
	}
	if err != nil {
		return RefreshTokenRow{}, err
	}
	return row, nil
}

// Revoke marks one token used, optionally recording the token that
// replaced it so a revoked-token reuse can be traced to its rotation.
func (r *RefreshTokensRepo) Revoke(ctx context.Context, tx pgx.Tx, id string, replacedBy *string) error {
	const q = `
		UPDATE refresh_tokens
		SET revoked_at = NOW(), replaced_by = $2
		WHERE id = $1`

	_, err := tx.Exec(ctx, q, id, replacedBy)
	return err
}

// RevokeAllForUser is the logout-everywhere / compromised-credential
// path: every still-active token for the user stops working immediately.
func (r *RefreshTokensRepo) RevokeAllForUser(ctx context.Context, tx pgx.Tx, userID string) error {
	const q = `
		UPDATE refresh_tokens
		SET revoked_at = NOW()
		WHERE user_id = $1 AND revoked_at IS NULL`

	_, err := tx.Exec(ctx, q, userID)
	return err
}
