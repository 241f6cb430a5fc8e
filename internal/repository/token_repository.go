package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/juju/clock"

	"github.com/polteknik/kompen/internal/store"
)

// TokenRepo persists refresh tokens.  Only the SHA-256 hash of a token
// is stored.
type TokenRepo struct {
	db    *sql.DB
	clock clock.Clock
}

var _ store.Tokens = (*TokenRepo)(nil)

func NewTokenRepo(db *sql.DB, clk clock.Clock) *TokenRepo {
	if clk == nil {
		clk = clock.WallClock
	}
	return &TokenRepo{db: db, clock: clk}
}

// StoreRefresh inserts a refresh token hash row.
func (r *TokenRepo) StoreRefresh(ctx context.Context, userID uint64, tokenHash string, exp time.Time) error {
	_, err := r.db.ExecContext(ctx,
		"INSERT INTO refresh_tokens (user_id, token_hash, expires_at, created_at) VALUES (?, ?, ?, ?)",
		userID, tokenHash, exp.UTC(), r.clock.Now().UTC())
	return translate(err)
}

// ValidateRefresh returns the owner of a live token.  Revoked, expired and
// unknown tokens all yield store.ErrNotFound.
func (r *TokenRepo) ValidateRefresh(ctx context.Context, tokenHash string) (uint64, error) {
	var (
		userID    uint64
		expiresAt time.Time
		revokedAt sql.NullTime
	)
	err := r.db.QueryRowContext(ctx,
		"SELECT user_id, expires_at, revoked_at FROM refresh_tokens WHERE token_hash = ? LIMIT 1",
		tokenHash).Scan(&userID, &expiresAt, &revokedAt)
	if err != nil {
		return 0, translate(err)
	}
	if revokedAt.Valid || r.clock.Now().UTC().After(expiresAt) {
		return 0, store.ErrNotFound
	}
	return userID, nil
}

// RevokeByHash marks a token as revoked.
func (r *TokenRepo) RevokeByHash(ctx context.Context, tokenHash string) error {
	_, err := r.db.ExecContext(ctx,
		"UPDATE refresh_tokens SET revoked_at = ? WHERE token_hash = ? AND revoked_at IS NULL",
		r.clock.Now().UTC(), tokenHash)
	return err
}

// RevokeAllForUser revokes every active token of a user.
func (r *TokenRepo) RevokeAllForUser(ctx context.Context, userID uint64) error {
	_, err := r.db.ExecContext(ctx,
		"UPDATE refresh_tokens SET revoked_at = ? WHERE user_id = ? AND revoked_at IS NULL",
		r.clock.Now().UTC(), userID)
	return err
}
