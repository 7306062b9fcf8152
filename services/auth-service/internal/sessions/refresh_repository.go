package sessions

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/md-rashed-zaman/dentalcare/libs/db"
)

// ErrInvalidRefresh covers unknown, revoked and expired refresh tokens alike.
var ErrInvalidRefresh = errors.New("invalid refresh token")

type RefreshToken struct {
	ID        string
	UserID    string
	ExpiresAt time.Time
	RevokedAt *time.Time
}

type RefreshRepository struct {
	pool *db.Pool
	now  func() time.Time
}

func NewRefreshRepository(pool *db.Pool) *RefreshRepository {
	return &RefreshRepository{pool: pool, now: time.Now}
}

func (r *RefreshRepository) Create(ctx context.Context, userID, rawToken string, expiresAt time.Time) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO refresh_tokens (id, user_id, token_hash, expires_at)
		VALUES ($1, $2, $3, $4)
	`, uuid.NewString(), userID, HashToken(rawToken), expiresAt)
	return err
}

// Rotate revokes oldRaw and stores newRaw in one transaction, returning the owner.
// The row lock makes a replayed refresh token lose the race instead of minting twice.
func (r *RefreshRepository) Rotate(ctx context.Context, oldRaw, newRaw string, expiresAt time.Time) (string, error) {
	var userID string
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		var tok RefreshToken
		err := tx.QueryRow(ctx, `
			SELECT id, user_id, expires_at, revoked_at
			FROM refresh_tokens
			WHERE token_hash = $1
			FOR UPDATE
		`, HashToken(oldRaw)).Scan(&tok.ID, &tok.UserID, &tok.ExpiresAt, &tok.RevokedAt)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrInvalidRefresh
			}
			return err
		}
		if tok.RevokedAt != nil || !tok.ExpiresAt.After(r.now()) {
			return ErrInvalidRefresh
		}
		if _, err := tx.Exec(ctx, `UPDATE refresh_tokens SET revoked_at = now() WHERE id = $1`, tok.ID); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO refresh_tokens (id, user_id, token_hash, expires_at)
			VALUES ($1, $2, $3, $4)
		`, uuid.NewString(), tok.UserID, HashToken(newRaw), expiresAt); err != nil {
			return err
		}
		userID = tok.UserID
		return nil
	})
	return userID, err
}

// Revoke is idempotent; unknown tokens are ignored.
func (r *RefreshRepository) Revoke(ctx context.Context, rawToken string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE refresh_tokens
		SET revoked_at = now()
		WHERE token_hash = $1 AND revoked_at IS NULL
	`, HashToken(rawToken))
	return err
}

// RevokeAllTx ends every session of a user inside the caller's transaction.
func RevokeAllTx(ctx context.Context, tx pgx.Tx, userID string) error {
	_, err := tx.Exec(ctx, `
		UPDATE refresh_tokens
		SET revoked_at = now()
		WHERE user_id = $1 AND revoked_at IS NULL
	`, userID)
	return err
}
