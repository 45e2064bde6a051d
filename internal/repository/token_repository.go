package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/wastetrack/wastetrack/internal/database"
	"github.com/wastetrack/wastetrack/internal/model"
)

var tokenUniqueFields = map[string]string{
	"refresh_tokens_token_hash_key": "tokenHash",
}

// TokenRepository handles refresh token persistence
type TokenRepository struct {
	db *database.Postgres
}

// NewTokenRepository creates a new TokenRepository
func NewTokenRepository(db *database.Postgres) *TokenRepository {
	return &TokenRepository{db: db}
}

const insertRefreshToken = `
	INSERT INTO refresh_tokens (id, account_id, token_hash, expires_at, issuing_ip, issuing_user_agent, revoked, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, FALSE, $7)
`

// Create stores a new refresh token
func (r *TokenRepository) Create(ctx context.Context, token *model.RefreshToken) error {
	_, err := r.db.ExecContext(ctx, insertRefreshToken,
		token.ID,
		token.AccountID,
		token.TokenHash,
		token.ExpiresAt,
		token.IssuingIP,
		token.IssuingUserAgent,
		token.CreatedAt,
	)
	if err != nil {
		if dup := translateDuplicate(err, tokenUniqueFields); dup != err {
			return dup
		}
		return fmt.Errorf("failed to create refresh token: %w", err)
	}
	return nil
}

// GetByID retrieves a refresh token by id
func (r *TokenRepository) GetByID(ctx context.Context, id string) (*model.RefreshToken, error) {
	query := `
		SELECT id, account_id, token_hash, expires_at, issuing_ip, issuing_user_agent,
		       revoked, revoked_at, created_at
		FROM refresh_tokens
		WHERE id = $1
	`
	var token model.RefreshToken
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&token.ID,
		&token.AccountID,
		&token.TokenHash,
		&token.ExpiresAt,
		&token.IssuingIP,
		&token.IssuingUserAgent,
		&token.Revoked,
		&token.RevokedAt,
		&token.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get refresh token: %w", err)
	}
	return &token, nil
}

// Rotate revokes the token identified by oldID and stores replacement in a
// single transaction. The revoke only applies to a token that is still
// live, so of two concurrent rotations of the same token exactly one
// commits; the other gets ErrAlreadyRevoked and nothing is inserted.
func (r *TokenRepository) Rotate(ctx context.Context, oldID string, replacement *model.RefreshToken, now time.Time) error {
	return r.db.WithTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `
			UPDATE refresh_tokens
			SET revoked = TRUE, revoked_at = $3
			WHERE id = $1 AND account_id = $2 AND revoked = FALSE AND expires_at > $3
		`, oldID, replacement.AccountID, now)
		if err != nil {
			return fmt.Errorf("failed to revoke refresh token: %w", err)
		}
		n, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to read rows affected: %w", err)
		}
		if n == 0 {
			return ErrAlreadyRevoked
		}

		_, err = tx.ExecContext(ctx, insertRefreshToken,
			replacement.ID,
			replacement.AccountID,
			replacement.TokenHash,
			replacement.ExpiresAt,
			replacement.IssuingIP,
			replacement.IssuingUserAgent,
			replacement.CreatedAt,
		)
		if err != nil {
			if dup := translateDuplicate(err, tokenUniqueFields); dup != err {
				return dup
			}
			return fmt.Errorf("failed to store replacement token: %w", err)
		}
		return nil
	})
}

// Revoke revokes a single token owned by accountID. It reports whether a
// live token was revoked.
func (r *TokenRepository) Revoke(ctx context.Context, accountID, id string, now time.Time) (bool, error) {
	query := `UPDATE refresh_tokens SET revoked = TRUE, revoked_at = $3 WHERE id = $1 AND account_id = $2 AND revoked = FALSE`
	result, err := r.db.ExecContext(ctx, query, id, accountID, now)
	if err != nil {
		return false, fmt.Errorf("failed to revoke refresh token: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return n > 0, nil
}

// RevokeAll revokes every live refresh token of an account
func (r *TokenRepository) RevokeAll(ctx context.Context, accountID string, now time.Time) (int64, error) {
	query := `UPDATE refresh_tokens SET revoked = TRUE, revoked_at = $2 WHERE account_id = $1 AND revoked = FALSE`
	result, err := r.db.ExecContext(ctx, query, accountID, now)
	if err != nil {
		return 0, fmt.Errorf("failed to revoke all refresh tokens: %w", err)
	}
	return result.RowsAffected()
}

// DeleteExpired removes tokens that expired before cutoff. Expiry is enforced
// at verification time; this only reclaims space.
func (r *TokenRepository) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM refresh_tokens WHERE expires_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired tokens: %w", err)
	}
	return result.RowsAffected()
}
