package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/wastetrack/wastetrack/internal/apperr"
	"github.com/wastetrack/wastetrack/internal/auth"
	"github.com/wastetrack/wastetrack/internal/logger"
	"github.com/wastetrack/wastetrack/internal/metrics"
	"github.com/wastetrack/wastetrack/internal/model"
	"github.com/wastetrack/wastetrack/internal/repository"
)

// TokenIssuer mints access/refresh pairs and rotates refresh tokens. It
// works on account values and owns no account state.
type TokenIssuer struct {
	tokens   TokenStore
	accounts AccountStore
	jwt      *auth.TokenService
	audit    *AuditRecorder
	metrics  *metrics.Metrics
	log      *logger.Logger
	now      func() time.Time
}

// NewTokenIssuer creates a new TokenIssuer
func NewTokenIssuer(tokens TokenStore, accounts AccountStore, jwt *auth.TokenService, audit *AuditRecorder, log *logger.Logger, m *metrics.Metrics) *TokenIssuer {
	return &TokenIssuer{
		tokens:   tokens,
		accounts: accounts,
		jwt:      jwt,
		audit:    audit,
		metrics:  m,
		log:      log.WithComponent("token_issuer"),
		now:      time.Now,
	}
}

// Issue mints a new pair for acct and stores the refresh record. The raw
// refresh token is only ever returned here.
func (i *TokenIssuer) Issue(ctx context.Context, acct *model.Account, meta RequestMeta) (*model.TokenPair, error) {
	pair, record, err := i.mint(acct, meta, i.now())
	if err != nil {
		return nil, apperr.Internal(err)
	}
	if err := i.tokens.Create(ctx, record); err != nil {
		return nil, apperr.Internal(fmt.Errorf("failed to store refresh token: %w", err))
	}
	return pair, nil
}

// Refresh redeems a refresh token for a new pair. A token can be redeemed
// once; the old record is revoked and the new one stored in one atomic step,
// so a concurrent or later replay fails with ErrTokenInvalid.
func (i *TokenIssuer) Refresh(ctx context.Context, raw string, meta RequestMeta) (*model.TokenPair, error) {
	if raw == "" {
		return nil, apperr.ErrRefreshTokenRequired
	}

	claims, err := i.jwt.ValidateRefreshToken(raw)
	if err != nil {
		if errors.Is(err, auth.ErrTokenExpired) {
			return nil, i.deny("", "expired", meta, apperr.ErrTokenExpired)
		}
		return nil, i.deny("", "malformed", meta, apperr.ErrTokenInvalid)
	}

	now := i.now()

	record, err := i.tokens.GetByID(ctx, claims.ID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, i.deny(claims.AccountID, "unknown_token", meta, apperr.ErrTokenInvalid)
		}
		return nil, apperr.Internal(err)
	}
	if record.AccountID != claims.AccountID || !auth.VerifyRefreshToken(raw, record.TokenHash) {
		return nil, i.deny(claims.AccountID, "hash_mismatch", meta, apperr.ErrTokenInvalid)
	}
	if record.Revoked {
		return nil, i.deny(claims.AccountID, "revoked", meta, apperr.ErrTokenInvalid)
	}
	if record.IsExpired(now) {
		return nil, i.deny(claims.AccountID, "expired", meta, apperr.ErrTokenExpired)
	}

	acct, err := i.accounts.GetByID(ctx, claims.AccountID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, i.deny("", "account_not_found", meta, apperr.ErrTokenInvalid)
		}
		return nil, apperr.Internal(err)
	}
	if !acct.IsActive {
		return nil, i.deny(acct.ID, "account_blocked", meta, BlockedError(acct))
	}

	pair, replacement, err := i.mint(acct, meta, now)
	if err != nil {
		return nil, apperr.Internal(err)
	}

	if err := i.tokens.Rotate(ctx, record.ID, replacement, now); err != nil {
		if errors.Is(err, repository.ErrAlreadyRevoked) {
			return nil, i.deny(acct.ID, "already_rotated", meta, apperr.ErrTokenInvalid)
		}
		return nil, apperr.Internal(fmt.Errorf("failed to rotate refresh token: %w", err))
	}

	i.audit.Record(AuditEvent{
		Action:         model.AuditActionTokenRefresh,
		ActorAccountID: acct.ID,
		Status:         model.AuditStatusSuccess,
		Meta:           meta,
	})
	i.metrics.TokenRefresh("success")
	return pair, nil
}

// Revoke revokes one refresh token of the account. Tokens that fail
// verification or belong to someone else are rejected with ErrTokenInvalid.
func (i *TokenIssuer) Revoke(ctx context.Context, accountID, raw string) error {
	claims, err := i.jwt.ValidateRefreshToken(raw)
	if err != nil {
		// an expired token is already unusable
		if errors.Is(err, auth.ErrTokenExpired) {
			return nil
		}
		return apperr.ErrTokenInvalid
	}
	if claims.AccountID != accountID {
		return apperr.ErrTokenInvalid
	}

	if _, err := i.tokens.Revoke(ctx, accountID, claims.ID, i.now()); err != nil {
		return apperr.Internal(err)
	}
	return nil
}

// RevokeAll revokes every live refresh token of the account
func (i *TokenIssuer) RevokeAll(ctx context.Context, accountID string) (int64, error) {
	n, err := i.tokens.RevokeAll(ctx, accountID, i.now())
	if err != nil {
		return 0, apperr.Internal(err)
	}
	i.log.Debug().Str("account_id", accountID).Int64("revoked", n).Msg("revoked refresh tokens")
	return n, nil
}

// AccessTTL returns the access token lifetime
func (i *TokenIssuer) AccessTTL() time.Duration {
	return i.jwt.AccessTTL()
}

func (i *TokenIssuer) mint(acct *model.Account, meta RequestMeta, now time.Time) (*model.TokenPair, *model.RefreshToken, error) {
	access, err := i.jwt.GenerateAccessToken(acct, now)
	if err != nil {
		return nil, nil, err
	}

	recordID := uuid.New().String()
	raw, expiresAt, err := i.jwt.GenerateRefreshToken(acct.ID, recordID, now)
	if err != nil {
		return nil, nil, err
	}
	hash, err := auth.HashRefreshToken(raw)
	if err != nil {
		return nil, nil, err
	}

	record := &model.RefreshToken{
		ID:               recordID,
		AccountID:        acct.ID,
		TokenHash:        hash,
		ExpiresAt:        expiresAt,
		IssuingIP:        meta.IP,
		IssuingUserAgent: meta.UserAgent,
		CreatedAt:        now,
	}
	pair := &model.TokenPair{
		AccessToken:  access,
		RefreshToken: raw,
		ExpiresIn:    int64(i.jwt.AccessTTL().Seconds()),
	}
	return pair, record, nil
}

// deny audits a failed redemption and returns err. Failures tied to a known
// account are token_refresh records; the rest are access_denied.
func (i *TokenIssuer) deny(accountID, reason string, meta RequestMeta, err error) error {
	action := model.AuditActionTokenRefresh
	if accountID == "" {
		action = model.AuditActionAccessDenied
	}
	i.audit.Record(AuditEvent{
		Action:         action,
		ActorAccountID: accountID,
		Status:         model.AuditStatusFailed,
		Meta:           meta,
		Metadata:       map[string]any{"reason": reason, "endpoint": "refresh"},
	})
	i.metrics.TokenRefresh(reason)
	return err
}
