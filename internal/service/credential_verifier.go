package service

import (
	"context"
	"errors"
	"time"

	"github.com/wastetrack/wastetrack/internal/apperr"
	"github.com/wastetrack/wastetrack/internal/auth"
	"github.com/wastetrack/wastetrack/internal/logger"
	"github.com/wastetrack/wastetrack/internal/metrics"
	"github.com/wastetrack/wastetrack/internal/model"
	"github.com/wastetrack/wastetrack/internal/repository"
)

// CredentialVerifier checks an identifier and secret against stored
// accounts. Every call produces exactly one audit record.
type CredentialVerifier struct {
	accounts AccountStore
	hasher   *auth.PasswordHasher
	audit    *AuditRecorder
	metrics  *metrics.Metrics
	log      *logger.Logger
	now      func() time.Time
}

// NewCredentialVerifier creates a new CredentialVerifier
func NewCredentialVerifier(accounts AccountStore, hasher *auth.PasswordHasher, audit *AuditRecorder, log *logger.Logger, m *metrics.Metrics) *CredentialVerifier {
	return &CredentialVerifier{
		accounts: accounts,
		hasher:   hasher,
		audit:    audit,
		metrics:  m,
		log:      log.WithComponent("credential_verifier"),
		now:      time.Now,
	}
}

// Authenticate returns the account for identifier if secret matches. An
// unknown identifier and a wrong secret both yield ErrInvalidCredentials.
// A blocked account with the right secret yields ErrAccountBlocked.
func (v *CredentialVerifier) Authenticate(ctx context.Context, identifier, secret string, meta RequestMeta) (*model.Account, error) {
	method := auth.ClassifyIdentifier(identifier)

	acct, err := v.accounts.GetByIdentifierWithSecret(ctx, identifier)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			v.log.Error().Err(err).Msg("account lookup failed")
			v.fail(method, "", "lookup_error", meta)
			return nil, apperr.Internal(err)
		}
		v.hasher.VerifyDummy(secret)
		v.fail(method, "", "unknown_identifier", meta)
		return nil, apperr.ErrInvalidCredentials
	}

	if !acct.CanAuthenticateLocally() {
		v.hasher.VerifyDummy(secret)
		v.fail(method, acct.ID, "local_auth_disabled", meta)
		return nil, apperr.ErrInvalidCredentials
	}

	ok, err := v.hasher.Verify(secret, acct.PasswordHash)
	if err != nil {
		v.log.Error().Err(err).Str("account_id", acct.ID).Msg("stored password hash is unreadable")
		v.fail(method, acct.ID, "hash_error", meta)
		return nil, apperr.Internal(err)
	}
	if !ok {
		v.fail(method, acct.ID, "bad_secret", meta)
		return nil, apperr.ErrInvalidCredentials
	}

	if !acct.IsActive {
		v.fail(method, acct.ID, "account_blocked", meta)
		return nil, BlockedError(acct)
	}

	now := v.now()
	if err := v.accounts.TouchLastLogin(ctx, acct.ID, now); err != nil {
		v.log.Warn().Err(err).Str("account_id", acct.ID).Msg("failed to update last login")
	} else {
		acct.LastLogin = &now
	}

	v.audit.Record(AuditEvent{
		Action:         model.AuditActionLogin,
		ActorAccountID: acct.ID,
		Status:         model.AuditStatusSuccess,
		Method:         method,
		Meta:           meta,
	})
	v.metrics.AuthAttempt(string(method), "success")

	acct.PasswordHash = ""
	return acct, nil
}

func (v *CredentialVerifier) fail(method model.AuthMethod, accountID, reason string, meta RequestMeta) {
	v.audit.Record(AuditEvent{
		Action:         model.AuditActionFailedLogin,
		ActorAccountID: accountID,
		Status:         model.AuditStatusFailed,
		Method:         method,
		Meta:           meta,
		Metadata:       map[string]any{"reason": reason},
	})
	v.metrics.AuthAttempt(string(method), "failure")
}

// BlockedError builds the 403 returned for an inactive account, carrying
// the block time in RFC 3339 UTC.
func BlockedError(acct *model.Account) error {
	if acct.BlockedAt == nil {
		return apperr.ErrAccountBlocked
	}
	blockedAt := acct.BlockedAt.UTC().Format(time.RFC3339)
	return apperr.ErrAccountBlocked.
		WithMessage("This account has been blocked since " + blockedAt).
		WithDetails(map[string]any{"blockedAt": blockedAt})
}
