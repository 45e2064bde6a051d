package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/wastetrack/wastetrack/internal/apperr"
	"github.com/wastetrack/wastetrack/internal/auth"
	"github.com/wastetrack/wastetrack/internal/logger"
	"github.com/wastetrack/wastetrack/internal/metrics"
	"github.com/wastetrack/wastetrack/internal/model"
	"github.com/wastetrack/wastetrack/internal/repository"
)

// ExternalProfile is the identity asserted by a third-party provider
type ExternalProfile struct {
	ProviderID    string
	Email         string
	EmailVerified bool
	Name          string
}

// IdentityProvider runs the provider side of an authorization code flow
type IdentityProvider interface {
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (*ExternalProfile, error)
}

// OAuthResult is the outcome of a completed provider sign in
type OAuthResult struct {
	Account *model.Account
	Tokens  *model.TokenPair
	Created bool
	Linked  bool
}

const maxUsernameAttempts = 5

var usernameStrip = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

// OAuthBridge exchanges a provider identity for a local account and a
// token pair. Accounts created here cannot sign in with a password.
type OAuthBridge struct {
	provider IdentityProvider
	states   StateStore
	accounts AccountStore
	hasher   *auth.PasswordHasher
	issuer   *TokenIssuer
	audit    *AuditRecorder
	metrics  *metrics.Metrics
	stateTTL time.Duration
	log      *logger.Logger
	now      func() time.Time
}

// NewOAuthBridge creates a new OAuthBridge
func NewOAuthBridge(provider IdentityProvider, states StateStore, accounts AccountStore, hasher *auth.PasswordHasher, issuer *TokenIssuer, audit *AuditRecorder, stateTTL time.Duration, log *logger.Logger, m *metrics.Metrics) *OAuthBridge {
	if stateTTL <= 0 {
		stateTTL = 10 * time.Minute
	}
	return &OAuthBridge{
		provider: provider,
		states:   states,
		accounts: accounts,
		hasher:   hasher,
		issuer:   issuer,
		audit:    audit,
		metrics:  m,
		stateTTL: stateTTL,
		log:      log.WithComponent("oauth_bridge"),
		now:      time.Now,
	}
}

// Begin stores a fresh state value and returns the provider consent URL
func (b *OAuthBridge) Begin(ctx context.Context) (string, error) {
	state, err := auth.GenerateRandomString(24)
	if err != nil {
		return "", apperr.Internal(err)
	}
	if err := b.states.Save(ctx, state, b.stateTTL); err != nil {
		return "", apperr.Internal(fmt.Errorf("failed to save oauth state: %w", err))
	}
	return b.provider.AuthCodeURL(state), nil
}

// Complete finishes the flow started by Begin. providerErr is the error
// parameter the provider redirected with, if any. Every failure is audited
// as a failed google login and nothing is written to the account store
// before the provider profile has been obtained.
func (b *OAuthBridge) Complete(ctx context.Context, state, code, providerErr string, meta RequestMeta) (*OAuthResult, error) {
	if providerErr != "" {
		return nil, b.fail("", "provider_error", meta, map[string]any{"providerError": providerErr})
	}
	if state == "" || code == "" {
		return nil, b.fail("", "missing_parameters", meta, nil)
	}

	ok, err := b.states.Consume(ctx, state)
	if err != nil {
		b.log.Error().Err(err).Msg("oauth state lookup failed")
		return nil, b.fail("", "state_error", meta, nil)
	}
	if !ok {
		return nil, b.fail("", "invalid_state", meta, nil)
	}

	profile, err := b.provider.Exchange(ctx, code)
	if err != nil {
		b.log.Warn().Err(err).Msg("oauth code exchange failed")
		return nil, b.fail("", "exchange_failed", meta, nil)
	}
	if profile.ProviderID == "" || profile.Email == "" {
		return nil, b.fail("", "incomplete_profile", meta, nil)
	}
	if !profile.EmailVerified {
		return nil, b.fail("", "unverified_email", meta, nil)
	}

	email := auth.NormalizeEmail(profile.Email)
	identity := model.GoogleIdentity{ProviderID: profile.ProviderID, ProviderEmail: email, Enabled: true}

	result := &OAuthResult{}
	acct, err := b.accounts.GetByEmail(ctx, email)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		acct, err = b.create(ctx, email, identity)
		if err != nil {
			return nil, b.failWith("", "create_failed", meta, err)
		}
		result.Created = true
	case err != nil:
		return nil, b.failWith("", "lookup_error", meta, apperr.Internal(err))
	default:
		if !acct.IsActive {
			b.fail(acct.ID, "account_blocked", meta, nil)
			return nil, BlockedError(acct)
		}
		if acct.AuthMethods.Google != nil && acct.AuthMethods.Google.ProviderID != "" {
			if acct.AuthMethods.Google.ProviderID != profile.ProviderID {
				return nil, b.failWith(acct.ID, "identity_conflict", meta, apperr.ErrIdentityConflict)
			}
		}
		if !acct.HasGoogle() {
			if err := b.accounts.LinkGoogle(ctx, acct.ID, identity); err != nil {
				return nil, b.failWith(acct.ID, "link_failed", meta, conflictOrInternal(err))
			}
			acct.AuthMethods.Google = &identity
			result.Linked = true
		}
	}

	tokens, err := b.issuer.Issue(ctx, acct, meta)
	if err != nil {
		return nil, err
	}

	now := b.now()
	if err := b.accounts.TouchLastLogin(ctx, acct.ID, now); err != nil {
		b.log.Warn().Err(err).Str("account_id", acct.ID).Msg("failed to update last login")
	} else {
		acct.LastLogin = &now
	}

	ev := AuditEvent{
		Action:         model.AuditActionLogin,
		ActorAccountID: acct.ID,
		Status:         model.AuditStatusSuccess,
		Method:         model.AuthMethodGoogle,
		Meta:           meta,
	}
	if result.Created || result.Linked {
		ev.Action = model.AuditActionUserRegistration
		ev.Metadata = map[string]any{"created": result.Created, "linked": result.Linked}
	}
	b.audit.Record(ev)
	b.metrics.AuthAttempt(string(model.AuthMethodGoogle), "success")

	acct.PasswordHash = ""
	result.Account = acct
	result.Tokens = tokens
	return result, nil
}

// create inserts a provider-only account. The stored hash is a random
// placeholder that no password can match.
func (b *OAuthBridge) create(ctx context.Context, email string, identity model.GoogleIdentity) (*model.Account, error) {
	placeholder, err := b.hasher.Placeholder()
	if err != nil {
		return nil, apperr.Internal(err)
	}

	base := usernameFromEmail(email)
	now := b.now().UTC()
	for attempt := 0; attempt < maxUsernameAttempts; attempt++ {
		username := base
		if attempt > 0 {
			username = withSuffix(base, attempt)
		}
		acct := &model.Account{
			ID:           uuid.New().String(),
			Username:     username,
			Email:        email,
			PasswordHash: placeholder,
			Role:         model.RoleCitizen,
			AuthMethods:  model.AuthMethods{Local: false, Google: &identity},
			IsActive:     true,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		err := b.accounts.Create(ctx, acct)
		if err == nil {
			return acct, nil
		}
		var dup *repository.DuplicateError
		if errors.As(err, &dup) && dup.Field == "username" {
			continue
		}
		return nil, conflictOrInternal(err)
	}
	return nil, apperr.ErrUsernameTaken
}

func (b *OAuthBridge) fail(accountID, reason string, meta RequestMeta, extra map[string]any) error {
	md := map[string]any{"reason": reason}
	for k, v := range extra {
		md[k] = v
	}
	b.audit.Record(AuditEvent{
		Action:         model.AuditActionFailedLogin,
		ActorAccountID: accountID,
		Status:         model.AuditStatusFailed,
		Method:         model.AuthMethodGoogle,
		Meta:           meta,
		Metadata:       md,
	})
	b.metrics.AuthAttempt(string(model.AuthMethodGoogle), "failure")
	return apperr.ErrProviderUnavailable
}

// failWith audits like fail but returns err instead of the generic error
func (b *OAuthBridge) failWith(accountID, reason string, meta RequestMeta, err error) error {
	b.fail(accountID, reason, meta, map[string]any{"error": apperr.From(err).Code})
	return err
}

func usernameFromEmail(email string) string {
	local, _, _ := strings.Cut(email, "@")
	name := usernameStrip.ReplaceAllString(local, "")
	if len(name) > 24 {
		name = name[:24]
	}
	for len(name) < 3 {
		name += "_"
	}
	return name
}

func withSuffix(base string, attempt int) string {
	suffix, err := auth.GenerateRandomString(3)
	if err != nil {
		suffix = fmt.Sprintf("%d", attempt)
	}
	suffix = usernameStrip.ReplaceAllString(suffix, "")
	return base + "_" + suffix
}
