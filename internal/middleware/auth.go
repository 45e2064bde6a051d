package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/wastetrack/wastetrack/internal/apperr"
	"github.com/wastetrack/wastetrack/internal/auth"
	"github.com/wastetrack/wastetrack/internal/model"
	"github.com/wastetrack/wastetrack/internal/repository"
	"github.com/wastetrack/wastetrack/internal/respond"
	"github.com/wastetrack/wastetrack/internal/service"
)

// AccountFrom returns the account attached by a gate, or nil
func AccountFrom(ctx context.Context) *model.Account {
	acct, _ := ctx.Value(AccountKey).(*model.Account)
	return acct
}

// WithAccount attaches an authenticated account to ctx
func WithAccount(ctx context.Context, acct *model.Account) context.Context {
	return context.WithValue(ctx, AccountKey, acct)
}

// Basic authenticates the login request from a Basic authorization header.
// The verifier writes the audit record for both outcomes.
func (m *Middleware) Basic(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identifier, secret, ok := r.BasicAuth()
		if !ok || identifier == "" || secret == "" {
			m.deny(r, "", "missing_basic_credentials", apperr.ErrTokenMissing)
			respond.Error(w, apperr.ErrTokenMissing.WithMessage("Basic credentials are required"))
			return
		}

		acct, err := m.verifier.Authenticate(r.Context(), identifier, secret, Meta(r))
		if err != nil {
			m.logInternal(r, err)
			respond.Error(w, err)
			return
		}

		next.ServeHTTP(w, r.WithContext(WithAccount(r.Context(), acct)))
	})
}

// Bearer authenticates a request from its access token. The checks run in
// order: presence, signature and expiry, account existence, account status,
// and issue time against the last credential change. Every rejection is
// audited as access_denied.
func (m *Middleware) Bearer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		acct, err := m.authenticateBearer(r)
		if err != nil {
			m.logInternal(r, err)
			respond.Error(w, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithAccount(r.Context(), acct)))
	})
}

func (m *Middleware) authenticateBearer(r *http.Request) (acct *model.Account, err error) {
	defer func() {
		// a failing store or a bad claim must still produce a response
		if p := recover(); p != nil {
			m.log.Error().Interface("panic", p).Str("path", r.URL.Path).Msg("authorization gate failed")
			acct, err = nil, apperr.ErrInternal
		}
	}()

	raw, ok := bearerToken(r.Header.Get("Authorization"))
	if !ok {
		return nil, m.deny(r, "", "missing_token", apperr.ErrTokenMissing)
	}

	claims, err := m.tokens.ValidateAccessToken(raw)
	if err != nil {
		if errors.Is(err, auth.ErrTokenExpired) {
			return nil, m.deny(r, "", "token_expired", apperr.ErrTokenExpired)
		}
		return nil, m.deny(r, "", "token_invalid", apperr.ErrTokenInvalid)
	}

	acct, err = m.accounts.GetByID(r.Context(), claims.AccountID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, m.deny(r, "", "account_not_found", apperr.ErrAccountNotFound)
		}
		m.log.Error().Err(err).Str("account_id", claims.AccountID).Msg("account lookup failed")
		return nil, m.deny(r, claims.AccountID, "lookup_error", apperr.Internal(err))
	}

	if !acct.IsActive {
		return nil, m.deny(r, acct.ID, "account_blocked", service.BlockedError(acct))
	}

	if acct.PasswordChangedAt != nil && claims.IssuedBefore(*acct.PasswordChangedAt) {
		return nil, m.deny(r, acct.ID, "stale_token", apperr.ErrStaleToken)
	}

	return acct, nil
}

// RequireCapability rejects accounts whose role lacks c with 403. It must
// run after Bearer.
func (m *Middleware) RequireCapability(c model.Capability) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !m.allowed(r, c) {
				respond.Error(w, apperr.ErrForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RedirectUnlessCapable is the page-facing form of RequireCapability: a
// request without an allowed account is redirected to the login page.
// It authenticates the bearer token itself so a missing token also
// redirects.
func (m *Middleware) RedirectUnlessCapable(c model.Capability) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			acct, err := m.authenticateBearer(r)
			if err != nil {
				m.logInternal(r, err)
				http.Redirect(w, r, m.cfg.URLs.Web(m.cfg.URLs.LoginPath), http.StatusFound)
				return
			}
			r = r.WithContext(WithAccount(r.Context(), acct))
			if !m.allowed(r, c) {
				http.Redirect(w, r, m.cfg.URLs.Web(m.cfg.URLs.LoginPath), http.StatusFound)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (m *Middleware) allowed(r *http.Request, c model.Capability) bool {
	acct := AccountFrom(r.Context())
	if acct == nil {
		m.deny(r, "", "unauthenticated", apperr.ErrForbidden)
		return false
	}
	if !acct.Role.Allows(c) {
		m.deny(r, acct.ID, "insufficient_role", apperr.ErrForbidden, "capability", c.String(), "role", string(acct.Role))
		return false
	}
	return true
}

// deny writes the access_denied audit record for a gate rejection and
// returns err unchanged. kv are extra metadata pairs.
func (m *Middleware) deny(r *http.Request, accountID, reason string, err error, kv ...string) error {
	md := map[string]any{
		"reason": reason,
		"error":  apperr.From(err).Code,
		"method": r.Method,
		"path":   r.URL.Path,
	}
	for i := 0; i+1 < len(kv); i += 2 {
		md[kv[i]] = kv[i+1]
	}
	m.audit.Record(service.AuditEvent{
		Action:         model.AuditActionAccessDenied,
		ActorAccountID: accountID,
		Status:         model.AuditStatusFailed,
		Meta:           Meta(r),
		Metadata:       md,
	})
	return err
}

func (m *Middleware) logInternal(r *http.Request, err error) {
	if apperr.KindOf(err) != apperr.KindInternal {
		return
	}
	log := m.log
	if acct := AccountFrom(r.Context()); acct != nil {
		log = log.WithAccountID(acct.ID)
	}
	log.Error().Err(err).
		Str("request_id", GetRequestID(r.Context())).
		Str("path", r.URL.Path).
		Msg("request failed")
}

func bearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
