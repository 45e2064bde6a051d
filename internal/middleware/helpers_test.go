package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/wastetrack/wastetrack/internal/auth"
	"github.com/wastetrack/wastetrack/internal/config"
	"github.com/wastetrack/wastetrack/internal/logger"
	"github.com/wastetrack/wastetrack/internal/model"
	"github.com/wastetrack/wastetrack/internal/ratelimit"
	"github.com/wastetrack/wastetrack/internal/repository/memory"
	"github.com/wastetrack/wastetrack/internal/service"
)

const testPassword = "Corr3ct-Horse"

type fixture struct {
	mw       *Middleware
	cfg      *config.Config
	accounts *memory.AccountStore
	audits   *memory.AuditStore
	audit    *service.AuditRecorder
	tokens   *auth.TokenService
	hasher   *auth.PasswordHasher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	cfg := &config.Config{
		Security: config.SecurityConfig{
			Tokens: config.TokenConfig{
				AccessSecret:    "access-secret-access-secret-0123456789",
				RefreshSecret:   "refresh-secret-refresh-secret-012345678",
				AccessTokenTTL:  15 * time.Minute,
				RefreshTokenTTL: 24 * time.Hour,
				Issuer:          "wastetrack-test",
			},
			RateLimiting: config.RateLimitingConfig{Enabled: true},
		},
		URLs: config.URLConfig{PublicWeb: "https://app.example.com", LoginPath: "/login"},
	}

	hasher, err := auth.NewPasswordHasher(auth.NewParams(1024, 1, 1))
	require.NoError(t, err)
	tokens, err := auth.NewTokenService(cfg.Security.Tokens)
	require.NoError(t, err)

	log := logger.Nop()
	accounts := memory.NewAccountStore()
	audits := memory.NewAuditStore()
	audit := service.NewAuditRecorder(audits, config.AuditConfig{Workers: 1}, log, nil)
	t.Cleanup(func() { _ = audit.Close(context.Background()) })

	mw := New(cfg, log, Deps{
		Limiter:  ratelimit.NewLocalLimiter(),
		Tokens:   tokens,
		Accounts: accounts,
		Verifier: service.NewCredentialVerifier(accounts, hasher, audit, log, nil),
		Audit:    audit,
	})

	return &fixture{mw: mw, cfg: cfg, accounts: accounts, audits: audits, audit: audit, tokens: tokens, hasher: hasher}
}

func (f *fixture) seed(t *testing.T, username string, role model.Role) *model.Account {
	t.Helper()
	hash, err := f.hasher.Hash(testPassword)
	require.NoError(t, err)
	acct := &model.Account{
		ID:           "id-" + username,
		Username:     username,
		Email:        username + "@example.com",
		PasswordHash: hash,
		Role:         role,
		AuthMethods:  model.AuthMethods{Local: true},
		IsActive:     true,
		CreatedAt:    time.Now(),
	}
	require.NoError(t, f.accounts.Create(context.Background(), acct))
	return acct
}

func (f *fixture) accessToken(t *testing.T, acct *model.Account, issuedAt time.Time) string {
	t.Helper()
	token, err := f.tokens.GenerateAccessToken(acct, issuedAt)
	require.NoError(t, err)
	return token
}

func (f *fixture) records() []model.AuditRecord {
	f.audit.Flush()
	return f.audits.All()
}

// okHandler reports the account the gate attached
func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		acct := AccountFrom(r.Context())
		if acct == nil {
			w.WriteHeader(http.StatusTeapot)
			return
		}
		_, _ = w.Write([]byte(acct.ID))
	})
}

func serve(h http.Handler, r *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, r)
	return rec
}
