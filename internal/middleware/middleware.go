package middleware

import (
	"net/netip"

	"github.com/wastetrack/wastetrack/internal/auth"
	"github.com/wastetrack/wastetrack/internal/config"
	"github.com/wastetrack/wastetrack/internal/logger"
	"github.com/wastetrack/wastetrack/internal/ratelimit"
	"github.com/wastetrack/wastetrack/internal/service"
)

// Middleware holds all HTTP middleware
type Middleware struct {
	cfg      *config.Config
	log      *logger.Logger
	limiter  ratelimit.Limiter
	tokens   *auth.TokenService
	accounts service.AccountStore
	verifier *service.CredentialVerifier
	audit    *service.AuditRecorder
	trusted  []netip.Prefix
}

// Deps are the collaborators the gates and the audit wrapper need
type Deps struct {
	Limiter  ratelimit.Limiter
	Tokens   *auth.TokenService
	Accounts service.AccountStore
	Verifier *service.CredentialVerifier
	Audit    *service.AuditRecorder
}

// New creates a new Middleware instance
func New(cfg *config.Config, log *logger.Logger, deps Deps) *Middleware {
	log = log.WithComponent("middleware")

	// Validate has already rejected bad entries when cfg came from Load
	trusted, err := cfg.Server.TrustedProxyPrefixes()
	if err != nil {
		log.Warn().Err(err).Msg("ignoring trusted proxies")
		trusted = nil
	}

	return &Middleware{
		cfg:      cfg,
		log:      log,
		trusted:  trusted,
		limiter:  deps.Limiter,
		tokens:   deps.Tokens,
		accounts: deps.Accounts,
		verifier: deps.Verifier,
		audit:    deps.Audit,
	}
}
