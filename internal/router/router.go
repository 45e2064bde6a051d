package router

import (
	"net/http"

	"github.com/wastetrack/wastetrack/internal/config"
	"github.com/wastetrack/wastetrack/internal/handler"
	"github.com/wastetrack/wastetrack/internal/metrics"
	"github.com/wastetrack/wastetrack/internal/middleware"
	"github.com/wastetrack/wastetrack/internal/model"
)

// New creates and configures the HTTP router
func New(cfg *config.Config, h *handler.Handler, mw *middleware.Middleware, m *metrics.Metrics) http.Handler {
	mux := http.NewServeMux()
	route := func(pattern string, next http.Handler) {
		mux.Handle(pattern, m.Instrument(pattern, next))
	}

	// Health check endpoints (no auth required)
	mux.HandleFunc("GET /health", h.Health)
	mux.HandleFunc("GET /ready", h.Ready)
	if cfg.Metrics.Enabled {
		mux.Handle("GET "+cfg.Metrics.Path, m.Handler())
	}

	limits := cfg.Security.RateLimiting
	loginRateLimit := mw.RateLimit("login", limits.Login)
	registerRateLimit := mw.RateLimit("register", limits.Signup)
	refreshRateLimit := mw.RateLimit("refresh", limits.Refresh)
	credentialsRateLimit := mw.RateLimit("credentials", limits.Profile)

	// Public authentication routes (rate limited)
	route("POST /api/auth/register", registerRateLimit(mw.Audited(model.AuditActionUserRegistration, h.Register)))
	route("POST /api/auth/login", loginRateLimit(mw.Basic(mw.Handle(h.Login))))
	route("POST /api/auth/refresh-token", refreshRateLimit(mw.Handle(h.RefreshToken)))

	// Google sign in
	route("GET /api/auth/googleOAuth", mw.Handle(h.GoogleOAuth))
	route("GET /api/auth/googleOAuth/callback", http.HandlerFunc(h.GoogleCallback))

	// Auth routes requiring authentication
	route("POST /api/auth/logout", mw.Bearer(mw.Audited(model.AuditActionLogout, h.Logout)))
	route("POST /api/auth/logout-all", mw.Bearer(mw.Audited(model.AuditActionLogout, h.LogoutAll)))
	route("GET /api/auth/me", mw.Bearer(mw.Handle(h.Me)))
	route("PATCH /api/auth/profile/credentials",
		credentialsRateLimit(mw.Bearer(mw.Audited(model.AuditActionCredentialsUpdate, h.UpdateCredentials))))

	// Admin routes
	manage := func(next http.Handler) http.Handler {
		return mw.Bearer(mw.RequireCapability(model.CapabilityManageAccounts)(next))
	}
	route("GET /api/admin/accounts", manage(mw.Handle(h.AdminListAccounts)))
	route("POST /api/admin/accounts/{id}/block", manage(mw.Audited(model.AuditActionAccountBlock, h.AdminBlockAccount)))
	route("POST /api/admin/accounts/{id}/unblock", manage(mw.Audited(model.AuditActionAccountUnblock, h.AdminUnblockAccount)))
	route("GET /api/admin/audit",
		mw.Bearer(mw.RequireCapability(model.CapabilityReadAudit)(mw.Handle(h.AdminAuditTrail))))

	// Page route guard
	route("GET /console/operator",
		mw.RedirectUnlessCapable(model.CapabilityOperatorConsole)(http.HandlerFunc(h.OperatorConsole)))

	// Apply middleware stack
	var handler http.Handler = mux

	if cfg.URLs.PublicWeb != "" {
		handler = mw.CORS([]string{cfg.URLs.PublicWeb})(handler)
	}

	// Security headers
	handler = mw.SecurityHeaders(handler)

	// Request logging
	handler = mw.Logger(handler)

	// Request ID
	handler = mw.RequestID(handler)

	// Client address for rate limits, logs and audit records
	handler = mw.RealIP(handler)

	// Panic recovery (outermost)
	handler = mw.Recover(handler)

	return handler
}
