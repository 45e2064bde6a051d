package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/wastetrack/wastetrack/internal/apperr"
	"github.com/wastetrack/wastetrack/internal/config"
	"github.com/wastetrack/wastetrack/internal/logger"
	"github.com/wastetrack/wastetrack/internal/service"
)

// HealthChecker is a dependency that can report its health
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Handler holds all HTTP handlers
type Handler struct {
	log      *logger.Logger
	cfg      *config.Config
	accounts *service.AccountService
	issuer   *service.TokenIssuer
	audit    *service.AuditRecorder
	oauth    *service.OAuthBridge
	checks   map[string]HealthChecker
}

// Services are the application services the handlers call. OAuth is nil
// when Google sign in is disabled.
type Services struct {
	Accounts *service.AccountService
	Issuer   *service.TokenIssuer
	Audit    *service.AuditRecorder
	OAuth    *service.OAuthBridge
}

// New creates a new Handler instance. checks are reported by the health
// endpoints under their map keys.
func New(log *logger.Logger, cfg *config.Config, svc Services, checks map[string]HealthChecker) *Handler {
	return &Handler{
		log:      log.WithComponent("handler"),
		cfg:      cfg,
		accounts: svc.Accounts,
		issuer:   svc.Issuer,
		audit:    svc.Audit,
		oauth:    svc.OAuth,
		checks:   checks,
	}
}

// readJSON decodes the request body into v. An empty body is an error
// unless optional is set.
func readJSON(r *http.Request, v any, optional bool) error {
	if r.Body == nil {
		if optional {
			return nil
		}
		return apperr.Validation("body", "Request body is required")
	}
	defer r.Body.Close()

	decoder := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			if optional {
				return nil
			}
			return apperr.Validation("body", "Request body is required")
		}
		return apperr.Validation("body", "Invalid request body")
	}
	return nil
}
