package wastetrack

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
)

type contextKey string

const (
	accountContextKey contextKey = "wastetrack_account"
	tokenContextKey   contextKey = "wastetrack_token"
)

// MiddlewareConfig configures the authentication middleware.
type MiddlewareConfig struct {
	// LoginURL is the web login page. When set, unauthenticated requests
	// are redirected there instead of receiving 401. The current request
	// URL is appended as ?return_url=.
	LoginURL string

	// SkipPaths is a list of path prefixes that do not require authentication.
	// Example: []string{"/health", "/public/"}
	SkipPaths []string

	// Roles, when set, restricts access to accounts with one of these roles.
	Roles []string
}

// Middleware returns net/http middleware that authenticates requests with a
// bearer access token validated by the WasteTrack API.
//
// Retrieve the account in handlers with AccountFrom.
func (c *Client) Middleware(cfg MiddlewareConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for _, p := range cfg.SkipPaths {
				if strings.HasPrefix(r.URL.Path, p) {
					next.ServeHTTP(w, r)
					return
				}
			}

			token := tokenFromRequest(r)
			if token == "" {
				handleAuthError(w, r, cfg, ErrNoToken)
				return
			}

			acct, err := c.ValidateToken(r.Context(), token)
			if err != nil {
				handleAuthError(w, r, cfg, err)
				return
			}

			if len(cfg.Roles) > 0 && !hasRole(acct.Role, cfg.Roles) {
				writeError(w, http.StatusForbidden, "FORBIDDEN", "You do not have permission to perform this action")
				return
			}

			ctx := context.WithValue(r.Context(), accountContextKey, acct)
			ctx = context.WithValue(ctx, tokenContextKey, token)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// AccountFrom returns the authenticated account, or nil when the
// middleware did not run or skipped the request.
func AccountFrom(ctx context.Context) *Account {
	acct, _ := ctx.Value(accountContextKey).(*Account)
	return acct
}

// TokenFrom returns the raw access token of the request.
func TokenFrom(ctx context.Context) string {
	token, _ := ctx.Value(tokenContextKey).(string)
	return token
}

func tokenFromRequest(r *http.Request) string {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

func hasRole(role string, roles []string) bool {
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}

func handleAuthError(w http.ResponseWriter, r *http.Request, cfg MiddlewareConfig, err error) {
	if cfg.LoginURL != "" {
		target := cfg.LoginURL + "?return_url=" + url.QueryEscape(currentURL(r))
		http.Redirect(w, r, target, http.StatusFound)
		return
	}

	// Pass the server's verdict through so clients can tell expired from
	// blocked.
	if apiErr, ok := IsAPIError(err); ok && apiErr.StatusCode < 500 {
		writeError(w, apiErr.StatusCode, apiErr.Code, apiErr.Message)
		return
	}
	if err == ErrNoToken {
		writeError(w, http.StatusUnauthorized, "TOKEN_MISSING", "Authentication required")
		return
	}
	writeError(w, http.StatusBadGateway, "AUTH_UNAVAILABLE", "Authentication service unavailable")
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
	})
}

func currentURL(r *http.Request) string {
	scheme := "https"
	if r.TLS == nil {
		scheme = "http"
	}
	return scheme + "://" + r.Host + r.RequestURI
}
