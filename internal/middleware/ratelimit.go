package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/wastetrack/wastetrack/internal/apperr"
	"github.com/wastetrack/wastetrack/internal/config"
	"github.com/wastetrack/wastetrack/internal/respond"
)

// RateLimit limits requests per client IP under the named policy. Limiter
// errors let the request through.
func (m *Middleware) RateLimit(name string, policy config.RateLimitPolicy) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !m.cfg.Security.RateLimiting.Enabled || m.limiter == nil || policy.Limit <= 0 {
				next.ServeHTTP(w, r)
				return
			}

			key := name + ":" + ClientIP(r)
			decision, err := m.limiter.Allow(r.Context(), key, policy)
			if err != nil {
				m.log.Error().Err(err).Str("policy", name).Msg("rate limiter unavailable")
				next.ServeHTTP(w, r)
				return
			}

			resetTime := time.Now().Add(decision.ResetAfter).Unix()
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(decision.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(resetTime, 10))

			if !decision.Allowed {
				retry := int64(decision.ResetAfter.Seconds())
				if retry < 1 {
					retry = 1
				}
				w.Header().Set("Retry-After", strconv.FormatInt(retry, 10))
				respond.Error(w, apperr.ErrRateLimited)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
