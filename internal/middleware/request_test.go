package middleware

import (
	"net/http"
	"net/netip"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClientIP(t *testing.T) {
	f := newFixture(t)
	f.mw.trusted = []netip.Prefix{netip.MustParsePrefix("10.0.0.0/8")}

	tests := []struct {
		name      string
		peer      string
		forwarded string
		realIP    string
		want      string
	}{
		{"direct client", "192.0.2.9:41000", "", "", "192.0.2.9"},
		{"untrusted peer cannot pick its address", "192.0.2.9:41000", "203.0.113.5", "198.51.100.2", "192.0.2.9"},
		{"trusted proxy", "10.0.0.2:80", "203.0.113.5", "", "203.0.113.5"},
		{"spoofed leftmost hop ignored", "10.0.0.2:80", "1.2.3.4, 203.0.113.5, 10.0.0.9", "", "203.0.113.5"},
		{"real ip from trusted proxy", "10.0.0.2:80", "", "198.51.100.2", "198.51.100.2"},
		{"only proxies in chain", "10.0.0.2:80", "10.0.0.7 , 10.0.0.9", "", "10.0.0.7"},
		{"proxy without headers", "10.0.0.2:80", "", "", "10.0.0.2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var seen string
			h := f.mw.RealIP(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				seen = ClientIP(r)
			}))

			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = tt.peer
			if tt.forwarded != "" {
				r.Header.Set("X-Forwarded-For", tt.forwarded)
			}
			if tt.realIP != "" {
				r.Header.Set("X-Real-IP", tt.realIP)
			}
			serve(h, r)
			assert.Equal(t, tt.want, seen)
		})
	}
}

func TestClientIPWithoutRealIP(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "192.0.2.9:41000"
	r.Header.Set("X-Forwarded-For", "203.0.113.5")
	assert.Equal(t, "192.0.2.9", ClientIP(r))
}

func TestRequestID(t *testing.T) {
	f := newFixture(t)
	var seen string
	h := f.mw.RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
	}))

	rec := serve(h, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.NotEmpty(t, seen)
	assert.Equal(t, seen, rec.Header().Get("X-Request-ID"))

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("X-Request-ID", "from-proxy")
	serve(h, r)
	assert.Equal(t, "from-proxy", seen)
}

func TestRecover(t *testing.T) {
	f := newFixture(t)
	h := f.mw.Recover(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := serve(h, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "INTERNAL_ERROR", errorCode(t, rec))
}

func TestCORS(t *testing.T) {
	f := newFixture(t)
	h := f.mw.CORS([]string{"https://app.example.com/"})(okHandler())

	r := httptest.NewRequest(http.MethodOptions, "/api/auth/login", nil)
	r.Header.Set("Origin", "https://app.example.com")
	rec := serve(h, r)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://app.example.com", rec.Header().Get("Access-Control-Allow-Origin"))

	r = httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Origin", "https://evil.example.com")
	rec = serve(h, r)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestSecurityHeaders(t *testing.T) {
	f := newFixture(t)
	rec := serve(f.mw.SecurityHeaders(okHandler()), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
}
