package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/wastetrack/wastetrack/internal/config"
	"github.com/wastetrack/wastetrack/internal/model"
)

func init() {
	// Issue times are compared against passwordChangedAt, which is stored
	// with millisecond precision.
	jwt.TimePrecision = time.Millisecond
}

var (
	// ErrTokenExpired is returned for a well-formed token past its expiry
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenInvalid is returned for any other verification failure
	ErrTokenInvalid = errors.New("token invalid")
)

// AccessClaims represents the claims in an access token.
type AccessClaims struct {
	jwt.RegisteredClaims
	AccountID string     `json:"accountId"`
	Role      model.Role `json:"role"`
	// IssuedAtMs is iat in whole milliseconds. The float iat loses the last
	// millisecond on decode often enough to matter for the stale check.
	IssuedAtMs int64 `json:"iatMs,omitempty"`
}

// RefreshClaims represents the claims in a refresh token. The JWT ID is the
// id of the stored refresh token record.
type RefreshClaims struct {
	jwt.RegisteredClaims
	AccountID string `json:"accountId"`
}

// IssuedAtMillis returns the issue time in Unix milliseconds, or 0 when
// the token carries none
func (c *AccessClaims) IssuedAtMillis() int64 {
	if c.IssuedAtMs > 0 {
		return c.IssuedAtMs
	}
	if c.IssuedAt == nil {
		return 0
	}
	return int64(math.Round(float64(c.IssuedAt.UnixNano()) / 1e6))
}

// IssuedAtTime returns the issue time or the zero time
func (c *AccessClaims) IssuedAtTime() time.Time {
	ms := c.IssuedAtMillis()
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

// IssuedBefore reports whether the token was issued strictly before t,
// compared in whole milliseconds
func (c *AccessClaims) IssuedBefore(t time.Time) bool {
	return c.IssuedAtMillis() < t.UnixMilli()
}

// TokenService signs and verifies access and refresh tokens. The two token
// kinds use distinct HMAC secrets so one can never be presented as the other.
type TokenService struct {
	cfg           config.TokenConfig
	accessSecret  []byte
	refreshSecret []byte
	now           func() time.Time
}

// NewTokenService creates a new TokenService.
func NewTokenService(cfg config.TokenConfig) (*TokenService, error) {
	if cfg.AccessSecret == "" || cfg.RefreshSecret == "" {
		return nil, fmt.Errorf("token secrets are required")
	}
	if cfg.AccessSecret == cfg.RefreshSecret {
		return nil, fmt.Errorf("access and refresh secrets must differ")
	}
	return &TokenService{
		cfg:           cfg,
		accessSecret:  []byte(cfg.AccessSecret),
		refreshSecret: []byte(cfg.RefreshSecret),
		now:           time.Now,
	}, nil
}

// WithClock replaces the verification clock. Used by tests.
func (s *TokenService) WithClock(now func() time.Time) *TokenService {
	s.now = now
	return s
}

// AccessTTL returns the configured access token lifetime.
func (s *TokenService) AccessTTL() time.Duration {
	return s.cfg.AccessTokenTTL
}

// GenerateAccessToken signs an access token for the account issued at now.
func (s *TokenService) GenerateAccessToken(acct *model.Account, now time.Time) (string, error) {
	claims := AccessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.cfg.Issuer,
			Subject:   acct.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.AccessTokenTTL)),
		},
		AccountID:  acct.ID,
		Role:       acct.Role,
		IssuedAtMs: now.UnixMilli(),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.accessSecret)
	if err != nil {
		return "", fmt.Errorf("failed to sign access token: %w", err)
	}
	return signed, nil
}

// GenerateRefreshToken signs a refresh token bound to the stored record id.
func (s *TokenService) GenerateRefreshToken(accountID, recordID string, now time.Time) (string, time.Time, error) {
	expiresAt := now.Add(s.cfg.RefreshTokenTTL)
	claims := RefreshClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.cfg.Issuer,
			Subject:   accountID,
			ID:        recordID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		AccountID: accountID,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.refreshSecret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign refresh token: %w", err)
	}
	return signed, expiresAt, nil
}

// ValidateAccessToken verifies signature and expiry of an access token.
// The returned error is ErrTokenExpired or ErrTokenInvalid.
func (s *TokenService) ValidateAccessToken(tokenString string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	if err := s.parse(tokenString, claims, s.accessSecret); err != nil {
		return nil, err
	}
	if claims.AccountID == "" || claims.IssuedAt == nil {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}

// ValidateRefreshToken verifies signature and expiry of a refresh token.
func (s *TokenService) ValidateRefreshToken(tokenString string) (*RefreshClaims, error) {
	claims := &RefreshClaims{}
	if err := s.parse(tokenString, claims, s.refreshSecret); err != nil {
		return nil, err
	}
	if claims.AccountID == "" || claims.ID == "" {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}

func (s *TokenService) parse(tokenString string, claims jwt.Claims, secret []byte) error {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.cfg.Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)

	_, err := parser.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return secret, nil
	})
	switch {
	case err == nil:
		return nil
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrTokenExpired
	default:
		return fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
}

// HashRefreshToken returns a salted SHA-256 digest of a raw refresh token in
// the form "<salt>$<hex digest>".
func HashRefreshToken(raw string) (string, error) {
	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("failed to generate salt: %w", err)
	}
	encodedSalt := base64.RawStdEncoding.EncodeToString(salt)
	return encodedSalt + "$" + digest(salt, raw), nil
}

// VerifyRefreshToken compares a raw refresh token with a stored salted hash.
func VerifyRefreshToken(raw, stored string) bool {
	encodedSalt, want, ok := strings.Cut(stored, "$")
	if !ok {
		return false
	}
	salt, err := base64.RawStdEncoding.DecodeString(encodedSalt)
	if err != nil {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(digest(salt, raw)), []byte(want)) == 1
}

func digest(salt []byte, raw string) string {
	h := sha256.New()
	h.Write(salt)
	h.Write([]byte(raw))
	return hex.EncodeToString(h.Sum(nil))
}

// GenerateRandomString returns n random bytes, URL-safe base64 encoded.
func GenerateRandomString(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
