package model

import (
	"time"
)

// RefreshToken represents a stored refresh token. Only the salted hash of the
// raw token is kept.
type RefreshToken struct {
	ID               string     `json:"id"`
	AccountID        string     `json:"accountId"`
	TokenHash        string     `json:"-"`
	ExpiresAt        time.Time  `json:"expiresAt"`
	IssuingIP        string     `json:"issuingIp"`
	IssuingUserAgent string     `json:"issuingUserAgent"`
	Revoked          bool       `json:"revoked"`
	RevokedAt        *time.Time `json:"revokedAt,omitempty"`
	CreatedAt        time.Time  `json:"createdAt"`
}

// IsExpired checks if the refresh token has expired at t
func (t *RefreshToken) IsExpired(at time.Time) bool {
	return !at.Before(t.ExpiresAt)
}

// Usable reports whether the token may still be redeemed at t
func (t *RefreshToken) Usable(at time.Time) bool {
	return !t.Revoked && !t.IsExpired(at)
}

// TokenPair is what a successful login, registration or refresh returns
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    int64  `json:"expiresIn"`
}
