package model

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidAccount is returned when an account violates its invariants
var ErrInvalidAccount = errors.New("invalid account")

// GoogleIdentity links an account to a Google profile
type GoogleIdentity struct {
	ProviderID    string `json:"providerId"`
	ProviderEmail string `json:"providerEmail"`
	Enabled       bool   `json:"enabled"`
}

// AuthMethods lists how an account may authenticate
type AuthMethods struct {
	Local  bool            `json:"local"`
	Google *GoogleIdentity `json:"google,omitempty"`
}

// Account represents the identity record
type Account struct {
	ID                string      `json:"id"`
	Username          string      `json:"username"`
	Email             string      `json:"email"`
	PasswordHash      string      `json:"-"` // never expose password hash
	Role              Role        `json:"role"`
	AuthMethods       AuthMethods `json:"authMethods"`
	IsActive          bool        `json:"isActive"`
	BlockedAt         *time.Time  `json:"blockedAt,omitempty"`
	PasswordChangedAt *time.Time  `json:"passwordChangedAt,omitempty"`
	LastLogin         *time.Time  `json:"lastLogin,omitempty"`
	CreatedAt         time.Time   `json:"createdAt"`
	UpdatedAt         time.Time   `json:"updatedAt"`
}

// Validate checks the structural invariants of an account
func (a *Account) Validate() error {
	if !a.Role.Valid() {
		return fmt.Errorf("%w: unknown role %q", ErrInvalidAccount, a.Role)
	}
	if a.AuthMethods.Local && a.PasswordHash == "" {
		return fmt.Errorf("%w: local authentication requires a password hash", ErrInvalidAccount)
	}
	if !a.AuthMethods.Local && !a.HasGoogle() {
		return fmt.Errorf("%w: account has no authentication method", ErrInvalidAccount)
	}
	return nil
}

// HasGoogle reports whether a Google identity is linked and enabled
func (a *Account) HasGoogle() bool {
	return a.AuthMethods.Google != nil && a.AuthMethods.Google.Enabled && a.AuthMethods.Google.ProviderID != ""
}

// CanAuthenticateLocally reports whether password login is allowed
func (a *Account) CanAuthenticateLocally() bool {
	return a.AuthMethods.Local && a.PasswordHash != ""
}

// Block marks the account inactive as of t
func (a *Account) Block(t time.Time) {
	a.IsActive = false
	a.BlockedAt = &t
}

// Unblock reactivates the account
func (a *Account) Unblock() {
	a.IsActive = true
	a.BlockedAt = nil
}

// Clone returns a deep copy, used by in-memory stores to avoid aliasing
func (a *Account) Clone() *Account {
	c := *a
	if a.AuthMethods.Google != nil {
		g := *a.AuthMethods.Google
		c.AuthMethods.Google = &g
	}
	c.BlockedAt = cloneTime(a.BlockedAt)
	c.PasswordChangedAt = cloneTime(a.PasswordChangedAt)
	c.LastLogin = cloneTime(a.LastLogin)
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
