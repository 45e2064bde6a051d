package wastetrack

import "time"

// Account is a WasteTrack account as returned by the API.
type Account struct {
	ID          string      `json:"id"`
	Username    string      `json:"username"`
	Email       string      `json:"email"`
	Role        string      `json:"role"`
	AuthMethods AuthMethods `json:"authMethods"`
	IsActive    bool        `json:"isActive"`
	BlockedAt   *time.Time  `json:"blockedAt,omitempty"`
	LastLogin   *time.Time  `json:"lastLogin,omitempty"`
	CreatedAt   time.Time   `json:"createdAt"`
}

// AuthMethods lists how an account signs in.
type AuthMethods struct {
	Local  bool            `json:"local"`
	Google *GoogleIdentity `json:"google,omitempty"`
}

// GoogleIdentity is a linked Google profile.
type GoogleIdentity struct {
	ProviderID    string `json:"providerId"`
	ProviderEmail string `json:"providerEmail"`
	Enabled       bool   `json:"enabled"`
}

// RegisterRequest contains the data for creating a new account.
type RegisterRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// CredentialsRequest changes the email and/or password of an account.
type CredentialsRequest struct {
	CurrentPassword string  `json:"currentPassword"`
	Email           *string `json:"email,omitempty"`
	NewPassword     *string `json:"newPassword,omitempty"`
}

// TokenResponse is returned by login, registration, refresh and credential
// updates. Account is absent on refresh.
type TokenResponse struct {
	AccessToken  string   `json:"accessToken"`
	RefreshToken string   `json:"refreshToken"`
	ExpiresIn    int      `json:"expiresIn"`
	Account      *Account `json:"account,omitempty"`
}
