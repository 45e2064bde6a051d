package apperr

// Authentication
var (
	ErrInvalidCredentials = New(KindAuthentication, "INVALID_CREDENTIALS", "Invalid identifier or password")
	ErrTokenMissing       = New(KindAuthentication, "TOKEN_MISSING", "Authentication token is missing")
	ErrTokenExpired       = New(KindAuthentication, "TOKEN_EXPIRED", "Token has expired")
	ErrTokenInvalid       = New(KindAuthentication, "TOKEN_INVALID", "Token is invalid")
	ErrStaleToken         = New(KindAuthentication, "STALE_TOKEN", "Credentials changed since this token was issued, please log in again")
	ErrAccountNotFound    = New(KindAuthentication, "ACCOUNT_NOT_FOUND", "The account for this token no longer exists")
)

// Authorization
var (
	ErrAccountBlocked = New(KindAuthorization, "ACCOUNT_BLOCKED", "This account has been blocked")
	ErrForbidden      = New(KindAuthorization, "FORBIDDEN", "You do not have permission to perform this action")
)

// Validation, conflicts and lookups
var (
	ErrRefreshTokenRequired = New(KindValidation, "REFRESH_TOKEN_REQUIRED", "refreshToken is required")
	ErrLocalAuthDisabled    = New(KindValidation, "LOCAL_AUTH_DISABLED", "This account signs in with a third-party provider and has no local password")
	ErrNothingToUpdate      = New(KindValidation, "NOTHING_TO_UPDATE", "Provide a new email or a new password")
	ErrUsernameTaken        = Conflict("USERNAME_TAKEN", "username", "Username is already taken")
	ErrEmailTaken           = Conflict("EMAIL_TAKEN", "email", "Email is already registered")
	ErrIdentityConflict     = Conflict("IDENTITY_CONFLICT", "email", "This email is linked to a different provider identity")
	ErrNotFound             = New(KindNotFound, "NOT_FOUND", "Resource not found")
)

// Infrastructure
var (
	ErrRateLimited         = New(KindRateLimited, "RATE_LIMITED", "Too many requests, please try again later")
	ErrProviderUnavailable = New(KindAuthentication, "OAUTH_FAILED", "Third-party sign in failed")
	ErrInternal            = New(KindInternal, "INTERNAL_ERROR", "An unexpected error occurred")
)
