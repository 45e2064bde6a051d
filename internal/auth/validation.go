package auth

import (
	"fmt"
	"net/mail"
	"regexp"
	"strings"
	"unicode"

	"github.com/wastetrack/wastetrack/internal/model"
)

var (
	usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9._-]{3,30}$`)
	emailPattern    = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
)

// NormalizeEmail lowercases and trims an email address
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidateUsername checks length and the allowed charset
func ValidateUsername(username string) error {
	if !usernamePattern.MatchString(username) {
		return fmt.Errorf("username must be 3-30 characters of letters, digits, '.', '_' or '-'")
	}
	return nil
}

// ValidateEmail checks that the address is syntactically valid
func ValidateEmail(email string) error {
	if len(email) > 254 || !emailPattern.MatchString(email) {
		return fmt.Errorf("invalid email address")
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return fmt.Errorf("invalid email address")
	}
	return nil
}

// ValidatePassword requires minLength characters with at least one lower
// case letter, one upper case letter, one digit and one symbol.
func ValidatePassword(password string, minLength int) error {
	if minLength == 0 {
		minLength = 8
	}

	if len(password) < minLength {
		return fmt.Errorf("password must be at least %d characters long", minLength)
	}

	// Argon2 input is unbounded; cap it anyway
	if len(password) > 128 {
		return fmt.Errorf("password must be at most 128 characters long")
	}

	var hasLower, hasUpper, hasDigit, hasSpecial bool
	for _, r := range password {
		switch {
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsDigit(r):
			hasDigit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			hasSpecial = true
		}
	}
	if !hasLower || !hasUpper || !hasDigit || !hasSpecial {
		return fmt.Errorf("password must contain lower and upper case letters, a digit and a symbol")
	}

	return nil
}

// ClassifyIdentifier decides whether a login identifier is an email or a
// username. It only selects the audit method tag; lookups match both fields.
func ClassifyIdentifier(identifier string) model.AuthMethod {
	if emailPattern.MatchString(strings.TrimSpace(identifier)) {
		return model.AuthMethodEmail
	}
	return model.AuthMethodUsername
}
