package repository

import (
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"
)

// Common repository errors
var (
	ErrNotFound       = errors.New("record not found")
	ErrDuplicate      = errors.New("record already exists")
	ErrAlreadyRevoked = errors.New("refresh token already revoked or expired")
)

// DuplicateError reports which unique field a write collided on
type DuplicateError struct {
	Field string
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("duplicate %s", e.Field)
}

// Unwrap lets callers match ErrDuplicate
func (e *DuplicateError) Unwrap() error {
	return ErrDuplicate
}

// uniqueViolation is the PostgreSQL SQLSTATE for duplicate keys
const uniqueViolation = "23505"

// translateDuplicate turns a unique violation into a *DuplicateError naming
// the offending field. Other errors are returned unchanged.
func translateDuplicate(err error, fields map[string]string) error {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) || string(pqErr.Code) != uniqueViolation {
		return err
	}
	if field, ok := fields[pqErr.Constraint]; ok {
		return &DuplicateError{Field: field}
	}
	for constraint, field := range fields {
		if strings.Contains(pqErr.Message, constraint) {
			return &DuplicateError{Field: field}
		}
	}
	return &DuplicateError{Field: "unknown"}
}
