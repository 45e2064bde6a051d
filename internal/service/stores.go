package service

import (
	"context"
	"time"

	"github.com/wastetrack/wastetrack/internal/model"
)

// AccountStore persists accounts. Implemented by repository.AccountRepository
// and memory.AccountStore.
type AccountStore interface {
	Create(ctx context.Context, acct *model.Account) error
	GetByID(ctx context.Context, id string) (*model.Account, error)
	GetByIDWithSecret(ctx context.Context, id string) (*model.Account, error)
	GetByIdentifierWithSecret(ctx context.Context, identifier string) (*model.Account, error)
	GetByEmail(ctx context.Context, email string) (*model.Account, error)
	List(ctx context.Context, limit, offset int) ([]*model.Account, error)
	UpdateCredentials(ctx context.Context, id string, email, passwordHash *string, changedAt time.Time) error
	LinkGoogle(ctx context.Context, id string, identity model.GoogleIdentity) error
	SetActive(ctx context.Context, id string, active bool, blockedAt *time.Time) error
	TouchLastLogin(ctx context.Context, id string, at time.Time) error
}

// TokenStore persists refresh token records. Rotate must revoke the old
// record and insert the replacement atomically, failing with
// repository.ErrAlreadyRevoked when the old record is no longer live.
type TokenStore interface {
	Create(ctx context.Context, token *model.RefreshToken) error
	GetByID(ctx context.Context, id string) (*model.RefreshToken, error)
	Rotate(ctx context.Context, oldID string, replacement *model.RefreshToken, now time.Time) error
	Revoke(ctx context.Context, accountID, id string, now time.Time) (bool, error)
	RevokeAll(ctx context.Context, accountID string, now time.Time) (int64, error)
}

// AuditStore appends and reads audit records. There is no update or delete.
type AuditStore interface {
	Insert(ctx context.Context, rec *model.AuditRecord) error
	List(ctx context.Context, filter model.AuditFilter) ([]*model.AuditRecord, error)
}

// StateStore keeps single-use OAuth state values
type StateStore interface {
	Save(ctx context.Context, state string, ttl time.Duration) error
	Consume(ctx context.Context, state string) (bool, error)
}

// Notifier sends best-effort account notifications
type Notifier interface {
	CredentialsChanged(to, username string, emailChanged bool, at time.Time)
	Welcome(to, username string)
}

// RequestMeta describes the client a request came from
type RequestMeta struct {
	IP        string
	UserAgent string
}
