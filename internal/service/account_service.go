package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/wastetrack/wastetrack/internal/apperr"
	"github.com/wastetrack/wastetrack/internal/auth"
	"github.com/wastetrack/wastetrack/internal/config"
	"github.com/wastetrack/wastetrack/internal/logger"
	"github.com/wastetrack/wastetrack/internal/model"
	"github.com/wastetrack/wastetrack/internal/repository"
)

// RegisterInput is a self-service registration request
type RegisterInput struct {
	Username string
	Email    string
	Password string
}

// CredentialsInput is a credential change request. Nil fields are left as
// they are; CurrentPassword is always required.
type CredentialsInput struct {
	CurrentPassword string
	NewEmail        *string
	NewPassword     *string
}

// CredentialsResult reports what changed and carries a fresh token pair,
// since every earlier session was revoked.
type CredentialsResult struct {
	Account         *model.Account
	Tokens          *model.TokenPair
	EmailChanged    bool
	PasswordChanged bool
}

// AccountService handles the account lifecycle: registration, credential
// changes, blocking and lookups.
type AccountService struct {
	accounts  AccountStore
	hasher    *auth.PasswordHasher
	issuer    *TokenIssuer
	notifier  Notifier
	minLength int
	log       *logger.Logger
	now       func() time.Time
}

// NewAccountService creates a new AccountService
func NewAccountService(accounts AccountStore, hasher *auth.PasswordHasher, issuer *TokenIssuer, notifier Notifier, cfg config.PasswordConfig, log *logger.Logger) *AccountService {
	return &AccountService{
		accounts:  accounts,
		hasher:    hasher,
		issuer:    issuer,
		notifier:  notifier,
		minLength: cfg.MinLength,
		log:       log.WithComponent("account_service"),
		now:       time.Now,
	}
}

// Register creates a citizen account with local authentication and issues
// its first token pair.
func (s *AccountService) Register(ctx context.Context, in RegisterInput, meta RequestMeta) (*model.Account, *model.TokenPair, error) {
	email := auth.NormalizeEmail(in.Email)

	if err := auth.ValidateUsername(in.Username); err != nil {
		return nil, nil, apperr.Validation("username", err.Error())
	}
	if err := auth.ValidateEmail(email); err != nil {
		return nil, nil, apperr.Validation("email", err.Error())
	}
	if err := auth.ValidatePassword(in.Password, s.minLength); err != nil {
		return nil, nil, apperr.Validation("password", err.Error())
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, nil, apperr.Internal(err)
	}

	now := s.now().UTC()
	acct := &model.Account{
		ID:           uuid.New().String(),
		Username:     in.Username,
		Email:        email,
		PasswordHash: hash,
		Role:         model.RoleCitizen,
		AuthMethods:  model.AuthMethods{Local: true},
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := acct.Validate(); err != nil {
		return nil, nil, apperr.Internal(err)
	}

	if err := s.accounts.Create(ctx, acct); err != nil {
		return nil, nil, conflictOrInternal(err)
	}

	tokens, err := s.issuer.Issue(ctx, acct, meta)
	if err != nil {
		return nil, nil, err
	}

	if s.notifier != nil {
		s.notifier.Welcome(acct.Email, acct.Username)
	}

	s.log.Info().Str("account_id", acct.ID).Msg("account registered")
	acct.PasswordHash = ""
	return acct, tokens, nil
}

// UpdateCredentials changes the email and/or password after re-verifying
// the current password. On success passwordChangedAt moves forward, which
// invalidates every access token issued before, and all refresh tokens are
// revoked. A wrong current password changes nothing.
func (s *AccountService) UpdateCredentials(ctx context.Context, accountID string, in CredentialsInput, meta RequestMeta) (*CredentialsResult, error) {
	acct, err := s.accounts.GetByIDWithSecret(ctx, accountID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.ErrAccountNotFound
		}
		return nil, apperr.Internal(err)
	}

	if !acct.CanAuthenticateLocally() {
		return nil, apperr.ErrLocalAuthDisabled
	}
	if in.CurrentPassword == "" {
		return nil, apperr.Validation("currentPassword", "currentPassword is required")
	}

	ok, err := s.hasher.Verify(in.CurrentPassword, acct.PasswordHash)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	if !ok {
		return nil, apperr.ErrInvalidCredentials.WithMessage("Current password is incorrect")
	}

	var (
		newEmail *string
		newHash  *string
	)
	if in.NewEmail != nil {
		email := auth.NormalizeEmail(*in.NewEmail)
		if err := auth.ValidateEmail(email); err != nil {
			return nil, apperr.Validation("email", err.Error())
		}
		if email != acct.Email {
			newEmail = &email
		}
	}
	if in.NewPassword != nil {
		if err := auth.ValidatePassword(*in.NewPassword, s.minLength); err != nil {
			return nil, apperr.Validation("newPassword", err.Error())
		}
		hash, err := s.hasher.Hash(*in.NewPassword)
		if err != nil {
			return nil, apperr.Internal(err)
		}
		newHash = &hash
	}
	if newEmail == nil && newHash == nil {
		return nil, apperr.ErrNothingToUpdate
	}

	// Stored with millisecond precision to match the iat claim.
	changedAt := s.now().UTC().Truncate(time.Millisecond)
	if err := s.accounts.UpdateCredentials(ctx, acct.ID, newEmail, newHash, changedAt); err != nil {
		return nil, conflictOrInternal(err)
	}

	if _, err := s.issuer.RevokeAll(ctx, acct.ID); err != nil {
		return nil, err
	}

	previousEmail := acct.Email
	if newEmail != nil {
		acct.Email = *newEmail
	}
	acct.PasswordChangedAt = &changedAt
	acct.PasswordHash = ""

	tokens, err := s.issuer.Issue(ctx, acct, meta)
	if err != nil {
		return nil, err
	}

	if s.notifier != nil {
		s.notifier.CredentialsChanged(acct.Email, acct.Username, newEmail != nil, changedAt)
		// the previous owner of the address must hear about a takeover
		if newEmail != nil {
			s.notifier.CredentialsChanged(previousEmail, acct.Username, true, changedAt)
		}
	}

	return &CredentialsResult{
		Account:         acct,
		Tokens:          tokens,
		EmailChanged:    newEmail != nil,
		PasswordChanged: newHash != nil,
	}, nil
}

// Block deactivates an account and revokes its refresh tokens. Access
// tokens die at the gate because the account is inactive.
func (s *AccountService) Block(ctx context.Context, initiatorID, targetID string) (*model.Account, error) {
	if initiatorID == targetID {
		return nil, apperr.Validation("id", "administrators cannot block themselves")
	}

	blockedAt := s.now().UTC().Truncate(time.Second)
	if err := s.accounts.SetActive(ctx, targetID, false, &blockedAt); err != nil {
		return nil, notFoundOrInternal(err)
	}
	if _, err := s.issuer.RevokeAll(ctx, targetID); err != nil {
		return nil, err
	}

	s.log.Info().Str("account_id", targetID).Str("initiator_id", initiatorID).Msg("account blocked")
	return s.Get(ctx, targetID)
}

// Unblock reactivates an account
func (s *AccountService) Unblock(ctx context.Context, initiatorID, targetID string) (*model.Account, error) {
	if err := s.accounts.SetActive(ctx, targetID, true, nil); err != nil {
		return nil, notFoundOrInternal(err)
	}

	s.log.Info().Str("account_id", targetID).Str("initiator_id", initiatorID).Msg("account unblocked")
	return s.Get(ctx, targetID)
}

// Get returns an account without secret fields
func (s *AccountService) Get(ctx context.Context, id string) (*model.Account, error) {
	acct, err := s.accounts.GetByID(ctx, id)
	if err != nil {
		return nil, notFoundOrInternal(err)
	}
	return acct, nil
}

// List returns a page of accounts
func (s *AccountService) List(ctx context.Context, limit, offset int) ([]*model.Account, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	accounts, err := s.accounts.List(ctx, limit, offset)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return accounts, nil
}

func conflictOrInternal(err error) error {
	var dup *repository.DuplicateError
	if errors.As(err, &dup) {
		switch dup.Field {
		case "username":
			return apperr.ErrUsernameTaken
		case "email":
			return apperr.ErrEmailTaken
		case "googleProviderId":
			return apperr.ErrIdentityConflict
		}
		return apperr.Conflict("DUPLICATE", dup.Field, "Value is already in use")
	}
	return apperr.Internal(err)
}

func notFoundOrInternal(err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return apperr.ErrNotFound.WithMessage("Account not found")
	}
	return apperr.Internal(err)
}
