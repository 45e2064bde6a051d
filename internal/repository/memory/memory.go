// Package memory holds in-process implementations of the account, refresh
// token, audit and OAuth state stores. They are safe for concurrent use and
// back the "memory" database driver and the service tests.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/wastetrack/wastetrack/internal/model"
	"github.com/wastetrack/wastetrack/internal/repository"
)

// AccountStore keeps accounts in maps indexed by id, username and email.
type AccountStore struct {
	mu         sync.RWMutex
	byID       map[string]*model.Account
	byUsername map[string]string
	byEmail    map[string]string
	byGoogle   map[string]string
}

// NewAccountStore creates an empty AccountStore
func NewAccountStore() *AccountStore {
	return &AccountStore{
		byID:       make(map[string]*model.Account),
		byUsername: make(map[string]string),
		byEmail:    make(map[string]string),
		byGoogle:   make(map[string]string),
	}
}

// Create inserts an account, enforcing the same unique keys as the table
func (s *AccountStore) Create(_ context.Context, acct *model.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byUsername[acct.Username]; ok {
		return &repository.DuplicateError{Field: "username"}
	}
	if _, ok := s.byEmail[acct.Email]; ok {
		return &repository.DuplicateError{Field: "email"}
	}
	if g := acct.AuthMethods.Google; g != nil && g.ProviderID != "" {
		if _, ok := s.byGoogle[g.ProviderID]; ok {
			return &repository.DuplicateError{Field: "googleProviderId"}
		}
		s.byGoogle[g.ProviderID] = acct.ID
	}

	s.byID[acct.ID] = acct.Clone()
	s.byUsername[acct.Username] = acct.ID
	s.byEmail[acct.Email] = acct.ID
	return nil
}

// GetByID returns the account without its password hash
func (s *AccountStore) GetByID(_ context.Context, id string) (*model.Account, error) {
	return s.get(id, false)
}

// GetByIDWithSecret returns the account including its password hash
func (s *AccountStore) GetByIDWithSecret(_ context.Context, id string) (*model.Account, error) {
	return s.get(id, true)
}

// GetByIdentifierWithSecret matches identifier against username or email
func (s *AccountStore) GetByIdentifierWithSecret(_ context.Context, identifier string) (*model.Account, error) {
	s.mu.RLock()
	id, ok := s.byUsername[identifier]
	if !ok {
		id, ok = s.byEmail[strings.ToLower(identifier)]
	}
	s.mu.RUnlock()
	if !ok {
		return nil, repository.ErrNotFound
	}
	return s.get(id, true)
}

// GetByEmail returns the account with the given normalized email
func (s *AccountStore) GetByEmail(_ context.Context, email string) (*model.Account, error) {
	s.mu.RLock()
	id, ok := s.byEmail[email]
	s.mu.RUnlock()
	if !ok {
		return nil, repository.ErrNotFound
	}
	return s.get(id, false)
}

// List returns accounts, newest first
func (s *AccountStore) List(_ context.Context, limit, offset int) ([]*model.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := make([]*model.Account, 0, len(s.byID))
	for _, a := range s.byID {
		c := a.Clone()
		c.PasswordHash = ""
		all = append(all, c)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })

	if offset >= len(all) {
		return nil, nil
	}
	all = all[offset:]
	if limit > 0 && limit < len(all) {
		all = all[:limit]
	}
	return all, nil
}

// UpdateCredentials changes email and/or password hash
func (s *AccountStore) UpdateCredentials(_ context.Context, id string, email, passwordHash *string, changedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	acct, ok := s.byID[id]
	if !ok {
		return repository.ErrNotFound
	}
	if email != nil && *email != acct.Email {
		if _, taken := s.byEmail[*email]; taken {
			return &repository.DuplicateError{Field: "email"}
		}
		delete(s.byEmail, acct.Email)
		s.byEmail[*email] = id
		acct.Email = *email
	}
	if passwordHash != nil {
		acct.PasswordHash = *passwordHash
	}
	acct.PasswordChangedAt = &changedAt
	acct.UpdatedAt = changedAt
	return nil
}

// LinkGoogle binds a Google identity to the account
func (s *AccountStore) LinkGoogle(_ context.Context, id string, identity model.GoogleIdentity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	acct, ok := s.byID[id]
	if !ok {
		return repository.ErrNotFound
	}
	if owner, taken := s.byGoogle[identity.ProviderID]; taken && owner != id {
		return &repository.DuplicateError{Field: "googleProviderId"}
	}
	if g := acct.AuthMethods.Google; g != nil && g.ProviderID != identity.ProviderID {
		delete(s.byGoogle, g.ProviderID)
	}
	s.byGoogle[identity.ProviderID] = id
	acct.AuthMethods.Google = &identity
	acct.UpdatedAt = time.Now()
	return nil
}

// SetActive blocks or unblocks the account
func (s *AccountStore) SetActive(_ context.Context, id string, active bool, blockedAt *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	acct, ok := s.byID[id]
	if !ok {
		return repository.ErrNotFound
	}
	if active {
		acct.Unblock()
	} else {
		at := time.Now()
		if blockedAt != nil {
			at = *blockedAt
		}
		acct.Block(at)
	}
	acct.UpdatedAt = time.Now()
	return nil
}

// TouchLastLogin records a successful login
func (s *AccountStore) TouchLastLogin(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	acct, ok := s.byID[id]
	if !ok {
		return repository.ErrNotFound
	}
	acct.LastLogin = &at
	return nil
}

func (s *AccountStore) get(id string, withSecret bool) (*model.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	acct, ok := s.byID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	c := acct.Clone()
	if !withSecret {
		c.PasswordHash = ""
	}
	return c, nil
}

// TokenStore keeps refresh tokens in a map. Rotation happens under one lock,
// which gives the same single-winner guarantee as the SQL implementation.
type TokenStore struct {
	mu     sync.Mutex
	tokens map[string]*model.RefreshToken
	hashes map[string]struct{}
}

// NewTokenStore creates an empty TokenStore
func NewTokenStore() *TokenStore {
	return &TokenStore{
		tokens: make(map[string]*model.RefreshToken),
		hashes: make(map[string]struct{}),
	}
}

// Create stores a refresh token
func (s *TokenStore) Create(_ context.Context, token *model.RefreshToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insert(token)
}

// GetByID returns a copy of the stored token
func (s *TokenStore) GetByID(_ context.Context, id string) (*model.RefreshToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tokens[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	c := *t
	return &c, nil
}

// Rotate revokes oldID and inserts replacement atomically
func (s *TokenStore) Rotate(_ context.Context, oldID string, replacement *model.RefreshToken, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	old, ok := s.tokens[oldID]
	if !ok || old.AccountID != replacement.AccountID || !old.Usable(now) {
		return repository.ErrAlreadyRevoked
	}
	if _, dup := s.hashes[replacement.TokenHash]; dup {
		return &repository.DuplicateError{Field: "tokenHash"}
	}
	old.Revoked = true
	old.RevokedAt = &now
	return s.insert(replacement)
}

// Revoke revokes a single token owned by accountID
func (s *TokenStore) Revoke(_ context.Context, accountID, id string, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tokens[id]
	if !ok || t.AccountID != accountID || t.Revoked {
		return false, nil
	}
	t.Revoked = true
	t.RevokedAt = &now
	return true, nil
}

// RevokeAll revokes every live token of the account
func (s *TokenStore) RevokeAll(_ context.Context, accountID string, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for _, t := range s.tokens {
		if t.AccountID == accountID && !t.Revoked {
			t.Revoked = true
			t.RevokedAt = &now
			n++
		}
	}
	return n, nil
}

func (s *TokenStore) insert(token *model.RefreshToken) error {
	if _, dup := s.hashes[token.TokenHash]; dup {
		return &repository.DuplicateError{Field: "tokenHash"}
	}
	c := *token
	s.tokens[token.ID] = &c
	s.hashes[token.TokenHash] = struct{}{}
	return nil
}

// AuditStore is an append-only slice of records
type AuditStore struct {
	mu      sync.RWMutex
	records []model.AuditRecord
}

// NewAuditStore creates an empty AuditStore
func NewAuditStore() *AuditStore {
	return &AuditStore{}
}

// Insert appends a copy of rec
func (s *AuditStore) Insert(_ context.Context, rec *model.AuditRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, copyRecord(rec))
	return nil
}

// List returns matching records, newest first
func (s *AuditStore) List(_ context.Context, filter model.AuditFilter) ([]*model.AuditRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	var out []*model.AuditRecord
	for i := len(s.records) - 1; i >= 0 && len(out) < limit; i-- {
		r := s.records[i]
		if filter.ActorAccountID != "" && (r.ActorAccountID == nil || *r.ActorAccountID != filter.ActorAccountID) {
			continue
		}
		if filter.InitiatorAccountID != "" && (r.InitiatorAccountID == nil || *r.InitiatorAccountID != filter.InitiatorAccountID) {
			continue
		}
		if filter.Action != "" && r.Action != filter.Action {
			continue
		}
		c := copyRecord(&r)
		out = append(out, &c)
	}
	return out, nil
}

// All returns every stored record in insertion order
func (s *AuditStore) All() []model.AuditRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.AuditRecord, len(s.records))
	copy(out, s.records)
	return out
}

func copyRecord(rec *model.AuditRecord) model.AuditRecord {
	c := *rec
	if rec.Metadata != nil {
		c.Metadata = make(map[string]any, len(rec.Metadata))
		for k, v := range rec.Metadata {
			c.Metadata[k] = v
		}
	}
	return c
}

// StateStore keeps OAuth state values with an expiry
type StateStore struct {
	mu     sync.Mutex
	states map[string]time.Time
	now    func() time.Time
}

// NewStateStore creates an empty StateStore
func NewStateStore() *StateStore {
	return &StateStore{states: make(map[string]time.Time), now: time.Now}
}

// Save stores state until ttl elapses
func (s *StateStore) Save(_ context.Context, state string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for k, exp := range s.states {
		if !now.Before(exp) {
			delete(s.states, k)
		}
	}
	if _, ok := s.states[state]; ok {
		return repository.ErrDuplicate
	}
	s.states[state] = now.Add(ttl)
	return nil
}

// Consume deletes state and reports whether it was present and unexpired
func (s *StateStore) Consume(_ context.Context, state string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	exp, ok := s.states[state]
	if !ok {
		return false, nil
	}
	delete(s.states, state)
	return s.now().Before(exp), nil
}
