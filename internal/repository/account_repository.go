package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/wastetrack/wastetrack/internal/database"
	"github.com/wastetrack/wastetrack/internal/model"
)

const accountColumns = `id, username, email, role, auth_local, google_provider_id, google_email,
	google_enabled, is_active, blocked_at, password_changed_at, last_login, created_at, updated_at`

var accountUniqueFields = map[string]string{
	"accounts_username_key":           "username",
	"accounts_email_key":              "email",
	"accounts_google_provider_id_key": "googleProviderId",
}

// AccountRepository handles account persistence
type AccountRepository struct {
	db *database.Postgres
}

// NewAccountRepository creates a new AccountRepository
func NewAccountRepository(db *database.Postgres) *AccountRepository {
	return &AccountRepository{db: db}
}

// Create inserts a new account. Unique violations come back as *DuplicateError.
func (r *AccountRepository) Create(ctx context.Context, acct *model.Account) error {
	query := `
		INSERT INTO accounts (id, username, email, password_hash, role, auth_local,
		    google_provider_id, google_email, google_enabled, is_active,
		    password_changed_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`
	var googleID, googleEmail sql.NullString
	googleEnabled := false
	if g := acct.AuthMethods.Google; g != nil {
		googleID = sql.NullString{String: g.ProviderID, Valid: g.ProviderID != ""}
		googleEmail = sql.NullString{String: g.ProviderEmail, Valid: g.ProviderEmail != ""}
		googleEnabled = g.Enabled
	}

	_, err := r.db.ExecContext(ctx, query,
		acct.ID,
		acct.Username,
		acct.Email,
		nullString(acct.PasswordHash),
		acct.Role,
		acct.AuthMethods.Local,
		googleID,
		googleEmail,
		googleEnabled,
		acct.IsActive,
		acct.PasswordChangedAt,
		acct.CreatedAt,
		acct.UpdatedAt,
	)
	if err != nil {
		if dup := translateDuplicate(err, accountUniqueFields); dup != err {
			return dup
		}
		return fmt.Errorf("failed to create account: %w", err)
	}
	return nil
}

// GetByID retrieves an account without its password hash
func (r *AccountRepository) GetByID(ctx context.Context, id string) (*model.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`
	return scanAccount(r.db.QueryRowContext(ctx, query, id), false)
}

// GetByIDWithSecret retrieves an account including its password hash
func (r *AccountRepository) GetByIDWithSecret(ctx context.Context, id string) (*model.Account, error) {
	query := `SELECT ` + accountColumns + `, password_hash FROM accounts WHERE id = $1`
	return scanAccount(r.db.QueryRowContext(ctx, query, id), true)
}

// GetByIdentifierWithSecret retrieves an account whose username or email
// matches identifier, including its password hash
func (r *AccountRepository) GetByIdentifierWithSecret(ctx context.Context, identifier string) (*model.Account, error) {
	query := `SELECT ` + accountColumns + `, password_hash FROM accounts WHERE username = $1 OR email = lower($1) LIMIT 1`
	return scanAccount(r.db.QueryRowContext(ctx, query, identifier), true)
}

// GetByEmail retrieves an account by its normalized email
func (r *AccountRepository) GetByEmail(ctx context.Context, email string) (*model.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE email = $1`
	return scanAccount(r.db.QueryRowContext(ctx, query, email), false)
}

// List returns accounts ordered by creation time
func (r *AccountRepository) List(ctx context.Context, limit, offset int) ([]*model.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts ORDER BY created_at DESC LIMIT $1 OFFSET $2`
	rows, err := r.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	defer rows.Close()

	var out []*model.Account
	for rows.Next() {
		acct, err := scanAccount(rows, false)
		if err != nil {
			return nil, err
		}
		out = append(out, acct)
	}
	return out, rows.Err()
}

// UpdateCredentials changes the email and/or password hash and stamps
// password_changed_at. Nil arguments leave the column untouched.
func (r *AccountRepository) UpdateCredentials(ctx context.Context, id string, email, passwordHash *string, changedAt time.Time) error {
	query := `
		UPDATE accounts
		SET email = COALESCE($2, email),
		    password_hash = COALESCE($3, password_hash),
		    password_changed_at = $4,
		    updated_at = $4
		WHERE id = $1
	`
	result, err := r.db.ExecContext(ctx, query, id, email, passwordHash, changedAt)
	if err != nil {
		if dup := translateDuplicate(err, accountUniqueFields); dup != err {
			return dup
		}
		return fmt.Errorf("failed to update credentials: %w", err)
	}
	return expectOneRow(result)
}

// LinkGoogle binds a Google identity. Other authentication methods are left
// as they are.
func (r *AccountRepository) LinkGoogle(ctx context.Context, id string, identity model.GoogleIdentity) error {
	query := `
		UPDATE accounts
		SET google_provider_id = $2, google_email = $3, google_enabled = $4, updated_at = now()
		WHERE id = $1
	`
	result, err := r.db.ExecContext(ctx, query, id, identity.ProviderID, identity.ProviderEmail, identity.Enabled)
	if err != nil {
		if dup := translateDuplicate(err, accountUniqueFields); dup != err {
			return dup
		}
		return fmt.Errorf("failed to link google identity: %w", err)
	}
	return expectOneRow(result)
}

// SetActive blocks or unblocks an account
func (r *AccountRepository) SetActive(ctx context.Context, id string, active bool, blockedAt *time.Time) error {
	query := `UPDATE accounts SET is_active = $2, blocked_at = $3, updated_at = now() WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id, active, blockedAt)
	if err != nil {
		return fmt.Errorf("failed to update account state: %w", err)
	}
	return expectOneRow(result)
}

// TouchLastLogin records a successful login
func (r *AccountRepository) TouchLastLogin(ctx context.Context, id string, at time.Time) error {
	query := `UPDATE accounts SET last_login = $2 WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id, at)
	if err != nil {
		return fmt.Errorf("failed to update last login: %w", err)
	}
	return expectOneRow(result)
}

type rowScanner interface {
	Scan(dest ...any) error
}

// scanAccount scans a single account row
func scanAccount(row rowScanner, withSecret bool) (*model.Account, error) {
	var (
		acct          model.Account
		role          string
		googleID      sql.NullString
		googleEmail   sql.NullString
		googleEnabled bool
		passwordHash  sql.NullString
	)
	dest := []any{
		&acct.ID,
		&acct.Username,
		&acct.Email,
		&role,
		&acct.AuthMethods.Local,
		&googleID,
		&googleEmail,
		&googleEnabled,
		&acct.IsActive,
		&acct.BlockedAt,
		&acct.PasswordChangedAt,
		&acct.LastLogin,
		&acct.CreatedAt,
		&acct.UpdatedAt,
	}
	if withSecret {
		dest = append(dest, &passwordHash)
	}

	err := row.Scan(dest...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan account: %w", err)
	}

	if acct.Role, err = model.ParseRole(role); err != nil {
		return nil, fmt.Errorf("failed to scan account %s: %w", acct.ID, err)
	}
	if googleID.Valid {
		acct.AuthMethods.Google = &model.GoogleIdentity{
			ProviderID:    googleID.String,
			ProviderEmail: googleEmail.String,
			Enabled:       googleEnabled,
		}
	}
	acct.PasswordHash = passwordHash.String
	return &acct, nil
}

func expectOneRow(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
