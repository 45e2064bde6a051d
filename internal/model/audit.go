package model

import (
	"errors"
	"fmt"
	"time"
)

// AuditAction is the closed set of audited actions
type AuditAction string

const (
	AuditActionLogin             AuditAction = "login"
	AuditActionLogout            AuditAction = "logout"
	AuditActionProfileUpdate     AuditAction = "profile_update"
	AuditActionPasswordChange    AuditAction = "password_change"
	AuditActionUserRegistration  AuditAction = "user_registration"
	AuditActionUserDelete        AuditAction = "user_delete"
	AuditActionFailedLogin       AuditAction = "failed_login"
	AuditActionCredentialsUpdate AuditAction = "credentials_update"
	AuditActionTokenRefresh      AuditAction = "token_refresh"
	AuditActionAccessDenied      AuditAction = "access_denied"
	AuditActionAccountBlock      AuditAction = "account_block"
	AuditActionAccountUnblock    AuditAction = "account_unblock"
)

// AuditStatus is the outcome of an audited action
type AuditStatus string

const (
	AuditStatusSuccess AuditStatus = "success"
	AuditStatusFailed  AuditStatus = "failed"
)

// AuthMethod tags how a login was attempted
type AuthMethod string

const (
	AuthMethodEmail    AuthMethod = "email"
	AuthMethodUsername AuthMethod = "username"
	AuthMethodGoogle   AuthMethod = "google"
)

// ErrInvalidAuditRecord is returned when a record fails validation and is
// therefore never persisted
var ErrInvalidAuditRecord = errors.New("invalid audit record")

// AuditRecord is an immutable audit log entry
type AuditRecord struct {
	ID                 string         `json:"id"`
	Action             AuditAction    `json:"action"`
	ActorAccountID     *string        `json:"actorAccountId,omitempty"`
	InitiatorAccountID *string        `json:"initiatorAccountId,omitempty"`
	Status             AuditStatus    `json:"status"`
	IP                 string         `json:"ip"`
	Device             string         `json:"device"`
	Method             AuthMethod     `json:"method,omitempty"`
	Metadata           map[string]any `json:"metadata,omitempty"`
	ServerTimestamp    time.Time      `json:"serverTimestamp"`
}

var knownActions = map[AuditAction]struct{}{
	AuditActionLogin: {}, AuditActionLogout: {}, AuditActionProfileUpdate: {},
	AuditActionPasswordChange: {}, AuditActionUserRegistration: {}, AuditActionUserDelete: {},
	AuditActionFailedLogin: {}, AuditActionCredentialsUpdate: {}, AuditActionTokenRefresh: {},
	AuditActionAccessDenied: {}, AuditActionAccountBlock: {}, AuditActionAccountUnblock: {},
}

// Valid reports whether a is a known action
func (a AuditAction) Valid() bool {
	_, ok := knownActions[a]
	return ok
}

// ActorOptional reports whether the action may be recorded without an actor
func (a AuditAction) ActorOptional() bool {
	switch a {
	case AuditActionUserRegistration, AuditActionFailedLogin, AuditActionAccessDenied:
		return true
	}
	return false
}

// Administrative reports whether the action is performed on behalf of
// another account and therefore needs an initiator
func (a AuditAction) Administrative() bool {
	switch a {
	case AuditActionUserDelete, AuditActionAccountBlock, AuditActionAccountUnblock:
		return true
	}
	return false
}

// RequiresMethod reports whether the action must carry an auth method
func (a AuditAction) RequiresMethod() bool {
	return a == AuditActionLogin || a == AuditActionFailedLogin
}

// Validate checks the creation-time constraints of a record
func (r *AuditRecord) Validate() error {
	if !r.Action.Valid() {
		return fmt.Errorf("%w: unknown action %q", ErrInvalidAuditRecord, r.Action)
	}
	if r.Status != AuditStatusSuccess && r.Status != AuditStatusFailed {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidAuditRecord, r.Status)
	}
	if !r.Action.ActorOptional() && (r.ActorAccountID == nil || *r.ActorAccountID == "") {
		return fmt.Errorf("%w: action %s requires an actor", ErrInvalidAuditRecord, r.Action)
	}
	if r.Action.Administrative() && (r.InitiatorAccountID == nil || *r.InitiatorAccountID == "") {
		return fmt.Errorf("%w: action %s requires an initiator", ErrInvalidAuditRecord, r.Action)
	}
	if r.Action.RequiresMethod() {
		switch r.Method {
		case AuthMethodEmail, AuthMethodUsername, AuthMethodGoogle:
		default:
			return fmt.Errorf("%w: action %s requires a method", ErrInvalidAuditRecord, r.Action)
		}
	} else if r.Method != "" && r.Method != AuthMethodEmail && r.Method != AuthMethodUsername && r.Method != AuthMethodGoogle {
		return fmt.Errorf("%w: unknown method %q", ErrInvalidAuditRecord, r.Method)
	}
	return nil
}

// AuditFilter selects records for the administrative audit trail
type AuditFilter struct {
	ActorAccountID     string
	InitiatorAccountID string
	Action             AuditAction
	Limit              int
}
