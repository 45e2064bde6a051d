package model

import "fmt"

// Role is the permission level attached to an account
type Role string

const (
	RoleCitizen       Role = "citizen"
	RoleOperator      Role = "operator"
	RoleAdministrator Role = "administrator"
)

// Capability is something a role may be allowed to do
type Capability int

const (
	CapabilityOperatorConsole Capability = iota + 1
	CapabilityManageAccounts
	CapabilityReadAudit
)

var capabilities = map[Capability][]Role{
	CapabilityOperatorConsole: {RoleOperator, RoleAdministrator},
	CapabilityManageAccounts:  {RoleAdministrator},
	CapabilityReadAudit:       {RoleAdministrator},
}

// ParseRole converts a stored or submitted value into a Role
func ParseRole(s string) (Role, error) {
	r := Role(s)
	if !r.Valid() {
		return "", fmt.Errorf("unknown role %q", s)
	}
	return r, nil
}

// Valid reports whether r is one of the known roles
func (r Role) Valid() bool {
	switch r {
	case RoleCitizen, RoleOperator, RoleAdministrator:
		return true
	}
	return false
}

// Allows is the only place role permissions are decided
func (r Role) Allows(c Capability) bool {
	for _, allowed := range capabilities[c] {
		if allowed == r {
			return true
		}
	}
	return false
}

func (c Capability) String() string {
	switch c {
	case CapabilityOperatorConsole:
		return "operator_console"
	case CapabilityManageAccounts:
		return "manage_accounts"
	case CapabilityReadAudit:
		return "read_audit"
	}
	return fmt.Sprintf("capability(%d)", int(c))
}
