package policy

import (
	"templatedev/api/internal/apperr"
	"templatedev/api/internal/models"
)

// Rule is the access requirement attached to one operation.
type Rule struct {
	Public bool
	Roles  []models.UserRole
}

// Operation names shared by the HTTP routes and the RPC procedures.
const (
	OpAuthRegister = "auth.register"
	OpAuthLogin    = "auth.login"
	OpAuthRefresh  = "auth.refresh"
	OpAuthMe       = "auth.me"
	OpAuthLogout   = "auth.logout"
	OpUsersList    = "users.list"
	OpUsersGet     = "users.getById"
	OpUsersUpdate  = "users.update"
	OpUsersDelete  = "users.delete"
	OpHealth       = "health"
)

var Rules = map[string]Rule{
	OpAuthRegister: {Public: true},
	OpAuthLogin:    {Public: true},
	OpAuthRefresh:  {Public: true},
	OpHealth:       {Public: true},
	OpAuthMe:       {},
	OpAuthLogout:   {},
	OpUsersList:    {Roles: []models.UserRole{models.UserRoleAdmin}},
	// ownership is checked against the target id once it is known
	OpUsersGet:    {},
	OpUsersUpdate: {},
	OpUsersDelete: {},
}

// Authorize evaluates the rule for operation against caller, which is nil
// for anonymous requests. Operations without a rule require authentication.
func Authorize(operation string, caller *models.AuthContext) error {
	rule, ok := Rules[operation]
	if ok && rule.Public {
		return nil
	}
	if caller == nil {
		return apperr.ErrUnauthenticated
	}
	return CheckRoles(rule.Roles, *caller).Err()
}
