// Package policy decides whether a caller may perform an operation. It
// returns decisions only; each transport turns a denial into its own error
// envelope.
package policy

import (
	"strings"

	"templatedev/api/internal/apperr"
	"templatedev/api/internal/models"
)

type Decision struct {
	Allowed bool
	Reason  string
}

func allow() Decision {
	return Decision{Allowed: true}
}

func deny(reason string) Decision {
	return Decision{Reason: reason}
}

// Err converts a denial into an authorization error. Allowed decisions yield nil.
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	return apperr.Authorization(d.Reason)
}

// CheckRoles allows the caller when required is empty or contains the caller's role.
func CheckRoles(required []models.UserRole, caller models.AuthContext) Decision {
	if len(required) == 0 {
		return allow()
	}
	for _, role := range required {
		if role == caller.Role {
			return allow()
		}
	}

	names := make([]string, len(required))
	for i, role := range required {
		names[i] = string(role)
	}
	return deny("Access denied. Required roles: " + strings.Join(names, ", "))
}

// OwnerOrAdmin allows admins and the user owning the resource.
func OwnerOrAdmin(resourceUserID string, caller models.AuthContext) Decision {
	if caller.IsAdmin() || (caller.UserID != "" && caller.UserID == resourceUserID) {
		return allow()
	}
	return deny("You can only access your own resources")
}
