// Package authz maps operator roles to the mutation permissions they hold.
package authz

import (
	"strings"

	apperrors "github.com/louisbranch/noticeboard/internal/platform/errors"
)

// Matrix maps a role name to the set of permissions it grants. A permission
// entry of "*" grants everything; "announcement:*" grants every action under
// that prefix.
type Matrix map[string][]string

// DefaultMatrix is the operator-plane role table.
func DefaultMatrix() Matrix {
	return Matrix{
		"superadmin": {"*"},
		"admin":      {"announcement:*", "session:terminate_others", "approval:decide"},
		"moderator":  {"announcement:publish", "announcement:reject", "approval:decide"},
		"viewer":     {},
	}
}

// Allows reports whether the role holds the named permission.
func (m Matrix) Allows(role, permission string) bool {
	for _, granted := range m[role] {
		if granted == "*" || granted == permission {
			return true
		}
		if prefix, ok := strings.CutSuffix(granted, ":*"); ok &&
			strings.HasPrefix(permission, prefix+":") {
			return true
		}
	}
	return false
}

// Require returns a permission-denied error when the role lacks the
// permission.
func (m Matrix) Require(role, permission string) error {
	if m.Allows(role, permission) {
		return nil
	}
	return apperrors.WithMetadata(apperrors.CodePermissionDenied, "role does not permit this action",
		map[string]string{"permission": permission})
}
