package namespace

import (
	"github.com/TrueSelph/jvcli/internal/shared/errs"
)

// Role is a membership level within a namespace. Roles form a hierarchy:
// owner satisfies every check member does.
type Role int8

const (
	// RoleMember may publish packages under the namespace.
	RoleMember Role = iota
	// RoleOwner may additionally manage membership and deprecate versions.
	RoleOwner
)

// Satisfies reports whether the role meets a required level.
func (r Role) Satisfies(required Role) bool {
	return r >= required
}

// String returns the wire representation of the role.
func (r Role) String() string {
	if r == RoleOwner {
		return "owner"
	}
	return "member"
}

// ParseRole parses a wire role string.
func ParseRole(s string) (Role, error) {
	switch s {
	case "owner":
		return RoleOwner, nil
	case "member":
		return RoleMember, nil
	default:
		return RoleMember, errs.Newf(errs.InvalidFormat, "role %q must be owner or member", s)
	}
}
