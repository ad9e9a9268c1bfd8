package enums

import "fmt"

// ActorRole is the role claim carried by identity tokens.
type ActorRole string

const (
	ActorRoleAdmin     ActorRole = "admin"
	ActorRoleModerator ActorRole = "moderator"
	ActorRoleMember    ActorRole = "member"
)

var validActorRoles = []ActorRole{
	ActorRoleAdmin,
	ActorRoleModerator,
	ActorRoleMember,
}

// String implements fmt.Stringer.
func (r ActorRole) String() string {
	return string(r)
}

// IsValid reports whether the role is recognised.
func (r ActorRole) IsValid() bool {
	for _, candidate := range validActorRoles {
		if candidate == r {
			return true
		}
	}
	return false
}

// ParseActorRole converts raw input into ActorRole.
func ParseActorRole(value string) (ActorRole, error) {
	for _, candidate := range validActorRoles {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid actor role %q", value)
}
