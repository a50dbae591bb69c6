package enums

import "fmt"

// ActorRole is the role carried by an authenticated caller.
type ActorRole string

const (
	ActorRoleAdmin  ActorRole = "admin"
	ActorRoleSeller ActorRole = "seller"
)

func (r ActorRole) String() string {
	return string(r)
}

func (r ActorRole) IsValid() bool {
	return r == ActorRoleAdmin || r == ActorRoleSeller
}

func (r ActorRole) IsAdmin() bool {
	return r == ActorRoleAdmin
}

func ParseActorRole(value string) (ActorRole, error) {
	role := ActorRole(value)
	if !role.IsValid() {
		return "", fmt.Errorf("invalid actor role %q", value)
	}
	return role, nil
}
