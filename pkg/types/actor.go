package types

import (
	"github.com/google/uuid"

	"github.com/ecolote/leadengine/pkg/enums"
)

// Actor is the authenticated caller a lead operation runs on behalf of.
type Actor struct {
	ID   uuid.UUID
	Role enums.ActorRole
}

func (a Actor) IsAdmin() bool {
	return a.Role.IsAdmin()
}

// CanAccess reports whether the actor may see a lead with the given assignee.
func (a Actor) CanAccess(assignedTo *uuid.UUID) bool {
	if a.IsAdmin() {
		return true
	}
	return assignedTo != nil && *assignedTo == a.ID
}
