package reactivation

import (
	"time"

	"github.com/google/uuid"

	"github.com/ecolote/leadengine/pkg/enums"
	"github.com/ecolote/leadengine/pkg/types"
)

// SweepResult summarizes one ProcessInactive run.
type SweepResult struct {
	Processed int         `json:"processed"`
	Updated   int         `json:"updated"`
	Failed    int         `json:"failed"`
	Leads     []uuid.UUID `json:"leads"`
}

type ReactivateInput struct {
	LeadID        uuid.UUID
	Actor         types.Actor
	Status        enums.LeadStatus
	Notes         string
	FollowUpDate  *time.Time
	FollowUpNotes string
}

type DiscardInput struct {
	LeadID uuid.UUID
	Actor  types.Actor
	Reason enums.DiscardReason
	Notes  string
}

type ExtendInput struct {
	LeadID uuid.UUID
	Actor  types.Actor
	Days   int
	Notes  string
}
