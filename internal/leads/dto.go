package leads

import (
	"time"

	"github.com/google/uuid"

	"github.com/ecolote/leadengine/pkg/enums"
	"github.com/ecolote/leadengine/pkg/types"
)

// ListParams configures the available-leads page.
type ListParams struct {
	Type   string
	Limit  int
	Cursor string
}

// AssignInput claims an available lead. A nil SellerID assigns to the actor.
type AssignInput struct {
	LeadID   uuid.UUID
	SellerID *uuid.UUID
	Actor    types.Actor
}

// Outcome is what a seller reports when closing an attendance.
type Outcome struct {
	Status             enums.LeadStatus
	ContactMethod      enums.ContactMethod
	ContactSuccessful  *bool
	Notes              string
	InterestLevel      *int
	MeetingScheduledAt *time.Time
	FollowUpDate       *time.Time
	FollowUpNotes      string
}

type EndAttendanceInput struct {
	LeadID  uuid.UUID
	Actor   types.Actor
	Outcome Outcome
}

// UpdateStatusInput is the administrative overwrite.
type UpdateStatusInput struct {
	LeadID uuid.UUID
	Status enums.LeadStatus
	Notes  string
	Actor  types.Actor
}

// IngestResult counts what happened to each candidate in a batch.
type IngestResult struct {
	NewCount       int `json:"new_count"`
	DiscardedCount int `json:"discarded_count"`
	FailedCount    int `json:"failed_count"`
}

// ReplenishInput names the terms to top up. Empty fields fall back to config.
type ReplenishInput struct {
	City  string
	State string
	Terms []string
	Actor types.Actor
}

// TermStatus reports what replenish did for a single term.
type TermStatus struct {
	Term      string `json:"term"`
	Available int64  `json:"available"`
	Fetched   int    `json:"fetched"`
	Requested bool   `json:"requested"`
	Error     string `json:"error,omitempty"`
}

type ReplenishResult struct {
	Terms  []TermStatus `json:"terms"`
	Ingest IngestResult `json:"ingest"`
}
