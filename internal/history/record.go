package history

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ecolote/leadengine/pkg/db/models"
	"github.com/ecolote/leadengine/pkg/enums"
)

// NewRecord builds a transition record. A nil changedBy marks a system change
// and a blank note is stored as NULL.
func NewRecord(leadID uuid.UUID, oldStatus enums.LeadStatus, newStatus enums.LeadStatus, changedBy *uuid.UUID, notes string, at time.Time) models.LeadStatusHistory {
	record := models.LeadStatusHistory{
		LeadID:    leadID,
		NewStatus: newStatus,
		ChangedBy: changedBy,
		ChangedAt: at.UTC(),
	}
	if oldStatus != "" {
		old := oldStatus
		record.OldStatus = &old
	}
	if trimmed := strings.TrimSpace(notes); trimmed != "" {
		record.Notes = &trimmed
	}
	return record
}
