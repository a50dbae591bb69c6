package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/ecolote/leadengine/pkg/enums"
)

// LeadStatusHistory is an immutable record of one status transition.
// A nil ChangedBy means the transition was performed by the system.
// IDs are UUIDv7 so rows sharing a changed_at still sort in insert order.
type LeadStatusHistory struct {
	ID        uuid.UUID         `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	LeadID    uuid.UUID         `gorm:"column:lead_id;type:uuid;not null;index" json:"lead_id"`
	OldStatus *enums.LeadStatus `gorm:"column:old_status;type:text" json:"old_status,omitempty"`
	NewStatus enums.LeadStatus  `gorm:"column:new_status;type:text;not null;index" json:"new_status"`
	ChangedBy *uuid.UUID        `gorm:"column:changed_by;type:uuid;index" json:"changed_by,omitempty"`
	ChangedAt time.Time         `gorm:"column:changed_at;not null;index" json:"changed_at"`
	Notes     *string           `gorm:"column:notes;type:text" json:"notes,omitempty"`
}

func (LeadStatusHistory) TableName() string { return "lead_status_history" }

func (h *LeadStatusHistory) BeforeCreate(*gorm.DB) error {
	if h.ID == uuid.Nil {
		id, err := uuid.NewV7()
		if err != nil {
			return err
		}
		h.ID = id
	}
	if h.ChangedAt.IsZero() {
		h.ChangedAt = time.Now().UTC()
	}
	return nil
}
