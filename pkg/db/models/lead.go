package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/ecolote/leadengine/pkg/enums"
	"github.com/ecolote/leadengine/pkg/types"
)

// SystemActorID marks transitions performed by scheduled jobs.
var SystemActorID = uuid.MustParse("00000000-0000-0000-0000-000000000001")

// Lead is a prospective customer moving through the sales pipeline.
type Lead struct {
	ID      uuid.UUID `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	PlaceID *string   `gorm:"column:place_id;type:text;uniqueIndex" json:"place_id,omitempty"`

	Name             string                      `gorm:"column:name;type:text;not null" json:"name"`
	FormattedAddress string                      `gorm:"column:formatted_address;type:text;not null" json:"formatted_address"`
	City             string                      `gorm:"column:city;type:text" json:"city"`
	State            string                      `gorm:"column:state;type:text" json:"state"`
	Neighborhood     string                      `gorm:"column:neighborhood;type:text" json:"neighborhood"`
	Phone            *string                     `gorm:"column:phone;type:text" json:"phone,omitempty"`
	ImageURLs        datatypes.JSONSlice[string] `gorm:"column:image_urls" json:"image_urls"`
	Type             string                      `gorm:"column:type;type:text;index" json:"type"`
	Latitude         *float64                    `gorm:"column:latitude" json:"latitude,omitempty"`
	Longitude        *float64                    `gorm:"column:longitude" json:"longitude,omitempty"`
	CollectedAt      *time.Time                  `gorm:"column:collected_at" json:"collected_at,omitempty"`

	Status              enums.LeadStatus     `gorm:"column:status;type:text;not null;index" json:"status"`
	AssignedTo          *uuid.UUID           `gorm:"column:assigned_to;type:uuid;index" json:"assigned_to,omitempty"`
	AssignedAt          *time.Time           `gorm:"column:assigned_at" json:"assigned_at,omitempty"`
	AttendedBy          *uuid.UUID           `gorm:"column:attended_by;type:uuid" json:"attended_by,omitempty"`
	AttendedAt          *time.Time           `gorm:"column:attended_at" json:"attended_at,omitempty"`
	IsActiveAttendance  bool                 `gorm:"column:is_active_attendance;not null;default:false" json:"is_active_attendance"`
	LastStatusUpdateAt  *time.Time           `gorm:"column:last_status_update_at;index" json:"last_status_update_at,omitempty"`
	ReactivationDueDate *datatypes.Date      `gorm:"column:reactivation_due_date" json:"reactivation_due_date,omitempty"`
	ReactivationNotes   *string              `gorm:"column:reactivation_notes;type:text" json:"reactivation_notes,omitempty"`
	DiscardReason       *string              `gorm:"column:discard_reason;type:text" json:"discard_reason,omitempty"`
	ContactAttempts     int                  `gorm:"column:contact_attempts;not null;default:0" json:"contact_attempts"`
	ContactHistory      types.ContactHistory `gorm:"column:contact_history;type:text" json:"contact_history"`
	LastChangedBy       *uuid.UUID           `gorm:"column:last_changed_by;type:uuid" json:"last_changed_by,omitempty"`

	LastContactAt      *time.Time           `gorm:"column:last_contact_at" json:"last_contact_at,omitempty"`
	LastContactMethod  *enums.ContactMethod `gorm:"column:last_contact_method;type:text" json:"last_contact_method,omitempty"`
	LastContactNotes   *string              `gorm:"column:last_contact_notes;type:text" json:"last_contact_notes,omitempty"`
	ContactSuccessful  *bool                `gorm:"column:contact_successful" json:"contact_successful,omitempty"`
	InterestLevel      *int                 `gorm:"column:interest_level" json:"interest_level,omitempty"`
	MeetingScheduledAt *time.Time           `gorm:"column:meeting_scheduled_at" json:"meeting_scheduled_at,omitempty"`
	FollowUpDate       *datatypes.Date      `gorm:"column:follow_up_date" json:"follow_up_date,omitempty"`
	FollowUpNotes      *string              `gorm:"column:follow_up_notes;type:text" json:"follow_up_notes,omitempty"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (Lead) TableName() string { return "leads" }

// BeforeCreate assigns an id so inserts do not depend on database defaults.
func (l *Lead) BeforeCreate(*gorm.DB) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	if l.ContactHistory == nil {
		l.ContactHistory = types.ContactHistory{}
	}
	return nil
}
