package types

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ecolote/leadengine/pkg/enums"
)

// ContactEvent is one seller interaction recorded when an attendance ends.
type ContactEvent struct {
	At         time.Time           `json:"at"`
	Method     enums.ContactMethod `json:"method"`
	Successful bool                `json:"successful"`
	Notes      string              `json:"notes,omitempty"`
	ActorID    uuid.UUID           `json:"actor_id"`
	Status     enums.LeadStatus    `json:"status"`
}

// ContactHistory is the append-only contact log persisted as JSON.
type ContactHistory []ContactEvent

// Append returns a new history with the event added at the end.
func (h ContactHistory) Append(event ContactEvent) ContactHistory {
	out := make(ContactHistory, 0, len(h)+1)
	out = append(out, h...)
	return append(out, event)
}

// Value marshals the history into JSON.
func (h ContactHistory) Value() (driver.Value, error) {
	if h == nil {
		return "[]", nil
	}
	buf, err := json.Marshal(h)
	if err != nil {
		return nil, err
	}
	return string(buf), nil
}

// Scan decodes a JSON column into the history.
func (h *ContactHistory) Scan(value interface{}) error {
	if value == nil {
		*h = ContactHistory{}
		return nil
	}

	var raw []byte
	switch v := value.(type) {
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		return fmt.Errorf("contact history: unsupported scan type %T", value)
	}
	if len(raw) == 0 {
		*h = ContactHistory{}
		return nil
	}

	result := ContactHistory{}
	if err := json.Unmarshal(raw, &result); err != nil {
		return err
	}
	*h = result
	return nil
}
