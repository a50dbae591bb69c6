package enums

import "fmt"

// ContactMethod is the channel a seller used to reach a lead.
type ContactMethod string

const (
	ContactMethodPhone    ContactMethod = "phone"
	ContactMethodWhatsApp ContactMethod = "whatsapp"
	ContactMethodEmail    ContactMethod = "email"
	ContactMethodVisit    ContactMethod = "visit"
	ContactMethodOther    ContactMethod = "other"
)

var validContactMethods = []ContactMethod{
	ContactMethodPhone,
	ContactMethodWhatsApp,
	ContactMethodEmail,
	ContactMethodVisit,
	ContactMethodOther,
}

func (m ContactMethod) String() string {
	return string(m)
}

func (m ContactMethod) IsValid() bool {
	for _, candidate := range validContactMethods {
		if candidate == m {
			return true
		}
	}
	return false
}

func ParseContactMethod(value string) (ContactMethod, error) {
	for _, candidate := range validContactMethods {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid contact method %q", value)
}
