package enums

import "fmt"

// DiscardReason selects which discard status a reactivation-pending lead lands in.
type DiscardReason string

const (
	DiscardReasonInactivity DiscardReason = "inactivity"
	DiscardReasonNoInterest DiscardReason = "no_interest"
)

func (r DiscardReason) String() string {
	return string(r)
}

func (r DiscardReason) IsValid() bool {
	return r == DiscardReasonInactivity || r == DiscardReasonNoInterest
}

// Status maps the reason onto its terminal lead status.
func (r DiscardReason) Status() LeadStatus {
	if r == DiscardReasonNoInterest {
		return LeadStatusDiscardedNoInterest
	}
	return LeadStatusDiscardedInactivity
}

func ParseDiscardReason(value string) (DiscardReason, error) {
	switch DiscardReason(value) {
	case DiscardReasonInactivity, DiscardReasonNoInterest:
		return DiscardReason(value), nil
	}
	return "", fmt.Errorf("invalid discard reason %q", value)
}
