package enums

import "fmt"

// LeadStatus is the closed vocabulary of lead lifecycle states.
type LeadStatus string

const (
	LeadStatusAvailable            LeadStatus = "available"
	LeadStatusInAttendance         LeadStatus = "in_attendance"
	LeadStatusAwaitingReactivation LeadStatus = "awaiting_reactivation"

	LeadStatusInterested       LeadStatus = "interested"
	LeadStatusNotInterested    LeadStatus = "not_interested"
	LeadStatusMeetingScheduled LeadStatus = "meeting_scheduled"
	LeadStatusFollowUp         LeadStatus = "follow_up"
	LeadStatusNoContact        LeadStatus = "no_contact"
	LeadStatusProposalSent     LeadStatus = "proposal_sent"
	LeadStatusClosedWon        LeadStatus = "closed_won"

	LeadStatusDiscardedInactivity LeadStatus = "discarded_inactivity"
	LeadStatusDiscardedNoInterest LeadStatus = "discarded_no_interest"
)

var validLeadStatuses = []LeadStatus{
	LeadStatusAvailable,
	LeadStatusInAttendance,
	LeadStatusAwaitingReactivation,
	LeadStatusInterested,
	LeadStatusNotInterested,
	LeadStatusMeetingScheduled,
	LeadStatusFollowUp,
	LeadStatusNoContact,
	LeadStatusProposalSent,
	LeadStatusClosedWon,
	LeadStatusDiscardedInactivity,
	LeadStatusDiscardedNoInterest,
}

// outcomeStatuses are the statuses a seller may pick when closing an attendance.
var outcomeStatuses = []LeadStatus{
	LeadStatusInterested,
	LeadStatusNotInterested,
	LeadStatusMeetingScheduled,
	LeadStatusFollowUp,
	LeadStatusNoContact,
	LeadStatusProposalSent,
	LeadStatusClosedWon,
}

// String implements fmt.Stringer.
func (s LeadStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known LeadStatus.
func (s LeadStatus) IsValid() bool {
	return containsStatus(validLeadStatuses, s)
}

// IsOutcome reports whether the status is a seller-chosen attendance outcome.
func (s LeadStatus) IsOutcome() bool {
	return containsStatus(outcomeStatuses, s)
}

// IsDiscarded reports whether the status is a terminal discard state.
func (s LeadStatus) IsDiscarded() bool {
	return s == LeadStatusDiscardedInactivity || s == LeadStatusDiscardedNoInterest
}

// IsStalledCandidate reports whether the reactivation sweep may reclaim a lead in this status.
func (s LeadStatus) IsStalledCandidate() bool {
	return s == LeadStatusInAttendance || (s.IsOutcome() && s != LeadStatusClosedWon)
}

// StalledStatuses returns the statuses swept into reactivation once inactive.
func StalledStatuses() []LeadStatus {
	out := []LeadStatus{}
	for _, status := range validLeadStatuses {
		if status.IsStalledCandidate() {
			out = append(out, status)
		}
	}
	return out
}

// OutcomeStatuses returns a copy of the seller outcome vocabulary.
func OutcomeStatuses() []LeadStatus {
	out := make([]LeadStatus, len(outcomeStatuses))
	copy(out, outcomeStatuses)
	return out
}

// ParseLeadStatus converts raw input into a LeadStatus.
func ParseLeadStatus(value string) (LeadStatus, error) {
	for _, candidate := range validLeadStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid lead status %q", value)
}

func containsStatus(set []LeadStatus, s LeadStatus) bool {
	for _, candidate := range set {
		if candidate == s {
			return true
		}
	}
	return false
}
