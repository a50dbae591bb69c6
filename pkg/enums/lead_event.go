package enums

// LeadEvent names what happened to a lead in a published notification.
type LeadEvent string

// EventLeadUpdate is the channel name observers subscribe to.
const EventLeadUpdate = "leadUpdate"

const (
	LeadEventIngested           LeadEvent = "ingested"
	LeadEventAssigned           LeadEvent = "assigned"
	LeadEventAttendanceStarted  LeadEvent = "attendance_started"
	LeadEventAttendanceEnded    LeadEvent = "attendance_ended"
	LeadEventStatusUpdated      LeadEvent = "status_updated"
	LeadEventAwaitingReactivate LeadEvent = "awaiting_reactivation"
	LeadEventReactivated        LeadEvent = "reactivated"
	LeadEventDiscarded          LeadEvent = "discarded"
	LeadEventDeadlineExtended   LeadEvent = "deadline_extended"
)

func (e LeadEvent) String() string {
	return string(e)
}
