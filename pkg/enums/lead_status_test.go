package enums

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLeadStatus(t *testing.T) {
	status, err := ParseLeadStatus("meeting_scheduled")
	require.NoError(t, err)
	assert.Equal(t, LeadStatusMeetingScheduled, status)

	_, err = ParseLeadStatus("Em Atendimento")
	require.Error(t, err)
}

func TestOutcomeStatusesExcludeStructuralStates(t *testing.T) {
	for _, status := range []LeadStatus{
		LeadStatusAvailable,
		LeadStatusInAttendance,
		LeadStatusAwaitingReactivation,
		LeadStatusDiscardedInactivity,
		LeadStatusDiscardedNoInterest,
	} {
		assert.False(t, status.IsOutcome(), status)
	}
	for _, status := range OutcomeStatuses() {
		assert.True(t, status.IsValid(), status)
	}
}

func TestStalledStatuses(t *testing.T) {
	stalled := StalledStatuses()
	assert.Contains(t, stalled, LeadStatusInAttendance)
	assert.Contains(t, stalled, LeadStatusFollowUp)
	assert.NotContains(t, stalled, LeadStatusClosedWon)
	assert.NotContains(t, stalled, LeadStatusAvailable)
	assert.NotContains(t, stalled, LeadStatusAwaitingReactivation)
	assert.NotContains(t, stalled, LeadStatusDiscardedNoInterest)
}

func TestDiscardReasonMapsToStatus(t *testing.T) {
	reason, err := ParseDiscardReason("no_interest")
	require.NoError(t, err)
	assert.Equal(t, LeadStatusDiscardedNoInterest, reason.Status())
	assert.Equal(t, LeadStatusDiscardedInactivity, DiscardReasonInactivity.Status())

	_, err = ParseDiscardReason("bored")
	require.Error(t, err)
}

func TestParseContactMethodAndRole(t *testing.T) {
	method, err := ParseContactMethod("whatsapp")
	require.NoError(t, err)
	assert.Equal(t, ContactMethodWhatsApp, method)

	_, err = ParseContactMethod("pigeon")
	require.Error(t, err)

	role, err := ParseActorRole("admin")
	require.NoError(t, err)
	assert.True(t, role.IsAdmin())
	assert.False(t, ActorRoleSeller.IsAdmin())
}
