package leads

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"github.com/ecolote/leadengine/pkg/db/models"
	"github.com/ecolote/leadengine/pkg/enums"
	pkgerrors "github.com/ecolote/leadengine/pkg/errors"
	"github.com/ecolote/leadengine/pkg/pagination"
)

func TestAssignClaimsAvailableLead(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	seller := sellerActor()
	lead := f.seed(t, nil)

	got, err := f.svc.Assign(ctx, AssignInput{LeadID: lead.ID, Actor: seller})
	require.NoError(t, err)
	assert.Equal(t, enums.LeadStatusInAttendance, got.Status)
	require.NotNil(t, got.AssignedTo)
	assert.Equal(t, seller.ID, *got.AssignedTo)
	require.NotNil(t, got.LastChangedBy)
	assert.Equal(t, seller.ID, *got.LastChangedBy)

	stored := f.reload(t, lead.ID)
	requireConsistent(t, stored)
	assert.True(t, stored.LastStatusUpdateAt.Equal(f.now))

	rows := f.historyFor(t, lead.ID)
	require.Len(t, rows, 1)
	require.NotNil(t, rows[0].OldStatus)
	assert.Equal(t, enums.LeadStatusAvailable, *rows[0].OldStatus)
	assert.Equal(t, enums.LeadStatusInAttendance, rows[0].NewStatus)
	assert.Equal(t, []enums.LeadEvent{enums.LeadEventAssigned}, f.publisher.actions())
}

func TestAssignErrors(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	seller := sellerActor()

	_, err := f.svc.Assign(ctx, AssignInput{LeadID: uuid.New(), Actor: seller})
	assert.Equal(t, pkgerrors.CodeNotFound, pkgerrors.CodeOf(err))

	lead := f.seed(t, nil)
	other := uuid.New()
	_, err = f.svc.Assign(ctx, AssignInput{LeadID: lead.ID, SellerID: &other, Actor: seller})
	assert.Equal(t, pkgerrors.CodeForbidden, pkgerrors.CodeOf(err))

	got, err := f.svc.Assign(ctx, AssignInput{LeadID: lead.ID, SellerID: &other, Actor: adminActor()})
	require.NoError(t, err)
	assert.Equal(t, other, *got.AssignedTo)

	_, err = f.svc.Assign(ctx, AssignInput{LeadID: lead.ID, Actor: seller})
	assert.Equal(t, pkgerrors.CodeConflict, pkgerrors.CodeOf(err))
}

func TestConcurrentAssignHasSingleWinner(t *testing.T) {
	f := newFixture(t, nil)
	lead := f.seed(t, nil)
	sellers := []struct{ id uuid.UUID }{{uuid.New()}, {uuid.New()}}

	var wg sync.WaitGroup
	errs := make([]error, len(sellers))
	for i := range sellers {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			actor := sellerActor()
			actor.ID = sellers[i].id
			_, errs[i] = f.svc.Assign(context.Background(), AssignInput{LeadID: lead.ID, Actor: actor})
		}(i)
	}
	wg.Wait()

	wins, conflicts := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			wins++
		case pkgerrors.CodeOf(err) == pkgerrors.CodeConflict:
			conflicts++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, wins)
	assert.Equal(t, 1, conflicts)
	assert.Len(t, f.historyFor(t, lead.ID), 1)
	requireConsistent(t, f.reload(t, lead.ID))
}

func TestStartAttendanceClaimsUnassignedLead(t *testing.T) {
	f := newFixture(t, nil)
	seller := sellerActor()
	lead := f.seed(t, nil)

	got, err := f.svc.StartAttendance(context.Background(), lead.ID, seller)
	require.NoError(t, err)
	assert.Equal(t, enums.LeadStatusInAttendance, got.Status)
	assert.True(t, got.IsActiveAttendance)
	assert.Equal(t, seller.ID, *got.AttendedBy)
	assert.Equal(t, seller.ID, *got.AssignedTo)
	requireConsistent(t, f.reload(t, lead.ID))
	assert.Len(t, f.historyFor(t, lead.ID), 1)
}

func TestStartAttendanceWithoutStatusChangeSkipsHistory(t *testing.T) {
	f := newFixture(t, nil)
	seller := sellerActor()
	lead := f.seed(t, func(l *models.Lead) {
		l.Status = enums.LeadStatusInAttendance
		l.AssignedTo = &seller.ID
	})

	_, err := f.svc.StartAttendance(context.Background(), lead.ID, seller)
	require.NoError(t, err)
	// restarting by the same seller is allowed
	_, err = f.svc.StartAttendance(context.Background(), lead.ID, seller)
	require.NoError(t, err)
	assert.Empty(t, f.historyFor(t, lead.ID))
	assert.Equal(t, []enums.LeadEvent{enums.LeadEventAttendanceStarted, enums.LeadEventAttendanceStarted}, f.publisher.actions())
}

func TestStartAttendanceRejections(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	owner := sellerActor()
	intruder := sellerActor()

	attended := f.seed(t, func(l *models.Lead) {
		l.Status = enums.LeadStatusInAttendance
		l.AssignedTo = &owner.ID
		l.AttendedBy = &owner.ID
		l.IsActiveAttendance = true
	})
	_, err := f.svc.StartAttendance(ctx, attended.ID, intruder)
	assert.Equal(t, pkgerrors.CodeConflict, pkgerrors.CodeOf(err))

	assigned := f.seed(t, func(l *models.Lead) {
		l.Status = enums.LeadStatusFollowUp
		l.AssignedTo = &owner.ID
	})
	_, err = f.svc.StartAttendance(ctx, assigned.ID, intruder)
	assert.Equal(t, pkgerrors.CodeForbidden, pkgerrors.CodeOf(err))

	discarded := f.seed(t, func(l *models.Lead) {
		l.Status = enums.LeadStatusDiscardedNoInterest
		l.AssignedTo = &owner.ID
	})
	_, err = f.svc.StartAttendance(ctx, discarded.ID, owner)
	assert.Equal(t, pkgerrors.CodeConflict, pkgerrors.CodeOf(err))
}

func TestStartAttendanceClearsReactivationDueDate(t *testing.T) {
	f := newFixture(t, nil)
	seller := sellerActor()
	due := DateOf(f.now.AddDate(0, 0, 10))
	lead := f.seed(t, func(l *models.Lead) {
		l.Status = enums.LeadStatusAwaitingReactivation
		l.AssignedTo = &seller.ID
		l.ReactivationDueDate = &due
	})

	_, err := f.svc.StartAttendance(context.Background(), lead.ID, seller)
	require.NoError(t, err)
	stored := f.reload(t, lead.ID)
	requireConsistent(t, stored)
	rows := f.historyFor(t, lead.ID)
	require.Len(t, rows, 1)
	assert.Equal(t, enums.LeadStatusAwaitingReactivation, *rows[0].OldStatus)
}

func TestEndAttendanceRecordsOutcome(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	seller := sellerActor()
	lead := f.seed(t, nil)

	_, err := f.svc.StartAttendance(ctx, lead.ID, seller)
	require.NoError(t, err)
	f.tick()

	followUp := f.now.AddDate(0, 0, 3)
	got, err := f.svc.EndAttendance(ctx, EndAttendanceInput{
		LeadID: lead.ID,
		Actor:  seller,
		Outcome: Outcome{
			Status:            enums.LeadStatusFollowUp,
			ContactMethod:     enums.ContactMethodWhatsApp,
			ContactSuccessful: ptr(true),
			Notes:             "call back on thursday",
			InterestLevel:     ptr(4),
			FollowUpDate:      &followUp,
			FollowUpNotes:     "send catalog",
		},
	})
	require.NoError(t, err)
	assert.Equal(t, enums.LeadStatusFollowUp, got.Status)

	stored := f.reload(t, lead.ID)
	requireConsistent(t, stored)
	assert.Equal(t, 1, stored.ContactAttempts)
	require.Len(t, stored.ContactHistory, 1)
	assert.Equal(t, enums.ContactMethodWhatsApp, stored.ContactHistory[0].Method)
	assert.True(t, stored.ContactHistory[0].Successful)
	assert.Equal(t, seller.ID, stored.ContactHistory[0].ActorID)
	require.NotNil(t, stored.LastContactMethod)
	assert.Equal(t, enums.ContactMethodWhatsApp, *stored.LastContactMethod)
	require.NotNil(t, stored.FollowUpDate)
	assert.Equal(t, time.Time(DateOf(followUp)).Format("2006-01-02"), time.Time(*stored.FollowUpDate).Format("2006-01-02"))
	assert.Equal(t, 4, *stored.InterestLevel)

	rows := f.historyFor(t, lead.ID)
	require.Len(t, rows, 2)
	assert.Equal(t, enums.LeadStatusFollowUp, rows[0].NewStatus)
	require.NotNil(t, rows[0].Notes)
	assert.Equal(t, "call back on thursday", *rows[0].Notes)
}

func TestEndAttendanceByNonAttendeeLeavesLeadUnchanged(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	owner := sellerActor()
	lead := f.seed(t, nil)
	_, err := f.svc.StartAttendance(ctx, lead.ID, owner)
	require.NoError(t, err)
	before := f.reload(t, lead.ID)

	_, err = f.svc.EndAttendance(ctx, EndAttendanceInput{
		LeadID:  lead.ID,
		Actor:   sellerActor(),
		Outcome: Outcome{Status: enums.LeadStatusInterested},
	})
	assert.Equal(t, pkgerrors.CodeConflict, pkgerrors.CodeOf(err))

	after := f.reload(t, lead.ID)
	assert.Equal(t, before.Status, after.Status)
	assert.Equal(t, before.ContactAttempts, after.ContactAttempts)
	assert.Equal(t, before.AttendedBy, after.AttendedBy)
	assert.Len(t, f.historyFor(t, lead.ID), 1)
}

func TestEndAttendanceValidatesOutcome(t *testing.T) {
	f := newFixture(t, nil)
	seller := sellerActor()
	cases := []Outcome{
		{Status: enums.LeadStatusAvailable},
		{Status: enums.LeadStatusDiscardedInactivity},
		{Status: enums.LeadStatusInterested, ContactMethod: "pigeon"},
		{Status: enums.LeadStatusInterested, InterestLevel: ptr(6)},
		{Status: enums.LeadStatusInterested, InterestLevel: ptr(0)},
	}
	for _, outcome := range cases {
		_, err := f.svc.EndAttendance(context.Background(), EndAttendanceInput{LeadID: uuid.New(), Actor: seller, Outcome: outcome})
		assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.CodeOf(err), "outcome %+v", outcome)
	}
}

func TestUpdateStatus(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	admin := adminActor()
	seller := sellerActor()

	_, err := f.svc.UpdateStatus(ctx, UpdateStatusInput{LeadID: uuid.New(), Status: enums.LeadStatusClosedWon, Actor: seller})
	assert.Equal(t, pkgerrors.CodeForbidden, pkgerrors.CodeOf(err))

	for _, status := range []enums.LeadStatus{enums.LeadStatusInAttendance, enums.LeadStatusAwaitingReactivation, "bogus"} {
		_, err = f.svc.UpdateStatus(ctx, UpdateStatusInput{LeadID: uuid.New(), Status: status, Actor: admin})
		assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.CodeOf(err))
	}

	unassigned := f.seed(t, nil)
	_, err = f.svc.UpdateStatus(ctx, UpdateStatusInput{LeadID: unassigned.ID, Status: enums.LeadStatusClosedWon, Actor: admin})
	assert.Equal(t, pkgerrors.CodeConflict, pkgerrors.CodeOf(err))

	attended := f.seed(t, func(l *models.Lead) {
		l.Status = enums.LeadStatusInAttendance
		l.AssignedTo = &seller.ID
		l.AttendedBy = &seller.ID
		l.IsActiveAttendance = true
	})
	got, err := f.svc.UpdateStatus(ctx, UpdateStatusInput{LeadID: attended.ID, Status: enums.LeadStatusDiscardedNoInterest, Actor: admin, Notes: "duplicate"})
	require.NoError(t, err)
	assert.Equal(t, enums.LeadStatusDiscardedNoInterest, got.Status)
	stored := f.reload(t, attended.ID)
	requireConsistent(t, stored)
	require.NotNil(t, stored.DiscardReason)
	assert.Equal(t, "no_interest", *stored.DiscardReason)

	f.tick()
	released, err := f.svc.UpdateStatus(ctx, UpdateStatusInput{LeadID: attended.ID, Status: enums.LeadStatusAvailable, Actor: admin})
	require.NoError(t, err)
	assert.Nil(t, released.AssignedTo)
	assert.Nil(t, released.DiscardReason)
	requireConsistent(t, f.reload(t, attended.ID))

	rows := f.historyFor(t, attended.ID)
	require.Len(t, rows, 2)
	assert.Equal(t, enums.LeadStatusDiscardedNoInterest, *rows[0].OldStatus)
	assert.Equal(t, enums.LeadStatusInAttendance, *rows[1].OldStatus)
}

func TestLifecycleHistoryMatchesTransitions(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	seller := sellerActor()
	admin := adminActor()
	lead := f.seed(t, nil)

	steps := []func() error{
		func() error { _, err := f.svc.Assign(ctx, AssignInput{LeadID: lead.ID, Actor: seller}); return err },
		func() error { _, err := f.svc.StartAttendance(ctx, lead.ID, seller); return err },
		func() error {
			_, err := f.svc.EndAttendance(ctx, EndAttendanceInput{LeadID: lead.ID, Actor: seller, Outcome: Outcome{Status: enums.LeadStatusInterested}})
			return err
		},
		func() error { _, err := f.svc.StartAttendance(ctx, lead.ID, seller); return err },
		func() error {
			_, err := f.svc.EndAttendance(ctx, EndAttendanceInput{LeadID: lead.ID, Actor: seller, Outcome: Outcome{Status: enums.LeadStatusProposalSent}})
			return err
		},
		func() error {
			_, err := f.svc.UpdateStatus(ctx, UpdateStatusInput{LeadID: lead.ID, Status: enums.LeadStatusClosedWon, Actor: admin})
			return err
		},
	}
	// the second step does not change status, so it writes no history
	for _, step := range steps {
		f.tick()
		require.NoError(t, step())
		requireConsistent(t, f.reload(t, lead.ID))
	}

	rows := f.historyFor(t, lead.ID)
	require.Len(t, rows, len(steps)-1)
	assert.Equal(t, enums.LeadStatusClosedWon, rows[0].NewStatus)
	assert.Equal(t, enums.LeadStatusInAttendance, rows[len(rows)-1].NewStatus)
	assert.Equal(t, 2, f.reload(t, lead.ID).ContactAttempts)
}

func TestHistoryOrderWithoutClockAdvance(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	seller := sellerActor()
	admin := adminActor()

	for i := 0; i < 20; i++ {
		lead := f.seed(t, nil)
		_, err := f.svc.Assign(ctx, AssignInput{LeadID: lead.ID, Actor: seller})
		require.NoError(t, err)
		_, err = f.svc.StartAttendance(ctx, lead.ID, seller)
		require.NoError(t, err)
		_, err = f.svc.EndAttendance(ctx, EndAttendanceInput{LeadID: lead.ID, Actor: seller, Outcome: Outcome{Status: enums.LeadStatusInterested}})
		require.NoError(t, err)
		_, err = f.svc.UpdateStatus(ctx, UpdateStatusInput{LeadID: lead.ID, Status: enums.LeadStatusFollowUp, Actor: admin})
		require.NoError(t, err)

		rows := f.historyFor(t, lead.ID)
		require.GreaterOrEqual(t, len(rows), 3)
		assert.Equal(t, enums.LeadStatusFollowUp, rows[0].NewStatus)
		for j := 0; j+1 < len(rows); j++ {
			require.NotNil(t, rows[j].OldStatus)
			assert.Equal(t, rows[j+1].NewStatus, *rows[j].OldStatus, "row %d out of order", j)
			assert.True(t, rows[j].ChangedAt.Equal(rows[j+1].ChangedAt))
		}
	}
}

func TestListAvailablePaginates(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		i := i
		f.seed(t, func(l *models.Lead) {
			l.Name = "Bakery " + string(rune('A'+i))
			l.CreatedAt = f.now.Add(time.Duration(i) * time.Minute)
		})
	}
	f.seed(t, func(l *models.Lead) { l.Type = "gym" })
	f.seed(t, func(l *models.Lead) {
		l.Status = enums.LeadStatusClosedWon
		l.AssignedTo = ptr(uuid.New())
	})

	page, err := f.svc.ListAvailable(ctx, ListParams{Type: "bakery", Limit: 2})
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	require.NotEmpty(t, page.Cursor)

	next, err := f.svc.ListAvailable(ctx, ListParams{Type: "bakery", Limit: 2, Cursor: page.Cursor})
	require.NoError(t, err)
	require.Len(t, next.Items, 1)
	assert.Empty(t, next.Cursor)

	all, err := f.svc.ListAvailable(ctx, ListParams{Limit: pagination.MaxLimit})
	require.NoError(t, err)
	assert.Len(t, all.Items, 4)

	_, err = f.svc.ListAvailable(ctx, ListParams{Cursor: "%%%"})
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.CodeOf(err))
}

func TestGetByID(t *testing.T) {
	f := newFixture(t, nil)
	lead := f.seed(t, nil)

	got, err := f.svc.GetByID(context.Background(), lead.ID)
	require.NoError(t, err)
	assert.Equal(t, lead.Name, got.Name)

	_, err = f.svc.GetByID(context.Background(), uuid.New())
	assert.Equal(t, pkgerrors.CodeNotFound, pkgerrors.CodeOf(err))
	_, err = f.svc.GetByID(context.Background(), uuid.Nil)
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.CodeOf(err))
}

func TestDateOfTruncatesToUTCDay(t *testing.T) {
	loc := time.FixedZone("BRT", -3*3600)
	day := DateOf(time.Date(2026, 5, 4, 23, 30, 0, 0, loc))
	assert.Equal(t, datatypes.Date(time.Date(2026, 5, 5, 0, 0, 0, 0, time.UTC)), day)
}
