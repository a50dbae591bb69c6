package history

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ecolote/leadengine/pkg/db"
	"github.com/ecolote/leadengine/pkg/db/dbtest"
	"github.com/ecolote/leadengine/pkg/db/models"
	"github.com/ecolote/leadengine/pkg/enums"
	pkgerrors "github.com/ecolote/leadengine/pkg/errors"
	"github.com/ecolote/leadengine/pkg/types"
)

type fixture struct {
	client *db.Client
	repo   Repository
	svc    *service
	now    time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	client := dbtest.Open(t)
	repo := NewRepository(client.DB())
	svc, err := NewService(repo)
	require.NoError(t, err)
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	impl := svc.(*service)
	impl.now = func() time.Time { return now }
	return &fixture{client: client, repo: repo, svc: impl, now: now}
}

func (f *fixture) seedLead(t *testing.T, name string, assignedTo *uuid.UUID) models.Lead {
	t.Helper()
	lead := models.Lead{
		Name:             name,
		FormattedAddress: name + " street",
		Status:           enums.LeadStatusAvailable,
		AssignedTo:       assignedTo,
	}
	require.NoError(t, f.client.DB().Create(&lead).Error)
	return lead
}

func (f *fixture) record(t *testing.T, leadID uuid.UUID, from, to enums.LeadStatus, by *uuid.UUID, at time.Time) {
	t.Helper()
	rec := NewRecord(leadID, from, to, by, "", at)
	require.NoError(t, f.repo.Append(context.Background(), &rec))
}

func admin() types.Actor  { return types.Actor{ID: uuid.New(), Role: enums.ActorRoleAdmin} }
func seller() types.Actor { return types.Actor{ID: uuid.New(), Role: enums.ActorRoleSeller} }

func TestForLeadReturnsNewestFirst(t *testing.T) {
	f := newFixture(t)
	s := seller()
	lead := f.seedLead(t, "Padaria", &s.ID)

	statuses := []enums.LeadStatus{
		enums.LeadStatusInAttendance,
		enums.LeadStatusInterested,
		enums.LeadStatusInAttendance,
		enums.LeadStatusFollowUp,
	}
	prev := enums.LeadStatusAvailable
	for i, st := range statuses {
		f.record(t, lead.ID, prev, st, &s.ID, f.now.Add(time.Duration(i)*time.Minute))
		prev = st
	}

	rows, err := f.svc.ForLead(context.Background(), lead.ID, s)
	require.NoError(t, err)
	require.Len(t, rows, len(statuses))
	assert.Equal(t, enums.LeadStatusFollowUp, rows[0].NewStatus)
	assert.Equal(t, enums.LeadStatusInAttendance, rows[len(rows)-1].NewStatus)
	for i := 1; i < len(rows); i++ {
		assert.False(t, rows[i].ChangedAt.After(rows[i-1].ChangedAt))
	}
}

func TestForLeadAccessRules(t *testing.T) {
	f := newFixture(t)
	owner := seller()
	lead := f.seedLead(t, "Mercado", &owner.ID)
	ctx := context.Background()

	_, err := f.svc.ForLead(ctx, lead.ID, seller())
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))

	_, err = f.svc.ForLead(ctx, uuid.New(), admin())
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	rows, err := f.svc.ForLead(ctx, lead.ID, admin())
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestBulkFiltersInaccessibleLeads(t *testing.T) {
	f := newFixture(t)
	s := seller()
	mine := f.seedLead(t, "Mine", &s.ID)
	theirs := f.seedLead(t, "Theirs", nil)
	f.record(t, mine.ID, enums.LeadStatusAvailable, enums.LeadStatusInAttendance, &s.ID, f.now)
	f.record(t, theirs.ID, enums.LeadStatusAvailable, enums.LeadStatusInAttendance, nil, f.now)

	out, err := f.svc.Bulk(context.Background(), []uuid.UUID{mine.ID, theirs.ID, uuid.New()}, s)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Len(t, out[mine.ID], 1)

	out, err = f.svc.Bulk(context.Background(), []uuid.UUID{mine.ID, theirs.ID}, admin())
	require.NoError(t, err)
	assert.Len(t, out, 2)
}

func TestBulkValidatesSize(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Bulk(context.Background(), nil, admin())
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	ids := make([]uuid.UUID, MaxBulkLeads+1)
	for i := range ids {
		ids[i] = uuid.New()
	}
	_, err = f.svc.Bulk(context.Background(), ids, admin())
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestStatsAggregatesAndPinsSellers(t *testing.T) {
	f := newFixture(t)
	s := seller()
	other := uuid.New()
	lead := f.seedLead(t, "Oficina", &s.ID)

	day1 := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	day2 := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	f.record(t, lead.ID, enums.LeadStatusAvailable, enums.LeadStatusInAttendance, &s.ID, day1)
	f.record(t, lead.ID, enums.LeadStatusInAttendance, enums.LeadStatusInterested, &s.ID, day1.Add(time.Hour))
	f.record(t, lead.ID, enums.LeadStatusInterested, enums.LeadStatusAwaitingReactivation, nil, day2)
	f.record(t, lead.ID, enums.LeadStatusAwaitingReactivation, enums.LeadStatusInAttendance, &other, day2.Add(time.Hour))

	stats, err := f.svc.Stats(context.Background(), StatsParams{}, admin())
	require.NoError(t, err)
	assert.Equal(t, 4, stats.TotalChanges)
	assert.Equal(t, 2, stats.ByStatus["in_attendance"])
	assert.Equal(t, map[string]int{"2026-03-01": 2, "2026-03-02": 2}, stats.ByDate)
	assert.Equal(t, 1, stats.ByUser["system"])
	assert.Equal(t, 2, stats.ByUser[s.ID.String()])

	// user_id from a seller is ignored in favour of the caller
	stats, err = f.svc.Stats(context.Background(), StatsParams{UserID: &other}, s)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalChanges)

	from := day2
	stats, err = f.svc.Stats(context.Background(), StatsParams{From: &from}, admin())
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalChanges)

	to := day1
	_, err = f.svc.Stats(context.Background(), StatsParams{From: &from, To: &to}, admin())
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestReactivationStats(t *testing.T) {
	f := newFixture(t)
	s := seller()
	mine := f.seedLead(t, "A", &s.ID)
	other := f.seedLead(t, "B", nil)
	day := time.Date(2026, 3, 5, 3, 0, 0, 0, time.UTC)
	f.record(t, mine.ID, enums.LeadStatusInterested, enums.LeadStatusAwaitingReactivation, nil, day)
	f.record(t, other.ID, enums.LeadStatusInterested, enums.LeadStatusAwaitingReactivation, nil, day)
	f.record(t, mine.ID, enums.LeadStatusAwaitingReactivation, enums.LeadStatusInterested, &s.ID, day.Add(time.Hour))

	stats, err := f.svc.ReactivationStats(context.Background(), StatsParams{}, admin())
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalReactivations)
	assert.Equal(t, 2, stats.ReactivationsByDate["2026-03-05"])

	stats, err = f.svc.ReactivationStats(context.Background(), StatsParams{}, s)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalReactivations)
}

func TestRecentJoinsLeadNameAndLimits(t *testing.T) {
	f := newFixture(t)
	s := seller()
	mine := f.seedLead(t, "Padaria Sol", &s.ID)
	other := f.seedLead(t, "Bar Lua", nil)

	f.record(t, mine.ID, enums.LeadStatusAvailable, enums.LeadStatusInAttendance, &s.ID, f.now.Add(-2*time.Hour))
	f.record(t, other.ID, enums.LeadStatusAvailable, enums.LeadStatusInAttendance, nil, f.now.Add(-1*time.Hour))
	f.record(t, mine.ID, enums.LeadStatusAvailable, enums.LeadStatusInAttendance, &s.ID, f.now.Add(-48*time.Hour))

	rows, err := f.svc.Recent(context.Background(), RecentParams{}, admin())
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "Bar Lua", rows[0].LeadName)
	assert.Equal(t, "Padaria Sol", rows[1].LeadName)

	rows, err = f.svc.Recent(context.Background(), RecentParams{Limit: 1}, admin())
	require.NoError(t, err)
	assert.Len(t, rows, 1)

	rows, err = f.svc.Recent(context.Background(), RecentParams{Hours: 72}, s)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	for _, row := range rows {
		assert.Equal(t, mine.ID, row.LeadID)
	}
}

func TestNewRecordNormalizesFields(t *testing.T) {
	at := time.Date(2026, 1, 1, 0, 0, 0, 0, time.FixedZone("BRT", -3*3600))
	rec := NewRecord(uuid.New(), "", enums.LeadStatusAvailable, nil, "  ", at)
	assert.Nil(t, rec.OldStatus)
	assert.Nil(t, rec.Notes)
	assert.Equal(t, time.UTC, rec.ChangedAt.Location())

	rec = NewRecord(uuid.New(), enums.LeadStatusAvailable, enums.LeadStatusInAttendance, nil, " ok ", at)
	require.NotNil(t, rec.OldStatus)
	assert.Equal(t, enums.LeadStatusAvailable, *rec.OldStatus)
	assert.Equal(t, "ok", *rec.Notes)
}
