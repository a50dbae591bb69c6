package leads

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/ecolote/leadengine/internal/history"
	"github.com/ecolote/leadengine/internal/notifications"
	"github.com/ecolote/leadengine/pkg/db"
	"github.com/ecolote/leadengine/pkg/db/dbtest"
	"github.com/ecolote/leadengine/pkg/db/models"
	"github.com/ecolote/leadengine/pkg/enums"
	"github.com/ecolote/leadengine/pkg/logger"
	"github.com/ecolote/leadengine/pkg/types"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []notifications.LeadUpdate
}

func (p *recordingPublisher) Publish(_ context.Context, _ string, payload any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if update, ok := payload.(notifications.LeadUpdate); ok {
		p.events = append(p.events, update)
	}
}

func (p *recordingPublisher) actions() []enums.LeadEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]enums.LeadEvent, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Action)
	}
	return out
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	client    *db.Client
	clock     *clock
	engine    *Engine
	svc       Service
	history   history.Repository
	publisher *recordingPublisher
	now       time.Time
}

func newFixture(t *testing.T, source CandidateSource) *fixture {
	t.Helper()
	client := dbtest.Open(t)
	now := time.Date(2026, 5, 4, 15, 0, 0, 0, time.UTC)
	clk := &clock{now: now}
	pub := &recordingPublisher{}
	histRepo := history.NewRepository(client.DB())

	engine, err := NewEngine(EngineParams{
		Leads:     NewRepository(client.DB()),
		History:   histRepo,
		Tx:        client,
		Publisher: pub,
		Logger:    logger.Nop(),
		Now:       clk.Now,
	})
	require.NoError(t, err)

	svc, err := NewService(engine, IngestParams{
		Source:              source,
		PhoneRegion:         "BR",
		MinAvailablePerTerm: 2,
		FetchConcurrency:    2,
		DefaultCity:         "Campinas",
		DefaultState:        "SP",
	})
	require.NoError(t, err)

	return &fixture{client: client, clock: clk, engine: engine, svc: svc, history: histRepo, publisher: pub, now: now}
}

func (f *fixture) seed(t *testing.T, mutate func(*models.Lead)) models.Lead {
	t.Helper()
	lead := models.Lead{
		Name:             "Padaria Sol",
		FormattedAddress: "Rua A, 10, Centro",
		Type:             "bakery",
		Status:           enums.LeadStatusAvailable,
	}
	updated := f.now.Add(-time.Hour)
	lead.LastStatusUpdateAt = &updated
	if mutate != nil {
		mutate(&lead)
	}
	require.NoError(t, f.client.DB().Create(&lead).Error)
	return lead
}

// tick moves the clock forward so history rows get distinct timestamps.
func (f *fixture) tick() {
	f.clock.advance(time.Minute)
}

func (f *fixture) reload(t *testing.T, id uuid.UUID) models.Lead {
	t.Helper()
	var lead models.Lead
	require.NoError(t, f.client.DB().First(&lead, "id = ?", id).Error)
	return lead
}

func (f *fixture) historyFor(t *testing.T, id uuid.UUID) []models.LeadStatusHistory {
	t.Helper()
	rows, err := f.history.ListByLead(context.Background(), id)
	require.NoError(t, err)
	return rows
}

// requireConsistent checks the structural rules every stored lead must obey.
func requireConsistent(t *testing.T, lead models.Lead) {
	t.Helper()
	if lead.IsActiveAttendance {
		require.NotNil(t, lead.AttendedBy, "active attendance without attendee")
	}
	if lead.Status != enums.LeadStatusInAttendance {
		require.Nil(t, lead.AttendedBy, "attended_by set outside in_attendance (%s)", lead.Status)
		require.False(t, lead.IsActiveAttendance)
	}
	if lead.Status != enums.LeadStatusAvailable {
		require.NotNil(t, lead.AssignedTo, "assigned_to empty in %s", lead.Status)
	}
	if lead.Status == enums.LeadStatusAwaitingReactivation {
		require.NotNil(t, lead.ReactivationDueDate)
	} else {
		require.Nil(t, lead.ReactivationDueDate)
	}
}

func sellerActor() types.Actor { return types.Actor{ID: uuid.New(), Role: enums.ActorRoleSeller} }
func adminActor() types.Actor  { return types.Actor{ID: uuid.New(), Role: enums.ActorRoleAdmin} }

func ptr[T any](v T) *T { return &v }
