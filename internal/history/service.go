package history

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ecolote/leadengine/pkg/db/models"
	"github.com/ecolote/leadengine/pkg/enums"
	pkgerrors "github.com/ecolote/leadengine/pkg/errors"
	"github.com/ecolote/leadengine/pkg/types"
)

const (
	MaxBulkLeads       = 100
	DefaultRecentHours = 24
	DefaultRecentLimit = 50
	MaxRecentLimit     = 200

	systemActorKey = "system"
	dateLayout     = "2006-01-02"
)

// Service exposes read access to the status history with per-actor filtering.
type Service interface {
	ForLead(ctx context.Context, leadID uuid.UUID, actor types.Actor) ([]models.LeadStatusHistory, error)
	Bulk(ctx context.Context, leadIDs []uuid.UUID, actor types.Actor) (map[uuid.UUID][]models.LeadStatusHistory, error)
	Stats(ctx context.Context, params StatsParams, actor types.Actor) (*Stats, error)
	ReactivationStats(ctx context.Context, params StatsParams, actor types.Actor) (*ReactivationStats, error)
	Recent(ctx context.Context, params RecentParams, actor types.Actor) ([]RecentEntry, error)
}

// StatsParams bounds an aggregation window. UserID is ignored for sellers.
type StatsParams struct {
	From   *time.Time
	To     *time.Time
	UserID *uuid.UUID
}

// Stats summarizes status changes over a window.
type Stats struct {
	TotalChanges int            `json:"total_changes"`
	ByStatus     map[string]int `json:"by_status"`
	ByDate       map[string]int `json:"by_date"`
	ByUser       map[string]int `json:"by_user"`
}

// ReactivationStats counts transitions into awaiting_reactivation.
type ReactivationStats struct {
	TotalReactivations  int            `json:"total_reactivations"`
	ReactivationsByDate map[string]int `json:"reactivations_by_date"`
}

type RecentParams struct {
	Hours int
	Limit int
}

type service struct {
	repo Repository
	now  func() time.Time
}

func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("history repository required")
	}
	return &service{repo: repo, now: time.Now}, nil
}

func (s *service) ForLead(ctx context.Context, leadID uuid.UUID, actor types.Actor) ([]models.LeadStatusHistory, error) {
	if leadID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "lead id required")
	}
	assignees, err := s.repo.LeadAssignees(ctx, []uuid.UUID{leadID})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load lead")
	}
	assignedTo, ok := assignees[leadID]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "lead not found")
	}
	if !actor.CanAccess(assignedTo) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "lead not accessible")
	}

	rows, err := s.repo.ListByLead(ctx, leadID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list lead history")
	}
	return rows, nil
}

func (s *service) Bulk(ctx context.Context, leadIDs []uuid.UUID, actor types.Actor) (map[uuid.UUID][]models.LeadStatusHistory, error) {
	ids := dedupeIDs(leadIDs)
	if len(ids) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "lead_ids required")
	}
	if len(ids) > MaxBulkLeads {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("at most %d lead ids allowed", MaxBulkLeads)).
			WithDetails(map[string]any{"count": len(ids)})
	}

	assignees, err := s.repo.LeadAssignees(ctx, ids)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load leads")
	}
	allowed := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		assignedTo, ok := assignees[id]
		if ok && actor.CanAccess(assignedTo) {
			allowed = append(allowed, id)
		}
	}

	out := make(map[uuid.UUID][]models.LeadStatusHistory, len(allowed))
	for _, id := range allowed {
		out[id] = []models.LeadStatusHistory{}
	}
	rows, err := s.repo.ListByLeads(ctx, allowed)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list lead history")
	}
	for _, row := range rows {
		out[row.LeadID] = append(out[row.LeadID], row)
	}
	return out, nil
}

func (s *service) Stats(ctx context.Context, params StatsParams, actor types.Actor) (*Stats, error) {
	if err := validateWindow(params); err != nil {
		return nil, err
	}
	query := WindowQuery{From: params.From, To: params.To, ChangedBy: params.UserID}
	if !actor.IsAdmin() {
		id := actor.ID
		query.ChangedBy = &id
	}

	rows, err := s.repo.Window(ctx, query)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load history window")
	}

	stats := &Stats{
		TotalChanges: len(rows),
		ByStatus:     map[string]int{},
		ByDate:       map[string]int{},
		ByUser:       map[string]int{},
	}
	for _, row := range rows {
		stats.ByStatus[row.NewStatus.String()]++
		stats.ByDate[row.ChangedAt.UTC().Format(dateLayout)]++
		user := systemActorKey
		if row.ChangedBy != nil {
			user = row.ChangedBy.String()
		}
		stats.ByUser[user]++
	}
	return stats, nil
}

func (s *service) ReactivationStats(ctx context.Context, params StatsParams, actor types.Actor) (*ReactivationStats, error) {
	if err := validateWindow(params); err != nil {
		return nil, err
	}
	status := enums.LeadStatusAwaitingReactivation
	query := WindowQuery{From: params.From, To: params.To, NewStatus: &status, AssignedTo: params.UserID}
	if !actor.IsAdmin() {
		id := actor.ID
		query.AssignedTo = &id
	}

	rows, err := s.repo.Window(ctx, query)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load reactivation window")
	}
	stats := &ReactivationStats{
		TotalReactivations:  len(rows),
		ReactivationsByDate: map[string]int{},
	}
	for _, row := range rows {
		stats.ReactivationsByDate[row.ChangedAt.UTC().Format(dateLayout)]++
	}
	return stats, nil
}

func (s *service) Recent(ctx context.Context, params RecentParams, actor types.Actor) ([]RecentEntry, error) {
	hours := params.Hours
	if hours <= 0 {
		hours = DefaultRecentHours
	}
	limit := params.Limit
	if limit <= 0 {
		limit = DefaultRecentLimit
	}
	if limit > MaxRecentLimit {
		limit = MaxRecentLimit
	}

	query := RecentQuery{
		Since: s.now().UTC().Add(-time.Duration(hours) * time.Hour),
		Limit: limit,
	}
	if !actor.IsAdmin() {
		id := actor.ID
		query.AssignedTo = &id
	}

	rows, err := s.repo.Recent(ctx, query)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load recent history")
	}
	if rows == nil {
		rows = []RecentEntry{}
	}
	return rows, nil
}

func validateWindow(params StatsParams) error {
	if params.From != nil && params.To != nil && params.To.Before(*params.From) {
		return pkgerrors.New(pkgerrors.CodeValidation, "to must not be before from")
	}
	return nil
}

func dedupeIDs(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if id == uuid.Nil {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
