package leads

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/ecolote/leadengine/pkg/db/models"
	"github.com/ecolote/leadengine/pkg/enums"
	pkgerrors "github.com/ecolote/leadengine/pkg/errors"
	"github.com/ecolote/leadengine/pkg/pagination"
	"github.com/ecolote/leadengine/pkg/types"
)

const (
	minInterestLevel = 1
	maxInterestLevel = 5
)

// Service drives the lead lifecycle: claiming, attendance and admin overrides.
type Service interface {
	GetByID(ctx context.Context, leadID uuid.UUID) (*models.Lead, error)
	ListAvailable(ctx context.Context, params ListParams) (*types.Page[models.Lead], error)
	Assign(ctx context.Context, input AssignInput) (*models.Lead, error)
	StartAttendance(ctx context.Context, leadID uuid.UUID, actor types.Actor) (*models.Lead, error)
	EndAttendance(ctx context.Context, input EndAttendanceInput) (*models.Lead, error)
	UpdateStatus(ctx context.Context, input UpdateStatusInput) (*models.Lead, error)
	Ingest(ctx context.Context, batch []Candidate, actor types.Actor) (*IngestResult, error)
	Replenish(ctx context.Context, input ReplenishInput) (*ReplenishResult, error)
}

type service struct {
	engine    *Engine
	ingestion *ingester
}

// NewService builds the lead service on top of the lifecycle engine.
func NewService(engine *Engine, ingestParams IngestParams) (Service, error) {
	if engine == nil {
		return nil, fmt.Errorf("lifecycle engine required")
	}
	ing, err := newIngester(engine, ingestParams)
	if err != nil {
		return nil, err
	}
	return &service{engine: engine, ingestion: ing}, nil
}

func (s *service) GetByID(ctx context.Context, leadID uuid.UUID) (*models.Lead, error) {
	return s.engine.Load(ctx, leadID)
}

func (s *service) ListAvailable(ctx context.Context, params ListParams) (*types.Page[models.Lead], error) {
	query := ListQuery{Type: params.Type, Limit: params.Limit}
	if params.Cursor != "" {
		cursor, err := pagination.ParseCursor(params.Cursor)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
		}
		query.Cursor = cursor
	}

	rows, next, err := s.engine.Leads().ListAvailable(ctx, query)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list available leads")
	}
	page := &types.Page[models.Lead]{Items: rows}
	if page.Items == nil {
		page.Items = []models.Lead{}
	}
	if next != nil {
		page.Cursor = pagination.EncodeCursor(*next)
	}
	return page, nil
}

func (s *service) Assign(ctx context.Context, input AssignInput) (*models.Lead, error) {
	if input.LeadID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "lead id required")
	}
	if input.Actor.ID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "actor identity missing")
	}
	seller := input.Actor.ID
	if input.SellerID != nil && *input.SellerID != uuid.Nil {
		seller = *input.SellerID
	}
	if seller != input.Actor.ID && !input.Actor.IsAdmin() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only admins may assign leads to other sellers")
	}

	now := s.engine.Now()
	actorID := input.Actor.ID
	return s.engine.Apply(ctx, Transition{
		Operation: "assign",
		LeadID:    input.LeadID,
		Guards:    []Guard{StatusIs(enums.LeadStatusAvailable)},
		Updates: map[string]any{
			"status":                enums.LeadStatusInAttendance,
			"assigned_to":           seller,
			"assigned_at":           now,
			"last_status_update_at": now,
			"last_changed_by":       actorID,
		},
		From:          enums.LeadStatusAvailable,
		To:            enums.LeadStatusInAttendance,
		ChangedBy:     &actorID,
		RecordHistory: true,
		Event:         enums.LeadEventAssigned,
	})
}

func (s *service) StartAttendance(ctx context.Context, leadID uuid.UUID, actor types.Actor) (*models.Lead, error) {
	if actor.ID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "actor identity missing")
	}
	lead, err := s.engine.Load(ctx, leadID)
	if err != nil {
		return nil, err
	}
	if lead.Status.IsDiscarded() {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "lead has been discarded").
			WithDetails(map[string]any{"status": lead.Status})
	}
	if lead.IsActiveAttendance && lead.AttendedBy != nil && *lead.AttendedBy != actor.ID {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "lead is being attended by another seller")
	}
	if lead.AssignedTo != nil && *lead.AssignedTo != actor.ID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "lead is assigned to another seller")
	}

	now := s.engine.Now()
	actorID := actor.ID
	updates := map[string]any{
		"status":                enums.LeadStatusInAttendance,
		"attended_by":           actorID,
		"attended_at":           now,
		"is_active_attendance":  true,
		"reactivation_due_date": nil,
		"last_changed_by":       actorID,
	}
	guards := []Guard{
		StatusIs(lead.Status),
		{Query: "(is_active_attendance = ? OR attended_by = ?)", Args: []any{false, actorID}},
	}
	if lead.AssignedTo == nil {
		updates["assigned_to"] = actorID
		updates["assigned_at"] = now
		guards = append(guards, Guard{Query: "assigned_to IS NULL"})
	} else {
		guards = append(guards, AssignedTo(actorID))
	}
	changed := lead.Status != enums.LeadStatusInAttendance
	if changed {
		updates["last_status_update_at"] = now
	}

	return s.engine.Apply(ctx, Transition{
		Operation:     "start_attendance",
		LeadID:        lead.ID,
		Guards:        guards,
		Updates:       updates,
		From:          lead.Status,
		To:            enums.LeadStatusInAttendance,
		ChangedBy:     &actorID,
		RecordHistory: changed,
		Event:         enums.LeadEventAttendanceStarted,
	})
}

func (s *service) EndAttendance(ctx context.Context, input EndAttendanceInput) (*models.Lead, error) {
	if input.Actor.ID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "actor identity missing")
	}
	if err := validateOutcome(input.Outcome); err != nil {
		return nil, err
	}
	lead, err := s.engine.Load(ctx, input.LeadID)
	if err != nil {
		return nil, err
	}
	actorID := input.Actor.ID
	if !lead.IsActiveAttendance || lead.AttendedBy == nil || *lead.AttendedBy != actorID {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "lead is not being attended by this seller")
	}

	now := s.engine.Now()
	outcome := input.Outcome
	event := types.ContactEvent{
		At:      now,
		Method:  outcome.ContactMethod,
		Notes:   strings.TrimSpace(outcome.Notes),
		ActorID: actorID,
		Status:  outcome.Status,
	}
	if outcome.ContactSuccessful != nil {
		event.Successful = *outcome.ContactSuccessful
	}

	updates := map[string]any{
		"status":                outcome.Status,
		"attended_by":           nil,
		"attended_at":           nil,
		"is_active_attendance":  false,
		"contact_attempts":      lead.ContactAttempts + 1,
		"contact_history":       lead.ContactHistory.Append(event),
		"last_contact_at":       now,
		"last_contact_notes":    nullableString(outcome.Notes),
		"contact_successful":    outcome.ContactSuccessful,
		"interest_level":        outcome.InterestLevel,
		"meeting_scheduled_at":  outcome.MeetingScheduledAt,
		"follow_up_date":        toDate(outcome.FollowUpDate),
		"follow_up_notes":       nullableString(outcome.FollowUpNotes),
		"last_status_update_at": now,
		"last_changed_by":       actorID,
	}
	if outcome.ContactMethod != "" {
		updates["last_contact_method"] = outcome.ContactMethod
	} else {
		updates["last_contact_method"] = nil
	}

	return s.engine.Apply(ctx, Transition{
		Operation: "end_attendance",
		LeadID:    lead.ID,
		Guards: []Guard{
			StatusIs(enums.LeadStatusInAttendance),
			{Query: "is_active_attendance = ? AND attended_by = ?", Args: []any{true, actorID}},
			{Query: "contact_attempts = ?", Args: []any{lead.ContactAttempts}},
		},
		Updates:       updates,
		From:          enums.LeadStatusInAttendance,
		To:            outcome.Status,
		ChangedBy:     &actorID,
		Notes:         outcome.Notes,
		RecordHistory: true,
		Event:         enums.LeadEventAttendanceEnded,
	})
}

func (s *service) UpdateStatus(ctx context.Context, input UpdateStatusInput) (*models.Lead, error) {
	if !input.Actor.IsAdmin() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "admin role required")
	}
	if !input.Status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid status").
			WithDetails(map[string]any{"status": input.Status})
	}
	if input.Status == enums.LeadStatusInAttendance || input.Status == enums.LeadStatusAwaitingReactivation {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "status is managed by the attendance cycle").
			WithDetails(map[string]any{"status": input.Status})
	}

	lead, err := s.engine.Load(ctx, input.LeadID)
	if err != nil {
		return nil, err
	}

	now := s.engine.Now()
	actorID := input.Actor.ID
	updates := map[string]any{
		"status":                input.Status,
		"attended_by":           nil,
		"attended_at":           nil,
		"is_active_attendance":  false,
		"reactivation_due_date": nil,
		"last_status_update_at": now,
		"last_changed_by":       actorID,
	}
	guards := []Guard{StatusIs(lead.Status)}

	switch {
	case input.Status == enums.LeadStatusAvailable:
		updates["assigned_to"] = nil
		updates["assigned_at"] = nil
	default:
		if lead.AssignedTo == nil {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "lead must be assigned before leaving available").
				WithDetails(map[string]any{"status": input.Status})
		}
		guards = append(guards, Guard{Query: "assigned_to IS NOT NULL"})
	}
	updates["discard_reason"] = nil
	switch input.Status {
	case enums.LeadStatusDiscardedInactivity:
		updates["discard_reason"] = enums.DiscardReasonInactivity.String()
	case enums.LeadStatusDiscardedNoInterest:
		updates["discard_reason"] = enums.DiscardReasonNoInterest.String()
	}

	return s.engine.Apply(ctx, Transition{
		Operation:     "update_status",
		LeadID:        lead.ID,
		Guards:        guards,
		Updates:       updates,
		From:          lead.Status,
		To:            input.Status,
		ChangedBy:     &actorID,
		Notes:         input.Notes,
		RecordHistory: true,
		Event:         enums.LeadEventStatusUpdated,
	})
}

func (s *service) Ingest(ctx context.Context, batch []Candidate, actor types.Actor) (*IngestResult, error) {
	return s.ingestion.Ingest(ctx, batch, actor)
}

func (s *service) Replenish(ctx context.Context, input ReplenishInput) (*ReplenishResult, error) {
	return s.ingestion.Replenish(ctx, input)
}

func validateOutcome(outcome Outcome) error {
	if !outcome.Status.IsOutcome() {
		return pkgerrors.New(pkgerrors.CodeValidation, "status must be a seller outcome").
			WithDetails(map[string]any{"status": outcome.Status, "allowed": enums.OutcomeStatuses()})
	}
	if outcome.ContactMethod != "" && !outcome.ContactMethod.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid contact method").
			WithDetails(map[string]any{"contact_method": outcome.ContactMethod})
	}
	if outcome.InterestLevel != nil && (*outcome.InterestLevel < minInterestLevel || *outcome.InterestLevel > maxInterestLevel) {
		return pkgerrors.New(pkgerrors.CodeValidation, "interest level must be between 1 and 5")
	}
	return nil
}

func nullableString(value string) *string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

// toDate truncates a timestamp to its UTC calendar day.
func toDate(value *time.Time) *datatypes.Date {
	if value == nil {
		return nil
	}
	day := DateOf(*value)
	return &day
}

// DateOf returns the UTC calendar day of t.
func DateOf(t time.Time) datatypes.Date {
	y, m, d := t.UTC().Date()
	return datatypes.Date(time.Date(y, m, d, 0, 0, 0, 0, time.UTC))
}
