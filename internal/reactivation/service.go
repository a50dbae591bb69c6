package reactivation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/ecolote/leadengine/internal/leads"
	"github.com/ecolote/leadengine/pkg/db/models"
	"github.com/ecolote/leadengine/pkg/enums"
	pkgerrors "github.com/ecolote/leadengine/pkg/errors"
	"github.com/ecolote/leadengine/pkg/logger"
	"github.com/ecolote/leadengine/pkg/types"
)

const (
	defaultInactivityDays   = 30
	defaultReactivationDays = 30
	defaultBatchSize        = 100

	sweepOperation = "reactivation_sweep"
)

// Service moves stalled leads into awaiting_reactivation and lets their
// sellers pick them back up, discard them, or buy more time.
type Service interface {
	ProcessInactive(ctx context.Context) (*SweepResult, error)
	Reactivate(ctx context.Context, input ReactivateInput) (*models.Lead, error)
	Discard(ctx context.Context, input DiscardInput) (*models.Lead, error)
	ExtendDeadline(ctx context.Context, input ExtendInput) (*models.Lead, error)
	ListAwaiting(ctx context.Context, actor types.Actor) ([]models.Lead, error)
}

// ServiceParams wires the reactivation service.
type ServiceParams struct {
	Engine           *leads.Engine
	Logger           *logger.Logger
	InactivityDays   int
	ReactivationDays int
	BatchSize        int
	ExtensionDays    []int
}

type service struct {
	engine           *leads.Engine
	logg             *logger.Logger
	inactivityDays   int
	reactivationDays int
	batchSize        int
	extensionDays    []int
}

func NewService(params ServiceParams) (Service, error) {
	if params.Engine == nil {
		return nil, fmt.Errorf("lifecycle engine required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if len(params.ExtensionDays) == 0 {
		return nil, fmt.Errorf("extension days required")
	}
	svc := &service{
		engine:           params.Engine,
		logg:             params.Logger,
		inactivityDays:   params.InactivityDays,
		reactivationDays: params.ReactivationDays,
		batchSize:        params.BatchSize,
		extensionDays:    append([]int(nil), params.ExtensionDays...),
	}
	if svc.inactivityDays <= 0 {
		svc.inactivityDays = defaultInactivityDays
	}
	if svc.reactivationDays <= 0 {
		svc.reactivationDays = defaultReactivationDays
	}
	if svc.batchSize <= 0 {
		svc.batchSize = defaultBatchSize
	}
	return svc, nil
}

// ProcessInactive sweeps leads whose status has not moved within the
// inactivity window. Each chunk commits on its own; when a chunk fails its
// leads are retried one at a time and only the ones that still fail are
// reported.
func (s *service) ProcessInactive(ctx context.Context) (*SweepResult, error) {
	now := s.engine.Now()
	cutoff := now.Add(-time.Duration(s.inactivityDays) * 24 * time.Hour)
	stalledStatuses := enums.StalledStatuses()

	candidates, err := s.engine.Leads().Stalled(ctx, stalledStatuses, cutoff)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "select stalled leads")
	}

	result := &SweepResult{Leads: []uuid.UUID{}}
	due := leads.DateOf(now.AddDate(0, 0, s.reactivationDays))
	systemActor := models.SystemActorID
	var errs error

	for start := 0; start < len(candidates); start += s.batchSize {
		if err := ctx.Err(); err != nil {
			errs = multierr.Append(errs, err)
			break
		}
		end := min(start+s.batchSize, len(candidates))
		chunk := candidates[start:end]
		result.Processed += len(chunk)

		updates := map[string]any{
			"status":                enums.LeadStatusAwaitingReactivation,
			"reactivation_due_date": due,
			"attended_by":           nil,
			"attended_at":           nil,
			"is_active_attendance":  false,
			"last_status_update_at": now,
			"last_changed_by":       systemActor,
		}

		updated, err := s.engine.ApplyBulk(ctx, sweepOperation, enums.LeadEventAwaitingReactivate, sweepTransitions(chunk, updates, cutoff))
		if err != nil {
			s.logg.Warn(s.logg.WithFields(ctx, map[string]any{
				"chunk_start": start,
				"error":       err.Error(),
			}), "reactivation chunk failed, retrying lead by lead")
			var chunkErr error
			updated, chunkErr = s.sweepEach(ctx, chunk, updates, cutoff, result)
			errs = multierr.Append(errs, chunkErr)
		}
		result.Updated += len(updated)
		for _, lead := range updated {
			result.Leads = append(result.Leads, lead.ID)
		}
	}

	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"processed": result.Processed,
		"updated":   result.Updated,
		"failed":    result.Failed,
	}), "reactivation sweep finished")
	return result, errs
}

// sweepEach applies the sweep to one lead per transaction so a single bad
// row only fails itself.
func (s *service) sweepEach(ctx context.Context, chunk []leads.StalledLead, updates map[string]any, cutoff time.Time, result *SweepResult) ([]models.Lead, error) {
	var (
		updated []models.Lead
		errs    error
	)
	for _, candidate := range chunk {
		rows, err := s.engine.ApplyBulk(ctx, sweepOperation, enums.LeadEventAwaitingReactivate, sweepTransitions([]leads.StalledLead{candidate}, updates, cutoff))
		if err != nil {
			result.Failed++
			errs = multierr.Append(errs, fmt.Errorf("lead %s: %w", candidate.ID, err))
			s.logg.Error(s.logg.WithField(ctx, "lead_id", candidate.ID.String()), "reactivation sweep failed for lead", err)
			continue
		}
		updated = append(updated, rows...)
	}
	return updated, errs
}

func sweepTransitions(chunk []leads.StalledLead, updates map[string]any, cutoff time.Time) []leads.BulkTransition {
	batch := make([]leads.BulkTransition, 0, 2)
	for _, group := range groupByStatus(chunk) {
		batch = append(batch, leads.BulkTransition{
			LeadIDs: group.ids,
			Guards: []leads.Guard{
				leads.StatusIs(group.status),
				{Query: "last_status_update_at < ?", Args: []any{cutoff}},
			},
			Updates: updates,
			From:    group.status,
			To:      enums.LeadStatusAwaitingReactivation,
		})
	}
	return batch
}

func (s *service) Reactivate(ctx context.Context, input ReactivateInput) (*models.Lead, error) {
	if err := requireActor(input.Actor); err != nil {
		return nil, err
	}
	if input.Status != enums.LeadStatusInAttendance && !input.Status.IsOutcome() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "status must be in_attendance or a seller outcome").
			WithDetails(map[string]any{"status": input.Status})
	}

	now := s.engine.Now()
	actorID := input.Actor.ID
	updates := map[string]any{
		"status":                input.Status,
		"reactivation_due_date": nil,
		"reactivation_notes":    nullableString(input.Notes),
		"last_status_update_at": now,
		"last_changed_by":       actorID,
	}
	if input.Status == enums.LeadStatusInAttendance {
		updates["attended_by"] = actorID
		updates["attended_at"] = now
		updates["is_active_attendance"] = true
	}
	if input.FollowUpDate != nil {
		updates["follow_up_date"] = leads.DateOf(*input.FollowUpDate)
	}
	if notes := nullableString(input.FollowUpNotes); notes != nil {
		updates["follow_up_notes"] = notes
	}

	return s.engine.Apply(ctx, leads.Transition{
		Operation:     "reactivate",
		LeadID:        input.LeadID,
		Guards:        awaitingGuards(actorID),
		Updates:       updates,
		From:          enums.LeadStatusAwaitingReactivation,
		To:            input.Status,
		ChangedBy:     &actorID,
		Notes:         input.Notes,
		RecordHistory: true,
		Event:         enums.LeadEventReactivated,
	})
}

func (s *service) Discard(ctx context.Context, input DiscardInput) (*models.Lead, error) {
	if err := requireActor(input.Actor); err != nil {
		return nil, err
	}
	if !input.Reason.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid discard reason").
			WithDetails(map[string]any{"reason": input.Reason})
	}

	now := s.engine.Now()
	actorID := input.Actor.ID
	target := input.Reason.Status()
	return s.engine.Apply(ctx, leads.Transition{
		Operation: "discard",
		LeadID:    input.LeadID,
		Guards:    awaitingGuards(actorID),
		Updates: map[string]any{
			"status":                target,
			"discard_reason":        input.Reason.String(),
			"attended_by":           nil,
			"attended_at":           nil,
			"is_active_attendance":  false,
			"reactivation_due_date": nil,
			"reactivation_notes":    nullableString(input.Notes),
			"last_status_update_at": now,
			"last_changed_by":       actorID,
		},
		From:          enums.LeadStatusAwaitingReactivation,
		To:            target,
		ChangedBy:     &actorID,
		Notes:         input.Notes,
		RecordHistory: true,
		Event:         enums.LeadEventDiscarded,
	})
}

// ExtendDeadline pushes the due date out without changing status, so no
// history record is written.
func (s *service) ExtendDeadline(ctx context.Context, input ExtendInput) (*models.Lead, error) {
	if err := requireActor(input.Actor); err != nil {
		return nil, err
	}
	notes := strings.TrimSpace(input.Notes)
	if notes == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "notes are required to extend a deadline")
	}
	if !s.allowedExtension(input.Days) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "extension days not allowed").
			WithDetails(map[string]any{"days": input.Days, "allowed": s.extensionDays})
	}

	actorID := input.Actor.ID
	due := leads.DateOf(s.engine.Now().AddDate(0, 0, input.Days))
	return s.engine.Apply(ctx, leads.Transition{
		Operation: "extend_deadline",
		LeadID:    input.LeadID,
		Guards:    awaitingGuards(actorID),
		Updates: map[string]any{
			"reactivation_due_date": due,
			"reactivation_notes":    notes,
			"last_changed_by":       actorID,
		},
		From:      enums.LeadStatusAwaitingReactivation,
		To:        enums.LeadStatusAwaitingReactivation,
		ChangedBy: &actorID,
		Event:     enums.LeadEventDeadlineExtended,
	})
}

func (s *service) ListAwaiting(ctx context.Context, actor types.Actor) ([]models.Lead, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	rows, err := s.engine.Leads().ListAwaiting(ctx, actor.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list awaiting leads")
	}
	if rows == nil {
		rows = []models.Lead{}
	}
	return rows, nil
}

func (s *service) allowedExtension(days int) bool {
	for _, allowed := range s.extensionDays {
		if allowed == days {
			return true
		}
	}
	return false
}

func awaitingGuards(actorID uuid.UUID) []leads.Guard {
	return []leads.Guard{
		leads.StatusIs(enums.LeadStatusAwaitingReactivation),
		leads.AssignedTo(actorID),
	}
}

type statusGroup struct {
	status enums.LeadStatus
	ids    []uuid.UUID
}

// groupByStatus keeps first-seen order so each chunk produces stable SQL.
func groupByStatus(chunk []leads.StalledLead) []statusGroup {
	index := map[enums.LeadStatus]int{}
	groups := []statusGroup{}
	for _, lead := range chunk {
		pos, ok := index[lead.Status]
		if !ok {
			pos = len(groups)
			index[lead.Status] = pos
			groups = append(groups, statusGroup{status: lead.Status})
		}
		groups[pos].ids = append(groups[pos].ids, lead.ID)
	}
	return groups
}

func requireActor(actor types.Actor) error {
	if actor.ID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "actor identity missing")
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
