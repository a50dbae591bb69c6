package leads

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/ecolote/leadengine/internal/history"
	"github.com/ecolote/leadengine/internal/notifications"
	"github.com/ecolote/leadengine/pkg/db/models"
	"github.com/ecolote/leadengine/pkg/enums"
	pkgerrors "github.com/ecolote/leadengine/pkg/errors"
	"github.com/ecolote/leadengine/pkg/logger"
	"github.com/ecolote/leadengine/pkg/metrics"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type publisher interface {
	Publish(ctx context.Context, event string, payload any)
}

// EngineParams wires the lifecycle engine.
type EngineParams struct {
	Leads     Repository
	History   history.Repository
	Tx        txRunner
	Publisher publisher
	Metrics   *metrics.LifecycleMetrics
	Logger    *logger.Logger
	Now       func() time.Time
}

// Engine applies guarded lead transitions together with their history record.
type Engine struct {
	leads     Repository
	history   history.Repository
	tx        txRunner
	publisher publisher
	metrics   *metrics.LifecycleMetrics
	logg      *logger.Logger
	now       func() time.Time
}

// Transition describes one compare-and-set on a lead.
type Transition struct {
	Operation string
	LeadID    uuid.UUID
	Guards    []Guard
	Updates   map[string]any
	From      enums.LeadStatus
	To        enums.LeadStatus
	ChangedBy *uuid.UUID
	Notes     string
	// RecordHistory appends a status history row in the same transaction.
	RecordHistory bool
	Event         enums.LeadEvent
}

func NewEngine(params EngineParams) (*Engine, error) {
	if params.Leads == nil {
		return nil, fmt.Errorf("leads repository required")
	}
	if params.History == nil {
		return nil, fmt.Errorf("history repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &Engine{
		leads:     params.Leads,
		history:   params.History,
		tx:        params.Tx,
		publisher: params.Publisher,
		metrics:   params.Metrics,
		logg:      params.Logger,
		now:       now,
	}, nil
}

// Now returns the engine clock in UTC.
func (e *Engine) Now() time.Time {
	return e.now().UTC()
}

// Leads exposes the repository for read paths.
func (e *Engine) Leads() Repository {
	return e.leads
}

// Load fetches a lead, mapping a missing row to NotFound.
func (e *Engine) Load(ctx context.Context, id uuid.UUID) (*models.Lead, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "lead id required")
	}
	lead, err := e.leads.Get(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "lead not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load lead")
	}
	return lead, nil
}

// Apply runs the guarded update and the history append in one transaction and
// publishes the change after commit. A guard miss is NotFound when the lead is
// gone and Conflict otherwise.
func (e *Engine) Apply(ctx context.Context, t Transition) (*models.Lead, error) {
	now := e.Now()
	updates := make(map[string]any, len(t.Updates)+1)
	for k, v := range t.Updates {
		updates[k] = v
	}
	updates["updated_at"] = now

	var updated *models.Lead
	err := e.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := e.leads.WithTx(tx)
		lead, err := repo.ConditionalUpdate(ctx, t.LeadID, t.Guards, updates)
		if err != nil {
			if !errors.Is(err, ErrNotMatched) {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update lead")
			}
			exists, existsErr := repo.Exists(ctx, t.LeadID)
			if existsErr != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, existsErr, "check lead")
			}
			if !exists {
				return pkgerrors.New(pkgerrors.CodeNotFound, "lead not found")
			}
			return pkgerrors.New(pkgerrors.CodeConflict, "lead state changed").
				WithDetails(map[string]any{"lead_id": t.LeadID, "expected_status": t.From})
		}

		if t.RecordHistory {
			record := history.NewRecord(t.LeadID, t.From, t.To, t.ChangedBy, t.Notes, now)
			if err := e.history.WithTx(tx).Append(ctx, &record); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append status history")
			}
		}
		updated = lead
		return nil
	})
	if err != nil {
		e.metrics.ObserveTransition(t.Operation, outcomeLabel(err))
		return nil, err
	}

	e.metrics.ObserveTransition(t.Operation, "ok")
	e.Notify(ctx, updated, t.Event, t.ChangedBy)
	return updated, nil
}

// BulkTransition moves every listed lead that still satisfies the guards.
// All leads are expected to share the From status.
type BulkTransition struct {
	LeadIDs   []uuid.UUID
	Guards    []Guard
	Updates   map[string]any
	From      enums.LeadStatus
	To        enums.LeadStatus
	ChangedBy *uuid.UUID
	Notes     string
}

// ApplyBulk runs every bulk transition in one transaction and appends one
// history record per updated lead. Leads that no longer match are skipped.
func (e *Engine) ApplyBulk(ctx context.Context, operation string, event enums.LeadEvent, batch []BulkTransition) ([]models.Lead, error) {
	now := e.Now()
	var updated []models.Lead
	err := e.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := e.leads.WithTx(tx)
		records := []models.LeadStatusHistory{}
		for _, t := range batch {
			updates := make(map[string]any, len(t.Updates)+1)
			for k, v := range t.Updates {
				updates[k] = v
			}
			updates["updated_at"] = now

			rows, err := repo.BulkConditionalUpdate(ctx, t.LeadIDs, t.Guards, updates)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "bulk update leads")
			}
			for _, row := range rows {
				records = append(records, history.NewRecord(row.ID, t.From, t.To, t.ChangedBy, t.Notes, now))
			}
			updated = append(updated, rows...)
		}
		if err := e.history.WithTx(tx).AppendBatch(ctx, records); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append status history")
		}
		return nil
	})
	if err != nil {
		e.metrics.ObserveTransition(operation, outcomeLabel(err))
		return nil, err
	}

	e.metrics.ObserveTransition(operation, "ok")
	for i := range updated {
		e.Notify(ctx, &updated[i], event, nil)
	}
	return updated, nil
}

// Notify publishes a leadUpdate event; delivery is best-effort.
func (e *Engine) Notify(ctx context.Context, lead *models.Lead, action enums.LeadEvent, actor *uuid.UUID) {
	if e.publisher == nil || lead == nil || action == "" {
		return
	}
	e.publisher.Publish(ctx, enums.EventLeadUpdate, notifications.LeadUpdate{
		LeadID:  lead.ID,
		Action:  action,
		Status:  lead.Status,
		ActorID: actor,
	})
}

func outcomeLabel(err error) string {
	switch pkgerrors.CodeOf(err) {
	case pkgerrors.CodeConflict:
		return "conflict"
	case pkgerrors.CodeNotFound:
		return "not_found"
	case pkgerrors.CodeValidation:
		return "invalid"
	default:
		return "error"
	}
}
