package controllers

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ecolote/leadengine/api/middleware"
	"github.com/ecolote/leadengine/api/responses"
	"github.com/ecolote/leadengine/api/validators"
	"github.com/ecolote/leadengine/internal/leads"
	"github.com/ecolote/leadengine/pkg/enums"
	pkgerrors "github.com/ecolote/leadengine/pkg/errors"
	"github.com/ecolote/leadengine/pkg/logger"
	"github.com/ecolote/leadengine/pkg/pagination"
	"github.com/ecolote/leadengine/pkg/types"
)

func leadServiceUnavailable() error {
	return pkgerrors.New(pkgerrors.CodeInternal, "lead service unavailable")
}

func actorFromRequest(r *http.Request) (types.Actor, error) {
	actor, ok := middleware.ActorFromContext(r.Context())
	if !ok {
		return types.Actor{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "actor context missing")
	}
	return actor, nil
}

// Entries are validated one by one during ingest so a bad candidate only counts as failed.
type ingestRequest struct {
	Leads []leads.Candidate `json:"leads" validate:"required,min=1,max=500"`
}

// LeadIngest runs a batch of externally collected candidates through dedup and insert.
func LeadIngest(svc leads.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, leadServiceUnavailable())
			return
		}
		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload ingestRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Ingest(r.Context(), payload.Leads, actor)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}

type replenishRequest struct {
	City  string   `json:"city" validate:"omitempty,max=120"`
	State string   `json:"state" validate:"omitempty,max=60"`
	Terms []string `json:"terms" validate:"omitempty,max=50,dive,required,max=120"`
}

// LeadReplenish tops up lead types whose available pool is below threshold.
func LeadReplenish(svc leads.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, leadServiceUnavailable())
			return
		}
		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload replenishRequest
		if r.ContentLength != 0 {
			if err := validators.DecodeJSONBody(r, &payload); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
		}

		result, err := svc.Replenish(r.Context(), leads.ReplenishInput{
			City:  validators.SanitizeString(payload.City, 120),
			State: validators.SanitizeString(payload.State, 60),
			Terms: payload.Terms,
			Actor: actor,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// LeadListAvailable pages through unassigned leads, oldest first.
func LeadListAvailable(svc leads.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, leadServiceUnavailable())
			return
		}

		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		query := r.URL.Query()
		page, err := svc.ListAvailable(r.Context(), leads.ListParams{
			Type:   validators.SanitizeString(query.Get("type"), 120),
			Limit:  limit,
			Cursor: strings.TrimSpace(query.Get("cursor")),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, page)
	}
}

func LeadGet(svc leads.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, leadServiceUnavailable())
			return
		}
		leadID, err := validators.ParseURLUUID(r, "leadId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		lead, err := svc.GetByID(r.Context(), leadID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, lead)
	}
}

type assignRequest struct {
	SellerID *uuid.UUID `json:"seller_id,omitempty"`
}

// LeadAssign claims an available lead for the caller, or for another seller when the caller is an admin.
func LeadAssign(svc leads.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, leadServiceUnavailable())
			return
		}
		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		leadID, err := validators.ParseURLUUID(r, "leadId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload assignRequest
		if r.ContentLength != 0 {
			if err := validators.DecodeJSONBody(r, &payload); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
		}

		lead, err := svc.Assign(r.Context(), leads.AssignInput{
			LeadID:   leadID,
			SellerID: payload.SellerID,
			Actor:    actor,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, lead)
	}
}

func LeadStartAttendance(svc leads.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, leadServiceUnavailable())
			return
		}
		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		leadID, err := validators.ParseURLUUID(r, "leadId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		lead, err := svc.StartAttendance(r.Context(), leadID, actor)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, lead)
	}
}

type endAttendanceRequest struct {
	Status             string     `json:"status" validate:"required,lead_status"`
	ContactMethod      string     `json:"contact_method,omitempty" validate:"contact_method"`
	ContactSuccessful  *bool      `json:"contact_successful,omitempty"`
	Notes              string     `json:"notes,omitempty" validate:"max=4000"`
	InterestLevel      *int       `json:"interest_level,omitempty"`
	MeetingScheduledAt *time.Time `json:"meeting_scheduled_at,omitempty"`
	FollowUpDate       *time.Time `json:"follow_up_date,omitempty"`
	FollowUpNotes      string     `json:"follow_up_notes,omitempty" validate:"max=4000"`
}

func (p endAttendanceRequest) toOutcome() leads.Outcome {
	return leads.Outcome{
		Status:             enums.LeadStatus(strings.TrimSpace(p.Status)),
		ContactMethod:      enums.ContactMethod(strings.TrimSpace(p.ContactMethod)),
		ContactSuccessful:  p.ContactSuccessful,
		Notes:              strings.TrimSpace(p.Notes),
		InterestLevel:      p.InterestLevel,
		MeetingScheduledAt: p.MeetingScheduledAt,
		FollowUpDate:       p.FollowUpDate,
		FollowUpNotes:      strings.TrimSpace(p.FollowUpNotes),
	}
}

// LeadEndAttendance closes the caller's attendance with a seller outcome.
func LeadEndAttendance(svc leads.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, leadServiceUnavailable())
			return
		}
		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		leadID, err := validators.ParseURLUUID(r, "leadId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload endAttendanceRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		lead, err := svc.EndAttendance(r.Context(), leads.EndAttendanceInput{
			LeadID:  leadID,
			Actor:   actor,
			Outcome: payload.toOutcome(),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, lead)
	}
}

type updateStatusRequest struct {
	Status string `json:"status" validate:"required,lead_status"`
	Notes  string `json:"notes,omitempty" validate:"max=4000"`
}

// LeadUpdateStatus is the admin override for a lead's status.
func LeadUpdateStatus(svc leads.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, leadServiceUnavailable())
			return
		}
		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		leadID, err := validators.ParseURLUUID(r, "leadId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload updateStatusRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		lead, err := svc.UpdateStatus(r.Context(), leads.UpdateStatusInput{
			LeadID: leadID,
			Status: enums.LeadStatus(strings.TrimSpace(payload.Status)),
			Notes:  strings.TrimSpace(payload.Notes),
			Actor:  actor,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, lead)
	}
}
