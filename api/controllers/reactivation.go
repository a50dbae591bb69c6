package controllers

import (
	"net/http"
	"strings"
	"time"

	"github.com/ecolote/leadengine/api/responses"
	"github.com/ecolote/leadengine/api/validators"
	"github.com/ecolote/leadengine/internal/reactivation"
	"github.com/ecolote/leadengine/pkg/enums"
	pkgerrors "github.com/ecolote/leadengine/pkg/errors"
	"github.com/ecolote/leadengine/pkg/logger"
)

func reactivationServiceUnavailable() error {
	return pkgerrors.New(pkgerrors.CodeInternal, "reactivation service unavailable")
}

// LeadProcessInactive runs the inactivity sweep on demand. Partial failures
// are reported in the result body rather than failing the request.
func LeadProcessInactive(svc reactivation.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, reactivationServiceUnavailable())
			return
		}

		result, err := svc.ProcessInactive(r.Context())
		if result == nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err != nil && logg != nil {
			logg.Warn(logg.WithField(r.Context(), "error", err.Error()), "reactivation sweep finished with errors")
		}
		responses.WriteSuccess(w, result)
	}
}

func LeadListAwaiting(svc reactivation.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, reactivationServiceUnavailable())
			return
		}
		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		rows, err := svc.ListAwaiting(r.Context(), actor)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, rows)
	}
}

type reactivateRequest struct {
	Status        string     `json:"status" validate:"required,lead_status"`
	Notes         string     `json:"notes,omitempty" validate:"max=4000"`
	FollowUpDate  *time.Time `json:"follow_up_date,omitempty"`
	FollowUpNotes string     `json:"follow_up_notes,omitempty" validate:"max=4000"`
}

func LeadReactivate(svc reactivation.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, reactivationServiceUnavailable())
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

		var payload reactivateRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		lead, err := svc.Reactivate(r.Context(), reactivation.ReactivateInput{
			LeadID:        leadID,
			Actor:         actor,
			Status:        enums.LeadStatus(strings.TrimSpace(payload.Status)),
			Notes:         strings.TrimSpace(payload.Notes),
			FollowUpDate:  payload.FollowUpDate,
			FollowUpNotes: strings.TrimSpace(payload.FollowUpNotes),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, lead)
	}
}

type discardRequest struct {
	Reason string `json:"reason" validate:"required"`
	Notes  string `json:"notes,omitempty" validate:"max=4000"`
}

func LeadDiscard(svc reactivation.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, reactivationServiceUnavailable())
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

		var payload discardRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		lead, err := svc.Discard(r.Context(), reactivation.DiscardInput{
			LeadID: leadID,
			Actor:  actor,
			Reason: enums.DiscardReason(strings.TrimSpace(payload.Reason)),
			Notes:  strings.TrimSpace(payload.Notes),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, lead)
	}
}

type extendDeadlineRequest struct {
	Days  int    `json:"days" validate:"required,min=1"`
	Notes string `json:"notes" validate:"required,max=4000"`
}

// LeadExtendDeadline pushes the reactivation due date out by one of the allowed day counts.
func LeadExtendDeadline(svc reactivation.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, reactivationServiceUnavailable())
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

		var payload extendDeadlineRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		lead, err := svc.ExtendDeadline(r.Context(), reactivation.ExtendInput{
			LeadID: leadID,
			Actor:  actor,
			Days:   payload.Days,
			Notes:  strings.TrimSpace(payload.Notes),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, lead)
	}
}
