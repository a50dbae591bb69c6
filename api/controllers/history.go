package controllers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/ecolote/leadengine/api/responses"
	"github.com/ecolote/leadengine/api/validators"
	"github.com/ecolote/leadengine/internal/history"
	pkgerrors "github.com/ecolote/leadengine/pkg/errors"
	"github.com/ecolote/leadengine/pkg/logger"
)

func historyServiceUnavailable() error {
	return pkgerrors.New(pkgerrors.CodeInternal, "history service unavailable")
}

// LeadHistory lists the status changes of one lead, newest first.
func LeadHistory(svc history.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, historyServiceUnavailable())
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

		rows, err := svc.ForLead(r.Context(), leadID, actor)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, rows)
	}
}

type bulkHistoryRequest struct {
	LeadIDs []uuid.UUID `json:"lead_ids" validate:"required,min=1"`
}

// HistoryBulk returns history keyed by lead id. Leads the caller cannot see are left out.
func HistoryBulk(svc history.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, historyServiceUnavailable())
			return
		}
		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload bulkHistoryRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		out, err := svc.Bulk(r.Context(), payload.LeadIDs, actor)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, out)
	}
}

func parseStatsParams(r *http.Request) (history.StatsParams, error) {
	from, err := validators.ParseQueryTime(r, "from")
	if err != nil {
		return history.StatsParams{}, err
	}
	to, err := validators.ParseQueryTime(r, "to")
	if err != nil {
		return history.StatsParams{}, err
	}
	userID, err := validators.ParseQueryUUID(r, "user_id")
	if err != nil {
		return history.StatsParams{}, err
	}
	return history.StatsParams{From: from, To: to, UserID: userID}, nil
}

func HistoryStats(svc history.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, historyServiceUnavailable())
			return
		}
		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		params, err := parseStatsParams(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		stats, err := svc.Stats(r.Context(), params, actor)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, stats)
	}
}

func HistoryReactivationStats(svc history.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, historyServiceUnavailable())
			return
		}
		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		params, err := parseStatsParams(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		stats, err := svc.ReactivationStats(r.Context(), params, actor)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, stats)
	}
}

// HistoryRecent lists the latest changes joined with lead names.
func HistoryRecent(svc history.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, historyServiceUnavailable())
			return
		}
		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		hours, err := validators.ParseQueryInt(r, "hours", history.DefaultRecentHours, 1, 24*30)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		limit, err := validators.ParseQueryInt(r, "limit", history.DefaultRecentLimit, 1, history.MaxRecentLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		rows, err := svc.Recent(r.Context(), history.RecentParams{Hours: hours, Limit: limit}, actor)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, rows)
	}
}
