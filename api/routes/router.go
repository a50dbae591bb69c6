package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ecolote/leadengine/api/controllers"
	"github.com/ecolote/leadengine/api/middleware"
	"github.com/ecolote/leadengine/internal/history"
	"github.com/ecolote/leadengine/internal/leads"
	"github.com/ecolote/leadengine/internal/reactivation"
	"github.com/ecolote/leadengine/pkg/config"
	"github.com/ecolote/leadengine/pkg/enums"
	"github.com/ecolote/leadengine/pkg/logger"
)

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP controllers.Pinger,
	redisP controllers.Pinger,
	gatherer prometheus.Gatherer,
	leadService leads.Service,
	reactivationService reactivation.Service,
	historyService history.Service,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, map[string]controllers.Pinger{
			"db":    dbP,
			"redis": redisP,
		}))
	})

	if gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	ratePolicy := middleware.RateLimitPolicy{
		PerSecond: cfg.App.RateLimitPerSecond,
		Burst:     cfg.App.RateLimitBurst,
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.RateLimit(ratePolicy, logg))
		r.Use(middleware.Auth(cfg.JWT, logg))

		r.Route("/leads", func(r chi.Router) {
			r.Get("/", controllers.LeadListAvailable(leadService, logg))
			r.Get("/awaiting-reactivation", controllers.LeadListAwaiting(reactivationService, logg))

			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireRole(enums.ActorRoleAdmin, logg))
				r.Post("/ingest", controllers.LeadIngest(leadService, logg))
				r.Post("/replenish", controllers.LeadReplenish(leadService, logg))
				r.Post("/process-inactive", controllers.LeadProcessInactive(reactivationService, logg))
			})

			r.Route("/{leadId}", func(r chi.Router) {
				r.Use(middleware.LeadScope(logg))
				r.Get("/", controllers.LeadGet(leadService, logg))
				r.Put("/assign", controllers.LeadAssign(leadService, logg))
				r.Post("/attendance/start", controllers.LeadStartAttendance(leadService, logg))
				r.Post("/attendance/end", controllers.LeadEndAttendance(leadService, logg))
				r.With(middleware.RequireRole(enums.ActorRoleAdmin, logg)).Put("/status", controllers.LeadUpdateStatus(leadService, logg))
				r.Put("/reactivate", controllers.LeadReactivate(reactivationService, logg))
				r.Put("/discard", controllers.LeadDiscard(reactivationService, logg))
				r.Put("/extend-deadline", controllers.LeadExtendDeadline(reactivationService, logg))
				r.Get("/history", controllers.LeadHistory(historyService, logg))
			})
		})

		r.Route("/history", func(r chi.Router) {
			r.Post("/bulk", controllers.HistoryBulk(historyService, logg))
			r.Get("/stats", controllers.HistoryStats(historyService, logg))
			r.Get("/reactivation-stats", controllers.HistoryReactivationStats(historyService, logg))
			r.Get("/recent", controllers.HistoryRecent(historyService, logg))
		})
	})

	return r
}
