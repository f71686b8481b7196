package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/martagiraldo/promptstash-backend/api/controllers"
	"github.com/martagiraldo/promptstash-backend/api/middleware"
	"github.com/martagiraldo/promptstash-backend/pkg/config"
	"github.com/martagiraldo/promptstash-backend/pkg/logger"
)

// Dependencies carries everything the router wires into handlers.
type Dependencies struct {
	Config        *config.Config
	Logger        *logger.Logger
	Usage         controllers.UsageService
	Subscriptions controllers.SubscriptionService
	Analytics     controllers.AnalyticsService
	Tiers         controllers.TierService
	Readiness     map[string]controllers.Pinger
}

// NewRouter assembles the HTTP surface. User routes require proxy-asserted
// identity; admin routes additionally require the admin actor role.
func NewRouter(deps Dependencies) http.Handler {
	cfg := deps.Config
	logg := deps.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	r.Get("/healthz", controllers.HealthLive(cfg))
	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, deps.Readiness))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Get("/tiers", controllers.TierList(deps.Tiers, logg))

		r.Group(func(r chi.Router) {
			r.Use(middleware.Identity(logg))

			r.Route("/usage", func(r chi.Router) {
				r.Get("/summary", controllers.UsageSummary(deps.Usage, logg))
				r.Get("/{metric}/check", controllers.UsageCheck(deps.Usage, logg))
				r.Post("/{metric}/consume", controllers.UsageConsume(deps.Usage, logg))
				r.Post("/{metric}/track", controllers.UsageTrack(deps.Usage, logg))
			})

			r.Route("/subscriptions", func(r chi.Router) {
				r.Get("/", controllers.SubscriptionHistory(deps.Subscriptions, logg))
				r.Get("/current", controllers.SubscriptionCurrent(deps.Subscriptions, logg))
				r.Post("/assign", controllers.SubscriptionAssign(deps.Subscriptions, logg))
				r.Post("/payment-success", controllers.SubscriptionPaymentSuccess(deps.Subscriptions, logg))
			})

			r.Route("/admin", func(r chi.Router) {
				r.Use(middleware.RequireAdmin(logg))

				r.Post("/users/{userID}/plan", controllers.AdminAssignPlan(deps.Subscriptions, logg))
				r.Route("/analytics", func(r chi.Router) {
					r.Get("/overview", controllers.AnalyticsOverview(deps.Analytics, logg))
					r.Get("/export", controllers.AnalyticsExport(deps.Analytics, logg))
					r.Get("/approaching-limits", controllers.AnalyticsApproachingLimits(deps.Analytics, logg))
				})
			})
		})
	})

	return r
}
