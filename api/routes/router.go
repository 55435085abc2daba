package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mediavault/mediavault-backend/api/controllers"
	webhookcontrollers "github.com/mediavault/mediavault-backend/api/controllers/webhooks"
	"github.com/mediavault/mediavault-backend/api/middleware"
	"github.com/mediavault/mediavault-backend/internal/webhooks"
	"github.com/mediavault/mediavault-backend/pkg/config"
	"github.com/mediavault/mediavault-backend/pkg/enums"
	"github.com/mediavault/mediavault-backend/pkg/logger"
)

// RouterParams carry the wired dependencies for the API surface.
type RouterParams struct {
	Config         *config.Config
	Logger         *logger.Logger
	DB             controllers.Pinger
	Redis          controllers.Pinger
	WebhookService webhooks.Service
}

func NewRouter(params RouterParams) http.Handler {
	cfg := params.Config
	logg := params.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, params.DB, params.Redis))
	})

	r.Handle("/metrics", promhttp.Handler())

	// Inbound signature check endpoint, unauthenticated like any external
	// webhook receiver would be.
	r.Post("/api/v1/webhooks/receive", webhookcontrollers.Receive(
		webhookcontrollers.StaticSecret(cfg.Webhooks.SigningSecret), logg))

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))

		r.Route("/webhooks/subscriptions", func(r chi.Router) {
			r.Post("/", controllers.CreateWebhookSubscription(params.WebhookService, logg))
			r.Get("/", controllers.ListWebhookSubscriptions(params.WebhookService, logg))
			r.Patch("/{subscriptionID}", controllers.UpdateWebhookSubscription(params.WebhookService, logg))
			r.Delete("/{subscriptionID}", controllers.DeleteWebhookSubscription(params.WebhookService, logg))
			r.Post("/{subscriptionID}/test", controllers.SendWebhookTestEvent(params.WebhookService, logg))
		})

		r.Route("/admin/webhooks", func(r chi.Router) {
			r.Use(middleware.RequireRole(string(enums.MemberRoleAdmin), logg))
			r.Post("/events", controllers.EmitWebhookEvent(params.WebhookService, logg))
			r.Get("/events", controllers.ListWebhookEvents(params.WebhookService, logg))
			r.Get("/events/{eventID}", controllers.GetWebhookEvent(params.WebhookService, logg))
			r.Get("/stats", controllers.WebhookStats(params.WebhookService, logg))
		})
	})

	return r
}
