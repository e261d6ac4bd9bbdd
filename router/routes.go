package router

import (
	"github.com/akoun-dev/montoit-sub002/handler"
	"github.com/akoun-dev/montoit-sub002/infra/middle"
	"github.com/go-chi/chi/v5"

	// Import for side-effect registration
	_ "github.com/akoun-dev/montoit-sub002/provider/mtn"
	_ "github.com/akoun-dev/montoit-sub002/provider/orange"
	_ "github.com/akoun-dev/montoit-sub002/provider/wave"
)

// Handlers bundles the HTTP handlers the router wires up.
type Handlers struct {
	Webhook   *handler.WebhookHandler
	Notify    *handler.NotifyHandler
	Providers *handler.ProvidersHandler
	Health    *handler.HealthHandler
}

// Routes mounts the API. Webhook endpoints authenticate with their own
// per-channel signatures, so the API-key middleware only guards the
// notify and admin surfaces.
func Routes(r chi.Router, h Handlers) {
	r.Get("/health", h.Health.Check)

	r.Route("/v1", func(r chi.Router) {
		r.Route("/webhooks", func(r chi.Router) {
			r.Post("/payments/{provider}", h.Webhook.HandlePaymentWebhook)
		})

		r.Group(func(r chi.Router) {
			r.Use(middle.AuthMiddleware())

			r.Post("/notify/{capability}", h.Notify.SendNotification)

			r.Route("/admin", func(r chi.Router) {
				r.Get("/providers/{capability}", h.Providers.ListProviders)
				r.Put("/providers", h.Providers.UpsertProvider)
				r.Patch("/providers/{capability}/{name}/enabled", h.Providers.SetProviderEnabled)
				r.Patch("/providers/{capability}/{name}/priority", h.Providers.SetProviderPriority)
				r.Post("/providers/{capability}/optimize-costs", h.Providers.OptimizeCosts)
				r.Get("/health/failing", h.Providers.FailingProviders)
				r.Get("/webhook-logs", h.Providers.RecentWebhookLogs)
			})
		})
	})
}
