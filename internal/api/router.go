/**
 * @description
 * This file sets up the HTTP router for the mealplan-service using the go-chi/chi router.
 * It applies middleware for logging, CORS, metrics and authentication, and maps
 * the routes to their handler functions.
 */
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// RouterConfig carries the router-level settings.
type RouterConfig struct {
	Auth           AuthConfig
	AllowedOrigins []string
}

// NewRouter creates a new Chi router and registers the mealplan-service routes.
func NewRouter(h *Handler, webhook *WebhookHandler, metrics *Metrics, cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"https://*", "http://*"}
	}

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	if metrics != nil {
		r.Use(metrics.Middleware)
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token", headerClerkUserID, headerUserEmail},
		ExposedHeaders:   []string{"Link", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("Mealplan service is healthy"))
	})
	if metrics != nil {
		r.Method(http.MethodGet, "/metrics", metrics.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/plans", h.handleListPlans)
		r.Post("/checkout", h.handleCheckout)
		r.Method(http.MethodPost, "/webhook", webhook)

		r.Group(func(r chi.Router) {
			r.Use(ClerkAuthMiddleware(cfg.Auth))

			r.Post("/create-profile", h.handleCreateProfile)
			r.Get("/profile/subscription-status", h.handleSubscriptionStatus)
			r.Post("/profile/change-plan", h.handleChangePlan)
			r.Post("/profile/unsubscribe", h.handleUnsubscribe)
			r.Post("/generate-mealplan", h.handleGenerateMealPlan)
		})
	})

	return r
}
