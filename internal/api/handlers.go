/**
 * @description
 * This file contains the HTTP handler functions for the mealplan-service.
 * Handlers parse the request, call the service layer and write the JSON
 * response. Error bodies are always {"error": "..."}.
 */
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/mealplanner/mealplan-service/internal/app"
	"github.com/mealplanner/mealplan-service/internal/domain"
	"github.com/mealplanner/mealplan-service/internal/plans"
	"github.com/mealplanner/mealplan-service/pkg/billing"
)

const maxJSONBodyBytes = 16 << 10

// ProfileService is the profile and subscription management the handlers use.
type ProfileService interface {
	EnsureProfile(ctx context.Context, userID, email string) (bool, error)
	GetSubscriptionStatus(ctx context.Context, userID string) (*domain.SubscriptionStatus, error)
	ChangePlan(ctx context.Context, userID, newPlan string) (*domain.Profile, error)
	Unsubscribe(ctx context.Context, userID string) (*billing.Subscription, error)
}

// CheckoutStarter creates hosted checkout sessions.
type CheckoutStarter interface {
	Checkout(ctx context.Context, req app.CheckoutRequest) (string, error)
}

// MealPlanGenerator produces meal plans for a user.
type MealPlanGenerator interface {
	Generate(ctx context.Context, userID string, req domain.MealPlanRequest) (domain.WeeklyMealPlan, error)
}

// PlanLister exposes the plan catalog.
type PlanLister interface {
	List() []plans.Plan
	Lookup(id string) (plans.Plan, bool)
}

// Handler holds the services the HTTP handlers interact with.
type Handler struct {
	profiles ProfileService
	checkout CheckoutStarter
	mealPlan MealPlanGenerator
	catalog  PlanLister
	metrics  *Metrics
	logger   *slog.Logger
}

// NewHandler creates a new Handler. metrics may be nil.
func NewHandler(profiles ProfileService, checkout CheckoutStarter, mealPlan MealPlanGenerator, catalog PlanLister, metrics *Metrics, logger *slog.Logger) *Handler {
	return &Handler{
		profiles: profiles,
		checkout: checkout,
		mealPlan: mealPlan,
		catalog:  catalog,
		metrics:  metrics,
		logger:   logger,
	}
}

func decodeJSONBody(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func (h *Handler) handleListPlans(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, map[string]interface{}{"plans": h.catalog.List()})
}

func (h *Handler) handleCheckout(w http.ResponseWriter, r *http.Request) {
	var req app.CheckoutRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	planLabel := "unknown"
	if _, ok := h.catalog.Lookup(req.PlanType); ok {
		planLabel = req.PlanType
	}

	url, err := h.checkout.Checkout(r.Context(), req)
	if err != nil {
		h.metrics.checkout(planLabel, "error")
		respondWithServiceError(w, h.logger, err)
		return
	}

	h.metrics.checkout(planLabel, "created")
	respondWithJSON(w, http.StatusOK, map[string]string{"url": url})
}

func (h *Handler) handleCreateProfile(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetClerkUserID(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	email, _ := GetClerkUserEmail(r.Context())

	created, err := h.profiles.EnsureProfile(r.Context(), userID, email)
	if err != nil {
		respondWithServiceError(w, h.logger, err)
		return
	}
	if created {
		respondWithJSON(w, http.StatusCreated, map[string]string{"message": "Created Successfully"})
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]string{"message": "User already exists"})
}

func (h *Handler) handleSubscriptionStatus(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetClerkUserID(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	status, err := h.profiles.GetSubscriptionStatus(r.Context(), userID)
	if err != nil {
		respondWithServiceError(w, h.logger, err)
		return
	}
	respondWithJSON(w, http.StatusOK, status)
}

func (h *Handler) handleChangePlan(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetClerkUserID(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req struct {
		NewPlan string `json:"newPlan"`
	}
	if err := decodeJSONBody(w, r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	profile, err := h.profiles.ChangePlan(r.Context(), userID, req.NewPlan)
	if err != nil {
		respondWithServiceError(w, h.logger, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]interface{}{"subscription": profile})
}

func (h *Handler) handleUnsubscribe(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetClerkUserID(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	cancelled, err := h.profiles.Unsubscribe(r.Context(), userID)
	if err != nil {
		respondWithServiceError(w, h.logger, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]interface{}{"subscription": cancelled})
}

func (h *Handler) handleGenerateMealPlan(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetClerkUserID(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req domain.MealPlanRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	plan, err := h.mealPlan.Generate(r.Context(), userID, req)
	if err != nil {
		h.metrics.mealPlan(mealPlanFailureLabel(err))
		respondWithServiceError(w, h.logger, err)
		return
	}

	h.metrics.mealPlan("ok")
	respondWithJSON(w, http.StatusOK, map[string]interface{}{"mealPlan": plan})
}

func mealPlanFailureLabel(err error) string {
	var extraction *domain.ExtractionError
	switch {
	case errors.As(err, &extraction):
		return "extraction_error"
	case errors.Is(err, domain.ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, domain.ErrInvalidMealPlanRequest):
		return "invalid_request"
	default:
		return "error"
	}
}
