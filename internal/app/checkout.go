package app

import (
	"context"
	"log/slog"
	"strings"

	"github.com/mealplanner/mealplan-service/internal/domain"
	"github.com/mealplanner/mealplan-service/internal/plans"
	"github.com/mealplanner/mealplan-service/pkg/billing"
)

// CheckoutRequest is the plan selection posted by the subscribe page.
type CheckoutRequest struct {
	PlanType string `json:"planType"`
	UserID   string `json:"userId"`
	Email    string `json:"email"`
}

// CheckoutService starts hosted checkout sessions.
type CheckoutService struct {
	billing BillingClient
	catalog *plans.Catalog
	baseURL string
	logger  *slog.Logger
}

// NewCheckoutService creates a checkout service. baseURL is the public origin
// the billing service redirects back to.
func NewCheckoutService(billingClient BillingClient, catalog *plans.Catalog, baseURL string, logger *slog.Logger) *CheckoutService {
	return &CheckoutService{
		billing: billingClient,
		catalog: catalog,
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  logger,
	}
}

// Checkout creates a subscription checkout session and returns its redirect URL.
// The user id and plan are attached as metadata so the completion webhook can
// find the profile again.
func (s *CheckoutService) Checkout(ctx context.Context, req CheckoutRequest) (string, error) {
	planType := strings.TrimSpace(req.PlanType)
	userID := strings.TrimSpace(req.UserID)
	email := strings.TrimSpace(req.Email)
	if planType == "" || userID == "" || email == "" {
		return "", domain.ErrMissingCheckoutFields
	}

	plan, err := s.catalog.Get(planType)
	if err != nil {
		return "", err
	}

	session, err := s.billing.CreateCheckoutSession(ctx, billing.CheckoutSessionRequest{
		PriceID: plan.PriceID,
		Email:   email,
		Metadata: map[string]string{
			domain.MetadataUserID:   userID,
			domain.MetadataPlanType: string(plan.ID),
		},
		SuccessURL: s.baseURL + "?session_id={CHECKOUT_SESSION_ID}",
		CancelURL:  s.baseURL + "/subscribe",
	})
	if err != nil {
		s.logger.Error("failed to create checkout session", "user_id", userID, "plan", plan.ID, "error", err)
		return "", upstreamBilling(err)
	}

	s.logger.Info("checkout session created", "user_id", userID, "plan", plan.ID, "session_id", session.ID)
	return session.URL, nil
}
