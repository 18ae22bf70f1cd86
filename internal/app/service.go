/**
 * @description
 * This file contains the user-initiated subscription operations: profile
 * creation, status lookup, plan change and unsubscribe. Each operation reads
 * the caller's profile, talks to the billing service when needed and mirrors
 * the result back into the profile.
 */
package app

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/mealplanner/mealplan-service/internal/domain"
	"github.com/mealplanner/mealplan-service/internal/plans"
	"github.com/mealplanner/mealplan-service/pkg/billing"
)

// Service provides profile and subscription management for authenticated users.
type Service struct {
	store   ProfileStore
	billing BillingClient
	catalog *plans.Catalog
	events  notifier
	logger  *slog.Logger
}

// NewService creates a new profile service. publisher may be nil.
func NewService(store ProfileStore, billingClient BillingClient, catalog *plans.Catalog, publisher EventPublisher, logger *slog.Logger) *Service {
	return &Service{
		store:   store,
		billing: billingClient,
		catalog: catalog,
		events:  notifier{publisher: publisher, logger: logger},
		logger:  logger,
	}
}

// EnsureProfile creates the caller's profile if it does not exist yet.
// It reports whether a new record was written.
func (s *Service) EnsureProfile(ctx context.Context, userID, email string) (bool, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return false, domain.ErrMissingEmail
	}
	created, err := s.store.CreateProfile(ctx, userID, email)
	if err != nil {
		return false, err
	}
	if created {
		s.logger.Info("profile created", "user_id", userID)
	}
	return created, nil
}

// GetSubscriptionStatus returns the caller's current subscription flags.
func (s *Service) GetSubscriptionStatus(ctx context.Context, userID string) (*domain.SubscriptionStatus, error) {
	profile, err := s.store.GetProfile(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &domain.SubscriptionStatus{
		Tier:            profile.SubscriptionTier,
		Active:          profile.SubscriptionActive,
		HasSubscription: profile.HasBillingSubscription(),
	}, nil
}

// ChangePlan swaps the caller's live subscription to newPlan with proration
// and records the new tier.
func (s *Service) ChangePlan(ctx context.Context, userID, newPlan string) (*domain.Profile, error) {
	newPlan = strings.TrimSpace(newPlan)
	if newPlan == "" {
		return nil, domain.ErrPlanRequired
	}
	plan, err := s.catalog.Get(newPlan)
	if err != nil {
		return nil, err
	}

	profile, itemID, err := s.liveSubscriptionItem(ctx, userID)
	if err != nil {
		return nil, err
	}

	updated, err := s.billing.ChangeSubscriptionPrice(ctx, *profile.BillingSubscriptionID, itemID, plan.PriceID)
	if err != nil {
		return nil, upstreamBilling(err)
	}

	result, err := s.store.UpdateSubscriptionPlan(ctx, userID, plan.ID, updated.ID)
	if err != nil {
		return nil, err
	}

	s.logger.Info("subscription plan changed", "user_id", userID, "tier", plan.ID)
	tier := plan.ID
	s.events.subscriptionChanged(ctx, domain.RoutingSubscriptionPlanChanged, domain.SubscriptionChangedEvent{
		UserID:                userID,
		BillingSubscriptionID: updated.ID,
		Tier:                  &tier,
		Active:                result.SubscriptionActive,
		Source:                SourceUser,
	})
	return result, nil
}

// Unsubscribe cancels the caller's subscription immediately and clears the
// subscription fields on the profile.
func (s *Service) Unsubscribe(ctx context.Context, userID string) (*billing.Subscription, error) {
	profile, _, err := s.liveSubscriptionItem(ctx, userID)
	if err != nil {
		return nil, err
	}

	cancelled, err := s.billing.CancelSubscription(ctx, *profile.BillingSubscriptionID)
	if err != nil {
		return nil, upstreamBilling(err)
	}

	if err := s.store.ClearSubscription(ctx, userID, *profile.BillingSubscriptionID); err != nil {
		return nil, err
	}

	s.logger.Info("subscription cancelled by user", "user_id", userID, "subscription_id", cancelled.ID)
	s.events.subscriptionChanged(ctx, domain.RoutingSubscriptionCancelled, domain.SubscriptionChangedEvent{
		UserID:                userID,
		BillingSubscriptionID: cancelled.ID,
		Source:                SourceUser,
	})
	return cancelled, nil
}

// liveSubscriptionItem loads the profile, requires a billing reference and
// returns the first item of the live subscription.
func (s *Service) liveSubscriptionItem(ctx context.Context, userID string) (*domain.Profile, string, error) {
	profile, err := s.store.GetProfile(ctx, userID)
	if err != nil {
		return nil, "", err
	}
	if !profile.HasBillingSubscription() {
		return nil, "", domain.ErrNoActiveSubscription
	}

	sub, err := s.billing.GetSubscription(ctx, *profile.BillingSubscriptionID)
	if err != nil {
		return nil, "", upstreamBilling(err)
	}
	if len(sub.ItemIDs) == 0 {
		return nil, "", domain.ErrSubscriptionItemNotFound
	}
	return profile, sub.ItemIDs[0], nil
}

func upstreamBilling(err error) error {
	if errors.Is(err, billing.ErrNotConfigured) {
		return domain.ErrBillingNotConfigured
	}
	return &domain.UpstreamError{Service: "billing", Err: err}
}
