/**
 * @description
 * This file implements the subscription reconciler. It applies verified
 * billing-service events to the matching profile:
 *
 *   None -> Active      checkout completed (reference, tier, active=true)
 *   Active -> PastDue   invoice payment failed (active=false, reference kept)
 *   * -> Cancelled      subscription deleted (reference and tier cleared)
 *
 * @notes
 * - Every transition overwrites the fields it owns, so redelivery and
 *   out-of-order delivery converge on the provider's latest word.
 * - Lookup misses and persistence failures are logged and reported through the
 *   Outcome only. The caller always acknowledges the event so the provider does
 *   not retry application-level failures.
 */
package app

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/mealplanner/mealplan-service/internal/domain"
)

// Outcome describes what the reconciler did with one event.
type Outcome string

const (
	OutcomeApplied    Outcome = "applied"
	OutcomeIgnored    Outcome = "ignored"
	OutcomeUnresolved Outcome = "unresolved"
	OutcomeFailed     Outcome = "failed"
)

// Reconciler applies billing events to profiles.
type Reconciler struct {
	store  ProfileStore
	events notifier
	logger *slog.Logger
}

// NewReconciler creates a reconciler. publisher may be nil.
func NewReconciler(store ProfileStore, publisher EventPublisher, logger *slog.Logger) *Reconciler {
	return &Reconciler{
		store:  store,
		events: notifier{publisher: publisher, logger: logger},
		logger: logger,
	}
}

// Handle dispatches evt to its transition.
func (r *Reconciler) Handle(ctx context.Context, evt domain.BillingEvent) Outcome {
	log := r.logger.With("event_id", evt.EventID(), "event_type", evt.EventType())

	switch e := evt.(type) {
	case domain.CheckoutCompleted:
		return r.checkoutCompleted(ctx, log, e)
	case domain.InvoicePaymentFailed:
		return r.paymentFailed(ctx, log, e)
	case domain.SubscriptionDeleted:
		return r.subscriptionDeleted(ctx, log, e)
	default:
		log.Info("unhandled billing event")
		return OutcomeIgnored
	}
}

func (r *Reconciler) checkoutCompleted(ctx context.Context, log *slog.Logger, e domain.CheckoutCompleted) Outcome {
	userID := strings.TrimSpace(e.Metadata[domain.MetadataUserID])
	subscriptionID := strings.TrimSpace(e.SubscriptionID)
	if userID == "" || subscriptionID == "" {
		log.Warn("checkout completed without user or subscription reference", "session_id", e.SessionID)
		return OutcomeUnresolved
	}

	var tier *domain.Tier
	if raw := strings.TrimSpace(e.Metadata[domain.MetadataPlanType]); raw != "" {
		if t, ok := domain.ParseTier(raw); ok {
			tier = &t
		} else {
			log.Warn("checkout completed with unknown plan type, storing no tier", "plan_type", raw)
		}
	}

	if err := r.store.ActivateSubscription(ctx, userID, subscriptionID, tier); err != nil {
		return r.persistenceFailure(log.With("user_id", userID), err)
	}

	log.Info("subscription activated", "user_id", userID, "subscription_id", subscriptionID)
	r.events.subscriptionChanged(ctx, domain.RoutingSubscriptionActivated, domain.SubscriptionChangedEvent{
		UserID:                userID,
		BillingSubscriptionID: subscriptionID,
		Tier:                  tier,
		Active:                true,
		Source:                SourceWebhook,
	})
	return OutcomeApplied
}

func (r *Reconciler) paymentFailed(ctx context.Context, log *slog.Logger, e domain.InvoicePaymentFailed) Outcome {
	userID, outcome, ok := r.resolve(ctx, log, e.SubscriptionID)
	if !ok {
		return outcome
	}

	if err := r.store.DeactivateSubscription(ctx, userID, strings.TrimSpace(e.SubscriptionID)); err != nil {
		return r.persistenceFailure(log.With("user_id", userID), err)
	}

	log.Info("subscription deactivated after failed payment", "user_id", userID, "invoice_id", e.InvoiceID)
	r.events.subscriptionChanged(ctx, domain.RoutingSubscriptionDeactivated, domain.SubscriptionChangedEvent{
		UserID:                userID,
		BillingSubscriptionID: e.SubscriptionID,
		Source:                SourceWebhook,
	})
	return OutcomeApplied
}

func (r *Reconciler) subscriptionDeleted(ctx context.Context, log *slog.Logger, e domain.SubscriptionDeleted) Outcome {
	userID, outcome, ok := r.resolve(ctx, log, e.SubscriptionID)
	if !ok {
		return outcome
	}

	if err := r.store.ClearSubscription(ctx, userID, strings.TrimSpace(e.SubscriptionID)); err != nil {
		return r.persistenceFailure(log.With("user_id", userID), err)
	}

	log.Info("subscription cleared after deletion", "user_id", userID)
	r.events.subscriptionChanged(ctx, domain.RoutingSubscriptionCancelled, domain.SubscriptionChangedEvent{
		UserID:                userID,
		BillingSubscriptionID: e.SubscriptionID,
		Source:                SourceWebhook,
	})
	return OutcomeApplied
}

// resolve maps a billing subscription reference to the owning user.
func (r *Reconciler) resolve(ctx context.Context, log *slog.Logger, subscriptionID string) (string, Outcome, bool) {
	subscriptionID = strings.TrimSpace(subscriptionID)
	if subscriptionID == "" {
		log.Warn("billing event carries no subscription reference")
		return "", OutcomeUnresolved, false
	}

	userID, err := r.store.FindUserIDByBillingSubscriptionID(ctx, subscriptionID)
	if err != nil {
		if errors.Is(err, domain.ErrProfileNotFound) {
			log.Warn("no profile for subscription reference", "subscription_id", subscriptionID)
			return "", OutcomeUnresolved, false
		}
		log.Error("failed to resolve subscription reference", "subscription_id", subscriptionID, "error", err)
		return "", OutcomeFailed, false
	}
	return userID, "", true
}

func (r *Reconciler) persistenceFailure(log *slog.Logger, err error) Outcome {
	if errors.Is(err, domain.ErrProfileNotFound) {
		log.Warn("profile no longer references the event subscription")
		return OutcomeUnresolved
	}
	log.Error("failed to persist billing event", "error", err)
	return OutcomeFailed
}
