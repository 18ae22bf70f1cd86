/**
 * @description
 * Scheduled jobs. The subscription sweep re-reads every live billing
 * subscription and corrects profiles whose webhook was lost or failed to
 * persist.
 */
package app

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/mealplanner/mealplan-service/internal/domain"
	"github.com/mealplanner/mealplan-service/pkg/billing"
)

const (
	sweepBatchSize = 500
	sweepTimeout   = 10 * time.Minute
)

// SweepResult summarises one sweep run. Superseded counts profiles whose
// reference changed while the live subscription was being fetched.
type SweepResult struct {
	Checked     int
	Deactivated int
	Cleared     int
	Superseded  int
	Failed      int
}

// Jobs holds the dependencies for scheduled jobs.
type Jobs struct {
	store     ProfileStore
	billing   BillingClient
	events    notifier
	logger    *slog.Logger
	batchSize int
}

// NewJobs creates a new Jobs instance. publisher may be nil.
func NewJobs(store ProfileStore, billingClient BillingClient, publisher EventPublisher, logger *slog.Logger) *Jobs {
	return &Jobs{
		store:     store,
		billing:   billingClient,
		events:    notifier{publisher: publisher, logger: logger},
		logger:    logger,
		batchSize: sweepBatchSize,
	}
}

// SweepSubscriptions is the cron entry point.
func (j *Jobs) SweepSubscriptions() {
	ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
	defer cancel()

	result, err := j.Sweep(ctx)
	if err != nil {
		j.logger.Error("subscription sweep failed", "error", err)
		return
	}
	j.logger.Info("subscription sweep finished",
		"checked", result.Checked,
		"deactivated", result.Deactivated,
		"cleared", result.Cleared,
		"superseded", result.Superseded,
		"failed", result.Failed,
	)
}

// Sweep compares every stored billing reference with the live subscription,
// paging through profiles by user id. Ended subscriptions are cleared and
// delinquent ones deactivated. Profiles are never re-activated here; that only
// happens on a completed checkout.
func (j *Jobs) Sweep(ctx context.Context) (SweepResult, error) {
	var result SweepResult

	cursor := ""
	for {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		profiles, err := j.store.ListBillingSubscriptions(ctx, cursor, j.batchSize)
		if err != nil {
			return result, err
		}

		for _, p := range profiles {
			if err := j.sweepProfile(ctx, p, &result); err != nil {
				return result, err
			}
		}

		if len(profiles) < j.batchSize {
			return result, nil
		}
		cursor = profiles[len(profiles)-1].UserID
	}
}

func (j *Jobs) sweepProfile(ctx context.Context, p domain.Profile, result *SweepResult) error {
	if !p.HasBillingSubscription() {
		return nil
	}
	result.Checked++
	subscriptionID := *p.BillingSubscriptionID
	log := j.logger.With("user_id", p.UserID, "subscription_id", subscriptionID)

	sub, err := j.billing.GetSubscription(ctx, subscriptionID)
	if err != nil {
		if errors.Is(err, billing.ErrNotConfigured) {
			return err
		}
		log.Warn("sweep could not fetch subscription", "error", err)
		result.Failed++
		return nil
	}

	switch sub.Status {
	case billing.StatusCanceled, billing.StatusIncompleteExpired:
		if err := j.store.ClearSubscription(ctx, p.UserID, subscriptionID); err != nil {
			j.countWriteFailure(log, "clear", err, result)
			return nil
		}
		result.Cleared++
		j.events.subscriptionChanged(ctx, domain.RoutingSubscriptionCancelled, domain.SubscriptionChangedEvent{
			UserID:                p.UserID,
			BillingSubscriptionID: subscriptionID,
			Source:                SourceSweep,
		})
	case billing.StatusPastDue, billing.StatusUnpaid:
		if !p.SubscriptionActive {
			return nil
		}
		if err := j.store.DeactivateSubscription(ctx, p.UserID, subscriptionID); err != nil {
			j.countWriteFailure(log, "deactivate", err, result)
			return nil
		}
		result.Deactivated++
		j.events.subscriptionChanged(ctx, domain.RoutingSubscriptionDeactivated, domain.SubscriptionChangedEvent{
			UserID:                p.UserID,
			BillingSubscriptionID: subscriptionID,
			Tier:                  p.SubscriptionTier,
			Source:                SourceSweep,
		})
	}
	return nil
}

func (j *Jobs) countWriteFailure(log *slog.Logger, action string, err error, result *SweepResult) {
	if errors.Is(err, domain.ErrProfileNotFound) {
		log.Info("sweep skipped profile with a newer subscription", "action", action)
		result.Superseded++
		return
	}
	log.Error("sweep failed to update subscription", "action", action, "error", err)
	result.Failed++
}
