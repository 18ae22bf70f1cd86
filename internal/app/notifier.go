package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/mealplanner/mealplan-service/internal/domain"
)

// Event sources recorded on published lifecycle events.
const (
	SourceWebhook = "webhook"
	SourceUser    = "user"
	SourceSweep   = "sweep"
)

// notifier publishes subscription lifecycle events. Publishing is best effort:
// failures are logged and never undo an applied transition.
type notifier struct {
	publisher EventPublisher
	logger    *slog.Logger
}

func (n notifier) subscriptionChanged(ctx context.Context, routingKey string, evt domain.SubscriptionChangedEvent) {
	if n.publisher == nil {
		return
	}
	evt.EventID = uuid.NewString()
	evt.OccurredAt = time.Now().UTC()

	if err := n.publisher.Publish(ctx, domain.SubscriptionEventsExchange, routingKey, evt); err != nil {
		n.logger.Warn("failed to publish subscription event",
			"routing_key", routingKey,
			"user_id", evt.UserID,
			"error", err,
		)
	}
}
