package app

import (
	"context"

	"github.com/mealplanner/mealplan-service/internal/domain"
	"github.com/mealplanner/mealplan-service/pkg/billing"
)

// ProfileStore defines the database operations the services need.
type ProfileStore interface {
	CreateProfile(ctx context.Context, userID, email string) (bool, error)
	GetProfile(ctx context.Context, userID string) (*domain.Profile, error)
	FindUserIDByBillingSubscriptionID(ctx context.Context, subscriptionID string) (string, error)
	ActivateSubscription(ctx context.Context, userID, subscriptionID string, tier *domain.Tier) error
	DeactivateSubscription(ctx context.Context, userID, subscriptionID string) error
	ClearSubscription(ctx context.Context, userID, subscriptionID string) error
	UpdateSubscriptionPlan(ctx context.Context, userID string, tier domain.Tier, subscriptionID string) (*domain.Profile, error)
	ListBillingSubscriptions(ctx context.Context, afterUserID string, limit int) ([]domain.Profile, error)
}

// BillingClient defines the billing-service calls the services make.
type BillingClient interface {
	CreateCheckoutSession(ctx context.Context, req billing.CheckoutSessionRequest) (*billing.CheckoutSession, error)
	GetSubscription(ctx context.Context, subscriptionID string) (*billing.Subscription, error)
	ChangeSubscriptionPrice(ctx context.Context, subscriptionID, itemID, priceID string) (*billing.Subscription, error)
	CancelSubscription(ctx context.Context, subscriptionID string) (*billing.Subscription, error)
}

// EventPublisher sends a message to a broker exchange.
type EventPublisher interface {
	Publish(ctx context.Context, exchange, routingKey string, body interface{}) error
}
