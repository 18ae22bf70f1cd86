/**
 * @description
 * This package provides a client for the billing provider (Stripe). It wraps
 * the calls the service makes: hosted checkout session creation, subscription
 * retrieval, plan swaps and immediate cancellation.
 *
 * @dependencies
 * - github.com/stripe/stripe-go/v79: official Stripe API client.
 */
package billing

import (
	"context"
	"errors"
	"strings"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/client"
)

// ErrNotConfigured is returned when no API key was supplied.
var ErrNotConfigured = errors.New("billing client is not configured")

// CheckoutSessionRequest describes a subscription-mode hosted checkout.
type CheckoutSessionRequest struct {
	PriceID    string
	Email      string
	Metadata   map[string]string
	SuccessURL string
	CancelURL  string
}

// CheckoutSession is the subset of a created session the service needs.
type CheckoutSession struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// Subscription is the subset of a provider subscription the service needs.
type Subscription struct {
	ID      string   `json:"id"`
	Status  string   `json:"status"`
	ItemIDs []string `json:"-"`
}

// Subscription statuses the sweep job acts on.
const (
	StatusActive            = "active"
	StatusPastDue           = "past_due"
	StatusUnpaid            = "unpaid"
	StatusCanceled          = "canceled"
	StatusIncompleteExpired = "incomplete_expired"
)

// Client is a Stripe-backed billing client.
type Client struct {
	api *client.API
}

// NewClient creates a new billing client.
func NewClient(secretKey string) *Client {
	key := strings.TrimSpace(secretKey)
	if key == "" {
		return &Client{}
	}
	return &Client{api: client.New(key, nil)}
}

// CreateCheckoutSession creates a hosted checkout session for a recurring price.
func (c *Client) CreateCheckoutSession(ctx context.Context, req CheckoutSessionRequest) (*CheckoutSession, error) {
	if c.api == nil {
		return nil, ErrNotConfigured
	}

	params := &stripe.CheckoutSessionParams{
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(req.PriceID),
				Quantity: stripe.Int64(1),
			},
		},
		CustomerEmail: stripe.String(req.Email),
		Mode:          stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		SuccessURL:    stripe.String(req.SuccessURL),
		CancelURL:     stripe.String(req.CancelURL),
	}
	params.Context = ctx
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}

	session, err := c.api.CheckoutSessions.New(params)
	if err != nil {
		return nil, err
	}
	return &CheckoutSession{ID: session.ID, URL: session.URL}, nil
}

// GetSubscription fetches the live subscription.
func (c *Client) GetSubscription(ctx context.Context, subscriptionID string) (*Subscription, error) {
	if c.api == nil {
		return nil, ErrNotConfigured
	}

	params := &stripe.SubscriptionParams{}
	params.Context = ctx
	sub, err := c.api.Subscriptions.Get(subscriptionID, params)
	if err != nil {
		return nil, err
	}
	return toSubscription(sub), nil
}

// ChangeSubscriptionPrice swaps the price on one subscription item, prorating the difference.
func (c *Client) ChangeSubscriptionPrice(ctx context.Context, subscriptionID, itemID, priceID string) (*Subscription, error) {
	if c.api == nil {
		return nil, ErrNotConfigured
	}

	params := &stripe.SubscriptionParams{
		CancelAtPeriodEnd: stripe.Bool(false),
		Items: []*stripe.SubscriptionItemsParams{
			{
				ID:    stripe.String(itemID),
				Price: stripe.String(priceID),
			},
		},
		ProrationBehavior: stripe.String("create_prorations"),
	}
	params.Context = ctx

	sub, err := c.api.Subscriptions.Update(subscriptionID, params)
	if err != nil {
		return nil, err
	}
	return toSubscription(sub), nil
}

// CancelSubscription cancels the subscription immediately rather than at period end.
func (c *Client) CancelSubscription(ctx context.Context, subscriptionID string) (*Subscription, error) {
	if c.api == nil {
		return nil, ErrNotConfigured
	}

	params := &stripe.SubscriptionCancelParams{}
	params.Context = ctx
	sub, err := c.api.Subscriptions.Cancel(subscriptionID, params)
	if err != nil {
		return nil, err
	}
	return toSubscription(sub), nil
}

func toSubscription(sub *stripe.Subscription) *Subscription {
	out := &Subscription{ID: sub.ID, Status: string(sub.Status)}
	if sub.Items != nil {
		for _, item := range sub.Items.Data {
			if item != nil && item.ID != "" {
				out.ItemIDs = append(out.ItemIDs, item.ID)
			}
		}
	}
	return out
}
