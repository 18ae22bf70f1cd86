/**
 * @description
 * This file models the billing-service notifications the reconciler consumes and
 * the internal events this service publishes once a transition has been applied.
 *
 * @notes
 * - BillingEvent is a closed set of variants plus UnhandledEvent, so new
 *   provider event types never break dispatch.
 */
package domain

import "time"

// Billing event type tags as sent by the provider.
const (
	EventCheckoutCompleted    = "checkout.session.completed"
	EventInvoicePaymentFailed = "invoice.payment_failed"
	EventSubscriptionDeleted  = "customer.subscription.deleted"
)

// Checkout session metadata keys. They are written when the session is created
// and read back from the completion event.
const (
	MetadataUserID   = "clerkUserId"
	MetadataPlanType = "planType"
)

// BillingEvent is a verified notification from the billing service.
type BillingEvent interface {
	EventID() string
	EventType() string
}

// EventHeader carries the fields shared by every variant.
type EventHeader struct {
	ID   string
	Type string
}

func (h EventHeader) EventID() string   { return h.ID }
func (h EventHeader) EventType() string { return h.Type }

// CheckoutCompleted is sent when a hosted checkout session finishes.
type CheckoutCompleted struct {
	EventHeader
	SessionID      string
	SubscriptionID string
	Metadata       map[string]string
}

// InvoicePaymentFailed is sent when a renewal charge fails.
type InvoicePaymentFailed struct {
	EventHeader
	InvoiceID      string
	SubscriptionID string
}

// SubscriptionDeleted is sent when the provider ends a subscription.
type SubscriptionDeleted struct {
	EventHeader
	SubscriptionID string
}

// UnhandledEvent is any event type the reconciler has no transition for.
type UnhandledEvent struct {
	EventHeader
}

// SubscriptionEventsExchange is the topic exchange lifecycle events are published to.
const SubscriptionEventsExchange = "subscription_events"

// Routing keys for SubscriptionChangedEvent.
const (
	RoutingSubscriptionActivated   = "subscription.activated"
	RoutingSubscriptionDeactivated = "subscription.deactivated"
	RoutingSubscriptionCancelled   = "subscription.cancelled"
	RoutingSubscriptionPlanChanged = "subscription.plan_changed"
)

// SubscriptionChangedEvent is published to the subscription_events exchange
// after a profile's billing state changes.
type SubscriptionChangedEvent struct {
	EventID               string    `json:"event_id"`
	UserID                string    `json:"user_id"`
	BillingSubscriptionID string    `json:"billing_subscription_id,omitempty"`
	Tier                  *Tier     `json:"tier,omitempty"`
	Active                bool      `json:"active"`
	Source                string    `json:"source"`
	OccurredAt            time.Time `json:"occurred_at"`
}
