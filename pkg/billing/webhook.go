package billing

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/stripe/stripe-go/v79/webhook"

	"github.com/mealplanner/mealplan-service/internal/domain"
)

// ErrInvalidSignature is returned when a payload fails signature verification.
var ErrInvalidSignature = errors.New("invalid webhook signature")

// WebhookVerifier checks Stripe-Signature headers and turns verified payloads
// into domain events.
type WebhookVerifier struct {
	secret string
}

// NewWebhookVerifier creates a verifier for the endpoint's signing secret.
func NewWebhookVerifier(secret string) *WebhookVerifier {
	return &WebhookVerifier{secret: secret}
}

// Verify checks the signature over the raw payload before decoding anything.
func (v *WebhookVerifier) Verify(payload []byte, signatureHeader string) (domain.BillingEvent, error) {
	if v.secret == "" {
		return nil, fmt.Errorf("%w: signing secret not configured", ErrInvalidSignature)
	}

	event, err := webhook.ConstructEventWithOptions(payload, signatureHeader, v.secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	header := domain.EventHeader{ID: event.ID, Type: string(event.Type)}
	var raw json.RawMessage
	if event.Data != nil {
		raw = event.Data.Raw
	}
	return decodeEvent(header, raw)
}

// expandableID accepts either a bare id or an expanded object carrying one.
type expandableID string

func (e *expandableID) UnmarshalJSON(data []byte) error {
	var id string
	if err := json.Unmarshal(data, &id); err == nil {
		*e = expandableID(id)
		return nil
	}
	var obj struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	*e = expandableID(obj.ID)
	return nil
}

type checkoutSessionObject struct {
	ID           string            `json:"id"`
	Subscription expandableID      `json:"subscription"`
	Metadata     map[string]string `json:"metadata"`
}

type invoiceObject struct {
	ID           string       `json:"id"`
	Subscription expandableID `json:"subscription"`
	// Newer API versions move the reference under parent.subscription_details.
	Parent struct {
		SubscriptionDetails struct {
			Subscription expandableID `json:"subscription"`
		} `json:"subscription_details"`
	} `json:"parent"`
}

type subscriptionObject struct {
	ID string `json:"id"`
}

func decodeEvent(header domain.EventHeader, raw json.RawMessage) (domain.BillingEvent, error) {
	switch header.Type {
	case domain.EventCheckoutCompleted:
		var obj checkoutSessionObject
		if err := json.Unmarshal(raw, &obj); err != nil {
			return nil, fmt.Errorf("decode checkout session: %w", err)
		}
		return domain.CheckoutCompleted{
			EventHeader:    header,
			SessionID:      obj.ID,
			SubscriptionID: string(obj.Subscription),
			Metadata:       obj.Metadata,
		}, nil
	case domain.EventInvoicePaymentFailed:
		var obj invoiceObject
		if err := json.Unmarshal(raw, &obj); err != nil {
			return nil, fmt.Errorf("decode invoice: %w", err)
		}
		subID := string(obj.Subscription)
		if subID == "" {
			subID = string(obj.Parent.SubscriptionDetails.Subscription)
		}
		return domain.InvoicePaymentFailed{EventHeader: header, InvoiceID: obj.ID, SubscriptionID: subID}, nil
	case domain.EventSubscriptionDeleted:
		var obj subscriptionObject
		if err := json.Unmarshal(raw, &obj); err != nil {
			return nil, fmt.Errorf("decode subscription: %w", err)
		}
		return domain.SubscriptionDeleted{EventHeader: header, SubscriptionID: obj.ID}, nil
	default:
		return domain.UnhandledEvent{EventHeader: header}, nil
	}
}
