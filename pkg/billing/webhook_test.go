package billing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stripe/stripe-go/v79/webhook"

	"github.com/mealplanner/mealplan-service/internal/domain"
)

const testSecret = "whsec_test_secret"

func sign(payload string, secret string) string {
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   []byte(payload),
		Secret:    secret,
		Timestamp: time.Now(),
	})
	return signed.Header
}

func TestVerify_CheckoutCompleted(t *testing.T) {
	payload := `{
		"id": "evt_1",
		"object": "event",
		"type": "checkout.session.completed",
		"data": {"object": {
			"id": "cs_1",
			"object": "checkout.session",
			"subscription": "sub_1",
			"metadata": {"clerkUserId": "user_1", "planType": "month"}
		}}
	}`

	evt, err := NewWebhookVerifier(testSecret).Verify([]byte(payload), sign(payload, testSecret))
	if err != nil {
		t.Fatalf("Verify returned error: %v", err)
	}

	got, ok := evt.(domain.CheckoutCompleted)
	if !ok {
		t.Fatalf("expected CheckoutCompleted, got %T", evt)
	}
	if got.EventID() != "evt_1" || got.SessionID != "cs_1" || got.SubscriptionID != "sub_1" {
		t.Fatalf("unexpected event: %+v", got)
	}
	if got.Metadata[domain.MetadataUserID] != "user_1" || got.Metadata[domain.MetadataPlanType] != "month" {
		t.Fatalf("unexpected metadata: %+v", got.Metadata)
	}
}

func TestVerify_InvoicePaymentFailedReadsEitherSubscriptionLocation(t *testing.T) {
	tests := []struct {
		name    string
		invoice string
	}{
		{name: "top level", invoice: `{"id": "in_1", "subscription": "sub_9"}`},
		{name: "expanded", invoice: `{"id": "in_1", "subscription": {"id": "sub_9", "object": "subscription"}}`},
		{name: "parent details", invoice: `{"id": "in_1", "parent": {"subscription_details": {"subscription": "sub_9"}}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload := `{"id": "evt_2", "type": "invoice.payment_failed", "data": {"object": ` + tt.invoice + `}}`
			evt, err := NewWebhookVerifier(testSecret).Verify([]byte(payload), sign(payload, testSecret))
			if err != nil {
				t.Fatalf("Verify returned error: %v", err)
			}
			got, ok := evt.(domain.InvoicePaymentFailed)
			if !ok {
				t.Fatalf("expected InvoicePaymentFailed, got %T", evt)
			}
			if got.SubscriptionID != "sub_9" {
				t.Fatalf("expected sub_9, got %q", got.SubscriptionID)
			}
		})
	}
}

func TestVerify_SubscriptionDeletedAndUnknownTypes(t *testing.T) {
	deleted := `{"id": "evt_3", "type": "customer.subscription.deleted", "data": {"object": {"id": "sub_3", "status": "canceled"}}}`
	evt, err := NewWebhookVerifier(testSecret).Verify([]byte(deleted), sign(deleted, testSecret))
	if err != nil {
		t.Fatalf("Verify returned error: %v", err)
	}
	if got, ok := evt.(domain.SubscriptionDeleted); !ok || got.SubscriptionID != "sub_3" {
		t.Fatalf("unexpected event %#v", evt)
	}

	other := `{"id": "evt_4", "type": "customer.created", "data": {"object": {"id": "cus_1"}}}`
	evt, err = NewWebhookVerifier(testSecret).Verify([]byte(other), sign(other, testSecret))
	if err != nil {
		t.Fatalf("Verify returned error: %v", err)
	}
	if _, ok := evt.(domain.UnhandledEvent); !ok {
		t.Fatalf("expected UnhandledEvent, got %T", evt)
	}
	if evt.EventType() != "customer.created" {
		t.Fatalf("expected type to be preserved, got %q", evt.EventType())
	}
}

func TestVerify_RejectsBadSignatures(t *testing.T) {
	payload := `{"id": "evt_5", "type": "checkout.session.completed", "data": {"object": {"id": "cs_5"}}}`

	tests := []struct {
		name   string
		secret string
		header string
	}{
		{name: "wrong secret", secret: testSecret, header: sign(payload, "whsec_other")},
		{name: "missing header", secret: testSecret, header: ""},
		{name: "garbage header", secret: testSecret, header: "t=1,v1=deadbeef"},
		{name: "no secret configured", secret: "", header: sign(payload, testSecret)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewWebhookVerifier(tt.secret).Verify([]byte(payload), tt.header)
			if !errors.Is(err, ErrInvalidSignature) {
				t.Fatalf("expected ErrInvalidSignature, got %v", err)
			}
		})
	}
}

func TestVerify_TamperedBodyFails(t *testing.T) {
	payload := `{"id": "evt_6", "type": "customer.subscription.deleted", "data": {"object": {"id": "sub_6"}}}`
	header := sign(payload, testSecret)
	tampered := `{"id": "evt_6", "type": "customer.subscription.deleted", "data": {"object": {"id": "sub_7"}}}`

	if _, err := NewWebhookVerifier(testSecret).Verify([]byte(tampered), header); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected tampered payload to fail verification, got %v", err)
	}
}

func TestNewClientWithoutKeyIsNotConfigured(t *testing.T) {
	c := NewClient("  ")
	if _, err := c.GetSubscription(context.Background(), "sub_1"); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}
