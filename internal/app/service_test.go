package app

import (
	"context"
	"errors"
	"testing"

	"github.com/mealplanner/mealplan-service/internal/domain"
	"github.com/mealplanner/mealplan-service/pkg/billing"
)

func subscribedProfile() domain.Profile {
	return domain.Profile{
		UserID:                "user_1",
		Email:                 "a@example.com",
		SubscriptionTier:      tierPtr(domain.TierWeek),
		BillingSubscriptionID: strPtr("sub_1"),
		SubscriptionActive:    true,
	}
}

func liveBilling() *billingStub {
	return &billingStub{subscriptions: map[string]*billing.Subscription{
		"sub_1": {ID: "sub_1", Status: billing.StatusActive, ItemIDs: []string{"si_1"}},
	}}
}

func TestEnsureProfile(t *testing.T) {
	store := newMemoryStore()
	svc := NewService(store, &billingStub{}, testCatalog(), nil, testLogger())

	created, err := svc.EnsureProfile(context.Background(), "user_1", "a@example.com")
	if err != nil || !created {
		t.Fatalf("expected profile to be created, got created=%v err=%v", created, err)
	}
	created, err = svc.EnsureProfile(context.Background(), "user_1", "a@example.com")
	if err != nil || created {
		t.Fatalf("expected existing profile to be a no-op, got created=%v err=%v", created, err)
	}
	if _, err := svc.EnsureProfile(context.Background(), "user_2", " "); !errors.Is(err, domain.ErrMissingEmail) {
		t.Fatalf("expected ErrMissingEmail, got %v", err)
	}
}

func TestGetSubscriptionStatus(t *testing.T) {
	store := newMemoryStore(subscribedProfile(), domain.Profile{UserID: "user_2"})
	svc := NewService(store, &billingStub{}, testCatalog(), nil, testLogger())

	status, err := svc.GetSubscriptionStatus(context.Background(), "user_1")
	if err != nil {
		t.Fatalf("GetSubscriptionStatus returned error: %v", err)
	}
	if !status.Active || !status.HasSubscription || *status.Tier != domain.TierWeek {
		t.Fatalf("unexpected status: %+v", status)
	}

	status, err = svc.GetSubscriptionStatus(context.Background(), "user_2")
	if err != nil || status.Active || status.HasSubscription || status.Tier != nil {
		t.Fatalf("expected empty status, got %+v (err=%v)", status, err)
	}

	if _, err := svc.GetSubscriptionStatus(context.Background(), "ghost"); !errors.Is(err, domain.ErrProfileNotFound) {
		t.Fatalf("expected ErrProfileNotFound, got %v", err)
	}
}

func TestChangePlan_SwapsPriceAndMirrorsTier(t *testing.T) {
	store := newMemoryStore(subscribedProfile())
	billingClient := liveBilling()
	publisher := &publisherStub{}
	svc := NewService(store, billingClient, testCatalog(), publisher, testLogger())

	profile, err := svc.ChangePlan(context.Background(), "user_1", "year")
	if err != nil {
		t.Fatalf("ChangePlan returned error: %v", err)
	}
	if billingClient.changedItem != "si_1" || billingClient.changedPrice != "price_year" {
		t.Fatalf("unexpected billing change: item=%q price=%q", billingClient.changedItem, billingClient.changedPrice)
	}
	if *profile.SubscriptionTier != domain.TierYear || *profile.BillingSubscriptionID != "sub_1" {
		t.Fatalf("unexpected profile: %+v", profile)
	}
	if len(publisher.messages) != 1 || publisher.messages[0].routingKey != domain.RoutingSubscriptionPlanChanged {
		t.Fatalf("expected a plan_changed event, got %+v", publisher.messages)
	}
}

func TestChangePlan_ClientErrors(t *testing.T) {
	noItems := liveBilling()
	noItems.subscriptions["sub_1"].ItemIDs = nil

	tests := []struct {
		name    string
		store   *memoryStore
		billing *billingStub
		plan    string
		want    error
	}{
		{name: "missing plan", store: newMemoryStore(subscribedProfile()), billing: liveBilling(), plan: " ", want: domain.ErrPlanRequired},
		{name: "unknown plan", store: newMemoryStore(subscribedProfile()), billing: liveBilling(), plan: "monthly", want: domain.ErrUnknownPlan},
		{name: "no profile", store: newMemoryStore(), billing: liveBilling(), plan: "month", want: domain.ErrProfileNotFound},
		{name: "no reference", store: newMemoryStore(domain.Profile{UserID: "user_1"}), billing: liveBilling(), plan: "month", want: domain.ErrNoActiveSubscription},
		{name: "no items", store: newMemoryStore(subscribedProfile()), billing: noItems, plan: "month", want: domain.ErrSubscriptionItemNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewService(tt.store, tt.billing, testCatalog(), nil, testLogger())
			_, err := svc.ChangePlan(context.Background(), "user_1", tt.plan)
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
			if tt.billing.changedPrice != "" {
				t.Fatal("expected no price change")
			}
		})
	}
}

func TestChangePlan_BillingFailureLeavesRecord(t *testing.T) {
	store := newMemoryStore(subscribedProfile())
	billingClient := liveBilling()
	billingClient.changeErr = errors.New("resource_missing")
	svc := NewService(store, billingClient, testCatalog(), nil, testLogger())

	_, err := svc.ChangePlan(context.Background(), "user_1", "month")
	var upstream *domain.UpstreamError
	if !errors.As(err, &upstream) {
		t.Fatalf("expected UpstreamError, got %v", err)
	}
	if *store.snapshot("user_1").SubscriptionTier != domain.TierWeek {
		t.Fatal("expected tier to stay unchanged")
	}
}

func TestUnsubscribe_CancelsImmediatelyAndClears(t *testing.T) {
	store := newMemoryStore(subscribedProfile())
	billingClient := liveBilling()
	svc := NewService(store, billingClient, testCatalog(), nil, testLogger())

	sub, err := svc.Unsubscribe(context.Background(), "user_1")
	if err != nil {
		t.Fatalf("Unsubscribe returned error: %v", err)
	}
	if billingClient.cancelled != "sub_1" || sub.Status != billing.StatusCanceled {
		t.Fatalf("unexpected cancellation: %+v", sub)
	}
	got := store.snapshot("user_1")
	if got.BillingSubscriptionID != nil || got.SubscriptionTier != nil || got.SubscriptionActive {
		t.Fatalf("expected cleared record, got %+v", got)
	}
}

func TestUnsubscribe_WithoutReferenceMakesNoBillingCall(t *testing.T) {
	store := newMemoryStore(domain.Profile{UserID: "user_1", SubscriptionTier: tierPtr(domain.TierMonth)})
	billingClient := liveBilling()
	svc := NewService(store, billingClient, testCatalog(), nil, testLogger())

	_, err := svc.Unsubscribe(context.Background(), "user_1")
	if !errors.Is(err, domain.ErrNoActiveSubscription) {
		t.Fatalf("expected ErrNoActiveSubscription, got %v", err)
	}
	if billingClient.calls != 0 {
		t.Fatalf("expected no billing calls, got %d", billingClient.calls)
	}
}

func TestUnsubscribe_CancelFailureKeepsRecord(t *testing.T) {
	store := newMemoryStore(subscribedProfile())
	billingClient := liveBilling()
	billingClient.cancelErr = errors.New("timeout")
	svc := NewService(store, billingClient, testCatalog(), nil, testLogger())

	if _, err := svc.Unsubscribe(context.Background(), "user_1"); err == nil {
		t.Fatal("expected error")
	}
	got := store.snapshot("user_1")
	if !got.HasBillingSubscription() {
		t.Fatal("expected reference to be kept when cancellation fails")
	}
}
