package app

import (
	"context"
	"io"
	"log/slog"
	"sort"

	"github.com/mealplanner/mealplan-service/internal/domain"
	"github.com/mealplanner/mealplan-service/internal/plans"
	"github.com/mealplanner/mealplan-service/pkg/billing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testCatalog() *plans.Catalog {
	return plans.NewCatalog(plans.PriceIDs{Week: "price_week", Month: "price_month", Year: "price_year"})
}

func strPtr(s string) *string { return &s }

func tierPtr(t domain.Tier) *domain.Tier { return &t }

// memoryStore is an in-memory ProfileStore keyed by user id.
type memoryStore struct {
	profiles map[string]*domain.Profile
	writes   int
	err      error
	findErr  error

	listCalls int
	afterFind func(userID string)
}

func newMemoryStore(profiles ...domain.Profile) *memoryStore {
	s := &memoryStore{profiles: make(map[string]*domain.Profile)}
	for i := range profiles {
		p := profiles[i]
		s.profiles[p.UserID] = &p
	}
	return s
}

func (s *memoryStore) snapshot(userID string) domain.Profile {
	p, ok := s.profiles[userID]
	if !ok {
		return domain.Profile{}
	}
	out := *p
	if p.SubscriptionTier != nil {
		out.SubscriptionTier = tierPtr(*p.SubscriptionTier)
	}
	if p.BillingSubscriptionID != nil {
		out.BillingSubscriptionID = strPtr(*p.BillingSubscriptionID)
	}
	return out
}

func (s *memoryStore) CreateProfile(_ context.Context, userID, email string) (bool, error) {
	if s.err != nil {
		return false, s.err
	}
	if _, ok := s.profiles[userID]; ok {
		return false, nil
	}
	s.writes++
	s.profiles[userID] = &domain.Profile{UserID: userID, Email: email}
	return true, nil
}

func (s *memoryStore) GetProfile(_ context.Context, userID string) (*domain.Profile, error) {
	if s.err != nil {
		return nil, s.err
	}
	if _, ok := s.profiles[userID]; !ok {
		return nil, domain.ErrProfileNotFound
	}
	p := s.snapshot(userID)
	return &p, nil
}

func (s *memoryStore) FindUserIDByBillingSubscriptionID(_ context.Context, subscriptionID string) (string, error) {
	if s.findErr != nil {
		return "", s.findErr
	}
	for _, p := range s.profiles {
		if p.BillingSubscriptionID != nil && *p.BillingSubscriptionID == subscriptionID {
			if s.afterFind != nil {
				s.afterFind(p.UserID)
			}
			return p.UserID, nil
		}
	}
	return "", domain.ErrProfileNotFound
}

func (s *memoryStore) update(userID string, fn func(p *domain.Profile)) error {
	if s.err != nil {
		return s.err
	}
	p, ok := s.profiles[userID]
	if !ok {
		return domain.ErrProfileNotFound
	}
	s.writes++
	fn(p)
	return nil
}

func (s *memoryStore) ActivateSubscription(_ context.Context, userID, subscriptionID string, tier *domain.Tier) error {
	return s.update(userID, func(p *domain.Profile) {
		p.BillingSubscriptionID = strPtr(subscriptionID)
		p.SubscriptionTier = nil
		if tier != nil {
			p.SubscriptionTier = tierPtr(*tier)
		}
		p.SubscriptionActive = true
	})
}

// updateReferenced applies fn only while the profile still references subscriptionID.
func (s *memoryStore) updateReferenced(userID, subscriptionID string, fn func(p *domain.Profile)) error {
	if p, ok := s.profiles[userID]; ok && (p.BillingSubscriptionID == nil || *p.BillingSubscriptionID != subscriptionID) {
		if s.err != nil {
			return s.err
		}
		return domain.ErrProfileNotFound
	}
	return s.update(userID, fn)
}

func (s *memoryStore) DeactivateSubscription(_ context.Context, userID, subscriptionID string) error {
	return s.updateReferenced(userID, subscriptionID, func(p *domain.Profile) { p.SubscriptionActive = false })
}

func (s *memoryStore) ClearSubscription(_ context.Context, userID, subscriptionID string) error {
	return s.updateReferenced(userID, subscriptionID, func(p *domain.Profile) {
		p.BillingSubscriptionID = nil
		p.SubscriptionTier = nil
		p.SubscriptionActive = false
	})
}

func (s *memoryStore) UpdateSubscriptionPlan(_ context.Context, userID string, tier domain.Tier, subscriptionID string) (*domain.Profile, error) {
	err := s.update(userID, func(p *domain.Profile) {
		p.SubscriptionTier = tierPtr(tier)
		p.BillingSubscriptionID = strPtr(subscriptionID)
	})
	if err != nil {
		return nil, err
	}
	p := s.snapshot(userID)
	return &p, nil
}

func (s *memoryStore) ListBillingSubscriptions(_ context.Context, afterUserID string, limit int) ([]domain.Profile, error) {
	s.listCalls++
	if s.err != nil {
		return nil, s.err
	}
	ids := make([]string, 0, len(s.profiles))
	for id := range s.profiles {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var out []domain.Profile
	for _, id := range ids {
		if id <= afterUserID || s.profiles[id].BillingSubscriptionID == nil {
			continue
		}
		if len(out) == limit {
			break
		}
		out = append(out, s.snapshot(id))
	}
	return out, nil
}

// billingStub records every billing call.
type billingStub struct {
	calls int

	session     *billing.CheckoutSession
	lastSession billing.CheckoutSessionRequest

	subscriptions map[string]*billing.Subscription
	getErr        error
	onGet         func(subscriptionID string)

	changedItem  string
	changedPrice string
	changeErr    error

	cancelled string
	cancelErr error
}

func (b *billingStub) CreateCheckoutSession(_ context.Context, req billing.CheckoutSessionRequest) (*billing.CheckoutSession, error) {
	b.calls++
	b.lastSession = req
	if b.session == nil {
		return nil, billing.ErrNotConfigured
	}
	return b.session, nil
}

func (b *billingStub) GetSubscription(_ context.Context, subscriptionID string) (*billing.Subscription, error) {
	b.calls++
	if b.onGet != nil {
		b.onGet(subscriptionID)
	}
	if b.getErr != nil {
		return nil, b.getErr
	}
	sub, ok := b.subscriptions[subscriptionID]
	if !ok {
		return nil, errNoSuchSubscription
	}
	return sub, nil
}

func (b *billingStub) ChangeSubscriptionPrice(_ context.Context, subscriptionID, itemID, priceID string) (*billing.Subscription, error) {
	b.calls++
	if b.changeErr != nil {
		return nil, b.changeErr
	}
	b.changedItem = itemID
	b.changedPrice = priceID
	return &billing.Subscription{ID: subscriptionID, Status: billing.StatusActive, ItemIDs: []string{itemID}}, nil
}

func (b *billingStub) CancelSubscription(_ context.Context, subscriptionID string) (*billing.Subscription, error) {
	b.calls++
	if b.cancelErr != nil {
		return nil, b.cancelErr
	}
	b.cancelled = subscriptionID
	return &billing.Subscription{ID: subscriptionID, Status: billing.StatusCanceled}, nil
}

type stubError string

func (e stubError) Error() string { return string(e) }

const errNoSuchSubscription = stubError("no such subscription")

type publishedMessage struct {
	exchange   string
	routingKey string
	event      domain.SubscriptionChangedEvent
}

// publisherStub captures published lifecycle events.
type publisherStub struct {
	messages []publishedMessage
	err      error
}

func (p *publisherStub) Publish(_ context.Context, exchange, routingKey string, body interface{}) error {
	if p.err != nil {
		return p.err
	}
	evt, _ := body.(domain.SubscriptionChangedEvent)
	p.messages = append(p.messages, publishedMessage{exchange: exchange, routingKey: routingKey, event: evt})
	return nil
}
