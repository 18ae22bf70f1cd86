/**
 * @description
 * This file defines the core domain models for the mealplan-service.
 * It includes the Profile struct that maps to the profiles table, the
 * subscription tiers a profile can hold, and the status DTO returned to clients.
 */
package domain

import "time"

// Tier is the billing interval a user is subscribed to.
type Tier string

const (
	TierWeek  Tier = "week"
	TierMonth Tier = "month"
	TierYear  Tier = "year"
)

// ParseTier returns the tier for a plan identifier. Unknown identifiers report false.
func ParseTier(value string) (Tier, bool) {
	switch Tier(value) {
	case TierWeek, TierMonth, TierYear:
		return Tier(value), true
	default:
		return "", false
	}
}

// Profile is the per-user subscription record. One row per Clerk user.
type Profile struct {
	UserID                string    `json:"userId"`
	Email                 string    `json:"email"`
	SubscriptionTier      *Tier     `json:"subscriptionTier"`
	BillingSubscriptionID *string   `json:"stripeSubscriptionId"`
	SubscriptionActive    bool      `json:"subscriptionActive"`
	CreatedAt             time.Time `json:"createdAt"`
	UpdatedAt             time.Time `json:"updatedAt"`
}

// HasBillingSubscription reports whether the profile still references a billing subscription.
func (p *Profile) HasBillingSubscription() bool {
	return p != nil && p.BillingSubscriptionID != nil && *p.BillingSubscriptionID != ""
}

// SubscriptionStatus is a simplified DTO for the subscription-status endpoint.
type SubscriptionStatus struct {
	Tier            *Tier `json:"subscriptionTier"`
	Active          bool  `json:"subscriptionActive"`
	HasSubscription bool  `json:"hasSubscription"`
}
