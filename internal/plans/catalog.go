/**
 * @description
 * Static plan catalog. Maps a plan identifier to its billing price reference,
 * display price and feature list. Price references come from configuration.
 */
package plans

import (
	"strings"

	"github.com/mealplanner/mealplan-service/internal/domain"
)

// Plan describes one purchasable subscription plan.
type Plan struct {
	ID          domain.Tier `json:"name"`
	PriceID     string      `json:"-"`
	Amount      float64     `json:"amount"`
	Currency    string      `json:"currency"`
	Interval    string      `json:"interval"`
	IsPopular   bool        `json:"isPopular,omitempty"`
	Description string      `json:"description"`
	Features    []string    `json:"features"`
}

// PriceIDs holds the billing price reference for each plan.
type PriceIDs struct {
	Week  string
	Month string
	Year  string
}

// Catalog is an immutable lookup of plans.
type Catalog struct {
	plans []Plan
	byID  map[domain.Tier]Plan
}

// NewCatalog builds the catalog with the given price references.
func NewCatalog(prices PriceIDs) *Catalog {
	list := []Plan{
		{
			ID:          domain.TierWeek,
			PriceID:     strings.TrimSpace(prices.Week),
			Amount:      9.99,
			Currency:    "USD",
			Interval:    "week",
			Description: "Perfect for those who want basic AI meal planning",
			Features: []string{
				"Weekly AI meal plans",
				"Basic nutrition breakdown",
			},
		},
		{
			ID:          domain.TierMonth,
			PriceID:     strings.TrimSpace(prices.Month),
			Amount:      19.99,
			Currency:    "USD",
			Interval:    "month",
			IsPopular:   true,
			Description: "Ideal for those who want smart, personalized nutrition.",
			Features: []string{
				"Everything in Starter",
				"Custom calorie targets",
				"Smart grocery lists",
			},
		},
		{
			ID:          domain.TierYear,
			PriceID:     strings.TrimSpace(prices.Year),
			Amount:      199.99,
			Currency:    "USD",
			Interval:    "year",
			Description: "For fitness enthusiasts seeking total insight and control",
			Features: []string{
				"Everything in Pro",
				"Advanced macro tracking",
				"Weekly analytics",
			},
		},
	}

	byID := make(map[domain.Tier]Plan, len(list))
	for _, p := range list {
		byID[p.ID] = p
	}
	return &Catalog{plans: list, byID: byID}
}

// Lookup returns the plan for id. Unknown ids report false; there is no default plan.
func (c *Catalog) Lookup(id string) (Plan, bool) {
	p, ok := c.byID[domain.Tier(id)]
	return p, ok
}

// Get is Lookup for callers that need a client error. A plan whose price
// reference is not configured cannot be sold and is reported as unknown too.
func (c *Catalog) Get(id string) (Plan, error) {
	p, ok := c.Lookup(id)
	if !ok || p.PriceID == "" {
		return Plan{}, domain.ErrUnknownPlan
	}
	return p, nil
}

// List returns the plans in display order.
func (c *Catalog) List() []Plan {
	out := make([]Plan, len(c.plans))
	copy(out, c.plans)
	return out
}
