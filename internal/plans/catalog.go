// Package plans maps the public plan keys to internal plan ids and Stripe prices.
package plans

import (
	"fmt"
	"strings"

	"faixabet-api/internal/models"
)

type Key string

const (
	Free   Key = "free"
	Silver Key = "silver"
	Gold   Key = "gold"
)

// Internal plan ids, as stored in users.plan_id and plan_assignments.plan_id.
const (
	FreeID   int64 = 1
	SilverID int64 = 2
	GoldID   int64 = 3
)

type Plan struct {
	Key     Key
	ID      int64
	PriceID string
}

// Paid reports whether the plan needs a checkout.
func (p Plan) Paid() bool {
	return p.Key != Free
}

type Catalog struct {
	plans map[Key]Plan
}

// NewCatalog builds the catalog from the configured Stripe price ids.
// An empty price leaves the plan present but unusable for checkout.
func NewCatalog(silverPrice, goldPrice string) *Catalog {
	return &Catalog{plans: map[Key]Plan{
		Free:   {Key: Free, ID: FreeID},
		Silver: {Key: Silver, ID: SilverID, PriceID: strings.TrimSpace(silverPrice)},
		Gold:   {Key: Gold, ID: GoldID, PriceID: strings.TrimSpace(goldPrice)},
	}}
}

// Resolve looks a plan up by key for checkout. Unknown keys are a user
// error; a paid plan without a price is a server misconfiguration.
func (c *Catalog) Resolve(key string) (Plan, error) {
	p, err := c.Lookup(key)
	if err != nil {
		return Plan{}, err
	}
	if p.Paid() && p.PriceID == "" {
		return Plan{}, fmt.Errorf("%w: %s", models.ErrPlanNotConfigured, p.Key)
	}
	return p, nil
}

// Lookup finds a plan by key, case-insensitively, without requiring a price.
func (c *Catalog) Lookup(key string) (Plan, error) {
	p, ok := c.plans[Key(strings.ToLower(strings.TrimSpace(key)))]
	if !ok {
		return Plan{}, fmt.Errorf("%w: %q", models.ErrInvalidPlan, key)
	}
	return p, nil
}

// ByID returns the plan with the given internal id.
func (c *Catalog) ByID(id int64) (Plan, error) {
	for _, p := range c.plans {
		if p.ID == id {
			return p, nil
		}
	}
	return Plan{}, fmt.Errorf("%w: id %d", models.ErrInvalidPlan, id)
}
