// Package plan holds the billing catalog used to price subscriptions.
package plan

import (
	"sort"
	"time"

	"github.com/xraph/tollgate/types"
)

// DefaultTermDays is the validity window of a subscription.
const DefaultTermDays = 365

// DefaultPrice is charged for plans the catalog does not list.
var DefaultPrice = types.USD(9999)

type Plan struct {
	Slug     string      `json:"slug"`
	Name     string      `json:"name"`
	Price    types.Money `json:"price"`
	TermDays int         `json:"term_days"`
}

// Term returns the end of a subscription starting at start.
func (p Plan) Term(start time.Time) time.Time {
	days := p.TermDays
	if days <= 0 {
		days = DefaultTermDays
	}
	return start.Add(time.Duration(days) * 24 * time.Hour)
}

// Catalog resolves plan ids to prices. Unknown ids fall back to the
// default price and term so any plan id can be subscribed to.
type Catalog struct {
	plans    map[string]Plan
	fallback Plan
}

func NewCatalog(plans ...Plan) *Catalog {
	c := &Catalog{
		plans:    make(map[string]Plan, len(plans)),
		fallback: Plan{Price: DefaultPrice, TermDays: DefaultTermDays},
	}
	for _, p := range plans {
		if p.TermDays == 0 {
			p.TermDays = DefaultTermDays
		}
		c.plans[p.Slug] = p
	}
	return c
}

// DefaultCatalog lists the yearly plans offered out of the box.
func DefaultCatalog() *Catalog {
	return NewCatalog(
		Plan{Slug: "yearly", Name: "Yearly", Price: DefaultPrice},
		Plan{Slug: "yearly-premium", Name: "Yearly Premium", Price: DefaultPrice},
	)
}

// Resolve returns the plan for slug, or the fallback plan carrying slug.
func (c *Catalog) Resolve(slug string) Plan {
	if p, ok := c.plans[slug]; ok {
		return p
	}
	p := c.fallback
	p.Slug = slug
	p.Name = slug
	return p
}

// List returns the listed plans ordered by slug.
func (c *Catalog) List() []Plan {
	out := make([]Plan, 0, len(c.plans))
	for _, p := range c.plans {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Slug < out[j].Slug })
	return out
}
