package plan_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/xraph/tollgate/plan"
	"github.com/xraph/tollgate/types"
)

func TestCatalogResolve(t *testing.T) {
	c := plan.NewCatalog(plan.Plan{Slug: "monthly", Name: "Monthly", Price: types.USD(999), TermDays: 30})

	p := c.Resolve("monthly")
	assert.Equal(t, types.USD(999), p.Price)
	assert.Equal(t, 30, p.TermDays)

	unknown := c.Resolve("yearly-premium")
	assert.Equal(t, "yearly-premium", unknown.Slug)
	assert.Equal(t, plan.DefaultPrice, unknown.Price)
	assert.Equal(t, plan.DefaultTermDays, unknown.TermDays)
}

func TestDefaultCatalog(t *testing.T) {
	plans := plan.DefaultCatalog().List()
	if assert.Len(t, plans, 2) {
		assert.Equal(t, "yearly", plans[0].Slug)
		assert.Equal(t, "yearly-premium", plans[1].Slug)
	}
	for _, p := range plans {
		assert.Equal(t, "$99.99", p.Price.String())
		assert.Equal(t, plan.DefaultTermDays, p.TermDays)
	}
}

func TestPlanTerm(t *testing.T) {
	start := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	yearly := plan.DefaultCatalog().Resolve("yearly")
	assert.Equal(t, start.Add(365*24*time.Hour), yearly.Term(start))

	zero := plan.Plan{}
	assert.Equal(t, start.Add(365*24*time.Hour), zero.Term(start))
}
