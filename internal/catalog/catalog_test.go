package catalog_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gigmarket/backend/internal/catalog"
	"github.com/gigmarket/backend/internal/domain"
)

var roles = []domain.Role{domain.RoleFreelancer, domain.RoleHiring}

func TestPricing_DiscountMatchesOriginalPrice(t *testing.T) {
	for _, role := range roles {
		for _, tier := range []domain.PlanType{domain.PlanBasic, domain.PlanPro} {
			for _, d := range domain.Durations {
				p, ok := catalog.Pricing(role, tier, d)
				require.True(t, ok, "%s/%s/%s missing", role, tier, d)
				assert.Greater(t, p.Price, int64(0))
				assert.Greater(t, p.OriginalPrice, p.Price)

				want := int(math.Round((1 - float64(p.Price)/float64(p.OriginalPrice)) * 100))
				assert.Equal(t, want, p.Discount, "%s/%s/%s", role, tier, d)
			}
		}
	}
}

func TestPricing_FreelancerBasicMonthly(t *testing.T) {
	p, ok := catalog.Pricing(domain.RoleFreelancer, domain.PlanBasic, domain.DurationMonthly)
	require.True(t, ok)
	assert.Equal(t, int64(199), p.Price)
}

func TestPricing_Unknown(t *testing.T) {
	_, ok := catalog.Pricing(domain.RoleFreelancer, domain.PlanFree, domain.DurationMonthly)
	assert.False(t, ok, "free tier has no pricing entry")

	_, ok = catalog.Pricing(domain.RoleAdmin, domain.PlanBasic, domain.DurationMonthly)
	assert.False(t, ok)

	_, ok = catalog.Pricing(domain.RoleHiring, domain.PlanPro, domain.Duration("weekly"))
	assert.False(t, ok)
}

func TestLimits(t *testing.T) {
	l, err := catalog.Limits(domain.RoleFreelancer, domain.PlanPro)
	require.NoError(t, err)
	assert.Equal(t, domain.Unlimited, l.MaxApplications)

	l, err = catalog.Limits(domain.RoleHiring, domain.PlanFree)
	require.NoError(t, err)
	assert.Equal(t, 2, l.MaxGigs)

	_, err = catalog.Limits(domain.RoleAdmin, domain.PlanFree)
	assert.Error(t, err)

	_, err = catalog.Limits(domain.RoleHiring, domain.PlanType("enterprise"))
	assert.Error(t, err)
}

func TestUpgradeOptions(t *testing.T) {
	opts := catalog.UpgradeOptions(domain.RoleFreelancer, domain.PlanFree)
	require.Len(t, opts, 2)
	assert.Equal(t, domain.PlanBasic, opts[0].PlanType)
	assert.Equal(t, domain.PlanPro, opts[1].PlanType)
	assert.Contains(t, opts[0].Pricing, domain.DurationYearly)

	opts = catalog.UpgradeOptions(domain.RoleHiring, domain.PlanBasic)
	require.Len(t, opts, 1)
	assert.Equal(t, domain.PlanPro, opts[0].PlanType)

	assert.Nil(t, catalog.UpgradeOptions(domain.RoleHiring, domain.PlanPro))
	assert.Nil(t, catalog.UpgradeOptions(domain.RoleHiring, domain.PlanType("gold")))
}

func TestPlans(t *testing.T) {
	resp, err := catalog.Plans(domain.RoleHiring)
	require.NoError(t, err)
	require.Len(t, resp.Plans, 3)
	assert.Equal(t, domain.PlanFree, resp.Plans[0].PlanType)
	assert.Nil(t, resp.Plans[0].Pricing)
	assert.NotEmpty(t, resp.Plans[2].Features)

	require.Len(t, resp.Comparison, 3)
	assert.Equal(t, "unlimited", resp.Comparison[0].Values[domain.PlanPro])
	assert.Equal(t, "0", resp.Comparison[2].Values[domain.PlanFree])
	assert.Equal(t, "799", resp.Comparison[2].Values[domain.PlanPro])

	_, err = catalog.Plans(domain.Role("client"))
	assert.Error(t, err)
}
