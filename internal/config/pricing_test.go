package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultPricingPolicyIsValid(t *testing.T) {
	policy := DefaultPricingPolicy()
	require.NoError(t, validatePricingPolicy(policy))

	assert.Equal(t, 45.0, policy.DefaultMarginPercent)
	assert.Equal(t, 35.0, policy.MarginFloorPercent)
	assert.Equal(t, 4*time.Hour, policy.UrgentValidationTTL)
	assert.Equal(t, 48*time.Hour, policy.DefaultValidationTTL)
	assert.Equal(t, 3, policy.MinReferenceSales)
}

func TestValidatePricingPolicy(t *testing.T) {
	base := DefaultPricingPolicy()

	cases := []struct {
		name   string
		mutate func(*PricingPolicy)
	}{
		{"zero default margin", func(p *PricingPolicy) { p.DefaultMarginPercent = 0 }},
		{"floor above ceiling", func(p *PricingPolicy) { p.MarginFloorPercent = 50 }},
		{"zero floor", func(p *PricingPolicy) { p.MarginFloorPercent = 0 }},
		{"urgent below high", func(p *PricingPolicy) { p.UrgentVariationPercent = 5 }},
		{"zero urgent TTL", func(p *PricingPolicy) { p.UrgentValidationTTL = 0 }},
		{"zero cache entries", func(p *PricingPolicy) { p.DecisionCacheEntries = 0 }},
		{"zero sales lookback", func(p *PricingPolicy) { p.SalesLookbackDays = 0 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			policy := base
			tc.mutate(&policy)
			assert.Error(t, validatePricingPolicy(policy))
		})
	}
}

func TestStaticPricingPolicyHolder(t *testing.T) {
	policy := DefaultPricingPolicy()
	policy.DefaultMarginPercent = 40

	holder := NewStaticPricingPolicyHolder(policy)
	assert.Equal(t, 40.0, holder.Get().DefaultMarginPercent)
}
