package service

import (
	"testing"
	"time"

	"github.com/quotabl/quotabl/internal/clock"
	pricingdomain "github.com/quotabl/quotabl/internal/pricing/domain"
	"github.com/stretchr/testify/assert"
)

func TestCacheKeyNormalizesCase(t *testing.T) {
	a := cacheKey(pricingdomain.PricingContext{ArticleCode: "ART-1", CustomerCode: "CUST-1", Quantity: 5}, 45)
	b := cacheKey(pricingdomain.PricingContext{ArticleCode: "art-1", CustomerCode: " cust-1 ", Quantity: 5}, 45)
	assert.Equal(t, a, b)

	c := cacheKey(pricingdomain.PricingContext{ArticleCode: "art-1", CustomerCode: "cust-1", Quantity: 6}, 45)
	assert.NotEqual(t, a, c)
}

func TestDecisionCacheTTL(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC))
	cache := newDecisionCache(clk, 5*time.Minute, 100)

	decision := &pricingdomain.PricingDecision{UnitPrice: 99.5}
	cache.Set("k1", decision)

	got, ok := cache.Get("k1")
	assert.True(t, ok)
	assert.Equal(t, decision, got)

	clk.Advance(4 * time.Minute)
	_, ok = cache.Get("k1")
	assert.True(t, ok)

	clk.Advance(2 * time.Minute)
	_, ok = cache.Get("k1")
	assert.False(t, ok)
}

func TestDecisionCacheFIFOEviction(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC))
	cache := newDecisionCache(clk, time.Hour, 2)

	d1 := &pricingdomain.PricingDecision{UnitPrice: 1}
	d2 := &pricingdomain.PricingDecision{UnitPrice: 2}
	d3 := &pricingdomain.PricingDecision{UnitPrice: 3}

	cache.Set("k1", d1)
	cache.Set("k2", d2)

	// Touching k1 must not save it: eviction is insertion-ordered.
	_, _ = cache.Get("k1")

	cache.Set("k3", d3)

	_, ok := cache.Get("k1")
	assert.False(t, ok)
	_, ok = cache.Get("k2")
	assert.True(t, ok)
	_, ok = cache.Get("k3")
	assert.True(t, ok)
}

func TestDecisionCacheOverwriteKeepsSingleSlot(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC))
	cache := newDecisionCache(clk, time.Minute, 2)

	cache.Set("k1", &pricingdomain.PricingDecision{UnitPrice: 1})
	clk.Advance(2 * time.Minute)

	// Expired entry, then re-set under the same key.
	_, ok := cache.Get("k1")
	assert.False(t, ok)
	cache.Set("k1", &pricingdomain.PricingDecision{UnitPrice: 10})

	cache.Set("k2", &pricingdomain.PricingDecision{UnitPrice: 2})
	cache.Set("k3", &pricingdomain.PricingDecision{UnitPrice: 3})

	// k1 was the oldest slot and must be the one evicted.
	_, ok = cache.Get("k1")
	assert.False(t, ok)
	_, ok = cache.Get("k2")
	assert.True(t, ok)
	_, ok = cache.Get("k3")
	assert.True(t, ok)
}
