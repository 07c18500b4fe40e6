package service

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/quotabl/quotabl/internal/clock"
	pricingdomain "github.com/quotabl/quotabl/internal/pricing/domain"
)

// decisionCache keeps recent decisions keyed by (article, customer, quantity,
// margin). Eviction is size-bounded FIFO, not LRU: insertion order alone
// decides the victim, which keeps the bookkeeping to a single slice.
type decisionCache struct {
	mu         sync.Mutex
	clock      clock.Clock
	ttl        time.Duration
	maxEntries int
	entries    map[string]cacheEntry
	order      []string
}

type cacheEntry struct {
	decision  *pricingdomain.PricingDecision
	expiresAt time.Time
}

func newDecisionCache(clk clock.Clock, ttl time.Duration, maxEntries int) *decisionCache {
	return &decisionCache{
		clock:      clk,
		ttl:        ttl,
		maxEntries: maxEntries,
		entries:    make(map[string]cacheEntry, maxEntries),
	}
}

func cacheKey(pctx pricingdomain.PricingContext, margin float64) string {
	return strings.Join([]string{
		strings.ToLower(strings.TrimSpace(pctx.ArticleCode)),
		strings.ToLower(strings.TrimSpace(pctx.CustomerCode)),
		fmt.Sprintf("%g", pctx.Quantity),
		fmt.Sprintf("%g", margin),
	}, "|")
}

func (c *decisionCache) Get(key string) (*pricingdomain.PricingDecision, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if c.clock.Now().After(entry.expiresAt) {
		// Leave the slot in place; the next Set overwrites it and FIFO
		// eviction reclaims it eventually. Keeps entries and order in sync.
		return nil, false
	}
	return entry.decision, true
}

func (c *decisionCache) Set(key string, decision *pricingdomain.PricingDecision) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists {
		for len(c.order) >= c.maxEntries {
			oldest := c.order[0]
			c.order = c.order[1:]
			delete(c.entries, oldest)
		}
		c.order = append(c.order, key)
	}
	c.entries[key] = cacheEntry{
		decision:  decision,
		expiresAt: c.clock.Now().Add(c.ttl),
	}
}
