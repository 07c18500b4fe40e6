package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// PricingPolicy carries the commercial knobs of the pricing engine. The 5%
// price-stability threshold is deliberately absent: it is a fixed constant of
// the decision tree, not policy.
type PricingPolicy struct {
	DefaultMarginPercent float64 `mapstructure:"defaultMarginPercent"`
	MarginFloorPercent   float64 `mapstructure:"marginFloorPercent"`
	MarginCeilingPercent float64 `mapstructure:"marginCeilingPercent"`

	UrgentVariationPercent float64 `mapstructure:"urgentVariationPercent"`
	HighVariationPercent   float64 `mapstructure:"highVariationPercent"`

	UrgentValidationTTL  time.Duration `mapstructure:"urgentValidationTTL"`
	DefaultValidationTTL time.Duration `mapstructure:"defaultValidationTTL"`

	DecisionCacheTTL     time.Duration `mapstructure:"decisionCacheTTL"`
	DecisionCacheEntries int           `mapstructure:"decisionCacheEntries"`

	SalesLookbackDays    int `mapstructure:"salesLookbackDays"`
	PurchaseLookbackDays int `mapstructure:"purchaseLookbackDays"`
	OtherSalesLimit      int `mapstructure:"otherSalesLimit"`
	MinReferenceSales    int `mapstructure:"minReferenceSales"`
}

func DefaultPricingPolicy() PricingPolicy {
	return PricingPolicy{
		DefaultMarginPercent:   45,
		MarginFloorPercent:     35,
		MarginCeilingPercent:   45,
		UrgentVariationPercent: 20,
		HighVariationPercent:   10,
		UrgentValidationTTL:    4 * time.Hour,
		DefaultValidationTTL:   48 * time.Hour,
		DecisionCacheTTL:       5 * time.Minute,
		DecisionCacheEntries:   100,
		SalesLookbackDays:      365,
		PurchaseLookbackDays:   180,
		OtherSalesLimit:        50,
		MinReferenceSales:      3,
	}
}

type PricingPolicyHolder struct {
	current atomic.Value // holds PricingPolicy
}

// NewPricingPolicyHolder loads pricing.yml when present, falls back to
// compiled defaults otherwise, and hot-reloads on file change.
func NewPricingPolicyHolder() (*PricingPolicyHolder, error) {
	v := viper.New()

	v.SetConfigName("pricing")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/quotabl/config")
	v.AddConfigPath("/etc/quotabl")
	v.AddConfigPath(".")

	v.SetEnvPrefix("QUOTABL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setPolicyDefaults(v, DefaultPricingPolicy())

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var policy PricingPolicy
	if err := v.UnmarshalKey("pricing", &policy); err != nil {
		return nil, err
	}
	if err := validatePricingPolicy(policy); err != nil {
		return nil, err
	}

	holder := &PricingPolicyHolder{}
	holder.current.Store(policy)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated PricingPolicy
		if err := v.UnmarshalKey("pricing", &updated); err != nil {
			log.Printf("[pricing-policy] reload failed: %v", err)
			return
		}
		if err := validatePricingPolicy(updated); err != nil {
			log.Printf("[pricing-policy] invalid policy ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[pricing-policy] reloaded from %s", e.Name)
	})

	return holder, nil
}

func (h *PricingPolicyHolder) Get() PricingPolicy {
	return h.current.Load().(PricingPolicy)
}

// NewStaticPricingPolicyHolder wraps a fixed policy, used by tests.
func NewStaticPricingPolicyHolder(policy PricingPolicy) *PricingPolicyHolder {
	holder := &PricingPolicyHolder{}
	holder.current.Store(policy)
	return holder
}

func setPolicyDefaults(v *viper.Viper, d PricingPolicy) {
	v.SetDefault("pricing.defaultMarginPercent", d.DefaultMarginPercent)
	v.SetDefault("pricing.marginFloorPercent", d.MarginFloorPercent)
	v.SetDefault("pricing.marginCeilingPercent", d.MarginCeilingPercent)
	v.SetDefault("pricing.urgentVariationPercent", d.UrgentVariationPercent)
	v.SetDefault("pricing.highVariationPercent", d.HighVariationPercent)
	v.SetDefault("pricing.urgentValidationTTL", d.UrgentValidationTTL)
	v.SetDefault("pricing.defaultValidationTTL", d.DefaultValidationTTL)
	v.SetDefault("pricing.decisionCacheTTL", d.DecisionCacheTTL)
	v.SetDefault("pricing.decisionCacheEntries", d.DecisionCacheEntries)
	v.SetDefault("pricing.salesLookbackDays", d.SalesLookbackDays)
	v.SetDefault("pricing.purchaseLookbackDays", d.PurchaseLookbackDays)
	v.SetDefault("pricing.otherSalesLimit", d.OtherSalesLimit)
	v.SetDefault("pricing.minReferenceSales", d.MinReferenceSales)
}

func validatePricingPolicy(p PricingPolicy) error {
	if p.DefaultMarginPercent <= 0 {
		return errors.New("pricing.defaultMarginPercent must be positive")
	}
	if p.MarginFloorPercent <= 0 || p.MarginFloorPercent > p.MarginCeilingPercent {
		return errors.New("pricing.marginFloorPercent must be positive and not exceed the ceiling")
	}
	if p.HighVariationPercent <= 0 || p.UrgentVariationPercent <= p.HighVariationPercent {
		return errors.New("pricing variation thresholds must be positive and ordered")
	}
	if p.UrgentValidationTTL <= 0 || p.DefaultValidationTTL <= 0 {
		return errors.New("pricing validation TTLs must be positive")
	}
	if p.DecisionCacheEntries <= 0 {
		return errors.New("pricing.decisionCacheEntries must be positive")
	}
	if p.SalesLookbackDays <= 0 || p.PurchaseLookbackDays <= 0 {
		return errors.New("pricing lookback windows must be positive")
	}
	return nil
}
