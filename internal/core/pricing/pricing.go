package pricing

import (
	"context"
	"errors"
	"fmt"
)

// SourceConfig selects how catalog rates are obtained.
type SourceConfig struct {
	PricingSource      string `json:"pricingSource"`
	PricingOfflineMode bool   `json:"pricingOfflineMode"`
}

// ModelPricing defines USD-per-million-token rates for one catalog entry.
// CacheRead, CacheWrite and Reasoning are nil when the catalog omits them;
// the cost calculator then falls back to the input/input/output rates.
type ModelPricing struct {
	Input      float64  `json:"input"`
	Output     float64  `json:"output"`
	CacheRead  *float64 `json:"cache_read,omitempty"`
	CacheWrite *float64 `json:"cache_write,omitempty"`
	Reasoning  *float64 `json:"reasoning,omitempty"`
}

// Provider defines the interface for pricing catalog lookups.
type Provider interface {
	// GetPricing returns the rates for an official (provider, model) key.
	// Returns ErrPricingNotFound when the catalog has no entry.
	GetPricing(ctx context.Context, provider, model string) (ModelPricing, error)

	// GetAllPricings returns all entries keyed by "provider/model".
	GetAllPricings(ctx context.Context) (map[string]ModelPricing, error)

	// RefreshPricing forces a refresh of pricing data (for remote providers).
	RefreshPricing(ctx context.Context) error

	// GetProviderName returns the name of this pricing provider.
	GetProviderName() string
}

// ErrPricingNotFound is returned when the catalog has no entry for a key.
var ErrPricingNotFound = errors.New("pricing not found for model")

// ErrPricingUnavailable is returned when pricing data is temporarily unavailable.
var ErrPricingUnavailable = errors.New("pricing data temporarily unavailable")

// Key builds the canonical "provider/model" catalog map key.
func Key(provider, model string) string {
	return fmt.Sprintf("%s/%s", provider, model)
}

// Has reports whether the catalog resolves the given key.
func Has(ctx context.Context, p Provider, provider, model string) bool {
	_, err := p.GetPricing(ctx, provider, model)
	return err == nil
}

func rate(override *float64, fallback float64) float64 {
	if override != nil {
		return *override
	}
	return fallback
}
