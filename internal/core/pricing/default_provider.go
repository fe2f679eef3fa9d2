package pricing

import (
	"context"
)

func f(v float64) *float64 { return &v }

// builtinPricing is the bundled catalog, keyed by "provider/model".
// Rates are USD per million tokens.
var builtinPricing = map[string]ModelPricing{
	"anthropic/claude-opus-4-5": {
		Input:      5.00,
		Output:     25.00,
		CacheRead:  f(0.50),
		CacheWrite: f(6.25),
	},
	"anthropic/claude-sonnet-4-5": {
		Input:      3.00,
		Output:     15.00,
		CacheRead:  f(0.30),
		CacheWrite: f(3.75),
	},
	"anthropic/claude-haiku-4-5": {
		Input:      1.00,
		Output:     5.00,
		CacheRead:  f(0.10),
		CacheWrite: f(1.25),
	},
	"google/gemini-3-pro-preview": {
		Input:     2.00,
		Output:    12.00,
		CacheRead: f(0.20),
	},
	"google/gemini-2.5-flash": {
		Input:     0.30,
		Output:    2.50,
		CacheRead: f(0.03),
	},
	"openai/gpt-5.1": {
		Input:     1.25,
		Output:    10.00,
		CacheRead: f(0.125),
	},
	"openai/gpt-5.1-codex": {
		Input:     1.25,
		Output:    10.00,
		CacheRead: f(0.125),
	},
	"xai/grok-code-fast-1": {
		Input:     0.20,
		Output:    1.50,
		CacheRead: f(0.02),
	},
	"xai/grok-4": {
		Input:  3.00,
		Output: 15.00,
	},
	"deepseek/deepseek-v3": {
		Input:  0.27,
		Output: 1.10,
	},
}

// DefaultProvider implements Provider using the bundled static catalog.
type DefaultProvider struct{}

// NewDefaultProvider creates a new default pricing provider
func NewDefaultProvider() Provider {
	return &DefaultProvider{}
}

// GetPricing returns the rates for the given key from the bundled catalog.
func (p *DefaultProvider) GetPricing(ctx context.Context, provider, model string) (ModelPricing, error) {
	if pricing, ok := builtinPricing[Key(provider, model)]; ok {
		return pricing, nil
	}
	return ModelPricing{}, ErrPricingNotFound
}

// GetAllPricings returns all bundled entries.
func (p *DefaultProvider) GetAllPricings(ctx context.Context) (map[string]ModelPricing, error) {
	// Return a copy to prevent external modification
	result := make(map[string]ModelPricing, len(builtinPricing))
	for k, v := range builtinPricing {
		result[k] = v
	}
	return result, nil
}

// RefreshPricing is a no-op for the default provider.
func (p *DefaultProvider) RefreshPricing(ctx context.Context) error {
	return nil
}

// GetProviderName returns the name of this pricing provider.
func (p *DefaultProvider) GetProviderName() string {
	return "default"
}
