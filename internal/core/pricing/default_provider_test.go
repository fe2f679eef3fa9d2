package pricing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultProviderGetPricing(t *testing.T) {
	provider := NewDefaultProvider()
	ctx := context.Background()

	tests := []struct {
		name      string
		provider  string
		model     string
		expectErr bool
	}{
		{"anthropic_opus", "anthropic", "claude-opus-4-5", false},
		{"anthropic_sonnet", "anthropic", "claude-sonnet-4-5", false},
		{"google_gemini", "google", "gemini-3-pro-preview", false},
		{"openai_gpt", "openai", "gpt-5.1", false},
		{"unknown_model", "anthropic", "claude-opus-99", true},
		{"unknown_provider", "acme", "claude-opus-4-5", true},
		{"empty_key", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pricing, err := provider.GetPricing(ctx, tt.provider, tt.model)

			if tt.expectErr {
				assert.ErrorIs(t, err, ErrPricingNotFound)
				return
			}

			require.NoError(t, err)
			assert.Greater(t, pricing.Input, 0.0)
			assert.Greater(t, pricing.Output, 0.0)
		})
	}
}

func TestDefaultProviderGetAllPricings(t *testing.T) {
	provider := NewDefaultProvider()

	all, err := provider.GetAllPricings(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, all)

	// Mutating the returned map must not affect the provider.
	delete(all, "anthropic/claude-opus-4-5")
	_, err = provider.GetPricing(context.Background(), "anthropic", "claude-opus-4-5")
	assert.NoError(t, err)
}

func TestCreateProvider(t *testing.T) {
	tests := []struct {
		name      string
		cfg       SourceConfig
		expectErr bool
		wantName  string
	}{
		{"default_source", SourceConfig{PricingSource: "default"}, false, "default"},
		{"empty_source", SourceConfig{}, false, "default"},
		{"litellm_source", SourceConfig{PricingSource: "litellm"}, false, "litellm-cached"},
		{"offline_default", SourceConfig{PricingSource: "default", PricingOfflineMode: true}, false, "default-offline"},
		{"unknown_source", SourceConfig{PricingSource: "bogus"}, true, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider, err := CreateProvider(&tt.cfg, t.TempDir())

			if tt.expectErr {
				assert.Error(t, err)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.wantName, provider.GetProviderName())
		})
	}
}

func TestCacheManagerRoundTrip(t *testing.T) {
	manager, err := NewCacheManager(t.TempDir())
	require.NoError(t, err)

	assert.False(t, manager.HasCache())

	pricing := map[string]ModelPricing{
		"anthropic/claude-opus-4-5": {Input: 5, Output: 25, CacheRead: f(0.5)},
	}
	require.NoError(t, manager.SavePricing(context.Background(), "litellm", pricing))
	assert.True(t, manager.HasCache())

	cache, err := manager.LoadPricing(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "litellm", cache.Source)
	require.Contains(t, cache.Pricing, "anthropic/claude-opus-4-5")
	assert.Equal(t, 5.0, cache.Pricing["anthropic/claude-opus-4-5"].Input)
	require.NotNil(t, cache.Pricing["anthropic/claude-opus-4-5"].CacheRead)
	assert.Equal(t, 0.5, *cache.Pricing["anthropic/claude-opus-4-5"].CacheRead)
}
