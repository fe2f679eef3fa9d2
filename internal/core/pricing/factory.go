package pricing

import (
	"fmt"

	"github.com/keisuke-w/tokenwatch/internal/util"
)

// CreateProvider creates a pricing provider based on configuration.
func CreateProvider(cfg *SourceConfig, cacheDir string) (Provider, error) {
	var baseProvider Provider

	switch cfg.PricingSource {
	case "default", "":
		baseProvider = NewDefaultProvider()
	case "litellm":
		baseProvider = NewLiteLLMProvider()
	default:
		return nil, fmt.Errorf("unknown pricing source: %s", cfg.PricingSource)
	}

	// Offline mode and remote sources get the persisted cache wrapper.
	if cfg.PricingOfflineMode || cfg.PricingSource == "litellm" {
		cacheManager, err := NewCacheManager(cacheDir)
		if err != nil {
			return nil, fmt.Errorf("failed to create pricing cache manager: %w", err)
		}

		util.LogDebugf("Pricing cache enabled: offline=%t, source=%s",
			cfg.PricingOfflineMode, cfg.PricingSource)
		return NewCachedProvider(baseProvider, cacheManager, cfg.PricingOfflineMode), nil
	}

	return baseProvider, nil
}
