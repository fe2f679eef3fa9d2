package pricing

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/keisuke-w/tokenwatch/internal/util"
)

// CachedProvider wraps another provider with a persisted catalog cache so
// reports keep pricing when the remote source is unreachable.
type CachedProvider struct {
	provider     Provider
	cacheManager *CacheManager
	useOffline   bool

	updateMu       sync.Mutex
	lastUpdateTime time.Time
	updateInterval time.Duration
}

// NewCachedProvider creates a new cached pricing provider
func NewCachedProvider(provider Provider, cacheManager *CacheManager, useOffline bool) *CachedProvider {
	return &CachedProvider{
		provider:       provider,
		cacheManager:   cacheManager,
		useOffline:     useOffline,
		updateInterval: 1 * time.Minute, // Update the persisted cache at most once per minute
	}
}

// GetPricing returns the rates for an official (provider, model) key.
func (p *CachedProvider) GetPricing(ctx context.Context, provider, model string) (ModelPricing, error) {
	if p.useOffline {
		cache, err := p.cacheManager.LoadPricing(ctx)
		if err == nil {
			if pricing, ok := cache.Pricing[Key(provider, model)]; ok {
				return pricing, nil
			}
			return ModelPricing{}, fmt.Errorf("%w: %s", ErrPricingNotFound, Key(provider, model))
		}
		util.LogDebugf("Offline pricing cache unavailable, falling back to provider: %v", err)
	}

	pricing, err := p.provider.GetPricing(ctx, provider, model)
	if err != nil {
		// A stale cache beats no pricing at all, but only for fetch
		// failures; a definitive not-found passes through.
		if !p.useOffline && p.cacheManager.HasCache() && !errors.Is(err, ErrPricingNotFound) {
			cache, cacheErr := p.cacheManager.LoadPricing(ctx)
			if cacheErr == nil {
				if cachedPricing, ok := cache.Pricing[Key(provider, model)]; ok {
					util.LogInfof("Using cached pricing for %s after provider failure", Key(provider, model))
					return cachedPricing, nil
				}
			}
		}
		return ModelPricing{}, err
	}

	if !p.useOffline && p.provider.GetProviderName() != "default" {
		go p.updateCacheIfNeeded()
	}

	return pricing, nil
}

// GetAllPricings returns all available model pricings
func (p *CachedProvider) GetAllPricings(ctx context.Context) (map[string]ModelPricing, error) {
	if p.useOffline {
		cache, err := p.cacheManager.LoadPricing(ctx)
		if err == nil {
			return cache.Pricing, nil
		}
		util.LogDebugf("Offline pricing cache unavailable, falling back to provider: %v", err)
	}

	pricing, err := p.provider.GetAllPricings(ctx)
	if err != nil {
		if !p.useOffline && p.cacheManager.HasCache() {
			cache, cacheErr := p.cacheManager.LoadPricing(ctx)
			if cacheErr == nil {
				util.LogInfof("Using cached pricing data after provider failure")
				return cache.Pricing, nil
			}
		}
		return nil, err
	}

	if !p.useOffline && p.provider.GetProviderName() != "default" {
		go p.updateCacheIfNeeded()
	}

	return pricing, nil
}

// RefreshPricing forces a refresh of pricing data
func (p *CachedProvider) RefreshPricing(ctx context.Context) error {
	if p.useOffline {
		return fmt.Errorf("cannot refresh pricing in offline mode")
	}

	if err := p.provider.RefreshPricing(ctx); err != nil {
		return err
	}

	allPricing, err := p.provider.GetAllPricings(ctx)
	if err != nil {
		return err
	}

	return p.cacheManager.SavePricing(ctx, p.provider.GetProviderName(), allPricing)
}

// GetProviderName returns the name of this pricing provider
func (p *CachedProvider) GetProviderName() string {
	if p.useOffline {
		return fmt.Sprintf("%s-offline", p.provider.GetProviderName())
	}
	return fmt.Sprintf("%s-cached", p.provider.GetProviderName())
}

// updateCacheIfNeeded updates the persisted cache if enough time has passed
func (p *CachedProvider) updateCacheIfNeeded() {
	p.updateMu.Lock()
	defer p.updateMu.Unlock()

	now := time.Now()
	if !p.lastUpdateTime.IsZero() && now.Sub(p.lastUpdateTime) < p.updateInterval {
		return
	}

	ctx := context.Background()
	allPricing, err := p.provider.GetAllPricings(ctx)
	if err != nil {
		util.LogDebugf("Failed to fetch pricing data for cache update: %v", err)
		return
	}

	if err := p.cacheManager.SavePricing(ctx, p.provider.GetProviderName(), allPricing); err != nil {
		util.LogDebugf("Failed to update pricing cache: %v", err)
	} else {
		p.lastUpdateTime = now
	}
}
