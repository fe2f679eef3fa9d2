package pricing

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/bytedance/sonic"

	"github.com/keisuke-w/tokenwatch/internal/util"
)

// CacheManager persists catalog data for offline use.
type CacheManager struct {
	mu        sync.RWMutex
	cacheFile string
}

// PricingCache represents the persisted catalog data.
type PricingCache struct {
	Source    string                  `json:"source"`
	UpdatedAt time.Time               `json:"updated_at"`
	Pricing   map[string]ModelPricing `json:"pricing"`
}

// NewCacheManager creates a cache manager writing pricing.json under baseDir.
func NewCacheManager(baseDir string) (*CacheManager, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create pricing cache directory: %w", err)
	}

	return &CacheManager{
		cacheFile: filepath.Join(baseDir, "pricing.json"),
	}, nil
}

// SavePricing saves catalog data to the cache file.
func (m *CacheManager) SavePricing(ctx context.Context, source string, pricing map[string]ModelPricing) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cache := PricingCache{
		Source:    source,
		UpdatedAt: time.Now(),
		Pricing:   pricing,
	}

	data, err := sonic.MarshalIndent(cache, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal pricing cache: %w", err)
	}

	// Write to temporary file first, then rename into place (atomic).
	tmpFile := m.cacheFile + ".tmp"
	if err := os.WriteFile(tmpFile, data, 0644); err != nil {
		return fmt.Errorf("failed to write cache file: %w", err)
	}
	if err := os.Rename(tmpFile, m.cacheFile); err != nil {
		os.Remove(tmpFile)
		return fmt.Errorf("failed to rename cache file: %w", err)
	}

	util.LogDebugf("Saved %d pricing entries from %s to %s", len(pricing), source, m.cacheFile)
	return nil
}

// LoadPricing loads catalog data from the cache file.
func (m *CacheManager) LoadPricing(ctx context.Context) (*PricingCache, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, err := os.ReadFile(m.cacheFile)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("no cached pricing data available at %s", m.cacheFile)
		}
		return nil, fmt.Errorf("failed to read cache file %s: %w", m.cacheFile, err)
	}

	var cache PricingCache
	if err := sonic.Unmarshal(data, &cache); err != nil {
		return nil, fmt.Errorf("failed to unmarshal pricing cache: %w", err)
	}

	util.LogDebugf("Loaded cached pricing: source=%s, models=%d, updated_at=%s",
		cache.Source, len(cache.Pricing), cache.UpdatedAt.Format("2006-01-02 15:04:05"))

	return &cache, nil
}

// HasCache checks if cached pricing data exists.
func (m *CacheManager) HasCache() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, err := os.Stat(m.cacheFile)
	return err == nil
}
