package pricing

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/bytedance/sonic"

	"github.com/keisuke-w/tokenwatch/internal/util"
)

const (
	liteLLMPricingURL = "https://raw.githubusercontent.com/BerriAI/litellm/main/model_prices_and_context_window.json"
	cacheExpiration   = 24 * time.Hour // Refetch pricing data after 24 hours
)

// LiteLLMProvider implements Provider by fetching pricing from LiteLLM's repository
type LiteLLMProvider struct {
	mu            sync.RWMutex
	pricing       map[string]ModelPricing
	lastFetchTime time.Time
	httpClient    *http.Client
}

// liteLLMModel represents the structure of a model in LiteLLM's pricing data
type liteLLMModel struct {
	Provider                    string   `json:"litellm_provider"`
	InputCostPerToken           *float64 `json:"input_cost_per_token"`
	OutputCostPerToken          *float64 `json:"output_cost_per_token"`
	CacheCreationInputTokenCost *float64 `json:"cache_creation_input_token_cost"`
	CacheReadInputTokenCost     *float64 `json:"cache_read_input_token_cost"`
	OutputCostPerReasoningToken *float64 `json:"output_cost_per_reasoning_token"`
}

// NewLiteLLMProvider creates a new LiteLLM pricing provider
func NewLiteLLMProvider() *LiteLLMProvider {
	return &LiteLLMProvider{
		pricing: make(map[string]ModelPricing),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// GetPricing returns the rates for an official (provider, model) key.
func (p *LiteLLMProvider) GetPricing(ctx context.Context, provider, model string) (ModelPricing, error) {
	if err := p.ensurePricingLoaded(ctx); err != nil {
		return ModelPricing{}, err
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	if pricing, ok := p.pricing[Key(provider, model)]; ok {
		return pricing, nil
	}

	return ModelPricing{}, fmt.Errorf("%w: %s", ErrPricingNotFound, Key(provider, model))
}

// GetAllPricings returns all available model pricings
func (p *LiteLLMProvider) GetAllPricings(ctx context.Context) (map[string]ModelPricing, error) {
	if err := p.ensurePricingLoaded(ctx); err != nil {
		return nil, err
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	// Return a copy to prevent external modification
	result := make(map[string]ModelPricing, len(p.pricing))
	for k, v := range p.pricing {
		result[k] = v
	}
	return result, nil
}

// RefreshPricing forces a refresh of pricing data
func (p *LiteLLMProvider) RefreshPricing(ctx context.Context) error {
	return p.fetchPricing(ctx)
}

// GetProviderName returns the name of this pricing provider
func (p *LiteLLMProvider) GetProviderName() string {
	return "litellm"
}

// ensurePricingLoaded checks if pricing data needs to be loaded or refreshed
func (p *LiteLLMProvider) ensurePricingLoaded(ctx context.Context) error {
	p.mu.RLock()
	needsRefresh := time.Since(p.lastFetchTime) > cacheExpiration || len(p.pricing) == 0
	currentCount := len(p.pricing)
	lastFetch := p.lastFetchTime
	p.mu.RUnlock()

	if needsRefresh {
		if currentCount == 0 {
			util.LogDebug("LiteLLM pricing data not loaded, fetching...")
		} else {
			util.LogDebugf("LiteLLM pricing data expired (last fetch: %s), refreshing...",
				lastFetch.Format("2006-01-02 15:04:05"))
		}
		return p.fetchPricing(ctx)
	}

	return nil
}

// fetchPricing fetches the latest pricing data from LiteLLM
func (p *LiteLLMProvider) fetchPricing(ctx context.Context) error {
	util.LogDebugf("Fetching pricing data from LiteLLM: %s", liteLLMPricingURL)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, liteLLMPricingURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPricingUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: unexpected status code %d", ErrPricingUnavailable, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	var rawData map[string]liteLLMModel
	if err := sonic.Unmarshal(body, &rawData); err != nil {
		return fmt.Errorf("failed to parse pricing data: %w", err)
	}

	util.LogDebugf("Parsed %d model entries from LiteLLM data", len(rawData))

	newPricing := make(map[string]ModelPricing)
	for name, entry := range rawData {
		if entry.Provider == "" || entry.InputCostPerToken == nil || entry.OutputCostPerToken == nil {
			continue
		}

		// LiteLLM keys are either bare model names or "provider/model";
		// normalize both to our provider/model key space.
		model := name
		if idx := strings.LastIndex(name, "/"); idx >= 0 {
			model = name[idx+1:]
		}

		mp := ModelPricing{
			Input:  *entry.InputCostPerToken * 1_000_000,
			Output: *entry.OutputCostPerToken * 1_000_000,
		}
		if entry.CacheReadInputTokenCost != nil {
			mp.CacheRead = f(*entry.CacheReadInputTokenCost * 1_000_000)
		}
		if entry.CacheCreationInputTokenCost != nil {
			mp.CacheWrite = f(*entry.CacheCreationInputTokenCost * 1_000_000)
		}
		if entry.OutputCostPerReasoningToken != nil {
			mp.Reasoning = f(*entry.OutputCostPerReasoningToken * 1_000_000)
		}
		newPricing[Key(entry.Provider, model)] = mp
	}

	p.mu.Lock()
	p.pricing = newPricing
	p.lastFetchTime = time.Now()
	p.mu.Unlock()

	util.LogDebugf("Loaded %d priced models from LiteLLM", len(newPricing))
	return nil
}
