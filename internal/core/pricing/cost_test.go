package pricing

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/keisuke-w/tokenwatch/internal/core/model"
)

func TestCost(t *testing.T) {
	tests := []struct {
		name     string
		pricing  ModelPricing
		bucket   model.TokenBucket
		expected float64
	}{
		{
			name:     "zero_bucket_costs_nothing",
			pricing:  ModelPricing{Input: 5, Output: 25},
			bucket:   model.TokenBucket{},
			expected: 0,
		},
		{
			name:     "zero_rates_cost_nothing",
			pricing:  ModelPricing{},
			bucket:   model.TokenBucket{Input: 1000000, Output: 1000000},
			expected: 0,
		},
		{
			name:     "input_and_output",
			pricing:  ModelPricing{Input: 3, Output: 15},
			bucket:   model.TokenBucket{Input: 1_000_000, Output: 2_000_000},
			expected: 3 + 30,
		},
		{
			name:    "explicit_cache_rates",
			pricing: ModelPricing{Input: 3, Output: 15, CacheRead: f(0.3), CacheWrite: f(3.75)},
			bucket: model.TokenBucket{
				CacheRead:  1_000_000,
				CacheWrite: 1_000_000,
			},
			expected: 0.3 + 3.75,
		},
		{
			name:    "cache_rates_default_to_input",
			pricing: ModelPricing{Input: 2, Output: 10},
			bucket: model.TokenBucket{
				CacheRead:  500_000,
				CacheWrite: 500_000,
			},
			expected: 1 + 1,
		},
		{
			name:     "reasoning_defaults_to_output",
			pricing:  ModelPricing{Input: 2, Output: 10},
			bucket:   model.TokenBucket{Reasoning: 1_000_000},
			expected: 10,
		},
		{
			name:     "explicit_reasoning_rate",
			pricing:  ModelPricing{Input: 2, Output: 10, Reasoning: f(20)},
			bucket:   model.TokenBucket{Reasoning: 500_000},
			expected: 10,
		},
		{
			name:    "all_buckets_together",
			pricing: ModelPricing{Input: 1, Output: 2, CacheRead: f(0.1), CacheWrite: f(1.25), Reasoning: f(4)},
			bucket: model.TokenBucket{
				Input:      1_000_000,
				Output:     1_000_000,
				Reasoning:  1_000_000,
				CacheRead:  1_000_000,
				CacheWrite: 1_000_000,
			},
			expected: 1 + 2 + 0.1 + 1.25 + 4,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, Cost(tt.pricing, tt.bucket), 1e-9)
		})
	}
}

func TestCostNonNegative(t *testing.T) {
	pricing := ModelPricing{Input: 5, Output: 25, CacheRead: f(0.5)}
	bucket := model.TokenBucket{Input: 123, Output: 456, CacheRead: 789}
	assert.GreaterOrEqual(t, Cost(pricing, bucket), 0.0)
}
