package pricing

import (
	"github.com/keisuke-w/tokenwatch/internal/core/model"
)

// Cost computes the USD cost of a token bucket at the given rates.
// Omitted cache rates default to the input rate; an omitted reasoning rate
// defaults to the output rate. Zero buckets and all-zero rates yield 0.
func Cost(p ModelPricing, bucket model.TokenBucket) float64 {
	cost := float64(bucket.Input) / 1_000_000 * p.Input
	cost += float64(bucket.Output) / 1_000_000 * p.Output
	cost += float64(bucket.CacheRead) / 1_000_000 * rate(p.CacheRead, p.Input)
	cost += float64(bucket.CacheWrite) / 1_000_000 * rate(p.CacheWrite, p.Input)
	cost += float64(bucket.Reasoning) / 1_000_000 * rate(p.Reasoning, p.Output)
	return cost
}
