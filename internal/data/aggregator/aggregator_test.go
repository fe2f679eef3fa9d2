package aggregator

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keisuke-w/tokenwatch/internal/core/mapping"
	"github.com/keisuke-w/tokenwatch/internal/core/model"
	"github.com/keisuke-w/tokenwatch/internal/core/pricing"
	"github.com/keisuke-w/tokenwatch/internal/data/store"
)

// fakeSource serves records from memory in the shape the store would.
type fakeSource struct {
	records  []model.UsageRecord
	sessions map[string]model.SessionMeta

	sessionCalls int
}

func (f *fakeSource) ListRecords(sinceMs, untilMs int64) ([]model.UsageRecord, error) {
	var out []model.UsageRecord
	for _, r := range f.records {
		if sinceMs != 0 && r.Timestamp < sinceMs {
			continue
		}
		if untilMs != 0 && r.Timestamp > untilMs {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func (f *fakeSource) ListRecordsForSession(sessionID string, sinceMs, untilMs int64) ([]model.UsageRecord, error) {
	f.sessionCalls++
	found := false
	for _, r := range f.records {
		if r.SessionID == sessionID {
			found = true
		}
	}
	if !found {
		return nil, fmt.Errorf("%w: %s", store.ErrSessionNotFound, sessionID)
	}

	var out []model.UsageRecord
	for _, r := range f.records {
		if r.SessionID != sessionID {
			continue
		}
		if sinceMs != 0 && r.Timestamp < sinceMs {
			continue
		}
		if untilMs != 0 && r.Timestamp > untilMs {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func (f *fakeSource) SessionIndex() map[string]model.SessionMeta {
	if f.sessions == nil {
		return map[string]model.SessionMeta{}
	}
	return f.sessions
}

func record(id, session, provider, modelName string, input, output, ts int64) model.UsageRecord {
	return model.UsageRecord{
		ID:        id,
		SessionID: session,
		Provider:  provider,
		Model:     modelName,
		Tokens:    model.TokenBucket{Input: input, Output: output},
		Timestamp: ts,
	}
}

func newEngine(source RecordSource) *Engine {
	return New(source, pricing.NewDefaultProvider(), mapping.NewMapper())
}

func TestAggregateThinkingVariantsShareRow(t *testing.T) {
	source := &fakeSource{records: []model.UsageRecord{
		record("r1", "s1", "opencode", "claude-opus-4-5-thinking", 1000, 500, 1000),
		record("r2", "s1", "opencode", "claude-opus-4-5", 200, 100, 2000),
	}}

	result, err := newEngine(source).Aggregate(context.Background(), Options{})
	require.NoError(t, err)

	require.Len(t, result.ByPricingKey, 1)
	row := result.ByPricingKey[0]
	assert.Equal(t, "anthropic", row.Provider)
	assert.Equal(t, "claude-opus-4-5", row.Model)
	assert.Equal(t, int64(1200), row.Tokens.Input)
	assert.Equal(t, int64(600), row.Tokens.Output)
	assert.Equal(t, 2, row.Messages)

	// Two source models, one pricing key.
	assert.Len(t, result.BySourceModel, 2)
	assert.Equal(t, 2, result.MessageCount)
	assert.Equal(t, 1, result.SessionCount)
	assert.InDelta(t, 1200.0/1e6*5+600.0/1e6*25, result.TotalCost, 1e-9)
}

func TestAggregateUnknownModel(t *testing.T) {
	source := &fakeSource{records: []model.UsageRecord{
		record("r1", "s1", "opencode", "unknown-custom-model-v2", 100, 50, 1000),
	}}

	result, err := newEngine(source).Aggregate(context.Background(), Options{})
	require.NoError(t, err)

	assert.Empty(t, result.ByPricingKey)
	assert.True(t, result.PricedTokens.IsZero())
	assert.Equal(t, int64(150), result.UnknownTokens.Total())

	require.Len(t, result.Unknown, 1)
	key := result.Unknown[0].Key
	assert.Equal(t, "unknown-custom-model-v2", key.SourceModel)
	assert.Empty(t, key.MappedProvider)
	assert.False(t, key.Unpriced)
}

func TestAggregateMappedButUnpriced(t *testing.T) {
	source := &fakeSource{records: []model.UsageRecord{
		record("r1", "s1", "opencode", "claude-opus-99", 100, 50, 1000),
	}}

	result, err := newEngine(source).Aggregate(context.Background(), Options{})
	require.NoError(t, err)

	require.Len(t, result.Unknown, 1)
	key := result.Unknown[0].Key
	// Provider was inferred but the catalog has no entry: the row must
	// carry the resolved mapping so operators can tell the cases apart.
	assert.Equal(t, "anthropic", key.MappedProvider)
	assert.Equal(t, "claude-opus-99", key.MappedModel)
	assert.True(t, key.Unpriced)
	assert.Equal(t, int64(150), result.UnknownTokens.Total())
}

func TestAggregatePartition(t *testing.T) {
	source := &fakeSource{records: []model.UsageRecord{
		record("r1", "s1", "opencode", "claude-opus-4-5", 100, 10, 1000),
		record("r2", "s1", "opencode", "mystery-model", 200, 20, 2000),
		record("r3", "s2", "cursor", "claude-opus-99", 300, 30, 3000),
		record("r4", "s2", "cursor", "gpt-5.1", 400, 40, 4000),
	}}

	result, err := newEngine(source).Aggregate(context.Background(), Options{})
	require.NoError(t, err)

	// Every record lands in exactly one partition; the sums must add up.
	var inputTotal int64
	for _, r := range source.records {
		inputTotal += r.Tokens.Input
	}
	assert.Equal(t, inputTotal, result.PricedTokens.Input+result.UnknownTokens.Input)
	assert.Equal(t, int64(500), result.PricedTokens.Input)
	assert.Equal(t, int64(500), result.UnknownTokens.Input)
	assert.Equal(t, 4, result.MessageCount)
	assert.Equal(t, 2, result.SessionCount)
}

func TestAggregateIdempotent(t *testing.T) {
	source := &fakeSource{
		records: []model.UsageRecord{
			record("r1", "s1", "opencode", "claude-opus-4-5", 100, 10, 1000),
			record("r2", "s2", "cursor", "gpt-5.1", 200, 20, 2000),
			record("r3", "s1", "opencode", "gemini-3-pro", 300, 30, 3000),
			record("r4", "s3", "opencode", "mystery-model", 400, 40, 4000),
			record("r5", "s2", "cursor", "claude-sonnet-4-5", 500, 50, 5000),
		},
		sessions: map[string]model.SessionMeta{"s1": {Title: "alpha"}},
	}
	engine := newEngine(source)

	first, err := engine.Aggregate(context.Background(), Options{})
	require.NoError(t, err)
	second, err := engine.Aggregate(context.Background(), Options{})
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestAggregateSortedByCostDescending(t *testing.T) {
	source := &fakeSource{records: []model.UsageRecord{
		// gpt-5.1 at 1.25/10, opus at 5/25: opus costs more here.
		record("r1", "s1", "cursor", "gpt-5.1", 1000, 100, 1000),
		record("r2", "s2", "opencode", "claude-opus-4-5", 1000, 100, 2000),
	}}

	result, err := newEngine(source).Aggregate(context.Background(), Options{})
	require.NoError(t, err)

	require.Len(t, result.ByPricingKey, 2)
	assert.Equal(t, "claude-opus-4-5", result.ByPricingKey[0].Model)
	assert.GreaterOrEqual(t, result.ByPricingKey[0].Cost, result.ByPricingKey[1].Cost)

	require.Len(t, result.BySession, 2)
	assert.Equal(t, "s2", result.BySession[0].SessionID)
}

func TestAggregateSessionFilter(t *testing.T) {
	source := &fakeSource{records: []model.UsageRecord{
		record("r1", "s1", "opencode", "claude-opus-4-5", 100, 10, 1000),
		record("r2", "s2", "opencode", "claude-opus-4-5", 200, 20, 2000),
	}}
	engine := newEngine(source)

	result, err := engine.Aggregate(context.Background(), Options{SessionID: "s1"})
	require.NoError(t, err)

	assert.Equal(t, 1, result.MessageCount)
	assert.Equal(t, int64(100), result.PricedTokens.Input)
	// The session filter must use the indexed lookup, not a full scan.
	assert.Equal(t, 1, source.sessionCalls)
}

func TestAggregateSessionNotFound(t *testing.T) {
	engine := newEngine(&fakeSource{})

	_, err := engine.Aggregate(context.Background(), Options{SessionID: "missing"})
	assert.ErrorIs(t, err, store.ErrSessionNotFound)
}

func TestAggregateSessionTitles(t *testing.T) {
	source := &fakeSource{
		records: []model.UsageRecord{
			record("r1", "s1", "opencode", "claude-opus-4-5", 100, 10, 1000),
			record("r2", "s2", "opencode", "claude-opus-4-5", 200, 20, 2000),
		},
		sessions: map[string]model.SessionMeta{"s1": {Title: "Fix the parser"}},
	}

	result, err := newEngine(source).Aggregate(context.Background(), Options{})
	require.NoError(t, err)

	titles := make(map[string]string)
	for _, row := range result.BySession {
		titles[row.SessionID] = row.Title
	}
	assert.Equal(t, "Fix the parser", titles["s1"])
	// Missing index entry degrades to "untitled", never an error.
	assert.Equal(t, "untitled", titles["s2"])
}

func TestAggregateEmptyWindow(t *testing.T) {
	source := &fakeSource{records: []model.UsageRecord{
		record("r1", "s1", "opencode", "claude-opus-4-5", 100, 10, 1000),
	}}

	result, err := newEngine(source).Aggregate(context.Background(), Options{SinceMs: 5000})
	require.NoError(t, err)

	assert.Zero(t, result.MessageCount)
	assert.Empty(t, result.ByPricingKey)
	assert.Empty(t, result.Unknown)
	assert.True(t, result.PricedTokens.IsZero())
}
