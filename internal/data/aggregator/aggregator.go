// Package aggregator folds usage records into priced and unknown summaries
// with per-key breakdowns.
package aggregator

import (
	"context"
	"fmt"
	"sort"

	"github.com/keisuke-w/tokenwatch/internal/core/mapping"
	"github.com/keisuke-w/tokenwatch/internal/core/model"
	"github.com/keisuke-w/tokenwatch/internal/core/pricing"
	"github.com/keisuke-w/tokenwatch/internal/util"
)

// RecordSource enumerates locally persisted usage records.
type RecordSource interface {
	ListRecords(sinceMs, untilMs int64) ([]model.UsageRecord, error)
	ListRecordsForSession(sessionID string, sinceMs, untilMs int64) ([]model.UsageRecord, error)
	SessionIndex() map[string]model.SessionMeta
}

// Options selects the aggregation window. Zero bounds are unbounded; an
// empty SessionID aggregates all sessions.
type Options struct {
	SinceMs   int64
	UntilMs   int64
	SessionID string
}

// PricingKeyRow accumulates usage priced under one catalog key.
type PricingKeyRow struct {
	Provider string            `json:"provider"`
	Model    string            `json:"model"`
	Tokens   model.TokenBucket `json:"tokens"`
	Cost     float64           `json:"cost"`
	Messages int               `json:"messages"`
}

// SessionRow accumulates priced usage per session.
type SessionRow struct {
	SessionID string            `json:"sessionID"`
	Title     string            `json:"title"`
	Tokens    model.TokenBucket `json:"tokens"`
	Cost      float64           `json:"cost"`
	Messages  int               `json:"messages"`
}

// ProviderRow accumulates priced usage per source provider.
type ProviderRow struct {
	Provider string            `json:"provider"`
	Tokens   model.TokenBucket `json:"tokens"`
	Cost     float64           `json:"cost"`
	Messages int               `json:"messages"`
}

// SourceModelRow accumulates priced usage per source model id as logged.
type SourceModelRow struct {
	Model    string            `json:"model"`
	Tokens   model.TokenBucket `json:"tokens"`
	Cost     float64           `json:"cost"`
	Messages int               `json:"messages"`
}

// UnknownRow accumulates usage that could not be priced, keyed by the exact
// unknown-key tuple so "couldn't map" and "mapped but uncatalogued" stay
// distinguishable.
type UnknownRow struct {
	Key      mapping.UnknownKey `json:"key"`
	Tokens   model.TokenBucket  `json:"tokens"`
	Messages int                `json:"messages"`
}

// Result is the composed aggregation output. Breakdown lists are sorted
// descending by cost; the unknown list by total token count.
type Result struct {
	PricedTokens  model.TokenBucket `json:"pricedTokens"`
	UnknownTokens model.TokenBucket `json:"unknownTokens"`
	TotalCost     float64           `json:"totalCost"`
	MessageCount  int               `json:"messageCount"`
	SessionCount  int               `json:"sessionCount"`

	ByPricingKey  []PricingKeyRow  `json:"byPricingKey"`
	BySession     []SessionRow     `json:"bySession"`
	ByProvider    []ProviderRow    `json:"byProvider"`
	BySourceModel []SourceModelRow `json:"bySourceModel"`
	Unknown       []UnknownRow     `json:"unknown"`
}

// Engine runs aggregations against a record source and a pricing catalog.
type Engine struct {
	source  RecordSource
	catalog pricing.Provider
	mapper  *mapping.Mapper
}

// New creates an aggregation engine. A nil mapper gets the default tables.
func New(source RecordSource, catalog pricing.Provider, mapper *mapping.Mapper) *Engine {
	if mapper == nil {
		mapper = mapping.NewMapper()
	}
	return &Engine{source: source, catalog: catalog, mapper: mapper}
}

// resolved caches the mapping and rate lookup for one source identifier
// pair. Mapping is pure and the catalog is stable within a run, so repeated
// records resolve without re-consulting the catalog.
type resolved struct {
	result mapping.Result
	rates  pricing.ModelPricing
}

// accumulator groups the per-key row maps with their first-seen key order.
// First-seen order plus a stable sort makes reruns bit-identical even for
// cost ties.
type accumulator struct {
	pricingKeyRows  map[mapping.PricingKey]*PricingKeyRow
	pricingKeyOrder []mapping.PricingKey
	sessionRows     map[string]*SessionRow
	sessionOrder    []string
	providerRows    map[string]*ProviderRow
	providerOrder   []string
	modelRows       map[string]*SourceModelRow
	modelOrder      []string
	unknownRows     map[mapping.UnknownKey]*UnknownRow
	unknownOrder    []mapping.UnknownKey
}

func newAccumulator() *accumulator {
	return &accumulator{
		pricingKeyRows: make(map[mapping.PricingKey]*PricingKeyRow),
		sessionRows:    make(map[string]*SessionRow),
		providerRows:   make(map[string]*ProviderRow),
		modelRows:      make(map[string]*SourceModelRow),
		unknownRows:    make(map[mapping.UnknownKey]*UnknownRow),
	}
}

// Aggregate streams the selected records through the mapper and cost
// calculator and returns the composed summaries. Running it twice over the
// same record set yields identical results, ordering included.
func (e *Engine) Aggregate(ctx context.Context, opts Options) (*Result, error) {
	records, err := e.listRecords(opts)
	if err != nil {
		return nil, err
	}
	sessionIndex := e.source.SessionIndex()

	result := &Result{}
	acc := newAccumulator()
	sessions := make(map[string]struct{})
	cache := make(map[mapping.PricingKey]resolved, 8)
	has := func(provider, modelName string) bool {
		return pricing.Has(ctx, e.catalog, provider, modelName)
	}

	for _, record := range records {
		result.MessageCount++
		if record.SessionID != "" {
			sessions[record.SessionID] = struct{}{}
		}

		res := e.resolve(ctx, record, cache, has)

		if res.result.State != mapping.StateMapped {
			result.UnknownTokens.Add(record.Tokens)
			acc.addUnknown(res.result.Unknown, record)
			continue
		}

		cost := pricing.Cost(res.rates, record.Tokens)
		result.PricedTokens.Add(record.Tokens)
		result.TotalCost += cost
		acc.addPriced(res.result.Key, record, cost, sessionIndex)
	}

	result.SessionCount = len(sessions)
	acc.collect(result)
	return result, nil
}

// resolve maps and prices one record's source identifiers, memoized per
// (source provider, source model) pair.
func (e *Engine) resolve(ctx context.Context, record model.UsageRecord,
	cache map[mapping.PricingKey]resolved, has mapping.LookupFunc) resolved {

	sourceKey := mapping.PricingKey{Provider: record.Provider, Model: record.Model}
	if res, ok := cache[sourceKey]; ok {
		return res
	}

	var res resolved
	res.result = e.mapper.Map(record.Provider, record.Model, has)
	if res.result.State == mapping.StateMapped {
		rates, err := e.catalog.GetPricing(ctx, res.result.Key.Provider, res.result.Key.Model)
		if err != nil {
			// The catalog answered "has" but refused the full lookup;
			// degrade to the unpriced outcome.
			util.LogDebugf("Pricing lookup failed for %s/%s: %v",
				res.result.Key.Provider, res.result.Key.Model, err)
			res.result = mapping.Result{
				State: mapping.StateMappedUnpriced,
				Unknown: mapping.UnknownKey{
					SourceProvider: record.Provider,
					SourceModel:    record.Model,
					MappedProvider: res.result.Key.Provider,
					MappedModel:    res.result.Key.Model,
					Unpriced:       true,
				},
			}
		} else {
			res.rates = rates
		}
	}
	cache[sourceKey] = res
	return res
}

func (a *accumulator) addUnknown(key mapping.UnknownKey, record model.UsageRecord) {
	row, ok := a.unknownRows[key]
	if !ok {
		row = &UnknownRow{Key: key}
		a.unknownRows[key] = row
		a.unknownOrder = append(a.unknownOrder, key)
	}
	row.Tokens.Add(record.Tokens)
	row.Messages++
}

// addPriced updates all four priced breakdowns for one record.
func (a *accumulator) addPriced(key mapping.PricingKey, record model.UsageRecord,
	cost float64, sessionIndex map[string]model.SessionMeta) {

	keyRow, ok := a.pricingKeyRows[key]
	if !ok {
		keyRow = &PricingKeyRow{Provider: key.Provider, Model: key.Model}
		a.pricingKeyRows[key] = keyRow
		a.pricingKeyOrder = append(a.pricingKeyOrder, key)
	}
	keyRow.Tokens.Add(record.Tokens)
	keyRow.Cost += cost
	keyRow.Messages++

	sessionRow, ok := a.sessionRows[record.SessionID]
	if !ok {
		// Title is resolved once, on row creation.
		sessionRow = &SessionRow{
			SessionID: record.SessionID,
			Title:     sessionTitle(sessionIndex, record.SessionID),
		}
		a.sessionRows[record.SessionID] = sessionRow
		a.sessionOrder = append(a.sessionOrder, record.SessionID)
	}
	sessionRow.Tokens.Add(record.Tokens)
	sessionRow.Cost += cost
	sessionRow.Messages++

	providerRow, ok := a.providerRows[record.Provider]
	if !ok {
		providerRow = &ProviderRow{Provider: record.Provider}
		a.providerRows[record.Provider] = providerRow
		a.providerOrder = append(a.providerOrder, record.Provider)
	}
	providerRow.Tokens.Add(record.Tokens)
	providerRow.Cost += cost
	providerRow.Messages++

	modelRow, ok := a.modelRows[record.Model]
	if !ok {
		modelRow = &SourceModelRow{Model: record.Model}
		a.modelRows[record.Model] = modelRow
		a.modelOrder = append(a.modelOrder, record.Model)
	}
	modelRow.Tokens.Add(record.Tokens)
	modelRow.Cost += cost
	modelRow.Messages++
}

// collect materializes the breakdown lists in first-seen order and sorts
// them by their relevance measure.
func (a *accumulator) collect(result *Result) {
	result.ByPricingKey = make([]PricingKeyRow, 0, len(a.pricingKeyOrder))
	for _, key := range a.pricingKeyOrder {
		result.ByPricingKey = append(result.ByPricingKey, *a.pricingKeyRows[key])
	}
	sort.SliceStable(result.ByPricingKey, func(i, j int) bool {
		return result.ByPricingKey[i].Cost > result.ByPricingKey[j].Cost
	})

	result.BySession = make([]SessionRow, 0, len(a.sessionOrder))
	for _, id := range a.sessionOrder {
		result.BySession = append(result.BySession, *a.sessionRows[id])
	}
	sort.SliceStable(result.BySession, func(i, j int) bool {
		return result.BySession[i].Cost > result.BySession[j].Cost
	})

	result.ByProvider = make([]ProviderRow, 0, len(a.providerOrder))
	for _, provider := range a.providerOrder {
		result.ByProvider = append(result.ByProvider, *a.providerRows[provider])
	}
	sort.SliceStable(result.ByProvider, func(i, j int) bool {
		return result.ByProvider[i].Cost > result.ByProvider[j].Cost
	})

	result.BySourceModel = make([]SourceModelRow, 0, len(a.modelOrder))
	for _, modelName := range a.modelOrder {
		result.BySourceModel = append(result.BySourceModel, *a.modelRows[modelName])
	}
	sort.SliceStable(result.BySourceModel, func(i, j int) bool {
		return result.BySourceModel[i].Cost > result.BySourceModel[j].Cost
	})

	result.Unknown = make([]UnknownRow, 0, len(a.unknownOrder))
	for _, key := range a.unknownOrder {
		result.Unknown = append(result.Unknown, *a.unknownRows[key])
	}
	sort.SliceStable(result.Unknown, func(i, j int) bool {
		return result.Unknown[i].Tokens.Total() > result.Unknown[j].Tokens.Total()
	})
}

func (e *Engine) listRecords(opts Options) ([]model.UsageRecord, error) {
	if opts.SessionID != "" {
		records, err := e.source.ListRecordsForSession(opts.SessionID, opts.SinceMs, opts.UntilMs)
		if err != nil {
			return nil, fmt.Errorf("failed to list records for session %s: %w", opts.SessionID, err)
		}
		return records, nil
	}
	records, err := e.source.ListRecords(opts.SinceMs, opts.UntilMs)
	if err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}
	return records, nil
}

func sessionTitle(index map[string]model.SessionMeta, sessionID string) string {
	if meta, ok := index[sessionID]; ok && meta.Title != "" {
		return meta.Title
	}
	return "untitled"
}
