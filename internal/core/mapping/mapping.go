// Package mapping resolves the (provider, model) pair logged by a client
// integration into the canonical key used by the pricing catalog. Source
// identifiers are free-form: routed names carry connector prefixes, thinking
// variants carry suffixes, and some families spell versions differently than
// the catalog does.
package mapping

import (
	"regexp"
	"strings"
)

// PricingKey is the canonical (official provider, official model) pair used
// for catalog rate lookup.
type PricingKey struct {
	Provider string `json:"provider"`
	Model    string `json:"model"`
}

// State tags the outcome of a mapping attempt.
type State int

const (
	// StateMapped means a catalog entry was resolved.
	StateMapped State = iota
	// StateUnmappedNoProvider means no vendor heuristic matched the
	// normalized model name.
	StateUnmappedNoProvider
	// StateMappedUnpriced means a provider was inferred but the catalog has
	// no entry for any candidate spelling.
	StateMappedUnpriced
)

// UnknownKey records a usage entry that could not be priced, carrying the
// best-guess mapping for diagnostics.
type UnknownKey struct {
	SourceProvider string `json:"sourceProvider"`
	SourceModel    string `json:"sourceModel"`
	MappedProvider string `json:"mappedProvider,omitempty"`
	MappedModel    string `json:"mappedModel,omitempty"`
	Unpriced       bool   `json:"unpriced,omitempty"`
}

// Result is the tagged outcome of Map. Key is valid only when State is
// StateMapped; Unknown is valid otherwise.
type Result struct {
	State   State
	Key     PricingKey
	Unknown UnknownKey
}

// LookupFunc reports whether the catalog has an entry for the given key.
// Map itself never touches the network or disk; callers inject the check.
type LookupFunc func(provider, model string) bool

type rewriteKind int

const (
	rewriteStripPrefix rewriteKind = iota
	rewriteStripSuffix
	rewritePattern
	rewriteAlias
)

// RewriteRule is one textual substitution applied during normalization.
// Rules apply in order; Scope restricts a rule to names starting with the
// given prefix (after earlier rules have run), empty meaning all names.
type RewriteRule struct {
	kind        rewriteKind
	pattern     string
	replacement string
	scope       string
	re          *regexp.Regexp
}

// DefaultRewrites is the ordered substitution table. New vendor quirks are
// rows here, not new branches.
var DefaultRewrites = []RewriteRule{
	// Connector routing prefix added by the desktop client.
	{kind: rewriteStripPrefix, pattern: "antigravity/"},
	// Thinking variants share the base model's catalog entry.
	{kind: rewriteStripSuffix, pattern: "-thinking"},
	// Anthropic names use dashes between version digits in the catalog
	// ("claude-opus-4.5" -> "claude-opus-4-5").
	{kind: rewritePattern, pattern: `(\d)\.(\d)`, replacement: `$1-$2`, scope: "claude"},
	// Free-tier routing of the Grok family.
	{kind: rewriteStripSuffix, pattern: "-free", scope: "grok"},
	// Internal codename used before the Gemini 3 launch.
	{kind: rewriteAlias, pattern: "rev-19", replacement: "gemini-3-pro-preview"},
}

type matchKind int

const (
	matchPrefix matchKind = iota
	matchSubstring
)

type providerRule struct {
	kind     matchKind
	fragment string
	provider string
}

// providerRules infer the official provider from the normalized model name.
// Checked in order; prefix rules come first so they beat substring rules.
var providerRules = []providerRule{
	{matchPrefix, "claude", "anthropic"},
	{matchPrefix, "gemini", "google"},
	{matchPrefix, "gpt", "openai"},
	{matchPrefix, "codex", "openai"},
	{matchPrefix, "grok", "xai"},
	{matchPrefix, "deepseek", "deepseek"},
	{matchSubstring, "claude", "anthropic"},
	{matchSubstring, "gemini", "google"},
	{matchSubstring, "gpt", "openai"},
}

// CatalogFallback retries an alternate spelling under the given provider when
// the primary normalized name has no catalog entry.
type CatalogFallback struct {
	Provider string
	Suffix   string
}

// DefaultCatalogFallbacks mirrors catalog naming drift: Anthropic lists some
// thinking variants separately, Google lists preview models under their
// suffixed name. These depend on upstream catalog contents and are
// injectable via Mapper.Fallbacks.
var DefaultCatalogFallbacks = []CatalogFallback{
	{Provider: "anthropic", Suffix: "-thinking"},
	{Provider: "google", Suffix: "-preview"},
}

// Mapper normalizes source identifiers and resolves pricing keys. The zero
// value is not usable; use NewMapper.
type Mapper struct {
	Rewrites  []RewriteRule
	Fallbacks []CatalogFallback
}

// NewMapper creates a Mapper with the default rewrite and fallback tables.
func NewMapper() *Mapper {
	return &Mapper{
		Rewrites:  DefaultRewrites,
		Fallbacks: DefaultCatalogFallbacks,
	}
}

// Normalize applies the rewrite table to a source model id. All rules run in
// order regardless of vendor; scoping is per rule.
func (m *Mapper) Normalize(sourceModel string) string {
	name := sourceModel
	for i := range m.Rewrites {
		rule := &m.Rewrites[i]
		if rule.scope != "" && !strings.HasPrefix(strings.ToLower(name), rule.scope) {
			continue
		}
		switch rule.kind {
		case rewriteStripPrefix:
			if len(name) >= len(rule.pattern) && strings.EqualFold(name[:len(rule.pattern)], rule.pattern) {
				name = name[len(rule.pattern):]
			}
		case rewriteStripSuffix:
			if len(name) >= len(rule.pattern) && strings.EqualFold(name[len(name)-len(rule.pattern):], rule.pattern) {
				name = name[:len(name)-len(rule.pattern)]
			}
		case rewritePattern:
			if rule.re == nil {
				rule.re = regexp.MustCompile(rule.pattern)
			}
			name = rule.re.ReplaceAllString(name, rule.replacement)
		case rewriteAlias:
			if strings.EqualFold(name, rule.pattern) {
				name = rule.replacement
			}
		}
	}
	return strings.ToLower(name)
}

// inferProvider returns the official provider id for a normalized model name,
// or "" when no heuristic matches.
func inferProvider(normalized string) string {
	for _, rule := range providerRules {
		switch rule.kind {
		case matchPrefix:
			if strings.HasPrefix(normalized, rule.fragment) {
				return rule.provider
			}
		case matchSubstring:
			if strings.Contains(normalized, rule.fragment) {
				return rule.provider
			}
		}
	}
	return ""
}

// Map converts a source (provider, model) pair into a pricing key, or an
// UnknownKey describing why no key could be resolved. The function is pure
// and deterministic; identical inputs always produce identical outputs.
func (m *Mapper) Map(sourceProvider, sourceModel string, has LookupFunc) Result {
	unknown := UnknownKey{
		SourceProvider: sourceProvider,
		SourceModel:    sourceModel,
	}

	if sourceModel == "" {
		return Result{State: StateUnmappedNoProvider, Unknown: unknown}
	}

	normalized := m.Normalize(sourceModel)

	provider := inferProvider(normalized)
	if provider == "" {
		// Keep the normalized name so callers can still display it.
		unknown.MappedModel = normalized
		return Result{State: StateUnmappedNoProvider, Unknown: unknown}
	}

	for _, candidate := range m.candidates(provider, normalized) {
		if has(provider, candidate) {
			return Result{State: StateMapped, Key: PricingKey{Provider: provider, Model: candidate}}
		}
	}

	unknown.MappedProvider = provider
	unknown.MappedModel = normalized
	unknown.Unpriced = true
	return Result{State: StateMappedUnpriced, Unknown: unknown}
}

// candidates returns the ordered catalog spellings to try for a normalized
// name: the primary name first, then any provider-specific fallbacks.
func (m *Mapper) candidates(provider, normalized string) []string {
	out := []string{normalized}
	for _, fb := range m.Fallbacks {
		if fb.Provider == provider {
			out = append(out, normalized+fb.Suffix)
		}
	}
	return out
}
