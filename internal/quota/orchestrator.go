package quota

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/keisuke-w/tokenwatch/internal/auth"
	"github.com/keisuke-w/tokenwatch/internal/util"
)

const (
	// DefaultConcurrency bounds simultaneous outbound calls so a long
	// account list cannot trip provider-side rate limiting.
	DefaultConcurrency = 3

	// DefaultSkew is subtracted from a cached token's remaining validity
	// so a token never expires mid-request.
	DefaultSkew = 2 * time.Minute
)

// ErrAllAccountsFailed is returned when not a single account produced a
// usable result; per-account failures ride along in the report.
var ErrAllAccountsFailed = errors.New("all accounts failed")

// TokenRefresher mints access tokens from refresh tokens.
type TokenRefresher interface {
	Refresh(ctx context.Context, cred auth.Credential) (auth.TokenEntry, error)
}

// QuotaFetcher issues one quota request with a resolved access token.
type QuotaFetcher interface {
	FetchQuota(ctx context.Context, accessToken, projectID string) ([]ModelQuota, error)
}

// Options configures one orchestrator run.
type Options struct {
	Accounts       []auth.Credential
	RequiredModels []string
	Skew           time.Duration // 0 means DefaultSkew
	Force          bool          // bypass the cache on the first resolve
	Concurrency    int           // 0 means DefaultConcurrency
}

// AccountFailure is one account's terminal error.
type AccountFailure struct {
	Account string `json:"account"`
	Err     error  `json:"-"`
	Message string `json:"message"`
	Revoked bool   `json:"revoked"`
}

// RefreshSummary reports a token-refresh-only run.
type RefreshSummary struct {
	Total        int              `json:"total"`
	SuccessCount int              `json:"successCount"`
	Failures     []AccountFailure `json:"failures"`
}

// Report is the combined outcome of a quota run: the merged per-model list
// plus every account failure. Failed accounts never suppress the models the
// healthy accounts returned.
type Report struct {
	Total        int              `json:"total"`
	SuccessCount int              `json:"successCount"`
	Models       []ModelQuota     `json:"models"`
	Failures     []AccountFailure `json:"failures"`
}

// Orchestrator drives token refresh and quota retrieval for N accounts with
// bounded parallelism.
type Orchestrator struct {
	cache     *auth.Cache
	refresher TokenRefresher
	client    QuotaFetcher
}

// New creates an orchestrator over the given cache, refresher and client.
func New(cache *auth.Cache, refresher TokenRefresher, client QuotaFetcher) *Orchestrator {
	return &Orchestrator{cache: cache, refresher: refresher, client: client}
}

// RefreshTokens resolves an access token for every account (from cache or a
// live refresh) without touching the quota endpoint.
func (o *Orchestrator) RefreshTokens(ctx context.Context, opts Options) *RefreshSummary {
	summary := &RefreshSummary{Total: len(opts.Accounts)}
	if len(opts.Accounts) == 0 {
		return summary
	}

	errs := make([]error, len(opts.Accounts))
	runPool(opts.Concurrency, len(opts.Accounts), func(i int) {
		cred := opts.Accounts[i]
		_, err := o.resolveToken(ctx, cred, skew(opts), opts.Force)
		errs[i] = err
	})

	for i, err := range errs {
		if err != nil {
			summary.Failures = append(summary.Failures, newFailure(opts.Accounts[i], err))
			continue
		}
		summary.SuccessCount++
	}
	return summary
}

// FetchQuotas resolves a token and fetches the quota snapshot for every
// account, merging the per-model results. The returned error is non-nil
// only when every account failed.
func (o *Orchestrator) FetchQuotas(ctx context.Context, opts Options) (*Report, error) {
	report := &Report{Total: len(opts.Accounts)}
	if len(opts.Accounts) == 0 {
		return report, nil
	}

	type outcome struct {
		models []ModelQuota
		err    error
	}
	outcomes := make([]outcome, len(opts.Accounts))

	runPool(opts.Concurrency, len(opts.Accounts), func(i int) {
		models, err := o.fetchAccount(ctx, opts.Accounts[i], opts)
		outcomes[i] = outcome{models: models, err: err}
	})

	var merged []ModelQuota
	for i, out := range outcomes {
		if out.err != nil {
			report.Failures = append(report.Failures, newFailure(opts.Accounts[i], out.err))
			continue
		}
		// Zero usable entries with no hard error is silently empty, not
		// a failure.
		report.SuccessCount++
		merged = append(merged, out.models...)
	}

	report.Models = mergeModels(merged, opts.RequiredModels)

	if report.SuccessCount == 0 {
		return report, fmt.Errorf("%w: %d/%d accounts errored", ErrAllAccountsFailed,
			len(report.Failures), report.Total)
	}
	return report, nil
}

// fetchAccount runs the full per-account flow: resolve a token, fetch the
// quota, and on exactly one auth-class rejection force a refresh and retry
// once. The second attempt's outcome is final either way.
func (o *Orchestrator) fetchAccount(ctx context.Context, cred auth.Credential, opts Options) ([]ModelQuota, error) {
	token, err := o.resolveToken(ctx, cred, skew(opts), opts.Force)
	if err != nil {
		return nil, err
	}

	models, err := o.client.FetchQuota(ctx, token.AccessToken, cred.ProjectID)
	var authErr *AuthError
	if !errors.As(err, &authErr) {
		return models, err
	}

	util.LogInfof("Quota fetch for %s rejected (%d), forcing token refresh", cred.Label(), authErr.StatusCode)
	token, err = o.resolveToken(ctx, cred, skew(opts), true)
	if err != nil {
		return nil, err
	}
	return o.client.FetchQuota(ctx, token.AccessToken, cred.ProjectID)
}

// resolveToken returns a usable access token for the account, consulting the
// cache first unless force is set, and writing back any freshly minted
// token before returning it.
func (o *Orchestrator) resolveToken(ctx context.Context, cred auth.Credential, skew time.Duration, force bool) (auth.TokenEntry, error) {
	key := cred.CacheKey()
	if !force {
		if entry, ok := o.cache.Get(key, skew); ok {
			return entry, nil
		}
	}

	entry, err := o.refresher.Refresh(ctx, cred)
	if err != nil {
		return auth.TokenEntry{}, err
	}
	if err := o.cache.Set(key, entry); err != nil {
		// A cache persist failure costs a future refresh, not this run.
		util.LogWarnf("Failed to persist token for %s: %v", cred.Label(), err)
	}
	return entry, nil
}

// mergeModels combines per-account model lists. When a model appears for
// several accounts, the entry with the most remaining quota wins. With
// required ids the output follows their order; otherwise it is sorted by
// model id.
func mergeModels(models []ModelQuota, requiredIDs []string) []ModelQuota {
	best := make(map[string]ModelQuota)
	for _, m := range models {
		if cur, ok := best[m.Model]; !ok || m.RemainingFraction > cur.RemainingFraction {
			best[m.Model] = m
		}
	}

	if len(requiredIDs) > 0 {
		out := make([]ModelQuota, 0, len(requiredIDs))
		for _, id := range requiredIDs {
			if m, ok := best[id]; ok {
				out = append(out, m)
			}
		}
		return out
	}

	out := make([]ModelQuota, 0, len(best))
	for _, m := range best {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Model < out[j].Model })
	return out
}

func newFailure(cred auth.Credential, err error) AccountFailure {
	return AccountFailure{
		Account: cred.Label(),
		Err:     err,
		Message: err.Error(),
		Revoked: errors.Is(err, auth.ErrRefreshTokenRevoked),
	}
}

func skew(opts Options) time.Duration {
	if opts.Skew > 0 {
		return opts.Skew
	}
	return DefaultSkew
}

// runPool executes task(0..count-1) on min(n, count) workers pulling from a
// shared index counter.
func runPool(n, count int, task func(i int)) {
	if n <= 0 {
		n = DefaultConcurrency
	}
	if n > count {
		n = count
	}

	var next atomic.Int64
	var wg sync.WaitGroup
	for w := 0; w < n; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				i := int(next.Add(1)) - 1
				if i >= count {
					return
				}
				task(i)
			}
		}()
	}
	wg.Wait()
}
