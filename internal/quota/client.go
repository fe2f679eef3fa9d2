// Package quota retrieves per-model remaining-quota snapshots for any number
// of accounts, refreshing access tokens as needed.
package quota

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
)

const defaultQuotaTimeout = 10 * time.Second

// ModelQuota is one model's remaining-quota snapshot. Values are
// best-effort; the provider side may lag actual consumption.
type ModelQuota struct {
	Model             string  `json:"model"`
	RemainingFraction float64 `json:"remainingFraction"` // 0..1
	ResetTime         int64   `json:"resetTime,omitempty"` // epoch ms, 0 when the provider omits it
}

// AuthError marks a 401/403 quota response. The orchestrator treats it as a
// stale-token signal and retries once with a forced refresh.
type AuthError struct {
	StatusCode int
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("quota request rejected with status %d", e.StatusCode)
}

// Client fetches quota snapshots from the provider endpoint.
type Client struct {
	quotaURL   string
	httpClient *http.Client
}

// NewClient creates a quota client against the given endpoint.
func NewClient(quotaURL string) *Client {
	return &Client{
		quotaURL: quotaURL,
		httpClient: &http.Client{
			Timeout: defaultQuotaTimeout,
		},
	}
}

type quotaRequest struct {
	Project string `json:"project"`
}

type quotaResponse struct {
	Models []struct {
		Model             string  `json:"model"`
		RemainingFraction float64 `json:"remaining_fraction"`
		ResetTime         int64   `json:"reset_time"`
	} `json:"models"`
}

// FetchQuota issues one quota request with the given access token. Returns
// *AuthError for 401/403 so callers can distinguish stale credentials from
// other failures.
func (c *Client) FetchQuota(ctx context.Context, accessToken, projectID string) ([]ModelQuota, error) {
	payload, err := sonic.Marshal(quotaRequest{Project: projectID})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal quota request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.quotaURL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create quota request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("quota request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, &AuthError{StatusCode: resp.StatusCode}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("quota request failed with status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read quota response: %w", err)
	}

	var parsed quotaResponse
	if err := sonic.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse quota response: %w", err)
	}

	models := make([]ModelQuota, 0, len(parsed.Models))
	for _, m := range parsed.Models {
		if m.Model == "" {
			continue
		}
		models = append(models, ModelQuota{
			Model:             m.Model,
			RemainingFraction: m.RemainingFraction,
			ResetTime:         m.ResetTime,
		})
	}
	return models, nil
}
