package auth

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bytedance/sonic"

	"github.com/keisuke-w/tokenwatch/internal/util"
)

// ErrRefreshTokenRevoked marks an invalid_grant response: the refresh token
// was revoked or expired and the user must sign in again. Callers surface
// this distinctly from transient network failures.
var ErrRefreshTokenRevoked = errors.New("refresh token revoked; sign in again to reconnect this account")

const defaultRefreshTimeout = 10 * time.Second

// Refresher exchanges refresh tokens for access tokens.
type Refresher struct {
	tokenURL   string
	httpClient *http.Client
}

// NewRefresher creates a refresher against the given token endpoint.
func NewRefresher(tokenURL string) *Refresher {
	return &Refresher{
		tokenURL: tokenURL,
		httpClient: &http.Client{
			Timeout: defaultRefreshTimeout,
		},
	}
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"` // seconds
}

type tokenError struct {
	Error       string `json:"error"`
	Description string `json:"error_description"`
}

// Refresh performs one token refresh call and returns the minted entry with
// its absolute expiry. The entry is not cached here; that is the caller's
// decision.
func (r *Refresher) Refresh(ctx context.Context, cred Credential) (TokenEntry, error) {
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", cred.RefreshToken)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return TokenEntry{}, fmt.Errorf("failed to create refresh request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return TokenEntry{}, fmt.Errorf("token refresh for %s failed: %w", cred.Label(), err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return TokenEntry{}, fmt.Errorf("failed to read refresh response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var oauthErr tokenError
		if err := sonic.Unmarshal(body, &oauthErr); err == nil && oauthErr.Error == "invalid_grant" {
			util.LogWarnf("Refresh token for %s is revoked", cred.Label())
			return TokenEntry{}, fmt.Errorf("%w (account %s)", ErrRefreshTokenRevoked, cred.Label())
		}
		return TokenEntry{}, fmt.Errorf("token refresh for %s failed with status %d", cred.Label(), resp.StatusCode)
	}

	var token tokenResponse
	if err := sonic.Unmarshal(body, &token); err != nil {
		return TokenEntry{}, fmt.Errorf("failed to parse refresh response: %w", err)
	}
	if token.AccessToken == "" {
		return TokenEntry{}, fmt.Errorf("token refresh for %s returned an empty access token", cred.Label())
	}

	return TokenEntry{
		AccessToken: token.AccessToken,
		ExpiresAt:   time.Now().UnixMilli() + token.ExpiresIn*1000,
		ProjectID:   cred.ProjectID,
		Email:       cred.Email,
	}, nil
}
