package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRefresherSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "refresh_token", r.Form.Get("grant_type"))
		assert.Equal(t, "R1", r.Form.Get("refresh_token"))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"A1","expires_in":3600}`))
	}))
	defer server.Close()

	refresher := NewRefresher(server.URL)
	cred := Credential{RefreshToken: "R1", ProjectID: "proj-1", Email: "dev@example.com"}

	before := time.Now().UnixMilli()
	got, err := refresher.Refresh(context.Background(), cred)
	require.NoError(t, err)

	assert.Equal(t, "A1", got.AccessToken)
	assert.Equal(t, "proj-1", got.ProjectID)
	// Absolute expiry is roughly now + expires_in.
	assert.InDelta(t, before+3600*1000, got.ExpiresAt, 5000)
}

func TestRefresherInvalidGrant(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"invalid_grant","error_description":"Token has been revoked"}`))
	}))
	defer server.Close()

	refresher := NewRefresher(server.URL)
	_, err := refresher.Refresh(context.Background(), Credential{RefreshToken: "R1", Email: "dev@example.com"})

	assert.ErrorIs(t, err, ErrRefreshTokenRevoked)
	// The message names the account so the failure is actionable.
	assert.Contains(t, err.Error(), "dev@example.com")
}

func TestRefresherGenericHTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`oops`))
	}))
	defer server.Close()

	refresher := NewRefresher(server.URL)
	_, err := refresher.Refresh(context.Background(), Credential{RefreshToken: "R1"})

	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrRefreshTokenRevoked)
}

func TestRefresherEmptyAccessToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"expires_in":3600}`))
	}))
	defer server.Close()

	refresher := NewRefresher(server.URL)
	_, err := refresher.Refresh(context.Background(), Credential{RefreshToken: "R1"})
	assert.Error(t, err)
}
