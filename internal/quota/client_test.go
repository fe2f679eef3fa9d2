package quota

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientFetchQuota(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer tok-1", r.Header.Get("Authorization"))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"models":[
			{"model":"gemini-3-pro","remaining_fraction":0.75,"reset_time":1756400000000},
			{"model":"gemini-2.5-flash","remaining_fraction":0.2},
			{"model":"","remaining_fraction":0.5}
		]}`))
	}))
	defer server.Close()

	client := NewClient(server.URL)
	models, err := client.FetchQuota(context.Background(), "tok-1", "proj-1")
	require.NoError(t, err)

	// Entries without a model id are dropped.
	require.Len(t, models, 2)
	assert.Equal(t, "gemini-3-pro", models[0].Model)
	assert.Equal(t, 0.75, models[0].RemainingFraction)
	assert.Equal(t, int64(1756400000000), models[0].ResetTime)
	assert.Zero(t, models[1].ResetTime)
}

func TestClientAuthError(t *testing.T) {
	for _, status := range []int{http.StatusUnauthorized, http.StatusForbidden} {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(status)
		}))

		client := NewClient(server.URL)
		_, err := client.FetchQuota(context.Background(), "stale", "proj-1")

		var authErr *AuthError
		require.ErrorAs(t, err, &authErr, "status %d", status)
		assert.Equal(t, status, authErr.StatusCode)
		server.Close()
	}
}

func TestClientGenericHTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewClient(server.URL)
	_, err := client.FetchQuota(context.Background(), "tok-1", "proj-1")

	require.Error(t, err)
	var authErr *AuthError
	assert.False(t, errors.As(err, &authErr))
}

func TestClientMalformedBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"models": nope`))
	}))
	defer server.Close()

	client := NewClient(server.URL)
	_, err := client.FetchQuota(context.Background(), "tok-1", "proj-1")
	assert.Error(t, err)
}
