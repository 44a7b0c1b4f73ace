package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL+"/api/", "tok-1")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestClientSendsBearerToken(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok-1", r.Header.Get("Authorization"))
		assert.Equal(t, "/api/notifications", r.URL.Path)
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": []any{}})
	})

	ns, err := c.ListNotifications(context.Background())
	require.NoError(t, err)
	assert.Empty(t, ns)
}

func TestClientRetriesOnTooManyRequests(t *testing.T) {
	var calls atomic.Int32
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true})
	})

	require.NoError(t, c.ClearNotifications(context.Background()))
	assert.Equal(t, int32(2), calls.Load())
}

func TestClientGivesUpAfterMaxRetries(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "0")
		w.WriteHeader(http.StatusTooManyRequests)
	})
	c.maxRetries = 1

	err := c.ClearNotifications(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max retries")
}

func TestClientDoesNotWaitAfterLastAttempt(t *testing.T) {
	var calls atomic.Int32
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Retry-After", "30")
		w.WriteHeader(http.StatusTooManyRequests)
	})
	c.maxRetries = 0

	start := time.Now()
	err := c.ClearNotifications(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max retries")
	assert.Equal(t, int32(1), calls.Load())
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestClientUnauthorizedIsAuthError(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnauthorized, map[string]any{
			"success": false, "message": "jwt expired",
		})
	})

	_, err := c.ListMessages(context.Background())
	require.Error(t, err)
	assert.True(t, IsAuthError(err))
	assert.Contains(t, err.Error(), "jwt expired")
}

func TestClientEnvelopeFailureIsAPIError(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"success": false, "message": "not allowed",
		})
	})

	err := c.MarkNotificationRead(context.Background(), "n1")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "not allowed", apiErr.Message)
	assert.False(t, IsAuthError(err))
}

func TestClientServerErrorKeepsBody(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})

	err := c.ClearNotifications(context.Background())
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusInternalServerError, apiErr.StatusCode)
	assert.Equal(t, "boom", apiErr.Message)
}

func TestWithTokenDoesNotMutateOriginal(t *testing.T) {
	c := NewClient("http://example.invalid/api", "")
	authed := c.WithToken("abc")
	assert.Equal(t, "", c.token)
	assert.Equal(t, "abc", authed.token)
	assert.Equal(t, "http://example.invalid/api", authed.BaseURL())
}
