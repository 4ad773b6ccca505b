package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateSubscription_Success(t *testing.T) {
	expiration := time.Now().Add(time.Hour).UTC().Truncate(time.Second)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/subscriptions", r.URL.Path)

		var req subscriptionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "updated", req.ChangeType)
		assert.Equal(t, "/drives/drive-1/root", req.Resource)
		assert.Equal(t, "https://example.com/notify", req.NotificationURL)
		_, err := uuid.Parse(req.ClientState)
		assert.NoError(t, err, "clientState must be a valid UUID")

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		fmt.Fprintf(w, `{
			"id": "sub-123",
			"resource": %q,
			"changeType": %q,
			"notificationUrl": %q,
			"expirationDateTime": %q,
			"clientState": %q
		}`, req.Resource, req.ChangeType, req.NotificationURL, req.ExpirationDateTime.Format(time.RFC3339), req.ClientState)
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	sub, err := client.CreateSubscription(context.Background(), "/drives/drive-1/root", "https://example.com/notify", expiration)
	require.NoError(t, err)
	require.NotNil(t, sub)
	assert.Equal(t, "sub-123", sub.ID)
	assert.Equal(t, "/drives/drive-1/root", sub.Resource)
	assert.NotEmpty(t, sub.ClientState)
}

func TestCreateSubscription_DistinctClientStatePerCall(t *testing.T) {
	var seen []string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req subscriptionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		seen = append(seen, req.ClientState)

		w.WriteHeader(http.StatusCreated)
		fmt.Fprintf(w, `{"id":"sub","resource":%q,"clientState":%q}`, req.Resource, req.ClientState)
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	_, err := client.CreateSubscription(context.Background(), "/drives/drive-1/root", "https://example.com/notify", time.Now().Add(time.Hour))
	require.NoError(t, err)
	_, err = client.CreateSubscription(context.Background(), "/drives/drive-1/root", "https://example.com/notify", time.Now().Add(time.Hour))
	require.NoError(t, err)

	require.Len(t, seen, 2)
	assert.NotEqual(t, seen[0], seen[1])
}

func TestRenewSubscription_Success(t *testing.T) {
	newExpiration := time.Now().Add(2 * time.Hour).UTC().Truncate(time.Second)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		assert.Equal(t, "/subscriptions/sub-123", r.URL.Path)

		var req renewSubscriptionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.WithinDuration(t, newExpiration, req.ExpirationDateTime, time.Second)

		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, `{"id":"sub-123","expirationDateTime":%q}`, req.ExpirationDateTime.Format(time.RFC3339))
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	sub, err := client.RenewSubscription(context.Background(), "sub-123", newExpiration)
	require.NoError(t, err)
	require.NotNil(t, sub)
	assert.Equal(t, "sub-123", sub.ID)
}

func TestDeleteSubscription_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		assert.Equal(t, "/subscriptions/sub-123", r.URL.Path)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	err := client.DeleteSubscription(context.Background(), "sub-123")
	require.NoError(t, err)
}

func TestDeleteSubscription_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	err := client.DeleteSubscription(context.Background(), "gone-already")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
}
