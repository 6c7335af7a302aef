// Copyright (c) 2025, the Requestarr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/requestarr/requestarr/internal/arr"
	"github.com/requestarr/requestarr/internal/domain"
	"github.com/requestarr/requestarr/internal/models"
)

func newInstancesRouter(t *testing.T) (*chi.Mux, *models.InstanceStore) {
	t.Helper()

	db := setupTestDB(t)
	store, err := models.NewInstanceStore(db, testEncryptionKey())
	require.NoError(t, err)
	pool := arr.NewClientPool(store, 5)

	handler := NewInstancesHandler(store, pool)

	r := chi.NewRouter()
	r.Route("/api/instances", handler.Routes)
	return r, store
}

func TestInstancesHandler_CreateRedactsAPIKey(t *testing.T) {
	router, _ := newInstancesRouter(t)

	w := doJSON(t, router, http.MethodPost, "/api/instances/", map[string]any{
		"name":   "radarr-4k",
		"host":   "radarr.local:7878",
		"type":   "movies",
		"apiKey": "super-secret",
	})
	require.Equal(t, http.StatusCreated, w.Code)

	var created struct {
		ID     int    `json:"id"`
		Host   string `json:"host"`
		APIKey string `json:"apiKey"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))

	assert.NotZero(t, created.ID)
	assert.Equal(t, "http://radarr.local:7878", created.Host)
	assert.True(t, domain.IsRedactedString(created.APIKey))
	assert.NotContains(t, w.Body.String(), "super-secret")
}

func TestInstancesHandler_TestChecksCredentials(t *testing.T) {
	downstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v3/system/status", r.URL.Path)
		if r.Header.Get("X-Api-Key") != "valid-key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{"version":"5.0.0"}`))
	}))
	defer downstream.Close()

	router, store := newInstancesRouter(t)
	ctx := context.Background()

	good, err := store.Create(ctx, "good", downstream.URL, domain.InstanceTypeMovies, "valid-key", 1, "/movies", false)
	require.NoError(t, err)
	bad, err := store.Create(ctx, "bad", downstream.URL, domain.InstanceTypeMovies, "wrong-key", 1, "/movies", false)
	require.NoError(t, err)

	w := doJSON(t, router, http.MethodPost, fmt.Sprintf("/api/instances/%d/test", good.ID), nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, router, http.MethodPost, fmt.Sprintf("/api/instances/%d/test", bad.ID), nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestInstancesHandler_UpdateKeepsKeyWhenRedacted(t *testing.T) {
	router, store := newInstancesRouter(t)
	ctx := context.Background()

	instance, err := store.Create(ctx, "sonarr", "sonarr.local:8989", domain.InstanceTypeTV, "original-key", 2, "/tv", false)
	require.NoError(t, err)

	w := doJSON(t, router, http.MethodPut, fmt.Sprintf("/api/instances/%d", instance.ID), map[string]any{
		"name":   "sonarr-renamed",
		"host":   instance.Host,
		"apiKey": domain.RedactString("anything"),
	})
	require.Equal(t, http.StatusOK, w.Code)

	updated, err := store.Get(ctx, instance.ID)
	require.NoError(t, err)
	assert.Equal(t, "sonarr-renamed", updated.Name)

	key, err := store.GetDecryptedAPIKey(updated)
	require.NoError(t, err)
	assert.Equal(t, "original-key", key)
}

func TestInstancesHandler_ReorderRejectsPartialSet(t *testing.T) {
	router, store := newInstancesRouter(t)
	ctx := context.Background()

	first, err := store.Create(ctx, "one", "one.local:7878", domain.InstanceTypeMovies, "k1", 1, "/movies", false)
	require.NoError(t, err)
	_, err = store.Create(ctx, "two", "two.local:7878", domain.InstanceTypeMovies, "k2", 1, "/movies", false)
	require.NoError(t, err)

	w := doJSON(t, router, http.MethodPut, "/api/instances/order", map[string]any{
		"instanceIds": []int{first.ID},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestInstancesHandler_DeleteThenGet(t *testing.T) {
	router, store := newInstancesRouter(t)

	instance, err := store.Create(context.Background(), "gone", "gone.local:7878", domain.InstanceTypeMovies, "k", 1, "/movies", false)
	require.NoError(t, err)

	w := doJSON(t, router, http.MethodDelete, fmt.Sprintf("/api/instances/%d", instance.ID), nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, router, http.MethodGet, fmt.Sprintf("/api/instances/%d", instance.ID), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
