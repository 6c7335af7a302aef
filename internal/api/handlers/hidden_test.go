// Copyright (c) 2025, the Requestarr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/requestarr/requestarr/internal/models"
)

func newHiddenRouter(t *testing.T) (*chi.Mux, *models.HiddenMediaStore) {
	t.Helper()

	store := models.NewHiddenMediaStore(setupTestDB(t))
	handler := NewHiddenHandler(store)

	r := chi.NewRouter()
	r.Route("/api/hidden", handler.Routes)
	return r, store
}

func TestHiddenHandler_HideListUnhide(t *testing.T) {
	router, store := newHiddenRouter(t)

	w := doJSON(t, router, http.MethodPost, "/api/hidden/", map[string]any{
		"tmdbId":    603,
		"mediaType": "movie",
		"title":     "The Matrix",
	})
	require.Equal(t, http.StatusCreated, w.Code)

	w = doJSON(t, router, http.MethodGet, "/api/hidden/", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var listed []struct {
		TmdbID    int    `json:"tmdbId"`
		MediaType string `json:"mediaType"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &listed))
	require.Len(t, listed, 1)
	assert.Equal(t, 603, listed[0].TmdbID)

	w = doJSON(t, router, http.MethodDelete, "/api/hidden/movie/603", nil)
	require.Equal(t, http.StatusOK, w.Code)

	set, err := store.HiddenSet(context.Background())
	require.NoError(t, err)
	assert.Empty(t, set)
}

func TestHiddenHandler_RejectsBadInput(t *testing.T) {
	router, _ := newHiddenRouter(t)

	w := doJSON(t, router, http.MethodPost, "/api/hidden/", map[string]any{
		"mediaType": "movie",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, router, http.MethodDelete, "/api/hidden/banana/603", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
