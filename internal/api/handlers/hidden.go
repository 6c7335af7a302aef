// Copyright (c) 2025, the Requestarr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/requestarr/requestarr/internal/domain"
	"github.com/requestarr/requestarr/internal/models"
)

type HiddenHandler struct {
	store *models.HiddenMediaStore
}

func NewHiddenHandler(store *models.HiddenMediaStore) *HiddenHandler {
	return &HiddenHandler{store: store}
}

func (h *HiddenHandler) Routes(r chi.Router) {
	r.Get("/", h.List)
	r.Post("/", h.Hide)
	r.Delete("/{mediaType}/{tmdbID}", h.Unhide)
}

func (h *HiddenHandler) List(w http.ResponseWriter, r *http.Request) {
	hidden, err := h.store.List(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("failed to list hidden media")
		RespondError(w, http.StatusInternalServerError, "Failed to list hidden media")
		return
	}
	RespondJSON(w, http.StatusOK, hidden)
}

func (h *HiddenHandler) Hide(w http.ResponseWriter, r *http.Request) {
	var input struct {
		TmdbID    int              `json:"tmdbId"`
		MediaType domain.MediaType `json:"mediaType"`
		Title     string           `json:"title"`
	}
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		RespondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	if input.TmdbID == 0 {
		RespondError(w, http.StatusBadRequest, "tmdbId is required")
		return
	}

	if err := h.store.Hide(r.Context(), input.TmdbID, input.MediaType, input.Title); err != nil {
		log.Error().Err(err).Int("tmdbID", input.TmdbID).Msg("failed to hide title")
		RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	RespondJSON(w, http.StatusCreated, map[string]string{"message": "Title hidden"})
}

func (h *HiddenHandler) Unhide(w http.ResponseWriter, r *http.Request) {
	tmdbID, err := strconv.Atoi(chi.URLParam(r, "tmdbID"))
	if err != nil {
		RespondError(w, http.StatusBadRequest, "Invalid tmdb ID")
		return
	}
	mediaType := domain.MediaType(chi.URLParam(r, "mediaType"))
	if !mediaType.Valid() {
		RespondError(w, http.StatusBadRequest, "Unknown media type")
		return
	}

	if err := h.store.Unhide(r.Context(), tmdbID, mediaType); err != nil {
		log.Error().Err(err).Int("tmdbID", tmdbID).Msg("failed to unhide title")
		RespondError(w, http.StatusInternalServerError, "Failed to unhide title")
		return
	}

	RespondJSON(w, http.StatusOK, map[string]string{"message": "Title unhidden"})
}
