// Copyright (c) 2025, the Requestarr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/requestarr/requestarr/internal/discovery"
	"github.com/requestarr/requestarr/internal/domain"
)

type DiscoverHandler struct {
	controller *discovery.Controller
	feedState  *FeedState
}

func NewDiscoverHandler(controller *discovery.Controller, feedState *FeedState) *DiscoverHandler {
	return &DiscoverHandler{
		controller: controller,
		feedState:  feedState,
	}
}

func (h *DiscoverHandler) Routes(r chi.Router) {
	r.Get("/state", h.State)
	r.Post("/activate", h.Activate)
	r.Post("/sections/{section}/more", h.LoadMore)
	r.Put("/instance", h.SelectInstance)
}

type discoverStateResponse struct {
	ActiveSection domain.Section                 `json:"activeSection"`
	Sections      map[domain.Section]SectionView `json:"sections"`
}

// State returns the whole feed as the dashboard should render it.
func (h *DiscoverHandler) State(w http.ResponseWriter, r *http.Request) {
	RespondJSON(w, http.StatusOK, h.stateResponse())
}

// Activate switches the visible section and loads its first page. With no
// section in the body the rotation picks the next one.
func (h *DiscoverHandler) Activate(w http.ResponseWriter, r *http.Request) {
	var input struct {
		Section domain.Section `json:"section"`
	}
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
			RespondError(w, http.StatusBadRequest, "Invalid request payload")
			return
		}
	}

	ctx := r.Context()
	if input.Section == "" {
		section, err := h.controller.Start(ctx)
		if err != nil {
			log.Error().Err(err).Msg("failed to start discovery feed")
			RespondError(w, http.StatusInternalServerError, "Failed to activate feed")
			return
		}
		input.Section = section
	} else {
		if !input.Section.Valid() {
			RespondError(w, http.StatusBadRequest, "Unknown section")
			return
		}
		if err := h.controller.ActivateSection(ctx, input.Section); err != nil {
			log.Error().Err(err).Str("section", string(input.Section)).Msg("failed to activate section")
			RespondError(w, http.StatusInternalServerError, "Failed to activate section")
			return
		}
	}

	RespondJSON(w, http.StatusOK, h.stateResponse())
}

// LoadMore advances a section's pagination and returns its updated view.
func (h *DiscoverHandler) LoadMore(w http.ResponseWriter, r *http.Request) {
	section := domain.Section(chi.URLParam(r, "section"))
	if !section.Valid() {
		RespondError(w, http.StatusBadRequest, "Unknown section")
		return
	}

	if err := h.controller.LoadMore(r.Context(), section); err != nil {
		log.Error().Err(err).Str("section", string(section)).Msg("failed to load more")
		RespondError(w, http.StatusInternalServerError, "Failed to load more")
		return
	}

	RespondJSON(w, http.StatusOK, h.feedState.View(section))
}

// SelectInstance points a media type at a different instance and reloads the
// affected sections.
func (h *DiscoverHandler) SelectInstance(w http.ResponseWriter, r *http.Request) {
	var input struct {
		MediaType  domain.InstanceType `json:"mediaType"`
		InstanceID int                 `json:"instanceId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		RespondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	if !input.MediaType.Valid() {
		RespondError(w, http.StatusBadRequest, "Unknown media type")
		return
	}

	affected := []domain.Section{domain.SectionTrending, domain.SectionMovies}
	if input.MediaType == domain.InstanceTypeTV {
		affected = []domain.Section{domain.SectionTrending, domain.SectionTV}
	}
	for _, section := range affected {
		h.feedState.Reset(section)
	}

	if err := h.controller.OnInstanceChanged(r.Context(), input.MediaType, input.InstanceID); err != nil {
		log.Error().Err(err).Str("mediaType", string(input.MediaType)).Msg("failed to switch instance")
		RespondError(w, http.StatusInternalServerError, "Failed to switch instance")
		return
	}

	RespondJSON(w, http.StatusOK, h.stateResponse())
}

func (h *DiscoverHandler) stateResponse() discoverStateResponse {
	return discoverStateResponse{
		ActiveSection: h.controller.Visible(),
		Sections:      h.feedState.Views(),
	}
}
