// Copyright (c) 2025, the Requestarr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/requestarr/requestarr/internal/arr"
	"github.com/requestarr/requestarr/internal/domain"
	"github.com/requestarr/requestarr/internal/models"
)

type RequestsHandler struct {
	requests  *models.MediaRequestStore
	instances *models.InstanceStore
	pool      *arr.ClientPool
}

func NewRequestsHandler(requests *models.MediaRequestStore, instances *models.InstanceStore, pool *arr.ClientPool) *RequestsHandler {
	return &RequestsHandler{
		requests:  requests,
		instances: instances,
		pool:      pool,
	}
}

func (h *RequestsHandler) Routes(r chi.Router) {
	r.Get("/", h.List)
	r.Post("/", h.Create)
	r.Route("/{requestID}", func(r chi.Router) {
		r.Delete("/", h.Delete)
		r.Post("/approve", h.Approve)
		r.Post("/decline", h.Decline)
	})
}

func (h *RequestsHandler) List(w http.ResponseWriter, r *http.Request) {
	status := models.RequestStatus(r.URL.Query().Get("status"))
	requests, err := h.requests.List(r.Context(), status)
	if err != nil {
		log.Error().Err(err).Msg("failed to list requests")
		RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	RespondJSON(w, http.StatusOK, requests)
}

func (h *RequestsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var input struct {
		TmdbID      int              `json:"tmdbId"`
		MediaType   domain.MediaType `json:"mediaType"`
		Title       string           `json:"title"`
		Year        int              `json:"year"`
		PosterPath  string           `json:"posterPath"`
		InstanceID  *int             `json:"instanceId"`
		RequestedBy string           `json:"requestedBy"`
		Note        string           `json:"note"`
	}
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		RespondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	if input.Title == "" || input.TmdbID == 0 {
		RespondError(w, http.StatusBadRequest, "Title and tmdbId are required")
		return
	}

	request, err := h.requests.Create(r.Context(), input.TmdbID, input.MediaType, input.Title, input.Year, input.PosterPath, input.InstanceID, input.RequestedBy, input.Note)
	if err != nil {
		if errors.Is(err, models.ErrDuplicateRequest) {
			RespondError(w, http.StatusConflict, "Title already requested")
			return
		}
		log.Error().Err(err).Int("tmdbID", input.TmdbID).Msg("failed to create request")
		RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	RespondJSON(w, http.StatusCreated, request)
}

// Approve pushes the title to its downstream instance. If the push fails the
// request is marked failed with the reason, so it can be retried later.
func (h *RequestsHandler) Approve(w http.ResponseWriter, r *http.Request) {
	id, ok := requestID(w, r)
	if !ok {
		return
	}

	ctx := r.Context()

	request, err := h.requests.Get(ctx, id)
	if err != nil {
		if errors.Is(err, models.ErrRequestNotFound) {
			RespondError(w, http.StatusNotFound, "Request not found")
			return
		}
		log.Error().Err(err).Int("requestID", id).Msg("failed to load request")
		RespondError(w, http.StatusInternalServerError, "Failed to load request")
		return
	}

	instance, err := h.resolveInstance(r, request)
	if err != nil {
		RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.push(ctx, instance, request); err != nil {
		h.pool.RecordFailure(instance.ID)
		log.Warn().Err(err).Int("requestID", id).Int("instanceID", instance.ID).Msg("push to instance failed")

		failed, statusErr := h.requests.SetStatus(ctx, id, models.RequestStatusFailed, err.Error())
		if statusErr != nil {
			log.Error().Err(statusErr).Int("requestID", id).Msg("failed to mark request failed")
			RespondError(w, http.StatusInternalServerError, "Failed to update request")
			return
		}
		RespondJSON(w, http.StatusBadGateway, failed)
		return
	}

	h.pool.RecordSuccess(instance.ID)

	approved, err := h.requests.SetStatus(ctx, id, models.RequestStatusApproved, "")
	if err != nil {
		log.Error().Err(err).Int("requestID", id).Msg("failed to mark request approved")
		RespondError(w, http.StatusInternalServerError, "Failed to update request")
		return
	}

	RespondJSON(w, http.StatusOK, approved)
}

func (h *RequestsHandler) Decline(w http.ResponseWriter, r *http.Request) {
	id, ok := requestID(w, r)
	if !ok {
		return
	}

	var input struct {
		Note string `json:"note"`
	}
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
			RespondError(w, http.StatusBadRequest, "Invalid request payload")
			return
		}
	}

	request, err := h.requests.SetStatus(r.Context(), id, models.RequestStatusDeclined, input.Note)
	if err != nil {
		if errors.Is(err, models.ErrRequestNotFound) {
			RespondError(w, http.StatusNotFound, "Request not found")
			return
		}
		log.Error().Err(err).Int("requestID", id).Msg("failed to decline request")
		RespondError(w, http.StatusInternalServerError, "Failed to update request")
		return
	}

	RespondJSON(w, http.StatusOK, request)
}

func (h *RequestsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := requestID(w, r)
	if !ok {
		return
	}

	if err := h.requests.Delete(r.Context(), id); err != nil {
		if errors.Is(err, models.ErrRequestNotFound) {
			RespondError(w, http.StatusNotFound, "Request not found")
			return
		}
		log.Error().Err(err).Int("requestID", id).Msg("failed to delete request")
		RespondError(w, http.StatusInternalServerError, "Failed to delete request")
		return
	}

	RespondJSON(w, http.StatusOK, map[string]string{"message": "Request deleted"})
}

// resolveInstance picks where an approval goes: the instance pinned on the
// request, or the currently selected instance for the request's media type.
func (h *RequestsHandler) resolveInstance(r *http.Request, request *models.MediaRequest) (*models.Instance, error) {
	ctx := r.Context()

	if request.InstanceID != nil {
		return h.instances.Get(ctx, *request.InstanceID)
	}

	instanceType := domain.InstanceTypeMovies
	if request.MediaType == domain.MediaTypeTV {
		instanceType = domain.InstanceTypeTV
	}

	selected, err := h.instances.GetSelected(ctx, instanceType)
	if err != nil {
		return nil, err
	}
	if selected == 0 {
		return nil, errors.New("no instance selected for this media type")
	}
	return h.instances.Get(ctx, selected)
}

func (h *RequestsHandler) push(ctx context.Context, instance *models.Instance, request *models.MediaRequest) error {
	client, err := h.pool.Get(ctx, instance.ID)
	if err != nil {
		return err
	}

	payload := arr.AddRequest{
		TmdbID:           request.TmdbID,
		Title:            request.Title,
		Year:             request.Year,
		QualityProfileID: instance.QualityProfileID,
		RootFolderPath:   instance.RootFolder,
	}

	if request.MediaType == domain.MediaTypeTV {
		return client.AddSeries(ctx, payload)
	}
	return client.AddMovie(ctx, payload)
}

func requestID(w http.ResponseWriter, r *http.Request) (int, bool) {
	id, err := strconv.Atoi(chi.URLParam(r, "requestID"))
	if err != nil {
		RespondError(w, http.StatusBadRequest, "Invalid request ID")
		return 0, false
	}
	return id, true
}
