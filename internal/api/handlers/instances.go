// Copyright (c) 2025, the Requestarr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
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

type InstancesHandler struct {
	store *models.InstanceStore
	pool  *arr.ClientPool
}

func NewInstancesHandler(store *models.InstanceStore, pool *arr.ClientPool) *InstancesHandler {
	return &InstancesHandler{
		store: store,
		pool:  pool,
	}
}

func (h *InstancesHandler) Routes(r chi.Router) {
	r.Get("/", h.List)
	r.Post("/", h.Create)
	r.Put("/order", h.Reorder)
	r.Route("/{instanceID}", func(r chi.Router) {
		r.Get("/", h.Get)
		r.Put("/", h.Update)
		r.Delete("/", h.Delete)
		r.Post("/test", h.Test)
		r.Put("/active", h.SetActive)
	})
}

type instanceInput struct {
	Name             string              `json:"name"`
	Host             string              `json:"host"`
	Type             domain.InstanceType `json:"type"`
	APIKey           string              `json:"apiKey"`
	QualityProfileID *int                `json:"qualityProfileId"`
	RootFolder       *string             `json:"rootFolder"`
	TLSSkipVerify    *bool               `json:"tlsSkipVerify"`
}

func (h *InstancesHandler) List(w http.ResponseWriter, r *http.Request) {
	instances, err := h.store.List(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("failed to list instances")
		RespondError(w, http.StatusInternalServerError, "Failed to list instances")
		return
	}
	RespondJSON(w, http.StatusOK, instances)
}

func (h *InstancesHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := instanceID(w, r)
	if !ok {
		return
	}

	instance, err := h.store.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, models.ErrInstanceNotFound) {
			RespondError(w, http.StatusNotFound, "Instance not found")
			return
		}
		log.Error().Err(err).Int("instanceID", id).Msg("failed to get instance")
		RespondError(w, http.StatusInternalServerError, "Failed to get instance")
		return
	}
	RespondJSON(w, http.StatusOK, instance)
}

func (h *InstancesHandler) Create(w http.ResponseWriter, r *http.Request) {
	var input instanceInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		RespondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	if input.Name == "" {
		RespondError(w, http.StatusBadRequest, "Name is required")
		return
	}

	var (
		profileID  int
		rootFolder string
		skipVerify bool
	)
	if input.QualityProfileID != nil {
		profileID = *input.QualityProfileID
	}
	if input.RootFolder != nil {
		rootFolder = *input.RootFolder
	}
	if input.TLSSkipVerify != nil {
		skipVerify = *input.TLSSkipVerify
	}

	instance, err := h.store.Create(r.Context(), input.Name, input.Host, input.Type, input.APIKey, profileID, rootFolder, skipVerify)
	if err != nil {
		log.Error().Err(err).Str("name", input.Name).Msg("failed to create instance")
		RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	RespondJSON(w, http.StatusCreated, instance)
}

func (h *InstancesHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := instanceID(w, r)
	if !ok {
		return
	}

	var input instanceInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		RespondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	instance, err := h.store.Update(r.Context(), id, input.Name, input.Host, input.APIKey, input.QualityProfileID, input.RootFolder, input.TLSSkipVerify)
	if err != nil {
		if errors.Is(err, models.ErrInstanceNotFound) {
			RespondError(w, http.StatusNotFound, "Instance not found")
			return
		}
		log.Error().Err(err).Int("instanceID", id).Msg("failed to update instance")
		RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	// Credentials or host may have changed
	h.pool.Invalidate(id)

	RespondJSON(w, http.StatusOK, instance)
}

func (h *InstancesHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := instanceID(w, r)
	if !ok {
		return
	}

	if err := h.store.Delete(r.Context(), id); err != nil {
		if errors.Is(err, models.ErrInstanceNotFound) {
			RespondError(w, http.StatusNotFound, "Instance not found")
			return
		}
		log.Error().Err(err).Int("instanceID", id).Msg("failed to delete instance")
		RespondError(w, http.StatusInternalServerError, "Failed to delete instance")
		return
	}

	h.pool.Invalidate(id)

	RespondJSON(w, http.StatusOK, map[string]string{"message": "Instance deleted"})
}

// Test checks connectivity and credentials against the live instance.
func (h *InstancesHandler) Test(w http.ResponseWriter, r *http.Request) {
	id, ok := instanceID(w, r)
	if !ok {
		return
	}

	client, err := h.pool.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, models.ErrInstanceNotFound) {
			RespondError(w, http.StatusNotFound, "Instance not found")
			return
		}
		RespondError(w, http.StatusServiceUnavailable, err.Error())
		return
	}

	if err := client.Test(r.Context()); err != nil {
		h.pool.RecordFailure(id)
		status := http.StatusBadGateway
		if errors.Is(err, arr.ErrUnauthorized) {
			status = http.StatusUnauthorized
		}
		RespondError(w, status, err.Error())
		return
	}

	h.pool.RecordSuccess(id)
	RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *InstancesHandler) SetActive(w http.ResponseWriter, r *http.Request) {
	id, ok := instanceID(w, r)
	if !ok {
		return
	}

	var input struct {
		Active bool `json:"active"`
	}
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		RespondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	instance, err := h.store.SetActiveState(r.Context(), id, input.Active)
	if err != nil {
		if errors.Is(err, models.ErrInstanceNotFound) {
			RespondError(w, http.StatusNotFound, "Instance not found")
			return
		}
		log.Error().Err(err).Int("instanceID", id).Msg("failed to set instance active state")
		RespondError(w, http.StatusInternalServerError, "Failed to update instance")
		return
	}

	RespondJSON(w, http.StatusOK, instance)
}

func (h *InstancesHandler) Reorder(w http.ResponseWriter, r *http.Request) {
	var input struct {
		InstanceIDs []int `json:"instanceIds"`
	}
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		RespondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	if err := h.store.UpdateOrder(r.Context(), input.InstanceIDs); err != nil {
		if errors.Is(err, models.ErrInstanceNotFound) {
			RespondError(w, http.StatusNotFound, "Instance not found")
			return
		}
		RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	RespondJSON(w, http.StatusOK, map[string]string{"message": "Order updated"})
}

func instanceID(w http.ResponseWriter, r *http.Request) (int, bool) {
	id, err := strconv.Atoi(chi.URLParam(r, "instanceID"))
	if err != nil {
		RespondError(w, http.StatusBadRequest, "Invalid instance ID")
		return 0, false
	}
	return id, true
}
