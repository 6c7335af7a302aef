// Copyright (c) 2025, the Requestarr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package models

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/requestarr/requestarr/internal/domain"
)

func TestValidateAndNormalizeHost(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{
			name:  "bare host gets http scheme",
			input: "radarr.local:7878",
			want:  "http://radarr.local:7878",
		},
		{
			name:  "https preserved",
			input: "https://radarr.example.com",
			want:  "https://radarr.example.com",
		},
		{
			name:  "surrounding whitespace trimmed",
			input: "  http://10.0.0.5:8989  ",
			want:  "http://10.0.0.5:8989",
		},
		{
			name:    "empty host rejected",
			input:   "",
			wantErr: true,
		},
		{
			name:    "unsupported scheme rejected",
			input:   "ftp://radarr.local",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := validateAndNormalizeHost(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestInstanceStore_CreateAndDecrypt(t *testing.T) {
	db := setupTestDB(t)
	store, err := NewInstanceStore(db, testEncryptionKey(t))
	require.NoError(t, err)

	ctx := context.Background()

	instance, err := store.Create(ctx, "Radarr 4K", "radarr.local:7878", domain.InstanceTypeMovies, "secret-api-key", 4, "/movies", false)
	require.NoError(t, err)
	assert.NotZero(t, instance.ID)
	assert.Equal(t, "http://radarr.local:7878", instance.Host)
	assert.True(t, instance.IsActive)
	assert.NotEqual(t, "secret-api-key", instance.APIKeyEncrypted, "api key must not be stored as plaintext")

	decrypted, err := store.GetDecryptedAPIKey(instance)
	require.NoError(t, err)
	assert.Equal(t, "secret-api-key", decrypted)
}

func TestInstanceStore_CreateValidation(t *testing.T) {
	db := setupTestDB(t)
	store, err := NewInstanceStore(db, testEncryptionKey(t))
	require.NoError(t, err)

	ctx := context.Background()

	_, err = store.Create(ctx, "Bad", "radarr.local", domain.InstanceType("books"), "key", 0, "", false)
	assert.Error(t, err)

	_, err = store.Create(ctx, "Bad", "radarr.local", domain.InstanceTypeMovies, "   ", 0, "", false)
	assert.Error(t, err)
}

func TestInstanceStore_SortOrderIncrements(t *testing.T) {
	db := setupTestDB(t)
	store, err := NewInstanceStore(db, testEncryptionKey(t))
	require.NoError(t, err)

	ctx := context.Background()

	first, err := store.Create(ctx, "Radarr", "radarr.local", domain.InstanceTypeMovies, "key1", 0, "", false)
	require.NoError(t, err)
	second, err := store.Create(ctx, "Sonarr", "sonarr.local", domain.InstanceTypeTV, "key2", 0, "", false)
	require.NoError(t, err)

	assert.Equal(t, 0, first.SortOrder)
	assert.Equal(t, 1, second.SortOrder)
}

func TestInstanceStore_ListByType(t *testing.T) {
	db := setupTestDB(t)
	store, err := NewInstanceStore(db, testEncryptionKey(t))
	require.NoError(t, err)

	ctx := context.Background()

	_, err = store.Create(ctx, "Radarr", "radarr.local", domain.InstanceTypeMovies, "key1", 0, "", false)
	require.NoError(t, err)
	sonarr, err := store.Create(ctx, "Sonarr", "sonarr.local", domain.InstanceTypeTV, "key2", 0, "", false)
	require.NoError(t, err)
	disabled, err := store.Create(ctx, "Radarr Old", "old.local", domain.InstanceTypeMovies, "key3", 0, "", false)
	require.NoError(t, err)
	_, err = store.SetActiveState(ctx, disabled.ID, false)
	require.NoError(t, err)

	movies, err := store.ListByType(ctx, domain.InstanceTypeMovies)
	require.NoError(t, err)
	require.Len(t, movies, 1, "disabled instances must be excluded")
	assert.Equal(t, "Radarr", movies[0].Name)

	tv, err := store.ListByType(ctx, domain.InstanceTypeTV)
	require.NoError(t, err)
	require.Len(t, tv, 1)
	assert.Equal(t, sonarr.ID, tv[0].ID)
}

func TestInstanceStore_UpdatePreservesKeyWhenRedacted(t *testing.T) {
	db := setupTestDB(t)
	store, err := NewInstanceStore(db, testEncryptionKey(t))
	require.NoError(t, err)

	ctx := context.Background()

	instance, err := store.Create(ctx, "Radarr", "radarr.local", domain.InstanceTypeMovies, "original-key", 0, "", false)
	require.NoError(t, err)

	updated, err := store.Update(ctx, instance.ID, "Radarr HD", "radarr.local:7878", domain.RedactString("whatever"), nil, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "Radarr HD", updated.Name)

	decrypted, err := store.GetDecryptedAPIKey(updated)
	require.NoError(t, err)
	assert.Equal(t, "original-key", decrypted, "redacted placeholder must not replace the stored key")

	updated, err = store.Update(ctx, instance.ID, "Radarr HD", "radarr.local:7878", "rotated-key", nil, nil, nil)
	require.NoError(t, err)

	decrypted, err = store.GetDecryptedAPIKey(updated)
	require.NoError(t, err)
	assert.Equal(t, "rotated-key", decrypted)
}

func TestInstanceStore_Delete(t *testing.T) {
	db := setupTestDB(t)
	store, err := NewInstanceStore(db, testEncryptionKey(t))
	require.NoError(t, err)

	ctx := context.Background()

	instance, err := store.Create(ctx, "Radarr", "radarr.local", domain.InstanceTypeMovies, "key", 0, "", false)
	require.NoError(t, err)

	require.NoError(t, store.Delete(ctx, instance.ID))

	_, err = store.Get(ctx, instance.ID)
	assert.ErrorIs(t, err, ErrInstanceNotFound)

	assert.ErrorIs(t, store.Delete(ctx, instance.ID), ErrInstanceNotFound)
}

func TestInstanceStore_UpdateOrder(t *testing.T) {
	db := setupTestDB(t)
	store, err := NewInstanceStore(db, testEncryptionKey(t))
	require.NoError(t, err)

	ctx := context.Background()

	first, err := store.Create(ctx, "A", "a.local", domain.InstanceTypeMovies, "key1", 0, "", false)
	require.NoError(t, err)
	second, err := store.Create(ctx, "B", "b.local", domain.InstanceTypeTV, "key2", 0, "", false)
	require.NoError(t, err)

	require.NoError(t, store.UpdateOrder(ctx, []int{second.ID, first.ID}))

	instances, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, instances, 2)
	assert.Equal(t, second.ID, instances[0].ID)

	assert.Error(t, store.UpdateOrder(ctx, []int{first.ID}), "partial reorders must be rejected")
}

func TestInstanceStore_Selected(t *testing.T) {
	db := setupTestDB(t)
	store, err := NewInstanceStore(db, testEncryptionKey(t))
	require.NoError(t, err)

	ctx := context.Background()

	id, err := store.GetSelected(ctx, domain.InstanceTypeMovies)
	require.NoError(t, err)
	assert.Zero(t, id, "no selection yet")

	require.NoError(t, store.SetSelected(ctx, domain.InstanceTypeMovies, 7))
	require.NoError(t, store.SetSelected(ctx, domain.InstanceTypeMovies, 9))

	id, err = store.GetSelected(ctx, domain.InstanceTypeMovies)
	require.NoError(t, err)
	assert.Equal(t, 9, id)

	id, err = store.GetSelected(ctx, domain.InstanceTypeTV)
	require.NoError(t, err)
	assert.Zero(t, id, "selections are scoped per media type")
}

func TestInstance_MarshalJSONRedactsKey(t *testing.T) {
	instance := Instance{
		ID:              1,
		Name:            "Radarr",
		Host:            "http://radarr.local",
		Type:            domain.InstanceTypeMovies,
		APIKeyEncrypted: "ciphertext",
	}

	data, err := json.Marshal(instance)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "ciphertext")

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	apiKey, _ := decoded["apiKey"].(string)
	assert.True(t, domain.IsRedactedString(apiKey))
}
