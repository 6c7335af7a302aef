// Copyright (c) 2025, the Requestarr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package tmdb

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/requestarr/requestarr/internal/discovery"
	"github.com/requestarr/requestarr/internal/domain"
)

func TestClient_FetchSection(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/discover/movies", r.URL.Path)
		assert.Equal(t, "2", r.URL.Query().Get("page"))
		assert.Equal(t, "7", r.URL.Query().Get("instance"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"results":[{"tmdbId":603,"mediaType":"movie","title":"The Matrix"}],"has_more":true}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, 5)

	result, err := client.FetchSection(context.Background(), domain.SectionMovies, 2, discovery.InstanceScope{MoviesID: 7})
	require.NoError(t, err)

	require.Len(t, result.Results, 1)
	assert.Equal(t, "The Matrix", result.Results[0].Title)
	require.NotNil(t, result.HasMore)
	assert.True(t, *result.HasMore)
}

func TestClient_TrendingCarriesBothInstances(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/discover/trending", r.URL.Path)
		assert.Equal(t, "3", r.URL.Query().Get("movies_instance"))
		assert.Equal(t, "4", r.URL.Query().Get("tv_instance"))

		_, _ = w.Write([]byte(`{"results":[]}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, 5)

	result, err := client.FetchSection(context.Background(), domain.SectionTrending, 1, discovery.InstanceScope{MoviesID: 3, TVID: 4})
	require.NoError(t, err)
	assert.Empty(t, result.Results)
	assert.Nil(t, result.HasMore, "absent has_more must stay unset for the fallback")
}

func TestClient_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"results":[{"tmdbId":1,"mediaType":"tv","title":"recovered"}]}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, 5)

	result, err := client.FetchSection(context.Background(), domain.SectionTV, 1, discovery.InstanceScope{TVID: 1})
	require.NoError(t, err)
	require.Len(t, result.Results, 1)
	assert.Equal(t, int32(3), calls.Load())
}

func TestClient_ClientErrorsDoNotRetry(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := NewClient(server.URL, 5)

	_, err := client.FetchSection(context.Background(), domain.SectionMovies, 1, discovery.InstanceScope{MoviesID: 1})
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load(), "4xx must fail fast")

	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusNotFound, statusErr.StatusCode)
}

func TestClient_MalformedJSONDoesNotRetry(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(`{"results": not json`))
	}))
	defer server.Close()

	client := NewClient(server.URL, 5)

	_, err := client.FetchSection(context.Background(), domain.SectionMovies, 1, discovery.InstanceScope{MoviesID: 1})
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}
