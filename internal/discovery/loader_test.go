// Copyright (c) 2025, the Requestarr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package discovery

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/requestarr/requestarr/internal/database"
	"github.com/requestarr/requestarr/internal/domain"
	"github.com/requestarr/requestarr/internal/models"
)

func setupTestDB(t *testing.T) *database.DB {
	t.Helper()

	db, err := database.New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = db.Close()
	})

	return db
}

type fetcherFunc func(ctx context.Context, section domain.Section, page int, scope InstanceScope) (*FetchResult, error)

func (f fetcherFunc) FetchSection(ctx context.Context, section domain.Section, page int, scope InstanceScope) (*FetchResult, error) {
	return f(ctx, section, page, scope)
}

type renderEvent struct {
	kind      string
	section   domain.Section
	page      int
	results   []domain.MediaSummary
	hasMore   bool
	fromCache bool
	err       error
}

type captureSink struct {
	mu     sync.Mutex
	events []renderEvent
}

func (s *captureSink) SectionLoading(section domain.Section, page int) {
	s.record(renderEvent{kind: "loading", section: section, page: page})
}

func (s *captureSink) SectionRendered(section domain.Section, results []domain.MediaSummary, page int, hasMore, fromCache bool) {
	s.record(renderEvent{kind: "rendered", section: section, page: page, results: results, hasMore: hasMore, fromCache: fromCache})
}

func (s *captureSink) SectionFailed(section domain.Section, page int, err error) {
	s.record(renderEvent{kind: "failed", section: section, page: page, err: err})
}

func (s *captureSink) record(event renderEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
}

func (s *captureSink) all() []renderEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]renderEvent, len(s.events))
	copy(out, s.events)
	return out
}

func (s *captureSink) rendered() []renderEvent {
	var out []renderEvent
	for _, event := range s.all() {
		if event.kind == "rendered" {
			out = append(out, event)
		}
	}
	return out
}

func makeResults(section domain.Section, n int) []domain.MediaSummary {
	results := make([]domain.MediaSummary, n)
	mediaType := domain.MediaTypeMovie
	if section == domain.SectionTV {
		mediaType = domain.MediaTypeTV
	}
	for i := range results {
		results[i] = domain.MediaSummary{
			TmdbID:    1000 + i,
			MediaType: mediaType,
			Title:     fmt.Sprintf("%s title %d", section, i),
		}
	}
	return results
}

func staticFetcher(n int) Fetcher {
	return fetcherFunc(func(_ context.Context, section domain.Section, _ int, _ InstanceScope) (*FetchResult, error) {
		return &FetchResult{Results: makeResults(section, n)}, nil
	})
}

func TestLoader_FirstPageMissFetchesAndCaches(t *testing.T) {
	db := setupTestDB(t)
	cache := models.NewDiscoverCacheStore(db, 24*time.Hour)
	sink := &captureSink{}
	loader := NewLoader(staticFetcher(20), cache, sink, nil, nil)
	loader.SetVisible(domain.SectionMovies)

	scope := InstanceScope{MoviesID: 1, TVID: 2}
	require.NoError(t, loader.Load(context.Background(), domain.SectionMovies, 1, scope))

	events := sink.all()
	require.Len(t, events, 2)
	assert.Equal(t, "loading", events[0].kind)
	assert.Equal(t, "rendered", events[1].kind)
	assert.False(t, events[1].fromCache)
	assert.Len(t, events[1].results, 20)

	cached, ok := cache.Get(context.Background(), scope.Key(domain.SectionMovies))
	require.True(t, ok, "page 1 results must be cached")
	assert.Len(t, cached, 20)

	snap := loader.Snapshot(domain.SectionMovies)
	assert.Equal(t, 1, snap.Page)
	assert.True(t, snap.HasMore)
	assert.False(t, snap.Loading)
}

func TestLoader_CachedFirstPageRendersInstantlyThenRefreshes(t *testing.T) {
	db := setupTestDB(t)
	cache := models.NewDiscoverCacheStore(db, 24*time.Hour)
	sink := &captureSink{}

	var fetches atomic.Int32
	fetcher := fetcherFunc(func(_ context.Context, section domain.Section, _ int, _ InstanceScope) (*FetchResult, error) {
		fetches.Add(1)
		return &FetchResult{Results: makeResults(section, 8)}, nil
	})

	loader := NewLoader(fetcher, cache, sink, nil, nil)
	loader.SetVisible(domain.SectionMovies)

	scope := InstanceScope{MoviesID: 1}
	cache.Set(context.Background(), scope.Key(domain.SectionMovies), makeResults(domain.SectionMovies, 5))

	require.NoError(t, loader.Load(context.Background(), domain.SectionMovies, 1, scope))

	// Cached paint happens synchronously, with no loading flash before it
	events := sink.all()
	require.NotEmpty(t, events)
	assert.Equal(t, "rendered", events[0].kind)
	assert.True(t, events[0].fromCache)
	assert.Len(t, events[0].results, 5)

	// The background refresh re-renders with fresh data and updates the cache
	require.Eventually(t, func() bool {
		rendered := sink.rendered()
		return len(rendered) == 2 && !rendered[1].fromCache
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, int32(1), fetches.Load())

	cached, ok := cache.Get(context.Background(), scope.Key(domain.SectionMovies))
	require.True(t, ok)
	assert.Len(t, cached, 8, "refresh must overwrite the cached entry")
}

func TestLoader_DuplicateLoadIsNoOp(t *testing.T) {
	db := setupTestDB(t)
	cache := models.NewDiscoverCacheStore(db, 24*time.Hour)
	sink := &captureSink{}

	var fetches atomic.Int32
	release := make(chan struct{})
	started := make(chan struct{}, 2)
	fetcher := fetcherFunc(func(_ context.Context, section domain.Section, _ int, _ InstanceScope) (*FetchResult, error) {
		fetches.Add(1)
		started <- struct{}{}
		<-release
		return &FetchResult{Results: makeResults(section, 20)}, nil
	})

	loader := NewLoader(fetcher, cache, sink, nil, nil)
	scope := InstanceScope{MoviesID: 1}

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = loader.Load(context.Background(), domain.SectionMovies, 1, scope)
	}()
	<-started

	// Second trigger for the same section and scope while in flight
	require.NoError(t, loader.Load(context.Background(), domain.SectionMovies, 1, scope))

	close(release)
	<-done

	assert.Equal(t, int32(1), fetches.Load(), "duplicate trigger must not issue a second fetch")
}

func TestLoader_StaleResponseDropped(t *testing.T) {
	db := setupTestDB(t)
	cache := models.NewDiscoverCacheStore(db, 24*time.Hour)
	sink := &captureSink{}

	slowRelease := make(chan struct{})
	slowStarted := make(chan struct{})
	fetcher := fetcherFunc(func(_ context.Context, section domain.Section, _ int, scope InstanceScope) (*FetchResult, error) {
		if scope.MoviesID == 1 {
			close(slowStarted)
			// Ignore cancellation so the stale response actually arrives
			<-slowRelease
			return &FetchResult{Results: []domain.MediaSummary{{TmdbID: 1, MediaType: domain.MediaTypeMovie, Title: "old instance"}}}, nil
		}
		return &FetchResult{Results: []domain.MediaSummary{{TmdbID: 2, MediaType: domain.MediaTypeMovie, Title: "new instance"}}}, nil
	})

	loader := NewLoader(fetcher, cache, sink, nil, nil)
	loader.SetVisible(domain.SectionMovies)

	oldScope := InstanceScope{MoviesID: 1}
	newScope := InstanceScope{MoviesID: 2}

	firstDone := make(chan struct{})
	go func() {
		defer close(firstDone)
		_ = loader.Load(context.Background(), domain.SectionMovies, 1, oldScope)
	}()
	<-slowStarted

	// A newer request under a different scope supersedes the slow one
	require.NoError(t, loader.Load(context.Background(), domain.SectionMovies, 1, newScope))

	// Now let the superseded response arrive late
	close(slowRelease)
	<-firstDone

	var lastRendered renderEvent
	for _, event := range sink.rendered() {
		lastRendered = event
	}
	require.NotEmpty(t, lastRendered.results)
	assert.Equal(t, "new instance", lastRendered.results[0].Title, "superseded response must never be the final state")

	for _, event := range sink.rendered() {
		for _, item := range event.results {
			assert.NotEqual(t, "old instance", item.Title, "stale data must never render")
		}
	}
}

func TestLoader_HasMoreFallback(t *testing.T) {
	tests := []struct {
		name        string
		resultCount int
		explicit    *bool
		wantHasMore bool
	}{
		{name: "full page without flag means more", resultCount: 20, wantHasMore: true},
		{name: "short page without flag means done", resultCount: 19, wantHasMore: false},
		{name: "explicit flag wins over count", resultCount: 20, explicit: boolPtr(false), wantHasMore: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := setupTestDB(t)
			cache := models.NewDiscoverCacheStore(db, 24*time.Hour)
			sink := &captureSink{}
			fetcher := fetcherFunc(func(_ context.Context, section domain.Section, _ int, _ InstanceScope) (*FetchResult, error) {
				return &FetchResult{Results: makeResults(section, tt.resultCount), HasMore: tt.explicit}, nil
			})

			loader := NewLoader(fetcher, cache, sink, nil, nil)
			require.NoError(t, loader.Load(context.Background(), domain.SectionMovies, 2, InstanceScope{MoviesID: 1}))

			snap := loader.Snapshot(domain.SectionMovies)
			assert.Equal(t, 2, snap.Page)
			assert.Equal(t, tt.wantHasMore, snap.HasMore)
		})
	}
}

func TestLoader_TrendingIsSinglePage(t *testing.T) {
	db := setupTestDB(t)
	cache := models.NewDiscoverCacheStore(db, 24*time.Hour)
	sink := &captureSink{}
	loader := NewLoader(staticFetcher(20), cache, sink, nil, nil)

	assert.Error(t, loader.Load(context.Background(), domain.SectionTrending, 2, InstanceScope{}))

	require.NoError(t, loader.Load(context.Background(), domain.SectionTrending, 1, InstanceScope{MoviesID: 1, TVID: 2}))
	snap := loader.Snapshot(domain.SectionTrending)
	assert.False(t, snap.HasMore, "trending never paginates")
}

func TestLoader_FirstPageFailureSurfacesLaterPagesSilent(t *testing.T) {
	db := setupTestDB(t)
	cache := models.NewDiscoverCacheStore(db, 24*time.Hour)
	sink := &captureSink{}
	fetcher := fetcherFunc(func(context.Context, domain.Section, int, InstanceScope) (*FetchResult, error) {
		return nil, errors.New("upstream down")
	})

	loader := NewLoader(fetcher, cache, sink, nil, nil)
	scope := InstanceScope{MoviesID: 1}

	require.NoError(t, loader.Load(context.Background(), domain.SectionMovies, 1, scope), "fetch failures must not propagate")

	var failed int
	for _, event := range sink.all() {
		if event.kind == "failed" {
			failed++
			assert.Equal(t, 1, event.page)
		}
	}
	assert.Equal(t, 1, failed, "page-1 failure must surface exactly one error event")

	require.NoError(t, loader.Load(context.Background(), domain.SectionMovies, 2, scope))
	for _, event := range sink.all() {
		if event.kind == "failed" {
			assert.Equal(t, 1, event.page, "later-page failures stay silent")
		}
	}

	snap := loader.Snapshot(domain.SectionMovies)
	assert.False(t, snap.Loading, "loading must clear after failure")
}

func TestLoader_HiddenTitlesFiltered(t *testing.T) {
	db := setupTestDB(t)
	cache := models.NewDiscoverCacheStore(db, 24*time.Hour)
	hidden := models.NewHiddenMediaStore(db)
	sink := &captureSink{}

	require.NoError(t, hidden.Hide(context.Background(), 1001, domain.MediaTypeMovie, "hidden title"))

	loader := NewLoader(staticFetcher(3), cache, sink, hidden, nil)
	scope := InstanceScope{MoviesID: 1}
	require.NoError(t, loader.Load(context.Background(), domain.SectionMovies, 1, scope))

	rendered := sink.rendered()
	require.Len(t, rendered, 1)
	assert.Len(t, rendered[0].results, 2, "hidden title must be stripped from output")
	for _, item := range rendered[0].results {
		assert.NotEqual(t, 1001, item.TmdbID)
	}

	// The cache keeps the full page; only the emitted view is filtered
	cached, ok := cache.Get(context.Background(), scope.Key(domain.SectionMovies))
	require.True(t, ok)
	assert.Len(t, cached, 3)
}

func TestLoader_BackgroundRefreshDoesNotBlockPagination(t *testing.T) {
	db := setupTestDB(t)
	cache := models.NewDiscoverCacheStore(db, 24*time.Hour)
	sink := &captureSink{}

	refreshRelease := make(chan struct{})
	refreshStarted := make(chan struct{})
	fetcher := fetcherFunc(func(_ context.Context, section domain.Section, page int, _ InstanceScope) (*FetchResult, error) {
		if page == 1 {
			close(refreshStarted)
			<-refreshRelease
		}
		return &FetchResult{Results: makeResults(section, 20)}, nil
	})

	loader := NewLoader(fetcher, cache, sink, nil, nil)
	loader.SetVisible(domain.SectionMovies)
	scope := InstanceScope{MoviesID: 1}

	cache.Set(context.Background(), scope.Key(domain.SectionMovies), makeResults(domain.SectionMovies, 20))

	// Cached paint plus a background refresh that is now blocked
	require.NoError(t, loader.Load(context.Background(), domain.SectionMovies, 1, scope))
	<-refreshStarted

	// Page 2 must proceed while the refresh is still in flight
	require.NoError(t, loader.Load(context.Background(), domain.SectionMovies, 2, scope))

	snap := loader.Snapshot(domain.SectionMovies)
	assert.Equal(t, 2, snap.Page)
	assert.True(t, snap.HasMore)

	close(refreshRelease)

	// The late refresh is superseded by the page-2 load and must not wind
	// pagination back to page 1
	assert.Never(t, func() bool {
		return loader.Snapshot(domain.SectionMovies).Page != 2
	}, 200*time.Millisecond, 20*time.Millisecond)
}

func boolPtr(b bool) *bool {
	return &b
}
