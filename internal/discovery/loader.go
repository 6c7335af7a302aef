// Copyright (c) 2025, the Requestarr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package discovery

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/requestarr/requestarr/internal/domain"
)

// sectionState tracks one section's pagination and in-flight request. token
// increments on every new visible request and on invalidation; a response is
// applied only if the token it captured at issue time is still current.
type sectionState struct {
	page    int
	hasMore bool
	loading bool
	token   uint64
	scope   InstanceScope
	cancel  context.CancelFunc
}

// SectionSnapshot is a read-only view of a section's pagination state.
type SectionSnapshot struct {
	Page    int  `json:"page"`
	HasMore bool `json:"hasMore"`
	Loading bool `json:"loading"`
}

// Loader drives the fetch, cache, and render pipeline for all three
// sections. Each section's page progression is serialized by its loading
// flag; stale responses from superseded requests are dropped whole.
type Loader struct {
	mu       sync.Mutex
	sections map[domain.Section]*sectionState
	visible  domain.Section

	fetcher Fetcher
	cache   CacheStore
	hidden  HiddenFilter
	sink    EventSink
	rec     Recorder
}

func NewLoader(fetcher Fetcher, cache CacheStore, sink EventSink, hidden HiddenFilter, rec Recorder) *Loader {
	if rec == nil {
		rec = nopRecorder{}
	}

	sections := make(map[domain.Section]*sectionState, len(domain.SectionOrder))
	for _, section := range domain.SectionOrder {
		sections[section] = &sectionState{page: 1, hasMore: true}
	}

	return &Loader{
		sections: sections,
		fetcher:  fetcher,
		cache:    cache,
		hidden:   hidden,
		sink:     sink,
		rec:      rec,
	}
}

// SetVisible records which section is on screen. Background refreshes and
// preloads re-render only the visible section.
func (l *Loader) SetVisible(section domain.Section) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.visible = section
}

// Visible returns the section currently on screen.
func (l *Loader) Visible() domain.Section {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.visible
}

// Snapshot returns the section's current pagination state.
func (l *Loader) Snapshot(section domain.Section) SectionSnapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	st := l.sections[section]
	if st == nil {
		return SectionSnapshot{Page: 1, HasMore: true}
	}
	return SectionSnapshot{Page: st.page, HasMore: st.hasMore, Loading: st.loading}
}

// Load fetches page for a visible section. Page 1 consults the cache first:
// a hit renders immediately and kicks off a background refresh. Fetch
// failures never propagate to the caller; page-1 failures surface through
// the sink, later pages are absorbed and retried on the next trigger.
//
// A call is a no-op while an earlier load for the same section and scope is
// still in flight.
func (l *Loader) Load(ctx context.Context, section domain.Section, page int, scope InstanceScope) error {
	if !section.Valid() {
		return fmt.Errorf("unknown section %q", section)
	}
	if page < 1 {
		return fmt.Errorf("page must be positive, got %d", page)
	}
	if section == domain.SectionTrending && page > 1 {
		return fmt.Errorf("trending is not paginated")
	}

	l.mu.Lock()
	st := l.sections[section]
	if st.loading && st.scope == scope {
		l.mu.Unlock()
		log.Trace().Str("section", string(section)).Msg("Load already in flight, skipping")
		return nil
	}
	l.mu.Unlock()

	if page == 1 {
		if cached, ok := l.cache.Get(ctx, scope.Key(section)); ok {
			l.rec.CacheHit(section)

			hasMore := section != domain.SectionTrending && len(cached) >= PageSize
			l.mu.Lock()
			st.page = 1
			st.hasMore = hasMore
			l.mu.Unlock()

			l.emitRendered(ctx, section, cached, 1, hasMore, true)

			// Instant paint from cache, eventual consistency from the
			// network.
			go l.refresh(context.WithoutCancel(ctx), section, scope)
			return nil
		}
		l.rec.CacheMiss(section)
	}

	token, fctx := l.beginRequest(ctx, section, scope)
	defer l.endRequest(section, token)

	l.sink.SectionLoading(section, page)
	l.rec.FetchStarted(section)

	result, err := l.fetcher.FetchSection(fctx, section, page, scope)
	if err != nil {
		l.rec.FetchFailed(section)
		if l.isStale(section, token, scope) {
			l.rec.StaleDrop(section)
			return nil
		}
		if page == 1 {
			l.sink.SectionFailed(section, page, err)
		} else {
			log.Debug().Err(err).Str("section", string(section)).Int("page", page).
				Msg("Page fetch failed, waiting for next trigger")
		}
		return nil
	}

	if l.isStale(section, token, scope) {
		l.rec.StaleDrop(section)
		return nil
	}

	hasMore := computeHasMore(section, result)

	l.mu.Lock()
	st.page = page
	st.hasMore = hasMore
	l.mu.Unlock()

	if page == 1 {
		l.cache.Set(ctx, scope.Key(section), result.Results)
	}

	l.emitRendered(ctx, section, result.Results, page, hasMore, false)
	return nil
}

// Preload populates a non-visible section's cache without emitting loading
// state. The result is rendered only if the section became visible while the
// fetch was in flight.
func (l *Loader) Preload(ctx context.Context, section domain.Section, scope InstanceScope) {
	l.refresh(ctx, section, scope)
}

// ResetSection restores a section to its initial pagination state and
// invalidates any request still in flight for it.
func (l *Loader) ResetSection(section domain.Section) {
	l.mu.Lock()
	defer l.mu.Unlock()

	st := l.sections[section]
	if st == nil {
		return
	}
	st.page = 1
	st.hasMore = true
	st.loading = false
	st.token++
	if st.cancel != nil {
		st.cancel()
		st.cancel = nil
	}
}

// beginRequest supersedes any in-flight request for the section: the token
// advances, the previous request's context is cancelled, and the section is
// marked loading against the given scope.
func (l *Loader) beginRequest(ctx context.Context, section domain.Section, scope InstanceScope) (uint64, context.Context) {
	l.mu.Lock()
	defer l.mu.Unlock()

	st := l.sections[section]
	st.token++
	st.loading = true
	st.scope = scope
	if st.cancel != nil {
		st.cancel()
	}

	fctx, cancel := context.WithCancel(ctx)
	st.cancel = cancel
	return st.token, fctx
}

// isStale reports whether a newer request was begun, or the scope changed,
// since token was issued.
func (l *Loader) isStale(section domain.Section, token uint64, scope InstanceScope) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	st := l.sections[section]
	return st.token != token || st.scope != scope
}

// endRequest clears the loading flag, unless a newer request already took
// over the section.
func (l *Loader) endRequest(section domain.Section, token uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	st := l.sections[section]
	if st.token != token {
		return
	}
	st.loading = false
	if st.cancel != nil {
		st.cancel()
		st.cancel = nil
	}
}

// refresh fetches page 1 outside the request guard so it never blocks
// scroll-triggered pagination. It only writes the cache, and re-renders only
// when the section is visible and no newer request started meanwhile.
func (l *Loader) refresh(ctx context.Context, section domain.Section, scope InstanceScope) {
	l.mu.Lock()
	st := l.sections[section]
	tokenAtIssue := st.token
	l.mu.Unlock()

	l.rec.FetchStarted(section)

	result, err := l.fetcher.FetchSection(ctx, section, 1, scope)
	if err != nil {
		l.rec.FetchFailed(section)
		log.Debug().Err(err).Str("section", string(section)).Msg("Background refresh failed")
		return
	}

	l.mu.Lock()
	if st.token != tokenAtIssue {
		l.mu.Unlock()
		l.rec.StaleDrop(section)
		return
	}
	visible := l.visible == section
	l.mu.Unlock()

	l.cache.Set(ctx, scope.Key(section), result.Results)

	if !visible {
		return
	}

	hasMore := computeHasMore(section, result)
	l.mu.Lock()
	if st.token != tokenAtIssue {
		l.mu.Unlock()
		l.rec.StaleDrop(section)
		return
	}
	st.page = 1
	st.hasMore = hasMore
	l.mu.Unlock()

	l.emitRendered(ctx, section, result.Results, 1, hasMore, false)
}

// emitRendered strips hidden titles and forwards the page to the sink.
func (l *Loader) emitRendered(ctx context.Context, section domain.Section, results []domain.MediaSummary, page int, hasMore, fromCache bool) {
	if l.hidden != nil {
		hiddenSet, err := l.hidden.HiddenSet(ctx)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to load hidden titles, rendering unfiltered")
		} else if len(hiddenSet) > 0 {
			filtered := make([]domain.MediaSummary, 0, len(results))
			for _, item := range results {
				if _, hidden := hiddenSet[fmt.Sprintf("%d:%s", item.TmdbID, item.MediaType)]; hidden {
					continue
				}
				filtered = append(filtered, item)
			}
			results = filtered
		}
	}

	l.sink.SectionRendered(section, results, page, hasMore, fromCache)
}

// computeHasMore prefers the backend's explicit flag and falls back to "a
// full page probably means more". Trending is a single page.
func computeHasMore(section domain.Section, result *FetchResult) bool {
	if section == domain.SectionTrending {
		return false
	}
	if result.HasMore != nil {
		return *result.HasMore
	}
	return len(result.Results) >= PageSize
}
