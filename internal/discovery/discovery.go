// Copyright (c) 2025, the Requestarr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package discovery implements the rotating discovery feed: three sections
// (trending, movies, tv) that are loaded page by page, cached, preloaded in
// the background, and invalidated when the user switches the backing
// instance. Superseded in-flight loads are cancelled and their responses
// dropped so only the freshest request ever updates a section.
package discovery

import (
	"context"
	"fmt"

	"github.com/requestarr/requestarr/internal/domain"
)

// PageSize is the nominal result-page size. When a response carries no
// explicit has-more flag, a full page is taken to mean more pages exist.
const PageSize = 20

// InstanceScope identifies which instances a fetch is issued against.
// Trending mixes movie and series results, so it carries both ids.
type InstanceScope struct {
	MoviesID int
	TVID     int
}

// Key builds the cache key for a section under this scope.
func (s InstanceScope) Key(section domain.Section) string {
	switch section {
	case domain.SectionMovies:
		return fmt.Sprintf("%s:%d", section, s.MoviesID)
	case domain.SectionTV:
		return fmt.Sprintf("%s:%d", section, s.TVID)
	default:
		return fmt.Sprintf("%s:%d:%d", section, s.MoviesID, s.TVID)
	}
}

// FetchResult is one page of results from the discovery backend. HasMore is
// nil when the backend did not say whether further pages exist.
type FetchResult struct {
	Results []domain.MediaSummary
	HasMore *bool
}

// Fetcher retrieves one page of a section's results.
type Fetcher interface {
	FetchSection(ctx context.Context, section domain.Section, page int, scope InstanceScope) (*FetchResult, error)
}

// CacheStore is the persistence boundary for first-page results.
type CacheStore interface {
	Get(ctx context.Context, key string) ([]domain.MediaSummary, bool)
	Set(ctx context.Context, key string, results []domain.MediaSummary)
	ClearPrefix(ctx context.Context, prefix string)
}

// RotationStore persists which section was shown last.
type RotationStore interface {
	LastShown(ctx context.Context) (domain.Section, bool, error)
	RecordShown(ctx context.Context, section domain.Section) error
}

// HiddenFilter reports which titles the user has hidden from the feed.
type HiddenFilter interface {
	HiddenSet(ctx context.Context) (map[string]struct{}, error)
}

// EventSink receives the loader's output. Implementations must be safe for
// concurrent use; background refreshes and preloads emit from their own
// goroutines.
type EventSink interface {
	// SectionLoading fires before a visible fetch starts. Background
	// refreshes and preloads never emit it.
	SectionLoading(section domain.Section, page int)
	// SectionRendered delivers a page of results. Page 1 replaces the
	// section's content; later pages append. fromCache marks an instant
	// render from the cache ahead of a background refresh.
	SectionRendered(section domain.Section, results []domain.MediaSummary, page int, hasMore bool, fromCache bool)
	// SectionFailed fires when a first-page fetch fails. Failures on later
	// pages are absorbed silently.
	SectionFailed(section domain.Section, page int, err error)
}

// Recorder observes loader internals for metrics. All methods may be called
// concurrently.
type Recorder interface {
	CacheHit(section domain.Section)
	CacheMiss(section domain.Section)
	StaleDrop(section domain.Section)
	FetchStarted(section domain.Section)
	FetchFailed(section domain.Section)
}

type nopRecorder struct{}

func (nopRecorder) CacheHit(domain.Section)     {}
func (nopRecorder) CacheMiss(domain.Section)    {}
func (nopRecorder) StaleDrop(domain.Section)    {}
func (nopRecorder) FetchStarted(domain.Section) {}
func (nopRecorder) FetchFailed(domain.Section)  {}
