// Copyright (c) 2025, the Requestarr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"sync"
	"time"

	"github.com/requestarr/requestarr/internal/domain"
)

// SectionView is what the dashboard sees for one section: the accumulated
// result list plus pagination and error state.
type SectionView struct {
	Results   []domain.MediaSummary `json:"results"`
	Page      int                   `json:"page"`
	HasMore   bool                  `json:"hasMore"`
	Loading   bool                  `json:"loading"`
	FromCache bool                  `json:"fromCache"`
	Error     string                `json:"error,omitempty"`
	UpdatedAt time.Time             `json:"updatedAt,omitempty"`
}

// FeedState is the render target for the discovery loader. First pages
// replace a section's list, later pages append, and failures pin an error
// message until the next successful render.
type FeedState struct {
	mu       sync.Mutex
	sections map[domain.Section]*SectionView
	now      func() time.Time
}

func NewFeedState() *FeedState {
	sections := make(map[domain.Section]*SectionView, len(domain.SectionOrder))
	for _, section := range domain.SectionOrder {
		sections[section] = &SectionView{Page: 1, HasMore: true}
	}
	return &FeedState{
		sections: sections,
		now:      time.Now,
	}
}

func (f *FeedState) SectionLoading(section domain.Section, page int) {
	f.mu.Lock()
	defer f.mu.Unlock()

	view := f.sections[section]
	view.Loading = true
	view.Error = ""
}

func (f *FeedState) SectionRendered(section domain.Section, results []domain.MediaSummary, page int, hasMore, fromCache bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	view := f.sections[section]
	if page <= 1 {
		view.Results = results
	} else {
		view.Results = append(view.Results, results...)
	}
	view.Page = page
	view.HasMore = hasMore
	view.Loading = false
	view.FromCache = fromCache
	view.Error = ""
	view.UpdatedAt = f.now()
}

func (f *FeedState) SectionFailed(section domain.Section, page int, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	view := f.sections[section]
	view.Loading = false
	view.Error = err.Error()
	view.UpdatedAt = f.now()
}

// Reset clears a section back to its initial view, e.g. after an instance
// switch invalidated its contents.
func (f *FeedState) Reset(section domain.Section) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sections[section] = &SectionView{Page: 1, HasMore: true}
}

// View returns a copy of one section's state.
func (f *FeedState) View(section domain.Section) SectionView {
	f.mu.Lock()
	defer f.mu.Unlock()

	view := f.sections[section]
	out := *view
	out.Results = append([]domain.MediaSummary(nil), view.Results...)
	return out
}

// Views returns a copy of every section's state.
func (f *FeedState) Views() map[domain.Section]SectionView {
	out := make(map[domain.Section]SectionView, len(domain.SectionOrder))
	for _, section := range domain.SectionOrder {
		out[section] = f.View(section)
	}
	return out
}
