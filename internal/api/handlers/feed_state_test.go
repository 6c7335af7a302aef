// Copyright (c) 2025, the Requestarr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/requestarr/requestarr/internal/domain"
)

func summaries(ids ...int) []domain.MediaSummary {
	out := make([]domain.MediaSummary, len(ids))
	for i, id := range ids {
		out[i] = domain.MediaSummary{TmdbID: id, MediaType: domain.MediaTypeMovie}
	}
	return out
}

func TestFeedState_FirstPageReplacesLaterPagesAppend(t *testing.T) {
	state := NewFeedState()

	state.SectionRendered(domain.SectionMovies, summaries(1, 2), 1, true, false)
	state.SectionRendered(domain.SectionMovies, summaries(3, 4), 2, false, false)

	view := state.View(domain.SectionMovies)
	assert.Len(t, view.Results, 4)
	assert.Equal(t, 2, view.Page)
	assert.False(t, view.HasMore)

	// A fresh page 1 replaces everything accumulated so far
	state.SectionRendered(domain.SectionMovies, summaries(9), 1, true, true)

	view = state.View(domain.SectionMovies)
	assert.Len(t, view.Results, 1)
	assert.Equal(t, 9, view.Results[0].TmdbID)
	assert.True(t, view.FromCache)
}

func TestFeedState_ErrorClearedByNextRender(t *testing.T) {
	state := NewFeedState()

	state.SectionLoading(domain.SectionTV, 1)
	assert.True(t, state.View(domain.SectionTV).Loading)

	state.SectionFailed(domain.SectionTV, 1, errors.New("upstream down"))
	view := state.View(domain.SectionTV)
	assert.False(t, view.Loading)
	assert.Equal(t, "upstream down", view.Error)

	state.SectionRendered(domain.SectionTV, summaries(1), 1, false, false)
	assert.Empty(t, state.View(domain.SectionTV).Error)
}

func TestFeedState_ResetRestoresInitialView(t *testing.T) {
	state := NewFeedState()

	state.SectionRendered(domain.SectionMovies, summaries(1, 2), 2, false, false)
	state.Reset(domain.SectionMovies)

	view := state.View(domain.SectionMovies)
	assert.Empty(t, view.Results)
	assert.Equal(t, 1, view.Page)
	assert.True(t, view.HasMore)
}

func TestFeedState_SectionsAreIndependent(t *testing.T) {
	state := NewFeedState()

	state.SectionRendered(domain.SectionMovies, summaries(1), 1, true, false)

	tv := state.View(domain.SectionTV)
	assert.Empty(t, tv.Results)
	assert.Equal(t, 1, tv.Page)
}
