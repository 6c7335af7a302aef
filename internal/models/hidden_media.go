// Copyright (c) 2025, the Requestarr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package models

import (
	"context"
	"fmt"
	"time"

	"github.com/requestarr/requestarr/internal/dbinterface"
	"github.com/requestarr/requestarr/internal/domain"
)

type HiddenMedia struct {
	TmdbID    int              `json:"tmdbId"`
	MediaType domain.MediaType `json:"mediaType"`
	Title     string           `json:"title,omitempty"`
	HiddenAt  time.Time        `json:"hiddenAt"`
}

// HiddenMediaStore tracks titles the user never wants to see in the feed.
type HiddenMediaStore struct {
	db dbinterface.Querier
}

func NewHiddenMediaStore(db dbinterface.Querier) *HiddenMediaStore {
	return &HiddenMediaStore{db: db}
}

func (s *HiddenMediaStore) Hide(ctx context.Context, tmdbID int, mediaType domain.MediaType, title string) error {
	if !mediaType.Valid() {
		return fmt.Errorf("unknown media type %q", mediaType)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO hidden_media (tmdb_id, media_type, title)
		VALUES (?, ?, ?)
		ON CONFLICT(tmdb_id, media_type) DO UPDATE SET title = excluded.title
	`, tmdbID, string(mediaType), title)
	return err
}

func (s *HiddenMediaStore) Unhide(ctx context.Context, tmdbID int, mediaType domain.MediaType) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM hidden_media WHERE tmdb_id = ? AND media_type = ?
	`, tmdbID, string(mediaType))
	return err
}

func (s *HiddenMediaStore) List(ctx context.Context) ([]*HiddenMedia, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT tmdb_id, media_type, title, hidden_at
		FROM hidden_media
		ORDER BY hidden_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var hidden []*HiddenMedia
	for rows.Next() {
		entry := &HiddenMedia{}
		var mediaType string
		if err := rows.Scan(&entry.TmdbID, &mediaType, &entry.Title, &entry.HiddenAt); err != nil {
			return nil, err
		}
		entry.MediaType = domain.MediaType(mediaType)
		hidden = append(hidden, entry)
	}
	return hidden, rows.Err()
}

// HiddenSet returns the hidden identities as a lookup set keyed by
// "<tmdbID>:<mediaType>" for fast filtering of result pages.
func (s *HiddenMediaStore) HiddenSet(ctx context.Context) (map[string]struct{}, error) {
	hidden, err := s.List(ctx)
	if err != nil {
		return nil, err
	}

	set := make(map[string]struct{}, len(hidden))
	for _, entry := range hidden {
		set[HiddenKey(entry.TmdbID, entry.MediaType)] = struct{}{}
	}
	return set, nil
}

func HiddenKey(tmdbID int, mediaType domain.MediaType) string {
	return fmt.Sprintf("%d:%s", tmdbID, mediaType)
}
