// Copyright (c) 2025, the Requestarr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package models

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/requestarr/requestarr/internal/dbinterface"
	"github.com/requestarr/requestarr/internal/domain"
)

// DiscoverCacheStore persists first-page discovery results so section renders
// survive restarts. Entries expire lazily on read; a miss and an expired or
// corrupt entry are indistinguishable to callers.
type DiscoverCacheStore struct {
	db  dbinterface.Querier
	ttl time.Duration
	now func() time.Time
}

func NewDiscoverCacheStore(db dbinterface.Querier, ttl time.Duration) *DiscoverCacheStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &DiscoverCacheStore{
		db:  db,
		ttl: ttl,
		now: time.Now,
	}
}

// CacheKey builds the storage key for a section scoped to an instance.
// Trending is scoped to both selected instances, so both ids participate.
func CacheKey(section domain.Section, instanceIDs ...int) string {
	key := string(section)
	for _, id := range instanceIDs {
		key += fmt.Sprintf(":%d", id)
	}
	return key
}

// Get returns the cached results for key, or (nil, false) when the entry is
// absent, expired, or unreadable. Expired and corrupt rows are deleted on the
// way out.
func (s *DiscoverCacheStore) Get(ctx context.Context, key string) ([]domain.MediaSummary, bool) {
	var (
		payload   string
		expiresAt time.Time
	)

	err := s.db.QueryRowContext(ctx,
		`SELECT results, expires_at FROM discover_cache WHERE cache_key = ?`,
		key,
	).Scan(&payload, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false
	}
	if err != nil {
		log.Error().Err(err).Str("key", key).Msg("Failed to read discover cache")
		return nil, false
	}

	if s.now().After(expiresAt) {
		s.delete(ctx, key)
		return nil, false
	}

	var results []domain.MediaSummary
	if err := json.Unmarshal([]byte(payload), &results); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("Dropping corrupt discover cache entry")
		s.delete(ctx, key)
		return nil, false
	}

	return results, true
}

// Set stores results under key. Failures are logged and swallowed; caching is
// best effort and must never fail a render.
func (s *DiscoverCacheStore) Set(ctx context.Context, key string, results []domain.MediaSummary) {
	payload, err := json.Marshal(results)
	if err != nil {
		log.Error().Err(err).Str("key", key).Msg("Failed to encode discover cache entry")
		return
	}

	now := s.now()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO discover_cache (cache_key, results, cached_at, expires_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(cache_key) DO UPDATE SET
			results = excluded.results,
			cached_at = excluded.cached_at,
			expires_at = excluded.expires_at
	`, key, string(payload), now, now.Add(s.ttl))
	if err != nil {
		log.Error().Err(err).Str("key", key).Msg("Failed to write discover cache")
	}
}

// Clear removes the entries for the given keys.
func (s *DiscoverCacheStore) Clear(ctx context.Context, keys ...string) {
	for _, key := range keys {
		s.delete(ctx, key)
	}
}

// ClearPrefix removes every entry whose key starts with prefix. Used when an
// instance switch invalidates a whole section regardless of scoping ids.
func (s *DiscoverCacheStore) ClearPrefix(ctx context.Context, prefix string) {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM discover_cache WHERE cache_key = ? OR cache_key LIKE ? || ':%'`,
		prefix, prefix,
	)
	if err != nil {
		log.Error().Err(err).Str("prefix", prefix).Msg("Failed to clear discover cache")
	}
}

// CleanupExpired removes rows past their expiry. Called periodically so
// abandoned keys do not accumulate.
func (s *DiscoverCacheStore) CleanupExpired(ctx context.Context) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM discover_cache WHERE expires_at < ?`, s.now(),
	)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (s *DiscoverCacheStore) delete(ctx context.Context, key string) {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM discover_cache WHERE cache_key = ?`, key); err != nil {
		log.Error().Err(err).Str("key", key).Msg("Failed to delete discover cache entry")
	}
}
