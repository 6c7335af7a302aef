// Copyright (c) 2025, the Requestarr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package database

// migrations run in order inside individual transactions; the index in the
// slice (plus one) is the schema version.
var migrations = []string{
	`
	CREATE TABLE instances (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		host TEXT NOT NULL,
		media_type TEXT NOT NULL CHECK (media_type IN ('movies', 'tv')),
		api_key_encrypted TEXT NOT NULL,
		quality_profile_id INTEGER NOT NULL DEFAULT 0,
		root_folder TEXT NOT NULL DEFAULT '',
		tls_skip_verify BOOLEAN NOT NULL DEFAULT 0,
		sort_order INTEGER NOT NULL DEFAULT 0,
		is_active BOOLEAN NOT NULL DEFAULT 1,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE discover_cache (
		cache_key TEXT PRIMARY KEY,
		results TEXT NOT NULL,
		cached_at TIMESTAMP NOT NULL,
		expires_at TIMESTAMP NOT NULL
	);

	CREATE INDEX idx_discover_cache_expires ON discover_cache (expires_at);

	CREATE TABLE rotation_state (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		section TEXT NOT NULL,
		shown_at TIMESTAMP NOT NULL
	);

	CREATE TABLE selected_instances (
		media_type TEXT PRIMARY KEY CHECK (media_type IN ('movies', 'tv')),
		instance_id INTEGER NOT NULL,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE media_requests (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		tmdb_id INTEGER NOT NULL,
		media_type TEXT NOT NULL CHECK (media_type IN ('movie', 'tv')),
		title TEXT NOT NULL,
		year INTEGER NOT NULL DEFAULT 0,
		poster_path TEXT NOT NULL DEFAULT '',
		instance_id INTEGER,
		status TEXT NOT NULL DEFAULT 'pending'
			CHECK (status IN ('pending', 'approved', 'declined', 'failed')),
		requested_by TEXT NOT NULL DEFAULT '',
		note TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX idx_media_requests_status ON media_requests (status);
	CREATE INDEX idx_media_requests_identity ON media_requests (tmdb_id, media_type);

	CREATE TABLE hidden_media (
		tmdb_id INTEGER NOT NULL,
		media_type TEXT NOT NULL CHECK (media_type IN ('movie', 'tv')),
		title TEXT NOT NULL DEFAULT '',
		hidden_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (tmdb_id, media_type)
	);
	`,
}
