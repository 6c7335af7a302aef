// Copyright (c) 2025, the Requestarr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package models

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/requestarr/requestarr/internal/dbinterface"
	"github.com/requestarr/requestarr/internal/domain"
)

type RequestStatus string

const (
	RequestStatusPending  RequestStatus = "pending"
	RequestStatusApproved RequestStatus = "approved"
	RequestStatusDeclined RequestStatus = "declined"
	RequestStatusFailed   RequestStatus = "failed"
)

func (s RequestStatus) Valid() bool {
	switch s {
	case RequestStatusPending, RequestStatusApproved, RequestStatusDeclined, RequestStatusFailed:
		return true
	}
	return false
}

var (
	ErrRequestNotFound  = errors.New("request not found")
	ErrDuplicateRequest = errors.New("title already requested")
)

type MediaRequest struct {
	ID          int              `json:"id"`
	TmdbID      int              `json:"tmdbId"`
	MediaType   domain.MediaType `json:"mediaType"`
	Title       string           `json:"title"`
	Year        int              `json:"year,omitempty"`
	PosterPath  string           `json:"posterPath,omitempty"`
	InstanceID  *int             `json:"instanceId,omitempty"`
	Status      RequestStatus    `json:"status"`
	RequestedBy string           `json:"requestedBy,omitempty"`
	Note        string           `json:"note,omitempty"`
	CreatedAt   time.Time        `json:"createdAt"`
	UpdatedAt   time.Time        `json:"updatedAt"`
}

type MediaRequestStore struct {
	db dbinterface.Querier
}

func NewMediaRequestStore(db dbinterface.Querier) *MediaRequestStore {
	return &MediaRequestStore{db: db}
}

// Create records a new pending request. A title with an open or approved
// request cannot be requested again; declined and failed requests may be
// retried.
func (s *MediaRequestStore) Create(ctx context.Context, tmdbID int, mediaType domain.MediaType, title string, year int, posterPath string, instanceID *int, requestedBy, note string) (*MediaRequest, error) {
	if !mediaType.Valid() {
		return nil, fmt.Errorf("unknown media type %q", mediaType)
	}

	var existing int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM media_requests
		WHERE tmdb_id = ? AND media_type = ? AND status IN ('pending', 'approved')
	`, tmdbID, string(mediaType)).Scan(&existing)
	if err != nil {
		return nil, err
	}
	if existing > 0 {
		return nil, ErrDuplicateRequest
	}

	var id int
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO media_requests (tmdb_id, media_type, title, year, poster_path, instance_id, requested_by, note)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id
	`, tmdbID, string(mediaType), title, year, posterPath, instanceID, requestedBy, note).Scan(&id)
	if err != nil {
		return nil, err
	}

	return s.Get(ctx, id)
}

func (s *MediaRequestStore) Get(ctx context.Context, id int) (*MediaRequest, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, tmdb_id, media_type, title, year, poster_path, instance_id, status, requested_by, note, created_at, updated_at
		FROM media_requests
		WHERE id = ?
	`, id)

	request, err := scanMediaRequest(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRequestNotFound
	}
	if err != nil {
		return nil, err
	}
	return request, nil
}

// List returns requests newest first, optionally filtered by status.
func (s *MediaRequestStore) List(ctx context.Context, status RequestStatus) ([]*MediaRequest, error) {
	query := `
		SELECT id, tmdb_id, media_type, title, year, poster_path, instance_id, status, requested_by, note, created_at, updated_at
		FROM media_requests
	`
	var args []any
	if status != "" {
		if !status.Valid() {
			return nil, fmt.Errorf("unknown request status %q", status)
		}
		query += " WHERE status = ?"
		args = append(args, string(status))
	}
	query += " ORDER BY created_at DESC, id DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var requests []*MediaRequest
	for rows.Next() {
		request, err := scanMediaRequest(rows)
		if err != nil {
			return nil, err
		}
		requests = append(requests, request)
	}
	return requests, rows.Err()
}

// SetStatus transitions a request and optionally attaches a note, e.g. the
// failure reason when a push to the downstream instance did not go through.
func (s *MediaRequestStore) SetStatus(ctx context.Context, id int, status RequestStatus, note string) (*MediaRequest, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("unknown request status %q", status)
	}

	query := `UPDATE media_requests SET status = ?, updated_at = CURRENT_TIMESTAMP`
	args := []any{string(status)}
	if note != "" {
		query += ", note = ?"
		args = append(args, note)
	}
	query += " WHERE id = ?"
	args = append(args, id)

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return nil, err
	}
	if rows == 0 {
		return nil, ErrRequestNotFound
	}

	return s.Get(ctx, id)
}

func (s *MediaRequestStore) Delete(ctx context.Context, id int) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM media_requests WHERE id = ?`, id)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrRequestNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMediaRequest(row rowScanner) (*MediaRequest, error) {
	request := &MediaRequest{}
	var (
		mediaType  string
		status     string
		instanceID sql.NullInt64
	)

	err := row.Scan(
		&request.ID,
		&request.TmdbID,
		&mediaType,
		&request.Title,
		&request.Year,
		&request.PosterPath,
		&instanceID,
		&status,
		&request.RequestedBy,
		&request.Note,
		&request.CreatedAt,
		&request.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	request.MediaType = domain.MediaType(mediaType)
	request.Status = RequestStatus(status)
	if instanceID.Valid {
		id := int(instanceID.Int64)
		request.InstanceID = &id
	}
	return request, nil
}
