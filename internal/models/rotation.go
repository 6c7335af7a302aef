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

// RotationStore remembers which section was shown last so consecutive visits
// rotate through the feed instead of always opening on trending.
type RotationStore struct {
	db  dbinterface.Querier
	now func() time.Time
}

func NewRotationStore(db dbinterface.Querier) *RotationStore {
	return &RotationStore{
		db:  db,
		now: time.Now,
	}
}

// LastShown returns the most recently recorded section. The second return is
// false when nothing was recorded yet or the stored value is not a known
// section.
func (s *RotationStore) LastShown(ctx context.Context) (domain.Section, bool, error) {
	var section string
	err := s.db.QueryRowContext(ctx, `SELECT section FROM rotation_state WHERE id = 1`).Scan(&section)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("read rotation state: %w", err)
	}

	sec := domain.Section(section)
	if !sec.Valid() {
		return "", false, nil
	}
	return sec, true, nil
}

// RecordShown persists section as the one currently on screen.
func (s *RotationStore) RecordShown(ctx context.Context, section domain.Section) error {
	if !section.Valid() {
		return fmt.Errorf("unknown section %q", section)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO rotation_state (id, section, shown_at)
		VALUES (1, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			section = excluded.section,
			shown_at = excluded.shown_at
	`, string(section), s.now())
	if err != nil {
		return fmt.Errorf("write rotation state: %w", err)
	}
	return nil
}
