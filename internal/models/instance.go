// Copyright (c) 2025, the Requestarr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package models

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/requestarr/requestarr/internal/dbinterface"
	"github.com/requestarr/requestarr/internal/domain"
)

var ErrInstanceNotFound = errors.New("instance not found")

// Instance is a downstream Radarr/Sonarr-style endpoint that requests are
// pushed to and that scopes discovery results.
type Instance struct {
	ID               int                 `json:"id"`
	Name             string              `json:"name"`
	Host             string              `json:"host"`
	Type             domain.InstanceType `json:"type"`
	APIKeyEncrypted  string              `json:"-"`
	QualityProfileID int                 `json:"qualityProfileId"`
	RootFolder       string              `json:"rootFolder"`
	TLSSkipVerify    bool                `json:"tlsSkipVerify"`
	SortOrder        int                 `json:"sortOrder"`
	IsActive         bool                `json:"isActive"`
}

func (i Instance) MarshalJSON() ([]byte, error) {
	// Redact the API key on the way out
	return json.Marshal(&struct {
		ID               int                 `json:"id"`
		Name             string              `json:"name"`
		Host             string              `json:"host"`
		Type             domain.InstanceType `json:"type"`
		APIKey           string              `json:"apiKey,omitempty"`
		QualityProfileID int                 `json:"qualityProfileId"`
		RootFolder       string              `json:"rootFolder"`
		TLSSkipVerify    bool                `json:"tlsSkipVerify"`
		SortOrder        int                 `json:"sortOrder"`
		IsActive         bool                `json:"isActive"`
	}{
		ID:               i.ID,
		Name:             i.Name,
		Host:             i.Host,
		Type:             i.Type,
		APIKey:           domain.RedactString(i.APIKeyEncrypted),
		QualityProfileID: i.QualityProfileID,
		RootFolder:       i.RootFolder,
		TLSSkipVerify:    i.TLSSkipVerify,
		SortOrder:        i.SortOrder,
		IsActive:         i.IsActive,
	})
}

func (i *Instance) UnmarshalJSON(data []byte) error {
	var temp struct {
		ID               int                 `json:"id"`
		Name             string              `json:"name"`
		Host             string              `json:"host"`
		Type             domain.InstanceType `json:"type"`
		APIKey           string              `json:"apiKey,omitempty"`
		QualityProfileID int                 `json:"qualityProfileId"`
		RootFolder       string              `json:"rootFolder"`
		TLSSkipVerify    *bool               `json:"tlsSkipVerify,omitempty"`
		SortOrder        *int                `json:"sortOrder,omitempty"`
		IsActive         bool                `json:"isActive"`
	}

	if err := json.Unmarshal(data, &temp); err != nil {
		return err
	}

	i.ID = temp.ID
	i.Name = temp.Name
	i.Host = temp.Host
	i.Type = temp.Type
	i.QualityProfileID = temp.QualityProfileID
	i.RootFolder = temp.RootFolder
	i.IsActive = temp.IsActive

	if temp.TLSSkipVerify != nil {
		i.TLSSkipVerify = *temp.TLSSkipVerify
	}
	if temp.SortOrder != nil {
		i.SortOrder = *temp.SortOrder
	}

	// Don't overwrite the stored key if the client sent back the redacted
	// placeholder.
	if temp.APIKey != "" && !domain.IsRedactedString(temp.APIKey) {
		i.APIKeyEncrypted = temp.APIKey
	}

	return nil
}

type InstanceStore struct {
	db            dbinterface.Querier
	encryptionKey []byte
}

func NewInstanceStore(db dbinterface.Querier, encryptionKey []byte) (*InstanceStore, error) {
	if len(encryptionKey) != 32 {
		return nil, errors.New("encryption key must be 32 bytes")
	}

	return &InstanceStore{
		db:            db,
		encryptionKey: encryptionKey,
	}, nil
}

// encrypt encrypts a string using AES-GCM
func (s *InstanceStore) encrypt(plaintext string) (string, error) {
	block, err := aes.NewCipher(s.encryptionKey)
	if err != nil {
		return "", err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}

	ciphertext := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

// decrypt decrypts a string encrypted with encrypt
func (s *InstanceStore) decrypt(ciphertext string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", err
	}

	block, err := aes.NewCipher(s.encryptionKey)
	if err != nil {
		return "", err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}

	if len(data) < gcm.NonceSize() {
		return "", errors.New("malformed ciphertext")
	}

	nonce, ciphertextBytes := data[:gcm.NonceSize()], data[gcm.NonceSize():]
	plaintext, err := gcm.Open(nil, nonce, ciphertextBytes, nil)
	if err != nil {
		return "", err
	}

	return string(plaintext), nil
}

// validateAndNormalizeHost validates and normalizes an instance host URL
func validateAndNormalizeHost(rawHost string) (string, error) {
	rawHost = strings.TrimSpace(rawHost)

	if rawHost == "" {
		return "", errors.New("host cannot be empty")
	}

	if !strings.Contains(rawHost, "://") {
		rawHost = "http://" + rawHost
	}

	u, err := url.Parse(rawHost)
	if err != nil {
		return "", fmt.Errorf("invalid URL format: %w", err)
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("unsupported scheme %q: must be http or https", u.Scheme)
	}

	if u.Host == "" {
		return "", errors.New("URL must include a host")
	}

	return u.String(), nil
}

func (s *InstanceStore) Create(ctx context.Context, name, rawHost string, instanceType domain.InstanceType, apiKey string, qualityProfileID int, rootFolder string, tlsSkipVerify bool) (*Instance, error) {
	normalizedHost, err := validateAndNormalizeHost(rawHost)
	if err != nil {
		return nil, err
	}

	if !instanceType.Valid() {
		return nil, fmt.Errorf("unknown instance type %q", instanceType)
	}

	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("api key cannot be empty")
	}

	encryptedKey, err := s.encrypt(apiKey)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt api key: %w", err)
	}

	var (
		instanceID int
		sortOrder  int
		isActive   bool
	)

	err = s.db.QueryRowContext(ctx, `
		WITH next_sort AS (
			SELECT COALESCE(MAX(sort_order), -1) + 1 AS next_order FROM instances
		)
		INSERT INTO instances (
			name, host, media_type, api_key_encrypted, quality_profile_id, root_folder, tls_skip_verify, sort_order
		)
		SELECT ?, ?, ?, ?, ?, ?, ?, next_order FROM next_sort
		RETURNING id, sort_order, is_active
	`,
		name,
		normalizedHost,
		string(instanceType),
		encryptedKey,
		qualityProfileID,
		rootFolder,
		tlsSkipVerify,
	).Scan(&instanceID, &sortOrder, &isActive)
	if err != nil {
		return nil, err
	}

	return &Instance{
		ID:               instanceID,
		Name:             name,
		Host:             normalizedHost,
		Type:             instanceType,
		APIKeyEncrypted:  encryptedKey,
		QualityProfileID: qualityProfileID,
		RootFolder:       rootFolder,
		TLSSkipVerify:    tlsSkipVerify,
		SortOrder:        sortOrder,
		IsActive:         isActive,
	}, nil
}

func (s *InstanceStore) Get(ctx context.Context, id int) (*Instance, error) {
	const query = `
		SELECT id, name, host, media_type, api_key_encrypted, quality_profile_id, root_folder, tls_skip_verify, sort_order, is_active
		FROM instances
		WHERE id = ?
	`

	instance := &Instance{}
	var mediaType string

	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&instance.ID,
		&instance.Name,
		&instance.Host,
		&mediaType,
		&instance.APIKeyEncrypted,
		&instance.QualityProfileID,
		&instance.RootFolder,
		&instance.TLSSkipVerify,
		&instance.SortOrder,
		&instance.IsActive,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrInstanceNotFound
		}
		return nil, err
	}

	instance.Type = domain.InstanceType(mediaType)
	return instance, nil
}

func (s *InstanceStore) List(ctx context.Context) ([]*Instance, error) {
	const query = `
		SELECT id, name, host, media_type, api_key_encrypted, quality_profile_id, root_folder, tls_skip_verify, sort_order, is_active
		FROM instances
		ORDER BY sort_order ASC, name COLLATE NOCASE ASC, id ASC
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var instances []*Instance
	for rows.Next() {
		instance := &Instance{}
		var mediaType string

		err := rows.Scan(
			&instance.ID,
			&instance.Name,
			&instance.Host,
			&mediaType,
			&instance.APIKeyEncrypted,
			&instance.QualityProfileID,
			&instance.RootFolder,
			&instance.TLSSkipVerify,
			&instance.SortOrder,
			&instance.IsActive,
		)
		if err != nil {
			return nil, err
		}

		instance.Type = domain.InstanceType(mediaType)
		instances = append(instances, instance)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	return instances, nil
}

// ListByType returns active instances for the given media type in sort order.
func (s *InstanceStore) ListByType(ctx context.Context, instanceType domain.InstanceType) ([]*Instance, error) {
	instances, err := s.List(ctx)
	if err != nil {
		return nil, err
	}

	filtered := make([]*Instance, 0, len(instances))
	for _, instance := range instances {
		if instance.Type == instanceType && instance.IsActive {
			filtered = append(filtered, instance)
		}
	}
	return filtered, nil
}

func (s *InstanceStore) Update(ctx context.Context, id int, name, rawHost string, apiKey string, qualityProfileID *int, rootFolder *string, tlsSkipVerify *bool) (*Instance, error) {
	normalizedHost, err := validateAndNormalizeHost(rawHost)
	if err != nil {
		return nil, err
	}

	query := "UPDATE instances SET name = ?, host = ?, updated_at = CURRENT_TIMESTAMP"
	args := []any{name, normalizedHost}

	// Encrypt and replace the key only when a new one was provided
	if apiKey != "" && !domain.IsRedactedString(apiKey) {
		encryptedKey, err := s.encrypt(apiKey)
		if err != nil {
			return nil, fmt.Errorf("failed to encrypt api key: %w", err)
		}
		query += ", api_key_encrypted = ?"
		args = append(args, encryptedKey)
	}

	if qualityProfileID != nil {
		query += ", quality_profile_id = ?"
		args = append(args, *qualityProfileID)
	}

	if rootFolder != nil {
		query += ", root_folder = ?"
		args = append(args, *rootFolder)
	}

	if tlsSkipVerify != nil {
		query += ", tls_skip_verify = ?"
		args = append(args, *tlsSkipVerify)
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
		return nil, ErrInstanceNotFound
	}

	return s.Get(ctx, id)
}

func (s *InstanceStore) SetActiveState(ctx context.Context, id int, active bool) (*Instance, error) {
	result, err := s.db.ExecContext(ctx, `UPDATE instances SET is_active = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`, active, id)
	if err != nil {
		return nil, err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return nil, err
	}

	if rows == 0 {
		return nil, ErrInstanceNotFound
	}

	return s.Get(ctx, id)
}

func (s *InstanceStore) UpdateOrder(ctx context.Context, instanceIDs []int) error {
	if len(instanceIDs) == 0 {
		return errors.New("instance ids cannot be empty")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var totalInstances int
	if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM instances").Scan(&totalInstances); err != nil {
		return fmt.Errorf("failed to validate instance list: %w", err)
	}
	if len(instanceIDs) != totalInstances {
		return fmt.Errorf("partial reordering not allowed: expected %d instances, got %d", totalInstances, len(instanceIDs))
	}

	seen := make(map[int]struct{}, len(instanceIDs))
	for order, id := range instanceIDs {
		if _, exists := seen[id]; exists {
			return fmt.Errorf("duplicate instance id %d in reorder payload", id)
		}
		seen[id] = struct{}{}

		result, err := tx.ExecContext(ctx, `UPDATE instances SET sort_order = ? WHERE id = ?`, order, id)
		if err != nil {
			return err
		}

		rows, err := result.RowsAffected()
		if err != nil {
			return err
		}

		if rows != 1 {
			return ErrInstanceNotFound
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

func (s *InstanceStore) Delete(ctx context.Context, id int) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM instances WHERE id = ?`, id)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rows == 0 {
		return ErrInstanceNotFound
	}

	return nil
}

// GetDecryptedAPIKey returns the decrypted API key for an instance
func (s *InstanceStore) GetDecryptedAPIKey(instance *Instance) (string, error) {
	return s.decrypt(instance.APIKeyEncrypted)
}

// SelectedInstance tracks which instance a media type's discovery results are
// currently scoped to.
type SelectedInstance struct {
	MediaType  domain.InstanceType `json:"mediaType"`
	InstanceID int                 `json:"instanceId"`
	UpdatedAt  time.Time           `json:"updatedAt"`
}

// GetSelected returns the selected instance id for a media type, or 0 when no
// selection was made yet.
func (s *InstanceStore) GetSelected(ctx context.Context, instanceType domain.InstanceType) (int, error) {
	var instanceID int
	err := s.db.QueryRowContext(ctx, `SELECT instance_id FROM selected_instances WHERE media_type = ?`, string(instanceType)).Scan(&instanceID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get selected instance: %w", err)
	}
	return instanceID, nil
}

// SetSelected persists the chosen instance for a media type.
func (s *InstanceStore) SetSelected(ctx context.Context, instanceType domain.InstanceType, instanceID int) error {
	if !instanceType.Valid() {
		return fmt.Errorf("unknown instance type %q", instanceType)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO selected_instances (media_type, instance_id, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(media_type) DO UPDATE SET
			instance_id = excluded.instance_id,
			updated_at = excluded.updated_at
	`, string(instanceType), instanceID)
	if err != nil {
		return fmt.Errorf("set selected instance: %w", err)
	}
	return nil
}
