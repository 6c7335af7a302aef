// Copyright (c) 2025, the Requestarr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package arr pushes approved requests to downstream Radarr/Sonarr-style
// library managers.
package arr

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
)

var (
	ErrUnauthorized = errors.New("instance rejected the api key")
	ErrUnreachable  = errors.New("instance unreachable")
)

// Client talks to a single downstream instance.
type Client struct {
	host       string
	apiKey     string
	httpClient *http.Client
}

func NewClient(host, apiKey string, tlsSkipVerify bool, timeoutSeconds int) *Client {
	if timeoutSeconds <= 0 {
		timeoutSeconds = 30
	}

	transport := http.DefaultTransport
	if tlsSkipVerify {
		transport = &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		}
	}

	return &Client{
		host:   strings.TrimRight(host, "/"),
		apiKey: apiKey,
		httpClient: &http.Client{
			Timeout:   time.Duration(timeoutSeconds) * time.Second,
			Transport: transport,
		},
	}
}

// Test verifies connectivity and the api key against the system status
// endpoint.
func (c *Client) Test(ctx context.Context) error {
	resp, err := c.do(ctx, http.MethodGet, "/api/v3/system/status", nil)
	if err != nil {
		return err
	}
	defer drain(resp)

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return ErrUnauthorized
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return errors.Errorf("system status returned %d", resp.StatusCode)
	}
	return nil
}

// AddRequest is the payload pushed to an instance when a request is
// approved.
type AddRequest struct {
	TmdbID           int    `json:"tmdbId"`
	Title            string `json:"title"`
	Year             int    `json:"year,omitempty"`
	QualityProfileID int    `json:"qualityProfileId"`
	RootFolderPath   string `json:"rootFolderPath"`
	Monitored        bool   `json:"monitored"`
	AddOptions       struct {
		SearchForMissing bool `json:"searchForMissing"`
	} `json:"addOptions"`
}

// Add registers a title with the instance. path distinguishes movie and
// series endpoints; callers use AddMovie/AddSeries.
func (c *Client) add(ctx context.Context, path string, req AddRequest) error {
	req.Monitored = true
	req.AddOptions.SearchForMissing = true

	body, err := json.Marshal(req)
	if err != nil {
		return errors.Wrap(err, "encode add payload")
	}

	resp, err := c.do(ctx, http.MethodPost, path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer drain(resp)

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return ErrUnauthorized
	case resp.StatusCode == http.StatusBadRequest:
		// Usually "already exists"; surface the body for the request note
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return errors.Errorf("instance rejected add: %s", strings.TrimSpace(string(detail)))
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return errors.Errorf("add returned %d", resp.StatusCode)
	}
	return nil
}

func (c *Client) AddMovie(ctx context.Context, req AddRequest) error {
	return c.add(ctx, "/api/v3/movie", req)
}

func (c *Client) AddSeries(ctx context.Context, req AddRequest) error {
	return c.add(ctx, "/api/v3/series", req)
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.host+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-Api-Key", c.apiKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(ErrUnreachable, err.Error())
	}
	return resp, nil
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20))
	_ = resp.Body.Close()
}
