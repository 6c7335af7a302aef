// Copyright (c) 2025, the Requestarr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package tmdb talks to the TMDB-proxying metadata service that backs the
// discovery feed.
package tmdb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/avast/retry-go"
	"github.com/rs/zerolog/log"

	"github.com/requestarr/requestarr/internal/buildinfo"
	"github.com/requestarr/requestarr/internal/discovery"
	"github.com/requestarr/requestarr/internal/domain"
)

const maxResponseBytes int64 = 4 << 20 // 4 MiB safety limit for metadata payloads

// StatusError is a non-2xx response from the metadata service. The status
// code is preserved for retry classification.
type StatusError struct {
	StatusCode int
	URL        string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("metadata request to %s returned status %d", e.URL, e.StatusCode)
}

// retryable reports whether the failure is worth another attempt.
func (e *StatusError) retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// Client is a metadata service client with explicit timeouts and bounded
// retry. A hung upstream can never pin a section's pagination open.
type Client struct {
	baseURL    string
	httpClient *http.Client
	attempts   uint
}

func NewClient(baseURL string, timeoutSeconds int) *Client {
	if timeoutSeconds <= 0 {
		timeoutSeconds = 15
	}

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: time.Duration(timeoutSeconds) * time.Second},
		attempts:   3,
	}
}

type pageResponse struct {
	Results []domain.MediaSummary `json:"results"`
	HasMore *bool                 `json:"has_more,omitempty"`
}

// FetchSection retrieves one page of a discovery section. Trending mixes
// movie and series results and is scoped to both selected instances.
func (c *Client) FetchSection(ctx context.Context, section domain.Section, page int, scope discovery.InstanceScope) (*discovery.FetchResult, error) {
	params := url.Values{}
	params.Set("page", strconv.Itoa(page))

	var path string
	switch section {
	case domain.SectionMovies:
		path = "/discover/movies"
		params.Set("instance", strconv.Itoa(scope.MoviesID))
	case domain.SectionTV:
		path = "/discover/tv"
		params.Set("instance", strconv.Itoa(scope.TVID))
	case domain.SectionTrending:
		path = "/discover/trending"
		params.Set("movies_instance", strconv.Itoa(scope.MoviesID))
		params.Set("tv_instance", strconv.Itoa(scope.TVID))
	default:
		return nil, fmt.Errorf("unknown section %q", section)
	}

	var parsed pageResponse
	if err := c.getJSON(ctx, path, params, &parsed); err != nil {
		return nil, err
	}

	return &discovery.FetchResult{Results: parsed.Results, HasMore: parsed.HasMore}, nil
}

func (c *Client) getJSON(ctx context.Context, path string, params url.Values, out any) error {
	requestURL := c.baseURL + path
	if len(params) > 0 {
		requestURL += "?" + params.Encode()
	}

	return retry.Do(
		func() error {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
			if err != nil {
				return err
			}
			req.Header.Set("User-Agent", buildinfo.UserAgent)
			req.Header.Set("Accept", "application/json")

			resp, err := c.httpClient.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()

			if resp.StatusCode < 200 || resp.StatusCode >= 300 {
				// Drain so the connection can be reused
				_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
				return &StatusError{StatusCode: resp.StatusCode, URL: requestURL}
			}

			body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
			if err != nil {
				return err
			}

			if err := json.Unmarshal(body, out); err != nil {
				return retry.Unrecoverable(fmt.Errorf("decode metadata response: %w", err))
			}
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(c.attempts),
		retry.Delay(250*time.Millisecond),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			var statusErr *StatusError
			if errors.As(err, &statusErr) {
				return statusErr.retryable()
			}
			return retry.IsRecoverable(err)
		}),
		retry.OnRetry(func(attempt uint, err error) {
			log.Debug().Err(err).Uint("attempt", attempt).Str("url", requestURL).
				Msg("Retrying metadata request")
		}),
	)
}
