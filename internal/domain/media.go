// Copyright (c) 2025, the Requestarr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package domain

// Section identifies one of the rotating discovery feeds.
type Section string

const (
	SectionTrending Section = "trending"
	SectionMovies   Section = "movies"
	SectionTV       Section = "tv"
)

// SectionOrder is the fixed rotation order for the discovery feeds.
var SectionOrder = []Section{SectionTrending, SectionMovies, SectionTV}

// Valid reports whether s is one of the three known sections.
func (s Section) Valid() bool {
	switch s {
	case SectionTrending, SectionMovies, SectionTV:
		return true
	}
	return false
}

// NextSection returns the section following s in the fixed cyclic order.
// Unknown values restart the cycle at trending.
func NextSection(s Section) Section {
	for i, candidate := range SectionOrder {
		if candidate == s {
			return SectionOrder[(i+1)%len(SectionOrder)]
		}
	}
	return SectionTrending
}

// MediaType distinguishes movie and series titles. Instances use the plural
// section-style spelling ("movies", "tv"); individual titles use TMDB's
// "movie"/"tv".
type MediaType string

const (
	MediaTypeMovie MediaType = "movie"
	MediaTypeTV    MediaType = "tv"
)

// Valid reports whether t is a known media type.
func (t MediaType) Valid() bool {
	return t == MediaTypeMovie || t == MediaTypeTV
}

// InstanceType identifies which downstream service family an instance
// belongs to.
type InstanceType string

const (
	InstanceTypeMovies InstanceType = "movies"
	InstanceTypeTV     InstanceType = "tv"
)

// Valid reports whether t is a known instance type.
func (t InstanceType) Valid() bool {
	return t == InstanceTypeMovies || t == InstanceTypeTV
}

// MediaSummary is one discovery result. The discovery core treats entries as
// opaque payloads; only the (TmdbID, MediaType) identity is inspected, for
// hidden-title filtering and request de-duplication.
type MediaSummary struct {
	TmdbID      int       `json:"tmdbId"`
	MediaType   MediaType `json:"mediaType"`
	Title       string    `json:"title"`
	Year        int       `json:"year,omitempty"`
	Overview    string    `json:"overview,omitempty"`
	PosterPath  string    `json:"posterPath,omitempty"`
	VoteAverage float64   `json:"voteAverage,omitempty"`
}

const redactedValue = "REDACTED"

// RedactString replaces a stored secret with a placeholder for API output.
func RedactString(s string) string {
	if s == "" {
		return ""
	}
	return redactedValue
}

// IsRedactedString reports whether a submitted value is the placeholder and
// therefore must not overwrite the stored secret.
func IsRedactedString(s string) bool {
	return s == redactedValue
}
