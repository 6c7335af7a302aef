// Copyright (c) 2025, the Requestarr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package domain

// Config holds the runtime configuration unmarshaled from config.toml
// and environment overrides.
type Config struct {
	Version string

	Host    string `mapstructure:"host"`
	Port    int    `mapstructure:"port"`
	BaseURL string `mapstructure:"baseUrl"`

	SessionSecret string `mapstructure:"sessionSecret"`

	LogLevel      string `mapstructure:"logLevel"`
	LogPath       string `mapstructure:"logPath"`
	LogMaxSize    int    `mapstructure:"logMaxSize"`
	LogMaxBackups int    `mapstructure:"logMaxBackups"`

	DataDir string `mapstructure:"dataDir"`

	// MetadataURL is the base URL of the TMDB-proxying discovery API.
	MetadataURL            string `mapstructure:"metadataUrl"`
	MetadataTimeoutSeconds int    `mapstructure:"metadataTimeoutSeconds"`

	// CacheTTLHours controls how long discovery sections stay fresh.
	CacheTTLHours int `mapstructure:"cacheTtlHours"`

	PprofEnabled   bool   `mapstructure:"pprofEnabled"`
	MetricsEnabled bool   `mapstructure:"metricsEnabled"`
	MetricsHost    string `mapstructure:"metricsHost"`
	MetricsPort    int    `mapstructure:"metricsPort"`
}
