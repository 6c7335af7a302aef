// Copyright (c) 2025, the Requestarr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package metrics

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/requestarr/requestarr/internal/domain"
)

// Discovery counts what the section loader does: cache outcomes, fetches,
// and superseded responses that were dropped.
type Discovery struct {
	cacheHits   *prometheus.CounterVec
	cacheMisses *prometheus.CounterVec
	staleDrops  *prometheus.CounterVec
	fetches     *prometheus.CounterVec
	fetchErrors *prometheus.CounterVec
}

func NewDiscovery(reg prometheus.Registerer) *Discovery {
	d := &Discovery{
		cacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "requestarr_discover_cache_hits_total",
			Help: "First-page renders served from the cache.",
		}, []string{"section"}),
		cacheMisses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "requestarr_discover_cache_misses_total",
			Help: "First-page loads that had to fetch.",
		}, []string{"section"}),
		staleDrops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "requestarr_discover_stale_drops_total",
			Help: "Responses discarded because a newer request superseded them.",
		}, []string{"section"}),
		fetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "requestarr_discover_fetches_total",
			Help: "Metadata fetches issued, including refreshes and preloads.",
		}, []string{"section"}),
		fetchErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "requestarr_discover_fetch_errors_total",
			Help: "Metadata fetches that failed.",
		}, []string{"section"}),
	}

	reg.MustRegister(d.cacheHits, d.cacheMisses, d.staleDrops, d.fetches, d.fetchErrors)
	return d
}

func (d *Discovery) CacheHit(section domain.Section) {
	d.cacheHits.WithLabelValues(string(section)).Inc()
}

func (d *Discovery) CacheMiss(section domain.Section) {
	d.cacheMisses.WithLabelValues(string(section)).Inc()
}

func (d *Discovery) StaleDrop(section domain.Section) {
	d.staleDrops.WithLabelValues(string(section)).Inc()
}

func (d *Discovery) FetchStarted(section domain.Section) {
	d.fetches.WithLabelValues(string(section)).Inc()
}

func (d *Discovery) FetchFailed(section domain.Section) {
	d.fetchErrors.WithLabelValues(string(section)).Inc()
}

// NewRegistry builds a registry preloaded with the standard process and Go
// runtime collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// NewServer exposes the registry on its own listener, separate from the API.
func NewServer(host string, port int, reg *prometheus.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	return &http.Server{
		Addr:              fmt.Sprintf("%s:%d", host, port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
}
