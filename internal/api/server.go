// Copyright (c) 2025, the Requestarr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/pprof"
	"strings"
	"time"

	"github.com/CAFxX/httpcompression"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/requestarr/requestarr/internal/api/handlers"
	"github.com/requestarr/requestarr/internal/arr"
	"github.com/requestarr/requestarr/internal/config"
	"github.com/requestarr/requestarr/internal/database"
	"github.com/requestarr/requestarr/internal/discovery"
	"github.com/requestarr/requestarr/internal/models"
)

type Server struct {
	server  *http.Server
	logger  zerolog.Logger
	config  *config.AppConfig
	version string

	db         *database.DB
	instances  *models.InstanceStore
	requests   *models.MediaRequestStore
	hidden     *models.HiddenMediaStore
	clientPool *arr.ClientPool
	controller *discovery.Controller
	feedState  *handlers.FeedState
}

type Dependencies struct {
	Config     *config.AppConfig
	Version    string
	DB         *database.DB
	Instances  *models.InstanceStore
	Requests   *models.MediaRequestStore
	Hidden     *models.HiddenMediaStore
	ClientPool *arr.ClientPool
	Controller *discovery.Controller
	FeedState  *handlers.FeedState
}

func NewServer(deps *Dependencies) *Server {
	return &Server{
		server: &http.Server{
			ReadHeaderTimeout: time.Second * 15,
			ReadTimeout:       60 * time.Second,
			WriteTimeout:      120 * time.Second,
			IdleTimeout:       180 * time.Second,
		},
		logger:     log.Logger.With().Str("module", "api").Logger(),
		config:     deps.Config,
		version:    deps.Version,
		db:         deps.DB,
		instances:  deps.Instances,
		requests:   deps.Requests,
		hidden:     deps.Hidden,
		clientPool: deps.ClientPool,
		controller: deps.Controller,
		feedState:  deps.FeedState,
	}
}

func (s *Server) ListenAndServe() error {
	addr := fmt.Sprintf("%s:%d", s.config.Config.Host, s.config.Config.Port)

	var lastErr error
	for _, proto := range []string{"tcp", "tcp4", "tcp6"} {
		err := s.tryToServe(addr, proto)
		if err == nil {
			return nil
		}

		if errors.Is(err, http.ErrServerClosed) {
			return err
		}

		s.logger.Error().Err(err).Str("addr", addr).Str("proto", proto).Msg("Failed to start server")
		lastErr = err
	}

	return lastErr
}

func (s *Server) tryToServe(addr, protocol string) error {
	listener, err := net.Listen(protocol, addr)
	if err != nil {
		return err
	}

	host := listener.Addr().String()
	// Replace 0.0.0.0 or :: with localhost for clickable links
	if strings.HasPrefix(host, "0.0.0.0:") || strings.HasPrefix(host, "[::]:") {
		host = strings.Replace(host, "0.0.0.0:", "localhost:", 1)
		host = strings.Replace(host, "[::]:", "localhost:", 1)
	}

	s.logger.Info().
		Str("protocol", protocol).
		Str("addr", listener.Addr().String()).
		Str("base_url", s.config.Config.BaseURL).
		Msgf("Starting API server - Open: http://%s%s", host, s.config.Config.BaseURL)

	s.server.Handler = s.Handler()

	return s.server.Serve(listener)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) Handler() *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)

	// Compress anything above 1 KiB; favor fast levels over ratio
	compressor, err := httpcompression.DefaultAdapter(
		httpcompression.MinSize(1024),
		httpcompression.GzipCompressionLevel(2),
		httpcompression.Prefer(httpcompression.PreferServer),
	)
	if err != nil {
		log.Error().Err(err).Msg("Failed to create HTTP compression adapter")
	} else {
		r.Use(compressor)
	}

	corsMiddleware := cors.New(cors.Options{
		AllowCredentials: true,
		AllowedMethods:   []string{"HEAD", "OPTIONS", "GET", "POST", "PUT", "PATCH", "DELETE"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowOriginFunc:  func(origin string) bool { return true },
		MaxAge:           300,
	})
	r.Use(corsMiddleware.Handler)

	healthHandler := handlers.NewHealthHandler(s.db, s.version)
	instancesHandler := handlers.NewInstancesHandler(s.instances, s.clientPool)
	discoverHandler := handlers.NewDiscoverHandler(s.controller, s.feedState)
	requestsHandler := handlers.NewRequestsHandler(s.requests, s.instances, s.clientPool)
	hiddenHandler := handlers.NewHiddenHandler(s.hidden)

	baseURL := s.config.Config.BaseURL
	if baseURL == "" {
		baseURL = "/"
	}

	r.Route(baseURL, func(r chi.Router) {
		r.Route("/api", func(r chi.Router) {
			r.Route("/health", healthHandler.Routes)
			r.Route("/instances", instancesHandler.Routes)
			r.Route("/discover", discoverHandler.Routes)
			r.Route("/requests", requestsHandler.Routes)
			r.Route("/hidden", hiddenHandler.Routes)
		})

		if s.config.Config.PprofEnabled {
			r.Route("/debug/pprof", func(r chi.Router) {
				r.Get("/", pprof.Index)
				r.Get("/cmdline", pprof.Cmdline)
				r.Get("/profile", pprof.Profile)
				r.Get("/symbol", pprof.Symbol)
				r.Get("/trace", pprof.Trace)
				r.Get("/heap", pprof.Handler("heap").ServeHTTP)
				r.Get("/goroutine", pprof.Handler("goroutine").ServeHTTP)
				r.Get("/block", pprof.Handler("block").ServeHTTP)
				r.Get("/allocs", pprof.Handler("allocs").ServeHTTP)
			})
		}
	})

	return r
}
