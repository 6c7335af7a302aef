// Copyright (c) 2025, the Requestarr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/requestarr/requestarr/internal/api"
	"github.com/requestarr/requestarr/internal/api/handlers"
	"github.com/requestarr/requestarr/internal/arr"
	"github.com/requestarr/requestarr/internal/buildinfo"
	"github.com/requestarr/requestarr/internal/config"
	"github.com/requestarr/requestarr/internal/database"
	"github.com/requestarr/requestarr/internal/discovery"
	"github.com/requestarr/requestarr/internal/metrics"
	"github.com/requestarr/requestarr/internal/models"
	"github.com/requestarr/requestarr/internal/tmdb"
)

func main() {
	config.InitDefaultLogger(buildinfo.Version)

	var rootCmd = &cobra.Command{
		Use:   "requestarr",
		Short: "A self-hosted media request and discovery dashboard",
		Long: `requestarr - A self-hosted dashboard for discovering trending
movies and series and requesting them to Radarr/Sonarr-style instances.`,
	}

	rootCmd.Version = buildinfo.Version

	rootCmd.AddCommand(RunServeCommand())
	rootCmd.AddCommand(RunVersionCommand(buildinfo.Version))
	rootCmd.AddCommand(RunGenerateConfigCommand())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func RunServeCommand() *cobra.Command {
	var (
		configDir string
		dataDir   string
		logPath   string
		pprofFlag bool
	)

	var command = &cobra.Command{
		Use:   "serve",
		Short: "Start the server",
	}

	command.Flags().StringVar(&configDir, "config-dir", "", "config directory path (default is OS-specific: ~/.config/requestarr/). Can also be a direct path to a .toml file")
	command.Flags().StringVar(&dataDir, "data-dir", "", "data directory for the database (default is next to the config file)")
	command.Flags().StringVar(&logPath, "log-path", "", "log file path (default is stdout)")
	command.Flags().BoolVar(&pprofFlag, "pprof", false, "expose pprof endpoints on the API listener")

	command.Run = func(cmd *cobra.Command, args []string) {
		app := NewApplication(configDir, dataDir, logPath, pprofFlag)
		app.runServer()
	}

	return command
}

func RunVersionCommand(version string) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number of requestarr",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(version)
		},
	}
}

func RunGenerateConfigCommand() *cobra.Command {
	var configDir string

	command := &cobra.Command{
		Use:   "generate-config",
		Short: "Generate a default configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := config.WriteDefaultConfig(configDir)
			if err != nil {
				return err
			}
			fmt.Printf("Wrote default configuration to %s\n", path)
			return nil
		},
	}

	command.Flags().StringVar(&configDir, "config-dir", "", "config directory or file path (defaults to the OS-specific config location)")

	return command
}

type Application struct {
	configDir string
	dataDir   string
	logPath   string
	pprofFlag bool
}

func NewApplication(configDir, dataDir, logPath string, pprofFlag bool) *Application {
	return &Application{
		configDir: configDir,
		dataDir:   dataDir,
		logPath:   logPath,
		pprofFlag: pprofFlag,
	}
}

func (app *Application) runServer() {
	cfg, err := config.New(app.configDir, buildinfo.Version)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize configuration")
	}

	// Override with CLI flags if provided
	if app.dataDir != "" {
		os.Setenv("REQUESTARR__DATA_DIR", app.dataDir)
		cfg.SetDataDir(app.dataDir)
	}
	if app.logPath != "" {
		os.Setenv("REQUESTARR__LOG_PATH", app.logPath)
		cfg.Config.LogPath = app.logPath
	}
	if app.pprofFlag {
		cfg.Config.PprofEnabled = true
	}

	cfg.ApplyLogConfig()

	log.Info().Str("version", buildinfo.Version).Msg("Starting requestarr")

	db, err := database.New(cfg.GetDatabasePath())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer db.Close()

	instanceStore, err := models.NewInstanceStore(db, cfg.GetEncryptionKey())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize instance store")
	}
	requestStore := models.NewMediaRequestStore(db)
	hiddenStore := models.NewHiddenMediaStore(db)
	cacheStore := models.NewDiscoverCacheStore(db, cfg.GetCacheTTL())
	rotationStore := models.NewRotationStore(db)

	clientPool := arr.NewClientPool(instanceStore, cfg.Config.MetadataTimeoutSeconds)

	registry := metrics.NewRegistry()
	discoveryMetrics := metrics.NewDiscovery(registry)

	metadataClient := tmdb.NewClient(cfg.Config.MetadataURL, cfg.Config.MetadataTimeoutSeconds)

	feedState := handlers.NewFeedState()
	loader := discovery.NewLoader(metadataClient, cacheStore, feedState, hiddenStore, discoveryMetrics)
	controller := discovery.NewController(loader, rotationStore, instanceStore, cacheStore)

	// Warm the feed so the first dashboard request paints instantly
	go func() {
		warmCtx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
		defer cancel()
		if _, err := controller.Start(warmCtx); err != nil {
			log.Warn().Err(err).Msg("Failed to warm discovery feed on startup")
		}
	}()

	// Sweep expired cache rows so abandoned keys do not pile up
	cleanupCtx, cancelCleanup := context.WithCancel(context.Background())
	defer cancelCleanup()
	go func() {
		ticker := time.NewTicker(6 * time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-cleanupCtx.Done():
				return
			case <-ticker.C:
				if removed, err := cacheStore.CleanupExpired(cleanupCtx); err != nil {
					log.Warn().Err(err).Msg("Discover cache cleanup failed")
				} else if removed > 0 {
					log.Debug().Int64("removed", removed).Msg("Discover cache cleanup done")
				}
			}
		}
	}()

	var metricsServer *http.Server
	if cfg.Config.MetricsEnabled {
		metricsServer = metrics.NewServer(cfg.Config.MetricsHost, cfg.Config.MetricsPort, registry)
		go func() {
			log.Info().Str("addr", metricsServer.Addr).Msg("Starting metrics server")
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error().Err(err).Msg("Metrics server failed")
			}
		}()
	}

	httpServer := api.NewServer(&api.Dependencies{
		Config:     cfg,
		Version:    buildinfo.Version,
		DB:         db,
		Instances:  instanceStore,
		Requests:   requestStore,
		Hidden:     hiddenStore,
		ClientPool: clientPool,
		Controller: controller,
		FeedState:  feedState,
	})

	errorChannel := make(chan error, 1)
	go func() {
		errorChannel <- httpServer.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errorChannel:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("Server failed")
		}
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("Shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Failed to shut down API server cleanly")
	}
	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Failed to shut down metrics server cleanly")
		}
	}
}
