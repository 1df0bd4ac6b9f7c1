// Package server provides the HTTP server setup and routing configuration.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stwalsh4118/airwave/internal/api"
	"github.com/stwalsh4118/airwave/internal/config"
	"github.com/stwalsh4118/airwave/internal/db"
	"github.com/stwalsh4118/airwave/internal/faults"
	"github.com/stwalsh4118/airwave/internal/logger"
	"github.com/stwalsh4118/airwave/internal/middleware"
	"github.com/stwalsh4118/airwave/internal/provider"
	"github.com/stwalsh4118/airwave/internal/radio"
	"github.com/stwalsh4118/airwave/internal/version"
)

// Server represents the HTTP server
type Server struct {
	config  *config.Config
	db      *db.DB
	repos   *db.Repositories
	client  *provider.Client
	station *radio.Station
	router  *gin.Engine
	server  *http.Server
}

// New creates a new server instance
func New(cfg *config.Config, database *db.DB) (*Server, error) {
	repos := db.NewRepositories(database)

	subsonic, err := provider.NewSubsonic(provider.SubsonicConfig{
		BaseURL:    cfg.Provider.BaseURL,
		ClientName: cfg.Provider.ClientName,
		APIVersion: cfg.Provider.APIVersion,
		PageSize:   cfg.Provider.PageSize,
		Timeout:    cfg.Provider.RequestTimeout,
	})
	if err != nil {
		return nil, faults.New(faults.KindConfig, "invalid provider settings", err)
	}

	client := provider.NewClient(subsonic,
		provider.Credentials{
			Username: cfg.Provider.Username,
			Password: cfg.Provider.Password,
		},
		provider.ClientOptions{
			MaxRetries:       cfg.Provider.ResolveRetries,
			BreakerThreshold: cfg.Provider.BreakerFails,
			BreakerReset:     cfg.Provider.BreakerReset,
		})

	station := radio.New(client, repos.Ranks, radio.OptionsFromConfig(cfg.Radio, version.Version))

	return &Server{
		config:  cfg,
		db:      database,
		repos:   repos,
		client:  client,
		station: station,
	}, nil
}

// setupRouter initializes the Gin router with middleware and routes
func (s *Server) setupRouter() {
	if s.config.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	s.router = gin.New()

	s.router.Use(middleware.RequestLogger("/metrics"))
	s.router.Use(gin.Recovery())
	s.router.Use(cors.Default())

	api.SetupStreamRoutes(s.router, s.station.Buffer(), s.config.Radio.FrameSize, s.config.Radio.WaitDelay)
	api.SetupSocketRoutes(s.router, s.station.Hub())

	apiGroup := s.router.Group("/api")
	api.SetupHealthRoutes(apiGroup, s.db, s.station)

	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	if s.config.Server.StaticDir != "" {
		api.SetupStaticRoutes(s.router, s.config.Server.StaticDir)
	}
}

// Handler returns the configured router, building it on first use
func (s *Server) Handler() http.Handler {
	if s.router == nil {
		s.setupRouter()
	}
	return s.router
}

// Start starts the station and then serves HTTP until Shutdown
func (s *Server) Start(ctx context.Context) error {
	handler := s.Handler()

	if err := s.station.Start(ctx); err != nil {
		return fmt.Errorf("failed to start station: %w", err)
	}

	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)

	s.server = &http.Server{
		Addr:           addr,
		Handler:        handler,
		ReadTimeout:    s.config.Server.ReadTimeout,
		WriteTimeout:   s.config.Server.WriteTimeout,
		MaxHeaderBytes: 1 << 20, // 1 MB
	}

	logger.Log.Info().
		Str("host", s.config.Server.Host).
		Int("port", s.config.Server.Port).
		Bool("tls", s.config.Server.TLSEnabled()).
		Str("version", version.Version).
		Msg("Starting HTTP server")

	var err error
	if s.config.Server.TLSEnabled() {
		err = s.server.ListenAndServeTLS(s.config.Server.CertFile, s.config.Server.KeyFile)
	} else {
		err = s.server.ListenAndServe()
	}
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown gracefully shuts down the server. The station goes first so
// socket clients are closed and ranks are saved before HTTP stops.
func (s *Server) Shutdown(ctx context.Context) error {
	logger.Log.Info().Msg("Shutting down server gracefully")

	if s.station != nil {
		s.station.Stop()
	}

	if s.server != nil {
		if err := s.server.Shutdown(ctx); err != nil {
			// listeners still draining audio are cut off
			_ = s.server.Close()
			return fmt.Errorf("server shutdown error: %w", err)
		}
	}

	logger.Log.Info().Msg("Server stopped")
	return nil
}
