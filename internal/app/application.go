package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"bullmeter/internal/api"
	"bullmeter/internal/auth"
	"bullmeter/internal/config"
	"bullmeter/internal/hub"
	"bullmeter/internal/jobs"
	"bullmeter/internal/logger"
	"bullmeter/internal/round"
	"bullmeter/internal/router"
	"bullmeter/internal/websocket"
)

// Application coordinates all system components
type Application struct {
	config     *config.Config
	log        *logger.Logger
	store      *round.Store
	registry   *websocket.Registry
	controller *router.Router
	hub        *hub.Hub
	sweeper    *jobs.Sweeper
	auth       *auth.Authenticator
	apiServer  *api.Server
	mux        *http.ServeMux
	httpServer *http.Server
}

// NewApplication builds every component in dependency order:
// Store → Registry → Hub → Router → Sweeper → API → WebSocket → HTTP
func NewApplication(cfg *config.Config, log *logger.Logger) (*Application, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if log == nil {
		log = logger.New(cfg.Log.Level)
	}

	store := round.NewStore(cfg.Round.Retention, log)
	registry := websocket.NewRegistry()
	messageHub := hub.NewHub(registry, store, log)

	limiter := router.NewRateLimiterWithWindow(cfg.RateLimit.Window, cfg.RateLimit.IdleTTL)
	policy := router.Policy{VoteLimit: cfg.RateLimit.VoteLimit, SpamLimit: cfg.RateLimit.SpamLimit}
	controller := router.NewRouter(store, messageHub, limiter, policy, log)

	sweeper := jobs.NewSweeper(store, limiter, cfg.Round.SweepInterval, cfg.RateLimit.CleanupInterval, log)

	authenticator := auth.NewAuthenticator(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	if !authenticator.Enabled() {
		log.Warnf("No JWT secret configured; host routes are open")
	}
	apiServer := api.NewServer(controller, authenticator, registry, messageHub, api.Options{
		AllowedOrigins: cfg.CORS.AllowedOrigins,
	}, log)

	wsHandler := websocket.NewHandler(registry, messageHub, controller, websocket.HandlerOptions{
		PingInterval: cfg.WebSocket.PingInterval,
		ReadTimeout:  cfg.WebSocket.ReadTimeout,
		WriteTimeout: cfg.WebSocket.WriteTimeout,
		SendBuffer:   cfg.WebSocket.BufferSize,
	}, log)

	mux := http.NewServeMux()
	mux.Handle("/api/", apiServer)
	mux.Handle("/health", apiServer)
	mux.Handle(cfg.WebSocket.Path, wsHandler)

	httpServer := &http.Server{
		Addr:         cfg.HTTP.Address(),
		Handler:      mux,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	return &Application{
		config:     cfg,
		log:        log,
		store:      store,
		registry:   registry,
		controller: controller,
		hub:        messageHub,
		sweeper:    sweeper,
		auth:       authenticator,
		apiServer:  apiServer,
		mux:        mux,
		httpServer: httpServer,
	}, nil
}

// StartServices starts the hub and the sweeper without opening a listener
func (app *Application) StartServices(ctx context.Context) error {
	if err := app.hub.Start(ctx); err != nil {
		return fmt.Errorf("failed to start message hub: %w", err)
	}
	go app.sweeper.Start()
	return nil
}

// Start brings up background services, then the HTTP listener
func (app *Application) Start(ctx context.Context) error {
	app.log.Infof("Starting Bull-Meter on %s", app.httpServer.Addr)

	if err := app.StartServices(ctx); err != nil {
		return err
	}

	serverErrCh := make(chan error, 1)
	go func() {
		if err := app.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	select {
	case err := <-serverErrCh:
		app.stopServices()
		return err
	case <-time.After(100 * time.Millisecond):
		app.log.Infof("Bull-Meter started (ws path %s)", app.config.WebSocket.Path)
		return nil
	case <-ctx.Done():
		app.stopServices()
		return ctx.Err()
	}
}

// Stop shuts down in reverse order: HTTP → Sweeper → Hub
func (app *Application) Stop(ctx context.Context) error {
	app.log.Infof("Shutting down Bull-Meter")

	if err := app.httpServer.Shutdown(ctx); err != nil {
		app.log.Warnf("HTTP server shutdown error: %v", err)
	}
	app.stopServices()

	app.log.Infof("Bull-Meter shutdown complete")
	return nil
}

func (app *Application) stopServices() {
	app.sweeper.Stop()
	if app.hub.IsRunning() {
		if err := app.hub.Stop(); err != nil {
			app.log.Warnf("Message hub shutdown error: %v", err)
		}
	}
}

// Handler exposes the routed mux, mainly for in-process servers
func (app *Application) Handler() http.Handler {
	return app.mux
}

// Authenticator returns the host token issuer
func (app *Application) Authenticator() *auth.Authenticator {
	return app.auth
}

// GetAddr returns the configured listen address
func (app *Application) GetAddr() string {
	return app.httpServer.Addr
}
