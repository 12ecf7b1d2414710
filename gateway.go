// Package gateway is the main orchestrator that ties all gateway components
// together: storage, auth, the ShipVox client, message handlers, the
// WebSocket router, and the HTTP API.
package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/shipanion/gateway/api"
	"github.com/shipanion/gateway/auth"
	"github.com/shipanion/gateway/config"
	"github.com/shipanion/gateway/dispatch"
	"github.com/shipanion/gateway/handlers"
	"github.com/shipanion/gateway/router"
	"github.com/shipanion/gateway/shipvox"
	"github.com/shipanion/gateway/store"
)

// Gateway is the main gateway process.
type Gateway struct {
	cfg    *config.Config
	store  store.Store
	router *router.Router
	api    *api.Server
	logger *slog.Logger
}

// New creates a gateway from configuration.
func New(cfg *config.Config, logger *slog.Logger) (*Gateway, error) {
	// Initialize storage.
	db, err := store.New(cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}

	// Create auth provider based on config.
	authProvider, err := auth.NewProvider(cfg.Auth, db)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init auth provider: %w", err)
	}

	// Bootstrap (creates the initial admin user for the builtin provider).
	if err := authProvider.Bootstrap(context.Background()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("bootstrap auth: %w", err)
	}

	var loginProvider auth.LoginProvider
	if lp, ok := authProvider.(auth.LoginProvider); ok {
		loginProvider = lp
	}

	// ShipVox backend client and message handlers.
	client := shipvox.NewClient(cfg.ShipVox, logger)
	dispatcher := dispatch.New(logger)
	handlers.Register(dispatcher, client)

	// WebSocket router.
	registry := router.NewRegistry(logger)
	rt := router.New(db, authProvider, dispatcher, registry, logger, router.Options{
		AllowedOrigins:  cfg.Server.AllowedOrigins,
		MaxMessageBytes: cfg.Session.MaxMessageBytes,
	})

	// HTTP API.
	apiSrv := api.NewServer(db, authProvider, loginProvider, rt, cfg, logger)

	g := &Gateway{
		cfg:    cfg,
		store:  db,
		router: rt,
		api:    apiSrv,
		logger: logger.With("component", "gateway"),
	}

	// Startup validation warnings (only for the builtin provider).
	if authProvider.Name() == "builtin" {
		if len(cfg.Auth.JWTSecret) < 32 {
			logger.Warn("JWT secret is shorter than 32 characters, use a stronger secret in production")
		}
		if cfg.Auth.TestToken != "" {
			logger.Warn("test token authentication is enabled, disable it in production")
		}
	}
	for _, origin := range cfg.Server.AllowedOrigins {
		if origin == "*" {
			logger.Warn("CORS allowed_origins contains wildcard '*', restrict to specific origins in production")
			break
		}
	}
	if cfg.ShipVox.Mock {
		logger.Info("shipvox mock mode enabled, quotes are generated locally")
	}

	return g, nil
}

// Run starts the gateway HTTP server and blocks until the context is canceled.
func (g *Gateway) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:    g.cfg.Server.Addr,
		Handler: g.api.Handler(),
	}

	// Start the session sweeper when configured.
	g.router.StartSweeper(ctx, g.cfg.Session.SweepInterval.Duration, g.cfg.Session.MaxAge.Duration)

	// Start rate limiter cleanup tasks.
	g.api.StartBackgroundTasks(ctx)

	errCh := make(chan error, 1)
	go func() {
		g.logger.Info("gateway listening", "addr", g.cfg.Server.Addr)
		if g.cfg.Server.TLSCert != "" && g.cfg.Server.TLSKey != "" {
			errCh <- srv.ListenAndServeTLS(g.cfg.Server.TLSCert, g.cfg.Server.TLSKey)
		} else {
			g.logger.Warn("TLS not configured, running without encryption (development only)")
			errCh <- srv.ListenAndServe()
		}
	}()

	select {
	case <-ctx.Done():
		g.logger.Info("shutting down gateway gracefully")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			g.logger.Warn("graceful shutdown failed, forcing close", "error", err)
			_ = srv.Close()
		} else {
			g.logger.Info("http server stopped gracefully")
		}

		g.logger.Info("closing store")
		_ = g.store.Close()
		g.logger.Info("shutdown complete")
		return ctx.Err()

	case err := <-errCh:
		_ = g.store.Close()
		return err
	}
}
