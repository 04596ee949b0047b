package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"gorm.io/gorm"

	"avatarbot/internal/handlers"
	applog "avatarbot/internal/log"
)

// Config captures the runtime configuration for the HTTP server.
type Config struct {
	Addr     string
	Database *gorm.DB
	Webhook  WebhookConfig
}

// WebhookConfig enables the update endpoint. An empty Path serves only the
// health check, which is what polling mode needs.
type WebhookConfig struct {
	Path       string
	Secret     string
	Dispatcher handlers.UpdateDispatcher
}

// Server wraps an http.Server serving the health check and, in webhook mode,
// the Bot API update endpoint.
type Server struct {
	config     Config
	httpServer *http.Server
}

// New builds a new Server using the provided configuration.
func New(cfg Config) (*Server, error) {
	applog.Debug(context.Background(), "initializing server",
		"addr", cfg.Addr,
		"webhook", cfg.Webhook.Path != "",
	)

	hook := cfg.Webhook
	if hook.Path != "" {
		if !strings.HasPrefix(hook.Path, "/") {
			hook.Path = "/" + hook.Path
		}
		if hook.Dispatcher == nil {
			return nil, errors.New("server: webhook path configured without a dispatcher")
		}
	}

	handlers.Configure(cfg.Database)
	handlers.ConfigureWebhook(hook.Dispatcher, hook.Secret)
	applog.Debug(context.Background(), "handler dependencies configured")

	cfg.Webhook = hook
	return &Server{
		config: cfg,
		httpServer: &http.Server{
			Addr:              cfg.Addr,
			Handler:           newRouter(hook.Path),
			ReadHeaderTimeout: 5 * time.Second,
		},
	}, nil
}

// Start begins serving HTTP traffic using the underlying http.Server.
func (s *Server) Start() error {
	applog.Debug(context.Background(), "server starting listener", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Stop gracefully shuts down the HTTP server with a timeout.
func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	applog.Debug(ctx, "server initiating graceful shutdown")
	return s.httpServer.Shutdown(ctx)
}

// Handler exposes the configured HTTP handler, enabling integration tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}
