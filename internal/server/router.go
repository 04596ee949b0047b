package server

import (
	"context"
	"net/http"

	"avatarbot/internal/handlers"
	applog "avatarbot/internal/log"
)

func newRouter(webhookPath string) http.Handler {
	mux := http.NewServeMux()
	applog.Debug(context.Background(), "registering http routes")
	mux.HandleFunc("/healthz", handlers.Health)
	applog.Debug(context.Background(), "route registered", "path", "/healthz")
	if webhookPath != "" {
		mux.HandleFunc(webhookPath, handlers.Webhook)
		// the path embeds the bot token
		applog.Debug(context.Background(), "route registered", "path", "webhook")
	}
	return mux
}
