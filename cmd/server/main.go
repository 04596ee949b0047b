package main

import (
	"context"
	"errors"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/joho/godotenv"
	"gorm.io/gorm"

	"avatarbot/internal/avatar"
	"avatarbot/internal/bot"
	"avatarbot/internal/config"
	"avatarbot/internal/db"
	"avatarbot/internal/db/mock"
	applog "avatarbot/internal/log"
	"avatarbot/internal/palette"
	"avatarbot/internal/server"
	"avatarbot/internal/telegram"
)

type serverLifecycle interface {
	Start() error
	Stop() error
}

// botClient is everything the process needs from the Bot API.
type botClient interface {
	bot.Messenger
	telegram.FileDownloader
	telegram.UpdateSource
	SetWebhook(ctx context.Context, url, secret string) error
	DeleteWebhook(ctx context.Context) error
}

var (
	loadDotEnvFunc      = func() error { return godotenv.Load() }
	loadConfigFunc      = config.Load
	setLogLevelFunc     = applog.SetLevel
	setLogFormatFunc    = applog.SetFormat
	newMockDatabaseFunc = mock.New
	configureDatabase   = db.Configure
	newClientFunc       = func(cfg config.TelegramConfig) (botClient, error) {
		return telegram.NewClient(telegram.Config{Token: cfg.Token, BaseURL: cfg.APIURL})
	}
	newServerFunc = func(cfg server.Config) (serverLifecycle, error) {
		return server.New(cfg)
	}
	subscribeShutdownSig = func() (<-chan os.Signal, func()) {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, syscall.SIGTERM, syscall.SIGINT)
		return ch, func() { signal.Stop(ch) }
	}
)

func main() {
	os.Exit(run(context.Background()))
}

func run(ctx context.Context) int {
	if err := loadDotEnvFunc(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		applog.Warn(ctx, "failed to load .env file", "error", err)
	}

	cfg, err := loadConfigFunc()
	if err != nil {
		applog.Error(ctx, "failed to load configuration", "error", err)
		return 1
	}

	if err := setLogLevelFunc(cfg.Logging.Level); err != nil {
		applog.Error(ctx, "invalid log level", "level", cfg.Logging.Level, "error", err)
		return 1
	}
	if err := setLogFormatFunc(cfg.Logging.Format); err != nil {
		applog.Error(ctx, "invalid log format", "format", cfg.Logging.Format, "error", err)
		return 1
	}

	var database *gorm.DB
	if cfg.Database.UseMock {
		applog.Info(ctx, "using in-memory mock database")
		database, err = newMockDatabaseFunc(ctx)
	} else {
		database, err = configureDatabase(cfg.Database)
	}
	if err != nil {
		applog.Error(ctx, "failed to configure database", "error", err)
		return 1
	}

	client, err := newClientFunc(cfg.Telegram)
	if err != nil {
		applog.Error(ctx, "failed to create telegram client", "error", err)
		return 1
	}

	b, err := bot.New(bot.Config{
		Palette:   palette.NewStore(database),
		Messenger: client,
		Renderer:  avatar.New(avatar.Options{Blur: cfg.Image.Blur}),
		AdminIDs:  cfg.Bot.AdminIDs,
	})
	if err != nil {
		applog.Error(ctx, "failed to create bot", "error", err)
		return 1
	}
	dispatcher := telegram.NewDispatcher(b, client)

	srvCfg := server.Config{Addr: cfg.Server.Addr, Database: database}
	if cfg.Telegram.UseWebhook {
		srvCfg.Webhook = server.WebhookConfig{
			Path:       "/" + cfg.Telegram.Token,
			Secret:     cfg.Telegram.WebhookSecret,
			Dispatcher: dispatcher,
		}
		url := webhookURL(cfg.Telegram.WebhookURL, cfg.Telegram.Token)
		if err := client.SetWebhook(ctx, url, cfg.Telegram.WebhookSecret); err != nil {
			applog.Error(ctx, "failed to register webhook", "error", err)
			return 1
		}
		applog.Info(ctx, "webhook registered")
	} else if err := client.DeleteWebhook(ctx); err != nil {
		applog.Error(ctx, "failed to remove webhook before polling", "error", err)
		return 1
	}

	srv, err := newServerFunc(srvCfg)
	if err != nil {
		applog.Error(ctx, "failed to create server", "error", err)
		return 1
	}

	serverErr := make(chan error, 1)
	go func() {
		applog.Info(ctx, "starting http server", "addr", cfg.Server.Addr)
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
			return
		}
		serverErr <- nil
	}()

	pollCtx, stopPolling := context.WithCancel(ctx)
	var polling sync.WaitGroup
	if !cfg.Telegram.UseWebhook {
		poller := telegram.NewPoller(client, dispatcher, telegram.PollerConfig{
			Interval: cfg.Telegram.PollInterval,
			Workers:  cfg.Telegram.PollWorkers,
		})
		polling.Add(1)
		go func() {
			defer polling.Done()
			applog.Info(ctx, "polling for updates", "interval", cfg.Telegram.PollInterval.String(), "workers", cfg.Telegram.PollWorkers)
			if err := poller.Run(pollCtx); err != nil {
				applog.Error(ctx, "poller stopped", "error", err)
			}
		}()
	}
	defer func() {
		stopPolling()
		polling.Wait()
	}()

	sigCh, unsubscribe := subscribeShutdownSig()
	defer unsubscribe()

	select {
	case err := <-serverErr:
		if err != nil {
			applog.Error(ctx, "server encountered an error", "error", err)
			return 1
		}
		return 0
	case sig := <-sigCh:
		applog.Info(ctx, "shutdown signal received", "signal", sig.String())
	}

	applog.Info(ctx, "shutting down http server")
	if err := srv.Stop(); err != nil {
		applog.Error(ctx, "graceful shutdown failed", "error", err)
		return 1
	}
	if err := <-serverErr; err != nil {
		applog.Error(ctx, "server encountered an error", "error", err)
		return 1
	}
	return 0
}

// webhookURL appends the token path segment to the public base URL.
func webhookURL(base, token string) string {
	return strings.TrimRight(base, "/") + "/" + token
}
