package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"avatarbot/internal/handlers"
	"avatarbot/internal/telegram"
)

type countingDispatcher struct {
	updates []telegram.Update
}

func (c *countingDispatcher) Dispatch(_ context.Context, update telegram.Update) error {
	c.updates = append(c.updates, update)
	return nil
}

func resetHandlers(t *testing.T) {
	t.Helper()
	t.Cleanup(func() {
		handlers.Configure(nil)
		handlers.ConfigureWebhook(nil, "")
	})
}

func TestNewServesWebhook(t *testing.T) {
	db, err := gorm.Open(sqlite.Open("file:server?mode=memory&cache=shared"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite database: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})

	d := &countingDispatcher{}
	srv, err := New(Config{
		Addr:     ":8080",
		Database: db,
		Webhook:  WebhookConfig{Path: "123:abc", Secret: "s3cret", Dispatcher: d},
	})
	if err != nil {
		t.Fatalf("New() returned error: %v", err)
	}
	resetHandlers(t)

	if srv.httpServer.Addr != ":8080" {
		t.Fatalf("expected server addr :8080, got %q", srv.httpServer.Addr)
	}
	if srv.config.Webhook.Path != "/123:abc" {
		t.Fatalf("expected webhook path to be rooted, got %q", srv.config.Webhook.Path)
	}

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/123:abc", strings.NewReader(`{"update_id":1}`))
	req.Header.Set(handlers.SecretHeader, "s3cret")
	srv.Handler().ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected webhook to return 200, got %d", rr.Code)
	}
	if len(d.updates) != 1 || d.updates[0].UpdateID != 1 {
		t.Fatalf("unexpected dispatched updates %+v", d.updates)
	}

	rr = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected /healthz to return 200, got %d", rr.Code)
	}
}

func TestNewRejectsWebhookWithoutDispatcher(t *testing.T) {
	resetHandlers(t)
	if _, err := New(Config{Addr: ":8080", Webhook: WebhookConfig{Path: "/hook"}}); err == nil {
		t.Fatal("expected error for webhook without dispatcher")
	}
}

func TestServerHandler(t *testing.T) {
	srv, err := New(Config{Addr: ":9090"})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	resetHandlers(t)

	handler := srv.Handler()
	if handler == nil {
		t.Fatal("expected non-nil handler")
	}

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected /healthz to return 200, got %d", rr.Code)
	}
}
