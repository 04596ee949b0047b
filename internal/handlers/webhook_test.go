package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"avatarbot/internal/telegram"
)

type stubDispatcher struct {
	updates []telegram.Update
	err     error
}

func (s *stubDispatcher) Dispatch(_ context.Context, update telegram.Update) error {
	s.updates = append(s.updates, update)
	return s.err
}

const sampleUpdate = `{"update_id":7,"message":{"message_id":1,"from":{"id":5,"is_bot":false,"first_name":"Ann"},"chat":{"id":5,"type":"private"},"text":"Bread"}}`

func configureWebhook(t *testing.T, d UpdateDispatcher, secret string) {
	t.Helper()
	ConfigureWebhook(d, secret)
	t.Cleanup(func() { ConfigureWebhook(nil, "") })
}

func postUpdate(body, secret string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/hook", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if secret != "" {
		req.Header.Set(SecretHeader, secret)
	}
	w := httptest.NewRecorder()
	Webhook(w, req)
	return w
}

func TestWebhookDispatchesUpdate(t *testing.T) {
	d := &stubDispatcher{}
	configureWebhook(t, d, "")

	w := postUpdate(sampleUpdate, "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	if len(d.updates) != 1 {
		t.Fatalf("expected one dispatched update, got %d", len(d.updates))
	}
	got := d.updates[0]
	if got.UpdateID != 7 || got.Message == nil || got.Message.Text != "Bread" || got.Message.From.ID != 5 {
		t.Fatalf("unexpected update %+v", got)
	}
}

func TestWebhookChecksSecret(t *testing.T) {
	d := &stubDispatcher{}
	configureWebhook(t, d, "s3cret")

	if w := postUpdate(sampleUpdate, ""); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without secret, got %d", w.Code)
	}
	if w := postUpdate(sampleUpdate, "wrong"); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with wrong secret, got %d", w.Code)
	}
	if len(d.updates) != 0 {
		t.Fatal("expected rejected updates not to be dispatched")
	}
	if w := postUpdate(sampleUpdate, "s3cret"); w.Code != http.StatusOK {
		t.Fatalf("expected 200 with secret, got %d", w.Code)
	}
}

func TestWebhookRejectsBadPayload(t *testing.T) {
	d := &stubDispatcher{}
	configureWebhook(t, d, "")

	if w := postUpdate("{not json", ""); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	if len(d.updates) != 0 {
		t.Fatal("expected no dispatch for bad payload")
	}
}

func TestWebhookReportsDispatchFailure(t *testing.T) {
	configureWebhook(t, &stubDispatcher{err: errors.New("storage down")}, "")

	if w := postUpdate(sampleUpdate, ""); w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
}

func TestWebhookRequiresPost(t *testing.T) {
	configureWebhook(t, &stubDispatcher{}, "")

	w := httptest.NewRecorder()
	Webhook(w, httptest.NewRequest(http.MethodGet, "/hook", nil))
	if w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", w.Code)
	}
	if allow := w.Header().Get("Allow"); allow != http.MethodPost {
		t.Fatalf("expected Allow: POST, got %q", allow)
	}
}

func TestWebhookWithoutDispatcher(t *testing.T) {
	ConfigureWebhook(nil, "")

	if w := postUpdate(sampleUpdate, ""); w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}
}
