package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"avatarbot/internal/bot"
)

const testToken = "123:abc"

type apiCall struct {
	Method      string
	ContentType string
	Body        []byte
}

type fakeAPI struct {
	t        *testing.T
	mu       sync.Mutex
	calls    []apiCall
	results  map[string]any
	failures map[string]string
	files    map[string][]byte
}

func newFakeAPI(t *testing.T) (*fakeAPI, *Client) {
	t.Helper()
	api := &fakeAPI{
		t:        t,
		results:  map[string]any{},
		failures: map[string]string{},
		files:    map[string][]byte{},
	}
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)

	client, err := NewClient(Config{Token: testToken, BaseURL: srv.URL + "/", Timeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	return api, client
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if strings.HasPrefix(r.URL.Path, "/file/bot"+testToken+"/") {
		data, ok := f.files[strings.TrimPrefix(r.URL.Path, "/file/bot"+testToken+"/")]
		if !ok {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write(data)
		return
	}

	prefix := "/bot" + testToken + "/"
	if !strings.HasPrefix(r.URL.Path, prefix) {
		f.t.Errorf("unexpected path %q", r.URL.Path)
		http.NotFound(w, r)
		return
	}
	method := strings.TrimPrefix(r.URL.Path, prefix)
	body, _ := io.ReadAll(r.Body)

	f.mu.Lock()
	f.calls = append(f.calls, apiCall{Method: method, ContentType: r.Header.Get("Content-Type"), Body: body})
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if desc, ok := f.failures[method]; ok {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": false, "error_code": 400, "description": desc})
		return
	}
	result, ok := f.results[method]
	if !ok {
		result = true
	}
	_ = json.NewEncoder(w).Encode(map[string]any{"ok": true, "result": result})
}

func (f *fakeAPI) call(t *testing.T, method string) apiCall {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.calls {
		if c.Method == method {
			return c
		}
	}
	t.Fatalf("expected a %s call, got %d calls", method, len(f.calls))
	return apiCall{}
}

func (f *fakeAPI) decode(t *testing.T, method string) map[string]any {
	t.Helper()
	var payload map[string]any
	if err := json.Unmarshal(f.call(t, method).Body, &payload); err != nil {
		t.Fatalf("failed to decode %s payload: %v", method, err)
	}
	return payload
}

func TestNewClientRequiresToken(t *testing.T) {
	if _, err := NewClient(Config{Token: "  "}); err == nil {
		t.Fatal("expected error for blank token")
	}
}

func TestNewClientDefaults(t *testing.T) {
	client, err := NewClient(Config{Token: testToken})
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	if client.baseURL != defaultBaseURL {
		t.Fatalf("expected default base url, got %q", client.baseURL)
	}
	if client.httpClient.Timeout != defaultTimeout {
		t.Fatalf("expected default timeout, got %s", client.httpClient.Timeout)
	}
}

func TestSendTextWithSelector(t *testing.T) {
	api, client := newFakeAPI(t)

	selector := &bot.Selector{Options: []string{"Bread", "Sky", "Crimson", bot.RefreshKeyword}}
	if err := client.SendText(context.Background(), 42, "Choose your team:", selector); err != nil {
		t.Fatalf("SendText() error = %v", err)
	}

	payload := api.decode(t, "sendMessage")
	if payload["chat_id"] != float64(42) {
		t.Fatalf("expected chat_id 42, got %v", payload["chat_id"])
	}
	if payload["parse_mode"] != "Markdown" {
		t.Fatalf("expected Markdown parse mode, got %v", payload["parse_mode"])
	}

	markup, ok := payload["reply_markup"].(map[string]any)
	if !ok {
		t.Fatalf("expected reply_markup, got %v", payload["reply_markup"])
	}
	rows := markup["keyboard"].([]any)
	if len(rows) != 2 {
		t.Fatalf("expected 2 keyboard rows, got %d", len(rows))
	}
	last := rows[1].([]any)
	if got := last[1].(map[string]any)["text"]; got != bot.RefreshKeyword {
		t.Fatalf("expected refresh button last, got %v", got)
	}
}

func TestSendTextWithoutSelector(t *testing.T) {
	api, client := newFakeAPI(t)

	if err := client.SendText(context.Background(), 1, "Done!", nil); err != nil {
		t.Fatalf("SendText() error = %v", err)
	}
	if _, ok := api.decode(t, "sendMessage")["reply_markup"]; ok {
		t.Fatal("expected no reply_markup without a selector")
	}
}

func TestKeyboardLayout(t *testing.T) {
	markup := keyboard([]string{"a", "b", "c"})
	if len(markup.Keyboard) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(markup.Keyboard))
	}
	if len(markup.Keyboard[0]) != 2 || len(markup.Keyboard[1]) != 1 {
		t.Fatalf("unexpected layout %+v", markup.Keyboard)
	}
	if !markup.ResizeKeyboard {
		t.Fatal("expected resizable keyboard")
	}
	if rows := keyboard(nil).Keyboard; len(rows) != 0 {
		t.Fatalf("expected empty keyboard, got %+v", rows)
	}
}

func TestSendPhotoUploadsMultipart(t *testing.T) {
	api, client := newFakeAPI(t)

	png := []byte("\x89PNG fake")
	if err := client.SendPhoto(context.Background(), 7, png); err != nil {
		t.Fatalf("SendPhoto() error = %v", err)
	}

	call := api.call(t, "sendPhoto")
	if !strings.HasPrefix(call.ContentType, "multipart/form-data") {
		t.Fatalf("expected multipart upload, got %q", call.ContentType)
	}
	if !strings.Contains(string(call.Body), `name="chat_id"`) {
		t.Fatal("expected chat_id field in upload")
	}
	if !strings.Contains(string(call.Body), string(png)) {
		t.Fatal("expected photo bytes in upload")
	}
}

func TestProfilePhotoDownloadsLargestSize(t *testing.T) {
	api, client := newFakeAPI(t)
	api.results["getUserProfilePhotos"] = UserProfilePhotos{
		TotalCount: 1,
		Photos: [][]PhotoSize{{
			{FileID: "small", Width: 160, Height: 160},
			{FileID: "big", Width: 640, Height: 640},
			{FileID: "medium", Width: 320, Height: 320},
		}},
	}
	api.results["getFile"] = File{FileID: "big", FilePath: "photos/big.jpg"}
	api.files["photos/big.jpg"] = []byte("jpeg bytes")

	data, err := client.ProfilePhoto(context.Background(), 99)
	if err != nil {
		t.Fatalf("ProfilePhoto() error = %v", err)
	}
	if string(data) != "jpeg bytes" {
		t.Fatalf("unexpected photo bytes %q", data)
	}
	if got := api.decode(t, "getFile")["file_id"]; got != "big" {
		t.Fatalf("expected largest size to be fetched, got %v", got)
	}
	if got := api.decode(t, "getUserProfilePhotos")["user_id"]; got != float64(99) {
		t.Fatalf("expected user_id 99, got %v", got)
	}
}

func TestProfilePhotoHidden(t *testing.T) {
	api, client := newFakeAPI(t)
	api.results["getUserProfilePhotos"] = UserProfilePhotos{}

	data, err := client.ProfilePhoto(context.Background(), 99)
	if err != nil {
		t.Fatalf("ProfilePhoto() error = %v", err)
	}
	if data != nil {
		t.Fatalf("expected nil photo, got %d bytes", len(data))
	}
}

func TestDownloadFileMissingPath(t *testing.T) {
	api, client := newFakeAPI(t)
	api.results["getFile"] = File{FileID: "x"}

	if _, err := client.DownloadFile(context.Background(), "x"); err == nil {
		t.Fatal("expected error for file without path")
	}
}

func TestDownloadFileNotFound(t *testing.T) {
	api, client := newFakeAPI(t)
	api.results["getFile"] = File{FileID: "x", FilePath: "missing.jpg"}

	if _, err := client.DownloadFile(context.Background(), "x"); err == nil {
		t.Fatal("expected error for failed download")
	}
}

func TestAPIErrorIsReturned(t *testing.T) {
	api, client := newFakeAPI(t)
	api.failures["sendMessage"] = "Bad Request: chat not found"

	err := client.SendText(context.Background(), 1, "hi", nil)
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.Code != 400 || apiErr.Method != "sendMessage" {
		t.Fatalf("unexpected api error %+v", apiErr)
	}
	if !strings.Contains(apiErr.Error(), "chat not found") {
		t.Fatalf("expected description in error, got %q", apiErr.Error())
	}
}

func TestGetUpdates(t *testing.T) {
	api, client := newFakeAPI(t)
	api.results["getUpdates"] = []Update{
		{UpdateID: 5, Message: &Message{Text: "Bread", From: &User{ID: 1}, Chat: Chat{ID: 1}}},
	}

	updates, err := client.GetUpdates(context.Background(), 5, 10*time.Second)
	if err != nil {
		t.Fatalf("GetUpdates() error = %v", err)
	}
	if len(updates) != 1 || updates[0].Message.Text != "Bread" {
		t.Fatalf("unexpected updates %+v", updates)
	}

	payload := api.decode(t, "getUpdates")
	if payload["offset"] != float64(5) || payload["timeout"] != float64(10) {
		t.Fatalf("unexpected getUpdates payload %v", payload)
	}
}

func TestSetWebhookSendsSecret(t *testing.T) {
	api, client := newFakeAPI(t)

	if err := client.SetWebhook(context.Background(), "https://example.com/hook", "s3cret"); err != nil {
		t.Fatalf("SetWebhook() error = %v", err)
	}
	payload := api.decode(t, "setWebhook")
	if payload["url"] != "https://example.com/hook" || payload["secret_token"] != "s3cret" {
		t.Fatalf("unexpected setWebhook payload %v", payload)
	}

	if err := client.DeleteWebhook(context.Background()); err != nil {
		t.Fatalf("DeleteWebhook() error = %v", err)
	}
	api.call(t, "deleteWebhook")
}

func TestUserName(t *testing.T) {
	if got := (User{Username: "alice", FirstName: "Alice"}).Name(); got != "@alice" {
		t.Fatalf("expected @alice, got %q", got)
	}
	if got := (User{FirstName: "Alice", LastName: "Smith"}).Name(); got != "Alice Smith" {
		t.Fatalf("expected full name, got %q", got)
	}
	if got := (User{FirstName: "Alice"}).Name(); got != "Alice" {
		t.Fatalf("expected first name, got %q", got)
	}
}
