// Package telegram adapts the Bot API to the bot package: it delivers replies,
// fetches photos and turns incoming updates into bot events.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"avatarbot/internal/bot"
	applog "avatarbot/internal/log"
)

const (
	defaultBaseURL  = "https://api.telegram.org"
	defaultTimeout  = 30 * time.Second
	maxDownloadSize = 20 << 20
	keyboardColumns = 2
)

// Config describes how the Bot API client should be initialised.
type Config struct {
	Token      string
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// Client is a thin Bot API client. It implements bot.Messenger.
type Client struct {
	token      string
	baseURL    string
	httpClient *http.Client
}

// APIError is a non-ok Bot API response.
type APIError struct {
	Method      string
	Code        int
	Description string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("telegram: %s failed (%d): %s", e.Method, e.Code, e.Description)
}

// NewClient builds a Client for the bot identified by cfg.Token.
func NewClient(cfg Config) (*Client, error) {
	token := strings.TrimSpace(cfg.Token)
	if token == "" {
		return nil, errors.New("telegram: token must not be empty")
	}

	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout: timeout,
		}
	}

	return &Client{
		token:      token,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
	}, nil
}

// SendText sends a Markdown message, attaching the selector as a reply
// keyboard when given.
func (c *Client) SendText(ctx context.Context, chatID int64, text string, selector *bot.Selector) error {
	payload := map[string]any{
		"chat_id":    chatID,
		"text":       text,
		"parse_mode": "Markdown",
	}
	if selector != nil {
		payload["reply_markup"] = keyboard(selector.Options)
	}
	return c.call(ctx, "sendMessage", payload, nil)
}

// SendPhoto uploads a PNG to chatID.
func (c *Client) SendPhoto(ctx context.Context, chatID int64, png []byte) error {
	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	if err := form.WriteField("chat_id", strconv.FormatInt(chatID, 10)); err != nil {
		return fmt.Errorf("telegram: encode sendPhoto: %w", err)
	}
	part, err := form.CreateFormFile("photo", "avatar.png")
	if err != nil {
		return fmt.Errorf("telegram: encode sendPhoto: %w", err)
	}
	if _, err := part.Write(png); err != nil {
		return fmt.Errorf("telegram: encode sendPhoto: %w", err)
	}
	if err := form.Close(); err != nil {
		return fmt.Errorf("telegram: encode sendPhoto: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.methodURL("sendPhoto"), &body)
	if err != nil {
		return fmt.Errorf("telegram: build sendPhoto request: %w", err)
	}
	req.Header.Set("Content-Type", form.FormDataContentType())
	return c.do(req, "sendPhoto", nil)
}

// ProfilePhoto downloads the largest size of the user's current profile
// photo. It returns nil when the user has none or hides it from bots.
func (c *Client) ProfilePhoto(ctx context.Context, userID int64) ([]byte, error) {
	var photos UserProfilePhotos
	if err := c.call(ctx, "getUserProfilePhotos", map[string]any{"user_id": userID, "limit": 1}, &photos); err != nil {
		return nil, err
	}
	if photos.TotalCount == 0 || len(photos.Photos) == 0 {
		return nil, nil
	}
	biggest, ok := largest(photos.Photos[0])
	if !ok {
		return nil, nil
	}
	return c.DownloadFile(ctx, biggest.FileID)
}

// DownloadFile resolves fileID and returns its contents.
func (c *Client) DownloadFile(ctx context.Context, fileID string) ([]byte, error) {
	var file File
	if err := c.call(ctx, "getFile", map[string]any{"file_id": fileID}, &file); err != nil {
		return nil, err
	}
	if file.FilePath == "" {
		return nil, fmt.Errorf("telegram: file %s has no download path", fileID)
	}

	url := fmt.Sprintf("%s/file/bot%s/%s", c.baseURL, c.token, file.FilePath)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("telegram: build download request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("telegram: download file: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("telegram: download file: unexpected status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxDownloadSize))
	if err != nil {
		return nil, fmt.Errorf("telegram: read file: %w", err)
	}
	applog.Debug(ctx, "downloaded file", "fileID", fileID, "bytes", len(data))
	return data, nil
}

// GetUpdates long-polls for updates starting at offset.
func (c *Client) GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]Update, error) {
	payload := map[string]any{
		"offset":          offset,
		"timeout":         int(timeout / time.Second),
		"allowed_updates": []string{"message"},
	}
	var updates []Update
	if err := c.call(ctx, "getUpdates", payload, &updates); err != nil {
		return nil, err
	}
	return updates, nil
}

// SetWebhook registers url for update delivery. A non-empty secret is echoed
// back by Telegram in the X-Telegram-Bot-Api-Secret-Token header.
func (c *Client) SetWebhook(ctx context.Context, url, secret string) error {
	payload := map[string]any{
		"url":             url,
		"allowed_updates": []string{"message"},
	}
	if secret != "" {
		payload["secret_token"] = secret
	}
	return c.call(ctx, "setWebhook", payload, nil)
}

// DeleteWebhook switches the bot back to getUpdates delivery.
func (c *Client) DeleteWebhook(ctx context.Context) error {
	return c.call(ctx, "deleteWebhook", map[string]any{}, nil)
}

func (c *Client) methodURL(method string) string {
	return fmt.Sprintf("%s/bot%s/%s", c.baseURL, c.token, method)
}

func (c *Client) call(ctx context.Context, method string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("telegram: encode %s: %w", method, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.methodURL(method), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("telegram: build %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, method, out)
}

func (c *Client) do(req *http.Request, method string, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("telegram: %s: %w", method, err)
	}
	defer resp.Body.Close()

	var envelope apiResponse[json.RawMessage]
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("telegram: decode %s response (status %d): %w", method, resp.StatusCode, err)
	}
	if !envelope.OK {
		code := envelope.ErrorCode
		if code == 0 {
			code = resp.StatusCode
		}
		return &APIError{Method: method, Code: code, Description: envelope.Description}
	}

	if out != nil && len(envelope.Result) > 0 {
		if err := json.Unmarshal(envelope.Result, out); err != nil {
			return fmt.Errorf("telegram: decode %s result: %w", method, err)
		}
	}
	return nil
}

// keyboard lays options out two per row; an odd last option gets its own row.
func keyboard(options []string) replyKeyboardMarkup {
	rows := make([][]keyboardButton, 0, (len(options)+keyboardColumns-1)/keyboardColumns)
	for start := 0; start < len(options); start += keyboardColumns {
		end := start + keyboardColumns
		if end > len(options) {
			end = len(options)
		}
		row := make([]keyboardButton, 0, end-start)
		for _, option := range options[start:end] {
			row = append(row, keyboardButton{Text: option})
		}
		rows = append(rows, row)
	}
	return replyKeyboardMarkup{Keyboard: rows, ResizeKeyboard: true}
}
