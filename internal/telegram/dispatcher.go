package telegram

import (
	"context"
	"fmt"
	"strings"

	"avatarbot/internal/bot"
	applog "avatarbot/internal/log"
)

// Handler is the set of bot operations updates are routed to.
type Handler interface {
	Start(ctx context.Context, ev bot.Event) error
	Help(ctx context.Context, ev bot.Event) error
	Set(ctx context.Context, ev bot.Event, args []string) error
	Remove(ctx context.Context, ev bot.Event, args []string) error
	Text(ctx context.Context, ev bot.Event, text string) error
	Photo(ctx context.Context, ev bot.Event, image []byte) error
}

// FileDownloader fetches the bytes behind a file id.
type FileDownloader interface {
	DownloadFile(ctx context.Context, fileID string) ([]byte, error)
}

// Dispatcher routes updates to a Handler.
type Dispatcher struct {
	handler Handler
	files   FileDownloader
}

// NewDispatcher builds a Dispatcher.
func NewDispatcher(handler Handler, files FileDownloader) *Dispatcher {
	return &Dispatcher{handler: handler, files: files}
}

// Dispatch handles one update to completion. Updates without a message or
// sender are ignored.
func (d *Dispatcher) Dispatch(ctx context.Context, update Update) error {
	msg := update.Message
	if msg == nil || msg.From == nil {
		applog.Debug(ctx, "ignoring update", "updateID", update.UpdateID)
		return nil
	}

	ev := bot.Event{ChatID: msg.Chat.ID, UserID: msg.From.ID, UserName: msg.From.Name()}

	if photo, ok := largest(msg.Photo); ok {
		data, err := d.files.DownloadFile(ctx, photo.FileID)
		if err != nil {
			return fmt.Errorf("download photo: %w", err)
		}
		return d.handler.Photo(ctx, ev, data)
	}

	if strings.HasPrefix(msg.Text, "/") {
		command, args := parseCommand(msg.Text)
		switch command {
		case "start":
			return d.handler.Start(ctx, ev)
		case "help":
			return d.handler.Help(ctx, ev)
		case "set":
			return d.handler.Set(ctx, ev, args)
		case "rm":
			return d.handler.Remove(ctx, ev, args)
		}
	}

	if msg.Text != "" {
		return d.handler.Text(ctx, ev, msg.Text)
	}

	applog.Debug(ctx, "ignoring message without text or photo", "updateID", update.UpdateID)
	return nil
}

// parseCommand splits "/cmd@botname arg1 arg2" into "cmd" and its
// whitespace-separated arguments.
func parseCommand(text string) (string, []string) {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return "", nil
	}
	command := strings.TrimPrefix(fields[0], "/")
	if at := strings.IndexByte(command, '@'); at >= 0 {
		command = command[:at]
	}
	return strings.ToLower(command), fields[1:]
}
