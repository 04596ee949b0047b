// Package bot reacts to inbound chat events: palette administration, colour
// selection and photo decoration. Every event is handled independently; the
// only per-user state is the last chosen colour kept by the Palette.
package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"avatarbot/internal/avatar"
	"avatarbot/internal/colorspec"
	applog "avatarbot/internal/log"
	"avatarbot/internal/palette"
	"avatarbot/models"
)

// RefreshKeyword is the selector button that only re-sends the selector.
const RefreshKeyword = "⟳"

const (
	msgGreeting      = "Hi! This bot adds colored rings to avatars."
	msgGreetingHint  = "Pick your team below and I'll send you a decorated avatar."
	msgChooseTeam    = "Choose your team:"
	msgDone          = "Done!"
	msgSetUsage      = "Usage: /set _team_ _color_. If I've seen the team before, the color can be omitted."
	msgUnknownTeam   = "The color can be omitted only for teams I know, and I don't know this one."
	msgRemoveUsage   = "Usage: /rm _team_"
	msgTeamNotFound  = "Can't find that team."
	msgNotPlaying    = "This team isn't playing right now. Here's your picture anyway."
	msgPickTeamFirst = "Pick a team first, then send the photo! (I'll send you a decorated avatar along the way.)"
	msgPickNewTeam   = "Pick a new team and send the photo again!"
	msgUnreadable    = "I couldn't read that image. Try sending it as a regular photo."
	msgNotAllowed    = "Only palette admins can change teams."
	msgNoAvatar      = "I can't see your profile photo. Maybe allow me to see it? " +
		"Settings -> Privacy and Security -> Profile Photo -> Everybody. " +
		"Or send me the picture you want decorated. Meanwhile, here's a colored square."
	msgHelp = "Choose your team and the bot will make you a new avatar with a colored ring!\n" +
		"You can also send pictures, and they will be colored like your last chosen team.\n" +
		"Add or change a team: /set _team_ _color_.\n" +
		"Remove a team: /rm _team_.\n" +
		"Colors can be English names, `#rrggbb`, `rgb(r, g, b)` or `hsl(h, s%, l%)`."
)

// Palette is the colour registry plus the last-choice tracker.
type Palette interface {
	Upsert(ctx context.Context, name string, rgb *colorspec.RGB) (models.Color, error)
	Deactivate(ctx context.Context, name string) (models.Color, error)
	Get(ctx context.Context, name string) (models.Color, error)
	ListActive(ctx context.Context) ([]models.Color, error)
	RecordChoice(ctx context.Context, userID int64, color models.Color) error
	GetChoice(ctx context.Context, userID int64) (models.Color, error)
}

// Renderer composes avatars.
type Renderer interface {
	Compose(src []byte, rgb colorspec.RGB) ([]byte, error)
}

// Messenger delivers replies through the chat transport.
type Messenger interface {
	SendText(ctx context.Context, chatID int64, text string, selector *Selector) error
	SendPhoto(ctx context.Context, chatID int64, png []byte) error
	// ProfilePhoto returns the largest profile photo of userID, or nil when
	// the user has none or hides it.
	ProfilePhoto(ctx context.Context, userID int64) ([]byte, error)
}

// Selector lists the options offered to the user, refresh button last.
type Selector struct {
	Options []string
}

// Event identifies where an inbound message came from.
type Event struct {
	ChatID   int64
	UserID   int64
	UserName string
}

// Config wires a Bot.
type Config struct {
	Palette   Palette
	Messenger Messenger
	Renderer  Renderer
	// AdminIDs restricts /set and /rm. Empty allows everybody.
	AdminIDs []int64
}

// Bot is the interaction state machine.
type Bot struct {
	palette   Palette
	messenger Messenger
	renderer  Renderer
	admins    map[int64]struct{}
}

// New validates cfg and builds a Bot.
func New(cfg Config) (*Bot, error) {
	if cfg.Palette == nil {
		return nil, errors.New("bot: palette must not be nil")
	}
	if cfg.Messenger == nil {
		return nil, errors.New("bot: messenger must not be nil")
	}
	if cfg.Renderer == nil {
		return nil, errors.New("bot: renderer must not be nil")
	}

	admins := make(map[int64]struct{}, len(cfg.AdminIDs))
	for _, id := range cfg.AdminIDs {
		admins[id] = struct{}{}
	}

	return &Bot{
		palette:   cfg.Palette,
		messenger: cfg.Messenger,
		renderer:  cfg.Renderer,
		admins:    admins,
	}, nil
}

// Start greets the user and shows the selector.
func (b *Bot) Start(ctx context.Context, ev Event) error {
	applog.Info(ctx, "user started the bot", "user", ev.UserName, "userID", ev.UserID)
	b.reply(ctx, ev, msgGreeting)
	b.reply(ctx, ev, msgGreetingHint)
	return b.sendSelector(ctx, ev)
}

// Help explains the commands.
func (b *Bot) Help(ctx context.Context, ev Event) error {
	b.reply(ctx, ev, msgHelp)
	return nil
}

// Set handles "/set name [color...]".
func (b *Bot) Set(ctx context.Context, ev Event, args []string) error {
	applog.Info(ctx, "setting color", "user", ev.UserName, "args", strings.Join(args, " "))
	if !b.isAdmin(ev.UserID) {
		b.reply(ctx, ev, msgNotAllowed)
		return nil
	}

	if len(args) == 0 || IsReservedName(args[0]) {
		b.reply(ctx, ev, msgSetUsage)
		return b.sendSelector(ctx, ev)
	}

	name := args[0]
	var rgb *colorspec.RGB
	if len(args) > 1 {
		parsed, err := colorspec.Parse(args[1:])
		if err != nil {
			applog.Debug(ctx, "rejecting color spec", "name", name, "error", err)
			b.reply(ctx, ev, msgSetUsage)
			return b.sendSelector(ctx, ev)
		}
		rgb = &parsed
	}

	_, err := b.palette.Upsert(ctx, name, rgb)
	switch {
	case errors.Is(err, palette.ErrMissingColorForNewEntry):
		b.reply(ctx, ev, msgUnknownTeam)
	case errors.Is(err, palette.ErrInvalidRGBRange), errors.Is(err, palette.ErrInvalidName):
		b.reply(ctx, ev, msgSetUsage)
	case err != nil:
		return fmt.Errorf("set color %q: %w", name, err)
	default:
		b.reply(ctx, ev, msgDone)
	}
	return b.sendSelector(ctx, ev)
}

// IsReservedName reports whether name collides with a selector control
// button and so cannot name a colour.
func IsReservedName(name string) bool {
	return strings.TrimSpace(name) == RefreshKeyword
}

// Remove handles "/rm name". The colour is deactivated, never deleted.
func (b *Bot) Remove(ctx context.Context, ev Event, args []string) error {
	applog.Info(ctx, "removing color", "user", ev.UserName, "args", strings.Join(args, " "))
	if !b.isAdmin(ev.UserID) {
		b.reply(ctx, ev, msgNotAllowed)
		return nil
	}

	if len(args) == 0 {
		b.reply(ctx, ev, msgRemoveUsage)
		return b.sendSelector(ctx, ev)
	}

	_, err := b.palette.Deactivate(ctx, args[0])
	switch {
	case errors.Is(err, palette.ErrColorNotFound):
		b.reply(ctx, ev, msgTeamNotFound)
	case err != nil:
		return fmt.Errorf("remove color %q: %w", args[0], err)
	default:
		b.reply(ctx, ev, msgDone)
	}
	return b.sendSelector(ctx, ev)
}

// Text treats a plain message as a colour selection.
func (b *Bot) Text(ctx context.Context, ev Event, text string) error {
	applog.Info(ctx, "got text", "user", ev.UserName, "text", text)
	if text == RefreshKeyword {
		return b.sendSelector(ctx, ev)
	}

	color, err := b.palette.Get(ctx, text)
	if errors.Is(err, palette.ErrColorNotFound) {
		// stale keyboard or chatter
		return b.sendSelector(ctx, ev)
	}
	if err != nil {
		return fmt.Errorf("select color %q: %w", text, err)
	}

	if !color.Active {
		b.reply(ctx, ev, msgNotPlaying)
	}
	if err := b.sendProfileAvatar(ctx, ev, color); err != nil {
		return err
	}
	if err := b.palette.RecordChoice(ctx, ev.UserID, color); err != nil {
		return fmt.Errorf("remember choice: %w", err)
	}
	return nil
}

// Photo decorates an uploaded picture with the user's last chosen colour.
func (b *Bot) Photo(ctx context.Context, ev Event, image []byte) error {
	applog.Info(ctx, "got photo", "user", ev.UserName, "bytes", len(image))

	color, err := b.palette.GetChoice(ctx, ev.UserID)
	switch {
	case errors.Is(err, palette.ErrNoChoiceRecorded):
		b.reply(ctx, ev, msgPickTeamFirst)
		return nil
	case errors.Is(err, palette.ErrColorNoLongerExists):
		b.reply(ctx, ev, msgPickNewTeam)
		return nil
	case err != nil:
		return fmt.Errorf("resolve choice: %w", err)
	}

	if len(image) == 0 {
		b.reply(ctx, ev, msgUnreadable)
		return nil
	}
	rendered, err := b.renderer.Compose(image, color.RGB())
	if errors.Is(err, avatar.ErrUnreadableImage) {
		applog.Debug(ctx, "uploaded photo is unreadable", "user", ev.UserName, "error", err)
		b.reply(ctx, ev, msgUnreadable)
		return nil
	}
	if err != nil {
		return fmt.Errorf("render photo: %w", err)
	}

	if !color.Active {
		b.reply(ctx, ev, msgNotPlaying)
	}
	applog.Info(ctx, "sending updated avatar", "user", ev.UserName, "color", color.Name)
	b.sendPhoto(ctx, ev, rendered)
	return nil
}

// sendProfileAvatar renders the user's profile photo, or a flat square when
// there is no usable photo.
func (b *Bot) sendProfileAvatar(ctx context.Context, ev Event, color models.Color) error {
	src, err := b.messenger.ProfilePhoto(ctx, ev.UserID)
	if err != nil {
		applog.Warn(ctx, "profile photo unavailable, falling back to a flat avatar", "user", ev.UserName, "error", err)
		src = nil
	}

	rendered, err := b.renderer.Compose(src, color.RGB())
	if errors.Is(err, avatar.ErrUnreadableImage) {
		applog.Warn(ctx, "profile photo is unreadable, falling back to a flat avatar", "user", ev.UserName, "error", err)
		src = nil
		rendered, err = b.renderer.Compose(nil, color.RGB())
	}
	if err != nil {
		return fmt.Errorf("render avatar: %w", err)
	}

	if src == nil {
		applog.Info(ctx, "generated flat avatar", "user", ev.UserName, "color", color.Name)
	} else {
		applog.Info(ctx, "generated decorated avatar", "user", ev.UserName, "color", color.Name)
	}
	b.sendPhoto(ctx, ev, rendered)
	if src == nil {
		b.reply(ctx, ev, msgNoAvatar)
	}
	return nil
}

// Selector lists the active colours followed by the refresh button.
func (b *Bot) Selector(ctx context.Context) (*Selector, error) {
	colors, err := b.palette.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("list active colors: %w", err)
	}

	options := make([]string, 0, len(colors)+1)
	for _, c := range colors {
		options = append(options, c.Name)
	}
	options = append(options, RefreshKeyword)
	return &Selector{Options: options}, nil
}

func (b *Bot) sendSelector(ctx context.Context, ev Event) error {
	selector, err := b.Selector(ctx)
	if err != nil {
		return err
	}
	if err := b.messenger.SendText(ctx, ev.ChatID, msgChooseTeam, selector); err != nil {
		applog.Warn(ctx, "failed to deliver selector", "chatID", ev.ChatID, "error", err)
	}
	return nil
}

// Delivery failures are logged, not returned. A retried update would repeat
// replies that already went out.
func (b *Bot) reply(ctx context.Context, ev Event, text string) {
	if err := b.messenger.SendText(ctx, ev.ChatID, text, nil); err != nil {
		applog.Warn(ctx, "failed to deliver reply", "chatID", ev.ChatID, "error", err)
	}
}

func (b *Bot) sendPhoto(ctx context.Context, ev Event, png []byte) {
	if err := b.messenger.SendPhoto(ctx, ev.ChatID, png); err != nil {
		applog.Warn(ctx, "failed to deliver photo", "chatID", ev.ChatID, "error", err)
	}
}

func (b *Bot) isAdmin(userID int64) bool {
	if len(b.admins) == 0 {
		return true
	}
	_, ok := b.admins[userID]
	return ok
}
