package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/ini.v1"
)

const (
	defaultConfigFile  = "bot.ini"
	configSection      = "Common"
	defaultPort        = "5000"
	defaultPollWorkers = 4
	defaultPollPeriod  = 5 * time.Second
)

// Config captures the runtime configuration for the application.
type Config struct {
	Server   ServerConfig
	Telegram TelegramConfig
	Database DatabaseConfig
	Logging  LoggingConfig
	Image    ImageConfig
	Bot      BotConfig
}

// ServerConfig configures the HTTP listener used for webhooks and health checks.
type ServerConfig struct {
	Addr string
}

// TelegramConfig describes how updates reach the bot.
type TelegramConfig struct {
	Token         string
	APIURL        string
	UseWebhook    bool
	WebhookURL    string
	WebhookSecret string
	PollInterval  time.Duration
	PollWorkers   int
}

// DatabaseConfig contains the database connection settings.
type DatabaseConfig struct {
	URL             string
	MaxIdleConns    int
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	UseMock         bool
}

// LoggingConfig controls the global logger.
type LoggingConfig struct {
	Level  string
	Format string
}

// ImageConfig tunes avatar rendering.
type ImageConfig struct {
	Blur bool
}

// BotConfig holds interaction settings.
type BotConfig struct {
	// AdminIDs may run /set and /rm. Empty means everybody may.
	AdminIDs []int64
}

// source resolves a key from the environment first and the [Common] section
// of the ini file second.
type source struct {
	section *ini.Section
}

func (s source) get(key string) string {
	if val := os.Getenv(key); strings.TrimSpace(val) != "" {
		return val
	}
	if s.section != nil && s.section.HasKey(key) {
		return s.section.Key(key).String()
	}
	return ""
}

// Load inspects the environment and the optional ini file (bot.ini, or the
// path in BOT_CONFIG) and builds a Config value.
func Load() (Config, error) {
	src, err := openSource(firstNonEmpty(os.Getenv("BOT_CONFIG"), defaultConfigFile))
	if err != nil {
		return Config{}, err
	}

	cfg := Config{}

	port := firstNonEmpty(src.get("PORT"), defaultPort)
	cfg.Server = ServerConfig{
		Addr: firstNonEmpty(
			src.get("SERVER_ADDR"),
			src.get("ADDR"),
			":"+port,
		),
	}

	cfg.Telegram = TelegramConfig{
		Token:         strings.TrimSpace(src.get("TOKEN")),
		APIURL:        firstNonEmpty(src.get("TELEGRAM_API_URL"), "https://api.telegram.org"),
		UseWebhook:    parseBoolWithDefault(src.get("USE_WEBHOOK"), true),
		WebhookURL:    strings.TrimSpace(src.get("WEBHOOK_URL")),
		WebhookSecret: strings.TrimSpace(src.get("WEBHOOK_SECRET")),
		PollInterval:  parseDurationWithDefault(src.get("POLL_INTERVAL"), defaultPollPeriod),
		PollWorkers:   parseIntWithDefault(src.get("POLL_WORKERS"), defaultPollWorkers),
	}

	cfg.Database = DatabaseConfig{
		URL: firstNonEmpty(
			src.get("DATABASE_URL"),
			src.get("DB_URL"),
			"",
		),
		MaxIdleConns:    parseIntWithDefault(src.get("DATABASE_MAX_IDLE_CONNS"), 0),
		MaxOpenConns:    parseIntWithDefault(src.get("DATABASE_MAX_OPEN_CONNS"), 0),
		ConnMaxLifetime: parseDurationWithDefault(src.get("DATABASE_CONN_MAX_LIFETIME"), 0),
		ConnMaxIdleTime: parseDurationWithDefault(src.get("DATABASE_CONN_MAX_IDLE_TIME"), 0),
		UseMock:         parseBoolWithDefault(src.get("DATABASE_USE_MOCK"), false),
	}

	cfg.Logging = LoggingConfig{
		Level:  firstNonEmpty(src.get("LOG_LEVEL"), "info"),
		Format: firstNonEmpty(src.get("LOG_FORMAT"), "text"),
	}

	cfg.Image = ImageConfig{
		Blur: parseBoolWithDefault(src.get("IMAGE_BLUR"), true),
	}

	admins, err := parseIDList(src.get("ADMIN_USER_IDS"))
	if err != nil {
		return Config{}, err
	}
	cfg.Bot = BotConfig{AdminIDs: admins}

	if strings.TrimSpace(cfg.Server.Addr) == "" {
		return Config{}, fmt.Errorf("server address must not be empty")
	}
	if cfg.Telegram.Token == "" {
		return Config{}, fmt.Errorf("required parameter TOKEN is not specified")
	}
	if cfg.Telegram.UseWebhook && cfg.Telegram.WebhookURL == "" {
		return Config{}, fmt.Errorf("required parameter WEBHOOK_URL is not specified")
	}
	if !cfg.Database.UseMock && strings.TrimSpace(cfg.Database.URL) == "" {
		return Config{}, fmt.Errorf("required parameter DATABASE_URL is not specified")
	}

	return cfg, nil
}

func openSource(path string) (source, error) {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return source{}, nil
		}
		return source{}, fmt.Errorf("stat config file: %w", err)
	}

	file, err := ini.Load(path)
	if err != nil {
		return source{}, fmt.Errorf("load config file %s: %w", path, err)
	}
	if !file.HasSection(configSection) {
		return source{}, nil
	}
	return source{section: file.Section(configSection)}, nil
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}

func parseIntWithDefault(value string, def int) int {
	parsed, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return def
	}
	return parsed
}

func parseDurationWithDefault(value string, def time.Duration) time.Duration {
	parsed, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return def
	}
	return parsed
}

// parseBoolWithDefault accepts yes/y/no/n in addition to strconv.ParseBool spellings.
func parseBoolWithDefault(value string, def bool) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "":
		return def
	case "yes", "y":
		return true
	case "no", "n":
		return false
	}
	parsed, err := strconv.ParseBool(strings.TrimSpace(value))
	if err != nil {
		return def
	}
	return parsed
}

func parseIDList(value string) ([]int64, error) {
	var ids []int64
	for _, field := range strings.FieldsFunc(value, func(r rune) bool { return r == ',' || r == ' ' }) {
		id, err := strconv.ParseInt(field, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse ADMIN_USER_IDS entry %q: %w", field, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
