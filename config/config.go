// Package config loads analytics engine configuration from the environment,
// after an optional .env file.
package config

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"aurelius-engine/internal/indicator"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	LogLevel string

	// Servers
	HTTPAddr    string
	MetricsAddr string

	// Infrastructure. An empty RedisAddr disables the Redis fan-out.
	RedisAddr     string
	RedisPassword string
	SQLitePath    string

	// Market data
	Symbols      []string
	PollInterval time.Duration
	SamplerSeed  int64
	// QuoteStreamURL, when set, is a ws:// quote feed used alongside polling.
	QuoteStreamURL string

	// Pipeline
	HistoryCap int
	QueueCap   int
	Indicators []indicator.IndicatorConfig

	// Persistence
	AutosaveSpec     string
	HistoryRetention time.Duration

	// Notification. Empty values disable the channel.
	WebhookURL       string
	TelegramBotToken string
	TelegramChatID   string
}

// Load reads an optional .env file (path from ENV_FILE, default ".env") and
// then the environment. Variables already set in the environment win.
func Load() *Config {
	envFile := getEnv("ENV_FILE", ".env")
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("could not read env file", "component", "config", "file", envFile, "error", err)
	}

	return &Config{
		LogLevel: getEnv("LOG_LEVEL", "info"),

		HTTPAddr:    getEnv("HTTP_ADDR", ":8080"),
		MetricsAddr: getEnv("METRICS_ADDR", ":9090"),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		SQLitePath:    getEnv("SQLITE_PATH", "data/aurelius.db"),

		Symbols:      ParseSymbols(getEnv("SYMBOLS", "AAPL,MSFT,GOOGL,AMZN")),
		PollInterval: ParseDuration("POLL_INTERVAL", getEnv("POLL_INTERVAL", "5s"), 5*time.Second),
		SamplerSeed:  int64(getInt("SAMPLER_SEED", 42)),

		QuoteStreamURL: getEnv("QUOTE_WS_URL", ""),

		HistoryCap: getInt("HISTORY_CAP", 512),
		QueueCap:   getInt("QUEUE_CAP", 256),
		Indicators: ParseIndicatorSpecs(getEnv("INDICATORS", "")),

		AutosaveSpec:     getEnv("AUTOSAVE_SPEC", "@every 1m"),
		HistoryRetention: ParseDuration("HISTORY_RETENTION", getEnv("HISTORY_RETENTION", "8760h"), 365*24*time.Hour),

		WebhookURL:       getEnv("WEBHOOK_URL", ""),
		TelegramBotToken: getEnv("TELEGRAM_BOT_TOKEN", ""),
		TelegramChatID:   getEnv("TELEGRAM_CHAT_ID", ""),
	}
}

// ParseSymbols splits a comma list, upper-cases and de-duplicates it.
func ParseSymbols(s string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, p := range strings.Split(s, ",") {
		p = strings.ToUpper(strings.TrimSpace(p))
		if p == "" || seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	return out
}

// ParseDuration parses v, logging and returning fallback when v is invalid
// or not positive.
func ParseDuration(key, v string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(strings.TrimSpace(v))
	if err != nil || d <= 0 {
		slog.Warn("invalid duration, using default", "component", "config", "key", key, "value", v, "default", fallback)
		return fallback
	}
	return d
}

// ParseIndicatorSpecs parses "TYPE:PERIOD[:MULT],..." into indicator
// configs, e.g. "SMA:20,EMA:9,RSI:14,MACD,BBANDS:20:2". Invalid parts are
// skipped. Empty input, or input with nothing valid, yields
// indicator.DefaultConfigs().
func ParseIndicatorSpecs(s string) []indicator.IndicatorConfig {
	if strings.TrimSpace(s) == "" {
		return indicator.DefaultConfigs()
	}

	var configs []indicator.IndicatorConfig
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		tokens := strings.Split(part, ":")
		cfg := indicator.IndicatorConfig{Type: strings.ToUpper(strings.TrimSpace(tokens[0]))}
		if len(tokens) > 1 {
			period, err := strconv.Atoi(strings.TrimSpace(tokens[1]))
			if err != nil || period <= 0 {
				slog.Warn("skipping invalid indicator spec", "component", "config", "spec", part)
				continue
			}
			cfg.Period = period
		}
		if len(tokens) > 2 {
			mult, err := strconv.ParseFloat(strings.TrimSpace(tokens[2]), 64)
			if err != nil || mult < 0 {
				slog.Warn("skipping invalid indicator spec", "component", "config", "spec", part)
				continue
			}
			cfg.Multiplier = mult
		}
		if _, err := indicator.NewEngine([]indicator.IndicatorConfig{cfg}); err != nil {
			slog.Warn("skipping invalid indicator spec", "component", "config", "spec", part, "error", err)
			continue
		}
		configs = append(configs, cfg)
	}
	if len(configs) == 0 {
		slog.Warn("no valid indicators parsed, using defaults", "component", "config")
		return indicator.DefaultConfigs()
	}
	return configs
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func getInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || n <= 0 {
		slog.Warn("invalid integer, using default", "component", "config", "key", key, "value", v, "default", fallback)
		return fallback
	}
	return n
}
