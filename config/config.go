package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/tradesentinel/core/internal/model"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	// Exchange
	ExchangeName    string
	ExchangeBaseURL string
	RateLimitMs     int // minimum inter-call sleep within a fan-out batch
	RequestTimeout  time.Duration

	// Infrastructure
	RedisAddr     string
	RedisPassword string
	SQLitePath    string
	MetricsAddr   string

	// Universe
	Symbols    []model.Symbol
	Timeframes []model.Timeframe

	// Scheduler cadences
	IngestInterval   time.Duration
	EvaluateInterval time.Duration
	HealthInterval   time.Duration
	RetentionHour    int // local hour (configured timezone) for the daily retention pass
	Timezone         string

	// Outbound
	WebhookURL      string
	WebhookTimeout  time.Duration
	CircuitMaxFails int
	CircuitReset    time.Duration

	// Operator notifications (health degradation, independent of per-rule
	// webhook dispatch): Telegram takes priority over a generic webhook if
	// both are configured.
	OpsNotifyWebhookURL string
	TelegramBotToken    string
	TelegramChatID      string

	// Backfill
	BackfillBars int

	HTTPAddr string
}

// Load reads configuration from environment variables with sensible defaults.
func Load() *Config {
	return &Config{
		ExchangeName:    getEnv("EXCHANGE_NAME", "binance"),
		ExchangeBaseURL: getEnv("EXCHANGE_BASE_URL", "https://api.binance.com"),
		RateLimitMs:     getEnvInt("EXCHANGE_RATE_LIMIT_MS", 100),
		RequestTimeout:  time.Duration(getEnvInt("EXCHANGE_TIMEOUT_MS", 10000)) * time.Millisecond,

		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		SQLitePath:    getEnv("SQLITE_PATH", "data/candles.db"),
		MetricsAddr:   getEnv("METRICS_ADDR", ":9090"),

		Symbols:    parseSymbols(getEnv("SYMBOLS", "BTC,ETH")),
		Timeframes: parseTimeframes(getEnv("TIMEFRAMES", "5m,15m,1h,1d")),

		IngestInterval:   time.Duration(getEnvInt("INGEST_INTERVAL_SECONDS", 60)) * time.Second,
		EvaluateInterval: time.Duration(getEnvInt("EVALUATE_INTERVAL_SECONDS", 60)) * time.Second,
		HealthInterval:   time.Duration(getEnvInt("HEALTH_INTERVAL_SECONDS", 300)) * time.Second,
		RetentionHour:    getEnvInt("RETENTION_HOUR", 3),
		Timezone:         getEnv("RETENTION_TIMEZONE", "UTC"),

		WebhookURL:      getEnv("EXTERNAL_ALERT_API_URL", "http://localhost:8080"),
		WebhookTimeout:  time.Duration(getEnvInt("WEBHOOK_TIMEOUT_SECONDS", 30)) * time.Second,
		CircuitMaxFails: getEnvInt("WEBHOOK_CIRCUIT_MAX_FAILS", 5),
		CircuitReset:    time.Duration(getEnvInt("WEBHOOK_CIRCUIT_RESET_SECONDS", 30)) * time.Second,

		OpsNotifyWebhookURL: getEnv("OPS_NOTIFY_WEBHOOK_URL", ""),
		TelegramBotToken:    getEnv("TELEGRAM_BOT_TOKEN", ""),
		TelegramChatID:      getEnv("TELEGRAM_CHAT_ID", ""),

		BackfillBars: getEnvInt("BACKFILL_BARS", 60),

		HTTPAddr: getEnv("HTTP_ADDR", ":8081"),
	}
}

// Location resolves the configured retention timezone, falling back to UTC
// if the zone database entry is missing.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		log.Printf("[config] unknown timezone %q, falling back to UTC: %v", c.Timezone, err)
		return time.UTC
	}
	return loc
}

func parseSymbols(s string) []model.Symbol {
	parts := strings.Split(s, ",")
	out := make([]model.Symbol, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		sym := model.Symbol(p)
		if !sym.Valid() {
			log.Printf("[config] skipping unsupported symbol: %q", p)
			continue
		}
		out = append(out, sym)
	}
	return out
}

func parseTimeframes(s string) []model.Timeframe {
	parts := strings.Split(s, ",")
	out := make([]model.Timeframe, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		tf := model.Timeframe(p)
		if !tf.Valid() {
			log.Printf("[config] skipping unsupported timeframe: %q", p)
			continue
		}
		out = append(out, tf)
	}
	return out
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("[config] invalid int for %s: %q, using default %d", key, v, fallback)
		return fallback
	}
	return n
}
