package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Discord Bot
	DiscordToken string

	// Persistence: JSON files under DataDir, or Postgres when DatabaseURL is set
	DataDir     string
	DatabaseURL string

	// Presence tracking
	HistoryLimit int

	// Stay reconciliation
	StayInterval time.Duration

	// Optional channel for startup summaries and stay notices
	NotifyChannelID string

	// Web Server
	WebBind string
}

func Load() (*Config, error) {
	// Load environment variables from .env if present (non-fatal if missing)
	_ = godotenv.Load()

	cfg := &Config{
		DiscordToken:    os.Getenv("DISCORD_TOKEN"),
		DataDir:         getEnvDefault("DATA_DIR", "data"),
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		NotifyChannelID: os.Getenv("NOTIFY_CHANNEL_ID"),
		WebBind:         getEnvDefault("WEB_BIND", "0.0.0.0:3000"),
	}

	limit, err := getEnvInt("HISTORY_LIMIT", 1000)
	if err != nil {
		return nil, err
	}
	cfg.HistoryLimit = limit

	interval, err := getEnvInt("STAY_INTERVAL_SECONDS", 30)
	if err != nil {
		return nil, err
	}
	cfg.StayInterval = time.Duration(interval) * time.Second

	if cfg.DiscordToken == "" {
		return nil, fmt.Errorf("DISCORD_TOKEN is required")
	}

	return cfg, nil
}

func getEnvDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%s must be a positive integer, got %q", key, value)
	}
	return n, nil
}
