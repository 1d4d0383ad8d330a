package config

import (
	"encoding/json"
	"fmt"
	"os"

	"domiflash/models"

	"github.com/joho/godotenv"
)

type Config struct {
	Telegram TelegramConfig
	Database DatabaseConfig
	Metrics  MetricsConfig
	Drivers  []models.Driver
}

type TelegramConfig struct {
	Token string
}

type DatabaseConfig struct {
	// URL enables the dispatch audit trail when set. The engine's
	// authoritative state stays in memory either way.
	URL string
}

type MetricsConfig struct {
	// Addr is the listen address for /metrics (empty disables it).
	Addr string
}

// Load reads configuration from the environment (.env is honored).
// DRIVERS is a JSON array of {driver_id, name, chat_id}; the roster is
// fixed for the lifetime of the process and every driver starts available.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Telegram: TelegramConfig{
			Token: getEnv("TELEGRAM_BOT_TOKEN", ""),
		},
		Database: DatabaseConfig{
			URL: getEnv("DATABASE_URL", ""),
		},
		Metrics: MetricsConfig{
			Addr: getEnv("METRICS_ADDR", ""),
		},
	}

	if raw := getEnv("DRIVERS", ""); raw != "" {
		var roster []models.Driver
		if err := json.Unmarshal([]byte(raw), &roster); err != nil {
			return nil, fmt.Errorf("DRIVERS: %w", err)
		}
		for i := range roster {
			roster[i].IsAvailable = true
		}
		cfg.Drivers = roster
	}

	return cfg, nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
