// Package config loads runtime configuration from the environment,
// with optional .env file support for local development.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port string
	Host string

	// DatabasePath is the SQLite database file.
	DatabasePath string

	ERP   ERPConfig
	Sweep SweepConfig
}

// ERPConfig configures the accounting-system client.
type ERPConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// SweepConfig configures the scheduled retry sweep.
type SweepConfig struct {
	Enabled  bool
	Interval time.Duration
}

func Load() *Config {
	godotenv.Load()

	return &Config{
		Port:         getEnv("PORT", "8080"),
		Host:         getEnv("HOST", "0.0.0.0"),
		DatabasePath: getEnv("DATABASE_PATH", "ledgersync.db"),
		ERP: ERPConfig{
			BaseURL: getEnv("ERP_BASE_URL", "http://localhost:9000"),
			APIKey:  getEnv("ERP_API_KEY", ""),
			Timeout: getDuration("ERP_TIMEOUT", 30*time.Second),
		},
		Sweep: SweepConfig{
			Enabled:  getBool("SWEEP_ENABLED", true),
			Interval: getDuration("SWEEP_INTERVAL", 15*time.Minute),
		},
	}
}

// Addr returns the host:port the API server binds to.
func (c *Config) Addr() string {
	return c.Host + ":" + c.Port
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return b
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return d
}
