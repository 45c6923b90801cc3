// Package config loads process configuration from the environment,
// matching spec §6's configuration table. Grounded on the teacher's
// cmd/*/main.go os.Getenv-with-default style plus godotenv.Load() for
// optional .env files.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds every environment-tunable knob this server reads at
// startup.
type Config struct {
	BinaryBindAddr string
	JSONBindAddr   string
	EnableBinary   bool
	EnableJSON     bool
	LogLevel       string

	SessionExpiryThreshold time.Duration
	SweeperInterval        time.Duration
	DocumentTTL            time.Duration
}

// Load reads Config from the environment, applying spec §6's defaults
// for anything unset or unparsable.
func Load() Config {
	return Config{
		BinaryBindAddr:         getString("BINARY_BIND_ADDR", "[::]:8081"),
		JSONBindAddr:           getString("JSON_BIND_ADDR", "[::]:8080"),
		EnableBinary:           getBool("ENABLE_BINARY", true),
		EnableJSON:             getBool("ENABLE_JSON", true),
		LogLevel:               getString("LOG_LEVEL", "info"),
		SessionExpiryThreshold: getSeconds("SESSION_EXPIRY_THRESHOLD_SECONDS", 120),
		SweeperInterval:        getSeconds("SWEEPER_INTERVAL_SECONDS", 30),
		DocumentTTL:            getSeconds("DOCUMENT_TTL_SECONDS", 600),
	}
}

func getString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func getSeconds(key string, fallback int) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return time.Duration(fallback) * time.Second
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return time.Duration(fallback) * time.Second
	}
	return time.Duration(n) * time.Second
}
