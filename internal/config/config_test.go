package config

import (
	"os"
	"testing"
	"time"
)

func TestLoadUsesDefaultsWhenUnset(t *testing.T) {
	for _, key := range []string{
		"BINARY_BIND_ADDR", "JSON_BIND_ADDR", "ENABLE_BINARY", "ENABLE_JSON",
		"LOG_LEVEL", "SESSION_EXPIRY_THRESHOLD_SECONDS", "SWEEPER_INTERVAL_SECONDS",
		"DOCUMENT_TTL_SECONDS",
	} {
		os.Unsetenv(key)
	}

	cfg := Load()
	if cfg.BinaryBindAddr != "[::]:8081" {
		t.Fatalf("unexpected default binary addr: %s", cfg.BinaryBindAddr)
	}
	if !cfg.EnableBinary || !cfg.EnableJSON {
		t.Fatal("expected both transports enabled by default")
	}
	if cfg.SessionExpiryThreshold != 120*time.Second {
		t.Fatalf("unexpected default expiry threshold: %v", cfg.SessionExpiryThreshold)
	}
}

func TestLoadHonoursOverrides(t *testing.T) {
	os.Setenv("BINARY_BIND_ADDR", "127.0.0.1:9001")
	os.Setenv("ENABLE_JSON", "false")
	os.Setenv("SESSION_EXPIRY_THRESHOLD_SECONDS", "30")
	defer func() {
		os.Unsetenv("BINARY_BIND_ADDR")
		os.Unsetenv("ENABLE_JSON")
		os.Unsetenv("SESSION_EXPIRY_THRESHOLD_SECONDS")
	}()

	cfg := Load()
	if cfg.BinaryBindAddr != "127.0.0.1:9001" {
		t.Fatalf("override not applied: %s", cfg.BinaryBindAddr)
	}
	if cfg.EnableJSON {
		t.Fatal("expected ENABLE_JSON=false to be honoured")
	}
	if cfg.SessionExpiryThreshold != 30*time.Second {
		t.Fatalf("unexpected expiry threshold: %v", cfg.SessionExpiryThreshold)
	}
}
