package config

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// clearEnv убирает переменные, которые могли прийти из окружения машины
func clearEnv(t *testing.T) {
	t.Helper()

	for _, key := range []string{
		"DASHBOARD_CONFIG", "API_URL", "REACT_APP_API_URL", "ADDRESS", "LOG_FILE", "LOG_LEVEL",
		"JWT_SECRET", "DASHBOARD_USER", "DASHBOARD_PASSWORD_HASH", "TELEGRAM_BOT_TOKEN",
		"TELEGRAM_CHAT_ID", "STATUS_INTERVAL", "ACTIVITY_INTERVAL", "REQUEST_TIMEOUT",
		"TRADES_LIMIT", "LOGS_LIMIT", "HTTP_LOG_BODY",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load(discardLogger())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.APIURL != DefaultAPIURL || cfg.StatusInterval != 5*time.Second ||
		cfg.ActivityInterval != 3*time.Second || cfg.TradesLimit != 50 || cfg.LogsLimit != 100 {
		t.Fatalf("defaults = %+v", cfg)
	}

	if cfg.AuthEnabled() || cfg.TelegramEnabled() {
		t.Fatal("optional features enabled by default")
	}
}

func TestEnvOverridesFile(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "dashboard.yaml")
	yml := strings.Join([]string{
		"api_url: http://bot.local:8000",
		"status_interval: 10s",
		"trades_limit: 20",
		"address: 0.0.0.0:9000",
	}, "\n")

	if err := os.WriteFile(path, []byte(yml), 0o600); err != nil {
		t.Fatal(err)
	}

	t.Setenv("DASHBOARD_CONFIG", path)
	t.Setenv("TRADES_LIMIT", "30")
	t.Setenv("REACT_APP_API_URL", "http://react.local:8000")

	cfg, err := Load(discardLogger())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.StatusInterval != 10*time.Second || cfg.Address != "0.0.0.0:9000" {
		t.Fatalf("file values not applied: %+v", cfg)
	}

	if cfg.TradesLimit != 30 || cfg.APIURL != "http://react.local:8000" {
		t.Fatalf("env values not applied: %+v", cfg)
	}

	t.Setenv("API_URL", "https://api.local")

	cfg, err = Load(discardLogger())
	if err != nil || cfg.APIURL != "https://api.local" {
		t.Fatalf("API_URL precedence: %+v, %v", cfg, err)
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	cases := map[string]string{
		"API_URL":          "localhost:8000",
		"STATUS_INTERVAL":  "soon",
		"LOGS_LIMIT":       "0",
		"LOG_LEVEL":        "verbose",
		"JWT_SECRET":       "secret",
		"TELEGRAM_CHAT_ID": "12345",
	}

	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(key, value)

			if _, err := Load(discardLogger()); err == nil {
				t.Fatalf("%s=%s accepted", key, value)
			}
		})
	}
}

func TestAuthNeedsCredentials(t *testing.T) {
	cfg := Default()
	cfg.JWTSecret = "secret"
	cfg.DashboardUser = "admin"
	cfg.DashboardPasswordHash = "$2a$10$hash"

	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	if !cfg.AuthEnabled() {
		t.Fatal("auth not enabled")
	}
}
