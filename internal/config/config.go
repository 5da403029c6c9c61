package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	DefaultAPIURL  = "http://localhost:8000"
	DefaultAddress = "127.0.0.1:8090"
	DefaultLogFile = "dashboard.log"
)

// Config содержит конфигурацию панели
type Config struct {
	// Бэкенд торгового бота
	APIURL         string        `yaml:"api_url"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	HTTPLogBody    int           `yaml:"http_log_body"`

	// Опрос
	StatusInterval   time.Duration `yaml:"status_interval"`
	ActivityInterval time.Duration `yaml:"activity_interval"`
	TradesLimit      int           `yaml:"trades_limit"`
	LogsLimit        int           `yaml:"logs_limit"`

	// Локальный API
	Address string `yaml:"address"`

	// Авторизация локального API, выключена без JWT_SECRET
	JWTSecret             string `yaml:"jwt_secret"`
	DashboardUser         string `yaml:"dashboard_user"`
	DashboardPasswordHash string `yaml:"dashboard_password_hash"`

	// Уведомления в Telegram, выключены без токена
	TelegramToken  string `yaml:"telegram_bot_token"`
	TelegramChatID int64  `yaml:"telegram_chat_id"`

	LogFile  string `yaml:"log_file"`
	LogLevel string `yaml:"log_level"`
}

// Default возвращает конфигурацию по умолчанию
func Default() *Config {
	return &Config{
		APIURL:           DefaultAPIURL,
		StatusInterval:   5 * time.Second,
		ActivityInterval: 3 * time.Second,
		TradesLimit:      50,
		LogsLimit:        100,
		Address:          DefaultAddress,
		LogFile:          DefaultLogFile,
		LogLevel:         "info",
	}
}

// Load собирает конфигурацию: значения по умолчанию, затем YAML из DASHBOARD_CONFIG,
// затем переменные окружения. Файл .env подхватывается, если он есть.
func Load(logger *slog.Logger) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to read .env: %w", err)
		}

		logger.Debug("No .env file, using process environment")
	}

	cfg := Default()

	if path := os.Getenv("DASHBOARD_CONFIG"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}

		logger.Info("📄 Config file loaded", slog.String("path", path))
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	if !cfg.AuthEnabled() {
		logger.Warn("⚠️  JWT_SECRET not set, local API is open to anyone who can reach it")
	}

	if cfg.TelegramEnabled() {
		logger.Info("📨 Telegram notifications enabled", slog.Int64("chat_id", cfg.TelegramChatID))
	}

	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file '%s': %w", path, err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config from YAML: %w", err)
	}

	return nil
}

// applyEnv переопределяет поля заданными переменными окружения
func (c *Config) applyEnv() error {
	// REACT_APP_API_URL - имя переменной из веб-клиента, API_URL важнее
	envString("REACT_APP_API_URL", &c.APIURL)
	envString("API_URL", &c.APIURL)
	envString("ADDRESS", &c.Address)
	envString("LOG_FILE", &c.LogFile)
	envString("LOG_LEVEL", &c.LogLevel)
	envString("JWT_SECRET", &c.JWTSecret)
	envString("DASHBOARD_USER", &c.DashboardUser)
	envString("DASHBOARD_PASSWORD_HASH", &c.DashboardPasswordHash)
	envString("TELEGRAM_BOT_TOKEN", &c.TelegramToken)

	return errors.Join(
		envDuration("STATUS_INTERVAL", &c.StatusInterval),
		envDuration("ACTIVITY_INTERVAL", &c.ActivityInterval),
		envDuration("REQUEST_TIMEOUT", &c.RequestTimeout),
		envInt("TRADES_LIMIT", &c.TradesLimit),
		envInt("LOGS_LIMIT", &c.LogsLimit),
		envInt("HTTP_LOG_BODY", &c.HTTPLogBody),
		envInt64("TELEGRAM_CHAT_ID", &c.TelegramChatID),
	)
}

// Validate проверяет конфигурацию
func (c *Config) Validate() error {
	u, err := url.Parse(c.APIURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid api url %q: must be an absolute http(s) URL", c.APIURL)
	}

	if c.Address == "" {
		return errors.New("address cannot be empty")
	}

	if c.StatusInterval <= 0 || c.ActivityInterval <= 0 {
		return errors.New("poll intervals must be greater than 0")
	}

	if c.TradesLimit <= 0 || c.LogsLimit <= 0 {
		return errors.New("trades and logs limits must be greater than 0")
	}

	if c.RequestTimeout < 0 {
		return errors.New("request timeout cannot be negative")
	}

	if c.HTTPLogBody < 0 {
		return errors.New("http log body size cannot be negative")
	}

	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("unknown log level %q", c.LogLevel)
	}

	if c.AuthEnabled() && (c.DashboardUser == "" || c.DashboardPasswordHash == "") {
		return errors.New("DASHBOARD_USER and DASHBOARD_PASSWORD_HASH are required when JWT_SECRET is set")
	}

	if (c.TelegramToken == "") != (c.TelegramChatID == 0) {
		return errors.New("TELEGRAM_BOT_TOKEN and TELEGRAM_CHAT_ID must be set together")
	}

	return nil
}

// AuthEnabled сообщает, защищен ли локальный API
func (c *Config) AuthEnabled() bool {
	return c.JWTSecret != ""
}

// TelegramEnabled сообщает, отправляются ли уведомления в Telegram
func (c *Config) TelegramEnabled() bool {
	return c.TelegramToken != "" && c.TelegramChatID != 0
}

func envString(key string, dst *string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

func envDuration(key string, dst *time.Duration) error {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return nil
	}

	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}

	*dst = d

	return nil
}

func envInt(key string, dst *int) error {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return nil
	}

	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}

	*dst = n

	return nil
}

func envInt64(key string, dst *int64) error {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return nil
	}

	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}

	*dst = n

	return nil
}
