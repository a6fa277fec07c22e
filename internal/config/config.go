package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"focusgarden/backend/internal/model"
	"focusgarden/backend/internal/timer"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

type Config struct {
	Port          string   `yaml:"port"`
	StoreDriver   string   `yaml:"store_driver"`
	DBPath        string   `yaml:"db_path"`
	DatabaseURL   string   `yaml:"database_url"`
	MigrationsDir string   `yaml:"migrations_dir"`
	JWTSecret     string   `yaml:"jwt_secret"`
	TokenTTLHours int      `yaml:"token_ttl_hours"`
	CORSOrigins   []string `yaml:"cors_origins"`

	CheckpointIntervalSeconds int               `yaml:"checkpoint_interval_seconds"`
	TickIntervalMS            int               `yaml:"tick_interval_ms"`
	DefaultTimer              model.TimerConfig `yaml:"default_timer"`

	OpenAIAPIKey string `yaml:"openai_api_key"`
	OpenAIModel  string `yaml:"openai_model"`
	LogLevel     string `yaml:"log_level"`
}

func defaults() Config {
	return Config{
		Port:                      "8080",
		StoreDriver:               DriverSQLite,
		DBPath:                    "./data/focusgarden.db",
		MigrationsDir:             "./migrations",
		JWTSecret:                 "change-this-secret",
		TokenTTLHours:             72,
		CORSOrigins:               []string{"http://localhost:5173", "http://127.0.0.1:5173"},
		CheckpointIntervalSeconds: 30,
		TickIntervalMS:            1000,
		DefaultTimer:              model.DefaultTimerConfig(),
		OpenAIModel:               "gpt-4o-mini",
		LogLevel:                  "info",
	}
}

// Load builds the configuration from defaults, then the optional YAML file
// named by CONFIG_FILE, then environment variables.
func Load() (Config, error) {
	cfg := defaults()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parsing config file: %w", err)
		}
	}

	applyEnvOverrides(&cfg)

	if err := cfg.validate(); err != nil {
		return Config{}, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	cfg.Port = getEnv("PORT", cfg.Port)
	cfg.StoreDriver = strings.ToLower(getEnv("STORE_DRIVER", cfg.StoreDriver))
	cfg.DBPath = getEnv("DB_PATH", cfg.DBPath)
	cfg.DatabaseURL = getEnv("DATABASE_URL", cfg.DatabaseURL)
	cfg.MigrationsDir = getEnv("MIGRATIONS_DIR", cfg.MigrationsDir)
	cfg.JWTSecret = getEnv("JWT_SECRET", cfg.JWTSecret)
	cfg.TokenTTLHours = getEnvInt("TOKEN_TTL_HOURS", cfg.TokenTTLHours)
	cfg.CORSOrigins = getEnvList("CORS_ORIGINS", cfg.CORSOrigins)

	cfg.CheckpointIntervalSeconds = getEnvInt("CHECKPOINT_INTERVAL_SECONDS", cfg.CheckpointIntervalSeconds)
	cfg.TickIntervalMS = getEnvInt("TICK_INTERVAL_MS", cfg.TickIntervalMS)
	cfg.DefaultTimer.FocusDurationSeconds = getEnvInt("DEFAULT_FOCUS_SECONDS", cfg.DefaultTimer.FocusDurationSeconds)
	cfg.DefaultTimer.ShortBreakDurationSeconds = getEnvInt("DEFAULT_SHORT_BREAK_SECONDS", cfg.DefaultTimer.ShortBreakDurationSeconds)
	cfg.DefaultTimer.LongBreakDurationSeconds = getEnvInt("DEFAULT_LONG_BREAK_SECONDS", cfg.DefaultTimer.LongBreakDurationSeconds)
	cfg.DefaultTimer.CyclesBeforeLongBreak = getEnvInt("DEFAULT_CYCLES", cfg.DefaultTimer.CyclesBeforeLongBreak)

	cfg.OpenAIAPIKey = getEnv("OPENAI_API_KEY", cfg.OpenAIAPIKey)
	cfg.OpenAIModel = getEnv("OPENAI_MODEL", cfg.OpenAIModel)
	cfg.LogLevel = strings.ToLower(getEnv("LOG_LEVEL", cfg.LogLevel))
}

func (c *Config) validate() error {
	switch c.StoreDriver {
	case DriverSQLite:
		if c.DBPath == "" {
			return fmt.Errorf("db_path is required for the sqlite driver")
		}
	case DriverPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("database_url is required for the postgres driver")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("unknown store_driver %q", c.StoreDriver)
	}

	if c.JWTSecret == "" {
		return fmt.Errorf("jwt_secret is required")
	}
	if c.TokenTTLHours <= 0 {
		return fmt.Errorf("token_ttl_hours must be positive")
	}
	if c.CheckpointIntervalSeconds <= 0 {
		return fmt.Errorf("checkpoint_interval_seconds must be positive")
	}
	if c.TickIntervalMS <= 0 {
		return fmt.Errorf("tick_interval_ms must be positive")
	}
	if err := timer.ValidateConfig(c.DefaultTimer); err != nil {
		return fmt.Errorf("default_timer: %w", err)
	}
	if _, ok := logLevels[c.LogLevel]; !ok {
		return fmt.Errorf("unknown log_level %q", c.LogLevel)
	}
	return nil
}

func (c Config) TokenTTL() time.Duration {
	return time.Duration(c.TokenTTLHours) * time.Hour
}

func (c Config) CheckpointInterval() time.Duration {
	return time.Duration(c.CheckpointIntervalSeconds) * time.Second
}

func (c Config) TickInterval() time.Duration {
	return time.Duration(c.TickIntervalMS) * time.Millisecond
}

// MigrationsPath is the migrations directory for the configured driver.
func (c Config) MigrationsPath() string {
	return filepath.Join(c.MigrationsDir, c.StoreDriver)
}

var logLevels = map[string]slog.Level{
	"debug": slog.LevelDebug,
	"info":  slog.LevelInfo,
	"warn":  slog.LevelWarn,
	"error": slog.LevelError,
}

func (c Config) SlogLevel() slog.Level {
	if level, ok := logLevels[c.LogLevel]; ok {
		return level
	}
	return slog.LevelInfo
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}

	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvList(key string, fallback []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}

	parts := strings.Split(value, ",")
	items := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			items = append(items, trimmed)
		}
	}
	if len(items) == 0 {
		return fallback
	}
	return items
}
