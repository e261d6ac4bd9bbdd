package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

type CKey string

// Config holds process-wide singletons shared across handlers.
type Config struct {
	Validator *validator.Validate
}

// AppConfig represents the application configuration
type AppConfig struct {
	Port               string
	DatabaseDriver     string // "sqlite" or "postgres"
	SQLitePath         string
	OpenSearchURL      string
	OpenSearchUser     string
	OpenSearchPass     string
	EnableLogging      bool
	LoggingLevel       string
	AttemptTimeout     time.Duration
	HealthTickerOn     bool
	HealthInterval     time.Duration
	HealthWindow       time.Duration
	HealthThresholdPct float64
	OpsAlertPhone      string
	APIKey             string
}

var (
	instance          *Config
	appConfigInstance *AppConfig
)

func App() *Config {
	if instance == nil {
		instance = &Config{
			Validator: validator.New(),
		}
	}
	return instance
}

// GetAppConfig returns the application configuration
func GetAppConfig() *AppConfig {
	if appConfigInstance == nil {
		appConfigInstance = &AppConfig{
			Port:               GetEnv("APP_PORT", "9999"),
			DatabaseDriver:     GetEnv("DB_DRIVER", "sqlite"),
			SQLitePath:         GetEnv("SQLITE_PATH", "data/montoit.db"),
			OpenSearchURL:      GetEnv("OPENSEARCH_URL", "http://localhost:9200"),
			OpenSearchUser:     GetEnv("OPENSEARCH_USER", ""),
			OpenSearchPass:     GetEnv("OPENSEARCH_PASSWORD", ""),
			EnableLogging:      GetBoolEnv("ENABLE_OPENSEARCH_LOGGING", false),
			LoggingLevel:       GetEnv("LOGGING_LEVEL", "info"),
			AttemptTimeout:     GetDurationEnv("PROVIDER_ATTEMPT_TIMEOUT", 10*time.Second),
			HealthTickerOn:     GetBoolEnv("ENABLE_HEALTH_TICKER", false),
			HealthInterval:     GetDurationEnv("HEALTH_CHECK_INTERVAL", time.Hour),
			HealthWindow:       GetDurationEnv("HEALTH_CHECK_WINDOW", 24*time.Hour),
			HealthThresholdPct: GetFloatEnv("HEALTH_THRESHOLD_PERCENT", 80),
			OpsAlertPhone:      GetEnv("OPS_ALERT_PHONE", ""),
			APIKey:             GetEnv("API_KEY", ""),
		}
	}
	return appConfigInstance
}

// WebhookSecret returns the shared HMAC secret configured for a webhook
// channel, or an empty string when none is provisioned. An empty secret
// makes the verifier degrade open (skip verification with a warning),
// which is unsafe for production and only meant for environments where
// secrets are not yet provisioned.
func WebhookSecret(channel string) string {
	key := "WEBHOOK_SECRET_" + strings.ToUpper(strings.ReplaceAll(channel, "-", "_"))
	return os.Getenv(key)
}

// GetEnv returns the value of an environment variable or a default value
func GetEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// GetBoolEnv returns the boolean value of an environment variable or a default value
func GetBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// GetIntEnv returns the integer value of an environment variable or a default value
func GetIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// GetFloatEnv returns the float value of an environment variable or a default value
func GetFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// GetDurationEnv returns the duration value of an environment variable or a default value
func GetDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
