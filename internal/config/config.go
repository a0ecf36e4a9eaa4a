package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	applog "budget-tracker/internal/log"

	"github.com/joho/godotenv"
)

// Config holds runtime settings for the server.
type Config struct {
	// HTTP server
	Port         string
	SecureCookie bool

	// Storage
	DBPath     string
	StaticDir  string
	PictureDir string

	// Event streaming; empty brokers disables publishing
	KafkaBrokers []string
	KafkaTopic   string

	// Rate limit for credential endpoints, per client IP
	AuthRateLimitRPS   float64
	AuthRateLimitBurst int

	LogLevel string
	// TrustedProxies are addresses or CIDR ranges allowed to set X-Forwarded-For.
	TrustedProxies []string
}

// Load reads the environment, after merging a .env file when one exists.
func Load() *Config {
	// A missing .env file is fine; the process environment is used as is.
	_ = godotenv.Load()

	staticDir := getEnv("STATIC_DIR", filepath.Join("web", "static"))
	return &Config{
		Port:               getEnv("PORT", "8000"),
		SecureCookie:       getEnvBool("SECURE_COOKIE", false),
		DBPath:             getEnv("DB_PATH", "budget.db"),
		StaticDir:          staticDir,
		PictureDir:         getEnv("PICTURE_DIR", filepath.Join(staticDir, "profile_pictures")),
		KafkaBrokers:       getEnvList("KAFKA_BROKERS"),
		KafkaTopic:         getEnv("KAFKA_TOPIC", "budget-events"),
		AuthRateLimitRPS:   getEnvFloat("AUTH_RATE_LIMIT_RPS", 1),
		AuthRateLimitBurst: getEnvInt("AUTH_RATE_LIMIT_BURST", 5),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		TrustedProxies:     getEnvList("TRUSTED_PROXIES"),
	}
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	if c.DBPath == "" {
		errors = append(errors, "database path cannot be empty")
	}

	if c.PictureDir == "" {
		errors = append(errors, "picture directory cannot be empty")
	} else if err := os.MkdirAll(c.PictureDir, 0755); err != nil {
		errors = append(errors, fmt.Sprintf("cannot create picture directory '%s': %v", c.PictureDir, err))
	}

	if len(c.KafkaBrokers) > 0 && c.KafkaTopic == "" {
		errors = append(errors, "Kafka topic cannot be empty when brokers are configured")
	}

	if c.AuthRateLimitRPS <= 0 {
		errors = append(errors, fmt.Sprintf("invalid auth rate limit %v: must be positive", c.AuthRateLimitRPS))
	}
	if c.AuthRateLimitBurst < 1 {
		errors = append(errors, fmt.Sprintf("invalid auth rate limit burst %d: must be at least 1", c.AuthRateLimitBurst))
	}

	if _, err := applog.ParseTrustedProxies(c.TrustedProxies); err != nil {
		errors = append(errors, err.Error())
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
