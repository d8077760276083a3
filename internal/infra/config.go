package infra

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv      string
	Port        string
	DatabaseURL string

	// AdminJWTSecret signs the HS256 tokens that carry the administrator
	// capability (flood-control exemption, admin routes).
	AdminJWTSecret string

	// Stripe keys used when the credentials store holds none.
	StripeSecretKey      string
	StripePublishableKey string

	// Flood control for donation intake.
	FloodLimit    int
	FloodInterval time.Duration

	// ReceiptWebhookURL receives donation notices; empty disables dispatch.
	ReceiptWebhookURL string

	GeoIPDBPath    string
	AllowedOrigins []string

	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		AppEnv:               getEnv("APP_ENV", "development"),
		Port:                 getEnv("PORT", "8080"),
		DatabaseURL:          os.Getenv("DATABASE_URL"),
		AdminJWTSecret:       os.Getenv("ADMIN_JWT_SECRET"),
		StripeSecretKey:      os.Getenv("STRIPE_SECRET_KEY"),
		StripePublishableKey: os.Getenv("STRIPE_PUBLISHABLE_KEY"),
		FloodLimit:           getEnvInt("FLOOD_LIMIT", 3),
		FloodInterval:        time.Second * time.Duration(getEnvInt("FLOOD_INTERVAL_SECONDS", 600)),
		ReceiptWebhookURL:    os.Getenv("RECEIPT_WEBHOOK_URL"),
		GeoIPDBPath:          os.Getenv("GEOIP_DB_PATH"),
		AllowedOrigins:       splitList(os.Getenv("ALLOWED_ORIGINS")),
		HTTPReadTimeout:      time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout:     time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 30)),
		HTTPIdleTimeout:      time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.AdminJWTSecret == "" {
		return nil, fmt.Errorf("ADMIN_JWT_SECRET is required")
	}

	if cfg.FloodLimit < 1 {
		return nil, fmt.Errorf("FLOOD_LIMIT must be positive")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
