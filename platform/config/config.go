// Package config provides application configuration loading.
// This is part of the platform layer and contains no business logic.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// =============================================================================
// Module-Specific Config Interfaces (Principle of Least Privilege)
// =============================================================================

// DatabaseConfig provides database connection settings.
type DatabaseConfig interface {
	GetDatabaseURL() string
}

// RedisConfig provides redis settings for the cache and task queue.
type RedisConfig interface {
	GetRedisURL() string
}

// CacheConfig provides settings for the CRM status-name cache.
type CacheConfig interface {
	RedisConfig
	GetStatusCacheTTL() time.Duration
}

// HTTPConfig provides settings for the HTTP server.
type HTTPConfig interface {
	GetHTTPAddr() string
	GetCORSAllowAll() bool
	GetCORSOrigins() []string
}

// AdminConfig provides settings for admin route protection.
type AdminConfig interface {
	GetAdminToken() string
}

// CRMConfig provides settings for the CRM client.
type CRMConfig interface {
	GetCRMRequestsPerSecond() float64
	GetCRMTimeout() time.Duration
	GetPhoneCountryCode() string
}

// NotificationConfig provides settings for success notification delivery.
type NotificationConfig interface {
	RedisConfig
	GetEmailEnabled() bool
	GetSMTPHost() string
	GetSMTPPort() int
	GetSMTPUsername() string
	GetSMTPPassword() string
	GetEmailFromAddress() string
	GetNotifyEmailTo() string
	GetNotifyQueueName() string
}

// =============================================================================
// Main Config Struct
// =============================================================================

// Config holds all application configuration values.
type Config struct {
	Env                  string
	HTTPAddr             string
	DatabaseURL          string
	RedisURL             string
	StatusCacheTTL       time.Duration
	CORSAllowAll         bool
	CORSOrigins          []string
	AdminToken           string
	CRMRequestsPerSecond float64
	CRMTimeout           time.Duration
	PhoneCountryCode     string
	EmailEnabled         bool
	SMTPHost             string
	SMTPPort             int
	SMTPUsername         string
	SMTPPassword         string
	EmailFromAddress     string
	NotifyEmailTo        string
	NotifyQueueName      string
}

// DatabaseConfig implementation
func (c *Config) GetDatabaseURL() string { return c.DatabaseURL }

// RedisConfig implementation
func (c *Config) GetRedisURL() string { return c.RedisURL }

// CacheConfig implementation
func (c *Config) GetStatusCacheTTL() time.Duration { return c.StatusCacheTTL }

// HTTPConfig implementation
func (c *Config) GetHTTPAddr() string      { return c.HTTPAddr }
func (c *Config) GetCORSAllowAll() bool    { return c.CORSAllowAll }
func (c *Config) GetCORSOrigins() []string { return c.CORSOrigins }

// AdminConfig implementation
func (c *Config) GetAdminToken() string { return c.AdminToken }

// CRMConfig implementation
func (c *Config) GetCRMRequestsPerSecond() float64 { return c.CRMRequestsPerSecond }
func (c *Config) GetCRMTimeout() time.Duration     { return c.CRMTimeout }
func (c *Config) GetPhoneCountryCode() string      { return c.PhoneCountryCode }

// NotificationConfig implementation
func (c *Config) GetEmailEnabled() bool       { return c.EmailEnabled }
func (c *Config) GetSMTPHost() string         { return c.SMTPHost }
func (c *Config) GetSMTPPort() int            { return c.SMTPPort }
func (c *Config) GetSMTPUsername() string     { return c.SMTPUsername }
func (c *Config) GetSMTPPassword() string     { return c.SMTPPassword }
func (c *Config) GetEmailFromAddress() string { return c.EmailFromAddress }
func (c *Config) GetNotifyEmailTo() string    { return c.NotifyEmailTo }
func (c *Config) GetNotifyQueueName() string  { return c.NotifyQueueName }

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	_ = godotenv.Load()

	corsOrigins := splitCSV(getEnv("CORS_ORIGINS", "http://localhost:5173"))
	corsAllowAll := strings.EqualFold(getEnv("CORS_ALLOW_ALL", "false"), "true")
	if containsWildcard(corsOrigins) {
		corsAllowAll = true
	}

	smtpHost := getEnv("SMTP_HOST", "")
	emailEnabled := strings.EqualFold(getEnv("EMAIL_ENABLED", "false"), "true")

	cfg := &Config{
		Env:                  getEnv("APP_ENV", "development"),
		HTTPAddr:             getEnv("HTTP_ADDR", ":8080"),
		DatabaseURL:          getEnv("DATABASE_URL", ""),
		RedisURL:             getEnv("REDIS_URL", "redis://localhost:6379/0"),
		StatusCacheTTL:       mustDuration(getEnv("STATUS_CACHE_TTL", "24h")),
		CORSAllowAll:         corsAllowAll,
		CORSOrigins:          corsOrigins,
		AdminToken:           getEnv("ADMIN_TOKEN", ""),
		CRMRequestsPerSecond: mustFloat(getEnv("CRM_REQUESTS_PER_SECOND", "2")),
		CRMTimeout:           mustDuration(getEnv("CRM_TIMEOUT", "30s")),
		PhoneCountryCode:     getEnv("PHONE_COUNTRY_CODE", "7"),
		EmailEnabled:         emailEnabled && smtpHost != "",
		SMTPHost:             smtpHost,
		SMTPPort:             mustInt(getEnv("SMTP_PORT", "587")),
		SMTPUsername:         getEnv("SMTP_USERNAME", ""),
		SMTPPassword:         getEnv("SMTP_PASSWORD", ""),
		EmailFromAddress:     getEnv("EMAIL_FROM_ADDRESS", ""),
		NotifyEmailTo:        getEnv("NOTIFY_EMAIL_TO", ""),
		NotifyQueueName:      getEnv("NOTIFY_QUEUE_NAME", "notifications"),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.AdminToken == "" {
		return nil, fmt.Errorf("ADMIN_TOKEN is required")
	}
	if emailEnabled && cfg.SMTPHost == "" {
		return nil, fmt.Errorf("SMTP_HOST is required when EMAIL_ENABLED is true")
	}
	if cfg.EmailEnabled && cfg.EmailFromAddress == "" {
		return nil, fmt.Errorf("EMAIL_FROM_ADDRESS is required when email is enabled")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}

func mustDuration(value string) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0
	}
	return d
}

func mustInt(value string) int {
	result, err := strconv.Atoi(value)
	if err != nil {
		return 0
	}
	return result
}

func mustFloat(value string) float64 {
	result, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0
	}
	return result
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	results := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			results = append(results, trimmed)
		}
	}
	return results
}

func containsWildcard(values []string) bool {
	for _, value := range values {
		if value == "*" {
			return true
		}
	}
	return false
}
