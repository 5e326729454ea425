// Package config provides application configuration loaded from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	App       AppConfig
	Session   SessionConfig
	Mail      MailConfig
	Redis     RedisConfig
	RateLimit RateLimitConfig
	Bootstrap BootstrapConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port         string
	ReadTimeout  int // seconds
	WriteTimeout int // seconds
	IdleTimeout  int // seconds
	// TrustProxy makes the client IP come from X-Forwarded-For.
	TrustProxy bool
}

// DatabaseConfig holds the database connection settings.
type DatabaseConfig struct {
	// Driver is "postgres" or "sqlite".
	Driver   string
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
	// Path is the SQLite file (or ":memory:") when Driver is sqlite.
	Path string
}

// AppConfig holds application-level settings.
type AppConfig struct {
	Dev        bool
	Migrations bool
	// BaseURL prefixes the links sent by email.
	BaseURL  string
	LogLevel string
}

// SessionConfig holds session and one-time token lifetimes.
type SessionConfig struct {
	TTL            time.Duration
	ResetTTL       time.Duration
	EmailChangeTTL time.Duration
	SecureCookie   bool
	CacheSize      int
	BcryptCost     int
	PruneInterval  time.Duration
}

// MailConfig holds SMTP settings. An empty Host selects the log mailer.
type MailConfig struct {
	Host       string
	Port       int
	User       string
	Password   string
	From       string
	FromName   string
	SkipVerify bool
}

// RedisConfig selects the shared rate limiter when Addr is set.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// RateLimitConfig bounds form submissions per client.
type RateLimitConfig struct {
	Limit  int
	Window time.Duration
}

// BootstrapConfig creates a first admin account at seed time.
type BootstrapConfig struct {
	AdminEmail    string
	AdminPassword string
	AdminName     string
}

// DSN returns the PostgreSQL connection string in key=value format.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode,
	)
}

// URL returns the PostgreSQL connection string in URL format.
func (d DatabaseConfig) URL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

// Load reads configuration from environment variables.
// It uses sensible defaults for local development.
func Load() *Config {
	dev := getEnvBool("DEV", true)
	return &Config{
		Server: ServerConfig{
			Port:         getEnv("PORT", "8080"),
			ReadTimeout:  getEnvInt("SERVER_READ_TIMEOUT", 15),
			WriteTimeout: getEnvInt("SERVER_WRITE_TIMEOUT", 15),
			IdleTimeout:  getEnvInt("SERVER_IDLE_TIMEOUT", 60),
			TrustProxy:   getEnvBool("TRUST_PROXY", false),
		},
		Database: DatabaseConfig{
			Driver:   getEnv("DB_DRIVER", "postgres"),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "ioea"),
			Password: getEnv("DB_PASSWORD", "ioea"),
			DBName:   getEnv("DB_NAME", "ioea"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
			Path:     getEnv("DB_PATH", "ioea.db"),
		},
		App: AppConfig{
			Dev:        dev,
			Migrations: getEnvBool("MIGRATIONS", false),
			BaseURL:    strings.TrimRight(getEnv("BASE_URL", "http://localhost:8080"), "/"),
			LogLevel:   getEnv("LOG_LEVEL", "info"),
		},
		Session: SessionConfig{
			TTL:            getEnvDuration("SESSION_TTL", 24*time.Hour),
			ResetTTL:       getEnvDuration("RESET_TOKEN_TTL", time.Hour),
			EmailChangeTTL: getEnvDuration("EMAIL_CHANGE_TTL", 24*time.Hour),
			SecureCookie:   getEnvBool("SECURE_COOKIE", !dev),
			CacheSize:      getEnvInt("SESSION_CACHE_SIZE", 10000),
			BcryptCost:     getEnvInt("BCRYPT_COST", 12),
			PruneInterval:  getEnvDuration("SESSION_PRUNE_INTERVAL", time.Hour),
		},
		Mail: MailConfig{
			Host:       getEnv("SMTP_HOST", ""),
			Port:       getEnvInt("SMTP_PORT", 587),
			User:       getEnv("SMTP_USER", ""),
			Password:   getEnv("SMTP_PASSWORD", ""),
			From:       getEnv("SMTP_FROM_EMAIL", "noreply@ioea.eu"),
			FromName:   getEnv("SMTP_FROM_NAME", "IOEA Team"),
			SkipVerify: getEnv("SMTP_REJECT_UNAUTHORIZED", "true") == "false",
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		RateLimit: RateLimitConfig{
			Limit:  getEnvInt("RATE_LIMIT", 5),
			Window: getEnvDuration("RATE_LIMIT_WINDOW", 15*time.Minute),
		},
		Bootstrap: BootstrapConfig{
			AdminEmail:    getEnv("ADMIN_EMAIL", ""),
			AdminPassword: getEnv("ADMIN_PASSWORD", ""),
			AdminName:     getEnv("ADMIN_NAME", "Administrator"),
		},
	}
}

// getEnv returns the value of an environment variable or a default.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt returns the integer value of an environment variable or a default.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

// getEnvBool returns the boolean value of an environment variable or a default.
// Accepts "1", "true", "yes" as true; everything else is false.
func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value == "1" || value == "true" || value == "yes"
}

// getEnvDuration parses a Go duration ("15m", "24h") or falls back to the default.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil && d > 0 {
			return d
		}
	}
	return defaultValue
}
