// Package config loads application configuration from environment variables.
// All variables use the APPREND_ prefix.
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
	Server      ServerConfig
	Database    DatabaseConfig
	Cache       CacheConfig
	AI          AIConfig
	Log         LogConfig
	CatalogPath string
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port           int
	Host           string
	AllowedOrigins []string
}

// DatabaseConfig holds PostgreSQL connection settings. An empty URL disables analytics.
type DatabaseConfig struct {
	URL      string
	MaxConns int
	MinConns int
}

// CacheConfig holds Dragonfly/Redis connection settings. An empty URL keeps token
// budgets in memory.
type CacheConfig struct {
	URL string
}

// AIConfig holds the Gemini provider settings.
type AIConfig struct {
	Google  GoogleConfig
	Model   string
	Timeout time.Duration
	// BudgetTokens caps tokens per student; 0 means unlimited.
	BudgetTokens int
}

// GoogleConfig holds Google Gemini provider settings.
type GoogleConfig struct {
	APIKey  string
	BaseURL string
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string
	Format string
}

// Load reads configuration from environment variables with APPREND_ prefix.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:           envInt("APPREND_SERVER_PORT", 8080),
			Host:           envStr("APPREND_SERVER_HOST", "0.0.0.0"),
			AllowedOrigins: envList("APPREND_CORS_ORIGINS", []string{"http://localhost:5173"}),
		},
		Database: DatabaseConfig{
			URL:      envStr("APPREND_DATABASE_URL", ""),
			MaxConns: envInt("APPREND_DATABASE_MAX_CONNS", 10),
			MinConns: envInt("APPREND_DATABASE_MIN_CONNS", 1),
		},
		Cache: CacheConfig{
			URL: envStr("APPREND_CACHE_URL", ""),
		},
		AI: AIConfig{
			Google: GoogleConfig{
				APIKey:  envStr("APPREND_AI_GOOGLE_API_KEY", ""),
				BaseURL: envStr("APPREND_AI_GOOGLE_BASE_URL", ""),
			},
			Model:        envStr("APPREND_AI_MODEL", "gemini-2.5-flash"),
			Timeout:      envDuration("APPREND_AI_TIMEOUT", 60*time.Second),
			BudgetTokens: envInt("APPREND_AI_BUDGET_TOKENS", 0),
		},
		Log: LogConfig{
			Level:  envStr("APPREND_LOG_LEVEL", "info"),
			Format: envStr("APPREND_LOG_FORMAT", "json"),
		},
		CatalogPath: envStr("APPREND_CATALOG_PATH", ""),
	}

	return cfg, nil
}

// Validate checks ranges and enumerations. The API key is not required here: a
// missing key surfaces on the first AI call.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("APPREND_SERVER_PORT must be in 1..65535, got %d", c.Server.Port)
	}

	if c.AI.Timeout <= 0 {
		return fmt.Errorf("APPREND_AI_TIMEOUT must be positive, got %s", c.AI.Timeout)
	}

	if c.AI.BudgetTokens < 0 {
		return fmt.Errorf("APPREND_AI_BUDGET_TOKENS must not be negative, got %d", c.AI.BudgetTokens)
	}

	if c.Database.MinConns < 0 || c.Database.MaxConns < 1 || c.Database.MinConns > c.Database.MaxConns {
		return fmt.Errorf("invalid database pool size: min %d, max %d", c.Database.MinConns, c.Database.MaxConns)
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("APPREND_LOG_LEVEL must be debug, info, warn or error, got %q", c.Log.Level)
	}

	if c.Log.Format != "json" && c.Log.Format != "text" {
		return fmt.Errorf("APPREND_LOG_FORMAT must be 'json' or 'text', got %q", c.Log.Format)
	}

	return nil
}

// HasAIKey returns true if the Gemini API key is set.
func (c *Config) HasAIKey() bool {
	return c.AI.Google.APIKey != ""
}

// AnalyticsEnabled returns true if events should be written to PostgreSQL.
func (c *Config) AnalyticsEnabled() bool {
	return c.Database.URL != ""
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
