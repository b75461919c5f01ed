package core

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config represents the main configuration for lmswatch
type Config struct {
	Discord  DiscordConfig  `json:"discord"`
	Portal   PortalConfig   `json:"portal"`
	Database DatabaseConfig `json:"database"`
	Poll     PollConfig     `json:"poll"`
	Server   ServerConfig   `json:"server"`
}

// DiscordConfig contains chat-platform configuration
type DiscordConfig struct {
	Token         string `json:"token"`
	OwnerID       string `json:"owner_id"`
	CommandPrefix string `json:"command_prefix"`
}

// PortalConfig contains LMS portal configuration
type PortalConfig struct {
	BaseURL      string        `json:"base_url"`
	FetchTimeout time.Duration `json:"fetch_timeout"`
}

// DatabaseConfig contains database-related configuration
type DatabaseConfig struct {
	Path    string `json:"path"`
	KeyPath string `json:"key_path"`
}

// PollConfig contains poll cycle configuration
type PollConfig struct {
	InitialDelay    time.Duration `json:"initial_delay"`
	Interval        time.Duration `json:"interval"`
	MaxConcurrent   int           `json:"max_concurrent"`
	ViewWindowWeeks int           `json:"view_window_weeks"`
}

// ServerConfig contains ops HTTP server configuration
type ServerConfig struct {
	Addr string `json:"addr"`
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	config := &Config{
		Discord: DiscordConfig{
			Token:         getEnvOrDefault("LMSWATCH_DISCORD_TOKEN", ""),
			OwnerID:       getEnvOrDefault("LMSWATCH_OWNER_ID", ""),
			CommandPrefix: getEnvOrDefault("LMSWATCH_COMMAND_PREFIX", "!"),
		},
		Portal: PortalConfig{
			BaseURL:      getEnvOrDefault("LMSWATCH_PORTAL_URL", ""),
			FetchTimeout: getEnvAsDuration("LMSWATCH_FETCH_TIMEOUT", 30*time.Second),
		},
		Database: DatabaseConfig{
			Path:    getEnvOrDefault("LMSWATCH_DB_PATH", "./users.db"),
			KeyPath: getEnvOrDefault("LMSWATCH_KEY_PATH", "./encryption_key.key"),
		},
		Poll: PollConfig{
			InitialDelay:    getEnvAsDuration("LMSWATCH_POLL_INITIAL_DELAY", 60*time.Second),
			Interval:        getEnvAsDuration("LMSWATCH_POLL_INTERVAL", 30*time.Minute),
			MaxConcurrent:   getEnvAsInt("LMSWATCH_POLL_MAX_CONCURRENT", 4),
			ViewWindowWeeks: getEnvAsInt("LMSWATCH_VIEW_WINDOW_WEEKS", 4),
		},
		Server: ServerConfig{
			Addr: getEnvOrDefault("LMSWATCH_SERVER_ADDR", ":4000"),
		},
	}

	// Validate required configuration
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Discord.Token == "" {
		return fmt.Errorf("discord token is required")
	}

	if c.Portal.BaseURL == "" {
		return fmt.Errorf("portal base URL is required")
	}

	if !strings.HasPrefix(c.Portal.BaseURL, "http") {
		return fmt.Errorf("invalid portal base URL: %s", c.Portal.BaseURL)
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database path is required")
	}

	if c.Database.KeyPath == "" {
		return fmt.Errorf("encryption key path is required")
	}

	if c.Poll.Interval <= 0 {
		return fmt.Errorf("invalid poll interval: %v", c.Poll.Interval)
	}

	if c.Poll.MaxConcurrent < 1 {
		return fmt.Errorf("invalid max concurrent polls: %d", c.Poll.MaxConcurrent)
	}

	if c.Poll.ViewWindowWeeks < 1 || c.Poll.ViewWindowWeeks > 4 {
		return fmt.Errorf("view window must be between 1 and 4 weeks, got %d", c.Poll.ViewWindowWeeks)
	}

	return nil
}

// Helper functions for environment variable parsing
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
