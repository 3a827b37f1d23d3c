package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	apperrors "github.com/mohitpaddhariya/mcp-chat-client/pkg/errors"
)

// Config holds all application configuration
type Config struct {
	// App
	Port string
	Env  string

	// AI
	LiteLLMURL       string
	ModelID          string
	OpenRouterAPIKey string

	// MCP
	FilesystemAllowedPath string

	// Agent turn limits
	ToolOutputLimit int // max bytes of tool output carried in a tool_end event
	MaxToolTurns    int
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Try to load .env file, but don't fail if it doesn't exist
	_ = godotenv.Load()

	cfg := &Config{
		Port:                  getEnv("PORT", "8080"),
		Env:                   getEnv("ENV", "development"),
		LiteLLMURL:            getEnv("LITELLM_URL", "http://localhost:4000"),
		ModelID:               getEnv("MODEL_ID", "openrouter/google/gemini-2.0-flash-001"),
		OpenRouterAPIKey:      getEnv("OPENROUTER_API_KEY", ""),
		FilesystemAllowedPath: getEnv("FILESYSTEM_ALLOWED_PATH", defaultAllowedPath()),
		ToolOutputLimit:       getEnvInt("TOOL_OUTPUT_LIMIT", 500),
		MaxToolTurns:          getEnvInt("MAX_TOOL_TURNS", 5),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks that required configuration values are set
func (c *Config) Validate() error {
	if c.LiteLLMURL == "" {
		return apperrors.NewConfigMissingRequired("LITELLM_URL")
	}
	if c.ModelID == "" {
		return apperrors.NewConfigMissingRequired("MODEL_ID")
	}
	if c.FilesystemAllowedPath == "" {
		return apperrors.NewConfigMissingRequired("FILESYSTEM_ALLOWED_PATH")
	}
	if c.ToolOutputLimit <= 0 {
		return apperrors.NewConfigValidationFailed("TOOL_OUTPUT_LIMIT", "must be positive")
	}
	if c.MaxToolTurns <= 0 {
		return apperrors.NewConfigValidationFailed("MAX_TOOL_TURNS", "must be positive")
	}
	// OpenRouter API key is optional; LiteLLM accepts a dummy key
	return nil
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func defaultAllowedPath() string {
	if home, err := os.UserHomeDir(); err == nil && home != "" {
		return home
	}
	return "/tmp"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var result int
		if _, err := fmt.Sscanf(value, "%d", &result); err == nil {
			return result
		}
	}
	return defaultValue
}
