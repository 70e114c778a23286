package config

import (
	"log/slog"
	"os"
	"strings"
)

// Config is process-level configuration from the environment. Story-specific
// settings live in the scenario file; these are operator concerns.
type Config struct {
	Environment string
	LogLevel    slog.Level

	// OllamaURL overrides the scenario's ollama_url when set. Useful when
	// the same story files are played against different hosts.
	OllamaURL string
}

func Load() *Config {
	return &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		LogLevel:    parseLogLevel(getEnv("LOG_LEVEL", "info")),
		OllamaURL:   os.Getenv("OLLAMA_URL"),
	}
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
