package config

import (
	"log/slog"
	"os"
	"strings"
)

// Config holds process-level configuration: store connection, model
// provider endpoints and credentials, and logging. Experiment-level
// settings live in RunConfig and come from a YAML file instead.
type Config struct {
	// SurrealDB connection
	SurrealDBURL       string
	SurrealDBNamespace string
	SurrealDBDatabase  string
	SurrealDBUser      string
	SurrealDBPass      string
	SurrealDBAuthLevel string

	// Model providers
	OllamaHost      string
	OpenAIAPIKey    string
	AnthropicAPIKey string
	AWSRegion       string

	// Logging
	LogFile  string
	LogLevel slog.Level
}

// Load reads configuration from environment variables, falling back to
// local-development defaults.
func Load() Config {
	return Config{
		SurrealDBURL:       getEnv("SURREALDB_URL", "ws://localhost:8000/rpc"),
		SurrealDBNamespace: getEnv("SURREALDB_NAMESPACE", "flowsim"),
		SurrealDBDatabase:  getEnv("SURREALDB_DATABASE", "experiments"),
		SurrealDBUser:      getEnv("SURREALDB_USER", "root"),
		SurrealDBPass:      getEnv("SURREALDB_PASS", "root"),
		SurrealDBAuthLevel: getEnv("SURREALDB_AUTH_LEVEL", "root"),

		OllamaHost:      getEnv("OLLAMA_HOST", "http://localhost:11434"),
		OpenAIAPIKey:    os.Getenv("OPENAI_API_KEY"),
		AnthropicAPIKey: os.Getenv("ANTHROPIC_API_KEY"),
		AWSRegion:       getEnv("AWS_REGION", "us-east-1"),

		LogFile:  getEnv("FLOWSIM_LOG_FILE", "/tmp/flowsim.log"),
		LogLevel: parseLogLevel(getEnv("FLOWSIM_LOG_LEVEL", "INFO")),
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
