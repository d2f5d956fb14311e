// Package config provides configuration for the assistant service.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the service configuration.
type Config struct {
	// Server settings
	HTTPPort int

	// Database
	DatabaseURL string

	// Model backend (OpenAI-compatible, e.g. OpenRouter)
	LLMBaseURL string
	LLMAPIKey  string
	LLMTimeout time.Duration

	// Agent models
	IntakeModel     string
	SpecialistModel string
	VisionModel     string

	// Context assembly
	MessageBufferSize int
	MaxToolTurns      int
}

// Load loads configuration from the environment, reading a .env file
// when present.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		HTTPPort:          getEnvInt("HTTP_PORT", 5000),
		DatabaseURL:       getEnv("DATABASE_URL", "file:medical_app.db?cache=shared&mode=rwc"),
		LLMBaseURL:        getEnv("OPENROUTER_BASE_URL", "https://openrouter.ai/api/v1"),
		LLMAPIKey:         getEnv("OPENROUTER_API_KEY", ""),
		LLMTimeout:        time.Duration(getEnvInt("LLM_TIMEOUT_MS", 120000)) * time.Millisecond,
		IntakeModel:       getEnv("INTAKE_MODEL", "openai/gpt-4o-mini"),
		SpecialistModel:   getEnv("SPECIALIST_MODEL", "openai/chatgpt-4o-latest"),
		VisionModel:       getEnv("VISION_MODEL", "openai/gpt-4o"),
		MessageBufferSize: getEnvInt("MESSAGE_BUFFER_SIZE", 10),
		MaxToolTurns:      getEnvInt("MAX_TOOL_TURNS", 5),
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			return intVal
		}
	}
	return defaultVal
}
