// Package config provides configuration for the guardchat gateway.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds the gateway configuration.
type Config struct {
	// Server settings
	HTTPPort int

	// Agent platform settings
	ProjectEndpoint string
	ProjectAPIKey   string

	// Agent names
	WorkflowName       string
	GuardrailAgentName string

	// Timeouts
	GuardrailTimeout time.Duration
	WorkflowTimeout  time.Duration
	CleanupTimeout   time.Duration

	// Timing trace storage
	TimingDatabaseURL string

	// Logging
	LogLevel string
}

// Load loads configuration from environment variables.
func Load() *Config {
	cfg := &Config{
		HTTPPort:           getEnvInt("HTTP_PORT", 8080),
		ProjectEndpoint:    getEnv("PROJECT_ENDPOINT", "http://localhost:9090"),
		ProjectAPIKey:      getEnv("PROJECT_API_KEY", ""),
		WorkflowName:       getEnv("WORKFLOW_NAME", "purple-workflow"),
		GuardrailAgentName: getEnv("GUARDRAIL_AGENT_NAME", "guardrail-agent"),
		GuardrailTimeout:   time.Duration(getEnvInt("GUARDRAIL_TIMEOUT_MS", 30000)) * time.Millisecond,
		WorkflowTimeout:    time.Duration(getEnvInt("WORKFLOW_TIMEOUT_MS", 300000)) * time.Millisecond,
		CleanupTimeout:     time.Duration(getEnvInt("CLEANUP_TIMEOUT_MS", 30000)) * time.Millisecond,
		TimingDatabaseURL:  getEnv("TIMING_DATABASE_URL", "file:guardchat.db?cache=shared&mode=rwc"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
	}
	return cfg
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
