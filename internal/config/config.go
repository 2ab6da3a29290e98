// Package config provides configuration management for the pagelift service.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the pagelift service.
type Config struct {
	// Server settings
	Port        int
	LogLevel    string
	CORSOrigins []string
	RateLimit   int // requests per minute per IP

	// LLM settings
	LLMProvider    string // anthropic, openai, ollama
	LLMAPIKey      string
	LLMModel       string
	LLMBaseURL     string
	IntentModel    string // fast model for strategy classification
	LLMMaxTokens   int
	LLMTemperature float64

	// Fetch settings
	FetchTimeout        time.Duration
	MaxAttempts         int
	BackoffBase         time.Duration
	RequestBudget       time.Duration // covers the whole attempt loop
	DomainConcurrency   int           // concurrent fetches per domain
	ExtraJSHeavyDomains []string      // appended to the built-in full-settle table

	// Browser settings
	ChromePath      string
	BrowserPoolSize int
	BrowserMaxAge   time.Duration
}

// Load creates a Config from environment variables with sensible defaults.
func Load() *Config {
	return &Config{
		Port:        getEnvInt("PORT", 8090),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		CORSOrigins: getEnvList("CORS_ORIGINS", []string{"*"}),
		RateLimit:   getEnvInt("RATE_LIMIT", 60),

		LLMProvider:    getEnv("LLM_PROVIDER", "anthropic"),
		LLMAPIKey:      getEnv("LLM_API_KEY", ""),
		LLMModel:       getEnv("LLM_MODEL", "claude-sonnet-4-5"),
		LLMBaseURL:     getEnv("LLM_BASE_URL", ""),
		IntentModel:    getEnv("INTENT_MODEL", "claude-3-5-haiku-latest"),
		LLMMaxTokens:   getEnvInt("LLM_MAX_TOKENS", 8192),
		LLMTemperature: getEnvFloat("LLM_TEMPERATURE", 0.0),

		FetchTimeout:        getEnvDuration("FETCH_TIMEOUT", 30*time.Second),
		MaxAttempts:         getEnvInt("MAX_ATTEMPTS", 3),
		BackoffBase:         getEnvDuration("BACKOFF_BASE", 1*time.Second),
		RequestBudget:       getEnvDuration("REQUEST_BUDGET", 3*time.Minute),
		DomainConcurrency:   getEnvInt("DOMAIN_CONCURRENCY", 1),
		ExtraJSHeavyDomains: getEnvList("JS_HEAVY_DOMAINS", nil),

		ChromePath:      getEnv("CHROME_PATH", ""),
		BrowserPoolSize: getEnvInt("BROWSER_POOL_SIZE", 3),
		BrowserMaxAge:   getEnvDuration("BROWSER_MAX_AGE", 30*time.Minute),
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
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}

func getEnvList(key string, defaultVal []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	parts := strings.Split(val, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return defaultVal
	}
	return out
}
