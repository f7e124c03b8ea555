// Copyright 2025 LingoPilot
// SPDX-License-Identifier: BUSL-1.1

package practice

import (
	"os"
	"strconv"

	"lingopilot/platform/practice/limiter"
)

// Config holds the practice service configuration, loaded from the
// environment
type Config struct {
	Port        string
	DatabaseURL string
	RedisURL    string
	JWTSecret   string

	OpenAIAPIKey      string
	AzureSpeechKey    string
	AzureSpeechRegion string
	BillingAPIKey     string

	// UseMockProviders forces the mock chat/speech/billing implementations
	// regardless of configured credentials
	UseMockProviders bool

	// MonthlyCap is the margin-guard ceiling in usage units
	MonthlyCap int

	// MaxAudioBytes bounds the uploaded audio payload
	MaxAudioBytes int64
}

// DefaultMaxAudioBytes caps a 30s recording with generous headroom
const DefaultMaxAudioBytes = 2 << 20 // 2 MiB

// LoadConfig reads configuration from environment variables
func LoadConfig() Config {
	return Config{
		Port:              getEnv("PORT", "8080"),
		DatabaseURL:       os.Getenv("DATABASE_URL"),
		RedisURL:          os.Getenv("REDIS_URL"),
		JWTSecret:         os.Getenv("JWT_SECRET"),
		OpenAIAPIKey:      os.Getenv("OPENAI_API_KEY"),
		AzureSpeechKey:    os.Getenv("AZURE_SPEECH_KEY"),
		AzureSpeechRegion: os.Getenv("AZURE_SPEECH_REGION"),
		BillingAPIKey:     os.Getenv("BILLING_API_KEY"),
		UseMockProviders:  os.Getenv("PRACTICE_USE_MOCK_PROVIDERS") == "true",
		MonthlyCap:        getEnvInt("PRACTICE_MONTHLY_CAP", limiter.DefaultMonthlyCap),
		MaxAudioBytes:     int64(getEnvInt("PRACTICE_MAX_AUDIO_BYTES", DefaultMaxAudioBytes)),
	}
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}
