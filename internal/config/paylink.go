package config

import (
	"os"
	"strconv"
	"time"
)

type PayLinkConfig struct {
	DefaultExpiry       time.Duration
	MaxExpiryHours      int
	MaxPayAttempts      int
	PayAttemptWindow    time.Duration
	PublicBaseURL       string
	QRSize              int
	MaxDescriptionChars int
}

func LoadPayLinkConfig() *PayLinkConfig {
	return &PayLinkConfig{
		DefaultExpiry:       getEnvAsDuration("PAYLINK_DEFAULT_EXPIRY", 24*time.Hour),
		MaxExpiryHours:      getEnvAsInt("PAYLINK_MAX_EXPIRY_HOURS", 24*30),
		MaxPayAttempts:      getEnvAsInt("PAYLINK_MAX_PAY_ATTEMPTS", 10),
		PayAttemptWindow:    getEnvAsDuration("PAYLINK_PAY_ATTEMPT_WINDOW", 10*time.Minute),
		PublicBaseURL:       getEnv("PAYLINK_PUBLIC_BASE_URL", "https://app.vaultpay.io"),
		QRSize:              getEnvAsInt("PAYLINK_QR_SIZE", 256),
		MaxDescriptionChars: getEnvAsInt("PAYLINK_MAX_DESCRIPTION", 280),
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if duration, err := time.ParseDuration(val); err == nil {
			return duration
		}
	}
	return defaultVal
}
