package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port             string
	Environment      string
	DatabaseURL      string
	PublicBaseURL    string
	JobTriggerSecret string
	ShareTokenSecret string

	DispatchInterval   time.Duration
	ReplyMatchInterval time.Duration
	StatsInterval      time.Duration

	ReplyLookbackDays       int
	ReplyMatchMinConfidence float64

	MaxSendAttempts  int
	RetryBackoffBase time.Duration
	RetryBackoffCap  time.Duration

	FollowupDeliveredNotOpenedMinutes int
	FollowupOpenedNotRepliedMinutes   int
	FollowupMinGapMinutes             int
}

func Load() *Config {
	// Load .env file if it exists
	_ = godotenv.Load()

	return &Config{
		Port:             getEnv("PORT", "8080"),
		Environment:      getEnv("ENVIRONMENT", "development"),
		DatabaseURL:      getEnv("DATABASE_URL", "host=localhost user=postgres password=postgres dbname=outreach port=5432 sslmode=disable"),
		PublicBaseURL:    getEnv("PUBLIC_BASE_URL", "http://localhost:8080"),
		JobTriggerSecret: getEnv("JOB_TRIGGER_SECRET", ""),
		ShareTokenSecret: getEnv("SHARE_TOKEN_SECRET", "change-me-in-production"),

		DispatchInterval:   getDurationEnv("DISPATCH_INTERVAL", 2*time.Minute),
		ReplyMatchInterval: getDurationEnv("REPLY_MATCH_INTERVAL", 10*time.Minute),
		StatsInterval:      getDurationEnv("STATS_INTERVAL", 15*time.Minute),

		ReplyLookbackDays:       getIntEnv("REPLY_LOOKBACK_DAYS", 7),
		ReplyMatchMinConfidence: getFloatEnv("REPLY_MATCH_MIN_CONFIDENCE", 0.5),

		MaxSendAttempts:  getIntEnv("MAX_SEND_ATTEMPTS", 3),
		RetryBackoffBase: getDurationEnv("RETRY_BACKOFF_BASE", 30*time.Minute),
		RetryBackoffCap:  getDurationEnv("RETRY_BACKOFF_CAP", 24*time.Hour),

		FollowupDeliveredNotOpenedMinutes: getIntEnv("FOLLOWUP_DELIVERED_NOT_OPENED_MINUTES", 4320),
		FollowupOpenedNotRepliedMinutes:   getIntEnv("FOLLOWUP_OPENED_NOT_REPLIED_MINUTES", 2880),
		FollowupMinGapMinutes:             getIntEnv("FOLLOWUP_MIN_GAP_MINUTES", 4320),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
