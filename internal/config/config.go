package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the process configuration. Values come from the environment,
// with an optional .env file for development.
type Config struct {
	ApiId    int32
	ApiHash  string
	TDataDir string

	MongoUri string
	MongoDb  string

	SentryDSN string
	Debug     bool

	AlbumDebounceWindow time.Duration
	ReconcileInterval   time.Duration

	HistoryPageSize int32
	HistoryRate     int

	SendRate       int
	MaxSendRetries int
}

func InitConfiguration() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on environment variables")
	}

	apiIdStr := getEnv("TELEGRAM_API_ID", "0")
	apiId, err := strconv.ParseInt(apiIdStr, 10, 32)
	if err != nil {
		return nil, fmt.Errorf("invalid TELEGRAM_API_ID: %w", err)
	}

	debug, _ := strconv.ParseBool(getEnv("DEBUG", "false"))

	cfg := &Config{
		ApiId:    int32(apiId),
		ApiHash:  getEnv("TELEGRAM_API_HASH", ""),
		TDataDir: getEnv("TDATA_DIR", "tdata"),

		MongoUri: getEnv("MONGODB_URI", ""),
		MongoDb:  getEnv("MONGODB_DATABASE", "autoforward"),

		SentryDSN: getEnv("SENTRY_DSN", ""),
		Debug:     debug,

		AlbumDebounceWindow: getDurationEnv("ALBUM_DEBOUNCE_MS", 1500) * time.Millisecond,
		ReconcileInterval:   getDurationEnv("RECONCILE_INTERVAL_SEC", 5) * time.Second,

		HistoryPageSize: int32(getIntEnv("HISTORY_PAGE_SIZE", 50)),
		HistoryRate:     getIntEnv("HISTORY_RATE", 1),

		SendRate:       getIntEnv("SEND_RATE", 10),
		MaxSendRetries: getIntEnv("MAX_SEND_RETRIES", 3),
	}

	if cfg.ApiId == 0 {
		return nil, fmt.Errorf("TELEGRAM_API_ID is required")
	}
	if cfg.ApiHash == "" {
		return nil, fmt.Errorf("TELEGRAM_API_HASH is required")
	}
	if cfg.MongoUri == "" {
		return nil, fmt.Errorf("MONGODB_URI is required")
	}
	if cfg.SentryDSN == "" {
		log.Println("Warning: SENTRY_DSN is not set. Error tracking disabled.")
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	v, err := strconv.Atoi(getEnv(key, strconv.Itoa(defaultValue)))
	if err != nil {
		return defaultValue
	}
	return v
}

func getDurationEnv(key string, defaultValue int) time.Duration {
	return time.Duration(getIntEnv(key, defaultValue))
}
