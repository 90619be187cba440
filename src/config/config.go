package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"wab/src/types"
)

func GetDSN() string {
	DATABASE_HOST := os.Getenv("DATABASE_HOST")
	DATABASE_PORT := os.Getenv("DATABASE_PORT")
	DATABASE_SSLMODE := os.Getenv("DATABASE_SSLMODE")
	DATABASE_TIMEZONE := os.Getenv("DATABASE_TIMEZONE")
	DATABASE_USER := os.Getenv("DATABASE_USER")
	DATABASE_PASSWORD := os.Getenv("DATABASE_PASSWORD")
	DATABASE_NAME := os.Getenv("DATABASE_NAME")
	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=%s", DATABASE_HOST, DATABASE_USER, DATABASE_PASSWORD, DATABASE_NAME, DATABASE_PORT, DATABASE_SSLMODE, DATABASE_TIMEZONE)
	return dsn
}

const TIME_PARSE_FORMAT = "2006-01-02 15:04:05 -07:00"

func getDurationEnv(key string, fallback time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		log.Printf("Invalid duration for %s=%q, using default %s\n", key, raw, fallback)
		return fallback
	}
	return d
}

func getIntEnv(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		log.Printf("Invalid integer for %s=%q, using default %d\n", key, raw, fallback)
		return fallback
	}
	return n
}

// HoldDuration is how long a Held reservation keeps its slots before the
// sweeper may reclaim them.
func HoldDuration() time.Duration {
	return getDurationEnv("HOLD_DURATION", 1*time.Hour)
}

// IdempotencyRetention is how long a cached idempotent response stays
// replayable.
func IdempotencyRetention() time.Duration {
	return getDurationEnv("IDEMPOTENCY_RETENTION", 24*time.Hour)
}

// LoadSweeperConfig builds the sweeper's tuning knobs from the
// environment. Nothing here is hard-coded into the sweep algorithm.
func LoadSweeperConfig() types.SweeperConfig {
	return types.SweeperConfig{
		CleanupInterval:            getDurationEnv("CLEANUP_INTERVAL", 1*time.Minute),
		ErrorRetryInterval:         getDurationEnv("ERROR_RETRY_INTERVAL", 15*time.Second),
		HoldGracePeriod:            getDurationEnv("HOLD_GRACE_PERIOD", 2*time.Minute),
		PaymentCallbackGracePeriod: getDurationEnv("PAYMENT_CALLBACK_GRACE_PERIOD", 15*time.Minute),
		IdempotencyRetention:       IdempotencyRetention(),
		SweepBatchSize:             getIntEnv("SWEEP_BATCH_SIZE", 100),
	}
}
