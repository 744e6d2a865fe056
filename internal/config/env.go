package config

import (
	"os"
	"strconv"
)

// FromEnv overlays BATCHRUN_* environment variables onto cfg. Unparsable
// values are ignored.
func FromEnv(cfg *Config) {
	envInt("BATCHRUN_WORKER_COUNT", &cfg.WorkerCount)
	envInt("BATCHRUN_MAX_RETRIES", &cfg.MaxRetries)
	envFloat("BATCHRUN_BACKOFF_SECONDS", &cfg.BackoffSeconds)
	if v := os.Getenv("BATCHRUN_BACKOFF"); v != "" {
		cfg.Backoff = v
	}
	envFloat("BATCHRUN_MAX_BACKOFF_SECONDS", &cfg.MaxBackoffSeconds)
	envInt("BATCHRUN_BATCH_SIZE", &cfg.BatchSize)
	envInt("BATCHRUN_QUEUE_HEADROOM_MULTIPLIER", &cfg.QueueHeadroom)
	envFloat("BATCHRUN_RATE_LIMIT", &cfg.RateLimit)
	envInt("BATCHRUN_RATE_BURST", &cfg.RateBurst)
	if v := os.Getenv("BATCHRUN_CPU_AFFINITY"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.CPUAffinity = b
		}
	}
	if v := os.Getenv("BATCHRUN_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
}

func envInt(key string, dst *int) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envFloat(key string, dst *float64) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}
