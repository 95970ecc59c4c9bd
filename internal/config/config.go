package config

import (
	"os"
	"strconv"
)

type Config struct {
	APIPort  string
	LogLevel string

	DataDir            string
	PipelineConfigPath string

	PostgresDSN string

	RedisURL                string
	BoundaryCacheTTLMinutes int

	NATSURL     string
	NATSSubject string

	CollectWorkers int
	ScanProcs      int

	APIRateLimitRPS   int
	APIRateLimitBurst int
	APIMaxInFlight    int
	APIOverloadWaitMS int

	WorkerMetricsPort string

	RetryMaxAttempts      int
	RetryInitialBackoffMS int
	BreakerOpenTimeoutSec int
}

func Load() Config {
	return Config{
		APIPort:  mustEnv("API_PORT", "8080"),
		LogLevel: mustEnv("LOG_LEVEL", "info"),

		DataDir:            mustEnv("DATA_DIR", "./data/datasets"),
		PipelineConfigPath: mustEnv("PIPELINE_CONFIG", "./config/pipeline.yaml"),

		PostgresDSN: mustEnv("POSTGRES_DSN", ""),

		RedisURL:                mustEnv("REDIS_URL", ""),
		BoundaryCacheTTLMinutes: mustEnvInt("BOUNDARY_CACHE_TTL_MINUTES", 24*60),

		NATSURL:     mustEnv("NATS_URL", "nats://localhost:4222"),
		NATSSubject: mustEnv("NATS_SUBJECT", "pipeline.city.requested"),

		CollectWorkers: mustEnvInt("COLLECT_WORKERS", 1),
		ScanProcs:      mustEnvInt("SCAN_PROCS", 4),

		APIRateLimitRPS:   mustEnvInt("API_RATE_LIMIT_RPS", 20),
		APIRateLimitBurst: mustEnvInt("API_RATE_LIMIT_BURST", 40),
		APIMaxInFlight:    mustEnvInt("API_MAX_IN_FLIGHT", 64),
		APIOverloadWaitMS: mustEnvInt("API_OVERLOAD_WAIT_MS", 250),

		WorkerMetricsPort: mustEnv("WORKER_METRICS_PORT", "9090"),

		RetryMaxAttempts:      mustEnvInt("RETRY_MAX_ATTEMPTS", 3),
		RetryInitialBackoffMS: mustEnvInt("RETRY_INITIAL_BACKOFF_MS", 100),
		BreakerOpenTimeoutSec: mustEnvInt("BREAKER_OPEN_TIMEOUT_SEC", 30),
	}
}

func mustEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func mustEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
