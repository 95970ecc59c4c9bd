package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DATA_DIR", "")
	t.Setenv("COLLECT_WORKERS", "")
	t.Setenv("NATS_SUBJECT", "")
	t.Setenv("POSTGRES_DSN", "")

	cfg := Load()
	if cfg.DataDir != "./data/datasets" {
		t.Fatalf("expected default data dir, got %q", cfg.DataDir)
	}
	if cfg.CollectWorkers != 1 {
		t.Fatalf("expected sequential collection by default, got %d", cfg.CollectWorkers)
	}
	if cfg.NATSSubject != "pipeline.city.requested" {
		t.Fatalf("expected default subject, got %q", cfg.NATSSubject)
	}
	if cfg.PostgresDSN != "" {
		t.Fatalf("expected postgres disabled by default, got %q", cfg.PostgresDSN)
	}
}

func TestLoadParsesOverrides(t *testing.T) {
	t.Setenv("COLLECT_WORKERS", "4")
	t.Setenv("API_RATE_LIMIT_RPS", "not-a-number")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")

	cfg := Load()
	if cfg.CollectWorkers != 4 {
		t.Fatalf("expected 4 workers, got %d", cfg.CollectWorkers)
	}
	if cfg.APIRateLimitRPS != 20 {
		t.Fatalf("expected fallback rps on parse error, got %d", cfg.APIRateLimitRPS)
	}
	if cfg.RedisURL != "redis://localhost:6379/0" {
		t.Fatalf("expected redis url override, got %q", cfg.RedisURL)
	}
}
