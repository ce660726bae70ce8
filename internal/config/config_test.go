package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DIAGNOAI_SECURITY_JWTSECRET", "test-secret")
	t.Setenv("DIAGNOAI_MODELS_BASEURL", "http://models:8501")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Quota.FreeLimit != 6 || cfg.Quota.PremiumLimit != 20 {
		t.Errorf("quota limits = %d/%d, want 6/20", cfg.Quota.FreeLimit, cfg.Quota.PremiumLimit)
	}
	if cfg.Subscription.Duration != 24*time.Hour {
		t.Errorf("Subscription.Duration = %v, want 24h", cfg.Subscription.Duration)
	}
	if cfg.Models.Timeout != 20*time.Second || cfg.Quota.Timeout != 5*time.Second {
		t.Errorf("timeouts = %v/%v", cfg.Models.Timeout, cfg.Quota.Timeout)
	}
	if cfg.Storage.BucketStudies != "diagnoai-studies" {
		t.Errorf("BucketStudies = %q", cfg.Storage.BucketStudies)
	}
	if cfg.HTTP.MaxUploadBytes != 20<<20 {
		t.Errorf("MaxUploadBytes = %d", cfg.HTTP.MaxUploadBytes)
	}
	if cfg.Security.JWTSecret != "test-secret" || cfg.Models.BaseURL != "http://models:8501" {
		t.Errorf("environment overrides not applied: %+v %+v", cfg.Security, cfg.Models)
	}
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	t.Setenv("DIAGNOAI_SECURITY_JWTSECRET", "test-secret")
	t.Setenv("DIAGNOAI_MODELS_BASEURL", "http://models:8501")
	t.Setenv("DIAGNOAI_QUOTA_FREELIMIT", "3")
	t.Setenv("DIAGNOAI_RATELIMIT_WINDOW", "30s")
	t.Setenv("DIAGNOAI_ALLOWCORSORIGINS", "https://a.example,https://b.example")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Quota.FreeLimit != 3 {
		t.Errorf("FreeLimit = %d, want 3", cfg.Quota.FreeLimit)
	}
	if cfg.RateLimit.Window != 30*time.Second {
		t.Errorf("RateLimit.Window = %v, want 30s", cfg.RateLimit.Window)
	}
	if len(cfg.AllowCORSOrigins) != 2 || cfg.AllowCORSOrigins[1] != "https://b.example" {
		t.Errorf("AllowCORSOrigins = %v", cfg.AllowCORSOrigins)
	}
}

func TestLoadRequiresSecrets(t *testing.T) {
	_, err := Load()
	if err == nil {
		t.Fatal("expected validation error without a jwt secret")
	}
	for _, key := range []string{"security.jwtsecret", "models.baseurl"} {
		if !strings.Contains(err.Error(), key) {
			t.Errorf("error %q does not mention %s", err, key)
		}
	}
}

func TestLoadWorkerDefaults(t *testing.T) {
	t.Setenv("DIAGNOAI_WORKER_POSTGRES_DSN", "postgres://localhost/diagnoai")

	cfg, err := LoadWorker()
	if err != nil {
		t.Fatalf("LoadWorker() error = %v", err)
	}
	if cfg.Redis.Stream != "diagnoai:jobs" || cfg.Redis.Group != "diagnoai-workers" {
		t.Errorf("redis = %+v", cfg.Redis)
	}
	if cfg.Retention.StudyTTL != 90*24*time.Hour || cfg.Retention.BatchSize != 200 {
		t.Errorf("retention = %+v", cfg.Retention)
	}
	if cfg.Postgres.DSN != "postgres://localhost/diagnoai" {
		t.Errorf("Postgres.DSN = %q", cfg.Postgres.DSN)
	}
}
