package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv(configPathEnv, "")
	t.Setenv(databaseDSNEnv, "")
	t.Setenv(openAIAPIKeyEnv, "")

	cfg := Load()

	if cfg.Pipeline.BatchSize != 40 {
		t.Fatalf("unexpected batch size %d", cfg.Pipeline.BatchSize)
	}
	if cfg.Pipeline.FinalN != 5 {
		t.Fatalf("unexpected final size %d", cfg.Pipeline.FinalN)
	}
	if cfg.Pipeline.MaxPerSource != 2 {
		t.Fatalf("unexpected per-source cap %d", cfg.Pipeline.MaxPerSource)
	}
	if cfg.Gateway.AckDeadline != 3*time.Second {
		t.Fatalf("unexpected ack deadline %v", cfg.Gateway.AckDeadline)
	}
	if cfg.Scheduler.Location().String() != "UTC" {
		t.Fatalf("unexpected timezone %s", cfg.Scheduler.Location())
	}
}

func TestLoadFileMergeAndEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	raw := `
database:
  dsn: postgres://file-dsn/digest
scheduler:
  cronExpression: "30 7 * * *"
pipeline:
  topK: 15
  seenTtlDays: 14
sinks:
  enabled: [airtable, archive]
`
	if err := os.WriteFile(path, []byte(raw), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv(configPathEnv, path)
	t.Setenv(databaseDSNEnv, "postgres://env-dsn/digest")
	t.Setenv(openAIAPIKeyEnv, "sk-test")

	cfg := Load()

	// Environment wins over the file.
	if cfg.Database.DSN != "postgres://env-dsn/digest" {
		t.Fatalf("unexpected dsn %s", cfg.Database.DSN)
	}
	if cfg.OpenAI.APIKey != "sk-test" {
		t.Fatalf("unexpected api key %s", cfg.OpenAI.APIKey)
	}

	// File wins over defaults.
	if cfg.Scheduler.CronExpression != "30 7 * * *" {
		t.Fatalf("unexpected cron %s", cfg.Scheduler.CronExpression)
	}
	if cfg.Pipeline.TopK != 15 {
		t.Fatalf("unexpected topK %d", cfg.Pipeline.TopK)
	}
	if cfg.Pipeline.SeenTTLDays != 14 {
		t.Fatalf("unexpected seen TTL %d", cfg.Pipeline.SeenTTLDays)
	}
	if len(cfg.Sinks.Enabled) != 2 {
		t.Fatalf("unexpected sinks %v", cfg.Sinks.Enabled)
	}

	// Untouched fields keep defaults.
	if cfg.Pipeline.BatchSize != 40 {
		t.Fatalf("default batch size lost: %d", cfg.Pipeline.BatchSize)
	}
}

func TestLoadBadTimezoneFallsBack(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	raw := "scheduler:\n  timezone: Mars/Olympus\n"
	if err := os.WriteFile(path, []byte(raw), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv(configPathEnv, path)

	cfg := Load()
	if cfg.Scheduler.Location().String() != "UTC" {
		t.Fatalf("expected UTC fallback, got %s", cfg.Scheduler.Location())
	}
}
