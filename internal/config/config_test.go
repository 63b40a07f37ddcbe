package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := Default()
	if cfg.Store.Backend != "sqlite" {
		t.Errorf("expected sqlite, got %s", cfg.Store.Backend)
	}
	if cfg.Cache.MaxSize != 500 || cfg.Cache.TTLSeconds != 300 {
		t.Errorf("cache defaults = %+v", cfg.Cache)
	}
	if cfg.Ingest.ChunkSize != 500 || cfg.Ingest.ChunkOverlap != 50 {
		t.Errorf("ingest defaults = %+v", cfg.Ingest)
	}
	if cfg.Memory.MinFactConfidence != 0.7 || cfg.Memory.MinEpisodeConfidence != 0.6 {
		t.Errorf("memory defaults = %+v", cfg.Memory)
	}
	if cfg.Memory.DeduplicationMode != "per_day" {
		t.Errorf("dedup mode = %s", cfg.Memory.DeduplicationMode)
	}
	if cfg.Embedding.Dimensions != 384 {
		t.Errorf("expected 384, got %d", cfg.Embedding.Dimensions)
	}
	if cfg.Authority.Symbolic != 1.0 {
		t.Errorf("authority defaults = %+v", cfg.Authority)
	}
}

func TestLoadFromTOML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.toml")
	os.WriteFile(path, []byte(`
data_root = "/var/lib/recall"

[cache]
max_size = 50

[memory]
deduplication_mode = "global"
`), 0644)

	cfg := Load(path)
	if cfg.DataRoot != "/var/lib/recall" {
		t.Errorf("data_root = %s", cfg.DataRoot)
	}
	if cfg.Cache.MaxSize != 50 {
		t.Errorf("cache.max_size = %d", cfg.Cache.MaxSize)
	}
	if cfg.Memory.DeduplicationMode != "global" {
		t.Errorf("dedup mode = %s", cfg.Memory.DeduplicationMode)
	}
	// Defaults preserved
	if cfg.Cache.TTLSeconds != 300 {
		t.Errorf("ttl default lost, got %d", cfg.Cache.TTLSeconds)
	}
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("RECALL_DATA_ROOT", "/tmp/env-root")
	t.Setenv("RECALL_LLM_API_KEY", "env-key")

	cfg := Load("/nonexistent/path.toml")
	if cfg.DataRoot != "/tmp/env-root" {
		t.Errorf("data_root = %s", cfg.DataRoot)
	}
	if cfg.LLM.APIKey != "env-key" {
		t.Errorf("llm api key = %s", cfg.LLM.APIKey)
	}
	// Fallback: embedding inherits the LLM key
	if cfg.Embedding.APIKey != "env-key" {
		t.Errorf("embedding api key = %s", cfg.Embedding.APIKey)
	}
}

func TestPostgresEnvSwitchesBackend(t *testing.T) {
	t.Setenv("RECALL_POSTGRES_URL", "postgres://localhost/recall")

	cfg := Load("/nonexistent/path.toml")
	if cfg.Store.Backend != "postgres" {
		t.Errorf("backend = %s, want postgres", cfg.Store.Backend)
	}
	if cfg.Store.PostgresURL != "postgres://localhost/recall" {
		t.Errorf("postgres url = %s", cfg.Store.PostgresURL)
	}
}
