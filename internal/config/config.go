// Package config loads the server configuration: defaults, then a TOML file,
// then RECALL_* environment variables (env wins).
package config

import (
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/nevindra/recall"
)

type Config struct {
	DataRoot string `toml:"data_root"`
	PoolSize int    `toml:"pool_size"`

	Store     StoreConfig     `toml:"store"`
	Cache     CacheConfig     `toml:"cache"`
	Ingest    IngestConfig    `toml:"ingest"`
	Memory    MemoryConfig    `toml:"memory"`
	Analyze   AnalyzeConfig   `toml:"analyze"`
	Authority AuthorityConfig `toml:"authority"`
	LLM       LLMConfig       `toml:"llm"`
	Embedding EmbeddingConfig `toml:"embedding"`
	Observer  ObserverConfig  `toml:"observer"`
}

type StoreConfig struct {
	// Backend selects the semantic store: "sqlite" (default, local files)
	// or "postgres" (pgvector).
	Backend     string `toml:"backend"`
	PostgresURL string `toml:"postgres_url"`
}

type CacheConfig struct {
	MaxSize    int `toml:"max_size"`
	TTLSeconds int `toml:"ttl_seconds"`
}

type IngestConfig struct {
	ChunkSize    int `toml:"chunk_size"`
	ChunkOverlap int `toml:"chunk_overlap"`
	BatchSize    int `toml:"batch_size"`
}

type MemoryConfig struct {
	MinFactConfidence    float64 `toml:"min_fact_confidence"`
	MinEpisodeConfidence float64 `toml:"min_episode_confidence"`
	DeduplicationMode    string  `toml:"deduplication_mode"`
}

type AnalyzeConfig struct {
	// ExtractionMode is "heuristic" (default) or "model".
	ExtractionMode   string   `toml:"extraction_mode"`
	MinMessageLength int      `toml:"min_message_length"`
	SkipPatterns     []string `toml:"skip_patterns"`
}

type AuthorityConfig struct {
	Symbolic float64 `toml:"symbolic"`
	Episodic float64 `toml:"episodic"`
	Semantic float64 `toml:"semantic"`
}

type LLMConfig struct {
	Provider string `toml:"provider"`
	Model    string `toml:"model"`
	APIKey   string `toml:"api_key"`
	BaseURL  string `toml:"base_url"`
}

type EmbeddingConfig struct {
	Provider   string `toml:"provider"`
	Model      string `toml:"model"`
	APIKey     string `toml:"api_key"`
	BaseURL    string `toml:"base_url"`
	Dimensions int    `toml:"dimensions"`
}

type ObserverConfig struct {
	Enabled bool `toml:"enabled"`
}

// Default returns a Config with all defaults applied.
func Default() Config {
	home, _ := os.UserHomeDir()
	if home == "" {
		home = "/tmp"
	}
	w := recall.DefaultAuthorityWeights()
	return Config{
		DataRoot: filepath.Join(home, ".recall"),
		PoolSize: 5,
		Store:    StoreConfig{Backend: "sqlite"},
		Cache:    CacheConfig{MaxSize: 500, TTLSeconds: 300},
		Ingest:   IngestConfig{ChunkSize: 500, ChunkOverlap: 50, BatchSize: 64},
		Memory: MemoryConfig{
			MinFactConfidence:    0.7,
			MinEpisodeConfidence: 0.6,
			DeduplicationMode:    string(recall.DedupPerDay),
		},
		Analyze: AnalyzeConfig{
			ExtractionMode:   "heuristic",
			MinMessageLength: 10,
			SkipPatterns:     []string{"^test$", "^help$", "^hello$"},
		},
		Authority: AuthorityConfig{Symbolic: w.Symbolic, Episodic: w.Episodic, Semantic: w.Semantic},
		LLM:       LLMConfig{Provider: "ollama", Model: "llama3.2"},
		Embedding: EmbeddingConfig{Provider: "ollama", Model: "nomic-embed-text", Dimensions: 384},
	}
}

// Load reads config: defaults -> TOML file -> env vars (env wins).
func Load(path string) Config {
	cfg := Default()

	if path == "" {
		path = "recall.toml"
	}

	if data, err := os.ReadFile(path); err == nil {
		_ = toml.Unmarshal(data, &cfg)
	}

	// Env overrides
	if v := os.Getenv("RECALL_DATA_ROOT"); v != "" {
		cfg.DataRoot = v
	}
	if v := os.Getenv("RECALL_LLM_API_KEY"); v != "" {
		cfg.LLM.APIKey = v
	}
	if v := os.Getenv("RECALL_EMBEDDING_API_KEY"); v != "" {
		cfg.Embedding.APIKey = v
	}
	if v := os.Getenv("RECALL_POSTGRES_URL"); v != "" {
		cfg.Store.PostgresURL = v
		cfg.Store.Backend = "postgres"
	}
	if v := os.Getenv("RECALL_EXTRACTION_MODE"); v != "" {
		cfg.Analyze.ExtractionMode = v
	}
	if v := os.Getenv("RECALL_OBSERVER_ENABLED"); v == "true" || v == "1" {
		cfg.Observer.Enabled = true
	}

	// Fallbacks
	if cfg.Embedding.APIKey == "" {
		cfg.Embedding.APIKey = cfg.LLM.APIKey
	}

	return cfg
}
