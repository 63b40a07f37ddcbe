// Package resolve turns provider-agnostic configuration into concrete chat
// and embedding providers.
package resolve

import (
	"fmt"

	"github.com/nevindra/recall"
	"github.com/nevindra/recall/provider/gemini"
	"github.com/nevindra/recall/provider/openaicompat"
)

// Config holds provider-agnostic configuration for creating a chat Provider.
type Config struct {
	Provider string // "openai", "groq", "deepseek", "together", "mistral", "ollama"
	APIKey   string
	Model    string
	BaseURL  string // required for unknown providers; auto-filled for known ones

	Temperature *float64
	TopP        *float64
	MaxTokens   int
}

// EmbeddingConfig holds provider-agnostic configuration for creating an
// EmbeddingProvider.
type EmbeddingConfig struct {
	Provider   string // "gemini" or any OpenAI-compatible provider
	APIKey     string
	Model      string
	BaseURL    string
	Dimensions int
}

// Provider creates a recall.Provider from a Config.
func Provider(cfg Config) (recall.Provider, error) {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL(cfg.Provider)
	}
	if baseURL == "" {
		return nil, fmt.Errorf("resolve: unknown provider %q and no base_url given", cfg.Provider)
	}
	opts := []openaicompat.ProviderOption{openaicompat.WithName(cfg.Provider)}
	if cfg.Temperature != nil {
		opts = append(opts, openaicompat.WithTemperature(*cfg.Temperature))
	}
	if cfg.TopP != nil {
		opts = append(opts, openaicompat.WithTopP(*cfg.TopP))
	}
	if cfg.MaxTokens > 0 {
		opts = append(opts, openaicompat.WithMaxTokens(cfg.MaxTokens))
	}
	return openaicompat.NewProvider(cfg.APIKey, cfg.Model, baseURL, opts...), nil
}

// EmbeddingProvider creates a recall.EmbeddingProvider from an EmbeddingConfig.
func EmbeddingProvider(cfg EmbeddingConfig) (recall.EmbeddingProvider, error) {
	if cfg.Dimensions <= 0 {
		return nil, fmt.Errorf("resolve: embedding dimensions must be positive")
	}
	if cfg.Provider == "gemini" {
		var opts []gemini.EmbeddingOption
		if cfg.BaseURL != "" {
			opts = append(opts, gemini.WithBaseURL(cfg.BaseURL))
		}
		return gemini.NewEmbedding(cfg.APIKey, cfg.Model, cfg.Dimensions, opts...), nil
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL(cfg.Provider)
	}
	if baseURL == "" {
		return nil, fmt.Errorf("resolve: unknown embedding provider %q and no base_url given", cfg.Provider)
	}
	return openaicompat.NewEmbedding(cfg.APIKey, cfg.Model, baseURL, cfg.Dimensions,
		openaicompat.WithEmbeddingName(cfg.Provider)), nil
}

func defaultBaseURL(provider string) string {
	switch provider {
	case "openai":
		return "https://api.openai.com/v1"
	case "groq":
		return "https://api.groq.com/openai/v1"
	case "deepseek":
		return "https://api.deepseek.com/v1"
	case "together":
		return "https://api.together.xyz/v1"
	case "mistral":
		return "https://api.mistral.ai/v1"
	case "ollama":
		return "http://localhost:11434/v1"
	default:
		return ""
	}
}
