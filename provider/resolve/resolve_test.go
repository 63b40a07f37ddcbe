package resolve

import (
	"testing"
)

func TestProviderKnownNames(t *testing.T) {
	for _, name := range []string{"openai", "groq", "deepseek", "together", "mistral", "ollama"} {
		p, err := Provider(Config{Provider: name, APIKey: "k", Model: "m"})
		if err != nil {
			t.Errorf("Provider(%q): %v", name, err)
			continue
		}
		if p.Name() != name {
			t.Errorf("Provider(%q).Name() = %q", name, p.Name())
		}
	}
}

func TestProviderUnknownNeedsBaseURL(t *testing.T) {
	if _, err := Provider(Config{Provider: "homegrown", Model: "m"}); err == nil {
		t.Error("expected error for unknown provider without base_url")
	}
	p, err := Provider(Config{Provider: "homegrown", Model: "m", BaseURL: "http://localhost:8080/v1"})
	if err != nil {
		t.Fatalf("Provider with base_url: %v", err)
	}
	if p.Name() != "homegrown" {
		t.Errorf("name = %q", p.Name())
	}
}

func TestEmbeddingProvider(t *testing.T) {
	e, err := EmbeddingProvider(EmbeddingConfig{Provider: "gemini", APIKey: "k", Model: "m", Dimensions: 384})
	if err != nil {
		t.Fatalf("EmbeddingProvider(gemini): %v", err)
	}
	if e.Name() != "gemini" || e.Dimensions() != 384 {
		t.Errorf("gemini embedding = %q/%d", e.Name(), e.Dimensions())
	}

	e, err = EmbeddingProvider(EmbeddingConfig{Provider: "ollama", Model: "m", Dimensions: 384})
	if err != nil {
		t.Fatalf("EmbeddingProvider(ollama): %v", err)
	}
	if e.Name() != "ollama" {
		t.Errorf("name = %q", e.Name())
	}
}

func TestEmbeddingProviderRejectsBadDims(t *testing.T) {
	if _, err := EmbeddingProvider(EmbeddingConfig{Provider: "gemini", Dimensions: 0}); err == nil {
		t.Error("expected error for zero dimensions")
	}
}
