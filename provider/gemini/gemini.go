// Package gemini implements an embedding provider for the Google Gemini API.
package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/nevindra/recall"
)

const baseURL = "https://generativelanguage.googleapis.com/v1beta"

// Embedding implements recall.EmbeddingProvider for Gemini embedding models.
type Embedding struct {
	apiKey  string
	model   string
	dims    int
	baseURL string
	client  *http.Client
}

var _ recall.EmbeddingProvider = (*Embedding)(nil)

// EmbeddingOption configures an Embedding.
type EmbeddingOption func(*Embedding)

// WithBaseURL overrides the API base URL, for tests and proxies.
func WithBaseURL(u string) EmbeddingOption {
	return func(e *Embedding) { e.baseURL = u }
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(c *http.Client) EmbeddingOption {
	return func(e *Embedding) { e.client = c }
}

// NewEmbedding creates a Gemini embedding provider. dims is requested as the
// output dimensionality via outputDimensionality.
func NewEmbedding(apiKey, model string, dims int, opts ...EmbeddingOption) *Embedding {
	e := &Embedding{
		apiKey:  apiKey,
		model:   model,
		dims:    dims,
		baseURL: baseURL,
		client:  &http.Client{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name returns "gemini".
func (e *Embedding) Name() string { return "gemini" }

// Dimensions returns the configured embedding dimensionality.
func (e *Embedding) Dimensions() int { return e.dims }

type embedResponse struct {
	Embedding *struct {
		Values []float64 `json:"values"`
	} `json:"embedding"`
}

// Embed embeds each text sequentially and returns the embedding vectors.
func (e *Embedding) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	url := fmt.Sprintf("%s/models/%s:embedContent?key=%s", e.baseURL, e.model, e.apiKey)

	embeddings := make([][]float32, 0, len(texts))
	for _, text := range texts {
		body := map[string]any{
			"content": map[string]any{
				"parts": []map[string]any{{"text": text}},
			},
			"outputDimensionality": e.dims,
		}
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, &recall.ErrProvider{Provider: "gemini", Message: "marshal embed body: " + err.Error()}
		}

		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
		if err != nil {
			return nil, &recall.ErrProvider{Provider: "gemini", Message: "create embed request: " + err.Error()}
		}
		httpReq.Header.Set("Content-Type", "application/json")

		resp, err := e.client.Do(httpReq)
		if err != nil {
			return nil, &recall.ErrProvider{Provider: "gemini", Message: "embed request failed: " + err.Error()}
		}
		respBody, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return nil, &recall.ErrProvider{Provider: "gemini", Message: "read embed response: " + err.Error()}
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, httpErr(resp, string(respBody))
		}

		var parsed embedResponse
		if err := json.Unmarshal(respBody, &parsed); err != nil {
			return nil, &recall.ErrProvider{Provider: "gemini", Message: "parse embed response: " + err.Error()}
		}
		if parsed.Embedding == nil {
			return nil, &recall.ErrProvider{Provider: "gemini", Message: "missing embedding.values in response"}
		}

		vec := make([]float32, len(parsed.Embedding.Values))
		for i, v := range parsed.Embedding.Values {
			vec[i] = float32(v)
		}
		embeddings = append(embeddings, vec)
	}
	return embeddings, nil
}

// httpErr builds an ErrHTTP, preferring Gemini's RetryInfo detail over the
// Retry-After header when both are present.
func httpErr(resp *http.Response, body string) error {
	retryAfter := recall.ParseRetryAfter(resp.Header.Get("Retry-After"))
	if d := retryDelayFromBody(body); d > 0 {
		retryAfter = d
	}
	return &recall.ErrHTTP{
		Status:     resp.StatusCode,
		Body:       body,
		RetryAfter: retryAfter,
	}
}

// retryDelayFromBody extracts google.rpc.RetryInfo's retryDelay from an error
// response, e.g. "error.details[].retryDelay": "7s".
func retryDelayFromBody(body string) time.Duration {
	var envelope struct {
		Error struct {
			Details []json.RawMessage `json:"details"`
		} `json:"error"`
	}
	if json.Unmarshal([]byte(body), &envelope) != nil {
		return 0
	}
	for _, raw := range envelope.Error.Details {
		var detail struct {
			Type       string `json:"@type"`
			RetryDelay string `json:"retryDelay"`
		}
		if json.Unmarshal(raw, &detail) != nil {
			continue
		}
		if detail.Type == "type.googleapis.com/google.rpc.RetryInfo" && detail.RetryDelay != "" {
			if d, err := time.ParseDuration(detail.RetryDelay); err == nil {
				return d
			}
		}
	}
	return 0
}
