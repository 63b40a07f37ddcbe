package openaicompat

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"

	"github.com/nevindra/recall"
)

// Embedding implements recall.EmbeddingProvider against the embeddings
// endpoint of any OpenAI-compatible API.
type Embedding struct {
	apiKey  string
	model   string
	baseURL string
	dims    int
	name    string
	client  *http.Client
}

var _ recall.EmbeddingProvider = (*Embedding)(nil)

// EmbeddingOption configures an Embedding.
type EmbeddingOption func(*Embedding)

// WithEmbeddingName overrides the provider name (default "openai").
func WithEmbeddingName(name string) EmbeddingOption {
	return func(e *Embedding) { e.name = name }
}

// WithEmbeddingHTTPClient overrides the HTTP client.
func WithEmbeddingHTTPClient(c *http.Client) EmbeddingOption {
	return func(e *Embedding) { e.client = c }
}

// NewEmbedding creates an embedding provider. dims is the output
// dimensionality; it is sent to the API and enforced on responses.
func NewEmbedding(apiKey, model, baseURL string, dims int, opts ...EmbeddingOption) *Embedding {
	e := &Embedding{
		apiKey:  apiKey,
		model:   model,
		baseURL: baseURL,
		dims:    dims,
		name:    "openai",
		client:  &http.Client{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name returns the provider name.
func (e *Embedding) Name() string { return e.name }

// Dimensions returns the configured embedding dimensionality.
func (e *Embedding) Dimensions() int { return e.dims }

// Embed embeds all texts in one request. The response is re-ordered by index
// so vectors line up with the input slice.
func (e *Embedding) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	p := &Provider{apiKey: e.apiKey, baseURL: e.baseURL, name: e.name, client: e.client}
	resp, err := p.post(ctx, "/embeddings", embedBody{Model: e.model, Input: texts, Dimensions: e.dims})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, httpErr(resp)
	}

	var parsed embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, &recall.ErrProvider{Provider: e.name, Message: fmt.Sprintf("decode response: %v", err)}
	}
	if len(parsed.Data) != len(texts) {
		return nil, &recall.ErrProvider{
			Provider: e.name,
			Message:  fmt.Sprintf("got %d embeddings for %d inputs", len(parsed.Data), len(texts)),
		}
	}

	sort.Slice(parsed.Data, func(i, j int) bool { return parsed.Data[i].Index < parsed.Data[j].Index })
	out := make([][]float32, len(parsed.Data))
	for i, d := range parsed.Data {
		if e.dims > 0 && len(d.Embedding) != e.dims {
			return nil, &recall.ErrProvider{
				Provider: e.name,
				Message:  fmt.Sprintf("embedding %d has %d dimensions, want %d", i, len(d.Embedding), e.dims),
			}
		}
		out[i] = d.Embedding
	}
	return out, nil
}
