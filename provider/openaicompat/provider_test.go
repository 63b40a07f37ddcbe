package openaicompat

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/nevindra/recall"
)

func TestChat(t *testing.T) {
	var gotBody chatBody
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %q", r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		json.NewDecoder(r.Body).Decode(&gotBody)
		json.NewEncoder(w).Encode(chatResponse{
			Choices: []choice{{Message: &choiceMessage{Role: "assistant", Content: "hi there"}}},
			Usage:   &usage{PromptTokens: 12, CompletionTokens: 3},
		})
	}))
	defer srv.Close()

	p := NewProvider("sk-test", "gpt-test", srv.URL, WithTemperature(0.2))
	resp, err := p.Chat(context.Background(), recall.ChatRequest{
		Messages: []recall.ChatMessage{
			recall.SystemMessage("be brief"),
			recall.UserMessage("hello"),
		},
	})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if resp.Content != "hi there" {
		t.Errorf("content = %q", resp.Content)
	}
	if resp.Usage.InputTokens != 12 || resp.Usage.OutputTokens != 3 {
		t.Errorf("usage = %+v", resp.Usage)
	}
	if gotAuth != "Bearer sk-test" {
		t.Errorf("auth = %q", gotAuth)
	}
	if gotBody.Model != "gpt-test" || len(gotBody.Messages) != 2 {
		t.Errorf("body = %+v", gotBody)
	}
	if gotBody.Temperature == nil || *gotBody.Temperature != 0.2 {
		t.Errorf("temperature = %v", gotBody.Temperature)
	}
}

func TestChatRateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "7")
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"message":"slow down"}}`))
	}))
	defer srv.Close()

	p := NewProvider("", "m", srv.URL)
	_, err := p.Chat(context.Background(), recall.ChatRequest{
		Messages: []recall.ChatMessage{recall.UserMessage("hi")},
	})
	var he *recall.ErrHTTP
	if !errors.As(err, &he) {
		t.Fatalf("err = %v, want ErrHTTP", err)
	}
	if he.Status != http.StatusTooManyRequests {
		t.Errorf("status = %d", he.Status)
	}
	if he.RetryAfter != 7*time.Second {
		t.Errorf("retry after = %v", he.RetryAfter)
	}
}

func TestEmbed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/embeddings" {
			t.Errorf("path = %q", r.URL.Path)
		}
		var body embedBody
		json.NewDecoder(r.Body).Decode(&body)
		if body.Dimensions != 3 {
			t.Errorf("dimensions = %d", body.Dimensions)
		}
		// Out of order on purpose; Embed must reorder by index.
		json.NewEncoder(w).Encode(embedResponse{Data: []embedDatum{
			{Index: 1, Embedding: []float32{0, 1, 0}},
			{Index: 0, Embedding: []float32{1, 0, 0}},
		}})
	}))
	defer srv.Close()

	e := NewEmbedding("", "embed-test", srv.URL, 3)
	vecs, err := e.Embed(context.Background(), []string{"alpha", "beta"})
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(vecs) != 2 {
		t.Fatalf("got %d vectors", len(vecs))
	}
	if vecs[0][0] != 1 || vecs[1][1] != 1 {
		t.Errorf("vectors out of order: %v", vecs)
	}
}

func TestEmbedDimensionMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(embedResponse{Data: []embedDatum{
			{Index: 0, Embedding: []float32{1, 0}},
		}})
	}))
	defer srv.Close()

	e := NewEmbedding("", "m", srv.URL, 3)
	_, err := e.Embed(context.Background(), []string{"x"})
	var pe *recall.ErrProvider
	if !errors.As(err, &pe) {
		t.Fatalf("err = %v, want ErrProvider", err)
	}
}

func TestEmbedEmptyInput(t *testing.T) {
	e := NewEmbedding("", "m", "http://unused", 3)
	vecs, err := e.Embed(context.Background(), nil)
	if err != nil || vecs != nil {
		t.Errorf("Embed(nil) = %v, %v", vecs, err)
	}
}
