package observer

import (
	"context"
	"errors"
	"testing"

	"github.com/nevindra/recall"
)

// Without Init the global providers are no-ops, so the wrappers must be pure
// pass-throughs.

type stubEmbedding struct {
	calls int
	err   error
}

func (s *stubEmbedding) Name() string    { return "stub" }
func (s *stubEmbedding) Dimensions() int { return 3 }
func (s *stubEmbedding) Embed(_ context.Context, texts []string) ([][]float32, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	out := make([][]float32, len(texts))
	for i := range out {
		out[i] = []float32{1, 0, 0}
	}
	return out, nil
}

func TestWrapEmbeddingPassesThrough(t *testing.T) {
	inst, err := NewInstruments()
	if err != nil {
		t.Fatalf("NewInstruments: %v", err)
	}
	stub := &stubEmbedding{}
	wrapped := WrapEmbedding(stub, "test-model", inst)

	if wrapped.Name() != "stub" || wrapped.Dimensions() != 3 {
		t.Errorf("identity not forwarded: %s/%d", wrapped.Name(), wrapped.Dimensions())
	}
	vecs, err := wrapped.Embed(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(vecs) != 2 || stub.calls != 1 {
		t.Errorf("vecs=%d calls=%d", len(vecs), stub.calls)
	}
}

func TestWrapEmbeddingForwardsError(t *testing.T) {
	inst, _ := NewInstruments()
	want := errors.New("provider down")
	wrapped := WrapEmbedding(&stubEmbedding{err: want}, "m", inst)

	if _, err := wrapped.Embed(context.Background(), []string{"x"}); !errors.Is(err, want) {
		t.Errorf("err = %v, want %v", err, want)
	}
}

type stubRetriever struct {
	ans recall.Answer
	err error
}

func (s *stubRetriever) Retrieve(_ context.Context, _, _ string, _ int) (recall.Answer, error) {
	return s.ans, s.err
}

func (s *stubRetriever) RetrieveTyped(_ context.Context, _, _ string, _ recall.MemoryType, _ int, _ recall.SearchFilter) (recall.Answer, error) {
	return s.ans, s.err
}

func TestWrapRetrieverPassesThrough(t *testing.T) {
	inst, _ := NewInstruments()
	inner := &stubRetriever{ans: recall.Answer{Query: "q", Cached: true}}
	wrapped := WrapRetriever(inner, inst)

	ans, err := wrapped.Retrieve(context.Background(), "demo-abcd1234", "q", 5)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if ans.Query != "q" || !ans.Cached {
		t.Errorf("answer = %+v", ans)
	}
}

func TestWrapRetrieverTypedPassesThrough(t *testing.T) {
	inst, _ := NewInstruments()
	inner := &stubRetriever{ans: recall.Answer{Query: "q"}}
	wrapped := WrapRetriever(inner, inst)

	ans, err := wrapped.RetrieveTyped(context.Background(), "demo-abcd1234", "q",
		recall.MemorySymbolic, 5, nil)
	if err != nil {
		t.Fatalf("RetrieveTyped: %v", err)
	}
	if ans.Query != "q" {
		t.Errorf("answer = %+v", ans)
	}
}
