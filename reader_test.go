package recall

import (
	"context"
	"testing"
)

func readerStore() *fakeStore {
	return &fakeStore{
		facts: []Fact{{
			ProjectID: testProject, Scope: "user", Category: "tools",
			Key: "editor", Value: "helix", Confidence: 0.9, UpdatedAt: 100,
		}},
		episodes: []ScoredEpisode{{Episode: Episode{
			ProjectID: testProject, Situation: "editor crashed on large files",
			Lesson: "split the file first", LessonType: LessonWarning, UpdatedAt: 90,
		}}},
		chunks: []ScoredChunk{{
			Chunk: Chunk{ProjectID: testProject, Text: "editor setup guide"},
			Score: 0.8,
		}},
	}
}

func TestRetrieveValidatesInput(t *testing.T) {
	r := NewReader(&fakeStore{}, nil)

	if _, err := r.Retrieve(context.Background(), "Bad ID!", "query", 5); !IsKind(err, KindInvalidInput) {
		t.Errorf("bad project id: kind = %s", KindOf(err))
	}
	if _, err := r.Retrieve(context.Background(), testProject, "   ", 5); !IsKind(err, KindInvalidInput) {
		t.Errorf("blank query: kind = %s", KindOf(err))
	}
}

func TestRetrieveAuthorityOrder(t *testing.T) {
	store := readerStore()
	r := NewReader(store, &flakyEmbedding{})

	ans, err := r.Retrieve(context.Background(), testProject, "editor", 5)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(ans.Items) != 3 {
		t.Fatalf("items = %d, want 3", len(ans.Items))
	}
	// Symbolic (1.0) above episodic (0.85) above semantic (0.8 * 0.90).
	want := []MemoryType{MemorySymbolic, MemoryEpisodic, MemorySemantic}
	for i, w := range want {
		if ans.Items[i].Type != w {
			t.Errorf("item %d type = %s, want %s", i, ans.Items[i].Type, w)
		}
	}
	for i := 1; i < len(ans.Items); i++ {
		if ans.Items[i].Authority > ans.Items[i-1].Authority {
			t.Errorf("authority not descending at %d: %f > %f",
				i, ans.Items[i].Authority, ans.Items[i-1].Authority)
		}
	}
}

func TestRetrieveWithoutEmbedding(t *testing.T) {
	store := readerStore()
	r := NewReader(store, nil)

	ans, err := r.Retrieve(context.Background(), testProject, "editor", 5)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	for _, item := range ans.Items {
		if item.Type == MemorySemantic {
			t.Error("semantic item without an embedding provider")
		}
	}
	if store.searchCalls != 0 {
		t.Errorf("vector search called %d times", store.searchCalls)
	}
}

func TestRetrieveTermFilter(t *testing.T) {
	store := &fakeStore{facts: []Fact{
		{ProjectID: testProject, Key: "editor", Value: "helix"},
		{ProjectID: testProject, Key: "timezone", Value: "utc"},
	}}
	r := NewReader(store, nil)

	ans, err := r.Retrieve(context.Background(), testProject, "which editor", 5)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(ans.Items) != 1 || ans.Items[0].Fact.Key != "editor" {
		t.Errorf("items = %+v", ans.Items)
	}
}

func TestRetrieveCaching(t *testing.T) {
	store := readerStore()
	c := newFakeCache()
	r := NewReader(store, nil, WithReaderCache(c))

	first, err := r.Retrieve(context.Background(), testProject, "editor", 5)
	if err != nil {
		t.Fatalf("first Retrieve: %v", err)
	}
	if first.Cached {
		t.Error("first call reported cached")
	}

	second, err := r.Retrieve(context.Background(), testProject, "editor", 5)
	if err != nil {
		t.Fatalf("second Retrieve: %v", err)
	}
	if !second.Cached {
		t.Error("second call not served from cache")
	}
	if len(second.Items) != len(first.Items) {
		t.Errorf("cached items = %d, want %d", len(second.Items), len(first.Items))
	}
}

func TestRetrieveSurfacesConflicts(t *testing.T) {
	store := &fakeStore{facts: []Fact{
		{ProjectID: testProject, Scope: "user", Key: "editor", Value: "helix", Confidence: 0.9},
		{ProjectID: testProject, Scope: "project", Key: "editor", Value: "vscode", Confidence: 0.7},
	}}
	r := NewReader(store, nil)

	ans, err := r.Retrieve(context.Background(), testProject, "editor", 5)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(ans.Conflicts) != 1 {
		t.Fatalf("conflicts = %d, want 1", len(ans.Conflicts))
	}
	cf := ans.Conflicts[0]
	if cf.Key != "editor" || cf.Keep.Value != "helix" || cf.Differ.Value != "vscode" {
		t.Errorf("conflict = %+v", cf)
	}
	// Both sides stay in the answer; conflicts report, never suppress.
	if len(ans.Items) != 2 {
		t.Errorf("items = %d, want 2", len(ans.Items))
	}
}

func TestRetrieveTypedSingleSubstrate(t *testing.T) {
	store := readerStore()
	r := NewReader(store, &flakyEmbedding{})

	cases := []struct {
		memType MemoryType
	}{
		{MemorySymbolic},
		{MemoryEpisodic},
		{MemorySemantic},
	}
	for _, c := range cases {
		ans, err := r.RetrieveTyped(context.Background(), testProject, "editor", c.memType, 5, nil)
		if err != nil {
			t.Fatalf("RetrieveTyped(%s): %v", c.memType, err)
		}
		if len(ans.Items) != 1 {
			t.Fatalf("%s: items = %d, want 1", c.memType, len(ans.Items))
		}
		if ans.Items[0].Type != c.memType {
			t.Errorf("%s: item type = %s", c.memType, ans.Items[0].Type)
		}
	}
}

func TestRetrieveTypedSemanticFilter(t *testing.T) {
	store := readerStore()
	r := NewReader(store, &flakyEmbedding{})

	filter := SearchFilter{"topic": "ops"}
	if _, err := r.RetrieveTyped(context.Background(), testProject, "editor", MemorySemantic, 5, filter); err != nil {
		t.Fatalf("RetrieveTyped: %v", err)
	}
	if store.lastFilter["topic"] != "ops" {
		t.Errorf("filter not passed to vector search: %v", store.lastFilter)
	}
}

func TestRetrieveTypedRejectsUnknownType(t *testing.T) {
	r := NewReader(readerStore(), nil)

	_, err := r.RetrieveTyped(context.Background(), testProject, "editor", "graph", 5, nil)
	if !IsKind(err, KindInvalidInput) {
		t.Errorf("unknown type: kind = %s", KindOf(err))
	}
	_, err = r.RetrieveTyped(context.Background(), testProject, "editor", MemorySemantic, 5, nil)
	if !IsKind(err, KindInvalidInput) {
		t.Errorf("semantic without embedding: kind = %s", KindOf(err))
	}
}

func TestInvalidAuthorityWeightsRevert(t *testing.T) {
	r := NewReader(&fakeStore{}, nil, WithAuthorityWeights(AuthorityWeights{
		Symbolic: 0.5, Episodic: 0.9, Semantic: 0.9,
	}))
	if r.weights != DefaultAuthorityWeights() {
		t.Errorf("weights = %+v, want defaults", r.weights)
	}

	custom := AuthorityWeights{Symbolic: 1.0, Episodic: 0.5, Semantic: 0.6}
	r = NewReader(&fakeStore{}, nil, WithAuthorityWeights(custom))
	if r.weights != custom {
		t.Errorf("weights = %+v, want %+v", r.weights, custom)
	}
}

func TestQueryTerms(t *testing.T) {
	got := queryTerms("Which editor do I use?")
	want := []string{"which", "editor", "do", "use"}
	if len(got) != len(want) {
		t.Fatalf("terms = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("term %d = %q, want %q", i, got[i], want[i])
		}
	}
}
