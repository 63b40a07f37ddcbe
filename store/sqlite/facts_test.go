package sqlite

import (
	"context"
	"testing"

	"github.com/nevindra/recall"
)

func TestAddFactCreates(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	res, err := s.AddFact(ctx, testFact(testProject, "editor", "vim", 0.9))
	if err != nil {
		t.Fatalf("AddFact: %v", err)
	}
	if res.Replaced || res.Ignored {
		t.Fatalf("fresh insert reported replaced=%v ignored=%v", res.Replaced, res.Ignored)
	}
	if res.Fact.ID == "" || res.Fact.CreatedAt == 0 {
		t.Fatalf("fact missing identity: %+v", res.Fact)
	}

	history, err := s.FactHistory(ctx, testProject, res.Fact.ID)
	if err != nil {
		t.Fatalf("FactHistory: %v", err)
	}
	if len(history) != 1 || history[0].Reason != "created" {
		t.Fatalf("history = %+v, want single created entry", history)
	}
}

func TestAddFactHigherConfidenceWins(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first, err := s.AddFact(ctx, testFact(testProject, "editor", "vim", 0.6))
	if err != nil {
		t.Fatalf("AddFact: %v", err)
	}
	res, err := s.AddFact(ctx, testFact(testProject, "editor", "emacs", 0.9))
	if err != nil {
		t.Fatalf("AddFact: %v", err)
	}
	if !res.Replaced {
		t.Fatal("higher confidence did not replace")
	}
	if res.Fact.ID != first.Fact.ID {
		t.Errorf("fact identity changed on update: %s -> %s", first.Fact.ID, res.Fact.ID)
	}
	if res.Fact.Value != "emacs" {
		t.Errorf("value = %q, want emacs", res.Fact.Value)
	}

	history, err := s.FactHistory(ctx, testProject, first.Fact.ID)
	if err != nil {
		t.Fatalf("FactHistory: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("got %d history entries, want 2", len(history))
	}
	last := history[1]
	if last.Reason != "updated" || last.PrevValue != "vim" || last.PrevConfidence != 0.6 {
		t.Errorf("update entry = %+v", last)
	}
}

func TestAddFactLowerConfidenceIgnored(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first, err := s.AddFact(ctx, testFact(testProject, "editor", "vim", 0.9))
	if err != nil {
		t.Fatalf("AddFact: %v", err)
	}
	res, err := s.AddFact(ctx, testFact(testProject, "editor", "emacs", 0.5))
	if err != nil {
		t.Fatalf("AddFact: %v", err)
	}
	if !res.Ignored || res.Replaced {
		t.Fatalf("losing write reported replaced=%v ignored=%v", res.Replaced, res.Ignored)
	}
	if res.Fact.Value != "vim" {
		t.Errorf("kept value = %q, want vim", res.Fact.Value)
	}

	// An ignored write still leaves an observation in the trail.
	history, err := s.FactHistory(ctx, testProject, first.Fact.ID)
	if err != nil {
		t.Fatalf("FactHistory: %v", err)
	}
	if len(history) != 2 || history[1].Reason != "observed" {
		t.Fatalf("history = %+v, want observed entry appended", history)
	}
}

func TestAddFactSourceRankBreaksTie(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	f := testFact(testProject, "editor", "vim", 0.7)
	f.Source = recall.SourceExtractor
	if _, err := s.AddFact(ctx, f); err != nil {
		t.Fatalf("AddFact: %v", err)
	}

	// Equal confidence from a higher-ranked source replaces.
	f.Value = "emacs"
	f.Source = recall.SourceUser
	res, err := s.AddFact(ctx, f)
	if err != nil {
		t.Fatalf("AddFact: %v", err)
	}
	if !res.Replaced {
		t.Fatal("user source at equal confidence did not replace extractor fact")
	}

	// Equal confidence from a lower-ranked source is ignored.
	f.Value = "nano"
	f.Source = recall.SourceImport
	res, err = s.AddFact(ctx, f)
	if err != nil {
		t.Fatalf("AddFact: %v", err)
	}
	if !res.Ignored {
		t.Fatal("import source at equal confidence was not ignored")
	}
}

func TestAddFactValidation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	cases := []recall.Fact{
		{ProjectID: testProject, Scope: "", Category: "c", Key: "k", Value: "v", Confidence: 0.5, Source: recall.SourceUser},
		{ProjectID: testProject, Scope: "s", Category: "c", Key: "k", Value: "", Confidence: 0.5, Source: recall.SourceUser},
		{ProjectID: testProject, Scope: "s", Category: "c", Key: "k", Value: "v", Confidence: 0.5, Source: "robot"},
	}
	for i, f := range cases {
		if _, err := s.AddFact(ctx, f); !recall.IsKind(err, recall.KindInvalidInput) {
			t.Errorf("case %d: AddFact = %v, want invalid_input", i, err)
		}
	}
}

func TestAddFactClampsConfidence(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	high := testFact(testProject, "editor", "vim", 1.2)
	res, err := s.AddFact(ctx, high)
	if err != nil {
		t.Fatalf("AddFact: %v", err)
	}
	if res.Fact.Confidence != 1.0 {
		t.Errorf("confidence = %g, want clamped to 1.0", res.Fact.Confidence)
	}

	low := testFact(testProject, "shell", "fish", -0.3)
	res, err = s.AddFact(ctx, low)
	if err != nil {
		t.Fatalf("AddFact: %v", err)
	}
	if res.Fact.Confidence != 0.0 {
		t.Errorf("confidence = %g, want clamped to 0.0", res.Fact.Confidence)
	}

	facts, err := s.QueryFacts(ctx, testProject, recall.FactQuery{Key: "editor"})
	if err != nil {
		t.Fatalf("QueryFacts: %v", err)
	}
	if len(facts) != 1 || facts[0].Confidence != 1.0 {
		t.Errorf("stored facts = %+v, want single fact at confidence 1.0", facts)
	}
}

func TestAddFactFullTieNewerWins(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	f := testFact(testProject, "language", "python", 0.8)
	if _, err := s.AddFact(ctx, f); err != nil {
		t.Fatalf("AddFact: %v", err)
	}

	// Same confidence, same source: the newer write overwrites.
	f.Value = "rust"
	res, err := s.AddFact(ctx, f)
	if err != nil {
		t.Fatalf("AddFact: %v", err)
	}
	if !res.Replaced || res.Ignored {
		t.Fatalf("full tie result = %+v, want replaced", res)
	}
	if res.Fact.Value != "rust" {
		t.Errorf("value = %q, want rust", res.Fact.Value)
	}

	hist, err := s.FactHistory(ctx, testProject, res.Fact.ID)
	if err != nil {
		t.Fatalf("FactHistory: %v", err)
	}
	last := hist[len(hist)-1]
	if last.Reason != "updated" || last.PrevValue != "python" {
		t.Errorf("last history = %+v, want updated from python", last)
	}
}

func TestQueryFactsOrderAndFilters(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, f := range []recall.Fact{
		testFact(testProject, "editor", "vim", 0.9),
		testFact(testProject, "shell", "zsh", 0.5),
		testFact(testProject, "theme", "dark", 0.7),
	} {
		if _, err := s.AddFact(ctx, f); err != nil {
			t.Fatalf("AddFact: %v", err)
		}
	}

	facts, err := s.QueryFacts(ctx, testProject, recall.FactQuery{Scope: recall.ScopeUser})
	if err != nil {
		t.Fatalf("QueryFacts: %v", err)
	}
	if len(facts) != 3 {
		t.Fatalf("got %d facts, want 3", len(facts))
	}
	for i := 1; i < len(facts); i++ {
		if facts[i].Confidence > facts[i-1].Confidence {
			t.Fatalf("facts out of confidence order: %+v", facts)
		}
	}

	facts, err = s.QueryFacts(ctx, testProject, recall.FactQuery{MinConfidence: 0.6})
	if err != nil {
		t.Fatalf("QueryFacts: %v", err)
	}
	if len(facts) != 2 {
		t.Fatalf("MinConfidence filter kept %d facts, want 2", len(facts))
	}

	facts, err = s.QueryFacts(ctx, testProject, recall.FactQuery{Key: "shell"})
	if err != nil {
		t.Fatalf("QueryFacts: %v", err)
	}
	if len(facts) != 1 || facts[0].Value != "zsh" {
		t.Fatalf("key filter = %+v", facts)
	}

	facts, err = s.QueryFacts(ctx, testProject, recall.FactQuery{Limit: 1})
	if err != nil {
		t.Fatalf("QueryFacts: %v", err)
	}
	if len(facts) != 1 || facts[0].Key != "editor" {
		t.Fatalf("limit=1 returned %+v, want highest-confidence fact", facts)
	}
}

func TestListScopesAndCategories(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	f := testFact(testProject, "editor", "vim", 0.9)
	if _, err := s.AddFact(ctx, f); err != nil {
		t.Fatalf("AddFact: %v", err)
	}
	f2 := testFact(testProject, "lang", "go", 0.8)
	f2.Scope = recall.ScopeProject
	f2.Category = "stack"
	if _, err := s.AddFact(ctx, f2); err != nil {
		t.Fatalf("AddFact: %v", err)
	}

	scopes, err := s.ListScopes(ctx, testProject)
	if err != nil {
		t.Fatalf("ListScopes: %v", err)
	}
	if len(scopes) != 2 || scopes[0] != recall.ScopeProject || scopes[1] != recall.ScopeUser {
		t.Fatalf("scopes = %v", scopes)
	}

	cats, err := s.ListCategories(ctx, testProject, recall.ScopeProject)
	if err != nil {
		t.Fatalf("ListCategories: %v", err)
	}
	if len(cats) != 1 || cats[0] != "stack" {
		t.Fatalf("categories = %v", cats)
	}
}

func TestDeleteFactFreesKey(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first, err := s.AddFact(ctx, testFact(testProject, "editor", "vim", 0.9))
	if err != nil {
		t.Fatalf("AddFact: %v", err)
	}
	if err := s.DeleteFact(ctx, testProject, first.Fact.ID); err != nil {
		t.Fatalf("DeleteFact: %v", err)
	}

	facts, err := s.QueryFacts(ctx, testProject, recall.FactQuery{Key: "editor"})
	if err != nil {
		t.Fatalf("QueryFacts: %v", err)
	}
	if len(facts) != 0 {
		t.Fatalf("deleted fact still visible: %+v", facts)
	}

	// Key is reusable after soft delete, even at low confidence.
	res, err := s.AddFact(ctx, testFact(testProject, "editor", "nano", 0.1))
	if err != nil {
		t.Fatalf("AddFact after delete: %v", err)
	}
	if res.Replaced || res.Ignored {
		t.Fatalf("reused key reported replaced=%v ignored=%v", res.Replaced, res.Ignored)
	}

	// Trail of the deleted fact remains readable.
	history, err := s.FactHistory(ctx, testProject, first.Fact.ID)
	if err != nil {
		t.Fatalf("FactHistory: %v", err)
	}
	if len(history) != 2 || history[1].Reason != "deleted" {
		t.Fatalf("history = %+v, want deleted entry", history)
	}

	if err := s.DeleteFact(ctx, testProject, first.Fact.ID); !recall.IsKind(err, recall.KindNotFound) {
		t.Errorf("second DeleteFact = %v, want not_found", err)
	}
}
