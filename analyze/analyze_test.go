package analyze

import (
	"context"
	"errors"
	"testing"

	"github.com/nevindra/recall"
)

const testProject = "demo-abcd1234"

func TestShouldAnalyze(t *testing.T) {
	a := New()
	cases := []struct {
		text string
		want bool
	}{
		{"", false},
		{"ok", false},
		{"hello", false},
		{"test", false},
		{"I prefer tabs over spaces in this repo", true},
		{"   short  ", false},
	}
	for _, c := range cases {
		if got := a.ShouldAnalyze(c.text); got != c.want {
			t.Errorf("ShouldAnalyze(%q) = %v, want %v", c.text, got, c.want)
		}
	}
}

func TestAnalyzePreferenceFact(t *testing.T) {
	a := New()
	cands, err := a.Analyze(context.Background(), testProject, Turn{User: "For this project I use vim with gopls."})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if len(cands.Facts) == 0 {
		t.Fatal("no facts extracted")
	}
	f := cands.Facts[0]
	if f.Category != "preference" || f.Scope != recall.ScopeUser {
		t.Errorf("fact = %+v", f)
	}
	if f.ProjectID != testProject || f.Source != recall.SourceExtractor {
		t.Errorf("fact not stamped: %+v", f)
	}
	if f.Confidence < 0.7 {
		t.Errorf("gated fact has confidence %v", f.Confidence)
	}
}

func TestAnalyzeProfileAndDecision(t *testing.T) {
	a := New()
	cands, err := a.Analyze(context.Background(), testProject,
		Turn{User: "My timezone is UTC+7. We decided to ship the migration behind a flag."})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	var sawProfile, sawDecision bool
	for _, f := range cands.Facts {
		switch f.Category {
		case "profile":
			sawProfile = true
			if f.Key != "timezone" {
				t.Errorf("profile key = %q", f.Key)
			}
		case "decision":
			sawDecision = true
			if f.Scope != recall.ScopeProject {
				t.Errorf("decision scope = %q", f.Scope)
			}
		}
	}
	if !sawProfile || !sawDecision {
		t.Errorf("facts = %+v, want profile and decision", cands.Facts)
	}
}

func TestAnalyzeFailFixEpisode(t *testing.T) {
	a := New()
	cands, err := a.Analyze(context.Background(), testProject,
		Turn{User: "The deploy failed on the schema migration; we fixed it by running the migration before rollout."})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if len(cands.Episodes) == 0 {
		t.Fatal("no episodes extracted")
	}
	e := cands.Episodes[0]
	if e.LessonType != recall.LessonProcedure {
		t.Errorf("lesson type = %q", e.LessonType)
	}
	if e.Situation == "" || e.Action == "" || e.Outcome == "" || e.Lesson == "" {
		t.Errorf("incomplete episode: %+v", e)
	}
	if e.ProjectID != testProject {
		t.Errorf("episode not stamped: %+v", e)
	}
}

func TestAnalyzeExplicitLesson(t *testing.T) {
	a := New()
	cands, err := a.Analyze(context.Background(), testProject,
		Turn{User: "We spent a day chasing a cache bug. Lesson: invalidate after commit, not before."})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	var found bool
	for _, e := range cands.Episodes {
		if e.LessonType == recall.LessonPattern {
			found = true
			if e.Situation == "" {
				t.Errorf("lesson episode missing situation: %+v", e)
			}
		}
	}
	if !found {
		t.Fatalf("episodes = %+v, want explicit lesson", cands.Episodes)
	}
}

func TestAnalyzeConfidenceGates(t *testing.T) {
	a := New(WithMinFactConfidence(0.9), WithMinEpisodeConfidence(0.9))
	cands, err := a.Analyze(context.Background(), testProject,
		Turn{User: "I use vim. See https://example.com/docs for details."})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if len(cands.Facts) != 0 || len(cands.Episodes) != 0 {
		t.Errorf("gates did not drop candidates: %+v", cands)
	}
}

func TestAnalyzeInvalidProject(t *testing.T) {
	a := New()
	if _, err := a.Analyze(context.Background(), "BAD", Turn{User: "I use vim for everything"}); !recall.IsKind(err, recall.KindInvalidInput) {
		t.Errorf("Analyze = %v, want invalid_input", err)
	}
}

// stubProvider returns a fixed response or error.
type stubProvider struct {
	response string
	err      error
}

func (p *stubProvider) Name() string { return "stub" }
func (p *stubProvider) Chat(ctx context.Context, req recall.ChatRequest) (recall.ChatResponse, error) {
	if p.err != nil {
		return recall.ChatResponse{}, p.err
	}
	return recall.ChatResponse{Content: p.response}, nil
}

func TestModelModeParsesResponse(t *testing.T) {
	p := &stubProvider{response: "```json\n{\"facts\":[{\"scope\":\"user\",\"category\":\"preference\",\"key\":\"editor\",\"value\":\"helix\",\"confidence\":0.9}],\"episodes\":[]}\n```"}
	a := New(WithProvider(p))

	cands, err := a.Analyze(context.Background(), testProject, Turn{User: "I switched to helix last month"})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if len(cands.Facts) != 1 || cands.Facts[0].Value != "helix" {
		t.Fatalf("facts = %+v", cands.Facts)
	}
	if cands.Facts[0].Source != recall.SourceExtractor {
		t.Errorf("source = %q", cands.Facts[0].Source)
	}
}

func TestModelModeFallsBackToHeuristics(t *testing.T) {
	p := &stubProvider{err: errors.New("provider down")}
	a := New(WithProvider(p))

	cands, err := a.Analyze(context.Background(), testProject, Turn{User: "I use vim for all editing work"})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if len(cands.Facts) == 0 {
		t.Fatal("fallback heuristics produced nothing")
	}
}

func TestParseCandidatesMalformed(t *testing.T) {
	for _, bad := range []string{"", "no json here", "[1,2,3]", "{broken"} {
		if _, ok := parseCandidates(bad); ok {
			t.Errorf("parseCandidates(%q) accepted malformed input", bad)
		}
	}
}

func TestKeyify(t *testing.T) {
	cases := map[string]string{
		"Editor of Choice": "editor_of_choice",
		"  vim  ":          "vim",
		"go 1.25":          "go_1_25",
		"---":              "",
	}
	for in, want := range cases {
		if got := keyify(in); got != want {
			t.Errorf("keyify(%q) = %q, want %q", in, got, want)
		}
	}
}
