package recall

import (
	"strings"
	"testing"
)

func sampleAnswer() Answer {
	return Answer{
		Query: "editor",
		Items: []Item{
			{Type: MemorySymbolic, Authority: 1.0, Fact: &Fact{
				Scope: "user", Category: "tools", Key: "editor", Value: "helix", Confidence: 0.9,
			}},
			{Type: MemoryEpisodic, Authority: 0.85, Episode: &Episode{
				Situation: "editor crashed", Outcome: "lost work",
				Lesson: "save often", LessonType: LessonWarning,
			}},
			{Type: MemorySemantic, Authority: 0.72, Chunk: &ScoredChunk{
				Chunk: Chunk{Text: "editor setup guide"}, Score: 0.8,
			}},
		},
	}
}

func TestAssembleSections(t *testing.T) {
	out := NewAssembler().Assemble(sampleAnswer())

	fi := strings.Index(out, "## Facts")
	li := strings.Index(out, "## Lessons")
	ri := strings.Index(out, "## Reference")
	if fi < 0 || li < 0 || ri < 0 {
		t.Fatalf("missing section in:\n%s", out)
	}
	if !(fi < li && li < ri) {
		t.Errorf("section order wrong: facts=%d lessons=%d reference=%d", fi, li, ri)
	}
	for _, want := range []string{"editor: helix", "save often", "editor setup guide"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestAssembleDeterministic(t *testing.T) {
	a := NewAssembler()
	ans := sampleAnswer()
	if a.Assemble(ans) != a.Assemble(ans) {
		t.Error("same answer rendered differently")
	}
}

func TestAssembleEmptyAnswer(t *testing.T) {
	if out := NewAssembler().Assemble(Answer{Query: "q"}); out != "" {
		t.Errorf("empty answer rendered %q", out)
	}
}

func TestAssembleOmitsEmptySections(t *testing.T) {
	ans := Answer{Items: []Item{
		{Type: MemorySymbolic, Fact: &Fact{Key: "k", Value: "v"}},
	}}
	out := NewAssembler().Assemble(ans)
	if strings.Contains(out, "## Lessons") || strings.Contains(out, "## Reference") {
		t.Errorf("empty sections rendered:\n%s", out)
	}
}

func TestAssembleSectionCap(t *testing.T) {
	ans := Answer{Items: []Item{
		{Type: MemorySymbolic, Fact: &Fact{Key: "first", Value: "1"}},
		{Type: MemorySymbolic, Fact: &Fact{Key: "second", Value: "2"}},
	}}
	out := NewAssembler(WithMaxPerSection(1)).Assemble(ans)
	if !strings.Contains(out, "first") {
		t.Errorf("capped section dropped the leading unit:\n%s", out)
	}
	// Whole units only: the second fact is left out entirely, not truncated.
	if strings.Contains(out, "second") {
		t.Errorf("cap exceeded:\n%s", out)
	}
}
