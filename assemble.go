package recall

import (
	"fmt"
	"strings"
)

// Assembler renders a retrieval answer into a prompt-ready context block.
// Output is deterministic for a given answer: three fixed sections in fixed
// order, each holding at most maxPerSection whole units. A unit is either
// included verbatim or left out; it is never cut mid-way.
type Assembler struct {
	maxPerSection int
}

// AssemblerOption configures an Assembler.
type AssemblerOption func(*Assembler)

// WithMaxPerSection caps the units rendered per section (default 10).
func WithMaxPerSection(n int) AssemblerOption {
	return func(a *Assembler) { a.maxPerSection = n }
}

// NewAssembler builds an Assembler.
func NewAssembler(opts ...AssemblerOption) *Assembler {
	a := &Assembler{maxPerSection: 10}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Assemble renders the answer. Items arrive authority-ordered from the
// reader and keep that order inside their sections. Empty sections are
// omitted; an empty answer renders to "".
func (a *Assembler) Assemble(ans Answer) string {
	var facts, lessons, reference []string
	for _, item := range ans.Items {
		switch item.Type {
		case MemorySymbolic:
			if item.Fact != nil && len(facts) < a.maxPerSection {
				facts = append(facts, renderFact(*item.Fact))
			}
		case MemoryEpisodic:
			if item.Episode != nil && len(lessons) < a.maxPerSection {
				lessons = append(lessons, renderEpisode(*item.Episode))
			}
		case MemorySemantic:
			if item.Chunk != nil && len(reference) < a.maxPerSection {
				reference = append(reference, renderChunk(*item.Chunk))
			}
		}
	}

	var b strings.Builder
	writeSection(&b, "Facts", facts)
	writeSection(&b, "Lessons", lessons)
	writeSection(&b, "Reference", reference)
	return strings.TrimRight(b.String(), "\n")
}

func writeSection(b *strings.Builder, title string, units []string) {
	if len(units) == 0 {
		return
	}
	if b.Len() > 0 {
		b.WriteByte('\n')
	}
	b.WriteString("## ")
	b.WriteString(title)
	b.WriteByte('\n')
	for _, u := range units {
		b.WriteString(u)
		b.WriteByte('\n')
	}
}

func renderFact(f Fact) string {
	return fmt.Sprintf("- [%s/%s] %s: %s (confidence %.2f)", f.Scope, f.Category, f.Key, f.Value, f.Confidence)
}

func renderEpisode(e Episode) string {
	return fmt.Sprintf("- [%s] %s (when: %s; outcome: %s)", e.LessonType, e.Lesson, e.Situation, e.Outcome)
}

func renderChunk(c ScoredChunk) string {
	return fmt.Sprintf("- %s (score %.2f)", c.Text, c.Score)
}
