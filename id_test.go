package recall

import (
	"strings"
	"testing"
)

func TestNewIDUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := NewID()
		if len(id) != 36 {
			t.Fatalf("id %q: want 36 chars", id)
		}
		if seen[id] {
			t.Fatalf("duplicate id %q", id)
		}
		seen[id] = true
	}
}

func TestNewProjectID(t *testing.T) {
	id, err := NewProjectID("My Project")
	if err != nil {
		t.Fatalf("NewProjectID: %v", err)
	}
	if !strings.HasPrefix(id, "my-project-") {
		t.Errorf("id = %q, want my-project-* prefix", id)
	}
	if err := ValidateProjectID(id); err != nil {
		t.Errorf("generated id failed validation: %v", err)
	}
}

func TestNewProjectIDRejectsEmpty(t *testing.T) {
	for _, name := range []string{"", "   ", "!!!", strings.Repeat("a", 33)} {
		if _, err := NewProjectID(name); err == nil {
			t.Errorf("NewProjectID(%q): want error", name)
		} else if !IsKind(err, KindInvalidInput) {
			t.Errorf("NewProjectID(%q): kind = %s", name, KindOf(err))
		}
	}
}

func TestValidateProjectID(t *testing.T) {
	valid := []string{"demo-abcd1234", "a-00000000", "my-app-deadbeef"}
	for _, id := range valid {
		if err := ValidateProjectID(id); err != nil {
			t.Errorf("ValidateProjectID(%q): %v", id, err)
		}
	}

	invalid := []string{
		"",
		"noseparator",
		"demo-",
		"-abcd1234",
		"demo-abcd123",   // 7 hex chars
		"demo-abcd12345", // 9 hex chars
		"demo-ABCD1234",  // uppercase hex
		"demo-ghij1234",  // non-hex
		"Demo-abcd1234",  // uppercase name
		strings.Repeat("a", 33) + "-abcd1234",
	}
	for _, id := range invalid {
		err := ValidateProjectID(id)
		if err == nil {
			t.Errorf("ValidateProjectID(%q): want error", id)
			continue
		}
		if !IsKind(err, KindInvalidInput) {
			t.Errorf("ValidateProjectID(%q): kind = %s", id, KindOf(err))
		}
	}
}

func TestSlugify(t *testing.T) {
	cases := []struct{ in, want string }{
		{"My Project", "my-project"},
		{"  spaced  ", "spaced"},
		{"under_score", "under-score"},
		{"--edges--", "edges"},
		{"Ünïcode!", "ncode"},
	}
	for _, c := range cases {
		if got := slugify(c.in); got != c.want {
			t.Errorf("slugify(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}
