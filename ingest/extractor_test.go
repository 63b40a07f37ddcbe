package ingest

import (
	"strings"
	"testing"
)

func TestContentTypeFromExtension(t *testing.T) {
	cases := map[string]ContentType{
		".md":   TypeMarkdown,
		"html":  TypeHTML,
		".CSV":  TypeCSV,
		"json":  TypeJSON,
		".pdf":  TypePDF,
		".txt":  TypePlainText,
		"weird": TypePlainText,
	}
	for ext, want := range cases {
		if got := ContentTypeFromExtension(ext); got != want {
			t.Errorf("ContentTypeFromExtension(%q) = %q, want %q", ext, got, want)
		}
	}
}

func TestMarkdownExtractor(t *testing.T) {
	src := "# Title\n\nSome **bold** text with a [link](https://example.com).\n\n```go\nfunc main() {}\n```\n"
	text, err := MarkdownExtractor{}.Extract([]byte(src))
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	for _, want := range []string{"Title", "Some bold text", "link", "func main() {}"} {
		if !strings.Contains(text, want) {
			t.Errorf("extracted text missing %q:\n%s", want, text)
		}
	}
	for _, bad := range []string{"#", "**", "```", "https://example.com"} {
		if strings.Contains(text, bad) {
			t.Errorf("extracted text kept markup %q:\n%s", bad, text)
		}
	}
}

func TestHTMLExtractorFallback(t *testing.T) {
	// Too small for readability; exercises the tag-strip fallback.
	src := `<html><head><style>body{color:red}</style></head><body><p>Hello <b>world</b></p><script>alert(1)</script></body></html>`
	text, err := HTMLExtractor{}.Extract([]byte(src))
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if !strings.Contains(text, "Hello") || !strings.Contains(text, "world") {
		t.Errorf("text = %q", text)
	}
	if strings.Contains(text, "alert") || strings.Contains(text, "color:red") {
		t.Errorf("script/style leaked: %q", text)
	}
}

func TestCSVExtractor(t *testing.T) {
	src := "name,role\nana,driver\nbo,navigator\n"
	text, err := CSVExtractor{}.Extract([]byte(src))
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if !strings.Contains(text, "name: ana") || !strings.Contains(text, "role: navigator") {
		t.Errorf("text = %q", text)
	}
}

func TestJSONExtractor(t *testing.T) {
	src := `{"server":{"port":8080,"hosts":["a","b"]},"debug":true}`
	text, err := JSONExtractor{}.Extract([]byte(src))
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	for _, want := range []string{"server.port: 8080", "server.hosts.0: a", "debug: true"} {
		if !strings.Contains(text, want) {
			t.Errorf("text missing %q:\n%s", want, text)
		}
	}

	if _, err := (JSONExtractor{}).Extract([]byte("{broken")); err == nil {
		t.Error("malformed json accepted")
	}
}

func TestCollapseWhitespace(t *testing.T) {
	in := "  a  \n\n\n\n b \nc  "
	want := "a\n\nb\nc"
	if got := collapseWhitespace(in); got != want {
		t.Errorf("collapseWhitespace = %q, want %q", got, want)
	}
}
