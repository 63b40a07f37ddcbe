package ingest

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"sort"
	"strconv"
	"strings"

	readability "github.com/go-shiori/go-readability"
	"github.com/ledongthuc/pdf"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	gmtext "github.com/yuin/goldmark/text"
)

// Extractor converts raw content to plain text.
type Extractor interface {
	Extract(content []byte) (string, error)
}

// ContentType identifies the MIME type of content for extraction.
type ContentType string

const (
	TypePlainText ContentType = "text/plain"
	TypeHTML      ContentType = "text/html"
	TypeMarkdown  ContentType = "text/markdown"
	TypeCSV       ContentType = "text/csv"
	TypeJSON      ContentType = "application/json"
	TypePDF       ContentType = "application/pdf"
)

// ContentTypeFromExtension maps file extensions to content types.
func ContentTypeFromExtension(ext string) ContentType {
	switch strings.ToLower(strings.TrimPrefix(ext, ".")) {
	case "md", "markdown":
		return TypeMarkdown
	case "html", "htm":
		return TypeHTML
	case "csv":
		return TypeCSV
	case "json":
		return TypeJSON
	case "pdf":
		return TypePDF
	default:
		return TypePlainText
	}
}

// --- Built-in extractors ---

// PlainTextExtractor returns content as-is.
type PlainTextExtractor struct{}

func (PlainTextExtractor) Extract(content []byte) (string, error) {
	return string(content), nil
}

// MarkdownExtractor renders markdown to plain text by walking the goldmark
// AST and keeping text and code content only.
type MarkdownExtractor struct{}

func (MarkdownExtractor) Extract(content []byte) (string, error) {
	var b strings.Builder
	root := goldmark.DefaultParser().Parse(gmtext.NewReader(content))
	err := ast.Walk(root, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			if n.Type() == ast.TypeBlock {
				b.WriteByte('\n')
			}
			return ast.WalkContinue, nil
		}
		switch t := n.(type) {
		case *ast.Text:
			b.Write(t.Segment.Value(content))
			if t.SoftLineBreak() || t.HardLineBreak() {
				b.WriteByte('\n')
			}
		case *ast.FencedCodeBlock, *ast.CodeBlock:
			lines := t.(interface{ Lines() *gmtext.Segments }).Lines()
			for i := 0; i < lines.Len(); i++ {
				seg := lines.At(i)
				b.Write(seg.Value(content))
			}
		case *ast.AutoLink:
			b.Write(t.URL(content))
		}
		return ast.WalkContinue, nil
	})
	if err != nil {
		return "", fmt.Errorf("walk markdown: %w", err)
	}
	return collapseWhitespace(b.String()), nil
}

// HTMLExtractor extracts the readable article body via go-readability and
// falls back to a plain tag strip when readability rejects the page (too
// little content, no article structure).
type HTMLExtractor struct{}

var stubPageURL = &url.URL{Scheme: "http", Host: "localhost"}

func (HTMLExtractor) Extract(content []byte) (string, error) {
	article, err := readability.FromReader(bytes.NewReader(content), stubPageURL)
	if err == nil && strings.TrimSpace(article.TextContent) != "" {
		return collapseWhitespace(article.TextContent), nil
	}
	return collapseWhitespace(stripTags(string(content))), nil
}

// PDFExtractor extracts text from PDF content.
type PDFExtractor struct{}

func (PDFExtractor) Extract(content []byte) (string, error) {
	r, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}
	text, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("extract pdf text: %w", err)
	}
	data, err := io.ReadAll(text)
	if err != nil {
		return "", fmt.Errorf("read pdf text: %w", err)
	}
	return collapseWhitespace(string(data)), nil
}

// CSVExtractor renders each row as "header: value" pairs so column names
// survive into the embedded text.
type CSVExtractor struct{}

func (CSVExtractor) Extract(content []byte) (string, error) {
	r := csv.NewReader(bytes.NewReader(content))
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return "", fmt.Errorf("parse csv: %w", err)
	}
	if len(records) == 0 {
		return "", nil
	}

	header := records[0]
	var b strings.Builder
	for _, row := range records[1:] {
		var pairs []string
		for i, v := range row {
			if v == "" {
				continue
			}
			if i < len(header) && header[i] != "" {
				pairs = append(pairs, header[i]+": "+v)
			} else {
				pairs = append(pairs, v)
			}
		}
		b.WriteString(strings.Join(pairs, ", "))
		b.WriteByte('\n')
	}
	if b.Len() == 0 {
		// Single-row file; treat the header as data.
		b.WriteString(strings.Join(header, ", "))
	}
	return collapseWhitespace(b.String()), nil
}

// JSONExtractor flattens a JSON document into "path: value" lines, one per
// scalar, with deterministic key order.
type JSONExtractor struct{}

func (JSONExtractor) Extract(content []byte) (string, error) {
	var v any
	if err := json.Unmarshal(content, &v); err != nil {
		return "", fmt.Errorf("parse json: %w", err)
	}
	var lines []string
	flattenJSON("", v, &lines)
	return strings.Join(lines, "\n"), nil
}

func flattenJSON(path string, v any, out *[]string) {
	switch t := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			flattenJSON(joinPath(path, k), t[k], out)
		}
	case []any:
		for i, e := range t {
			flattenJSON(joinPath(path, strconv.Itoa(i)), e, out)
		}
	case nil:
	case string:
		*out = append(*out, path+": "+t)
	default:
		*out = append(*out, fmt.Sprintf("%s: %v", path, t))
	}
}

func joinPath(path, key string) string {
	if path == "" {
		return key
	}
	return path + "." + key
}

// stripTags removes HTML tags and script/style bodies. Fallback path only;
// the readability extraction is preferred.
func stripTags(content string) string {
	var b strings.Builder
	b.Grow(len(content))
	inTag, skip := false, false
	var tag strings.Builder
	for _, r := range content {
		switch {
		case r == '<':
			inTag = true
			tag.Reset()
		case inTag && r == '>':
			inTag = false
			raw := strings.TrimSpace(tag.String())
			closing := strings.HasPrefix(raw, "/")
			name := strings.TrimPrefix(raw, "/")
			if i := strings.IndexAny(name, " \t\n"); i >= 0 {
				name = name[:i]
			}
			switch strings.ToLower(name) {
			case "script", "style":
				skip = !closing
			}
			b.WriteByte(' ')
		case inTag:
			tag.WriteRune(r)
		case skip:
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// collapseWhitespace trims lines and collapses blank runs to at most one
// empty line.
func collapseWhitespace(text string) string {
	var b strings.Builder
	empty := 0
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			if b.Len() > 0 {
				empty++
			}
			continue
		}
		if empty > 0 {
			b.WriteByte('\n')
			if empty > 1 {
				b.WriteByte('\n')
			}
		} else if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(trimmed)
		empty = 0
	}
	return strings.TrimSpace(b.String())
}
