package mcp

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/nevindra/recall"
)

// envelope is the uniform tool payload. Every call carries a trace ID so a
// client-reported failure can be matched to server logs; errors additionally
// carry the structured kind and whether a retry can help.
type envelope struct {
	Status  string `json:"status"`
	TraceID string `json:"trace_id"`
	Result  any    `json:"result,omitempty"`

	Kind      string `json:"kind,omitempty"`
	Message   string `json:"message,omitempty"`
	Retryable bool   `json:"retryable,omitempty"`
}

// traceID returns the active span's trace ID, or a fresh UUID when the call
// is not traced.
func traceID(ctx context.Context) string {
	if sc := trace.SpanFromContext(ctx).SpanContext(); sc.HasTraceID() {
		return sc.TraceID().String()
	}
	return recall.NewID()
}

func ok(ctx context.Context, result any) ToolCallResult {
	data, err := json.Marshal(envelope{Status: "ok", TraceID: traceID(ctx), Result: result})
	if err != nil {
		return fail(ctx, recall.Wrap(recall.KindInternal, err, "marshal result"))
	}
	return TextResult(string(data))
}

func fail(ctx context.Context, err error) ToolCallResult {
	env := envelope{
		Status:  "error",
		TraceID: traceID(ctx),
		Kind:    string(recall.KindInternal),
		Message: err.Error(),
	}
	var re *recall.Error
	if errors.As(err, &re) {
		env.Kind = string(re.Kind)
		env.Retryable = re.Retryable()
	}
	data, _ := json.Marshal(env)
	return ToolCallResult{Content: []textContent{{Type: "text", Text: string(data)}}, IsError: true}
}

// decode unmarshals tool arguments, treating malformed JSON as caller error.
func decode[T any](args json.RawMessage, into *T) error {
	if len(args) == 0 {
		return nil
	}
	if err := json.Unmarshal(args, into); err != nil {
		return recall.Wrap(recall.KindInvalidInput, err, "decode arguments")
	}
	return nil
}

// objectSchema builds a JSON Schema for an object with the given properties.
func objectSchema(props map[string]any, required ...string) map[string]any {
	s := map[string]any{"type": "object", "properties": props}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

func strProp(desc string) map[string]any {
	return map[string]any{"type": "string", "description": desc}
}

func numProp(desc string) map[string]any {
	return map[string]any{"type": "number", "description": desc}
}

func intProp(desc string) map[string]any {
	return map[string]any{"type": "integer", "description": desc}
}

func boolProp(desc string) map[string]any {
	return map[string]any{"type": "boolean", "description": desc}
}

// RegisterTools wires the full memory tool surface onto the server.
func RegisterTools(srv *Server, eng *recall.Engine) {
	srv.AddTool(projList(eng))
	srv.AddTool(projDelete(eng))
	srv.AddTool(srcList(eng))
	srv.AddTool(ctxGet(eng))
	srv.AddTool(memSearch(eng))
	srv.AddTool(memIngest(eng))
	srv.AddTool(memFactAdd(eng))
	srv.AddTool(memEpAdd(eng))
	srv.AddTool(memDocDelete(eng))
	srv.AddTool(memAnalyze(eng))
}

// RegisterResources exposes read-only views of the engine state.
func RegisterResources(srv *Server, eng *recall.Engine) {
	srv.AddResource(Resource{
		URI:         "recall://projects",
		Name:        "Projects",
		Description: "Registered memory projects, one per line",
		MimeType:    "text/plain",
		Read: func() string {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			projects, err := eng.ListProjects(ctx)
			if err != nil {
				return "error: " + err.Error()
			}
			var b strings.Builder
			for _, p := range projects {
				fmt.Fprintf(&b, "%s\t%s\n", p.ID, time.Unix(p.CreatedAt, 0).UTC().Format(time.RFC3339))
			}
			return b.String()
		},
	})
}

// --- tools ---

func projList(eng *recall.Engine) ToolHandler {
	return ToolHandler{
		Definition: ToolDefinition{
			Name:        "proj.list",
			Description: "List all registered memory projects.",
			InputSchema: objectSchema(map[string]any{}),
		},
		Execute: func(ctx context.Context, args json.RawMessage) ToolCallResult {
			projects, err := eng.ListProjects(ctx)
			if err != nil {
				return fail(ctx, err)
			}
			return ok(ctx, map[string]any{"projects": projects})
		},
	}
}

func projDelete(eng *recall.Engine) ToolHandler {
	return ToolHandler{
		Definition: ToolDefinition{
			Name:        "proj.delete",
			Description: "Delete a project and all memories stored under it. Irreversible.",
			InputSchema: objectSchema(map[string]any{
				"project_id": strProp("Project identifier (name-shortuuid)"),
			}, "project_id"),
		},
		Execute: func(ctx context.Context, args json.RawMessage) ToolCallResult {
			var p struct {
				ProjectID string `json:"project_id"`
			}
			if err := decode(args, &p); err != nil {
				return fail(ctx, err)
			}
			if err := eng.DeleteProject(ctx, p.ProjectID); err != nil {
				return fail(ctx, err)
			}
			return ok(ctx, map[string]any{"deleted": p.ProjectID})
		},
	}
}

func srcList(eng *recall.Engine) ToolHandler {
	return ToolHandler{
		Definition: ToolDefinition{
			Name:        "src.list",
			Description: "List a project's ingested documents, newest first.",
			InputSchema: objectSchema(map[string]any{
				"project_id": strProp("Project identifier"),
			}, "project_id"),
		},
		Execute: func(ctx context.Context, args json.RawMessage) ToolCallResult {
			var p struct {
				ProjectID string `json:"project_id"`
			}
			if err := decode(args, &p); err != nil {
				return fail(ctx, err)
			}
			docs, err := eng.ListDocuments(ctx, p.ProjectID)
			if err != nil {
				return fail(ctx, err)
			}
			return ok(ctx, map[string]any{"documents": docs})
		},
	}
}

func ctxGet(eng *recall.Engine) ToolHandler {
	return ToolHandler{
		Definition: ToolDefinition{
			Name:        "ctx.get",
			Description: "Retrieve memory for a query and render it as a prompt-ready context block.",
			InputSchema: objectSchema(map[string]any{
				"project_id": strProp("Project identifier"),
				"query":      strProp("What the caller is working on"),
				"top_k":      intProp("Maximum results per memory substrate (default 10)"),
			}, "project_id", "query"),
		},
		Execute: func(ctx context.Context, args json.RawMessage) ToolCallResult {
			var p struct {
				ProjectID string `json:"project_id"`
				Query     string `json:"query"`
				TopK      int    `json:"top_k"`
			}
			if err := decode(args, &p); err != nil {
				return fail(ctx, err)
			}
			block, ans, err := eng.GetContext(ctx, p.ProjectID, p.Query, p.TopK)
			if err != nil {
				return fail(ctx, err)
			}
			return ok(ctx, map[string]any{
				"context":   block,
				"items":     len(ans.Items),
				"conflicts": ans.Conflicts,
				"cached":    ans.Cached,
			})
		},
	}
}

func memSearch(eng *recall.Engine) ToolHandler {
	return ToolHandler{
		Definition: ToolDefinition{
			Name:        "mem.search",
			Description: "Search memory. With memory_type, return typed hits from that single substrate (semantic, symbolic, or episodic); without it, return the merged, authority-ordered items. Filters are metadata equality predicates applied to semantic hits.",
			InputSchema: objectSchema(map[string]any{
				"project_id":  strProp("Project identifier"),
				"query":       strProp("Search query"),
				"memory_type": strProp("Restrict to one substrate: semantic, symbolic, or episodic"),
				"top_k":       intProp("Maximum results per memory substrate (default 10)"),
				"filters":     map[string]any{"type": "object", "description": "Metadata equality predicates for semantic hits"},
			}, "project_id", "query"),
		},
		Execute: func(ctx context.Context, args json.RawMessage) ToolCallResult {
			var p struct {
				ProjectID  string            `json:"project_id"`
				Query      string            `json:"query"`
				MemoryType string            `json:"memory_type"`
				TopK       int               `json:"top_k"`
				Filters    map[string]string `json:"filters"`
			}
			if err := decode(args, &p); err != nil {
				return fail(ctx, err)
			}
			var (
				ans recall.Answer
				err error
			)
			if p.MemoryType == "" {
				ans, err = eng.Search(ctx, p.ProjectID, p.Query, p.TopK)
			} else {
				ans, err = eng.SearchTyped(ctx, p.ProjectID, p.Query,
					recall.MemoryType(p.MemoryType), p.TopK, recall.SearchFilter(p.Filters))
			}
			if err != nil {
				return fail(ctx, err)
			}
			return ok(ctx, ans)
		},
	}
}

func memIngest(eng *recall.Engine) ToolHandler {
	return ToolHandler{
		Definition: ToolDefinition{
			Name:        "mem.ingest",
			Description: "Ingest a document into semantic memory. Provide text, or base64 content with a filename for format detection (md, html, pdf, csv, json).",
			InputSchema: objectSchema(map[string]any{
				"project_id": strProp("Project identifier"),
				"text":       strProp("Raw text to ingest"),
				"content":    strProp("Base64-encoded file content (alternative to text)"),
				"filename":   strProp("Source filename, drives format detection"),
				"metadata":   map[string]any{"type": "object", "description": "String metadata attached to every chunk"},
			}, "project_id"),
		},
		Execute: func(ctx context.Context, args json.RawMessage) ToolCallResult {
			var p struct {
				ProjectID string            `json:"project_id"`
				Text      string            `json:"text"`
				Content   string            `json:"content"`
				Filename  string            `json:"filename"`
				Metadata  map[string]string `json:"metadata"`
			}
			if err := decode(args, &p); err != nil {
				return fail(ctx, err)
			}
			var (
				res recall.IngestResult
				err error
			)
			switch {
			case p.Content != "":
				raw, decErr := base64.StdEncoding.DecodeString(p.Content)
				if decErr != nil {
					return fail(ctx, recall.Wrap(recall.KindInvalidInput, decErr, "decode content"))
				}
				if p.Filename == "" {
					return fail(ctx, recall.E(recall.KindInvalidInput, "content requires a filename"))
				}
				res, err = eng.IngestFile(ctx, p.ProjectID, raw, p.Filename, p.Metadata)
			case p.Text != "":
				source := p.Filename
				if source == "" {
					source = "inline"
				}
				res, err = eng.IngestText(ctx, p.ProjectID, p.Text, source, p.Metadata)
			default:
				return fail(ctx, recall.E(recall.KindInvalidInput, "either text or content is required"))
			}
			if err != nil {
				return fail(ctx, err)
			}
			return ok(ctx, res)
		},
	}
}

func memFactAdd(eng *recall.Engine) ToolHandler {
	return ToolHandler{
		Definition: ToolDefinition{
			Name:        "mem.fact.add",
			Description: "Store a symbolic fact. An existing fact with the same scope/category/key is overwritten only by higher confidence or a higher-ranked source.",
			InputSchema: objectSchema(map[string]any{
				"project_id": strProp("Project identifier"),
				"scope":      strProp("Fact scope, e.g. user, project, session"),
				"category":   strProp("Fact category, e.g. preference, decision"),
				"key":        strProp("Fact key, unique within scope and category"),
				"value":      strProp("Fact value"),
				"confidence": numProp("Confidence in [0,1]"),
				"source":     strProp("Who asserts this: user, agent, extractor, import (default user)"),
			}, "project_id", "scope", "category", "key", "value", "confidence"),
		},
		Execute: func(ctx context.Context, args json.RawMessage) ToolCallResult {
			var p struct {
				ProjectID  string  `json:"project_id"`
				Scope      string  `json:"scope"`
				Category   string  `json:"category"`
				Key        string  `json:"key"`
				Value      string  `json:"value"`
				Confidence float64 `json:"confidence"`
				Source     string  `json:"source"`
			}
			if err := decode(args, &p); err != nil {
				return fail(ctx, err)
			}
			if p.Source == "" {
				p.Source = string(recall.SourceUser)
			}
			res, err := eng.AddFact(ctx, recall.Fact{
				ProjectID:  p.ProjectID,
				Scope:      p.Scope,
				Category:   p.Category,
				Key:        p.Key,
				Value:      p.Value,
				Confidence: p.Confidence,
				Source:     recall.Source(p.Source),
			})
			if err != nil {
				return fail(ctx, err)
			}
			return ok(ctx, res)
		},
	}
}

func memEpAdd(eng *recall.Engine) ToolHandler {
	return ToolHandler{
		Definition: ToolDefinition{
			Name:        "mem.ep.add",
			Description: "Store an episodic lesson (situation, action, outcome, lesson). Duplicates within the dedup window increment the existing episode instead.",
			InputSchema: objectSchema(map[string]any{
				"project_id":  strProp("Project identifier"),
				"situation":   strProp("What was happening"),
				"action":      strProp("What was done"),
				"outcome":     strProp("How it turned out"),
				"lesson":      strProp("What to remember"),
				"lesson_type": strProp("pattern, antipattern, procedure, or warning"),
				"confidence":  numProp("Confidence in [0,1]"),
				"quality":     numProp("Quality in [0,1] (default 0.5)"),
			}, "project_id", "situation", "action", "outcome", "lesson", "lesson_type", "confidence"),
		},
		Execute: func(ctx context.Context, args json.RawMessage) ToolCallResult {
			var p struct {
				ProjectID  string  `json:"project_id"`
				Situation  string  `json:"situation"`
				Action     string  `json:"action"`
				Outcome    string  `json:"outcome"`
				Lesson     string  `json:"lesson"`
				LessonType string  `json:"lesson_type"`
				Confidence float64 `json:"confidence"`
				Quality    float64 `json:"quality"`
			}
			if err := decode(args, &p); err != nil {
				return fail(ctx, err)
			}
			if p.Quality == 0 {
				p.Quality = 0.5
			}
			res, err := eng.AddEpisode(ctx, recall.Episode{
				ProjectID:  p.ProjectID,
				Situation:  p.Situation,
				Action:     p.Action,
				Outcome:    p.Outcome,
				Lesson:     p.Lesson,
				LessonType: recall.LessonType(p.LessonType),
				Confidence: p.Confidence,
				Quality:    p.Quality,
			})
			if err != nil {
				return fail(ctx, err)
			}
			return ok(ctx, res)
		},
	}
}

func memDocDelete(eng *recall.Engine) ToolHandler {
	return ToolHandler{
		Definition: ToolDefinition{
			Name:        "mem.doc.delete",
			Description: "Delete an ingested document with its chunks and vectors.",
			InputSchema: objectSchema(map[string]any{
				"project_id": strProp("Project identifier"),
				"doc_id":     strProp("Document identifier"),
			}, "project_id", "doc_id"),
		},
		Execute: func(ctx context.Context, args json.RawMessage) ToolCallResult {
			var p struct {
				ProjectID string `json:"project_id"`
				DocID     string `json:"doc_id"`
			}
			if err := decode(args, &p); err != nil {
				return fail(ctx, err)
			}
			if err := eng.DeleteDocument(ctx, p.ProjectID, p.DocID); err != nil {
				return fail(ctx, err)
			}
			return ok(ctx, map[string]any{"deleted": p.DocID})
		},
	}
}

func memAnalyze(eng *recall.Engine) ToolHandler {
	return ToolHandler{
		Definition: ToolDefinition{
			Name:        "mem.analyze",
			Description: "Extract candidate facts and lessons from one conversation turn. Set commit to store the candidates.",
			InputSchema: objectSchema(map[string]any{
				"project_id": strProp("Project identifier"),
				"user":       strProp("The user's message"),
				"assistant":  strProp("The assistant's reply, if any"),
				"commit":     boolProp("Store surviving candidates (default false)"),
			}, "project_id", "user"),
		},
		Execute: func(ctx context.Context, args json.RawMessage) ToolCallResult {
			var p struct {
				ProjectID string `json:"project_id"`
				User      string `json:"user"`
				Assistant string `json:"assistant"`
				Commit    bool   `json:"commit"`
			}
			if err := decode(args, &p); err != nil {
				return fail(ctx, err)
			}
			res, err := eng.Analyze(ctx, p.ProjectID,
				recall.DialogTurn{User: p.User, Assistant: p.Assistant}, p.Commit)
			if err != nil {
				return fail(ctx, err)
			}
			return ok(ctx, res)
		},
	}
}
