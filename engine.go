package recall

import (
	"context"
	"log/slog"
	"time"
)

// Retriever answers queries from the memory substrates. Satisfied by *Reader
// and by instrumented wrappers around it.
type Retriever interface {
	Retrieve(ctx context.Context, projectID, query string, topK int) (Answer, error)
	RetrieveTyped(ctx context.Context, projectID, query string, memType MemoryType, topK int, filter SearchFilter) (Answer, error)
}

// Analyzer extracts candidate memories from conversation turns. Satisfied by
// *analyze.Analyzer.
type Analyzer interface {
	ShouldAnalyze(text string) bool
	Analyze(ctx context.Context, projectID string, turn DialogTurn) (Extraction, error)
}

// Ingestor turns raw content into stored semantic memory. Satisfied by
// *ingest.Ingestor.
type Ingestor interface {
	IngestText(ctx context.Context, projectID, text, source string, metadata map[string]string) (IngestResult, error)
	IngestFile(ctx context.Context, projectID string, content []byte, filename string, metadata map[string]string) (IngestResult, error)
}

// AnalyzeResult is the outcome of analyzing a turn, plus commit counts when
// the caller asked for the candidates to be stored.
type AnalyzeResult struct {
	Extraction
	Committed      bool `json:"committed"`
	FactsStored    int  `json:"facts_stored"`
	EpisodesStored int  `json:"episodes_stored"`
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithEngineLogger sets a structured logger.
func WithEngineLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) { e.logger = l }
}

// WithEngineRetriever replaces the default reader, e.g. with an instrumented
// wrapper.
func WithEngineRetriever(r Retriever) EngineOption {
	return func(e *Engine) { e.reader = r }
}

// WithEngineAssembler replaces the default assembler.
func WithEngineAssembler(a *Assembler) EngineOption {
	return func(e *Engine) { e.assembler = a }
}

// WithEngineAnalyzer enables the conversation analyzer.
func WithEngineAnalyzer(a Analyzer) EngineOption {
	return func(e *Engine) { e.analyzer = a }
}

// WithEngineIngestor enables document ingestion.
func WithEngineIngestor(i Ingestor) EngineOption {
	return func(e *Engine) { e.ingestor = i }
}

// WithEngineCache sets the query result cache. The engine invalidates a
// project's entries after every committed write to it.
func WithEngineCache(c ResultCache) EngineOption {
	return func(e *Engine) { e.cache = c }
}

// WithEngineEmbedding sets the embedding provider used by the default reader.
// Ignored when WithEngineRetriever is given.
func WithEngineEmbedding(p EmbeddingProvider) EngineOption {
	return func(e *Engine) { e.embedding = p }
}

// Engine is the orchestrator behind the tool surface. It owns no policy of
// its own: reads go through the reader and assembler, writes go to the store
// (or the ingestor for documents), and every committed write invalidates the
// project's cached answers.
type Engine struct {
	store     Store
	embedding EmbeddingProvider
	reader    Retriever
	assembler *Assembler
	analyzer  Analyzer // nil if not configured
	ingestor  Ingestor // nil if not configured
	cache     ResultCache
	logger    *slog.Logger
}

// NewEngine creates an Engine over a store. Without further options the
// engine reads symbolic and episodic memory only; wire an embedding provider
// or a custom reader for the semantic leg, and an ingestor to accept
// documents.
func NewEngine(store Store, opts ...EngineOption) *Engine {
	e := &Engine{
		store:  store,
		logger: NopLogger(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.reader == nil {
		ropts := []ReaderOption{WithReaderLogger(e.logger)}
		if e.cache != nil {
			ropts = append(ropts, WithReaderCache(e.cache))
		}
		e.reader = NewReader(store, e.embedding, ropts...)
	}
	if e.assembler == nil {
		e.assembler = NewAssembler()
	}
	return e
}

// invalidate drops the project's cached answers after a committed write.
func (e *Engine) invalidate(projectID string) {
	if e.cache != nil {
		e.cache.InvalidateProject(projectID)
	}
}

// --- Projects ---

// ListProjects returns all registered projects.
func (e *Engine) ListProjects(ctx context.Context) ([]ProjectInfo, error) {
	return e.store.ListProjects(ctx)
}

// CreateProject registers a project derived from name and returns its ID.
func (e *Engine) CreateProject(ctx context.Context, name string) (string, error) {
	id, err := NewProjectID(name)
	if err != nil {
		return "", err
	}
	if err := e.store.EnsureProject(ctx, id); err != nil {
		return "", err
	}
	return id, nil
}

// DeleteProject removes a project and everything stored under it.
func (e *Engine) DeleteProject(ctx context.Context, projectID string) error {
	if err := e.store.DeleteProject(ctx, projectID); err != nil {
		return err
	}
	e.invalidate(projectID)
	return nil
}

// --- Reads ---

// ListDocuments returns a project's ingested sources, newest first.
func (e *Engine) ListDocuments(ctx context.Context, projectID string) ([]Document, error) {
	return e.store.ListDocuments(ctx, projectID)
}

// Search answers a query with the merged, authority-ordered item list.
func (e *Engine) Search(ctx context.Context, projectID, query string, topK int) (Answer, error) {
	return e.reader.Retrieve(ctx, projectID, query, topK)
}

// SearchTyped answers a query from a single memory substrate. The metadata
// filter applies to semantic hits only.
func (e *Engine) SearchTyped(ctx context.Context, projectID, query string, memType MemoryType, topK int, filter SearchFilter) (Answer, error) {
	return e.reader.RetrieveTyped(ctx, projectID, query, memType, topK, filter)
}

// GetContext retrieves and renders a prompt-ready context block for a query.
func (e *Engine) GetContext(ctx context.Context, projectID, query string, topK int) (string, Answer, error) {
	ans, err := e.reader.Retrieve(ctx, projectID, query, topK)
	if err != nil {
		return "", Answer{}, err
	}
	return e.assembler.Assemble(ans), ans, nil
}

// --- Writes ---

// AddFact stores or updates a symbolic fact.
func (e *Engine) AddFact(ctx context.Context, f Fact) (AddFactResult, error) {
	res, err := e.store.AddFact(ctx, f)
	if err != nil {
		return AddFactResult{}, err
	}
	if !res.Ignored {
		e.invalidate(f.ProjectID)
	}
	return res, nil
}

// AddEpisode stores an episodic lesson.
func (e *Engine) AddEpisode(ctx context.Context, ep Episode) (AddEpisodeResult, error) {
	res, err := e.store.AddEpisode(ctx, ep)
	if err != nil {
		return AddEpisodeResult{}, err
	}
	if !res.Discarded {
		e.invalidate(ep.ProjectID)
	}
	return res, nil
}

// IngestText ingests raw text as a document.
func (e *Engine) IngestText(ctx context.Context, projectID, text, source string, metadata map[string]string) (IngestResult, error) {
	if e.ingestor == nil {
		return IngestResult{}, E(KindInvalidInput, "ingestion is not configured")
	}
	res, err := e.ingestor.IngestText(ctx, projectID, text, source, metadata)
	if err != nil {
		return IngestResult{}, err
	}
	e.invalidate(projectID)
	return res, nil
}

// IngestFile ingests file content, detecting the format from the filename.
func (e *Engine) IngestFile(ctx context.Context, projectID string, content []byte, filename string, metadata map[string]string) (IngestResult, error) {
	if e.ingestor == nil {
		return IngestResult{}, E(KindInvalidInput, "ingestion is not configured")
	}
	res, err := e.ingestor.IngestFile(ctx, projectID, content, filename, metadata)
	if err != nil {
		return IngestResult{}, err
	}
	e.invalidate(projectID)
	return res, nil
}

// DeleteDocument removes a document and its chunks and vectors.
func (e *Engine) DeleteDocument(ctx context.Context, projectID, docID string) error {
	if err := e.store.DeleteDocument(ctx, projectID, docID); err != nil {
		return err
	}
	e.invalidate(projectID)
	return nil
}

// --- Analysis ---

// Analyze proposes candidate memories for a turn and, when commit is set,
// stores the candidates that survive the stores' own gates. A turn below the
// analyzer's filters yields an empty result, not an error.
func (e *Engine) Analyze(ctx context.Context, projectID string, turn DialogTurn, commit bool) (AnalyzeResult, error) {
	if e.analyzer == nil {
		return AnalyzeResult{}, E(KindInvalidInput, "analysis is not configured")
	}
	start := time.Now()
	ext, err := e.analyzer.Analyze(ctx, projectID, turn)
	if err != nil {
		return AnalyzeResult{}, err
	}
	res := AnalyzeResult{Extraction: ext}
	if !commit {
		return res, nil
	}

	res.Committed = true
	for _, f := range ext.Facts {
		fr, err := e.store.AddFact(ctx, f)
		if err != nil {
			return res, Wrap(KindOf(err), err, "commit fact %s", f.Key)
		}
		if !fr.Ignored {
			res.FactsStored++
		}
	}
	for _, ep := range ext.Episodes {
		er, err := e.store.AddEpisode(ctx, ep)
		if err != nil {
			return res, Wrap(KindOf(err), err, "commit episode")
		}
		if !er.Discarded {
			res.EpisodesStored++
		}
	}
	if res.FactsStored+res.EpisodesStored > 0 {
		e.invalidate(projectID)
	}
	e.logger.Debug("engine: turn analyzed",
		"project_id", projectID, "committed", commit,
		"facts_stored", res.FactsStored, "episodes_stored", res.EpisodesStored,
		"duration_ms", time.Since(start).Milliseconds())
	return res, nil
}

// Close releases the underlying store.
func (e *Engine) Close() error {
	return e.store.Close()
}
