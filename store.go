package recall

import "context"

// ProjectInfo is a registry entry for one tenant.
type ProjectInfo struct {
	ID        string `json:"project_id"`
	CreatedAt int64  `json:"created_at"`
}

// FactQuery filters symbolic memory. Zero-valued fields match everything.
type FactQuery struct {
	Scope         string
	Category      string
	Key           string
	MinConfidence float64
	Limit         int
}

// AddFactResult reports what an upsert did. Replaced means an existing row
// was overwritten; Ignored means the write lost to an existing row at equal
// or higher authority (an observation entry was still recorded).
type AddFactResult struct {
	Fact     Fact `json:"fact"`
	Replaced bool `json:"replaced"`
	Ignored  bool `json:"ignored"`
}

// SymbolicStore holds scoped key/value facts with audit history.
type SymbolicStore interface {
	// AddFact upserts a fact. An existing row with the same
	// (project, scope, category, key) is overwritten only when the incoming
	// confidence is strictly greater or the incoming source ranks higher;
	// otherwise the write is recorded as an observation and ignored.
	AddFact(ctx context.Context, f Fact) (AddFactResult, error)
	// QueryFacts returns active facts ordered by confidence desc, then
	// updated_at desc.
	QueryFacts(ctx context.Context, projectID string, q FactQuery) ([]Fact, error)
	// ListScopes returns the distinct scopes present in a project.
	ListScopes(ctx context.Context, projectID string) ([]string, error)
	// ListCategories returns the distinct categories within a scope.
	ListCategories(ctx context.Context, projectID, scope string) ([]string, error)
	// DeleteFact soft-deletes a fact, appending a final history entry.
	DeleteFact(ctx context.Context, projectID, factID string) error
	// FactHistory returns the audit trail for a fact, oldest first.
	FactHistory(ctx context.Context, projectID, factID string) ([]FactChange, error)
}

// EpisodeQuery filters episodic memory.
type EpisodeQuery struct {
	LessonType    LessonType
	MinConfidence float64
	MinQuality    float64
	Contains      string // substring match over situation or lesson
	TopK          int
}

// AddEpisodeResult reports whether the episode was inserted, collapsed into
// an existing row within the active deduplication window, or discarded for
// falling below the store's confidence floor.
type AddEpisodeResult struct {
	Episode   Episode `json:"episode"`
	Deduped   bool    `json:"deduped"`
	Discarded bool    `json:"discarded"`
}

// EpisodicStore holds situation/action/outcome/lesson records.
type EpisodicStore interface {
	// AddEpisode inserts an episode, or bumps the ref_count of an existing
	// episode with the same fingerprint inside the deduplication window.
	AddEpisode(ctx context.Context, e Episode) (AddEpisodeResult, error)
	// QueryEpisodes returns episodes ordered by confidence*quality desc,
	// then recency.
	QueryEpisodes(ctx context.Context, projectID string, q EpisodeQuery) ([]ScoredEpisode, error)
	// ListRecentEpisodes returns the most recently touched episodes.
	ListRecentEpisodes(ctx context.Context, projectID string, limit int) ([]Episode, error)
}

// SearchFilter holds metadata equality predicates applied after vector search.
type SearchFilter map[string]string

// SemanticStore holds chunked documents with dense vectors.
type SemanticStore interface {
	// AddDocument stores a document with its pre-embedded chunks,
	// all-or-nothing. Chunks must carry embeddings of the store dimension.
	AddDocument(ctx context.Context, doc Document, chunks []Chunk) error
	// Search returns the top-k chunks by cosine similarity within the
	// project, post-filtered by metadata predicates, sorted by score desc.
	Search(ctx context.Context, projectID string, queryEmbedding []float32, topK int, filter SearchFilter) ([]ScoredChunk, error)
	// DeleteDocument removes a document, its chunks, and their vectors
	// atomically. A missing document reports KindNotFound.
	DeleteDocument(ctx context.Context, projectID, docID string) error
	// GetChunk fetches one chunk by ID.
	GetChunk(ctx context.Context, projectID, chunkID string) (Chunk, error)
	// ListDocuments returns the project's documents, newest first.
	ListDocuments(ctx context.Context, projectID string) ([]Document, error)
}

// Registry tracks tenants. Projects are created on first write and deleted
// explicitly with a cascade over all four entity kinds.
type Registry interface {
	// EnsureProject validates the ID and registers the project if new.
	EnsureProject(ctx context.Context, projectID string) error
	// ListProjects returns all registered projects, oldest first.
	ListProjects(ctx context.Context) ([]ProjectInfo, error)
	// DeleteProject removes a project and everything it owns. Idempotent.
	DeleteProject(ctx context.Context, projectID string) error
}

// Store composes the three memory substrates and the tenant registry.
type Store interface {
	SymbolicStore
	EpisodicStore
	SemanticStore
	Registry
	Close() error
}
