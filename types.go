package recall

// --- Domain types (database records) ---

// Source identifies who asserted a fact. Sources are ranked: a write from a
// higher-ranked source replaces a fact from a lower-ranked one even when its
// confidence is not higher.
type Source string

const (
	SourceUser      Source = "user"
	SourceAgent     Source = "agent"
	SourceExtractor Source = "extractor"
	SourceImport    Source = "import"
)

// SourceRank returns the authority rank of a source (higher wins).
// Unknown sources rank below import.
func SourceRank(s Source) int {
	switch s {
	case SourceUser:
		return 4
	case SourceAgent:
		return 3
	case SourceExtractor:
		return 2
	case SourceImport:
		return 1
	default:
		return 0
	}
}

// Well-known fact scopes. The scope set is open: callers may use any
// non-empty scope string; these constants are advisory conventions only.
const (
	ScopeUser    = "user"
	ScopeProject = "project"
	ScopeSession = "session"
)

// Fact is a symbolic memory record. A fact is unique within
// (ProjectID, Scope, Category, Key); mutations append to its history.
type Fact struct {
	ID         string  `json:"id"`
	ProjectID  string  `json:"project_id"`
	Scope      string  `json:"scope"`
	Category   string  `json:"category"`
	Key        string  `json:"key"`
	Value      string  `json:"value"`
	Confidence float64 `json:"confidence"`
	Source     Source  `json:"source"`
	CreatedAt  int64   `json:"created_at"`
	UpdatedAt  int64   `json:"updated_at"`
}

// FactChange is one audit-trail entry for a fact. Every successful mutation
// (overwrite, ignored observation, soft delete) produces exactly one entry.
type FactChange struct {
	FactID         string  `json:"fact_id"`
	Timestamp      int64   `json:"ts"`
	PrevValue      string  `json:"prev_value"`
	PrevConfidence float64 `json:"prev_confidence"`
	Reason         string  `json:"reason"`
}

// LessonType classifies what an episode teaches.
type LessonType string

const (
	LessonPattern     LessonType = "pattern"
	LessonAntipattern LessonType = "antipattern"
	LessonProcedure   LessonType = "procedure"
	LessonWarning     LessonType = "warning"
)

// Episode is an episodic memory record: what happened, what was done, how it
// turned out, and what to remember. Fingerprint is a content hash over the
// normalized situation/action/outcome used for deduplication.
type Episode struct {
	ID          string     `json:"id"`
	ProjectID   string     `json:"project_id"`
	Situation   string     `json:"situation"`
	Action      string     `json:"action"`
	Outcome     string     `json:"outcome"`
	Lesson      string     `json:"lesson"`
	LessonType  LessonType `json:"lesson_type"`
	Confidence  float64    `json:"confidence"`
	Quality     float64    `json:"quality"`
	Fingerprint string     `json:"fingerprint"`
	RefCount    int        `json:"ref_count"`
	CreatedAt   int64      `json:"created_at"`
	UpdatedAt   int64      `json:"updated_at"`
}

// Document is an ingested source of semantic memory.
type Document struct {
	ID         string            `json:"id"`
	ProjectID  string            `json:"project_id"`
	Source     string            `json:"source"`
	SourceType string            `json:"source_type"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	IngestedAt int64             `json:"ingested_at"`
	ChunkCount int               `json:"chunk_count"`
}

// Chunk is a contiguous text slice of a document with its embedding.
// Ordinal positions are contiguous per document starting at 0.
type Chunk struct {
	ID        string            `json:"id"`
	DocID     string            `json:"doc_id"`
	ProjectID string            `json:"project_id"`
	Text      string            `json:"text"`
	Ordinal   int               `json:"ordinal"`
	Embedding []float32         `json:"-"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// ScoredChunk is a chunk with its cosine similarity to a query, in [-1, 1].
type ScoredChunk struct {
	Chunk
	Score float32 `json:"score"`
}

// ScoredFact is a fact selected for a retrieval answer.
type ScoredFact struct {
	Fact
	Score float64 `json:"score"`
}

// ScoredEpisode is an episode selected for a retrieval answer.
type ScoredEpisode struct {
	Episode
	Score float64 `json:"score"`
}

// MemoryType names one of the three memory substrates.
type MemoryType string

const (
	MemorySemantic MemoryType = "semantic"
	MemorySymbolic MemoryType = "symbolic"
	MemoryEpisodic MemoryType = "episodic"
)

// sourcePriority orders memory types for tie-breaking in merged answers.
func sourcePriority(t MemoryType) int {
	switch t {
	case MemorySymbolic:
		return 3
	case MemoryEpisodic:
		return 2
	case MemorySemantic:
		return 1
	default:
		return 0
	}
}

// DedupMode is the temporal horizon within which duplicate episodes are
// collapsed. Chosen once at startup.
type DedupMode string

const (
	// DedupPerDay collapses duplicates within the same UTC calendar day.
	DedupPerDay DedupMode = "per_day"
	// DedupPerSession collapses duplicates created since process start.
	DedupPerSession DedupMode = "per_session"
	// DedupGlobal collapses duplicates regardless of age.
	DedupGlobal DedupMode = "global"
)

// DialogTurn is one user/assistant exchange handed to the conversation
// analyzer.
type DialogTurn struct {
	User      string `json:"user"`
	Assistant string `json:"assistant,omitempty"`
}

// Extraction is the analyzer's proposal for one turn: candidate facts and
// episodes that cleared the confidence gates. Nothing in an Extraction has
// been written anywhere.
type Extraction struct {
	Facts    []Fact    `json:"facts"`
	Episodes []Episode `json:"episodes"`
}

// IngestResult reports a completed document ingestion.
type IngestResult struct {
	Document   Document `json:"document"`
	ChunkCount int      `json:"chunk_count"`
}

// --- Chat protocol types (model-assisted extraction) ---

// ChatMessage is one turn in a completion request.
type ChatMessage struct {
	Role    string `json:"role"` // "system", "user", "assistant"
	Content string `json:"content"`
}

// ChatRequest is a completion request.
type ChatRequest struct {
	Messages []ChatMessage `json:"messages"`
}

// ChatResponse is a completion response.
type ChatResponse struct {
	Content string `json:"content"`
	Usage   Usage  `json:"usage"`
}

// Usage reports token consumption for a completion.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// UserMessage builds a user-role chat message.
func UserMessage(text string) ChatMessage {
	return ChatMessage{Role: "user", Content: text}
}

// SystemMessage builds a system-role chat message.
func SystemMessage(text string) ChatMessage {
	return ChatMessage{Role: "system", Content: text}
}
