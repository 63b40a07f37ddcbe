package recall

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"time"
)

// ResultCache is the slice of the query cache the reader and engine need.
// Satisfied by *cache.Cache.
type ResultCache interface {
	Get(key string) (any, bool)
	Set(key, projectID string, value any)
	InvalidateProject(projectID string)
}

// AuthorityWeights scales each substrate's contribution to the merged
// answer. The defaults keep symbolic above episodic above semantic; callers
// may tune the values but the ordering is part of the retrieval contract.
type AuthorityWeights struct {
	Symbolic float64 `toml:"symbolic"`
	Episodic float64 `toml:"episodic"`
	Semantic float64 `toml:"semantic"`
}

// DefaultAuthorityWeights returns the standard weighting.
func DefaultAuthorityWeights() AuthorityWeights {
	return AuthorityWeights{Symbolic: 1.0, Episodic: 0.85, Semantic: 0.90}
}

// Item is one unit of a merged retrieval answer.
type Item struct {
	Type      MemoryType `json:"type"`
	Authority float64    `json:"authority"`
	UpdatedAt int64      `json:"updated_at"`

	Fact    *Fact        `json:"fact,omitempty"`
	Episode *Episode     `json:"episode,omitempty"`
	Chunk   *ScoredChunk `json:"chunk,omitempty"`
}

// Conflict reports two active facts that share a key but disagree on the
// value. The reader surfaces conflicts; it never re-ranks or suppresses the
// losing side.
type Conflict struct {
	Key    string `json:"key"`
	Keep   Fact   `json:"keep"`
	Differ Fact   `json:"differ"`
}

// Answer is the merged result of one retrieval.
type Answer struct {
	Query     string     `json:"query"`
	Items     []Item     `json:"items"`
	Conflicts []Conflict `json:"conflicts,omitempty"`
	Cached    bool       `json:"cached"`
}

// ReaderOption configures a Reader.
type ReaderOption func(*Reader)

// WithReaderLogger sets a structured logger.
func WithReaderLogger(l *slog.Logger) ReaderOption {
	return func(r *Reader) { r.logger = l }
}

// WithReaderCache sets the query result cache. Without one every retrieval
// hits the stores.
func WithReaderCache(c ResultCache) ReaderOption {
	return func(r *Reader) { r.cache = c }
}

// WithAuthorityWeights overrides the substrate weights.
func WithAuthorityWeights(w AuthorityWeights) ReaderOption {
	return func(r *Reader) { r.weights = w }
}

// Reader merges the three memory substrates into one authority-ordered
// answer. Symbolic facts carry full authority, episodes a fixed discount,
// and semantic chunks an authority derived from their similarity score.
type Reader struct {
	store     Store
	embedding EmbeddingProvider // nil disables the semantic leg
	cache     ResultCache
	weights   AuthorityWeights
	logger    *slog.Logger
}

// NewReader builds a Reader over a store. The embedding provider may be nil,
// which turns retrieval purely symbolic and episodic.
func NewReader(store Store, embedding EmbeddingProvider, opts ...ReaderOption) *Reader {
	r := &Reader{
		store:     store,
		embedding: embedding,
		weights:   DefaultAuthorityWeights(),
		logger:    NopLogger(),
	}
	for _, o := range opts {
		o(r)
	}
	// Symbolic must stay the top authority; a weight set that breaks the
	// ordering reverts to the defaults.
	w := r.weights
	if w.Symbolic <= 0 || w.Symbolic < w.Episodic || w.Symbolic < w.Semantic {
		r.weights = DefaultAuthorityWeights()
	}
	return r
}

// Retrieve answers a query from all three substrates. The cache is consulted
// before any store or provider is touched and written after the merge; no
// cache lookup is held across the fan-out.
func (r *Reader) Retrieve(ctx context.Context, projectID, query string, topK int) (Answer, error) {
	start := time.Now()
	if err := ValidateProjectID(projectID); err != nil {
		return Answer{}, err
	}
	if strings.TrimSpace(query) == "" {
		return Answer{}, E(KindInvalidInput, "query must be non-empty")
	}
	if topK <= 0 {
		topK = 10
	}

	key := CacheKey(projectID, query, topK)
	if r.cache != nil {
		if v, ok := r.cache.Get(key); ok {
			if ans, ok := v.(Answer); ok {
				ans.Cached = true
				r.logger.Debug("reader: cache hit", "project_id", projectID, "items", len(ans.Items))
				return ans, nil
			}
			// Malformed entry; treat as a miss.
		}
	}

	ans := Answer{Query: query}
	terms := queryTerms(query)

	facts, err := r.store.QueryFacts(ctx, projectID, FactQuery{})
	if err != nil {
		return Answer{}, err
	}
	selected := selectFacts(facts, terms, topK)
	for i := range selected {
		ans.Items = append(ans.Items, Item{
			Type:      MemorySymbolic,
			Authority: r.weights.Symbolic,
			UpdatedAt: selected[i].UpdatedAt,
			Fact:      &selected[i],
		})
	}
	ans.Conflicts = factConflicts(facts)

	episodes, err := r.store.QueryEpisodes(ctx, projectID, EpisodeQuery{TopK: topK * 4})
	if err != nil {
		return Answer{}, err
	}
	for _, e := range selectEpisodes(episodes, terms, topK) {
		ep := e.Episode
		ans.Items = append(ans.Items, Item{
			Type:      MemoryEpisodic,
			Authority: r.weights.Episodic,
			UpdatedAt: ep.UpdatedAt,
			Episode:   &ep,
		})
	}

	if r.embedding != nil {
		chunks, err := r.searchSemantic(ctx, projectID, query, topK, nil)
		if err != nil {
			return Answer{}, err
		}
		for i := range chunks {
			c := chunks[i]
			ans.Items = append(ans.Items, Item{
				Type:      MemorySemantic,
				Authority: clipUnit(float64(c.Score)) * r.weights.Semantic,
				Chunk:     &c,
			})
		}
	}

	sortItems(ans.Items)

	if r.cache != nil {
		r.cache.Set(key, projectID, ans)
	}
	r.logger.Debug("reader: retrieved",
		"project_id", projectID, "top_k", topK,
		"items", len(ans.Items), "conflicts", len(ans.Conflicts),
		"duration_ms", time.Since(start).Milliseconds())
	return ans, nil
}

// RetrieveTyped answers a query from a single substrate and returns its hits
// only. Facts and episodes use the same term matching as Retrieve; semantic
// hits honor the metadata filter. Typed answers bypass the result cache.
func (r *Reader) RetrieveTyped(ctx context.Context, projectID, query string, memType MemoryType, topK int, filter SearchFilter) (Answer, error) {
	start := time.Now()
	if err := ValidateProjectID(projectID); err != nil {
		return Answer{}, err
	}
	if strings.TrimSpace(query) == "" {
		return Answer{}, E(KindInvalidInput, "query must be non-empty")
	}
	if topK <= 0 {
		topK = 10
	}

	ans := Answer{Query: query}
	terms := queryTerms(query)

	switch memType {
	case MemorySymbolic:
		facts, err := r.store.QueryFacts(ctx, projectID, FactQuery{})
		if err != nil {
			return Answer{}, err
		}
		selected := selectFacts(facts, terms, topK)
		for i := range selected {
			ans.Items = append(ans.Items, Item{
				Type:      MemorySymbolic,
				Authority: r.weights.Symbolic,
				UpdatedAt: selected[i].UpdatedAt,
				Fact:      &selected[i],
			})
		}
		ans.Conflicts = factConflicts(facts)

	case MemoryEpisodic:
		episodes, err := r.store.QueryEpisodes(ctx, projectID, EpisodeQuery{TopK: topK * 4})
		if err != nil {
			return Answer{}, err
		}
		for _, e := range selectEpisodes(episodes, terms, topK) {
			ep := e.Episode
			ans.Items = append(ans.Items, Item{
				Type:      MemoryEpisodic,
				Authority: r.weights.Episodic,
				UpdatedAt: ep.UpdatedAt,
				Episode:   &ep,
			})
		}

	case MemorySemantic:
		if r.embedding == nil {
			return Answer{}, E(KindInvalidInput, "semantic search requires an embedding provider")
		}
		chunks, err := r.searchSemantic(ctx, projectID, query, topK, filter)
		if err != nil {
			return Answer{}, err
		}
		for i := range chunks {
			c := chunks[i]
			ans.Items = append(ans.Items, Item{
				Type:      MemorySemantic,
				Authority: clipUnit(float64(c.Score)) * r.weights.Semantic,
				Chunk:     &c,
			})
		}

	default:
		return Answer{}, E(KindInvalidInput, "unknown memory type %q", memType)
	}

	r.logger.Debug("reader: retrieved typed",
		"project_id", projectID, "memory_type", memType, "top_k", topK,
		"items", len(ans.Items),
		"duration_ms", time.Since(start).Milliseconds())
	return ans, nil
}

// searchSemantic embeds the query and runs the vector search.
func (r *Reader) searchSemantic(ctx context.Context, projectID, query string, topK int, filter SearchFilter) ([]ScoredChunk, error) {
	vecs, err := r.embedding.Embed(ctx, []string{query})
	if err != nil {
		if ctx.Err() != nil {
			return nil, Wrap(KindExternalTimeout, err, "embed query")
		}
		return nil, Wrap(KindExternalFailure, err, "embed query")
	}
	if len(vecs) != 1 {
		return nil, E(KindExternalFailure, "embedding provider returned %d vectors for 1 text", len(vecs))
	}
	return r.store.Search(ctx, projectID, vecs[0], topK, filter)
}

// sortItems orders by authority descending, then substrate priority, then
// recency. The order is deterministic for equal inputs.
func sortItems(items []Item) {
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].Authority != items[j].Authority {
			return items[i].Authority > items[j].Authority
		}
		pi, pj := sourcePriority(items[i].Type), sourcePriority(items[j].Type)
		if pi != pj {
			return pi > pj
		}
		return items[i].UpdatedAt > items[j].UpdatedAt
	})
}

// queryTerms lowercases and splits the query, dropping one-letter tokens.
func queryTerms(query string) []string {
	var terms []string
	for _, t := range strings.Fields(strings.ToLower(query)) {
		t = strings.Trim(t, ".,;:!?\"'()")
		if len(t) > 1 {
			terms = append(terms, t)
		}
	}
	return terms
}

func matchesTerms(text string, terms []string) bool {
	lower := strings.ToLower(text)
	for _, t := range terms {
		if strings.Contains(lower, t) {
			return true
		}
	}
	return false
}

// selectFacts keeps facts whose key or value mention a query term. Facts are
// already ordered by confidence then recency from the store.
func selectFacts(facts []Fact, terms []string, topK int) []Fact {
	var out []Fact
	for _, f := range facts {
		if matchesTerms(f.Key+" "+f.Value+" "+f.Category, terms) {
			out = append(out, f)
			if len(out) == topK {
				break
			}
		}
	}
	return out
}

// selectEpisodes keeps episodes whose situation or lesson mention a query
// term, preserving the store's score order.
func selectEpisodes(episodes []ScoredEpisode, terms []string, topK int) []ScoredEpisode {
	var out []ScoredEpisode
	for _, e := range episodes {
		if matchesTerms(e.Situation+" "+e.Lesson, terms) {
			out = append(out, e)
			if len(out) == topK {
				break
			}
		}
	}
	return out
}

// factConflicts pairs active facts that share a key but hold different
// values across scopes or categories.
func factConflicts(facts []Fact) []Conflict {
	byKey := make(map[string][]Fact)
	for _, f := range facts {
		byKey[f.Key] = append(byKey[f.Key], f)
	}
	var conflicts []Conflict
	keys := make([]string, 0, len(byKey))
	for k := range byKey {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		group := byKey[k]
		for i := 1; i < len(group); i++ {
			if group[i].Value != group[0].Value {
				conflicts = append(conflicts, Conflict{Key: k, Keep: group[0], Differ: group[i]})
			}
		}
	}
	return conflicts
}

func clipUnit(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
