package app

import (
	"context"

	"github.com/nevindra/recall"
	"github.com/nevindra/recall/store/sqlite"
)

// hybridStore keeps symbolic and episodic memory with the registry in local
// SQLite while routing the semantic substrate to pgvector. Project deletion
// cascades across both backends.
type hybridStore struct {
	*sqlite.Store
	semantic recall.SemanticStore
}

var _ recall.Store = (*hybridStore)(nil)

func (h *hybridStore) AddDocument(ctx context.Context, doc recall.Document, chunks []recall.Chunk) error {
	return h.semantic.AddDocument(ctx, doc, chunks)
}

func (h *hybridStore) Search(ctx context.Context, projectID string, queryEmbedding []float32, topK int, filter recall.SearchFilter) ([]recall.ScoredChunk, error) {
	return h.semantic.Search(ctx, projectID, queryEmbedding, topK, filter)
}

func (h *hybridStore) DeleteDocument(ctx context.Context, projectID, docID string) error {
	return h.semantic.DeleteDocument(ctx, projectID, docID)
}

func (h *hybridStore) GetChunk(ctx context.Context, projectID, chunkID string) (recall.Chunk, error) {
	return h.semantic.GetChunk(ctx, projectID, chunkID)
}

func (h *hybridStore) ListDocuments(ctx context.Context, projectID string) ([]recall.Document, error) {
	return h.semantic.ListDocuments(ctx, projectID)
}

// DeleteProject removes the project's documents from the semantic backend
// before cascading the local deletion.
func (h *hybridStore) DeleteProject(ctx context.Context, projectID string) error {
	docs, err := h.semantic.ListDocuments(ctx, projectID)
	if err != nil && !recall.IsKind(err, recall.KindNotFound) {
		return err
	}
	for _, doc := range docs {
		if err := h.semantic.DeleteDocument(ctx, projectID, doc.ID); err != nil &&
			!recall.IsKind(err, recall.KindNotFound) {
			return err
		}
	}
	return h.Store.DeleteProject(ctx, projectID)
}
