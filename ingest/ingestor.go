// Package ingest provides end-to-end document ingestion for semantic
// memory: extract plain text from a source format, split it into word
// windows, embed the windows, and hand the finished document to the store.
// Embedding always completes before any store write begins, so no database
// resource is held across a provider call.
package ingest

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strconv"
	"time"

	"github.com/nevindra/recall"
)

// Result holds the outcome of an ingest operation.
type Result = recall.IngestResult

// Option configures an Ingestor.
type Option func(*Ingestor)

// WithChunker replaces the default word chunker.
func WithChunker(c Chunker) Option {
	return func(ing *Ingestor) { ing.chunker = c }
}

// WithExtractor registers or replaces the extractor for a content type.
func WithExtractor(ct ContentType, e Extractor) Option {
	return func(ing *Ingestor) { ing.extractors[ct] = e }
}

// WithBatchSize sets the embedding batch size (default 64).
func WithBatchSize(n int) Option {
	return func(ing *Ingestor) { ing.batchSize = n }
}

// WithLogger sets a structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(ing *Ingestor) { ing.logger = l }
}

// Ingestor runs extract, chunk, embed, store.
type Ingestor struct {
	semantic   recall.SemanticStore
	embedding  recall.EmbeddingProvider
	chunker    Chunker
	extractors map[ContentType]Extractor
	batchSize  int
	logger     *slog.Logger
}

// New creates an Ingestor with the full extractor set and a 500/50 word
// chunker.
func New(semantic recall.SemanticStore, emb recall.EmbeddingProvider, opts ...Option) *Ingestor {
	ing := &Ingestor{
		semantic:  semantic,
		embedding: emb,
		chunker:   NewWordChunker(),
		extractors: map[ContentType]Extractor{
			TypePlainText: PlainTextExtractor{},
			TypeMarkdown:  MarkdownExtractor{},
			TypeHTML:      HTMLExtractor{},
			TypePDF:       PDFExtractor{},
			TypeCSV:       CSVExtractor{},
			TypeJSON:      JSONExtractor{},
		},
		batchSize: 64,
		logger:    recall.NopLogger(),
	}
	for _, o := range opts {
		o(ing)
	}
	return ing
}

// IngestText ingests plain text under the given source label.
func (ing *Ingestor) IngestText(ctx context.Context, projectID, text, source string, metadata map[string]string) (Result, error) {
	return ing.ingest(ctx, projectID, text, source, TypePlainText, metadata)
}

// IngestFile extracts, chunks, embeds, and stores file content, detecting
// the content type from the filename extension.
func (ing *Ingestor) IngestFile(ctx context.Context, projectID string, content []byte, filename string, metadata map[string]string) (Result, error) {
	ct := ContentTypeFromExtension(filepath.Ext(filename))
	extractor, ok := ing.extractors[ct]
	if !ok {
		extractor = PlainTextExtractor{}
	}
	text, err := extractor.Extract(content)
	if err != nil {
		return Result{}, recall.Wrap(recall.KindInvalidInput, err, "extract %s", ct)
	}
	return ing.ingest(ctx, projectID, text, filename, ct, metadata)
}

// IngestReader reads everything from r and ingests it as filename.
func (ing *Ingestor) IngestReader(ctx context.Context, projectID string, r io.Reader, filename string, metadata map[string]string) (Result, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return Result{}, fmt.Errorf("read: %w", err)
	}
	return ing.IngestFile(ctx, projectID, data, filename, metadata)
}

func (ing *Ingestor) ingest(ctx context.Context, projectID, text, source string, ct ContentType, metadata map[string]string) (Result, error) {
	start := time.Now()
	if err := recall.ValidateProjectID(projectID); err != nil {
		return Result{}, err
	}
	texts := ing.chunker.Chunk(text)
	if len(texts) == 0 {
		return Result{}, recall.E(recall.KindInvalidInput, "source %q has no extractable text", source)
	}

	embeddings, err := ing.embed(ctx, texts)
	if err != nil {
		return Result{}, err
	}

	doc := recall.Document{
		ID:         recall.NewID(),
		ProjectID:  projectID,
		Source:     source,
		SourceType: string(ct),
		Metadata:   metadata,
	}
	chunks := make([]recall.Chunk, len(texts))
	for i, t := range texts {
		chunks[i] = recall.Chunk{
			ID:        recall.NewID(),
			DocID:     doc.ID,
			ProjectID: projectID,
			Text:      t,
			Ordinal:   i,
			Embedding: embeddings[i],
			Metadata:  chunkMetadata(metadata, i, len(texts)),
		}
	}

	if err := ing.semantic.AddDocument(ctx, doc, chunks); err != nil {
		return Result{}, err
	}
	doc.ChunkCount = len(chunks)
	ing.logger.Debug("ingest: document stored",
		"project_id", projectID, "source", source, "type", ct,
		"chunks", len(chunks), "duration_ms", time.Since(start).Milliseconds())
	return Result{Document: doc, ChunkCount: len(chunks)}, nil
}

// chunkMetadata copies the document metadata for one chunk and adds its
// position. Each chunk gets its own map so filters on one chunk never leak
// into another.
func chunkMetadata(docMeta map[string]string, index, total int) map[string]string {
	md := make(map[string]string, len(docMeta)+2)
	for k, v := range docMeta {
		md[k] = v
	}
	md["chunk_index"] = strconv.Itoa(index)
	md["total_chunks"] = strconv.Itoa(total)
	return md
}

// embed runs the embedding provider over texts in batches. A short or
// mismatched response is a provider contract violation.
func (ing *Ingestor) embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for i := 0; i < len(texts); i += ing.batchSize {
		end := i + ing.batchSize
		if end > len(texts) {
			end = len(texts)
		}
		vecs, err := ing.embedding.Embed(ctx, texts[i:end])
		if err != nil {
			if ctx.Err() != nil {
				return nil, recall.Wrap(recall.KindExternalTimeout, err, "embed batch %d-%d", i, end)
			}
			return nil, recall.Wrap(recall.KindExternalFailure, err, "embed batch %d-%d", i, end)
		}
		if len(vecs) != end-i {
			return nil, recall.E(recall.KindExternalFailure,
				"embedding provider returned %d vectors for %d texts", len(vecs), end-i)
		}
		out = append(out, vecs...)
	}
	return out, nil
}
