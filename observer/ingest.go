package observer

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/nevindra/recall"
)

// ObservedIngestor wraps a recall.Ingestor, counting stored documents and
// chunks.
type ObservedIngestor struct {
	inner recall.Ingestor
	inst  *Instruments
}

var _ recall.Ingestor = (*ObservedIngestor)(nil)

// WrapIngestor returns an instrumented ingestor.
func WrapIngestor(inner recall.Ingestor, inst *Instruments) *ObservedIngestor {
	return &ObservedIngestor{inner: inner, inst: inst}
}

func (o *ObservedIngestor) IngestText(ctx context.Context, projectID, text, source string, metadata map[string]string) (recall.IngestResult, error) {
	res, err := o.inner.IngestText(ctx, projectID, text, source, metadata)
	o.record(ctx, projectID, res, err)
	return res, err
}

func (o *ObservedIngestor) IngestFile(ctx context.Context, projectID string, content []byte, filename string, metadata map[string]string) (recall.IngestResult, error) {
	res, err := o.inner.IngestFile(ctx, projectID, content, filename, metadata)
	o.record(ctx, projectID, res, err)
	return res, err
}

func (o *ObservedIngestor) record(ctx context.Context, projectID string, res recall.IngestResult, err error) {
	if err != nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("project.id", projectID))
	o.inst.IngestDocuments.Add(ctx, 1, attrs)
	o.inst.IngestChunks.Add(ctx, int64(res.ChunkCount), attrs)
}
