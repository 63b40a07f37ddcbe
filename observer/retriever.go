package observer

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/nevindra/recall"
)

// ObservedRetriever wraps a recall.Retriever with OTEL instrumentation.
type ObservedRetriever struct {
	inner recall.Retriever
	inst  *Instruments
}

var _ recall.Retriever = (*ObservedRetriever)(nil)

// WrapRetriever returns an instrumented retriever.
func WrapRetriever(inner recall.Retriever, inst *Instruments) *ObservedRetriever {
	return &ObservedRetriever{inner: inner, inst: inst}
}

func (o *ObservedRetriever) Retrieve(ctx context.Context, projectID, query string, topK int) (recall.Answer, error) {
	ctx, span := o.inst.Tracer.Start(ctx, "memory.retrieve", trace.WithAttributes(
		attribute.String("project.id", projectID),
		attribute.Int("retrieve.top_k", topK),
	))
	defer span.End()
	start := time.Now()

	ans, err := o.inner.Retrieve(ctx, projectID, query, topK)

	durationMs := float64(time.Since(start).Milliseconds())
	status := "ok"
	if err != nil {
		status = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetAttributes(
			attribute.Int("retrieve.items", len(ans.Items)),
			attribute.Bool("retrieve.cached", ans.Cached),
		)
	}

	o.inst.MemoryRequests.Add(ctx, 1, metric.WithAttributes(
		attribute.String("project.id", projectID),
		attribute.String("status", status),
	))
	o.inst.RetrieveDuration.Record(ctx, durationMs, metric.WithAttributes(
		attribute.String("project.id", projectID),
	))

	return ans, err
}

func (o *ObservedRetriever) RetrieveTyped(ctx context.Context, projectID, query string, memType recall.MemoryType, topK int, filter recall.SearchFilter) (recall.Answer, error) {
	ctx, span := o.inst.Tracer.Start(ctx, "memory.retrieve", trace.WithAttributes(
		attribute.String("project.id", projectID),
		attribute.String("memory.type", string(memType)),
		attribute.Int("retrieve.top_k", topK),
	))
	defer span.End()
	start := time.Now()

	ans, err := o.inner.RetrieveTyped(ctx, projectID, query, memType, topK, filter)

	durationMs := float64(time.Since(start).Milliseconds())
	status := "ok"
	if err != nil {
		status = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetAttributes(attribute.Int("retrieve.items", len(ans.Items)))
	}

	o.inst.MemoryRequests.Add(ctx, 1, metric.WithAttributes(
		attribute.String("project.id", projectID),
		attribute.String("memory.type", string(memType)),
		attribute.String("status", status),
	))
	o.inst.RetrieveDuration.Record(ctx, durationMs, metric.WithAttributes(
		attribute.String("project.id", projectID),
	))

	return ans, err
}
