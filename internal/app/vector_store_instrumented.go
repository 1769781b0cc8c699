package app

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/dewiapp/dewi-backend/internal/platform/pinecone"
)

const vectorStoreTracerName = "github.com/dewiapp/dewi-backend/internal/app/vectorstore"

// instrumentedVectorStore traces every vector store call. Dedup latency is
// dominated by these calls, so the spans are what make slow ingests
// explainable.
type instrumentedVectorStore struct {
	provider string
	inner    pinecone.VectorStore
	tracer   trace.Tracer
}

func instrumentVectorStore(provider string, inner pinecone.VectorStore) pinecone.VectorStore {
	if inner == nil {
		return nil
	}
	return &instrumentedVectorStore{
		provider: provider,
		inner:    inner,
		tracer:   otel.Tracer(vectorStoreTracerName),
	}
}

func (s *instrumentedVectorStore) Upsert(ctx context.Context, namespace string, vectors []pinecone.Vector) error {
	ctx, span := s.startSpan(ctx, "vector_store.upsert", namespace,
		attribute.Int("vector.count", len(vectors)))
	defer span.End()
	return s.finish(span, s.inner.Upsert(ctx, namespace, vectors))
}

func (s *instrumentedVectorStore) QueryMatches(ctx context.Context, namespace string, vector []float32, topK int, filter map[string]any) ([]pinecone.VectorMatch, error) {
	ctx, span := s.startSpan(ctx, "vector_store.query_matches", namespace,
		attribute.Int("vector.top_k", topK))
	defer span.End()
	matches, err := s.inner.QueryMatches(ctx, namespace, vector, topK, filter)
	if err == nil {
		span.SetAttributes(attribute.Int("vector.matches", len(matches)))
	}
	return matches, s.finish(span, err)
}

func (s *instrumentedVectorStore) DeleteIDs(ctx context.Context, namespace string, ids []string) error {
	ctx, span := s.startSpan(ctx, "vector_store.delete_ids", namespace,
		attribute.Int("vector.count", len(ids)))
	defer span.End()
	return s.finish(span, s.inner.DeleteIDs(ctx, namespace, ids))
}

func (s *instrumentedVectorStore) startSpan(ctx context.Context, name, namespace string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	spanAttrs := append([]attribute.KeyValue{
		attribute.String("vector.provider", s.provider),
		attribute.String("vector.namespace", namespace),
	}, attrs...)
	return s.tracer.Start(ctx, name, trace.WithAttributes(spanAttrs...))
}

func (s *instrumentedVectorStore) finish(span trace.Span, err error) error {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}
