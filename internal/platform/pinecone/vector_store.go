// Package pinecone defines the vector store contract used by fact
// deduplication and provides the Pinecone-backed implementation. The
// qdrant package implements the same contract for self-hosted setups.
package pinecone

import (
	"context"
)

// Vector is one embedding with its identity and searchable metadata.
type Vector struct {
	ID       string
	Values   []float32
	Metadata map[string]any
}

// VectorMatch is a nearest-neighbor hit. Score is cosine similarity in
// [0, 1] for both supported backends, so dedup thresholds transfer.
type VectorMatch struct {
	ID    string
	Score float64
}

// VectorStore is the surface the ingestion and fact services depend on.
// Namespace partitions vectors by purpose ("facts" today); backends may
// additionally prefix it per deployment.
type VectorStore interface {
	Upsert(ctx context.Context, namespace string, vectors []Vector) error
	QueryMatches(ctx context.Context, namespace string, vector []float32, topK int, filter map[string]any) ([]VectorMatch, error)
	DeleteIDs(ctx context.Context, namespace string, ids []string) error
}
