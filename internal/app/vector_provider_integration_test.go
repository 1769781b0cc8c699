package app

import (
	"context"
	"math/rand"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/dewiapp/dewi-backend/internal/pkg/logger"
	"github.com/dewiapp/dewi-backend/internal/platform/gcp"
	"github.com/dewiapp/dewi-backend/internal/platform/pinecone"
	"github.com/dewiapp/dewi-backend/internal/utils"
)

const smokeVectorNamespace = "smoke_tests"

// TestVectorStoreSmoke runs an upsert/query/delete roundtrip against the
// live backend named by VECTOR_PROVIDER. It needs a reachable instance, so
// it only runs when VECTOR_SMOKE_TEST is set (the compose stack sets it).
func TestVectorStoreSmoke(t *testing.T) {
	if os.Getenv("VECTOR_SMOKE_TEST") == "" {
		t.Skip("VECTOR_SMOKE_TEST not set; skipping live vector store smoke test")
	}

	log := logger.NewNop()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	store, err := resolveVectorStore(ctx, log, LoadConfig(log), gcp.ObjectStorageModeGCSEmulator)
	if err != nil {
		t.Fatalf("resolveVectorStore: %v", err)
	}

	dim := utils.GetEnvAsInt("QDRANT_VECTOR_DIM", 1536, log)
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	id := uuid.NewString()
	values := make([]float32, dim)
	for i := range values {
		values[i] = rng.Float32()
	}

	err = store.Upsert(ctx, smokeVectorNamespace, []pinecone.Vector{{
		ID:       id,
		Values:   values,
		Metadata: map[string]any{"topic": "smoke"},
	}})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	t.Cleanup(func() {
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = store.DeleteIDs(cleanupCtx, smokeVectorNamespace, []string{id})
	})

	matches, err := store.QueryMatches(ctx, smokeVectorNamespace, values, 3, map[string]any{"topic": "smoke"})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	var found bool
	for _, m := range matches {
		if m.ID == id {
			found = true
			if m.Score < 0.99 {
				t.Fatalf("self-match score = %f, want ~1.0", m.Score)
			}
		}
	}
	if !found {
		t.Fatalf("upserted vector %s not in query results", id)
	}
}
