package services

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"sync"
	"testing"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/dewiapp/dewi-backend/internal/ingestion"
	"github.com/dewiapp/dewi-backend/internal/pkg/logger"
	"github.com/dewiapp/dewi-backend/internal/platform/gcp"
	"github.com/dewiapp/dewi-backend/internal/realtime"
	"github.com/dewiapp/dewi-backend/internal/repos"
	"github.com/dewiapp/dewi-backend/internal/types"
)

// testDB opens a private in-memory database migrated to the full schema.
func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		t.Fatalf("unwrap sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	err = gdb.AutoMigrate(
		&types.Learner{},
		&types.Source{},
		&types.Fact{},
		&types.FactLink{},
		&types.ReviewState{},
		&types.GestureEvent{},
		&types.Job{},
		&types.VideoScript{},
	)
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return gdb
}

func seedLearner(t *testing.T, db *gorm.DB) *types.Learner {
	t.Helper()
	learner := &types.Learner{DisplayName: "Test Learner"}
	if err := repos.NewLearnerRepo(db, logger.NewNop()).Create(context.Background(), nil, learner); err != nil {
		t.Fatalf("seed learner: %v", err)
	}
	return learner
}

// tinyPNG renders a 1x1 image so upload fakes get real bytes with a real
// content type.
func tinyPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 1, 1))
	img.Set(0, 0, color.RGBA{R: 0xFF, A: 0xFF})
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

// fakeBucket is an in-memory gcp.BucketService.
type fakeBucket struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newFakeBucket() *fakeBucket {
	return &fakeBucket{objects: make(map[string][]byte)}
}

func (b *fakeBucket) key(category gcp.BucketCategory, key string) string {
	return string(category) + "/" + key
}

func (b *fakeBucket) UploadObject(_ context.Context, category gcp.BucketCategory, key string, r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.objects[b.key(category, key)] = data
	return nil
}

func (b *fakeBucket) DownloadObject(_ context.Context, category gcp.BucketCategory, key string) (io.ReadCloser, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	data, ok := b.objects[b.key(category, key)]
	if !ok {
		return nil, fmt.Errorf("object %s not found", key)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (b *fakeBucket) DeleteObject(_ context.Context, category gcp.BucketCategory, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.objects, b.key(category, key))
	return nil
}

func (b *fakeBucket) PublicURL(category gcp.BucketCategory, key string) string {
	return "https://cdn.test/" + string(category) + "/" + key
}

func (b *fakeBucket) stored() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.objects)
}

// stubExtractor drives the pipeline from a test-owned function.
type stubExtractor struct {
	fn func(chunkText, topic string) ([]ingestion.FactCandidate, error)
}

func (s *stubExtractor) ExtractFacts(_ context.Context, chunkText, topic string) ([]ingestion.FactCandidate, error) {
	return s.fn(chunkText, topic)
}

// stubEmbedder returns a distinct unit vector per call.
type stubEmbedder struct {
	mu   sync.Mutex
	next float32
}

func (s *stubEmbedder) EmbedTexts(_ context.Context, texts []string) ([][]float32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]float32, len(texts))
	for i := range texts {
		s.next++
		out[i] = []float32{s.next, 1}
	}
	return out, nil
}

// emptyIndex is a vector index with no neighbors; every candidate commits.
type emptyIndex struct{}

func (emptyIndex) UpsertVector(context.Context, uuid.UUID, []float32, string) error {
	return nil
}

func (emptyIndex) QueryNearest(context.Context, []float32, string, int) ([]ingestion.VectorMatch, error) {
	return nil, nil
}

// recordingNotifier captures published realtime messages.
type recordingNotifier struct {
	mu       sync.Mutex
	messages []realtime.Message
}

func (n *recordingNotifier) Publish(_ context.Context, msg realtime.Message) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, msg)
	return nil
}

func (n *recordingNotifier) byEvent(event realtime.Event) []realtime.Message {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []realtime.Message
	for _, m := range n.messages {
		if m.Event == event {
			out = append(out, m)
		}
	}
	return out
}

// recordingInvalidator captures queue invalidations.
type recordingInvalidator struct {
	mu       sync.Mutex
	learners []uuid.UUID
}

func (r *recordingInvalidator) Invalidate(learnerID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.learners = append(r.learners, learnerID)
}

func (r *recordingInvalidator) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.learners)
}
