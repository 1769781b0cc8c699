package repos

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/dewiapp/dewi-backend/internal/pkg/logger"
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
	if err := NewLearnerRepo(db, logger.NewNop()).Create(context.Background(), nil, learner); err != nil {
		t.Fatalf("seed learner: %v", err)
	}
	return learner
}

func seedSource(t *testing.T, db *gorm.DB, learnerID uuid.UUID, sha string) *types.Source {
	t.Helper()
	source := &types.Source{
		LearnerID:  learnerID,
		Kind:       types.SourceKindText,
		Topic:      "biology",
		ContentSHA: sha,
	}
	if err := NewSourceRepo(db, logger.NewNop()).Create(context.Background(), nil, source); err != nil {
		t.Fatalf("seed source: %v", err)
	}
	return source
}

func seedFact(t *testing.T, db *gorm.DB, sourceID uuid.UUID, text string, createdAt time.Time) *types.Fact {
	t.Helper()
	fact := &types.Fact{
		SourceID:  sourceID,
		Text:      text,
		Topic:     "biology",
		CreatedAt: createdAt,
	}
	if err := NewFactRepo(db, logger.NewNop()).Create(context.Background(), nil, fact); err != nil {
		t.Fatalf("seed fact: %v", err)
	}
	return fact
}
