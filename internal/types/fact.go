package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Fact is the atomic unit of knowledge: a single self-contained claim
// extracted from a source. Committed facts are immutable except for merge
// reference reassignment and soft retirement.
type Fact struct {
	ID       uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	SourceID uuid.UUID `gorm:"type:uuid;not null;index" json:"source_id"`
	Text     string    `gorm:"column:text;not null" json:"text"`
	Topic    string    `gorm:"column:topic;not null;index" json:"topic"`
	// Embedding caches the vector computed at dedup time so re-dedup and
	// related-fact lookups do not re-embed.
	Embedding datatypes.JSON `gorm:"column:embedding;type:jsonb" json:"-"`
	Keywords  datatypes.JSON `gorm:"column:keywords;type:jsonb" json:"keywords,omitempty"`
	// MergedIntoID is set when this fact was retired as a duplicate and its
	// references were reassigned to the retained fact.
	MergedIntoID *uuid.UUID `gorm:"column:merged_into_id;type:uuid;index" json:"merged_into_id,omitempty"`
	// RetiredAt soft-retires the fact; rows are never hard-deleted while any
	// learner still holds review state for them.
	RetiredAt *time.Time `gorm:"column:retired_at;index" json:"retired_at,omitempty"`
	CreatedAt time.Time  `gorm:"not null;index" json:"created_at"`
	UpdatedAt time.Time  `gorm:"not null" json:"updated_at"`
}

func (Fact) TableName() string { return "facts" }

// Retired reports whether the fact has been soft-retired (directly or by
// merge).
func (f *Fact) Retired() bool {
	return f.RetiredAt != nil || f.MergedIntoID != nil
}
