package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	SourceKindText    = "text"
	SourceKindPDF     = "pdf"
	SourceKindImage   = "image"
	SourceKindYouTube = "youtube"
)

const (
	SourceStatusPending   = "pending"
	SourceStatusIngesting = "ingesting"
	SourceStatusReady     = "ready"
	SourceStatusFailed    = "failed"
)

// Source is the provenance of one ingestion: a pasted text, an uploaded
// PDF/image, or a YouTube transcript.
type Source struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	LearnerID uuid.UUID `gorm:"type:uuid;not null;index:idx_sources_learner_sha,unique,priority:1" json:"learner_id"`
	Kind      string    `gorm:"column:kind;not null" json:"kind"`
	Title     string    `gorm:"column:title" json:"title"`
	Topic     string    `gorm:"column:topic;index" json:"topic"`
	// URI points at the stored upload (GCS object) or the submitted URL.
	// Empty for inline text.
	URI string `gorm:"column:uri" json:"uri,omitempty"`
	// ContentSHA is the sha256 of the submission's canonical content:
	// normalized text, upload bytes, or the video ID. Resubmitting the same
	// content short-circuits to the existing source.
	ContentSHA string         `gorm:"column:content_sha;not null;index:idx_sources_learner_sha,unique,priority:2" json:"content_sha"`
	FactCount  int            `gorm:"column:fact_count;not null;default:0" json:"fact_count"`
	Status     string         `gorm:"column:status;not null;default:'pending'" json:"status"`
	CreatedAt  time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt  time.Time      `gorm:"not null" json:"updated_at"`
	DeletedAt  gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (Source) TableName() string { return "sources" }
