package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	JobTypeSourceIngest = "source_ingest"
	JobTypeScriptBatch  = "script_batch"
)

const (
	JobStatusQueued    = "queued"
	JobStatusRunning   = "running"
	JobStatusSucceeded = "succeeded"
	// JobStatusPartial means some chunks failed but the job committed the rest.
	JobStatusPartial = "partial"
	JobStatusFailed  = "failed"
	JobStatusAborted = "aborted"
)

// Job is one unit of background work claimed by the worker.
type Job struct {
	ID       uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	Type     string         `gorm:"column:type;not null;index" json:"type"`
	Payload  datatypes.JSON `gorm:"column:payload;type:jsonb" json:"payload,omitempty"`
	Status   string         `gorm:"column:status;not null;default:'queued';index" json:"status"`
	Attempts int            `gorm:"column:attempts;not null;default:0" json:"attempts"`
	// AbortRequested is polled by handlers at chunk boundaries; a chunk that
	// already started runs to completion.
	AbortRequested bool `gorm:"column:abort_requested;not null;default:false" json:"abort_requested"`
	// Stage and Progress mirror the latest handler progress report so status
	// polls see it without an SSE subscription.
	Stage      string         `gorm:"column:stage" json:"stage,omitempty"`
	Progress   int            `gorm:"column:progress;not null;default:0" json:"progress"`
	LastError  string         `gorm:"column:last_error" json:"last_error,omitempty"`
	Result     datatypes.JSON `gorm:"column:result;type:jsonb" json:"result,omitempty"`
	RunAt      time.Time      `gorm:"column:run_at;not null;index" json:"run_at"`
	StartedAt  *time.Time     `gorm:"column:started_at" json:"started_at,omitempty"`
	FinishedAt *time.Time     `gorm:"column:finished_at" json:"finished_at,omitempty"`
	CreatedAt  time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt  time.Time      `gorm:"not null" json:"updated_at"`
}

func (Job) TableName() string { return "jobs" }

// IngestPayload is the payload for JobTypeSourceIngest.
type IngestPayload struct {
	SourceID uuid.UUID `json:"source_id"`
	// RawText carries inline submissions; uploads are re-read from object
	// storage via ObjectKeys instead.
	RawText string `json:"raw_text,omitempty"`
	// ObjectKeys are the stored upload objects: one key for a PDF, one per
	// slide for an image deck.
	ObjectKeys []string        `json:"object_keys,omitempty"`
	Hints      StructuralHints `json:"hints,omitempty"`
}

// StructuralHints describe source structure the chunker can respect.
type StructuralHints struct {
	ParagraphOffsets []int `json:"paragraph_offsets,omitempty"`
	SlideBreaks      []int `json:"slide_breaks,omitempty"`
	// CaptionMarks are rune offsets of caption-segment starts in transcript
	// text.
	CaptionMarks []int `json:"caption_marks,omitempty"`
}

// IngestResult is the result payload for JobTypeSourceIngest.
type IngestResult struct {
	ChunksTotal  int `json:"chunks_total"`
	ChunksFailed int `json:"chunks_failed"`
	FactsCreated int `json:"facts_created"`
	FactsMerged  int `json:"facts_merged"`
	FactsRelated int `json:"facts_related"`
	FactsFailed  int `json:"facts_failed"`
}

// ScriptBatchPayload is the payload for JobTypeScriptBatch.
type ScriptBatchPayload struct {
	FactIDs []uuid.UUID `json:"fact_ids"`
	TTS     bool        `json:"tts"`
}

// ScriptBatchResult is the result payload for JobTypeScriptBatch.
type ScriptBatchResult struct {
	Requested int `json:"requested"`
	Generated int `json:"generated"`
	Failed    int `json:"failed"`
}
