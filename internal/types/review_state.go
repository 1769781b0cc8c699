package types

import (
	"time"

	"github.com/google/uuid"
)

// ReviewState is the per-(learner, fact) scheduling row, owned exclusively by
// the scheduler. Status holds a scheduler.Status value as text.
type ReviewState struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	LearnerID uuid.UUID `gorm:"type:uuid;not null;index:idx_review_state_pair,unique,priority:1" json:"learner_id"`
	FactID    uuid.UUID `gorm:"type:uuid;not null;index:idx_review_state_pair,unique,priority:2" json:"fact_id"`
	Status    string    `gorm:"column:status;not null;default:'new'" json:"status"`
	// LoopCount counts engagement loops since the last status change.
	LoopCount  int       `gorm:"column:loop_count;not null;default:0" json:"loop_count"`
	EaseFactor float64   `gorm:"column:ease_factor;not null;default:2.5" json:"ease_factor"`
	LastSeenAt time.Time `gorm:"column:last_seen_at;not null" json:"last_seen_at"`
	NextDueAt  time.Time `gorm:"column:next_due_at;not null;index" json:"next_due_at"`
	CreatedAt  time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt  time.Time `gorm:"not null" json:"updated_at"`
}

func (ReviewState) TableName() string { return "review_state" }
