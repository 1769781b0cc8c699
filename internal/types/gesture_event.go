package types

import (
	"time"

	"github.com/google/uuid"
)

// GestureEvent is the audit row for one accepted gesture: which interaction
// arrived and what transition it caused. Stale and rejected gestures are
// never recorded here.
type GestureEvent struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	LearnerID uuid.UUID `gorm:"type:uuid;not null;index:idx_gesture_events_pair,priority:1" json:"learner_id"`
	FactID    uuid.UUID `gorm:"type:uuid;not null;index:idx_gesture_events_pair,priority:2" json:"fact_id"`
	Kind      string    `gorm:"column:kind;not null" json:"kind"`
	LoopCount int       `gorm:"column:loop_count;not null;default:0" json:"loop_count"`
	// OccurredAt is the client-side interaction time the transition was
	// computed from, not the arrival time.
	OccurredAt time.Time `gorm:"column:occurred_at;not null;index" json:"occurred_at"`
	FromStatus string    `gorm:"column:from_status;not null" json:"from_status"`
	ToStatus   string    `gorm:"column:to_status;not null" json:"to_status"`
	CreatedAt  time.Time `gorm:"not null" json:"created_at"`
}

func (GestureEvent) TableName() string { return "gesture_events" }
