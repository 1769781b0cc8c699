package types

import (
	"time"

	"github.com/google/uuid"
)

// FactLink records a "related, not duplicate" dedup decision: the candidate
// landed in the middle similarity band against RelatedFactID and was
// committed anyway. Surfaced later as "you already know something like this".
type FactLink struct {
	ID            uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	FactID        uuid.UUID `gorm:"type:uuid;not null;index:idx_fact_links_pair,unique,priority:1" json:"fact_id"`
	RelatedFactID uuid.UUID `gorm:"type:uuid;not null;index:idx_fact_links_pair,unique,priority:2" json:"related_fact_id"`
	Score         float64   `gorm:"column:score;not null" json:"score"`
	CreatedAt     time.Time `gorm:"not null" json:"created_at"`
}

func (FactLink) TableName() string { return "fact_links" }
