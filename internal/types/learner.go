package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Learner is an app user. There are no credentials; learner identity arrives
// as an explicit request parameter.
type Learner struct {
	ID          uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	DisplayName string         `gorm:"column:display_name;not null" json:"display_name"`
	CreatedAt   time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt   time.Time      `gorm:"not null" json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (Learner) TableName() string { return "learners" }
