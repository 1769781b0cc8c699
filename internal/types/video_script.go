package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Audio vibes the script generator may pick for a fact.
const (
	AudioVibeHype     = "hype"
	AudioVibeCozy     = "cozy"
	AudioVibeChaotic  = "chaotic"
	AudioVibeUnhinged = "unhinged"
)

// VideoScript is the generated presentation script for one fact: what the
// short clip says and how it is paced. Rendering the clip itself is the media
// toolchain's job; this row ends at the handoff.
type VideoScript struct {
	ID     uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	FactID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex" json:"fact_id"`
	Hook   string    `gorm:"column:hook;not null" json:"hook"`
	// Body is a JSON array of short spoken lines.
	Body         datatypes.JSON `gorm:"column:body;type:jsonb" json:"body"`
	RepeatPhrase string         `gorm:"column:repeat_phrase;not null" json:"repeat_phrase"`
	BGSuggestion string         `gorm:"column:bg_suggestion" json:"bg_suggestion,omitempty"`
	AudioVibe    string         `gorm:"column:audio_vibe;not null;default:'hype'" json:"audio_vibe"`
	// PosterURI is the rendered poster-card object; AudioURI the TTS handoff
	// output, when requested.
	PosterURI string    `gorm:"column:poster_uri" json:"poster_uri,omitempty"`
	AudioURI  string    `gorm:"column:audio_uri" json:"audio_uri,omitempty"`
	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (VideoScript) TableName() string { return "video_scripts" }
