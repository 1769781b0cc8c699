package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/dewiapp/dewi-backend/internal/domain"
	"github.com/dewiapp/dewi-backend/internal/pkg/logger"
	"github.com/dewiapp/dewi-backend/internal/platform/elevenlabs"
	"github.com/dewiapp/dewi-backend/internal/platform/gcp"
	"github.com/dewiapp/dewi-backend/internal/platform/media"
	"github.com/dewiapp/dewi-backend/internal/platform/openai"
	"github.com/dewiapp/dewi-backend/internal/repos"
	"github.com/dewiapp/dewi-backend/internal/types"
)

const (
	posterThumbWidth = 320
	maxScriptLines   = 6
	maxLineRunes     = 200
)

const scriptSystemPrompt = `You write scripts for 15 to 30 second vertical learning videos. ` +
	`The viewer is doomscrolling; the script has one job: make a single fact stick.

Rules:
- hook: one arresting opening line, under 12 words, no hashtags.
- body: 2 to 4 short spoken lines that deliver ONLY the given fact. No new claims.
- repeat_phrase: the 2 to 6 word kernel of the fact, said again verbatim at the end.
- bg_suggestion: one short visual direction for the background footage.
- audio_vibe: hype, cozy, chaotic or unhinged, whichever fits the fact.
- Casual register, spoken language, no emoji, no filler like "did you know".`

var scriptSchema = map[string]any{
	"type":                 "object",
	"additionalProperties": false,
	"required":             []string{"hook", "body", "repeat_phrase", "bg_suggestion", "audio_vibe"},
	"properties": map[string]any{
		"hook": map[string]any{"type": "string"},
		"body": map[string]any{
			"type":  "array",
			"items": map[string]any{"type": "string"},
		},
		"repeat_phrase": map[string]any{"type": "string"},
		"bg_suggestion": map[string]any{"type": "string"},
		"audio_vibe": map[string]any{
			"type": "string",
			"enum": []string{types.AudioVibeHype, types.AudioVibeCozy, types.AudioVibeChaotic, types.AudioVibeUnhinged},
		},
	},
}

var audioVibes = map[string]bool{
	types.AudioVibeHype:     true,
	types.AudioVibeCozy:     true,
	types.AudioVibeChaotic:  true,
	types.AudioVibeUnhinged: true,
}

type ScriptService interface {
	// Generate writes (or regenerates) the fact's video script, renders its
	// poster card, and when withTTS is set synthesizes the narration track.
	// Poster and narration are enrichments: their collaborator failures are
	// logged and leave the corresponding URI empty rather than failing the
	// script.
	Generate(ctx context.Context, factID uuid.UUID, withTTS bool) (*types.VideoScript, error)
	GetByFact(ctx context.Context, factID uuid.UUID) (*types.VideoScript, error)
}

type scriptService struct {
	db         *gorm.DB
	log        *logger.Logger
	ai         openai.Client
	factRepo   repos.FactRepo
	scriptRepo repos.VideoScriptRepo
	renderer   media.Renderer
	bucket     gcp.BucketService
	tts        elevenlabs.Client
}

func NewScriptService(
	db *gorm.DB,
	baseLog *logger.Logger,
	ai openai.Client,
	factRepo repos.FactRepo,
	scriptRepo repos.VideoScriptRepo,
	renderer media.Renderer,
	bucket gcp.BucketService,
	tts elevenlabs.Client,
) ScriptService {
	return &scriptService{
		db:         db,
		log:        baseLog.With("service", "ScriptService"),
		ai:         ai,
		factRepo:   factRepo,
		scriptRepo: scriptRepo,
		renderer:   renderer,
		bucket:     bucket,
		tts:        tts,
	}
}

// scriptDraft is the model's response shape before sanitization.
type scriptDraft struct {
	Hook         string   `json:"hook"`
	Body         []string `json:"body"`
	RepeatPhrase string   `json:"repeat_phrase"`
	BGSuggestion string   `json:"bg_suggestion"`
	AudioVibe    string   `json:"audio_vibe"`
}

func (s *scriptService) Generate(ctx context.Context, factID uuid.UUID, withTTS bool) (*types.VideoScript, error) {
	if factID == uuid.Nil {
		return nil, domain.NewValidation("fact_id", "fact_id is required")
	}
	fact, err := resolveActiveFact(ctx, s.factRepo, factID)
	if err != nil {
		return nil, err
	}

	draft, err := s.draftScript(ctx, fact)
	if err != nil {
		return nil, err
	}
	body, err := json.Marshal(draft.Body)
	if err != nil {
		return nil, fmt.Errorf("encode script body: %w", err)
	}
	script := &types.VideoScript{
		FactID:       fact.ID,
		Hook:         draft.Hook,
		Body:         datatypes.JSON(body),
		RepeatPhrase: draft.RepeatPhrase,
		BGSuggestion: draft.BGSuggestion,
		AudioVibe:    draft.AudioVibe,
	}

	script.PosterURI = s.renderPoster(ctx, fact)
	if withTTS {
		script.AudioURI = s.synthesizeNarration(ctx, fact.ID, draft)
	}

	if err := s.scriptRepo.Upsert(ctx, nil, script); err != nil {
		return nil, err
	}
	s.log.Info("Script generated",
		"fact_id", fact.ID,
		"vibe", script.AudioVibe,
		"poster", script.PosterURI != "",
		"audio", script.AudioURI != "")
	return script, nil
}

func (s *scriptService) GetByFact(ctx context.Context, factID uuid.UUID) (*types.VideoScript, error) {
	if factID == uuid.Nil {
		return nil, domain.NewValidation("fact_id", "fact_id is required")
	}
	script, err := s.scriptRepo.GetByFactID(ctx, nil, factID)
	if err != nil {
		return nil, err
	}
	if script == nil {
		return nil, fmt.Errorf("script for fact %s: %w", factID, domain.ErrNotFound)
	}
	return script, nil
}

// draftScript asks the model for the script and enforces the response
// contract. A response that violates it is a collaborator fault, not ours.
func (s *scriptService) draftScript(ctx context.Context, fact *types.Fact) (*scriptDraft, error) {
	var keywords []string
	if len(fact.Keywords) > 0 {
		_ = json.Unmarshal(fact.Keywords, &keywords)
	}
	user := fmt.Sprintf("Fact: %s\nTopic: %s", fact.Text, fact.Topic)
	if len(keywords) > 0 {
		user += "\nKeywords: " + strings.Join(keywords, ", ")
	}

	raw, err := s.ai.GenerateJSON(ctx, scriptSystemPrompt, user, "video_script", scriptSchema)
	if err != nil {
		return nil, domain.NewCollaborator("openai", err)
	}
	var draft scriptDraft
	if err := json.Unmarshal(raw, &draft); err != nil {
		return nil, domain.NewCollaborator("openai", fmt.Errorf("undecodable script response: %w", err))
	}
	if err := sanitizeDraft(&draft); err != nil {
		return nil, domain.NewCollaborator("openai", err)
	}
	return &draft, nil
}

func sanitizeDraft(d *scriptDraft) error {
	d.Hook = strings.Join(strings.Fields(d.Hook), " ")
	d.RepeatPhrase = strings.Join(strings.Fields(d.RepeatPhrase), " ")
	d.BGSuggestion = strings.Join(strings.Fields(d.BGSuggestion), " ")

	lines := make([]string, 0, len(d.Body))
	for _, line := range d.Body {
		line = strings.Join(strings.Fields(line), " ")
		if line == "" {
			continue
		}
		if r := []rune(line); len(r) > maxLineRunes {
			line = strings.TrimSpace(string(r[:maxLineRunes]))
		}
		lines = append(lines, line)
		if len(lines) == maxScriptLines {
			break
		}
	}
	d.Body = lines

	switch {
	case d.Hook == "":
		return fmt.Errorf("script response missing hook")
	case len(d.Body) == 0:
		return fmt.Errorf("script response has no body lines")
	case d.RepeatPhrase == "":
		return fmt.Errorf("script response missing repeat phrase")
	}
	if !audioVibes[d.AudioVibe] {
		d.AudioVibe = types.AudioVibeHype
	}
	return nil
}

// renderPoster draws and stores the fact's poster card plus its feed
// thumbnail, returning the poster's public URL. Empty on any failure.
func (s *scriptService) renderPoster(ctx context.Context, fact *types.Fact) string {
	if s.renderer == nil || s.bucket == nil {
		return ""
	}
	poster, err := s.renderer.RenderPoster(media.PosterSpec{
		Title: fact.Text,
		Topic: fact.Topic,
		Seed:  fact.ID.String(),
	})
	if err != nil {
		s.log.Warn("Poster render failed", "fact_id", fact.ID, "error", err)
		return ""
	}
	key := fmt.Sprintf("posters/%s.png", fact.ID)
	if err := s.bucket.UploadObject(ctx, gcp.BucketCategoryMedia, key, bytes.NewReader(poster)); err != nil {
		s.log.Warn("Poster upload failed", "fact_id", fact.ID, "error", err)
		return ""
	}

	if thumb, err := s.renderer.Thumbnail(poster, posterThumbWidth); err != nil {
		s.log.Warn("Thumbnail render failed", "fact_id", fact.ID, "error", err)
	} else {
		thumbKey := fmt.Sprintf("posters/%s_thumb.png", fact.ID)
		if err := s.bucket.UploadObject(ctx, gcp.BucketCategoryMedia, thumbKey, bytes.NewReader(thumb)); err != nil {
			s.log.Warn("Thumbnail upload failed", "fact_id", fact.ID, "error", err)
		}
	}
	return s.bucket.PublicURL(gcp.BucketCategoryMedia, key)
}

// synthesizeNarration voices the full script and stores the track, returning
// its public URL. Empty on any failure or when TTS is not configured.
func (s *scriptService) synthesizeNarration(ctx context.Context, factID uuid.UUID, draft *scriptDraft) string {
	if s.tts == nil || s.bucket == nil {
		s.log.Debug("TTS requested but not configured", "fact_id", factID)
		return ""
	}
	parts := make([]string, 0, len(draft.Body)+2)
	parts = append(parts, draft.Hook)
	parts = append(parts, draft.Body...)
	parts = append(parts, draft.RepeatPhrase)
	narration := strings.Join(parts, " ")

	audio, err := s.tts.Synthesize(ctx, narration)
	if err != nil {
		s.log.Warn("Narration synthesis failed", "fact_id", factID, "error", err)
		return ""
	}
	key := fmt.Sprintf("audio/%s.mp3", factID)
	if err := s.bucket.UploadObject(ctx, gcp.BucketCategoryMedia, key, bytes.NewReader(audio)); err != nil {
		s.log.Warn("Narration upload failed", "fact_id", factID, "error", err)
		return ""
	}
	return s.bucket.PublicURL(gcp.BucketCategoryMedia, key)
}
