package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/dewiapp/dewi-backend/internal/domain"
	"github.com/dewiapp/dewi-backend/internal/pkg/logger"
	"github.com/dewiapp/dewi-backend/internal/platform/media"
	"github.com/dewiapp/dewi-backend/internal/repos"
	"github.com/dewiapp/dewi-backend/internal/types"
)

// stubAI cans the model's script response.
type stubAI struct {
	response string
	err      error
	lastUser string
}

func (s *stubAI) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range out {
		out[i] = []float32{1}
	}
	return out, nil
}

func (s *stubAI) GenerateJSON(_ context.Context, _, user, _ string, _ map[string]any) (json.RawMessage, error) {
	s.lastUser = user
	if s.err != nil {
		return nil, s.err
	}
	return json.RawMessage(s.response), nil
}

// stubRenderer hands back fixed bytes instead of drawing.
type stubRenderer struct {
	err error
}

func (r *stubRenderer) RenderPoster(media.PosterSpec) ([]byte, error) {
	if r.err != nil {
		return nil, r.err
	}
	return []byte("poster-bytes"), nil
}

func (r *stubRenderer) Thumbnail(data []byte, _ int) ([]byte, error) {
	if r.err != nil {
		return nil, r.err
	}
	return append([]byte("thumb-"), data...), nil
}

type stubTTS struct {
	err error
}

func (s *stubTTS) Synthesize(_ context.Context, text string) ([]byte, error) {
	if s.err != nil {
		return nil, s.err
	}
	return []byte("audio:" + text), nil
}

type scriptHarness struct {
	db         *gorm.DB
	svc        ScriptService
	ai         *stubAI
	renderer   *stubRenderer
	tts        *stubTTS
	bucket     *fakeBucket
	factRepo   repos.FactRepo
	scriptRepo repos.VideoScriptRepo
	sourceID   uuid.UUID
}

const validScriptJSON = `{
	"hook": "Your textbook lied about this one",
	"body": ["Octopuses have three hearts.", "Two pump to the gills, one to the body."],
	"repeat_phrase": "three hearts",
	"bg_suggestion": "slow underwater footage",
	"audio_vibe": "chaotic"
}`

func newScriptHarness(t *testing.T) *scriptHarness {
	t.Helper()
	db := testDB(t)
	log := logger.NewNop()
	learner := seedLearner(t, db)
	source := &types.Source{
		LearnerID:  learner.ID,
		Kind:       types.SourceKindText,
		Topic:      "biology",
		ContentSHA: uuid.NewString(),
		Status:     types.SourceStatusReady,
	}
	if err := repos.NewSourceRepo(db, log).Create(context.Background(), nil, source); err != nil {
		t.Fatalf("seed source: %v", err)
	}

	h := &scriptHarness{
		db:         db,
		ai:         &stubAI{response: validScriptJSON},
		renderer:   &stubRenderer{},
		tts:        &stubTTS{},
		bucket:     newFakeBucket(),
		factRepo:   repos.NewFactRepo(db, log),
		scriptRepo: repos.NewVideoScriptRepo(db, log),
		sourceID:   source.ID,
	}
	h.svc = NewScriptService(db, log, h.ai, h.factRepo, h.scriptRepo, h.renderer, h.bucket, h.tts)
	return h
}

func (h *scriptHarness) seedFact(t *testing.T, text string) *types.Fact {
	t.Helper()
	keywords, _ := json.Marshal([]string{"octopus", "hearts"})
	fact := &types.Fact{SourceID: h.sourceID, Text: text, Topic: "biology", Keywords: keywords}
	if err := h.factRepo.Create(context.Background(), nil, fact); err != nil {
		t.Fatalf("seed fact: %v", err)
	}
	return fact
}

func TestGenerateScriptPersistsAndEnriches(t *testing.T) {
	h := newScriptHarness(t)
	fact := h.seedFact(t, "Octopuses have three hearts.")
	ctx := context.Background()

	script, err := h.svc.Generate(ctx, fact.ID, true)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if script.Hook != "Your textbook lied about this one" {
		t.Errorf("hook = %q", script.Hook)
	}
	if script.AudioVibe != types.AudioVibeChaotic {
		t.Errorf("vibe = %q, want chaotic", script.AudioVibe)
	}
	var body []string
	if err := json.Unmarshal(script.Body, &body); err != nil || len(body) != 2 {
		t.Errorf("body = %s (err %v), want 2 lines", script.Body, err)
	}
	if !strings.Contains(h.ai.lastUser, fact.Text) || !strings.Contains(h.ai.lastUser, "octopus") {
		t.Errorf("prompt missing fact text or keywords: %q", h.ai.lastUser)
	}

	wantPoster := "https://cdn.test/media/posters/" + fact.ID.String() + ".png"
	if script.PosterURI != wantPoster {
		t.Errorf("poster uri = %q, want %q", script.PosterURI, wantPoster)
	}
	wantAudio := "https://cdn.test/media/audio/" + fact.ID.String() + ".mp3"
	if script.AudioURI != wantAudio {
		t.Errorf("audio uri = %q, want %q", script.AudioURI, wantAudio)
	}
	// Poster, thumbnail and narration all land in the media bucket.
	if h.bucket.stored() != 3 {
		t.Errorf("stored objects = %d, want 3", h.bucket.stored())
	}

	stored, err := h.scriptRepo.GetByFactID(ctx, nil, fact.ID)
	if err != nil || stored == nil {
		t.Fatalf("script not persisted: %v", err)
	}
	if stored.RepeatPhrase != "three hearts" {
		t.Errorf("stored repeat phrase = %q", stored.RepeatPhrase)
	}
}

func TestGenerateScriptWithoutTTSSkipsAudio(t *testing.T) {
	h := newScriptHarness(t)
	fact := h.seedFact(t, "Octopuses have three hearts.")

	script, err := h.svc.Generate(context.Background(), fact.ID, false)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if script.AudioURI != "" {
		t.Errorf("audio uri = %q, want empty without tts", script.AudioURI)
	}
	if script.PosterURI == "" {
		t.Error("poster uri empty")
	}
	if h.bucket.stored() != 2 {
		t.Errorf("stored objects = %d, want poster and thumbnail only", h.bucket.stored())
	}
}

func TestGenerateScriptSanitizesDraft(t *testing.T) {
	h := newScriptHarness(t)
	fact := h.seedFact(t, "Octopuses have three hearts.")
	h.ai.response = `{
		"hook": "  Wait   until you hear this  ",
		"body": ["", "  Line   with   spaces  ", "` + strings.Repeat("x", 300) + `"],
		"repeat_phrase": " three  hearts ",
		"bg_suggestion": "",
		"audio_vibe": "melancholy"
	}`

	script, err := h.svc.Generate(context.Background(), fact.ID, false)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if script.Hook != "Wait until you hear this" {
		t.Errorf("hook not normalized: %q", script.Hook)
	}
	var body []string
	if err := json.Unmarshal(script.Body, &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if len(body) != 2 {
		t.Fatalf("body lines = %d, want empty line dropped", len(body))
	}
	if body[0] != "Line with spaces" {
		t.Errorf("line not normalized: %q", body[0])
	}
	if got := len([]rune(body[1])); got > maxLineRunes {
		t.Errorf("overlong line kept %d runes", got)
	}
	if script.AudioVibe != types.AudioVibeHype {
		t.Errorf("unknown vibe = %q, want default hype", script.AudioVibe)
	}
}

func TestGenerateScriptRejectsContractViolations(t *testing.T) {
	h := newScriptHarness(t)
	fact := h.seedFact(t, "Octopuses have three hearts.")
	ctx := context.Background()

	cases := []struct {
		name     string
		response string
		err      error
	}{
		{"model error", "", fmt.Errorf("rate limited")},
		{"no hook", `{"hook":"","body":["x."],"repeat_phrase":"x","bg_suggestion":"","audio_vibe":"hype"}`, nil},
		{"no body", `{"hook":"Hey","body":[],"repeat_phrase":"x","bg_suggestion":"","audio_vibe":"hype"}`, nil},
		{"not json", `hooked on a feeling`, nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h.ai.response, h.ai.err = tc.response, tc.err
			_, err := h.svc.Generate(ctx, fact.ID, false)
			if !domain.IsCollaborator(err) {
				t.Errorf("err = %v, want collaborator error", err)
			}
		})
	}
}

func TestGenerateScriptSurvivesEnrichmentFailures(t *testing.T) {
	h := newScriptHarness(t)
	fact := h.seedFact(t, "Octopuses have three hearts.")
	h.renderer.err = fmt.Errorf("font missing")
	h.tts.err = fmt.Errorf("voice down")

	script, err := h.svc.Generate(context.Background(), fact.ID, true)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if script.PosterURI != "" || script.AudioURI != "" {
		t.Errorf("failed enrichments left URIs: poster %q audio %q", script.PosterURI, script.AudioURI)
	}
	if stored, _ := h.scriptRepo.GetByFactID(context.Background(), nil, fact.ID); stored == nil {
		t.Error("script not persisted despite enrichment failures")
	}
}

func TestGenerateScriptRedirectsMergedFact(t *testing.T) {
	h := newScriptHarness(t)
	survivor := h.seedFact(t, "Octopuses have three hearts.")
	merged := h.seedFact(t, "An octopus has 3 hearts.")
	ctx := context.Background()
	if err := h.factRepo.Retire(ctx, nil, merged.ID, &survivor.ID); err != nil {
		t.Fatalf("merge: %v", err)
	}

	script, err := h.svc.Generate(ctx, merged.ID, false)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if script.FactID != survivor.ID {
		t.Errorf("script keyed to %s, want merge target %s", script.FactID, survivor.ID)
	}
}

func TestGetByFact(t *testing.T) {
	h := newScriptHarness(t)
	fact := h.seedFact(t, "Octopuses have three hearts.")
	ctx := context.Background()

	if _, err := h.svc.GetByFact(ctx, fact.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("missing script err = %v, want ErrNotFound", err)
	}
	if _, err := h.svc.Generate(ctx, fact.ID, false); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	got, err := h.svc.GetByFact(ctx, fact.ID)
	if err != nil {
		t.Fatalf("GetByFact: %v", err)
	}
	if got.FactID != fact.ID {
		t.Errorf("script fact = %s, want %s", got.FactID, fact.ID)
	}
}
