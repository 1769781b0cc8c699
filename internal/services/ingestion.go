package services

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/dewiapp/dewi-backend/internal/domain"
	"github.com/dewiapp/dewi-backend/internal/ingestion"
	"github.com/dewiapp/dewi-backend/internal/pkg/logger"
	"github.com/dewiapp/dewi-backend/internal/platform/gcp"
	"github.com/dewiapp/dewi-backend/internal/platform/youtube"
	"github.com/dewiapp/dewi-backend/internal/realtime"
	"github.com/dewiapp/dewi-backend/internal/repos"
	"github.com/dewiapp/dewi-backend/internal/types"
)

const (
	maxInlineTextRunes = 500_000
	maxPDFBytes        = 25 << 20
	maxSlideBytes      = 8 << 20
	maxSlidesPerDeck   = 20
)

// Notifier publishes realtime messages. bus.Bus satisfies it; services
// tolerate nil.
type Notifier interface {
	Publish(ctx context.Context, msg realtime.Message) error
}

// QueueInvalidator drops a learner's cached session queue.
type QueueInvalidator interface {
	Invalidate(learnerID uuid.UUID)
}

type SubmitTextInput struct {
	LearnerID uuid.UUID
	Title     string
	Topic     string
	Text      string
}

type SubmitUploadInput struct {
	LearnerID uuid.UUID
	Title     string
	Topic     string
	// Kind is SourceKindPDF or SourceKindImage.
	Kind string
	// Files is the upload: exactly one for a PDF, one per slide for images.
	Files [][]byte
}

type SubmitYouTubeInput struct {
	LearnerID uuid.UUID
	Title     string
	Topic     string
	VideoRef  string
}

// Submission is the intake outcome: the source row plus the queued ingest
// job. Duplicate submissions return the prior source and no job.
type Submission struct {
	Source    *types.Source `json:"source"`
	Job       *types.Job    `json:"job,omitempty"`
	Duplicate bool          `json:"duplicate"`
}

type IngestionService interface {
	SubmitText(ctx context.Context, in SubmitTextInput) (*Submission, error)
	SubmitUpload(ctx context.Context, in SubmitUploadInput) (*Submission, error)
	SubmitYouTube(ctx context.Context, in SubmitYouTubeInput) (*Submission, error)
	// Run executes one claimed source_ingest job end to end: content
	// resolution, the chunk pipeline, and source bookkeeping. Progress
	// snapshots go to onProgress when set.
	Run(ctx context.Context, job *types.Job, onProgress func(p ingestion.Progress)) (types.IngestResult, error)
}

type ingestionService struct {
	db          *gorm.DB
	log         *logger.Logger
	learnerRepo repos.LearnerRepo
	sourceRepo  repos.SourceRepo
	jobRepo     repos.JobRepo
	factRepo    repos.FactRepo
	pipeline    *ingestion.Pipeline

	// Content collaborators; a nil client rejects that submission kind.
	bucket   gcp.BucketService
	document gcp.Document
	vision   gcp.Vision
	yt       youtube.Client

	invalidator QueueInvalidator
	notify      Notifier
}

func NewIngestionService(
	db *gorm.DB,
	baseLog *logger.Logger,
	learnerRepo repos.LearnerRepo,
	sourceRepo repos.SourceRepo,
	jobRepo repos.JobRepo,
	factRepo repos.FactRepo,
	pipeline *ingestion.Pipeline,
	bucket gcp.BucketService,
	document gcp.Document,
	vision gcp.Vision,
	yt youtube.Client,
	invalidator QueueInvalidator,
	notify Notifier,
) IngestionService {
	return &ingestionService{
		db:          db,
		log:         baseLog.With("service", "IngestionService"),
		learnerRepo: learnerRepo,
		sourceRepo:  sourceRepo,
		jobRepo:     jobRepo,
		factRepo:    factRepo,
		pipeline:    pipeline,
		bucket:      bucket,
		document:    document,
		vision:      vision,
		yt:          yt,
		invalidator: invalidator,
		notify:      notify,
	}
}

func (s *ingestionService) SubmitText(ctx context.Context, in SubmitTextInput) (*Submission, error) {
	topic, err := s.checkSubmitter(ctx, in.LearnerID, in.Topic)
	if err != nil {
		return nil, err
	}

	text := normalizeSubmissionText(in.Text)
	if text == "" {
		return nil, domain.NewValidation("text", "text is required")
	}
	if utf8.RuneCountInString(text) > maxInlineTextRunes {
		return nil, domain.NewValidation("text", fmt.Sprintf("text exceeds %d characters", maxInlineTextRunes))
	}

	source := &types.Source{
		LearnerID:  in.LearnerID,
		Kind:       types.SourceKindText,
		Title:      titleOrDerived(in.Title, text),
		Topic:      topic,
		ContentSHA: shaHex([]byte(text)),
	}
	return s.commitSubmission(ctx, source, types.IngestPayload{RawText: text})
}

func (s *ingestionService) SubmitUpload(ctx context.Context, in SubmitUploadInput) (*Submission, error) {
	topic, err := s.checkSubmitter(ctx, in.LearnerID, in.Topic)
	if err != nil {
		return nil, err
	}
	if s.bucket == nil {
		return nil, domain.NewValidation("kind", "uploads are not configured")
	}

	switch in.Kind {
	case types.SourceKindPDF:
		if s.document == nil {
			return nil, domain.NewValidation("kind", "pdf ingestion is not configured")
		}
		if len(in.Files) != 1 {
			return nil, domain.NewValidation("files", "a pdf submission is exactly one file")
		}
		if len(in.Files[0]) == 0 || len(in.Files[0]) > maxPDFBytes {
			return nil, domain.NewValidation("files", "pdf is empty or too large")
		}
		if ct := http.DetectContentType(in.Files[0]); ct != "application/pdf" {
			return nil, domain.NewValidation("files", fmt.Sprintf("expected a pdf, got %s", ct))
		}
	case types.SourceKindImage:
		if s.vision == nil {
			return nil, domain.NewValidation("kind", "image ingestion is not configured")
		}
		if len(in.Files) == 0 || len(in.Files) > maxSlidesPerDeck {
			return nil, domain.NewValidation("files", fmt.Sprintf("1 to %d images per submission", maxSlidesPerDeck))
		}
		for i, f := range in.Files {
			if len(f) == 0 || len(f) > maxSlideBytes {
				return nil, domain.NewValidation("files", fmt.Sprintf("image %d is empty or too large", i+1))
			}
			if ct := http.DetectContentType(f); !strings.HasPrefix(ct, "image/") {
				return nil, domain.NewValidation("files", fmt.Sprintf("file %d is %s, not an image", i+1, ct))
			}
		}
	default:
		return nil, domain.NewValidation("kind", fmt.Sprintf("unknown upload kind %q", in.Kind))
	}

	sha := shaHex(in.Files...)
	if dup, err := s.findDuplicate(ctx, in.LearnerID, sha); err != nil || dup != nil {
		return dup, err
	}

	keys := make([]string, len(in.Files))
	for i, f := range in.Files {
		keys[i] = uploadKey(in.LearnerID, sha, in.Kind, i, f)
		if err := s.bucket.UploadObject(ctx, gcp.BucketCategorySource, keys[i], bytes.NewReader(f)); err != nil {
			return nil, domain.NewCollaborator("storage", err)
		}
	}

	source := &types.Source{
		LearnerID:  in.LearnerID,
		Kind:       in.Kind,
		Title:      titleOrDerived(in.Title, defaultUploadTitle(in.Kind, len(in.Files))),
		Topic:      topic,
		URI:        keys[0],
		ContentSHA: sha,
	}
	return s.commitSubmission(ctx, source, types.IngestPayload{ObjectKeys: keys})
}

func (s *ingestionService) SubmitYouTube(ctx context.Context, in SubmitYouTubeInput) (*Submission, error) {
	topic, err := s.checkSubmitter(ctx, in.LearnerID, in.Topic)
	if err != nil {
		return nil, err
	}
	if s.yt == nil {
		return nil, domain.NewValidation("video", "youtube ingestion is not configured")
	}

	videoID, err := youtube.ParseVideoID(in.VideoRef)
	if err != nil {
		return nil, domain.NewValidation("video", err.Error())
	}

	source := &types.Source{
		LearnerID:  in.LearnerID,
		Kind:       types.SourceKindYouTube,
		Title:      titleOrDerived(in.Title, "YouTube "+videoID),
		Topic:      topic,
		URI:        "https://www.youtube.com/watch?v=" + videoID,
		ContentSHA: shaHex([]byte("youtube:" + videoID)),
	}
	return s.commitSubmission(ctx, source, types.IngestPayload{})
}

// checkSubmitter validates the learner and normalizes the topic.
func (s *ingestionService) checkSubmitter(ctx context.Context, learnerID uuid.UUID, topic string) (string, error) {
	if learnerID == uuid.Nil {
		return "", domain.NewValidation("learner_id", "learner_id is required")
	}
	learner, err := s.learnerRepo.GetByID(ctx, nil, learnerID)
	if err != nil {
		return "", err
	}
	if learner == nil {
		return "", domain.NewValidation("learner_id", "unknown learner")
	}

	normalized := NormalizeTopic(topic)
	if normalized == "" {
		return "", domain.NewValidation("topic", "topic is required")
	}
	return normalized, nil
}

// findDuplicate short-circuits resubmitted content. A prior failed source is
// not a duplicate: the caller gets to retry it.
func (s *ingestionService) findDuplicate(ctx context.Context, learnerID uuid.UUID, sha string) (*Submission, error) {
	existing, err := s.sourceRepo.GetByLearnerAndSHA(ctx, nil, learnerID, sha)
	if err != nil {
		return nil, err
	}
	if existing == nil || existing.Status == types.SourceStatusFailed {
		return nil, nil
	}
	s.log.Info("Duplicate submission short-circuited",
		"learner_id", learnerID, "source_id", existing.ID, "status", existing.Status)
	return &Submission{Source: existing, Duplicate: true}, nil
}

// commitSubmission runs the duplicate check and creates (or refreshes) the
// source together with its ingest job in one transaction.
func (s *ingestionService) commitSubmission(ctx context.Context, source *types.Source, payload types.IngestPayload) (*Submission, error) {
	if dup, err := s.findDuplicate(ctx, source.LearnerID, source.ContentSHA); err != nil || dup != nil {
		return dup, err
	}

	var job *types.Job
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// A failed prior attempt reuses its source row.
		prior, err := s.sourceRepo.GetByLearnerAndSHA(ctx, tx, source.LearnerID, source.ContentSHA)
		if err != nil {
			return err
		}
		if prior != nil {
			source.ID = prior.ID
			if err := s.sourceRepo.UpdateFields(ctx, tx, prior.ID, map[string]interface{}{
				"status": types.SourceStatusPending,
			}); err != nil {
				return err
			}
		} else {
			source.Status = types.SourceStatusPending
			if err := s.sourceRepo.Create(ctx, tx, source); err != nil {
				return err
			}
		}

		payload.SourceID = source.ID
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal ingest payload: %w", err)
		}
		job = &types.Job{
			Type:    types.JobTypeSourceIngest,
			Payload: datatypes.JSON(raw),
			Status:  types.JobStatusQueued,
			RunAt:   time.Now(),
		}
		return s.jobRepo.Create(ctx, tx, job)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("Submission accepted",
		"learner_id", source.LearnerID, "source_id", source.ID, "kind", source.Kind, "job_id", job.ID)
	return &Submission{Source: source, Job: job}, nil
}

func (s *ingestionService) Run(ctx context.Context, job *types.Job, onProgress func(p ingestion.Progress)) (types.IngestResult, error) {
	var payload types.IngestPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return types.IngestResult{}, fmt.Errorf("decode ingest payload: %w", err)
	}

	source, err := s.sourceRepo.GetByID(ctx, nil, payload.SourceID)
	if err != nil {
		return types.IngestResult{}, err
	}
	if source == nil {
		return types.IngestResult{}, fmt.Errorf("source %s: %w", payload.SourceID, domain.ErrNotFound)
	}

	if err := s.sourceRepo.UpdateFields(ctx, nil, source.ID, map[string]interface{}{
		"status": types.SourceStatusIngesting,
	}); err != nil {
		return types.IngestResult{}, err
	}

	text, hints, err := s.resolveContent(ctx, source, payload)
	if err != nil {
		s.markSourceSettled(ctx, source, 0)
		return types.IngestResult{}, err
	}

	res, runErr := s.pipeline.Run(ctx, ingestion.RunInput{
		SourceID:   source.ID,
		Topic:      source.Topic,
		Text:       text,
		Hints:      hints,
		Abort:      s.abortProbe(ctx, job.ID),
		OnProgress: onProgress,
	})

	s.markSourceSettled(ctx, source, res.FactsCreated)

	if res.FactsCreated > 0 {
		if s.invalidator != nil {
			s.invalidator.Invalidate(source.LearnerID)
		}
		if s.notify != nil {
			_ = s.notify.Publish(ctx, realtime.Message{
				Channel: realtime.LearnerChannel(source.LearnerID),
				Event:   realtime.EventQueueInvalidated,
				Data:    map[string]any{"source_id": source.ID, "facts_created": res.FactsCreated},
			})
		}
	}

	if runErr != nil {
		return res, runErr
	}
	if res.ChunksTotal > 0 && res.ChunksFailed == res.ChunksTotal {
		// Nothing survived; this is a failure, not a partial result.
		return res, fmt.Errorf("all %d chunks failed", res.ChunksTotal)
	}
	if res.ChunksFailed > 0 || res.FactsFailed > 0 {
		return res, fmt.Errorf("%d chunks and %d facts failed: %w", res.ChunksFailed, res.FactsFailed, domain.ErrPartial)
	}
	return res, nil
}

// abortProbe polls the job's abort flag, at most twice a second.
func (s *ingestionService) abortProbe(ctx context.Context, jobID uuid.UUID) func() bool {
	var lastCheck time.Time
	var lastValue bool
	return func() bool {
		if time.Since(lastCheck) < 500*time.Millisecond {
			return lastValue
		}
		lastCheck = time.Now()
		requested, err := s.jobRepo.IsAbortRequested(ctx, nil, jobID)
		if err != nil {
			s.log.Warn("Abort probe failed; continuing", "job_id", jobID, "error", err)
			return lastValue
		}
		lastValue = requested
		return requested
	}
}

// markSourceSettled finalizes the source row after a run: ready when any fact
// committed, failed otherwise.
func (s *ingestionService) markSourceSettled(ctx context.Context, source *types.Source, factsCreated int) {
	count, err := s.factRepo.CountBySource(ctx, nil, source.ID)
	if err != nil {
		s.log.Warn("Fact count failed after ingest", "source_id", source.ID, "error", err)
		count = int64(factsCreated)
	}
	status := types.SourceStatusReady
	if count == 0 {
		status = types.SourceStatusFailed
	}
	if err := s.sourceRepo.UpdateFields(ctx, nil, source.ID, map[string]interface{}{
		"status":     status,
		"fact_count": count,
	}); err != nil {
		s.log.Warn("Source finalize failed", "source_id", source.ID, "error", err)
	}
}

// resolveContent turns the stored submission back into text plus structural
// hints.
func (s *ingestionService) resolveContent(ctx context.Context, source *types.Source, payload types.IngestPayload) (string, types.StructuralHints, error) {
	if payload.RawText != "" {
		return payload.RawText, payload.Hints, nil
	}

	switch source.Kind {
	case types.SourceKindPDF:
		if s.bucket == nil || s.document == nil || len(payload.ObjectKeys) == 0 {
			return "", types.StructuralHints{}, fmt.Errorf("pdf source %s has no stored object", source.ID)
		}
		data, err := s.readObject(ctx, payload.ObjectKeys[0])
		if err != nil {
			return "", types.StructuralHints{}, err
		}
		extraction, err := s.document.ExtractPDF(ctx, data)
		if err != nil {
			return "", types.StructuralHints{}, domain.NewCollaborator("documentai", err)
		}
		return extraction.Text, types.StructuralHints{ParagraphOffsets: extraction.PageOffsets}, nil

	case types.SourceKindImage:
		if s.bucket == nil || s.vision == nil || len(payload.ObjectKeys) == 0 {
			return "", types.StructuralHints{}, fmt.Errorf("image source %s has no stored objects", source.ID)
		}
		return s.stitchSlides(ctx, payload.ObjectKeys)

	case types.SourceKindYouTube:
		if s.yt == nil {
			return "", types.StructuralHints{}, fmt.Errorf("youtube source %s: client not configured", source.ID)
		}
		transcript, err := s.yt.FetchTranscript(ctx, source.URI)
		if err != nil {
			return "", types.StructuralHints{}, domain.NewCollaborator("youtube", err)
		}
		return transcript.Text, types.StructuralHints{CaptionMarks: transcript.CaptionMarks}, nil
	}
	return "", types.StructuralHints{}, fmt.Errorf("source %s kind %q carries no content", source.ID, source.Kind)
}

// stitchSlides OCRs each slide and joins them with slide-break hints at the
// concatenation boundaries.
func (s *ingestionService) stitchSlides(ctx context.Context, keys []string) (string, types.StructuralHints, error) {
	var b strings.Builder
	var breaks []int
	runeLen := 0

	for i, key := range keys {
		data, err := s.readObject(ctx, key)
		if err != nil {
			return "", types.StructuralHints{}, err
		}
		extraction, err := s.vision.OCRImage(ctx, data)
		if err != nil {
			return "", types.StructuralHints{}, domain.NewCollaborator("vision", err)
		}
		text := strings.TrimSpace(extraction.Text)
		if text == "" {
			s.log.Debug("Slide produced no text", "key", key, "slide", i+1)
			continue
		}
		if runeLen > 0 {
			b.WriteString("\n\n")
			runeLen += 2
			breaks = append(breaks, runeLen)
		}
		b.WriteString(text)
		runeLen += utf8.RuneCountInString(text)
	}
	return b.String(), types.StructuralHints{SlideBreaks: breaks}, nil
}

func (s *ingestionService) readObject(ctx context.Context, key string) ([]byte, error) {
	rc, err := s.bucket.DownloadObject(ctx, gcp.BucketCategorySource, key)
	if err != nil {
		return nil, domain.NewCollaborator("storage", err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, domain.NewCollaborator("storage", err)
	}
	return data, nil
}

// NormalizeTopic lowercases and collapses whitespace so topic scoping and
// vector filters agree on one spelling.
func NormalizeTopic(topic string) string {
	return strings.ToLower(strings.Join(strings.Fields(topic), " "))
}

func normalizeSubmissionText(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	return strings.TrimSpace(text)
}

func shaHex(parts ...[]byte) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write(p)
	}
	return hex.EncodeToString(h.Sum(nil))
}

func titleOrDerived(title, fallback string) string {
	if t := strings.TrimSpace(title); t != "" {
		return t
	}
	r := []rune(strings.TrimSpace(fallback))
	if len(r) > 80 {
		return strings.TrimSpace(string(r[:77])) + "..."
	}
	return string(r)
}

func defaultUploadTitle(kind string, files int) string {
	if kind == types.SourceKindImage && files > 1 {
		return fmt.Sprintf("Slide deck (%d slides)", files)
	}
	if kind == types.SourceKindImage {
		return "Image upload"
	}
	return "PDF upload"
}

func uploadKey(learnerID uuid.UUID, sha, kind string, index int, data []byte) string {
	ext := "bin"
	switch kind {
	case types.SourceKindPDF:
		ext = "pdf"
	case types.SourceKindImage:
		switch http.DetectContentType(data) {
		case "image/png":
			ext = "png"
		case "image/jpeg":
			ext = "jpg"
		case "image/webp":
			ext = "webp"
		default:
			ext = "img"
		}
	}
	return fmt.Sprintf("uploads/%s/%s/%02d.%s", learnerID, sha[:16], index, ext)
}
