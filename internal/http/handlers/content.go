package handlers

import (
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/dewiapp/dewi-backend/internal/http/response"
	"github.com/dewiapp/dewi-backend/internal/pkg/logger"
	"github.com/dewiapp/dewi-backend/internal/repos"
	"github.com/dewiapp/dewi-backend/internal/services"
	"github.com/dewiapp/dewi-backend/internal/types"
)

const maxUploadFormBytes = 64 << 20

// ContentHandler accepts learner submissions and exposes their sources.
type ContentHandler struct {
	log     *logger.Logger
	ingest  services.IngestionService
	facts   services.FactService
	sources repos.SourceRepo
}

func NewContentHandler(
	baseLog *logger.Logger,
	ingest services.IngestionService,
	facts services.FactService,
	sources repos.SourceRepo,
) *ContentHandler {
	return &ContentHandler{
		log:     baseLog.With("handler", "ContentHandler"),
		ingest:  ingest,
		facts:   facts,
		sources: sources,
	}
}

// POST /api/content/text
func (h *ContentHandler) SubmitText(c *gin.Context) {
	var req struct {
		LearnerID uuid.UUID `json:"learner_id"`
		Title     string    `json:"title"`
		Topic     string    `json:"topic"`
		Text      string    `json:"text"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	submission, err := h.ingest.SubmitText(c.Request.Context(), services.SubmitTextInput{
		LearnerID: req.LearnerID,
		Title:     req.Title,
		Topic:     req.Topic,
		Text:      req.Text,
	})
	if err != nil {
		response.RespondDomainError(c, err)
		return
	}
	respondSubmission(c, submission)
}

// POST /api/content/upload
func (h *ContentHandler) SubmitUpload(c *gin.Context) {
	if err := c.Request.ParseMultipartForm(maxUploadFormBytes); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_multipart_form", err)
		return
	}
	form := c.Request.MultipartForm
	learnerID, err := uuid.Parse(formValue(form.Value, "learner_id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_learner_id", err)
		return
	}
	kind := strings.TrimSpace(formValue(form.Value, "kind"))

	fileHeaders := form.File["files"]
	files := make([][]byte, 0, len(fileHeaders))
	for _, fh := range fileHeaders {
		f, err := fh.Open()
		if err != nil {
			h.log.Warn("Cannot open uploaded file", "filename", fh.Filename, "error", err)
			response.RespondError(c, http.StatusBadRequest, "unreadable_file", err)
			return
		}
		data, err := io.ReadAll(f)
		_ = f.Close()
		if err != nil {
			response.RespondError(c, http.StatusBadRequest, "unreadable_file", err)
			return
		}
		files = append(files, data)
	}

	submission, err := h.ingest.SubmitUpload(c.Request.Context(), services.SubmitUploadInput{
		LearnerID: learnerID,
		Title:     formValue(form.Value, "title"),
		Topic:     formValue(form.Value, "topic"),
		Kind:      kind,
		Files:     files,
	})
	if err != nil {
		response.RespondDomainError(c, err)
		return
	}
	respondSubmission(c, submission)
}

// POST /api/content/youtube
func (h *ContentHandler) SubmitYouTube(c *gin.Context) {
	var req struct {
		LearnerID uuid.UUID `json:"learner_id"`
		Title     string    `json:"title"`
		Topic     string    `json:"topic"`
		Video     string    `json:"video"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	submission, err := h.ingest.SubmitYouTube(c.Request.Context(), services.SubmitYouTubeInput{
		LearnerID: req.LearnerID,
		Title:     req.Title,
		Topic:     req.Topic,
		VideoRef:  req.Video,
	})
	if err != nil {
		response.RespondDomainError(c, err)
		return
	}
	respondSubmission(c, submission)
}

// GET /api/sources/:id
func (h *ContentHandler) GetSource(c *gin.Context) {
	sourceID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_source_id", err)
		return
	}
	source, err := h.sources.GetByID(c.Request.Context(), nil, sourceID)
	if err != nil {
		response.RespondDomainError(c, err)
		return
	}
	if source == nil {
		response.RespondError(c, http.StatusNotFound, "source_not_found", nil)
		return
	}
	response.RespondOK(c, gin.H{"source": source})
}

// GET /api/sources?learner_id=...
func (h *ContentHandler) ListSources(c *gin.Context) {
	learnerID, err := uuid.Parse(c.Query("learner_id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_learner_id", err)
		return
	}
	limit, _ := strconv.Atoi(c.Query("limit"))
	sources, err := h.sources.ListByLearner(c.Request.Context(), nil, learnerID, limit)
	if err != nil {
		response.RespondDomainError(c, err)
		return
	}
	if sources == nil {
		sources = []*types.Source{}
	}
	response.RespondOK(c, gin.H{"sources": sources})
}

// GET /api/sources/:id/facts
func (h *ContentHandler) ListSourceFacts(c *gin.Context) {
	sourceID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_source_id", err)
		return
	}
	facts, err := h.facts.ListBySource(c.Request.Context(), sourceID)
	if err != nil {
		response.RespondDomainError(c, err)
		return
	}
	if facts == nil {
		facts = []*types.Fact{}
	}
	response.RespondOK(c, gin.H{"facts": facts})
}

func respondSubmission(c *gin.Context, s *services.Submission) {
	body := gin.H{
		"source":    s.Source,
		"duplicate": s.Duplicate,
	}
	if s.Job != nil {
		body["job"] = s.Job
	}
	if s.Duplicate {
		response.RespondOK(c, body)
		return
	}
	response.RespondAccepted(c, body)
}

func formValue(values map[string][]string, key string) string {
	if v := values[key]; len(v) > 0 {
		return strings.TrimSpace(v[0])
	}
	return ""
}
