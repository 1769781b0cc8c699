package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/dewiapp/dewi-backend/internal/http/response"
	"github.com/dewiapp/dewi-backend/internal/pkg/logger"
	"github.com/dewiapp/dewi-backend/internal/repos"
	"github.com/dewiapp/dewi-backend/internal/services"
	"github.com/dewiapp/dewi-backend/internal/types"
)

// ScriptHandler generates and serves short-form video scripts.
type ScriptHandler struct {
	log     *logger.Logger
	scripts services.ScriptService
	jobs    repos.JobRepo
}

func NewScriptHandler(baseLog *logger.Logger, scripts services.ScriptService, jobs repos.JobRepo) *ScriptHandler {
	return &ScriptHandler{
		log:     baseLog.With("handler", "ScriptHandler"),
		scripts: scripts,
		jobs:    jobs,
	}
}

// GET /api/facts/:id/script
func (h *ScriptHandler) GetByFact(c *gin.Context) {
	factID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_fact_id", err)
		return
	}
	script, err := h.scripts.GetByFact(c.Request.Context(), factID)
	if err != nil {
		response.RespondDomainError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"script": script})
}

// POST /api/facts/:id/script
func (h *ScriptHandler) Generate(c *gin.Context) {
	factID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_fact_id", err)
		return
	}
	var req struct {
		TTS bool `json:"tts"`
	}
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		response.RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	script, err := h.scripts.Generate(c.Request.Context(), factID, req.TTS)
	if err != nil {
		response.RespondDomainError(c, err)
		return
	}
	response.RespondCreated(c, gin.H{"script": script})
}

// POST /api/scripts/batch
func (h *ScriptHandler) Batch(c *gin.Context) {
	var req struct {
		FactIDs []uuid.UUID `json:"fact_ids"`
		TTS     bool        `json:"tts"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	if len(req.FactIDs) == 0 {
		response.RespondError(c, http.StatusBadRequest, "empty_fact_ids", nil)
		return
	}
	payload, err := json.Marshal(types.ScriptBatchPayload{FactIDs: req.FactIDs, TTS: req.TTS})
	if err != nil {
		response.RespondDomainError(c, err)
		return
	}
	job := &types.Job{
		Type:    types.JobTypeScriptBatch,
		Payload: datatypes.JSON(payload),
	}
	if err := h.jobs.Create(c.Request.Context(), nil, job); err != nil {
		response.RespondDomainError(c, err)
		return
	}
	h.log.Info("Script batch queued", "job_id", job.ID, "facts", len(req.FactIDs))
	response.RespondAccepted(c, gin.H{"job": job})
}
