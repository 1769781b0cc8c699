package handlers

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/dewiapp/dewi-backend/internal/http/response"
	"github.com/dewiapp/dewi-backend/internal/pkg/logger"
	"github.com/dewiapp/dewi-backend/internal/services"
	"github.com/dewiapp/dewi-backend/internal/types"
)

// FactHandler reads and retires atomic facts.
type FactHandler struct {
	log   *logger.Logger
	facts services.FactService
}

func NewFactHandler(baseLog *logger.Logger, facts services.FactService) *FactHandler {
	return &FactHandler{
		log:   baseLog.With("handler", "FactHandler"),
		facts: facts,
	}
}

// GET /api/facts/:id
func (h *FactHandler) Get(c *gin.Context) {
	factID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_fact_id", err)
		return
	}
	fact, err := h.facts.Get(c.Request.Context(), factID)
	if err != nil {
		response.RespondDomainError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"fact": fact})
}

// GET /api/facts?topic=...&limit=...
func (h *FactHandler) ListByTopic(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	facts, err := h.facts.ListByTopic(c.Request.Context(), c.Query("topic"), limit)
	if err != nil {
		response.RespondDomainError(c, err)
		return
	}
	if facts == nil {
		facts = []*types.Fact{}
	}
	response.RespondOK(c, gin.H{"facts": facts})
}

// GET /api/facts/:id/related?limit=...
func (h *FactHandler) Related(c *gin.Context) {
	factID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_fact_id", err)
		return
	}
	limit, _ := strconv.Atoi(c.Query("limit"))
	related, err := h.facts.Related(c.Request.Context(), factID, limit)
	if err != nil {
		response.RespondDomainError(c, err)
		return
	}
	if related == nil {
		related = []services.RelatedFact{}
	}
	response.RespondOK(c, gin.H{"related": related})
}

// POST /api/facts/:id/retire
func (h *FactHandler) Retire(c *gin.Context) {
	factID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_fact_id", err)
		return
	}
	var req struct {
		MergedInto *uuid.UUID `json:"merged_into"`
	}
	// An empty body is a plain retire with no surviving fact.
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		response.RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	if err := h.facts.Retire(c.Request.Context(), factID, req.MergedInto); err != nil {
		response.RespondDomainError(c, err)
		return
	}
	h.log.Info("Fact retired", "fact_id", factID)
	response.RespondOK(c, gin.H{"ok": true})
}
