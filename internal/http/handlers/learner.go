package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/dewiapp/dewi-backend/internal/http/response"
	"github.com/dewiapp/dewi-backend/internal/pkg/logger"
	"github.com/dewiapp/dewi-backend/internal/services"
	"github.com/dewiapp/dewi-backend/internal/types"
)

type LearnerHandler struct {
	log      *logger.Logger
	learners services.LearnerService
}

func NewLearnerHandler(baseLog *logger.Logger, learners services.LearnerService) *LearnerHandler {
	return &LearnerHandler{
		log:      baseLog.With("handler", "LearnerHandler"),
		learners: learners,
	}
}

// POST /api/learners
func (h *LearnerHandler) Create(c *gin.Context) {
	var req struct {
		DisplayName string `json:"display_name"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	learner, err := h.learners.Create(c.Request.Context(), req.DisplayName)
	if err != nil {
		response.RespondDomainError(c, err)
		return
	}
	response.RespondCreated(c, gin.H{"learner": learner})
}

// GET /api/learners/:id
func (h *LearnerHandler) Get(c *gin.Context) {
	learnerID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_learner_id", err)
		return
	}
	learner, err := h.learners.Get(c.Request.Context(), learnerID)
	if err != nil {
		response.RespondDomainError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"learner": learner})
}

// GET /api/learners
func (h *LearnerHandler) List(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	learners, err := h.learners.List(c.Request.Context(), limit)
	if err != nil {
		response.RespondDomainError(c, err)
		return
	}
	if learners == nil {
		learners = []*types.Learner{}
	}
	response.RespondOK(c, gin.H{"learners": learners})
}
