package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/dewiapp/dewi-backend/internal/http/response"
	"github.com/dewiapp/dewi-backend/internal/pkg/logger"
	"github.com/dewiapp/dewi-backend/internal/scheduler"
	"github.com/dewiapp/dewi-backend/internal/services"
)

// GestureHandler records engagement gestures against facts.
type GestureHandler struct {
	log      *logger.Logger
	gestures services.GestureService
}

func NewGestureHandler(baseLog *logger.Logger, gestures services.GestureService) *GestureHandler {
	return &GestureHandler{
		log:      baseLog.With("handler", "GestureHandler"),
		gestures: gestures,
	}
}

// POST /api/gestures
func (h *GestureHandler) Apply(c *gin.Context) {
	var req struct {
		LearnerID  uuid.UUID  `json:"learner_id"`
		FactID     uuid.UUID  `json:"fact_id"`
		Kind       string     `json:"kind"`
		LoopCount  int        `json:"loop_count"`
		OccurredAt *time.Time `json:"occurred_at"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	kind, err := scheduler.ParseKind(req.Kind)
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_gesture_kind", err)
		return
	}
	occurredAt := time.Now().UTC()
	if req.OccurredAt != nil {
		occurredAt = *req.OccurredAt
	}
	result, err := h.gestures.Apply(c.Request.Context(), req.LearnerID, req.FactID, scheduler.Gesture{
		Kind:       kind,
		OccurredAt: occurredAt,
		LoopCount:  req.LoopCount,
	})
	if err != nil {
		response.RespondDomainError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"result": result})
}
