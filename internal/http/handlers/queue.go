package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/dewiapp/dewi-backend/internal/http/response"
	"github.com/dewiapp/dewi-backend/internal/pkg/logger"
	"github.com/dewiapp/dewi-backend/internal/services"
)

// QueueHandler serves the per-learner session feed.
type QueueHandler struct {
	log   *logger.Logger
	queue services.QueueService
}

func NewQueueHandler(baseLog *logger.Logger, queue services.QueueService) *QueueHandler {
	return &QueueHandler{
		log:   baseLog.With("handler", "QueueHandler"),
		queue: queue,
	}
}

// GET /api/queue?learner_id=...&session_id=...&size=...
func (h *QueueHandler) Session(c *gin.Context) {
	learnerID, err := uuid.Parse(c.Query("learner_id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_learner_id", err)
		return
	}
	sessionID := strings.TrimSpace(c.Query("session_id"))
	size, _ := strconv.Atoi(c.Query("size"))

	feed, err := h.queue.BuildSession(c.Request.Context(), learnerID, sessionID, size)
	if err != nil {
		response.RespondDomainError(c, err)
		return
	}
	response.RespondOK(c, feed)
}
