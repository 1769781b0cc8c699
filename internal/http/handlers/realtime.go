package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/dewiapp/dewi-backend/internal/http/response"
	"github.com/dewiapp/dewi-backend/internal/pkg/logger"
	"github.com/dewiapp/dewi-backend/internal/realtime"
)

const maxStreamChannels = 16

// RealtimeHandler bridges HTTP clients onto the SSE hub.
type RealtimeHandler struct {
	log *logger.Logger
	hub *realtime.Hub
}

func NewRealtimeHandler(baseLog *logger.Logger, hub *realtime.Hub) *RealtimeHandler {
	return &RealtimeHandler{
		log: baseLog.With("handler", "RealtimeHandler"),
		hub: hub,
	}
}

// GET /api/events/stream?channel=job:<id>&channel=learner:<id>
//
// Channels are fixed at connect time. Clients wanting a different set
// reconnect; SSE reconnects are cheap and the frontend already retries.
func (h *RealtimeHandler) Stream(c *gin.Context) {
	channels := make([]string, 0, 4)
	for _, raw := range c.QueryArray("channel") {
		ch := strings.TrimSpace(raw)
		if ch == "" {
			continue
		}
		channels = append(channels, ch)
	}
	if len(channels) == 0 {
		response.RespondError(c, http.StatusBadRequest, "missing_channel", nil)
		return
	}
	if len(channels) > maxStreamChannels {
		response.RespondError(c, http.StatusBadRequest, "too_many_channels", nil)
		return
	}

	client := h.hub.NewClient()
	for _, ch := range channels {
		h.hub.Subscribe(client, ch)
	}
	h.log.Info("SSE stream opened", "channels", len(channels))

	h.hub.ServeHTTP(c.Writer, c.Request, client)
	h.hub.CloseClient(client)
}
