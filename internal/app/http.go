package app

import (
	"github.com/gin-gonic/gin"

	httpapi "github.com/dewiapp/dewi-backend/internal/http"
	"github.com/dewiapp/dewi-backend/internal/http/handlers"
	"github.com/dewiapp/dewi-backend/internal/pkg/logger"
	"github.com/dewiapp/dewi-backend/internal/realtime"
)

type Handlers struct {
	Health   *handlers.HealthHandler
	Learners *handlers.LearnerHandler
	Content  *handlers.ContentHandler
	Jobs     *handlers.JobHandler
	Gestures *handlers.GestureHandler
	Queue    *handlers.QueueHandler
	Facts    *handlers.FactHandler
	Scripts  *handlers.ScriptHandler
	Events   *handlers.RealtimeHandler
}

func wireHandlers(log *logger.Logger, svcs Services, r Repos, hub *realtime.Hub) Handlers {
	log.Info("Wiring handlers...")
	return Handlers{
		Health:   handlers.NewHealthHandler(),
		Learners: handlers.NewLearnerHandler(log, svcs.Learner),
		Content:  handlers.NewContentHandler(log, svcs.Ingestion, svcs.Fact, r.Source),
		Jobs:     handlers.NewJobHandler(log, r.Job),
		Gestures: handlers.NewGestureHandler(log, svcs.Gesture),
		Queue:    handlers.NewQueueHandler(log, svcs.Queue),
		Facts:    handlers.NewFactHandler(log, svcs.Fact),
		Scripts:  handlers.NewScriptHandler(log, svcs.Script, r.Job),
		Events:   handlers.NewRealtimeHandler(log, hub),
	}
}

func wireRouter(log *logger.Logger, h Handlers) *gin.Engine {
	return httpapi.NewRouter(httpapi.RouterConfig{
		Log:      log,
		Health:   h.Health,
		Learners: h.Learners,
		Content:  h.Content,
		Jobs:     h.Jobs,
		Gestures: h.Gestures,
		Queue:    h.Queue,
		Facts:    h.Facts,
		Scripts:  h.Scripts,
		Events:   h.Events,
	})
}
