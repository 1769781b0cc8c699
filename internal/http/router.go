package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/dewiapp/dewi-backend/internal/http/handlers"
	"github.com/dewiapp/dewi-backend/internal/http/middleware"
	"github.com/dewiapp/dewi-backend/internal/pkg/logger"
)

// RouterConfig carries the handlers the router mounts. Nil handlers leave
// their routes unregistered, which keeps partial wiring in tests honest.
type RouterConfig struct {
	Log *logger.Logger

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

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.RequestLogger(cfg.Log))
	r.Use(middleware.CORS())
	r.Use(otelgin.Middleware("dewi-backend"))

	if cfg.Health != nil {
		r.GET("/healthcheck", cfg.Health.HealthCheck)
	}

	api := r.Group("/api")

	if cfg.Learners != nil {
		api.POST("/learners", cfg.Learners.Create)
		api.GET("/learners", cfg.Learners.List)
		api.GET("/learners/:id", cfg.Learners.Get)
	}

	if cfg.Content != nil {
		api.POST("/content/text", cfg.Content.SubmitText)
		api.POST("/content/upload", cfg.Content.SubmitUpload)
		api.POST("/content/youtube", cfg.Content.SubmitYouTube)
		api.GET("/sources", cfg.Content.ListSources)
		api.GET("/sources/:id", cfg.Content.GetSource)
		api.GET("/sources/:id/facts", cfg.Content.ListSourceFacts)
	}

	if cfg.Jobs != nil {
		api.GET("/jobs/:id", cfg.Jobs.Get)
		api.POST("/jobs/:id/abort", cfg.Jobs.Abort)
	}

	if cfg.Gestures != nil {
		api.POST("/gestures", cfg.Gestures.Apply)
	}

	if cfg.Queue != nil {
		api.GET("/queue", cfg.Queue.Session)
	}

	if cfg.Facts != nil {
		api.GET("/facts", cfg.Facts.ListByTopic)
		api.GET("/facts/:id", cfg.Facts.Get)
		api.GET("/facts/:id/related", cfg.Facts.Related)
		api.POST("/facts/:id/retire", cfg.Facts.Retire)
	}

	if cfg.Scripts != nil {
		api.GET("/facts/:id/script", cfg.Scripts.GetByFact)
		api.POST("/facts/:id/script", cfg.Scripts.Generate)
		api.POST("/scripts/batch", cfg.Scripts.Batch)
	}

	if cfg.Events != nil {
		api.GET("/events/stream", cfg.Events.Stream)
	}

	return r
}
