package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/yungbote/deepdive-backend/internal/http/handlers"
	httpMW "github.com/yungbote/deepdive-backend/internal/http/middleware"
	"github.com/yungbote/deepdive-backend/internal/platform/logger"
)

type RouterConfig struct {
	Log *logger.Logger

	SessionHandler *httpH.SessionHandler
	ChatHandler    *httpH.ChatHandler
	EventsHandler  *httpH.EventsHandler

	TracingEnabled bool
	ServiceName    string
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(httpMW.CORS())
	if cfg.TracingEnabled {
		r.Use(otelgin.Middleware(cfg.ServiceName))
	}
	r.Use(httpMW.AttachTraceContext())
	if cfg.Log != nil {
		r.Use(httpMW.RequestLogger(cfg.Log))
	}

	r.GET("/healthcheck", httpH.HealthCheck)

	if cfg.SessionHandler != nil {
		r.GET("/sessions", cfg.SessionHandler.List)
		r.POST("/sessions", cfg.SessionHandler.Upsert)
		r.DELETE("/sessions/:id", cfg.SessionHandler.Delete)
		r.POST("/sessions/:id/summarize", cfg.SessionHandler.Summarize)
		r.POST("/sessions/:id/open", cfg.SessionHandler.Open)
		r.POST("/sessions/:id/messages", cfg.SessionHandler.SendMessage)
		r.POST("/sessions/:id/highlights", cfg.SessionHandler.AddHighlight)
		r.DELETE("/sessions/:id/highlights/:highlightId", cfg.SessionHandler.RemoveHighlight)
		r.POST("/sessions/:id/deepdive", cfg.SessionHandler.DeepDive)
	}

	if cfg.ChatHandler != nil {
		r.POST("/chat", cfg.ChatHandler.Complete)
	}

	if cfg.EventsHandler != nil {
		r.GET("/events", cfg.EventsHandler.Stream)
	}

	return r
}
