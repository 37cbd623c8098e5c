package app

import (
	"github.com/gin-gonic/gin"

	httpRouter "github.com/yungbote/deepdive-backend/internal/http"
	httpH "github.com/yungbote/deepdive-backend/internal/http/handlers"
	"github.com/yungbote/deepdive-backend/internal/platform/logger"
	"github.com/yungbote/deepdive-backend/internal/realtime"
)

type Handlers struct {
	Session *httpH.SessionHandler
	Chat    *httpH.ChatHandler
	Events  *httpH.EventsHandler
}

func wireHandlers(log *logger.Logger, services Services, hub *realtime.Hub) Handlers {
	log.Info("Wiring handlers...")
	return Handlers{
		Session: httpH.NewSessionHandler(log, services.Store, services.Summarizer, services.Manager, services.Notifier),
		Chat:    httpH.NewChatHandler(log, services.Chat),
		Events:  httpH.NewEventsHandler(log, hub),
	}
}

func wireRouter(log *logger.Logger, cfg Config, handlers Handlers) *gin.Engine {
	return httpRouter.NewRouter(httpRouter.RouterConfig{
		Log:            log,
		SessionHandler: handlers.Session,
		ChatHandler:    handlers.Chat,
		EventsHandler:  handlers.Events,
		TracingEnabled: cfg.TracingEnabled,
		ServiceName:    cfg.ServiceName,
	})
}
