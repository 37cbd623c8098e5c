package app

import (
	"context"
	"fmt"
	"os"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/deepdive-backend/internal/observability"
	"github.com/yungbote/deepdive-backend/internal/platform/logger"
	"github.com/yungbote/deepdive-backend/internal/realtime"
	"github.com/yungbote/deepdive-backend/internal/services"
)

type App struct {
	Log      *logger.Logger
	Cfg      Config
	Router   *gin.Engine
	Clients  Clients
	Services Services
	Hub      *realtime.Hub

	cancel      context.CancelFunc
	stopTracing func(context.Context) error
}

func New() (*App, error) {
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	log.Info("Loading environment variables...")
	cfg := LoadConfig(log)

	stopTracing := observability.InitTracing(context.Background(), log, observability.Config{
		ServiceName: cfg.ServiceName,
		Environment: cfg.Environment,
	})

	clients, err := wireClients(log, cfg)
	if err != nil {
		log.Sync()
		return nil, err
	}

	hub := realtime.NewHub(log)

	serviceset, err := wireServices(log, cfg, clients, hub)
	if err != nil {
		log.Sync()
		return nil, err
	}

	handlerset := wireHandlers(log, serviceset, hub)
	router := wireRouter(log, cfg, handlerset)

	return &App{
		Log:         log,
		Cfg:         cfg,
		Router:      router,
		Clients:     clients,
		Services:    serviceset,
		Hub:         hub,
		stopTracing: stopTracing,
	}, nil
}

// Start spins up background consumers. With Redis configured, events
// published by other instances are forwarded into the local SSE hub, and
// deletes performed elsewhere evict the local in-memory copy.
func (a *App) Start() {
	if a == nil || a.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel

	if a.Clients.EventBus != nil {
		err := a.Clients.EventBus.StartForwarder(ctx, func(evt realtime.Event) {
			if evt.Event == services.EventSessionDeleted {
				a.Services.Manager.Forget(evt.SessionID)
			}
			a.Hub.Broadcast(evt)
		})
		if err != nil {
			a.Log.Error("start redis event forwarder", "error", err)
		}
	}
}

func (a *App) Run() error {
	if a == nil || a.Router == nil {
		return fmt.Errorf("app not initialized")
	}
	a.Log.Info("HTTP server listening", "addr", a.Cfg.HTTPAddr)
	return a.Router.Run(a.Cfg.HTTPAddr)
}

func (a *App) Close() {
	if a == nil {
		return
	}
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
	if a.Clients.EventBus != nil {
		if err := a.Clients.EventBus.Close(); err != nil {
			a.Log.Warn("close redis event bus", "error", err)
		}
	}
	if a.stopTracing != nil {
		if err := a.stopTracing(context.Background()); err != nil {
			a.Log.Warn("shutdown tracing", "error", err)
		}
	}
	if a.Log != nil {
		a.Log.Sync()
	}
}
