package app

import (
	"context"
	"fmt"

	"github.com/yungbote/deepdive-backend/internal/platform/logger"
	"github.com/yungbote/deepdive-backend/internal/realtime"
	"github.com/yungbote/deepdive-backend/internal/services"
	"github.com/yungbote/deepdive-backend/internal/store/sessionstore"
)

type Services struct {
	Store      *sessionstore.Store
	Chain      *services.ChainBuilder
	Summarizer *services.Summarizer
	Chat       *services.ChatService
	Notifier   *services.Notifier
	Manager    *services.Manager
}

func wireServices(log *logger.Logger, cfg Config, clients Clients, hub *realtime.Hub) (Services, error) {
	log.Info("Wiring services...")

	store, err := sessionstore.New(cfg.SessionsDir, log)
	if err != nil {
		return Services{}, fmt.Errorf("init session store: %w", err)
	}

	chain := services.NewChainBuilder(store, log)
	summarizer := services.NewSummarizer(store, clients.OpenAI, log)
	chatSvc := services.NewChatService(clients.OpenAI, chain, log)
	notifier := services.NewNotifier(hub, clients.EventBus, log)
	manager := services.NewManager(store, chatSvc, summarizer, notifier, clients.OpenAI, log)

	if err := manager.Load(context.Background()); err != nil {
		return Services{}, fmt.Errorf("load session forest: %w", err)
	}

	return Services{
		Store:      store,
		Chain:      chain,
		Summarizer: summarizer,
		Chat:       chatSvc,
		Notifier:   notifier,
		Manager:    manager,
	}, nil
}
