package app

import (
	"fmt"

	"github.com/yungbote/deepdive-backend/internal/clients/openai"
	"github.com/yungbote/deepdive-backend/internal/clients/redis"
	"github.com/yungbote/deepdive-backend/internal/platform/logger"
)

type Clients struct {
	OpenAI   openai.Client
	EventBus redis.EventBus
}

func wireClients(log *logger.Logger, cfg Config) (Clients, error) {
	log.Info("Wiring clients...")

	clients := Clients{
		OpenAI: openai.New(log),
	}

	if cfg.RedisEnabled {
		bus, err := redis.NewEventBus(log)
		if err != nil {
			return Clients{}, fmt.Errorf("init redis event bus: %w", err)
		}
		clients.EventBus = bus
	}
	return clients, nil
}
