package services

import (
	"context"

	"github.com/yungbote/deepdive-backend/internal/clients/redis"
	"github.com/yungbote/deepdive-backend/internal/platform/logger"
	"github.com/yungbote/deepdive-backend/internal/realtime"
)

const (
	EventSessionSaved      = "session.saved"
	EventSessionDeleted    = "session.deleted"
	EventSessionSummarized = "session.summarized"
	EventDeepDiveSpawned   = "deepdive.spawned"
)

// Notifier announces session mutations to the in-process hub and, when a
// Redis bus is configured, to other instances. Publishing is best-effort;
// a bus failure is logged and never propagated.
type Notifier struct {
	hub *realtime.Hub
	bus redis.EventBus
	log *logger.Logger
}

func NewNotifier(hub *realtime.Hub, bus redis.EventBus, log *logger.Logger) *Notifier {
	return &Notifier{hub: hub, bus: bus, log: log.With("component", "Notifier")}
}

func (n *Notifier) Publish(ctx context.Context, event, sessionID string) {
	if n == nil {
		return
	}
	evt := realtime.Event{Event: event, SessionID: sessionID}
	if n.hub != nil {
		n.hub.Broadcast(evt)
	}
	if n.bus != nil {
		if err := n.bus.Publish(ctx, evt); err != nil {
			n.log.Warn("event bus publish failed", "event", event, "session_id", sessionID, "error", err)
		}
	}
}
