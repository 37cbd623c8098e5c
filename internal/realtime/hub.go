// Package realtime fans session event notifications out to connected SSE
// clients so a UI can refresh its conversation tree without polling.
package realtime

import (
	"sync"

	"github.com/yungbote/deepdive-backend/internal/platform/logger"
)

// Event is a lightweight notification about a session mutation.
type Event struct {
	Event     string `json:"event"`
	SessionID string `json:"sessionId,omitempty"`
}

type Subscriber struct {
	Outbound chan Event
}

type Hub struct {
	mu   sync.RWMutex
	log  *logger.Logger
	subs map[*Subscriber]struct{}
}

func NewHub(log *logger.Logger) *Hub {
	return &Hub{
		log:  log.With("component", "RealtimeHub"),
		subs: make(map[*Subscriber]struct{}),
	}
}

func (h *Hub) Subscribe() *Subscriber {
	sub := &Subscriber{Outbound: make(chan Event, 16)}
	h.mu.Lock()
	h.subs[sub] = struct{}{}
	h.mu.Unlock()
	h.log.Debug("sse client subscribed", "subscribers", h.Len())
	return sub
}

func (h *Hub) Unsubscribe(sub *Subscriber) {
	h.mu.Lock()
	delete(h.subs, sub)
	h.mu.Unlock()
}

func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Broadcast delivers the event to every subscriber without blocking; a
// client whose buffer is full misses the event rather than stalling others.
func (h *Hub) Broadcast(evt Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for sub := range h.subs {
		select {
		case sub.Outbound <- evt:
		default:
			h.log.Warn("dropping event for slow sse client", "event", evt.Event)
		}
	}
}
