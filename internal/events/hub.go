// Package events fans scanner lifecycle events out to subscribers, including
// the WebSocket endpoint. Publishing never blocks the trading path: slow
// subscribers drop events.
package events

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// EventType identifies a scanner event.
type EventType string

const (
	TypeScanStart      EventType = "scan_start"
	TypeScanSummary    EventType = "scan_summary"
	TypeTradeExecuted  EventType = "trade_executed"
	TypePositionUpdate EventType = "position_update"
	TypeAccountUpdate  EventType = "account_update"
)

// Event is a timestamped scanner event with a type-specific payload.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// Hub fans events out to subscribers.
type Hub struct {
	logger zerolog.Logger

	mu          sync.RWMutex
	subscribers map[string]chan Event
	closed      bool
}

// NewHub creates a hub.
func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		logger:      logger,
		subscribers: make(map[string]chan Event),
	}
}

// Publish sends an event to all subscribers. Full subscriber buffers drop
// the event for that subscriber only.
func (h *Hub) Publish(t EventType, payload interface{}) {
	evt := Event{
		ID:        uuid.NewString(),
		Type:      t,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return
	}
	for id, ch := range h.subscribers {
		select {
		case ch <- evt:
		default:
			h.logger.Debug().Str("subscriber", id).Str("type", string(t)).Msg("Subscriber buffer full, event dropped")
		}
	}
}

// Subscribe registers a subscriber and returns its id and channel.
func (h *Hub) Subscribe() (string, <-chan Event) {
	id := uuid.NewString()
	ch := make(chan Event, 64)

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(ch)
		return id, ch
	}
	h.subscribers[id] = ch
	return id, ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (h *Hub) Unsubscribe(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if ch, ok := h.subscribers[id]; ok {
		delete(h.subscribers, id)
		close(ch)
	}
}

// Close shuts the hub down and closes all subscriber channels.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for id, ch := range h.subscribers {
		delete(h.subscribers, id)
		close(ch)
	}
}
