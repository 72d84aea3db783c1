package live

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/rs/zerolog"

	"rfidattend/internal/attendance"
	"rfidattend/internal/metrics"
)

// Events pushed to dashboards.
const (
	EventCheckIn       = "checkin"
	EventBatchArchived = "batch_archived"
)

// Message is the websocket envelope.
type Message struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// NewMessage marshals payload into a Message.
func NewMessage(event string, payload any) (Message, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Message{}, err
	}
	return Message{Event: event, Data: data}, nil
}

// Publisher fans a message out to every API instance.
type Publisher interface {
	Publish(ctx context.Context, msg Message) error
}

// Hub tracks the dashboard connections of this instance. With a Publisher
// set, messages go through it and come back via the relay subscription, so
// every instance delivers them exactly once.
type Hub struct {
	mu        sync.RWMutex
	clients   map[string]*Client
	publisher Publisher
	log       zerolog.Logger
}

// NewHub creates a hub. publisher may be nil for a single instance.
func NewHub(publisher Publisher, log zerolog.Logger) *Hub {
	return &Hub{
		clients:   make(map[string]*Client),
		publisher: publisher,
		log:       log.With().Str("component", "live_hub").Logger(),
	}
}

// Register adds a client.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	h.clients[c.ID] = c
	n := len(h.clients)
	h.mu.Unlock()
	metrics.LiveClients.Inc()
	h.log.Debug().Str("client_id", c.ID).Int("clients", n).Msg("dashboard connected")
}

// Unregister removes a client and closes its send channel.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	_, ok := h.clients[c.ID]
	if ok {
		delete(h.clients, c.ID)
		close(c.send)
	}
	h.mu.Unlock()
	if ok {
		metrics.LiveClients.Dec()
		h.log.Debug().Str("client_id", c.ID).Msg("dashboard disconnected")
	}
}

// Count returns the number of connected clients.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast delivers msg to local clients. Slow clients miss messages.
func (h *Hub) Broadcast(msg Message) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		select {
		case c.send <- msg:
		default:
			h.log.Warn().Str("client_id", c.ID).Str("event", msg.Event).Msg("client buffer full, message dropped")
		}
	}
}

// Publish sends msg through the publisher, or locally when there is none
// or it fails.
func (h *Hub) Publish(ctx context.Context, msg Message) error {
	if h.publisher != nil {
		err := h.publisher.Publish(ctx, msg)
		if err == nil {
			return nil
		}
		h.log.Warn().Err(err).Str("event", msg.Event).Msg("relay publish failed, broadcasting locally")
	}
	h.Broadcast(msg)
	return nil
}

// NotifyCheckIn pushes a newly recorded check-in to dashboards.
func (h *Hub) NotifyCheckIn(ctx context.Context, entry attendance.LogEntry) {
	msg, err := NewMessage(EventCheckIn, entry)
	if err != nil {
		h.log.Error().Err(err).Msg("encode check-in")
		return
	}
	_ = h.Publish(ctx, msg)
}
