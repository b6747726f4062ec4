package hub

import (
	"context"
	"encoding/json"
	"sync"

	"rms/order-service/internal/events"

	"go.uber.org/zap"
)

// Subscription lists the event names a client wants. An empty subscription
// receives everything.
type Subscription map[string]struct{}

func NewSubscription(names ...string) Subscription {
	sub := make(Subscription, len(names))
	for _, name := range names {
		sub[name] = struct{}{}
	}
	return sub
}

func (s Subscription) Wants(name string) bool {
	if len(s) == 0 {
		return true
	}
	_, ok := s[name]
	return ok
}

type Client struct {
	ID           string
	Send         chan []byte
	Subscription Subscription
}

type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
	logger  *zap.Logger
}

type SubscribeMessage struct {
	Action string   `json:"action"`
	Events []string `json:"events"`
}

func New(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{clients: make(map[string]*Client), logger: logger}
}

func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[client.ID] = client
}

func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[client.ID]; !ok {
		return
	}
	delete(h.clients, client.ID)
	close(client.Send)
}

func (h *Hub) UpdateSubscription(client *Client, sub Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	client.Subscription = sub
}

func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast hands payload to every interested client without blocking. A
// client whose buffer is full misses the message.
func (h *Hub) Broadcast(name string, payload []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, client := range h.clients {
		if !client.Subscription.Wants(name) {
			continue
		}
		select {
		case client.Send <- payload:
		default:
			h.logger.Warn("drop message for client", zap.String("client_id", client.ID), zap.String("event", name))
		}
	}
}

func (h *Hub) Publish(_ context.Context, event events.Event) {
	payload, err := json.Marshal(event.Envelope())
	if err != nil {
		h.logger.Error("encode event", zap.String("event", event.Name), zap.Error(err))
		return
	}
	h.Broadcast(event.Name, payload)
}

func ParseSubscribe(data []byte) (SubscribeMessage, bool) {
	var msg SubscribeMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return SubscribeMessage{}, false
	}
	if msg.Action != "subscribe" && msg.Action != "unsubscribe" {
		return SubscribeMessage{}, false
	}
	requested := len(msg.Events)
	known := msg.Events[:0]
	for _, name := range msg.Events {
		if events.Known(name) {
			known = append(known, name)
		}
	}
	// Naming only unknown events must not widen the subscription to everything.
	if requested > 0 && len(known) == 0 {
		return SubscribeMessage{}, false
	}
	msg.Events = known
	return msg, true
}
