package realtime

import (
	"net/http"

	"rms/order-service/internal/events"
	"rms/order-service/internal/hub"

	"github.com/google/uuid"
	"github.com/igm/sockjs-go/sockjs"
	"go.uber.org/zap"
)

const (
	Prefix              = "/realtime"
	defaultClientBuffer = 16
)

type session interface {
	Recv() (string, error)
	Send(string) error
}

type Handler struct {
	hub    *hub.Hub
	buffer int
	logger *zap.Logger
}

func NewHandler(h *hub.Hub, buffer int, logger *zap.Logger) *Handler {
	if buffer <= 0 {
		buffer = defaultClientBuffer
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{hub: h, buffer: buffer, logger: logger}
}

// HTTPHandler mounts the sockjs endpoint under Prefix.
func (h *Handler) HTTPHandler() http.Handler {
	return sockjs.NewHandler(Prefix, sockjs.DefaultOptions, func(s sockjs.Session) {
		h.serve(s)
	})
}

func (h *Handler) serve(s session) {
	client := &hub.Client{ID: uuid.NewString(), Send: make(chan []byte, h.buffer)}
	h.hub.Register(client)
	defer h.hub.Unregister(client)
	h.logger.Debug("realtime client connected", zap.String("client_id", client.ID))

	go func() {
		for msg := range client.Send {
			if err := s.Send(string(msg)); err != nil {
				return
			}
		}
	}()

	for {
		msg, err := s.Recv()
		if err != nil {
			h.logger.Debug("realtime client disconnected", zap.String("client_id", client.ID), zap.Error(err))
			return
		}
		h.handleMessage(client, msg)
	}
}

func (h *Handler) handleMessage(client *hub.Client, raw string) {
	parsed, ok := hub.ParseSubscribe([]byte(raw))
	if !ok {
		return
	}
	h.hub.UpdateSubscription(client, nextSubscription(client.Subscription, parsed))
}

// nextSubscription applies a subscribe or unsubscribe request. An empty
// subscription means every event. Unsubscribing without names resets to it.
func nextSubscription(current hub.Subscription, msg hub.SubscribeMessage) hub.Subscription {
	switch msg.Action {
	case "subscribe":
		if len(msg.Events) == 0 {
			return hub.Subscription{}
		}
		next := hub.NewSubscription(msg.Events...)
		for name := range current {
			next[name] = struct{}{}
		}
		return next
	case "unsubscribe":
		if len(msg.Events) == 0 {
			return hub.Subscription{}
		}
		base := current
		if len(base) == 0 {
			base = hub.NewSubscription(events.Names...)
		}
		next := hub.Subscription{}
		for name := range base {
			next[name] = struct{}{}
		}
		for _, name := range msg.Events {
			delete(next, name)
		}
		if len(next) == 0 {
			// Nothing left; keep an unmatched marker so the client stays muted.
			next["none"] = struct{}{}
		}
		return next
	}
	return current
}
