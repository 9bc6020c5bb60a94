package api

import (
	"context"
	"encoding/json"
	"slices"
	"sync"
	"time"

	"github.com/nerrad567/venus-bridge/internal/infrastructure/config"
	"github.com/nerrad567/venus-bridge/internal/infrastructure/logging"
	"github.com/nerrad567/venus-bridge/internal/poller"
)

// Channels lists the broadcast channels a client may subscribe to.
var Channels = []string{poller.ChannelTelemetry, poller.ChannelTransition}

// Hub fans poll loop events out to WebSocket sessions. It implements
// poller.Observer.
type Hub struct {
	cfg    config.WebSocketConfig
	logger *logging.Logger

	mu       sync.RWMutex
	sessions map[*wsSession]struct{}
}

var _ poller.Observer = (*Hub)(nil)

// NewHub creates an empty hub.
func NewHub(cfg config.WebSocketConfig, logger *logging.Logger) *Hub {
	return &Hub{cfg: cfg, logger: logger, sessions: make(map[*wsSession]struct{})}
}

// Run blocks until ctx is cancelled, then closes every session.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()

	h.mu.Lock()
	all := h.sessions
	h.sessions = make(map[*wsSession]struct{})
	h.mu.Unlock()

	for s := range all {
		s.shutdown()
	}
}

func (h *Hub) join(s *wsSession) {
	h.mu.Lock()
	h.sessions[s] = struct{}{}
	n := len(h.sessions)
	h.mu.Unlock()
	h.logger.Debug("websocket session opened", "subject", s.subject, "role", s.role, "sessions", n)
}

func (h *Hub) leave(s *wsSession) {
	h.mu.Lock()
	delete(h.sessions, s)
	n := len(h.sessions)
	h.mu.Unlock()
	s.shutdown()
	h.logger.Debug("websocket session closed", "subject", s.subject, "sessions", n)
}

// Broadcast encodes one event frame and queues it on every session
// subscribed to channel. Slow sessions lose the frame.
func (h *Hub) Broadcast(channel string, payload any) {
	frame, err := json.Marshal(WSMessage{
		Type:      WSTypeEvent,
		EventType: channel,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Payload:   payload,
	})
	if err != nil {
		h.logger.Error("encoding websocket event failed", "channel", channel, "error", err)
		return
	}

	h.mu.RLock()
	targets := make([]*wsSession, 0, len(h.sessions))
	for s := range h.sessions {
		targets = append(targets, s)
	}
	h.mu.RUnlock()

	delivered := 0
	for _, s := range targets {
		if s.wants(channel) && s.enqueue(frame) {
			delivered++
		}
	}
	if delivered > 0 {
		h.logger.Debug("websocket event delivered", "channel", channel, "sessions", delivered)
	}
}

// ClientCount returns the number of open sessions.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

func isKnownChannel(ch string) bool {
	return slices.Contains(Channels, ch)
}
