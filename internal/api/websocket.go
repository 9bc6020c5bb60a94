package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/venus-bridge/internal/auth"
	"github.com/nerrad567/venus-bridge/internal/infrastructure/config"
)

// Frame types exchanged with WebSocket clients.
const (
	WSTypeSubscribe   = "subscribe"
	WSTypeUnsubscribe = "unsubscribe"
	WSTypePing        = "ping"
	WSTypePong        = "pong"
	WSTypeEvent       = "event"
	WSTypeResponse    = "response"
	WSTypeError       = "error"
)

const (
	sessionQueueSize = 64

	fallbackPingInterval = 30 * time.Second
	fallbackPongTimeout  = 10 * time.Second
)

// WSMessage is one JSON frame in either direction.
type WSMessage struct {
	Type      string `json:"type"`
	ID        string `json:"id,omitempty"`
	EventType string `json:"event_type,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Payload   any    `json:"payload,omitempty"`
}

// WSSubscribePayload is the payload of subscribe and unsubscribe frames.
type WSSubscribePayload struct {
	Channels []string `json:"channels"`
}

// Origins are enforced by the CORS middleware.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// wsSession is one upgraded connection. The reader goroutine owns inbound
// frames; the writer goroutine is the only one touching conn writes.
type wsSession struct {
	hub     *Hub
	conn    *websocket.Conn
	subject string
	role    auth.Role

	out      chan []byte
	done     chan struct{}
	stopOnce sync.Once

	mu       sync.RWMutex
	channels map[string]struct{}
}

func newSession(hub *Hub, conn *websocket.Conn, subject string, role auth.Role) *wsSession {
	return &wsSession{
		hub:      hub,
		conn:     conn,
		subject:  subject,
		role:     role,
		out:      make(chan []byte, sessionQueueSize),
		done:     make(chan struct{}),
		channels: make(map[string]struct{}),
	}
}

// handleWebSocket upgrades the request. With auth enabled the "ticket"
// query parameter must carry an unused ticket from POST
// /api/v1/auth/ws-ticket.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	subject, role := anonymousSubject, auth.RoleOperator
	if s.authEnabled() {
		ticket := r.URL.Query().Get("ticket")
		if ticket == "" {
			writeUnauthorized(w, "ticket query parameter is required")
			return
		}
		entry, ok := s.tickets.consume(ticket)
		if !ok {
			writeUnauthorized(w, "invalid or expired ticket")
			return
		}
		subject, role = entry.subject, entry.role
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	sess := newSession(s.hub, conn, subject, role)
	s.hub.join(sess)
	go sess.writeLoop(s.wsCfg)
	go sess.readLoop(s.wsCfg)
}

// shutdown stops the writer, which sends a close frame and closes conn.
func (c *wsSession) shutdown() {
	c.stopOnce.Do(func() { close(c.done) })
}

// enqueue queues frame unless the session is gone or its queue is full.
func (c *wsSession) enqueue(frame []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.out <- frame:
		return true
	default:
		return false
	}
}

func (c *wsSession) wants(channel string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.channels[channel]
	return ok
}

func (c *wsSession) readLoop(cfg config.WebSocketConfig) {
	defer c.hub.leave(c)

	if cfg.MaxMessageSize > 0 {
		c.conn.SetReadLimit(int64(cfg.MaxMessageSize))
	}
	window := pingInterval(cfg) + pongTimeout(cfg)
	extend := func(string) error { return c.conn.SetReadDeadline(time.Now().Add(window)) }
	_ = extend("")
	c.conn.SetPongHandler(extend)

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("websocket read failed", "subject", c.subject, "error", err)
			}
			return
		}
		_ = extend("")
		c.handleFrame(data)
	}
}

func (c *wsSession) writeLoop(cfg config.WebSocketConfig) {
	ping := time.NewTicker(pingInterval(cfg))
	defer ping.Stop()
	defer c.conn.Close()

	wait := pongTimeout(cfg)
	write := func(kind int, data []byte) error {
		_ = c.conn.SetWriteDeadline(time.Now().Add(wait))
		return c.conn.WriteMessage(kind, data)
	}

	for {
		select {
		case <-c.done:
			_ = write(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
			return
		case frame := <-c.out:
			if write(websocket.TextMessage, frame) != nil {
				return
			}
		case <-ping.C:
			if write(websocket.PingMessage, nil) != nil {
				return
			}
		}
	}
}

func (c *wsSession) handleFrame(data []byte) {
	var msg WSMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		c.replyError("", "invalid JSON message")
		return
	}

	switch msg.Type {
	case WSTypeSubscribe, WSTypeUnsubscribe:
		c.updateChannels(msg)
	case WSTypePing:
		c.reply(msg.ID, WSTypePong, nil)
	default:
		c.replyError(msg.ID, "unknown message type: "+msg.Type)
	}
}

// updateChannels applies a subscribe or unsubscribe frame. The whole frame
// is rejected if any channel is unknown.
func (c *wsSession) updateChannels(msg WSMessage) {
	raw, err := json.Marshal(msg.Payload)
	if err != nil {
		c.replyError(msg.ID, "invalid payload")
		return
	}
	var req WSSubscribePayload
	if json.Unmarshal(raw, &req) != nil || len(req.Channels) == 0 {
		c.replyError(msg.ID, "payload must list channels")
		return
	}
	for _, ch := range req.Channels {
		if !isKnownChannel(ch) {
			c.replyError(msg.ID, "unknown channel: "+ch)
			return
		}
	}

	add := msg.Type == WSTypeSubscribe
	c.mu.Lock()
	for _, ch := range req.Channels {
		if add {
			c.channels[ch] = struct{}{}
		} else {
			delete(c.channels, ch)
		}
	}
	c.mu.Unlock()

	key := "unsubscribed"
	if add {
		key = "subscribed"
	}
	c.reply(msg.ID, WSTypeResponse, map[string]any{key: req.Channels})
}

func (c *wsSession) reply(id, msgType string, payload any) {
	frame, err := json.Marshal(WSMessage{
		Type:      msgType,
		ID:        id,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Payload:   payload,
	})
	if err == nil {
		c.enqueue(frame)
	}
}

func (c *wsSession) replyError(id, message string) {
	c.reply(id, WSTypeError, map[string]string{"message": message})
}

func pingInterval(cfg config.WebSocketConfig) time.Duration {
	if cfg.PingInterval > 0 {
		return time.Duration(cfg.PingInterval) * time.Second
	}
	return fallbackPingInterval
}

func pongTimeout(cfg config.WebSocketConfig) time.Duration {
	if cfg.PongTimeout > 0 {
		return time.Duration(cfg.PongTimeout) * time.Second
	}
	return fallbackPongTimeout
}
