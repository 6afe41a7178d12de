package server

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/magefree/tabletop-server/internal/config"
	"github.com/magefree/tabletop-server/internal/protocol"
	"github.com/magefree/tabletop-server/internal/session"
	"go.uber.org/zap"
)

// SessionHandler receives the lifecycle and inbound events of every connection.
type SessionHandler interface {
	Connect(connectionID string) *session.Session
	Disconnect(connectionID string)
	Dispatch(connectionID string, env protocol.Envelope) error
}

// Client is one websocket connection.
type Client struct {
	id   string
	conn *websocket.Conn
	send chan []byte

	done      chan struct{}
	closeOnce sync.Once
}

func (c *Client) close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// Hub owns every websocket connection and implements room.Notifier by
// queueing events on the connection's send buffer.
type Hub struct {
	cfg      config.WebSocketConfig
	logger   *zap.Logger
	upgrader websocket.Upgrader
	handler  SessionHandler

	clients map[string]*Client
	mu      sync.RWMutex
}

// NewHub creates a hub. Attach must be called before connections are served.
func NewHub(cfg config.WebSocketConfig, logger *zap.Logger) *Hub {
	h := &Hub{
		cfg:     cfg,
		logger:  logger,
		clients: make(map[string]*Client),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

// Attach sets the handler for inbound events. The session manager needs the
// hub as its notifier, so the two are wired in this order.
func (h *Hub) Attach(handler SessionHandler) {
	h.handler = handler
}

// Notify queues event for connectionID. A connection whose buffer is full
// is closed rather than allowed to stall the sender.
func (h *Hub) Notify(connectionID string, event protocol.Event) {
	h.mu.RLock()
	client, ok := h.clients[connectionID]
	h.mu.RUnlock()
	if !ok {
		return
	}

	message, err := json.Marshal(event)
	if err != nil {
		h.logger.Error("failed to encode event",
			zap.String("connection_id", connectionID),
			zap.String("event", event.Type),
			zap.Error(err),
		)
		return
	}

	select {
	case client.send <- message:
	case <-client.done:
	default:
		h.logger.Warn("dropping slow connection",
			zap.String("connection_id", connectionID),
			zap.String("event", event.Type),
		)
		client.close()
	}
}

// ConnectionCount returns the number of open connections.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// CloseAll closes every connection. Their read loops then disconnect the
// sessions as usual.
func (h *Hub) CloseAll() {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, client := range h.clients {
		client.close()
	}
}

// ServeWS upgrades the request and runs the connection until it closes.
func (h *Hub) ServeWS(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}

	client := &Client{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, h.cfg.SendBuffer),
		done: make(chan struct{}),
	}

	h.mu.Lock()
	h.clients[client.id] = client
	h.mu.Unlock()

	h.logger.Info("client connected",
		zap.String("connection_id", client.id),
		zap.String("remote_addr", c.ClientIP()),
	)

	h.handler.Connect(client.id)
	h.Notify(client.id, protocol.NewEvent(protocol.EventConnected, protocol.ConnectedPayload{ConnectionID: client.id}))

	go h.writePump(client)
	h.readPump(client)
}

func (h *Hub) unregister(client *Client) {
	h.mu.Lock()
	delete(h.clients, client.id)
	h.mu.Unlock()

	client.close()
	h.handler.Disconnect(client.id)

	h.logger.Info("client disconnected", zap.String("connection_id", client.id))
}

func (h *Hub) readPump(client *Client) {
	defer func() {
		h.unregister(client)
		client.conn.Close()
	}()

	client.conn.SetReadLimit(h.cfg.ReadLimit)
	_ = client.conn.SetReadDeadline(time.Now().Add(h.cfg.PongWait))
	client.conn.SetPongHandler(func(string) error {
		return client.conn.SetReadDeadline(time.Now().Add(h.cfg.PongWait))
	})

	for {
		_, message, err := client.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("websocket read failed",
					zap.String("connection_id", client.id),
					zap.Error(err),
				)
			}
			return
		}

		var env protocol.Envelope
		if err := json.Unmarshal(message, &env); err != nil || env.Type == "" {
			h.Notify(client.id, protocol.NewEvent(protocol.EventActionError, protocol.ActionErrorPayload{
				Error: "malformed message",
			}))
			continue
		}

		_ = h.handler.Dispatch(client.id, env)
	}
}

func (h *Hub) writePump(client *Client) {
	ticker := time.NewTicker(h.cfg.PongWait * 9 / 10)
	defer func() {
		ticker.Stop()
		client.conn.Close()
	}()

	for {
		select {
		case message := <-client.send:
			_ = client.conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteWait))
			if err := client.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				client.close()
				return
			}

		case <-ticker.C:
			_ = client.conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteWait))
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				client.close()
				return
			}

		case <-client.done:
			_ = client.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(h.cfg.WriteWait))
			return
		}
	}
}

func (h *Hub) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range h.cfg.AllowedOrigins {
		if allowed == "*" {
			return true
		}
	}

	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	for _, allowed := range h.cfg.AllowedOrigins {
		if strings.EqualFold(strings.TrimRight(allowed, "/"), u.Scheme+"://"+u.Host) {
			return true
		}
	}
	return false
}
