package main

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/calvinhon/ft-transcendence-sub004/internal/config"
	"github.com/calvinhon/ft-transcendence-sub004/internal/logging"
	"github.com/calvinhon/ft-transcendence-sub004/internal/protocol"
)

const (
	writeWait      = 10 * time.Second
	sendBufferSize = 64
)

var errClientGone = errors.New("client connection is gone")

// client is one WebSocket connection with its outbound queue. The write pump
// is the only goroutine touching the connection for writes.
type client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
	once sync.Once
}

func (c *client) close() {
	c.once.Do(func() {
		close(c.send)
	})
}

// Hub upgrades HTTP requests to WebSocket connections and shuttles frames
// between them and the protocol gateway. It implements protocol.Sender.
type Hub struct {
	upgrader     websocket.Upgrader
	gateway      *protocol.Gateway
	logger       *logging.Logger
	pingInterval time.Duration
	maxPayload   int64
	maxClients   int

	mu      sync.RWMutex
	clients map[string]*client
}

// NewHub builds the connection hub from service configuration.
func NewHub(cfg *config.Config, gateway *protocol.Gateway, logger *logging.Logger) *Hub {
	if logger == nil {
		logger = logging.L()
	}
	hub := &Hub{
		gateway:      gateway,
		logger:       logger,
		pingInterval: cfg.PingInterval,
		maxPayload:   cfg.MaxPayloadBytes,
		maxClients:   cfg.MaxClients,
		clients:      make(map[string]*client),
	}
	hub.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     originChecker(cfg.AllowedOrigins),
	}
	return hub
}

// originChecker allows every origin when none are configured, matching a
// development setup behind a local proxy.
func originChecker(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	allowedSet := make(map[string]struct{}, len(allowed))
	for _, origin := range allowed {
		allowedSet[origin] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := allowedSet[origin]
		return ok
	}
}

// ServeWS upgrades the request and starts the connection's pumps.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	if h.maxClients > 0 && h.Count() >= h.maxClients {
		http.Error(w, "too many connections", http.StatusServiceUnavailable)
		return
	}
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", logging.Error(err))
		return
	}

	connected := &client{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, sendBufferSize),
	}
	h.mu.Lock()
	h.clients[connected.id] = connected
	h.mu.Unlock()
	h.logger.Info("connection opened",
		logging.String("handle", connected.id),
		logging.String("remote", conn.RemoteAddr().String()))

	go h.writePump(connected)
	go h.readPump(connected)
}

// Send implements protocol.Sender. Slow consumers are disconnected rather
// than allowed to stall the simulation loops.
func (h *Hub) Send(handleID string, frame []byte) error {
	h.mu.RLock()
	connected, ok := h.clients[handleID]
	h.mu.RUnlock()
	if !ok {
		return errClientGone
	}
	select {
	case connected.send <- frame:
		return nil
	default:
		//1.- A full buffer means the client stopped reading; cut it loose.
		h.logger.Warn("dropping slow consumer", logging.String("handle", handleID))
		h.remove(connected)
		return errClientGone
	}
}

// Count returns the number of open connections.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Shutdown closes every connection.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	clients := make([]*client, 0, len(h.clients))
	for _, connected := range h.clients {
		clients = append(clients, connected)
	}
	h.mu.Unlock()
	for _, connected := range clients {
		h.remove(connected)
	}
}

func (h *Hub) readPump(connected *client) {
	defer h.remove(connected)

	connected.conn.SetReadLimit(h.maxPayload)
	deadline := h.pingInterval * 2
	connected.conn.SetReadDeadline(time.Now().Add(deadline))
	connected.conn.SetPongHandler(func(string) error {
		return connected.conn.SetReadDeadline(time.Now().Add(deadline))
	})

	for {
		messageType, payload, err := connected.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("connection read error",
					logging.String("handle", connected.id), logging.Error(err))
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}
		h.gateway.HandleMessage(connected.id, payload)
	}
}

func (h *Hub) writePump(connected *client) {
	ticker := time.NewTicker(h.pingInterval)
	defer func() {
		ticker.Stop()
		connected.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-connected.send:
			if !ok {
				connected.conn.WriteControl(websocket.CloseMessage, nil, time.Now().Add(writeWait))
				return
			}
			connected.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := connected.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			connected.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := connected.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// remove drops the client from the table exactly once and tells the gateway.
func (h *Hub) remove(connected *client) {
	h.mu.Lock()
	_, present := h.clients[connected.id]
	delete(h.clients, connected.id)
	h.mu.Unlock()
	if !present {
		return
	}
	connected.close()
	h.gateway.HandleClose(connected.id)
	h.logger.Info("connection closed", logging.String("handle", connected.id))
}
