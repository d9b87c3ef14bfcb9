package ws

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/coupgame/coup-server-go/internal/lobby"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 8 * 1024
)

// Config tunes the websocket endpoint.
type Config struct {
	ReadBufferSize  int
	WriteBufferSize int
	// SendBuffer is the number of outgoing messages queued per client before
	// further messages to it are dropped.
	SendBuffer int
	// AllowedOrigins lists the Origin headers accepted on upgrade. Empty allows all.
	AllowedOrigins []string
}

// DefaultConfig returns buffer sizes suitable for small JSON messages.
func DefaultConfig() Config {
	return Config{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		SendBuffer:      64,
	}
}

// Hub upgrades HTTP requests to websocket clients and tracks them until they
// disconnect.
type Hub struct {
	registry     *lobby.Registry
	logger       *zap.Logger
	cfg          Config
	upgrader     websocket.Upgrader
	allowOrigins map[string]bool

	clients    map[*Client]bool
	mu         sync.RWMutex
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
}

// NewHub creates a hub that seats players through registry.
func NewHub(registry *lobby.Registry, cfg Config, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = DefaultConfig().SendBuffer
	}
	h := &Hub{
		registry:     registry,
		logger:       logger,
		cfg:          cfg,
		allowOrigins: make(map[string]bool),
		clients:      make(map[*Client]bool),
		register:     make(chan *Client),
		unregister:   make(chan *Client),
		done:         make(chan struct{}),
	}
	for _, origin := range cfg.AllowedOrigins {
		if origin != "" {
			h.allowOrigins[origin] = true
		}
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  cfg.ReadBufferSize,
		WriteBufferSize: cfg.WriteBufferSize,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

func (h *Hub) checkOrigin(r *http.Request) bool {
	if len(h.allowOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	return origin == "" || h.allowOrigins[origin]
}

// Run tracks client registration until ctx is done, then closes every
// remaining connection.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			count := len(h.clients)
			h.mu.Unlock()
			h.logger.Debug("client registered", zap.String("remote", client.remote), zap.Int("clients", count))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				client.closeSend()
			}
			count := len(h.clients)
			h.mu.Unlock()
			h.logger.Debug("client unregistered", zap.String("remote", client.remote), zap.Int("clients", count))

		case <-ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				delete(h.clients, client)
				client.closeSend()
			}
			h.mu.Unlock()
			return
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeHTTP upgrades the request and starts the client pumps.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.String("remote", r.RemoteAddr), zap.Error(err))
		return
	}

	client := newClient(h, conn, r.RemoteAddr)
	select {
	case h.register <- client:
	case <-h.done:
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

func (h *Hub) release(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
		client.closeSend()
	}
}
