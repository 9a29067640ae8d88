// Package realtime pushes market events to websocket subscribers.
package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/wonny/predico/internal/auth"
	"github.com/wonny/predico/internal/contracts"
	"github.com/wonny/predico/pkg/logger"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// Subscribers only send control frames
	maxMessageSize = 512

	sendBuffer = 64
)

// Message is the frame pushed to subscribers
// ⭐ SSOT: 실시간 이벤트 구조
type Message struct {
	Type        string                 `json:"type"`
	Destination string                 `json:"destination"`
	Data        map[string]interface{} `json:"data,omitempty"`
	Timestamp   time.Time              `json:"timestamp"`
}

// frame is an encoded message with its audience
type frame struct {
	destination string
	data        []byte
}

// Hub tracks subscribers and fans events out to them. It implements
// contracts.Notifier so services can publish without knowing about sockets.
type Hub struct {
	upgrader   websocket.Upgrader
	register   chan *client
	unregister chan *client
	broadcast  chan frame
	done       chan struct{}
	log        *logger.Logger

	mu      sync.RWMutex
	clients map[*client]struct{}
}

var _ contracts.Notifier = (*Hub)(nil)

// NewHub creates a hub. Run must be started before clients connect.
func NewHub(log *logger.Logger) *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		register:   make(chan *client),
		unregister: make(chan *client),
		broadcast:  make(chan frame, 256),
		done:       make(chan struct{}),
		log:        log.Component("realtime"),
		clients:    make(map[*client]struct{}),
	}
}

// Run serves registrations and broadcasts until ctx is cancelled
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				close(c.send)
				delete(h.clients, c)
			}
			h.mu.Unlock()
			return

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = struct{}{}
			h.mu.Unlock()
			h.log.WithField("clients", h.ClientCount()).Debug("subscriber connected")

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			h.mu.Unlock()

		case f := <-h.broadcast:
			h.mu.Lock()
			for c := range h.clients {
				if !c.accepts(f.destination) {
					continue
				}
				select {
				case c.send <- f.data:
				default:
					// slow subscriber
					delete(h.clients, c)
					close(c.send)
				}
			}
			h.mu.Unlock()
		}
	}
}

// Notify implements contracts.Notifier. Events are dropped when the
// broadcast buffer is full.
func (h *Hub) Notify(_ context.Context, templateKey, destination string, args map[string]interface{}) {
	data, err := json.Marshal(Message{
		Type:        templateKey,
		Destination: destination,
		Data:        args,
		Timestamp:   time.Now().UTC(),
	})
	if err != nil {
		h.log.WithError(err).Warn("failed to encode realtime event")
		return
	}

	select {
	case h.broadcast <- frame{destination: destination, data: data}:
	default:
		h.log.WithField("type", templateKey).Warn("broadcast buffer full, dropping event")
	}
}

// ClientCount returns the number of connected subscribers
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeHTTP upgrades the request and subscribes the connection. The caller
// stored by the auth middleware decides which events it receives; anonymous
// subscribers only see market-wide events.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	caller, authenticated := auth.CallerFromContext(r.Context())

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).Warn("websocket upgrade failed")
		return
	}

	c := &client{
		hub:           h,
		conn:          conn,
		send:          make(chan []byte, sendBuffer),
		caller:        caller,
		authenticated: authenticated,
	}
	select {
	case h.register <- c:
	case <-h.done:
		conn.Close()
		return
	case <-r.Context().Done():
		conn.Close()
		return
	}

	go c.writePump()
	go c.readPump()
}
