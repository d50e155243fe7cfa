package events

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/lukasbauer/apriori/internal/followup"
	"github.com/lukasbauer/apriori/internal/metrics"
)

const (
	clientBuffer = 32
	writeWait    = 10 * time.Second
	pingPeriod   = 30 * time.Second
)

type client struct {
	conn *websocket.Conn
	send chan followup.LifecycleEvent
}

// Hub broadcasts lifecycle events to WebSocket clients. A client that falls
// behind by more than its buffer is disconnected.
type Hub struct {
	clients    map[*client]struct{}
	register   chan *client
	unregister chan *client
	broadcast  chan followup.LifecycleEvent
	done       chan struct{}
	count      atomic.Int64
	upgrader   websocket.Upgrader
	metrics    *metrics.Metrics
	logger     zerolog.Logger
}

// NewHub creates a hub. Run must be started before clients connect.
func NewHub(m *metrics.Metrics, logger zerolog.Logger) *Hub {
	if m == nil {
		m = metrics.NewNop()
	}
	return &Hub{
		clients:    make(map[*client]struct{}),
		register:   make(chan *client),
		unregister: make(chan *client),
		broadcast:  make(chan followup.LifecycleEvent, 100),
		done:       make(chan struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		metrics: m,
		logger:  logger,
	}
}

// Run serves the hub until ctx is done, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case c := <-h.register:
			h.clients[c] = struct{}{}
			h.count.Store(int64(len(h.clients)))
			h.logger.Info().Int("clients", len(h.clients)).Msg("Hub: client connected")

		case c := <-h.unregister:
			h.drop(c)

		case ev := <-h.broadcast:
			for c := range h.clients {
				select {
				case c.send <- ev:
				default:
					h.logger.Warn().Msg("Hub: client too slow, disconnecting")
					h.drop(c)
				}
			}

		case <-ctx.Done():
			for c := range h.clients {
				h.drop(c)
			}
			return
		}
	}
}

func (h *Hub) drop(c *client) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)
	h.count.Store(int64(len(h.clients)))
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	return int(h.count.Load())
}

// Publish implements followup.EventSink. It never blocks; events are
// dropped when the hub is saturated or stopped.
func (h *Hub) Publish(_ context.Context, ev followup.LifecycleEvent) {
	select {
	case h.broadcast <- ev:
	case <-h.done:
	default:
		h.metrics.EventPublishErrors.WithLabelValues("websocket").Inc()
	}
}

// ServeHTTP upgrades the request and streams events to the connection.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("Hub: websocket upgrade failed")
		return
	}

	c := &client{conn: conn, send: make(chan followup.LifecycleEvent, clientBuffer)}
	select {
	case h.register <- c:
	case <-h.done:
		conn.Close()
		return
	}

	go h.writePump(c)
	go h.readPump(c)
}

// readPump discards client messages and unregisters on disconnect.
func (h *Hub) readPump(c *client) {
	defer func() {
		select {
		case h.unregister <- c:
		case <-h.done:
		}
	}()
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case ev, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(ev); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
