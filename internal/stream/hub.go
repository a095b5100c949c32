package stream

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/viharnani/smart-home-monitoring/pkg/metrics"
	"github.com/viharnani/smart-home-monitoring/pkg/model"
)

// Ingester accepts readings pushed over the stream.
type Ingester interface {
	Ingest(ctx context.Context, reading *model.Reading) ([]model.Alert, error)
}

// Hub tracks live connections and fans readings and alerts out to the
// connections subscribed to the owning user.
type Hub struct {
	ingester Ingester
	upgrader websocket.Upgrader
	logger   *slog.Logger

	mu      sync.RWMutex
	clients map[*Client]string // client -> subscribed user, "" before init
}

// NewHub creates a hub. ingester may be nil to make the stream read-only.
func NewHub(ingester Ingester, logger *slog.Logger) *Hub {
	return &Hub{
		ingester: ingester,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Browser dashboards are served from other origins.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		logger:  logger,
		clients: make(map[*Client]string),
	}
}

// SetIngester wires the ingester after construction.
func (h *Hub) SetIngester(ingester Ingester) {
	h.ingester = ingester
}

// ServeWS upgrades the request and serves the connection until it closes.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	client := newClient(h, conn)
	h.register(client)

	go client.writePump()
	client.readPump(context.WithoutCancel(r.Context()))
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	h.clients[c] = ""
	n := len(h.clients)
	h.mu.Unlock()

	metrics.StreamClients.Set(float64(n))
	h.logger.Debug("stream client registered", "remote", c.conn.RemoteAddr().String())
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	n := len(h.clients)
	h.mu.Unlock()

	metrics.StreamClients.Set(float64(n))
}

func (h *Hub) subscribe(c *Client, userID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; !ok {
		return false
	}
	h.clients[c] = userID
	return true
}

func (h *Hub) userOf(c *Client) string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.clients[c]
}

// publish queues msg for every connection subscribed to userID. Slow
// connections whose buffer is full are dropped.
func (h *Hub) publish(userID string, msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("marshal stream message", "type", msg.Type, "error", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c, uid := range h.clients {
		if uid != userID {
			continue
		}
		select {
		case c.send <- data:
		default:
			h.logger.Warn("stream client too slow, dropping", "remote", c.conn.RemoteAddr().String())
			delete(h.clients, c)
			close(c.send)
		}
	}
	metrics.StreamClients.Set(float64(len(h.clients)))
}

// reply queues msg for a single connection.
func (h *Hub) reply(c *Client, msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("marshal stream message", "type", msg.Type, "error", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; !ok {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}

// PublishReading pushes a stored reading to the user's connections.
func (h *Hub) PublishReading(reading model.Reading) {
	h.publish(reading.UserID, Message{Type: EventReading, Data: reading})
}

// Name identifies the hub as an alert notifier.
func (h *Hub) Name() string { return "stream" }

// Send pushes an alert to the user's connections. Having no connected
// clients is not a failure.
func (h *Hub) Send(_ context.Context, alert model.Alert) error {
	h.publish(alert.UserID, Message{Type: EventAlert, Data: alert})
	return nil
}

// Clients returns the number of open connections.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
	metrics.StreamClients.Set(0)
}
