package realtime

import (
	"log/slog"
	"sort"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Hub keeps the in-memory presence map. A user is online while at least
// the connection that joined last for that user stays open.
type Hub struct {
	log *slog.Logger

	mu      sync.RWMutex
	clients map[*Client]struct{}
	online  map[string]*Client

	onlineGauge prometheus.Gauge
	connGauge   prometheus.Gauge
}

type HubOption func(*Hub)

func WithGauges(online, conns prometheus.Gauge) HubOption {
	return func(h *Hub) {
		h.onlineGauge = online
		h.connGauge = conns
	}
}

func NewHub(log *slog.Logger, opts ...HubOption) *Hub {
	h := &Hub{
		log:     log,
		clients: make(map[*Client]struct{}),
		online:  make(map[string]*Client),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()

	if h.connGauge != nil {
		h.connGauge.Set(float64(n))
	}
}

// Join binds userID to c. The latest connection for a user wins; a client
// that re-joins as another user releases its previous binding.
func (h *Hub) Join(c *Client, userID string) {
	h.mu.Lock()
	if prev := c.UserID(); prev != "" && prev != userID && h.online[prev] == c {
		delete(h.online, prev)
	}
	c.setUserID(userID)
	h.online[userID] = c
	h.broadcastOnlineLocked()
	h.mu.Unlock()

	h.log.Info("realtime_join", "user_id", userID, "session_id", c.SessionID)
}

// Unregister drops c and releases its user only if c is still the
// connection bound to that user.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	n := len(h.clients)
	uid := c.UserID()
	if uid != "" && h.online[uid] == c {
		delete(h.online, uid)
	}
	h.broadcastOnlineLocked()
	h.mu.Unlock()

	if h.connGauge != nil {
		h.connGauge.Set(float64(n))
	}
}

func (h *Hub) OnlineUsers() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.onlineLocked()
}

func (h *Hub) onlineLocked() []string {
	out := make([]string, 0, len(h.online))
	for id := range h.online {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// SendTo delivers an event to the connection bound to userID. It reports
// false when the user is offline or the queue is full.
func (h *Hub) SendTo(userID, event string, data any) bool {
	h.mu.RLock()
	c, ok := h.online[userID]
	h.mu.RUnlock()
	if !ok {
		return false
	}
	msg, err := encodeFrame(event, data)
	if err != nil {
		h.log.Error("realtime_encode_failed", "event", event, "error", err)
		return false
	}
	return c.trySend(msg)
}

// broadcastOnlineLocked must be called with h.mu held so that every
// connection sees presence snapshots in order. Sends never block.
func (h *Hub) broadcastOnlineLocked() {
	ids := h.onlineLocked()
	if h.onlineGauge != nil {
		h.onlineGauge.Set(float64(len(ids)))
	}

	msg, err := encodeFrame(EventOnlineUsers, ids)
	if err != nil {
		h.log.Error("realtime_encode_failed", "event", EventOnlineUsers, "error", err)
		return
	}
	for c := range h.clients {
		if !c.trySend(msg) {
			h.log.Warn("realtime_drop", "session_id", c.SessionID, "event", EventOnlineUsers)
		}
	}
}
