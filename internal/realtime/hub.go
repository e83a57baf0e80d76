package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"collabtodo/internal/metrics"
)

// Hub tracks websocket clients and the task topics they joined.
type Hub struct {
	mu       sync.RWMutex
	clients  map[*Client]struct{}
	topics   map[string]map[*Client]struct{}
	gates    map[string]*joinGate
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

var _ Publisher = (*Hub)(nil)

// NewHub creates a Hub. When allowedOrigins is empty any origin may connect.
func NewHub(logger *slog.Logger, allowedOrigins ...string) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Hub{
		clients: make(map[*Client]struct{}),
		topics:  make(map[string]map[*Client]struct{}),
		gates:   make(map[string]*joinGate),
		logger:  logger,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(allowedOrigins),
	}
	return h
}

func originChecker(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		set[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}

// Publish encodes the event and delivers it to local subscribers of topic.
func (h *Hub) Publish(_ context.Context, topic, event string, payload any) error {
	data, err := Encode(topic, event, payload)
	if err != nil {
		metrics.EventPublishFailures.WithLabelValues(event).Inc()
		return err
	}
	h.Deliver(topic, data)
	metrics.EventsPublished.WithLabelValues(event).Inc()
	return nil
}

// Deliver queues an encoded frame for every subscriber of topic and returns
// how many subscribers accepted it. Subscribers with a full queue miss it.
func (h *Hub) Deliver(topic string, data []byte) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered := 0
	for c := range h.topics[topic] {
		if c.enqueue(data) {
			delivered++
			continue
		}
		metrics.EventsDropped.Inc()
		h.logger.Warn("subscriber queue full, dropping event",
			slog.String("client_id", c.id),
			slog.String("task_id", topic))
	}
	return delivered
}

// Revoke evicts every subscriber of topic whose user is not in keep.
func (h *Hub) Revoke(_ context.Context, topic string, keep ...string) error {
	h.Evict(topic, keepUsers(keep))
	return nil
}

// Evict unsubscribes every client of topic for which keep returns false and
// sends it a revoked frame. A nil keep evicts everyone. Joins authorized
// before the eviction but not yet applied are refused.
func (h *Hub) Evict(topic string, keep func(userID string) bool) int {
	frame, err := json.Marshal(Message{Type: MsgRevoked, TaskID: topic})
	if err != nil {
		return 0
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if g, ok := h.gates[topic]; ok {
		g.epoch++
	}

	evicted := 0
	for c := range h.topics[topic] {
		if keep != nil && keep(c.userID) {
			continue
		}
		h.leaveLocked(c, topic)
		c.enqueue(frame)
		evicted++
	}
	if evicted > 0 {
		h.logger.Info("realtime subscribers evicted",
			slog.String("task_id", topic),
			slog.Int("evicted", evicted))
	}
	return evicted
}

func keepUsers(ids []string) func(string) bool {
	if len(ids) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return func(userID string) bool {
		_, ok := set[userID]
		return ok
	}
}

// Subscribers returns the number of clients joined to topic.
func (h *Hub) Subscribers(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.topics[topic])
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for c := range h.clients {
		h.dropLocked(c)
	}
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.clients[c] = struct{}{}
	metrics.RealtimeConnections.Inc()
	h.logger.Debug("realtime client registered", slog.String("client_id", c.id), slog.String("user_id", c.userID))
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[c]; ok {
		h.dropLocked(c)
		h.logger.Debug("realtime client unregistered", slog.String("client_id", c.id))
	}
}

// dropLocked removes c from every topic and closes its queue. h.mu must be
// held for writing.
func (h *Hub) dropLocked(c *Client) {
	for topic := range c.topics {
		h.leaveLocked(c, topic)
	}
	delete(h.clients, c)
	close(c.send)
	metrics.RealtimeConnections.Dec()
}

// joinGate counts joins of a topic that are waiting on authorization.
// Evict bumps epoch so those joins are refused.
type joinGate struct {
	pending int
	epoch   uint64
}

// beginJoin registers a pending join of topic and returns the epoch the
// authorization result belongs to.
func (h *Hub) beginJoin(topic string) uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()

	g, ok := h.gates[topic]
	if !ok {
		g = &joinGate{}
		h.gates[topic] = g
	}
	g.pending++
	return g.epoch
}

// finishJoin completes a join started with beginJoin. The client is
// subscribed only when admitted and no eviction happened in between.
func (h *Hub) finishJoin(c *Client, topic string, epoch uint64, admitted bool) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	current := epoch
	if g, ok := h.gates[topic]; ok {
		current = g.epoch
		g.pending--
		if g.pending == 0 {
			delete(h.gates, topic)
		}
	}
	if !admitted || current != epoch {
		return false
	}
	h.joinLocked(c, topic)
	return true
}

func (h *Hub) joinLocked(c *Client, topic string) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	if _, ok := c.topics[topic]; ok {
		return
	}
	if h.topics[topic] == nil {
		h.topics[topic] = make(map[*Client]struct{})
	}
	h.topics[topic][c] = struct{}{}
	c.topics[topic] = struct{}{}
	metrics.TopicSubscriptions.Inc()
}

func (h *Hub) leave(c *Client, topic string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(c, topic)
}

func (h *Hub) leaveLocked(c *Client, topic string) {
	if _, ok := c.topics[topic]; !ok {
		return
	}
	delete(c.topics, topic)
	delete(h.topics[topic], c)
	if len(h.topics[topic]) == 0 {
		delete(h.topics, topic)
	}
	metrics.TopicSubscriptions.Dec()
}

// reply queues a frame for a single client if it is still connected.
func (h *Hub) reply(c *Client, data []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if _, ok := h.clients[c]; ok {
		c.enqueue(data)
	}
}
