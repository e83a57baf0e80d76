package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"

	"collabtodo/internal/metrics"
)

// DefaultChannelPrefix namespaces task topics on the Redis server.
const DefaultChannelPrefix = "collabtodo:task:"

// RedisBus publishes events through Redis so every instance sharing the
// server delivers them to its own websocket clients.
type RedisBus struct {
	client  redis.UniversalClient
	hub     *Hub
	prefix  string
	breaker *gobreaker.CircuitBreaker
	logger  *slog.Logger

	readyOnce sync.Once
	ready     chan struct{}
}

var _ Publisher = (*RedisBus)(nil)

// NewRedisBus wires a Redis client to the local hub.
func NewRedisBus(client redis.UniversalClient, hub *Hub, prefix string, logger *slog.Logger) *RedisBus {
	if prefix == "" {
		prefix = DefaultChannelPrefix
	}
	if logger == nil {
		logger = slog.Default()
	}
	b := &RedisBus{
		client: client,
		hub:    hub,
		prefix: prefix,
		logger: logger,
		ready:  make(chan struct{}),
	}
	b.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "redis-publish",
		MaxRequests: 1,
		Timeout:     10 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				slog.String("breaker", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()))
		},
	})
	return b
}

// Publish sends the event to the topic's Redis channel. While Redis keeps
// failing the breaker opens and publishes fail fast.
func (b *RedisBus) Publish(ctx context.Context, topic, event string, payload any) error {
	data, err := Encode(topic, event, payload)
	if err != nil {
		metrics.EventPublishFailures.WithLabelValues(event).Inc()
		return err
	}

	_, err = b.breaker.Execute(func() (interface{}, error) {
		return nil, b.client.Publish(ctx, b.prefix+topic, data).Err()
	})
	if err != nil {
		metrics.EventPublishFailures.WithLabelValues(event).Inc()
		return fmt.Errorf("publish %s: %w", event, err)
	}
	metrics.EventsPublished.WithLabelValues(event).Inc()
	return nil
}

// revokeFrame is the bus-only control frame asking every instance to evict
// subscribers of a topic. It is never forwarded to clients.
const revokeFrame = "revoke"

type revokePayload struct {
	Keep []string `json:"keep"`
}

// Revoke asks every instance to evict subscribers of topic not in keep. When
// the broadcast fails the local hub still evicts.
func (b *RedisBus) Revoke(ctx context.Context, topic string, keep ...string) error {
	data, err := Encode(topic, revokeFrame, revokePayload{Keep: keep})
	if err != nil {
		return err
	}

	_, err = b.breaker.Execute(func() (interface{}, error) {
		return nil, b.client.Publish(ctx, b.prefix+topic, data).Err()
	})
	if err != nil {
		b.hub.Evict(topic, keepUsers(keep))
		return fmt.Errorf("publish revoke: %w", err)
	}
	return nil
}

// dispatch routes a frame read from Redis to the local hub.
func (b *RedisBus) dispatch(topic string, data []byte) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err == nil && msg.Type == revokeFrame {
		var p revokePayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			b.logger.Warn("malformed revoke frame", slog.String("task_id", topic), slog.String("error", err.Error()))
			return
		}
		b.hub.Evict(topic, keepUsers(p.Keep))
		return
	}
	b.hub.Deliver(topic, data)
}

// Ready is closed once the subscription is active.
func (b *RedisBus) Ready() <-chan struct{} {
	return b.ready
}

// Run subscribes to every task channel and hands frames to the hub until
// ctx is done.
func (b *RedisBus) Run(ctx context.Context) error {
	pubsub := b.client.PSubscribe(ctx, b.prefix+"*")
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s*: %w", b.prefix, err)
	}
	b.readyOnce.Do(func() { close(b.ready) })
	b.logger.Info("realtime bus subscribed", slog.String("pattern", b.prefix+"*"))

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			topic := strings.TrimPrefix(msg.Channel, b.prefix)
			b.dispatch(topic, []byte(msg.Payload))
		}
	}
}
