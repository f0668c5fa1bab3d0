package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"voxpro/logger"

	"github.com/redis/go-redis/v9"
)

const channelPrefix = "voxpro:changes:"

// ChannelFor is the Redis pub/sub channel carrying a table's changes.
func ChannelFor(table string) string {
	return channelPrefix + table
}

// RedisNotifier publishes change events over Redis pub/sub so every server
// instance sees every write.
type RedisNotifier struct {
	client *redis.Client
}

func NewRedisNotifier(client *redis.Client) *RedisNotifier {
	return &RedisNotifier{client: client}
}

func (n *RedisNotifier) Publish(ctx context.Context, ev ChangeEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal change event: %w", err)
	}
	if err := n.client.Publish(ctx, ChannelFor(ev.Table), data).Err(); err != nil {
		return fmt.Errorf("publish %s change: %w", ev.Table, err)
	}
	return nil
}

func (n *RedisNotifier) Subscribe(ctx context.Context, table string, h Handler) (Subscription, error) {
	pubsub := n.client.Subscribe(ctx, ChannelFor(table))
	// Receive blocks until the server confirms the subscription.
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", table, err)
	}

	sub := &redisSubscription{pubsub: pubsub, done: make(chan struct{})}
	go sub.run(table, h)
	return sub, nil
}

// Close is a no-op; the Redis client is owned by the caller.
func (n *RedisNotifier) Close() error { return nil }

type redisSubscription struct {
	pubsub *redis.PubSub
	done   chan struct{}
	once   sync.Once
}

func (s *redisSubscription) run(table string, h Handler) {
	defer close(s.done)
	for msg := range s.pubsub.Channel() {
		var ev ChangeEvent
		if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
			logger.Warn("invalid change event payload",
				logger.String("table", table),
				logger.ErrorField(err))
			continue
		}
		h(ev)
	}
}

func (s *redisSubscription) Close() error {
	var err error
	s.once.Do(func() {
		err = s.pubsub.Close()
		<-s.done
	})
	return err
}
