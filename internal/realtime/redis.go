package realtime

import (
	"context"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// NewRedisClient connects and pings so a bad REDIS_URL fails at startup, not
// on the first publish.
func NewRedisClient(url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis: parse url: %w", err)
	}

	client := redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis: ping: %w", err)
	}

	return client, nil
}

// RedisPublisher broadcasts events over Redis pub/sub so every node's bridge
// can deliver to its local websocket clients.
type RedisPublisher struct {
	client *redis.Client
}

func NewRedisPublisher(client *redis.Client) *RedisPublisher {
	return &RedisPublisher{client: client}
}

var _ Publisher = (*RedisPublisher)(nil)

func (p *RedisPublisher) Publish(ctx context.Context, event Event) error {
	payload, err := encodeEvent(event)
	if err != nil {
		return fmt.Errorf("realtime: encode event: %w", err)
	}
	if err := p.client.Publish(ctx, ChannelFor(event.ConversationID), payload).Err(); err != nil {
		return fmt.Errorf("realtime: publish: %w", err)
	}
	return nil
}

// Bridge subscribes to every conversation channel and forwards decoded events
// into the local sink (the websocket hub).
type Bridge struct {
	client *redis.Client
	sink   Sink
	logger *logrus.Logger
}

func NewBridge(client *redis.Client, sink Sink, logger *logrus.Logger) *Bridge {
	return &Bridge{client: client, sink: sink, logger: logger}
}

// Run blocks until ctx is canceled.
func (b *Bridge) Run(ctx context.Context) error {
	pubsub := b.client.PSubscribe(ctx, ChannelPattern())
	defer pubsub.Close()

	messages := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			event, err := decodeEvent([]byte(msg.Payload))
			if err != nil {
				b.logger.WithError(err).WithField("channel", msg.Channel).
					Warn("realtime: dropping undecodable event")
				continue
			}
			b.sink.Deliver(event)
		}
	}
}
