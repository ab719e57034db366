package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"gql-dashboard/internal/logging"
)

// RedisOptions configures the Redis connection used for event forwarding
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
}

// ConnectRedis opens a client and verifies the server answers PING
func ConnectRedis(ctx context.Context, opts RedisOptions) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", opts.Addr, err)
	}
	return client, nil
}

// RedisPublisher forwards events to a Redis pub/sub channel as JSON
// envelopes. Publishing is best effort: failures are logged, never returned.
type RedisPublisher struct {
	client  *redis.Client
	channel string
	timeout time.Duration
	logger  logging.Logger
}

// NewRedisPublisher creates a publisher for channel
func NewRedisPublisher(client *redis.Client, channel string, logger logging.Logger) *RedisPublisher {
	if logger == nil {
		logger = logging.NewNoOpLogger()
	}
	return &RedisPublisher{
		client:  client,
		channel: channel,
		timeout: 2 * time.Second,
		logger:  logger.WithComponent("redis-publisher"),
	}
}

// Handle implements Listener
func (p *RedisPublisher) Handle(e Event) {
	data, err := json.Marshal(NewEnvelope(e))
	if err != nil {
		p.logger.Error("Failed to encode event", "kind", string(e.Kind()), "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	if err := p.client.Publish(ctx, p.channel, data).Err(); err != nil {
		p.logger.Warn("Failed to publish event",
			"kind", string(e.Kind()),
			"channel", p.channel,
			"error", err)
	}
}
