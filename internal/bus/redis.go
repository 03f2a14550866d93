package bus

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// redisPublisher is the part of *redis.Client the sink uses.
type redisPublisher interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
	Close() error
}

// RedisSink publishes events to Redis pub/sub channels named
// "<prefix>:general" and "<prefix>:<auction id>".
type RedisSink struct {
	client redisPublisher
	prefix string
}

// ConnectRedis opens a Redis client and verifies it with a ping.
func ConnectRedis(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("connect redis %s: %w", addr, err)
	}
	return rdb, nil
}

// NewRedisSink wraps a connected client.
func NewRedisSink(client *redis.Client, prefix string) *RedisSink {
	return &RedisSink{client: client, prefix: prefix}
}

// Channel returns the Redis channel for topic.
func (s *RedisSink) Channel(topic Topic) string {
	return s.prefix + ":" + string(topic)
}

// Name implements Sink.
func (s *RedisSink) Name() string { return "redis" }

// Send implements Sink.
func (s *RedisSink) Send(ctx context.Context, topic Topic, data []byte) error {
	if err := s.client.Publish(ctx, s.Channel(topic), data).Err(); err != nil {
		return fmt.Errorf("redis publish: %w", err)
	}
	return nil
}

// Close implements Sink.
func (s *RedisSink) Close() error {
	return s.client.Close()
}
