package report

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"

	"github.com/itohio/goppg/pkg/config"
)

// RedisSink appends payloads to a capped Redis stream.
type RedisSink struct {
	client *redis.Client
	stream string
	maxLen int64
}

var _ Sink = (*RedisSink)(nil)

// NewRedisSink connects to the Redis server of cfg and checks it responds.
func NewRedisSink(ctx context.Context, cfg config.RedisConfig) (*RedisSink, error) {
	client := redis.NewClient(&redis.Options{
		Addr: cfg.Addr,
		DB:   cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis %s: %w", cfg.Addr, err)
	}
	return &RedisSink{client: client, stream: cfg.Stream, maxLen: cfg.MaxLen}, nil
}

// Name returns "redis".
func (s *RedisSink) Name() string {
	return "redis"
}

// Publish adds one stream entry {kind, deviceId, data}.
func (s *RedisSink) Publish(ctx context.Context, kind Kind, deviceID string, payload []byte) error {
	args := &redis.XAddArgs{
		Stream: s.stream,
		Values: map[string]interface{}{
			"kind":     string(kind),
			"deviceId": deviceID,
			"data":     string(payload),
		},
	}
	if s.maxLen > 0 {
		args.MaxLen = s.maxLen
		args.Approx = true
	}
	if err := s.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("failed to add to stream %s: %w", s.stream, err)
	}
	return nil
}

// Close closes the client.
func (s *RedisSink) Close() error {
	return s.client.Close()
}
