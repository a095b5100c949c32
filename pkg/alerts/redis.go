package alerts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/viharnani/smart-home-monitoring/pkg/model"
)

// DefaultRedisChannel is the pub/sub channel prefix used when none is configured.
const DefaultRedisChannel = "energymon:alerts"

// RedisNotifier publishes alerts on a Redis pub/sub channel. Each alert is
// published on "<channel>:<userID>" so subscribers can follow one home.
type RedisNotifier struct {
	client  *redis.Client
	channel string
}

// NewRedisNotifier creates a Redis notifier.
func NewRedisNotifier(addr, password string, db int, channel string) (*RedisNotifier, error) {
	if addr == "" {
		return nil, errors.New("redis address is required")
	}
	if channel == "" {
		channel = DefaultRedisChannel
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:        addr,
		Password:    password,
		DB:          db,
		DialTimeout: 2 * time.Second,
		// The dispatcher's breaker owns retry policy.
		MaxRetries: -1,
	})
	return &RedisNotifier{client: rdb, channel: channel}, nil
}

func (r *RedisNotifier) Name() string { return "redis" }

// Channel returns the channel an alert for userID is published on.
func (r *RedisNotifier) Channel(userID string) string {
	return r.channel + ":" + userID
}

func (r *RedisNotifier) Send(ctx context.Context, alert model.Alert) error {
	body, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("marshal redis payload: %w", err)
	}
	if err := r.client.Publish(ctx, r.Channel(alert.UserID), body).Err(); err != nil {
		return fmt.Errorf("publish redis alert: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (r *RedisNotifier) Close() error {
	return r.client.Close()
}
