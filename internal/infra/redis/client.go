package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vietddude/txmanager/internal/core/domain"
)

// Client wraps Redis operations for nonce allocation and the lifecycle event stream.
type Client struct {
	rdb *redis.Client
}

// Config holds Redis connection configuration.
type Config struct {
	URL      string `yaml:"url"`
	Password string `yaml:"password"`
}

// NewClient creates a new Redis client.
func NewClient(cfg Config) (*Client, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}

	rdb := redis.NewClient(opts)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &Client{rdb: rdb}, nil
}

// Close closes the Redis connection.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Ping checks the connection.
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Key helpers
func NonceKey(chainID uint64, addr string) string {
	return fmt.Sprintf("txmanager:nonce:%d:%s", chainID, strings.ToLower(addr))
}

func StreamKey(name string) string {
	if name == "" {
		name = "events"
	}
	return fmt.Sprintf("txmanager:stream:%s", name)
}

// SeedCounter sets key to value only if it does not exist yet.
func (c *Client) SeedCounter(ctx context.Context, key string, value int64) (bool, error) {
	ok, err := c.rdb.SetNX(ctx, key, value, 0).Result()
	if err != nil {
		return false, fmt.Errorf("setnx failed: %w", err)
	}
	return ok, nil
}

// Incr atomically increments key and returns the new value.
func (c *Client) Incr(ctx context.Context, key string) (int64, error) {
	n, err := c.rdb.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("incr failed: %w", err)
	}
	return n, nil
}

// Reset removes key.
func (c *Client) Reset(ctx context.Context, key string) error {
	if err := c.rdb.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("del failed: %w", err)
	}
	return nil
}

// PublishEvent appends a lifecycle event to a capped stream.
func (c *Client) PublishEvent(ctx context.Context, stream string, maxLen int64, ev domain.Event) (string, error) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return "", fmt.Errorf("marshal event: %w", err)
	}
	id, err := c.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		MaxLen: maxLen,
		Approx: true,
		Values: map[string]any{
			"state":   string(ev.State),
			"tx_hash": ev.TxHash,
			"event":   payload,
		},
	}).Result()
	if err != nil {
		return "", fmt.Errorf("xadd failed: %w", err)
	}
	return id, nil
}

// RecentEvents returns up to count events from the stream, newest first.
func (c *Client) RecentEvents(ctx context.Context, stream string, count int64) ([]domain.Event, error) {
	msgs, err := c.rdb.XRevRangeN(ctx, stream, "+", "-", count).Result()
	if err != nil {
		return nil, fmt.Errorf("xrevrange failed: %w", err)
	}
	events := make([]domain.Event, 0, len(msgs))
	for _, msg := range msgs {
		ev, err := DecodeEvent(msg.Values)
		if err != nil {
			return nil, fmt.Errorf("message %s: %w", msg.ID, err)
		}
		events = append(events, ev)
	}
	return events, nil
}

// DecodeEvent parses the values of a stream message written by PublishEvent.
func DecodeEvent(values map[string]any) (domain.Event, error) {
	var ev domain.Event
	raw, ok := values["event"].(string)
	if !ok {
		return ev, fmt.Errorf("missing event payload")
	}
	if err := json.Unmarshal([]byte(raw), &ev); err != nil {
		return ev, fmt.Errorf("unmarshal event: %w", err)
	}
	return ev, nil
}
