package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Nil is returned by HGet when the field does not exist
const Nil = redis.Nil

type Client struct {
	rdb        *redis.Client
	KeyBuilder *KeyBuilder
	log        *zap.Logger
}

// NewClient creates a new Redis client
func NewClient(redisURL string, environment string, log *zap.Logger) (*Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	// A single device session needs very few connections
	opts.PoolSize = 4
	opts.MinIdleConns = 1
	opts.MaxRetries = 3
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second

	rdb := redis.NewClient(opts)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	if log == nil {
		log = zap.NewNop()
	}

	return &Client{rdb: rdb, KeyBuilder: NewKeyBuilder(environment), log: log}, nil
}

// Close closes the Redis connection
func (c *Client) Close() error {
	if c.rdb != nil {
		return c.rdb.Close()
	}
	return nil
}

// HGet reads one hash field; a missing field returns Nil
func (c *Client) HGet(ctx context.Context, key, field string) (string, error) {
	start := time.Now()
	val, err := c.rdb.HGet(ctx, key, field).Result()
	dur := time.Since(start)
	if err != nil && err != redis.Nil {
		c.log.Info("redis_hget",
			zap.String("key_prefix", prefixForLog(key)),
			zap.String("field", field),
			zap.Duration("duration", dur),
			zap.Error(err))
	} else {
		c.log.Debug("redis_hget",
			zap.String("key_prefix", prefixForLog(key)),
			zap.String("field", field),
			zap.Bool("hit", err == nil),
			zap.Duration("duration", dur))
	}
	return val, err
}

// HGetAll gets all fields from a hash
func (c *Client) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	start := time.Now()
	m, err := c.rdb.HGetAll(ctx, key).Result()
	dur := time.Since(start)
	if err != nil {
		c.log.Info("redis_hgetall",
			zap.String("key_prefix", prefixForLog(key)),
			zap.Duration("duration", dur),
			zap.Error(err))
	} else {
		c.log.Debug("redis_hgetall",
			zap.String("key_prefix", prefixForLog(key)),
			zap.Int("fields", len(m)),
			zap.Duration("duration", dur))
	}
	return m, err
}

// HUpdate sets and deletes hash fields in one MULTI/EXEC transaction
func (c *Client) HUpdate(ctx context.Context, key string, set map[string]string, del []string) error {
	start := time.Now()
	_, err := c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if len(set) > 0 {
			pipe.HSet(ctx, key, pairs(set)...)
		}
		if len(del) > 0 {
			pipe.HDel(ctx, key, del...)
		}
		return nil
	})
	dur := time.Since(start)
	if err != nil {
		c.log.Info("redis_hupdate",
			zap.String("key_prefix", prefixForLog(key)),
			zap.Int("set", len(set)),
			zap.Int("del", len(del)),
			zap.Duration("duration", dur),
			zap.Error(err))
	} else {
		c.log.Debug("redis_hupdate",
			zap.String("key_prefix", prefixForLog(key)),
			zap.Int("set", len(set)),
			zap.Int("del", len(del)),
			zap.Duration("duration", dur))
	}
	return err
}

// Health checks the Redis connection
func (c *Client) Health(ctx context.Context) error {
	start := time.Now()
	err := c.rdb.Ping(ctx).Err()
	dur := time.Since(start)
	if err != nil {
		c.log.Info("redis_ping",
			zap.Duration("duration", dur),
			zap.Error(err))
	} else {
		c.log.Debug("redis_ping", zap.Duration("duration", dur))
	}
	return err
}

// pairs flattens a field map into HSET arguments
func pairs(values map[string]string) []interface{} {
	args := make([]interface{}, 0, len(values)*2)
	for field, value := range values {
		args = append(args, field, value)
	}
	return args
}

// prefixForLog returns a safe prefix of a key to avoid logging PII
func prefixForLog(key string) string {
	if len(key) <= 24 {
		return key
	}
	return key[:24] + "…"
}
