package credstore

import (
	"context"
	"errors"
	"sort"

	"mobile-session/pkg/redis"
)

// RedisBackend stores one device's values as fields of a single Redis hash
type RedisBackend struct {
	client *redis.Client
	key    string
}

// NewRedisBackend binds the backend to the hash for namespace
func NewRedisBackend(client *redis.Client, namespace string) *RedisBackend {
	if namespace == "" {
		namespace = "default"
	}
	return &RedisBackend{
		client: client,
		key:    client.KeyBuilder.KeyCredentials(namespace),
	}
}

func (r *RedisBackend) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := r.client.HGet(ctx, r.key, key)
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (r *RedisBackend) Update(ctx context.Context, set map[string]string, del []string) error {
	// a key both set and deleted ends up set, matching applyUpdate
	filtered := make([]string, 0, len(del))
	for _, key := range del {
		if _, ok := set[key]; !ok {
			filtered = append(filtered, key)
		}
	}
	return r.client.HUpdate(ctx, r.key, set, filtered)
}

func (r *RedisBackend) Name() string { return "redis" }

// Fields returns the names of the stored slots. Values are never returned.
func (r *RedisBackend) Fields(ctx context.Context) ([]string, error) {
	values, err := r.client.HGetAll(ctx, r.key)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Health pings the server holding the hash
func (r *RedisBackend) Health(ctx context.Context) error {
	return r.client.Health(ctx)
}
