package i18n

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps the preference in Redis under StorageKey, optionally
// scoped to one device.
type RedisStore struct {
	client *redis.Client
	key    string
}

// NewRedisStore builds a store. An empty deviceID uses the bare key.
func NewRedisStore(client *redis.Client, deviceID string) *RedisStore {
	key := StorageKey
	if deviceID != "" {
		key = StorageKey + ":" + deviceID
	}
	return &RedisStore{client: client, key: key}
}

func (r *RedisStore) Load(ctx context.Context) (string, bool, error) {
	code, err := r.client.Get(ctx, r.key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redis get %s: %w", r.key, err)
	}
	return code, true, nil
}

func (r *RedisStore) Save(ctx context.Context, code string) error {
	if err := r.client.Set(ctx, r.key, code, 0).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", r.key, err)
	}
	return nil
}
