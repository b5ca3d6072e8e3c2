package session

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "zvision:"

// RedisStorage shares slots between console replicas. Keys expire after ttl; zero keeps
// them forever.
type RedisStorage struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisStorage(client *redis.Client, ttl time.Duration) *RedisStorage {
	return &RedisStorage{client: client, ttl: ttl}
}

func (r *RedisStorage) Load(ctx context.Context, slot string) (string, error) {
	token, err := r.client.Get(ctx, redisKeyPrefix+slot).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return token, err
}

func (r *RedisStorage) Save(ctx context.Context, slot, token string) error {
	return r.client.Set(ctx, redisKeyPrefix+slot, token, r.ttl).Err()
}

func (r *RedisStorage) Delete(ctx context.Context, slot string) error {
	return r.client.Del(ctx, redisKeyPrefix+slot).Err()
}
