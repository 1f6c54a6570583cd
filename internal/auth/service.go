package auth

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const refreshKeyPrefix = "auth:refresh:"

// RedisRefreshStore keeps refresh tokens in Redis with their TTL, so they
// survive restarts and are shared between instances.
type RedisRefreshStore struct {
	rdb *redis.Client
}

var _ RefreshStore = (*RedisRefreshStore)(nil)

func NewRedisRefreshStore(rdb *redis.Client) *RedisRefreshStore {
	return &RedisRefreshStore{rdb: rdb}
}

func (s *RedisRefreshStore) Save(ctx context.Context, token, username string, ttl time.Duration) error {
	return s.rdb.Set(ctx, refreshKeyPrefix+token, username, ttl).Err()
}

func (s *RedisRefreshStore) Lookup(ctx context.Context, token string) (string, error) {
	username, err := s.rdb.Get(ctx, refreshKeyPrefix+token).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrRefreshTokenNotFound
	}
	return username, err
}

func (s *RedisRefreshStore) Revoke(ctx context.Context, token string) error {
	return s.rdb.Del(ctx, refreshKeyPrefix+token).Err()
}
