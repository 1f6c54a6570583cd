package redissvc

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const idempotencyKeyPrefix = "ledger:idempotency:"

// releaseScript deletes the key only while it still holds our token, so an
// expired guard never removes somebody else's.
var releaseScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
	return redis.call('DEL', KEYS[1])
end
return 0
`)

type RedisService struct {
	rdb *redis.Client
}

func NewRedisService(rdb *redis.Client) *RedisService {
	return &RedisService{rdb: rdb}
}

// Connect opens a client and checks it answers within timeout.
func Connect(ctx context.Context, addr, password string, db int, timeout time.Duration) (*RedisService, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("could not connect to redis at %s: %w", addr, err)
	}
	return NewRedisService(rdb), nil
}

func (a *RedisService) Rdb() *redis.Client {
	return a.rdb
}

func (a *RedisService) Close() error {
	return a.rdb.Close()
}

// IdempotencyGuard marks idempotency keys as in flight with SETNX. The TTL
// bounds how long a crashed holder can block a key.
type IdempotencyGuard struct {
	rdb *redis.Client
	ttl time.Duration

	mu     sync.Mutex
	tokens map[string]string
}

func (a *RedisService) IdempotencyGuard(ttl time.Duration) *IdempotencyGuard {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &IdempotencyGuard{rdb: a.rdb, ttl: ttl, tokens: map[string]string{}}
}

func (g *IdempotencyGuard) Acquire(ctx context.Context, key string) (bool, error) {
	token := uuid.NewString()
	ok, err := g.rdb.SetNX(ctx, idempotencyKeyPrefix+key, token, g.ttl).Result()
	if err != nil || !ok {
		return false, err
	}

	g.mu.Lock()
	g.tokens[key] = token
	g.mu.Unlock()
	return true, nil
}

func (g *IdempotencyGuard) Release(ctx context.Context, key string) error {
	g.mu.Lock()
	token, ok := g.tokens[key]
	delete(g.tokens, key)
	g.mu.Unlock()

	if !ok {
		return nil
	}
	return releaseScript.Run(ctx, g.rdb, []string{idempotencyKeyPrefix + key}, token).Err()
}
