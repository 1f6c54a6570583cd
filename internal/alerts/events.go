package alerts

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

// Event is one movement that left its item below the minimum threshold.
type Event struct {
	ItemCode     string          `json:"item_code"`
	ItemName     string          `json:"item_name"`
	Quantity     decimal.Decimal `json:"quantity"`
	MinThreshold decimal.Decimal `json:"min_threshold"`
	MovementID   string          `json:"movement_id"`
	Actor        string          `json:"actor"`
	Time         time.Time       `json:"time"`
}

// EventLog keeps the low-stock events of each day.
type EventLog interface {
	Push(ctx context.Context, day string, e Event) error
	Events(ctx context.Context, day string) ([]Event, error)
}

const (
	dayLayout    = "2006-01-02"
	redisKeyBase = "ledger:lowstock:"
	retention    = 48 * time.Hour
)

func dayKey(t time.Time) string {
	return t.UTC().Format(dayLayout)
}

type MemoryEventLog struct {
	mu   sync.Mutex
	days map[string][]Event
}

func NewMemoryEventLog() *MemoryEventLog {
	return &MemoryEventLog{days: make(map[string][]Event)}
}

func (l *MemoryEventLog) Push(_ context.Context, day string, e Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.days[day] = append(l.days[day], e)
	return nil
}

func (l *MemoryEventLog) Events(_ context.Context, day string) ([]Event, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Event(nil), l.days[day]...), nil
}

// RedisEventLog stores one list per day that expires after two days.
type RedisEventLog struct {
	rdb *redis.Client
}

func NewRedisEventLog(rdb *redis.Client) *RedisEventLog {
	return &RedisEventLog{rdb: rdb}
}

func (l *RedisEventLog) Push(ctx context.Context, day string, e Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	key := redisKeyBase + day
	pipe := l.rdb.TxPipeline()
	pipe.RPush(ctx, key, data)
	pipe.Expire(ctx, key, retention)
	_, err = pipe.Exec(ctx)
	return err
}

func (l *RedisEventLog) Events(ctx context.Context, day string) ([]Event, error) {
	entries, err := l.rdb.LRange(ctx, redisKeyBase+day, 0, -1).Result()
	if err != nil {
		return nil, err
	}

	events := make([]Event, 0, len(entries))
	for _, raw := range entries {
		var e Event
		if err := json.Unmarshal([]byte(raw), &e); err == nil {
			events = append(events, e)
		}
	}
	return events, nil
}
