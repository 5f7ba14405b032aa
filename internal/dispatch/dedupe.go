package dispatch

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"voiceops/pkg/utils"
)

const (
	dedupeKeyPrefix  = "voiceops:event-seen:"
	defaultDedupeTTL = 24 * time.Hour
)

// RedisDeduper backs the Deduper fast path with redis keys. Entries expire,
// so long-delayed redeliveries fall through to the store's idempotent
// inserts, which is fine.
type RedisDeduper struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisDeduper(rdb *redis.Client, ttl time.Duration) *RedisDeduper {
	if ttl <= 0 {
		ttl = defaultDedupeTTL
	}
	return &RedisDeduper{rdb: rdb, ttl: ttl}
}

func (d *RedisDeduper) Seen(ctx context.Context, eventID string) (bool, error) {
	return utils.EventSeen(ctx, d.rdb, dedupeKeyPrefix+eventID)
}

func (d *RedisDeduper) Mark(ctx context.Context, eventID string) error {
	return utils.MarkEventSeen(ctx, d.rdb, dedupeKeyPrefix+eventID, d.ttl)
}

// MemoryDeduper is the in-process stand-in for tests and redis-less deploys.
type MemoryDeduper struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

func NewMemoryDeduper() *MemoryDeduper {
	return &MemoryDeduper{seen: make(map[string]struct{})}
}

func (d *MemoryDeduper) Seen(_ context.Context, eventID string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.seen[eventID]
	return ok, nil
}

func (d *MemoryDeduper) Mark(_ context.Context, eventID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.seen[eventID] = struct{}{}
	return nil
}
