package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"
)

const DefaultCountTTL = 30 * time.Second

// CountCache caches aggregate like counts per entity. Counts are viewer
// independent, so one entry serves every reader. A nil *CountCache or one
// without Redis is a permanent miss.
type CountCache struct {
	redis *RedisCache
	ttl   time.Duration
}

func NewCountCache(redis *RedisCache, ttl time.Duration) *CountCache {
	if ttl <= 0 {
		ttl = DefaultCountTTL
	}
	return &CountCache{redis: redis, ttl: ttl}
}

func countKey(kind string, id uuid.UUID) string {
	return fmt.Sprintf("likes:count:%s:%s", kind, id)
}

// GetCounts returns cached counts for the ids it has, and the ids it does not.
func (cc *CountCache) GetCounts(ctx context.Context, kind string, ids []uuid.UUID) (map[uuid.UUID]int64, []uuid.UUID) {
	if cc == nil || cc.redis == nil || len(ids) == 0 {
		return map[uuid.UUID]int64{}, ids
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = countKey(kind, id)
	}
	vals, err := cc.redis.MGet(ctx, keys...)
	if err != nil {
		return map[uuid.UUID]int64{}, ids
	}

	hits := make(map[uuid.UUID]int64, len(ids))
	var misses []uuid.UUID
	for i, id := range ids {
		if vals[i] == nil {
			misses = append(misses, id)
			continue
		}
		var n int64
		if err := msgpack.Unmarshal(vals[i], &n); err != nil {
			misses = append(misses, id)
			continue
		}
		hits[id] = n
	}
	return hits, misses
}

// SetCounts caches counts for every id in ids, writing zero for ids absent
// from counts.
func (cc *CountCache) SetCounts(ctx context.Context, kind string, ids []uuid.UUID, counts map[uuid.UUID]int64) error {
	if cc == nil || cc.redis == nil || len(ids) == 0 {
		return nil
	}
	values := make(map[string][]byte, len(ids))
	for _, id := range ids {
		data, err := msgpack.Marshal(counts[id])
		if err != nil {
			return err
		}
		values[countKey(kind, id)] = data
	}
	return cc.redis.SetMany(ctx, values, cc.ttl)
}

// Invalidate drops the cached count for one entity after a like mutation.
func (cc *CountCache) Invalidate(ctx context.Context, kind string, id uuid.UUID) error {
	if cc == nil || cc.redis == nil {
		return nil
	}
	return cc.redis.Delete(ctx, countKey(kind, id))
}
