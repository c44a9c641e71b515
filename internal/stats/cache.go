package stats

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/TIROK547/telegram-study-bot/internal/calendar"
	"github.com/TIROK547/telegram-study-bot/internal/models"
)

// Cache keeps rendered leaderboards in Redis for a few seconds so the
// group's polling clients don't hammer the ranked query. The engine
// drops the touched buckets on every commit, so a stale board lives at
// most one TTL. Redis being down only costs the cache: reads fall
// through to the store.
type Cache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewCache(rdb *redis.Client, ttl time.Duration) *Cache {
	return &Cache{rdb: rdb, ttl: ttl}
}

func (c *Cache) GetBoard(ctx context.Context, key string) ([]models.LeaderboardEntry, bool) {
	data, err := c.rdb.Get(ctx, key).Bytes()
	if err != nil {
		return nil, false
	}

	var entries []models.LeaderboardEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, false
	}
	return entries, true
}

func (c *Cache) SetBoard(ctx context.Context, key string, entries []models.LeaderboardEntry) {
	data, err := json.Marshal(entries)
	if err != nil {
		return
	}
	c.rdb.Set(ctx, key, data, c.ttl)
}

// InvalidateBuckets implements engine.Invalidator: drops the cached
// boards for every bucket a commit just touched.
func (c *Cache) InvalidateBuckets(ctx context.Context, keys calendar.Keys) {
	c.rdb.Del(ctx,
		boardCacheKey(models.GranularityDaily, keys.Day),
		boardCacheKey(models.GranularityWeekly, keys.Week),
		boardCacheKey(models.GranularityMonthly, keys.Month),
	)
}
