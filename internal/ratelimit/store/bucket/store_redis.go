package bucket

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/mindhelpbyus/ataraxia-next-sub003/internal/ratelimit/models"
)

// slidingWindowScript trims expired members, then admits the request when the
// window has room. Returns {allowed, count, oldest_ms}.
var slidingWindowScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])

redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)
local count = redis.call('ZCARD', key)
local allowed = 0
if count < limit then
  redis.call('ZADD', key, now, ARGV[4])
  redis.call('PEXPIRE', key, window)
  count = count + 1
  allowed = 1
end
local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
local oldestScore = now
if oldest[2] then
  oldestScore = tonumber(oldest[2])
end
return {allowed, count, oldestScore}
`)

// RedisBucketStore shares sliding windows across replicas using sorted sets.
type RedisBucketStore struct {
	client *redis.Client
	now    func() time.Time
}

// NewRedis builds a store on client. now may be nil to use the wall clock.
func NewRedis(client *redis.Client, now func() time.Time) *RedisBucketStore {
	if now == nil {
		now = time.Now
	}
	return &RedisBucketStore{client: client, now: now}
}

// Allow records one request against key when the window has room.
func (s *RedisBucketStore) Allow(ctx context.Context, key string, limit int, window time.Duration) (models.Result, error) {
	now := s.now()
	raw, err := slidingWindowScript.Run(ctx, s.client, []string{key},
		now.UnixMilli(), window.Milliseconds(), limit, strconv.FormatInt(now.UnixNano(), 10)+"-"+uuid.NewString(),
	).Int64Slice()
	if err != nil {
		return models.Result{}, fmt.Errorf("evaluate sliding window %s: %w", key, err)
	}
	if len(raw) != 3 {
		return models.Result{}, fmt.Errorf("sliding window %s: unexpected reply length %d", key, len(raw))
	}

	allowed, count := raw[0] == 1, int(raw[1])
	result := models.Result{
		Allowed: allowed,
		Limit:   limit,
		ResetAt: time.UnixMilli(raw[2]).Add(window),
	}
	if allowed {
		result.Remaining = limit - count
	}
	return result, nil
}

// Reset clears the counter for key.
func (s *RedisBucketStore) Reset(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("reset %s: %w", key, err)
	}
	return nil
}
