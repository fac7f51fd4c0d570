package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisStore keeps one sorted set per key, scored by request time in
// milliseconds, so every server process sharing the Redis instance enforces
// the same limit.
type RedisStore struct {
	rdb    *redis.Client
	prefix string
	now    func() time.Time
}

// NewRedisStore stores request logs under prefix+key.
func NewRedisStore(rdb *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "ratelimit:"
	}
	return &RedisStore{rdb: rdb, prefix: prefix, now: time.Now}
}

// slidingWindow trims the log, admits the request only while the window has
// room and reports the oldest surviving score. A rejected request never
// enters the set.
var slidingWindow = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])

redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)
local count = redis.call('ZCARD', key)
local allowed = 0
if count < limit then
	redis.call('ZADD', key, now, ARGV[4])
	count = count + 1
	allowed = 1
end

local oldest = now
local first = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
if #first > 0 then
	oldest = tonumber(first[2])
end
redis.call('PEXPIRE', key, window)
return {allowed, count, oldest}
`)

// Allow records the request under key when the window has room. The check
// and the insert run as one script, so concurrent callers never see a
// rejected request counted.
func (s *RedisStore) Allow(ctx context.Context, key string, limit int, window time.Duration) (Result, error) {
	now := s.now()
	nowMs := now.UnixMilli()
	member := strconv.FormatInt(nowMs, 10) + "-" + uuid.NewString()

	vals, err := slidingWindow.Run(ctx, s.rdb, []string{s.prefix + key},
		nowMs, window.Milliseconds(), limit, member).Int64Slice()
	if err != nil {
		return Result{}, fmt.Errorf("ratelimit: redis script: %w", err)
	}
	if len(vals) != 3 {
		return Result{}, fmt.Errorf("ratelimit: redis script returned %d values", len(vals))
	}

	res := Result{Limit: limit, Reset: time.UnixMilli(vals[2]).Add(window)}
	if vals[0] == 1 {
		res.Allowed = true
		res.Remaining = limit - int(vals[1])
	}
	return res, nil
}
