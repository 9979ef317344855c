package ratelimit

import (
	"context"
	"fmt"
	"time"

	"RoomChat/tools/ids"

	pkgerr "github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// ===== Lua 脚本 =====
//
// 一把 key 上的 prune+count+insert 必须原子，否则两个并发请求会同时
// 看到最后一个空位。
//
// KEYS[1] = zset key (rl:<client>:<target>)
// ARGV[1] = nowMS
// ARGV[2] = windowMS
// ARGV[3] = max
// ARGV[4] = burst (0 = disabled)
// ARGV[5] = burstWindowMS
// ARGV[6] = ttlSeconds (window+1s)
// ARGV[7] = member (unique per request)
// 返回：{allowed(0/1), count, burstLimited(0/1)}
const luaTake = `
local k        = KEYS[1]
local now      = tonumber(ARGV[1])
local win      = tonumber(ARGV[2])
local max      = tonumber(ARGV[3])
local burst    = tonumber(ARGV[4])
local burstWin = tonumber(ARGV[5])
local ttl      = tonumber(ARGV[6])

redis.call("ZREMRANGEBYSCORE", k, 0, now - win)

if burst > 0 then
  local bc = redis.call("ZCOUNT", k, now - burstWin, "+inf")
  if bc >= burst then
    return {0, redis.call("ZCARD", k), 1}
  end
end

local c = redis.call("ZCARD", k)
if c >= max then
  return {0, c, 0}
end

redis.call("ZADD", k, now, ARGV[7])
redis.call("EXPIRE", k, ttl)
return {1, c, 0}
`

var takeScript = redis.NewScript(luaTake)

// RedisStore keeps one ZSET per (client, target) key; members are
// request timestamps. Shared across all service instances.
type RedisStore struct {
	rdb       redis.UniversalClient
	keyPrefix string
}

func NewRedisStore(rdb redis.UniversalClient) *RedisStore {
	return &RedisStore{rdb: rdb, keyPrefix: "rl:"}
}

func (s *RedisStore) Take(ctx context.Context, key string, now time.Time, window time.Duration, max, burst int) (TakeResult, error) {
	ttl := int(window/time.Second) + 1
	member := fmt.Sprintf("%d-%s", now.UnixMilli(), ids.GenerateString())

	vals, err := takeScript.Run(ctx, s.rdb,
		[]string{s.keyPrefix + key},
		now.UnixMilli(),
		window.Milliseconds(),
		max,
		burst,
		BurstWindow.Milliseconds(),
		ttl,
		member,
	).Int64Slice()
	if err != nil {
		return TakeResult{}, pkgerr.Wrap(err, "ratelimit take script")
	}
	if len(vals) != 3 {
		return TakeResult{}, pkgerr.Errorf("ratelimit take script: bad reply len=%d", len(vals))
	}
	return TakeResult{
		Allowed:      vals[0] == 1,
		Count:        int(vals[1]),
		BurstLimited: vals[2] == 1,
	}, nil
}
