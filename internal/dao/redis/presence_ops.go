package redis

import (
	"context"
	"time"

	"roomchat_server/pkg/errorx"

	"github.com/redis/go-redis/v9"
)

// 每个用户一个 hash：field 为进程 id，value 为该进程上的连接数
// 脚本内完成 增减 + 求和，多个进程同时上下线时每次只有一个调用看到 0->1 或 1->0
var presenceScript = redis.NewScript(`
local n = redis.call('HINCRBY', KEYS[1], ARGV[1], ARGV[2])
if n <= 0 then
  redis.call('HDEL', KEYS[1], ARGV[1])
end
local total = 0
for _, v in ipairs(redis.call('HVALS', KEYS[1])) do
  total = total + tonumber(v)
end
if total > 0 then
  redis.call('EXPIRE', KEYS[1], ARGV[3])
end
return total
`)

// PresenceCounter 集群范围的在线连接计数
type PresenceCounter struct {
	client    *redis.Client
	processID string
	prefix    string
	ttl       time.Duration
}

// NewPresenceCounter ttl 之后无人刷新的计数自动过期，用于兜底崩溃进程遗留的计数
func NewPresenceCounter(client *redis.Client, processID string, ttl time.Duration) *PresenceCounter {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &PresenceCounter{client: client, processID: processID, prefix: DefaultChannelPrefix + "presence:", ttl: ttl}
}

// Incr 返回变更后的集群总连接数
func (p *PresenceCounter) Incr(ctx context.Context, userID string) (int64, error) {
	return p.apply(ctx, userID, 1)
}

// Decr 返回变更后的集群总连接数
func (p *PresenceCounter) Decr(ctx context.Context, userID string) (int64, error) {
	return p.apply(ctx, userID, -1)
}

// Count 当前集群总连接数
func (p *PresenceCounter) Count(ctx context.Context, userID string) (int64, error) {
	return p.apply(ctx, userID, 0)
}

func (p *PresenceCounter) apply(ctx context.Context, userID string, delta int) (int64, error) {
	total, err := presenceScript.Run(ctx, p.client, []string{p.prefix + userID}, p.processID, delta, int(p.ttl.Seconds())).Int64()
	if err != nil {
		return 0, errorx.Wrapf(err, errorx.CodeCacheError, "redis presence user=%s", userID)
	}
	return total, nil
}
