package redis

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"roomchat_server/pkg/errorx"

	"github.com/redis/go-redis/v9"
)

// RedisCache Redis 缓存实现，同时实现 CacheService 和 AsyncCacheService
type RedisCache struct {
	client *redis.Client
	pool   *workerPool
}

// NewRedisCache 创建 Redis 缓存实例并启动 worker
func NewRedisCache(client *redis.Client, workerNum, taskChanSize int) *RedisCache {
	return &RedisCache{
		client: client,
		pool:   newWorkerPool(workerNum, taskChanSize),
	}
}

// Set 设置键值对并指定过期时间
func (r *RedisCache) Set(ctx context.Context, key string, value string, ttl time.Duration) error {
	if err := r.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return errorx.Wrapf(err, errorx.CodeCacheError, "redis set key %s", key)
	}
	return nil
}

// SetWithJitter 带随机抖动的过期时间
func (r *RedisCache) SetWithJitter(ctx context.Context, key string, value string, ttl time.Duration, jitterPercent int) error {
	return r.Set(ctx, key, value, jitteredTTL(ttl, jitterPercent))
}

// Get 键不存在返回空字符串和 nil
func (r *RedisCache) Get(ctx context.Context, key string) (string, error) {
	value, err := r.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", nil
		}
		return "", errorx.Wrapf(err, errorx.CodeCacheError, "redis get key %s", key)
	}
	return value, nil
}

// GetOrError 键不存在返回 CodeNotFound
func (r *RedisCache) GetOrError(ctx context.Context, key string) (string, error) {
	value, err := r.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", errorx.Wrapf(err, errorx.CodeNotFound, "redis key %s not found", key)
		}
		return "", errorx.Wrapf(err, errorx.CodeCacheError, "redis get key %s", key)
	}
	return value, nil
}

// Delete 删除键，不存在也返回成功
func (r *RedisCache) Delete(ctx context.Context, key string) error {
	if err := r.client.Unlink(ctx, key).Err(); err != nil {
		return errorx.Wrapf(err, errorx.CodeCacheError, "redis unlink key %s", key)
	}
	return nil
}

// DeleteByPattern 用 SCAN 分批删除匹配模式的键，不阻塞 Redis
func (r *RedisCache) DeleteByPattern(ctx context.Context, pattern string) error {
	var cursor uint64
	for {
		keys, next, err := r.client.Scan(ctx, cursor, pattern, 500).Result()
		if err != nil {
			return errorx.Wrapf(err, errorx.CodeCacheError, "redis scan pattern %s", pattern)
		}
		if len(keys) > 0 {
			if err := r.client.Unlink(ctx, keys...).Err(); err != nil {
				return errorx.Wrapf(err, errorx.CodeCacheError, "redis unlink keys with pattern %s", pattern)
			}
		}
		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}

// SubmitTask 提交异步缓存任务
func (r *RedisCache) SubmitTask(action func()) {
	r.pool.submit(action)
}

// Close 等待排队的缓存任务执行完
func (r *RedisCache) Close() {
	r.pool.close()
}

// jitteredTTL ttl * (1 + [0, jitterPercent)%)
func jitteredTTL(ttl time.Duration, jitterPercent int) time.Duration {
	if ttl <= 0 || jitterPercent <= 0 {
		return ttl
	}
	maxJitter := int64(ttl) * int64(jitterPercent) / 100
	if maxJitter <= 0 {
		return ttl
	}
	return ttl + time.Duration(rand.Int63n(maxJitter))
}

var _ AsyncCacheService = (*RedisCache)(nil)
