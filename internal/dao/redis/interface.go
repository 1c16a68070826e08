// Package redis 基于 go-redis v9 的缓存、广播背板和集群在线计数
// Service 层依赖这里的接口而不是具体客户端，缓存缺失或不可用时业务照常工作
package redis

import (
	"context"
	"time"
)

// CacheService 缓存服务接口（cache-aside，从不作为数据源）
type CacheService interface {
	// Set 设置键值对并指定过期时间
	Set(ctx context.Context, key string, value string, ttl time.Duration) error
	// SetWithJitter 过期时间在 ttl 基础上随机增加 0~jitterPercent%，避免同时失效
	SetWithJitter(ctx context.Context, key string, value string, ttl time.Duration, jitterPercent int) error
	// Get 键不存在返回空字符串和 nil
	Get(ctx context.Context, key string) (string, error)
	// GetOrError 键不存在返回 CodeNotFound
	GetOrError(ctx context.Context, key string) (string, error)

	// Delete 删除键（如果存在）
	Delete(ctx context.Context, key string) error
	// DeleteByPattern 删除匹配模式的所有键
	DeleteByPattern(ctx context.Context, pattern string) error
}

// AsyncCacheService 额外提供异步任务提交，缓存失效等非关键写入走这里
type AsyncCacheService interface {
	CacheService
	// SubmitTask 提交异步缓存任务，队列满时同步执行
	SubmitTask(action func())
}
