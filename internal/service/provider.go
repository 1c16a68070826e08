// Package service 提供业务逻辑层
// 本文件实现 Service 层的依赖注入和聚合
package service

import (
	"roomchat_server/internal/config"
	"roomchat_server/internal/dao/gateway"
	myredis "roomchat_server/internal/dao/redis"
	"roomchat_server/internal/service/auth"
	"roomchat_server/internal/service/room"
	"roomchat_server/internal/service/user"
	"roomchat_server/pkg/constants"
)

// Services 聚合所有 Service 实例
// 作为依赖注入的入口，Handler 层通过它访问各个 Service
type Services struct {
	Auth *auth.Service // 认证服务，同时供 HTTP 中间件和 WebSocket 握手使用
	User UserService   // 用户 Service
	Room RoomService   // 房间 Service
}

// Deps 构造 Services 需要的外部依赖
type Deps struct {
	Store    gateway.Gateway
	Cache    myredis.AsyncCacheService
	Notifier room.MembershipNotifier
	// CacheIsRedis 缓存为真实 Redis 时才启用会话吊销校验
	CacheIsRedis bool
}

// NewServices 创建并注入所有 Service 实例
func NewServices(cfg *config.Config, deps Deps) *Services {
	authSvc := auth.NewAuthService(deps.Cache, deps.CacheIsRedis)
	userSvc := user.NewUserService(deps.Store, authSvc, cfg.GatewayConfig.PersistTimeout())
	roomSvc := room.NewRoomService(deps.Store, deps.Cache, deps.Notifier, room.Config{
		CacheEnabled:   cfg.CacheConfig.Enabled,
		CacheTTL:       cfg.CacheConfig.TTL(),
		JitterPercent:  cfg.CacheConfig.JitterPercent,
		CacheTimeout:   constants.CACHE_TIMEOUT,
		PersistTimeout: cfg.GatewayConfig.PersistTimeout(),
		GroupTimeout:   cfg.GatewayConfig.GroupTimeout(),
		HistoryLimit:   cfg.GatewayConfig.HistoryLimit,
	})

	return &Services{
		Auth: authSvc,
		User: userSvc,
		Room: roomSvc,
	}
}
