// Package router 提供 HTTP 路由注册
// 本文件是路由注册的入口，按是否需要认证划分路由组
package router

import (
	"roomchat_server/internal/handler"
	"roomchat_server/internal/infrastructure/metrics"
	"roomchat_server/internal/infrastructure/middleware"
	"roomchat_server/internal/service/chat"

	"github.com/gin-gonic/gin"
)

// Router 路由管理器，持有 Handler 聚合和中间件依赖
type Router struct {
	handlers *handler.Handlers
	verifier chat.Authenticator
	limiter  *middleware.LimiterPool
}

// NewRouter 创建路由管理器
// limiter 为 nil 时登录注册接口不限流
func NewRouter(handlers *handler.Handlers, verifier chat.Authenticator, limiter *middleware.LimiterPool) *Router {
	return &Router{
		handlers: handlers,
		verifier: verifier,
		limiter:  limiter,
	}
}

// RegisterRoutes 注册所有路由
// 在 https_server.Init() 中调用
func (rt *Router) RegisterRoutes(r *gin.Engine) {
	// 运维探针
	r.GET("/healthz", rt.handlers.Health.Healthz)
	r.GET("/metrics", metrics.Handler())

	// WebSocket 入口，鉴权在握手内完成（header / 查询参数 / 首帧 auth）
	r.GET("/ws", rt.handlers.Ws.Serve)

	rt.registerPublicRoutes(r)

	authed := r.Group("")
	authed.Use(middleware.JWTAuth(rt.verifier))
	rt.registerAuthRoutes(authed)
	rt.registerUserRoutes(authed)
	rt.registerRoomRoutes(authed)
}

// registerPublicRoutes 无需认证的接口
func (rt *Router) registerPublicRoutes(r *gin.Engine) {
	public := r.Group("")
	if rt.limiter != nil {
		public.Use(middleware.RateLimit(rt.limiter))
	}
	public.POST("/register", rt.handlers.User.Register)
	public.POST("/login", rt.handlers.User.Login)
	// 使用 Refresh Token 换取新的 Token 对
	public.POST("/auth/refresh", rt.handlers.Auth.Refresh)
}

func (rt *Router) registerAuthRoutes(rg *gin.RouterGroup) {
	authGroup := rg.Group("/auth")
	{
		authGroup.POST("/logout", rt.handlers.Auth.Logout)
	}
}

func (rt *Router) registerUserRoutes(rg *gin.RouterGroup) {
	userGroup := rg.Group("/user")
	{
		userGroup.GET("/me", rt.handlers.User.Me)
		userGroup.POST("/updateProfile", rt.handlers.User.UpdateProfile)
	}
}

func (rt *Router) registerRoomRoutes(rg *gin.RouterGroup) {
	roomGroup := rg.Group("/room")
	{
		roomGroup.POST("/direct", rt.handlers.Room.StartDirect)
		roomGroup.POST("/group", rt.handlers.Room.CreateGroup)
		roomGroup.POST("/addMembers", rt.handlers.Room.AddMembers)
		roomGroup.GET("/list", rt.handlers.Room.List)
		roomGroup.GET("/messages", rt.handlers.Room.Messages)
	}
}
