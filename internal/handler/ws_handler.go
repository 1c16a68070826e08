// Package handler 提供 HTTP 请求处理器
// 本文件处理 WebSocket 升级和运维探针
package handler

import (
	"context"
	"net/http"
	"time"

	"roomchat_server/internal/service/chat"
	"roomchat_server/pkg/errorx"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// WsHandler GET /ws
// 凭证来自 Authorization: Bearer、access_token 查询参数，或者首帧 auth 事件
type WsHandler struct {
	gateway *chat.WsGateway
}

func NewWsHandler(gateway *chat.WsGateway) *WsHandler {
	return &WsHandler{gateway: gateway}
}

func (h *WsHandler) Serve(c *gin.Context) {
	h.gateway.ServeWS(c)
}

// Pinger 健康检查依赖
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler GET /healthz
type HealthHandler struct {
	store Pinger
}

func NewHealthHandler(store Pinger) *HealthHandler {
	return &HealthHandler{store: store}
}

func (h *HealthHandler) Healthz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	if err := h.store.Ping(ctx); err != nil {
		zap.L().Error("health check failed", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"code": errorx.CodeServerBusy,
			"msg":  "store unavailable",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"code": errorx.CodeSuccess,
		"msg":  "success",
	})
}
