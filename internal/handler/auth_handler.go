// Package handler 提供 HTTP 请求处理器
// 本文件处理认证相关的 API 请求
package handler

import (
	"roomchat_server/internal/dto/request"
	"roomchat_server/internal/service"

	"github.com/gin-gonic/gin"
)

// AuthHandler 令牌刷新与登出
type AuthHandler struct {
	userSvc service.UserService
}

func NewAuthHandler(userSvc service.UserService) *AuthHandler {
	return &AuthHandler{userSvc: userSvc}
}

// Refresh 刷新令牌
// POST /auth/refresh
// 请求体: request.RefreshTokenRequest
// 响应: respond.TokenRespond
//
// 单点互踢机制:
//   - 用户登录时在缓存中存储 Token ID
//   - 其他设备登录或刷新会覆盖旧的 Token ID
//   - 使用旧 Token ID 刷新时会被拒绝
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req request.RefreshTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		HandleParamError(c, err)
		return
	}
	data, err := h.userSvc.Refresh(c.Request.Context(), req)
	if err != nil {
		HandleError(c, err)
		return
	}
	HandleSuccess(c, data)
}

// Logout 吊销当前用户的会话
// POST /auth/logout
func (h *AuthHandler) Logout(c *gin.Context) {
	if err := h.userSvc.Logout(c.Request.Context(), currentUserID(c)); err != nil {
		HandleError(c, err)
		return
	}
	HandleSuccess(c, nil)
}
