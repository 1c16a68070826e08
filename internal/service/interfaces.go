// Package service 定义业务层接口
// 本文件定义所有 Service 接口，供 Handler 层调用
package service

import (
	"context"

	"roomchat_server/internal/dto/request"
	"roomchat_server/internal/dto/respond"
)

// UserService 用户业务接口
// 处理注册、登录、令牌轮换和个人资料
type UserService interface {
	// Register 用户注册
	Register(ctx context.Context, req request.RegisterRequest) (*respond.RegisterRespond, error)
	// Login 密码登录
	Login(ctx context.Context, req request.LoginRequest) (*respond.LoginRespond, error)
	// Refresh 用 refresh token 换新令牌
	Refresh(ctx context.Context, req request.RefreshTokenRequest) (*respond.TokenRespond, error)
	// Logout 吊销当前会话
	Logout(ctx context.Context, userID string) error
	// Me 当前用户信息
	Me(ctx context.Context, userID string) (*respond.UserRespond, error)
	// UpdateProfile 修改自己的资料
	UpdateProfile(ctx context.Context, userID string, req request.UpdateProfileRequest) error
}

// RoomService 房间业务接口
// 处理单聊/群聊创建、拉人、会话列表和历史消息
type RoomService interface {
	// StartDirect 发起单聊（已存在则返回原房间）
	StartDirect(ctx context.Context, userID string, req request.StartDirectRequest) (*respond.StartDirectRespond, error)
	// CreateGroup 创建群聊
	CreateGroup(ctx context.Context, ownerID string, req request.CreateGroupRequest) (*respond.RoomRespond, error)
	// AddMembers 向群聊添加成员
	AddMembers(ctx context.Context, userID string, req request.AddMembersRequest) (*respond.AddMembersRespond, error)
	// ListConversations 会话列表
	ListConversations(ctx context.Context, userID string) ([]respond.ConversationRespond, error)
	// ListMessages 房间最近消息
	ListMessages(ctx context.Context, userID string, req request.MessageListRequest) ([]respond.MessageRespond, error)
}
