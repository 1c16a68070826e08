// Package user 账号注册、登录与个人资料
package user

import (
	"context"
	"strings"
	"time"

	"roomchat_server/internal/dao/gateway"
	"roomchat_server/internal/dto/request"
	"roomchat_server/internal/dto/respond"
	"roomchat_server/internal/model"
	"roomchat_server/internal/service/auth"
	"roomchat_server/pkg/errorx"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// userService 用户业务逻辑实现
type userService struct {
	store   gateway.Gateway
	auth    *auth.Service
	timeout time.Duration
}

// NewUserService 构造函数，注入持久化网关和认证服务
func NewUserService(store gateway.Gateway, authSvc *auth.Service, timeout time.Duration) *userService {
	return &userService{store: store, auth: authSvc, timeout: timeout}
}

// normalizeUsername 用户名统一去空格、小写
func normalizeUsername(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}

// Register 注册
func (u *userService) Register(ctx context.Context, req request.RegisterRequest) (*respond.RegisterRespond, error) {
	ctx, cancel := context.WithTimeout(ctx, u.timeout)
	defer cancel()

	user := &model.User{
		ID:          "U" + strings.ReplaceAll(uuid.NewString(), "-", ""),
		Username:    normalizeUsername(req.Username),
		DisplayName: strings.TrimSpace(req.DisplayName),
		RawPassword: req.Password,
	}
	if err := u.store.CreateUser(ctx, user); err != nil {
		if errorx.IsConflict(err) {
			return nil, errorx.New(errorx.CodeUserExist, "用户名已被注册")
		}
		zap.L().Error("创建用户失败", zap.String("username", user.Username), zap.Error(err))
		return nil, errorx.ErrServerBusy
	}
	return &respond.RegisterRespond{
		UserID:      user.ID,
		Username:    user.Username,
		DisplayName: user.Name(),
	}, nil
}

// Login 用户名密码登录
func (u *userService) Login(ctx context.Context, req request.LoginRequest) (*respond.LoginRespond, error) {
	ctx, cancel := context.WithTimeout(ctx, u.timeout)
	defer cancel()

	user, err := u.store.FindUserByUsername(ctx, normalizeUsername(req.Username))
	if err != nil {
		if errorx.IsNotFound(err) {
			return nil, errorx.New(errorx.CodeUserNotExist, "用户不存在，请注册")
		}
		zap.L().Error("查询用户失败", zap.Error(err))
		return nil, errorx.ErrServerBusy
	}
	if !user.CheckPassword(req.Password) {
		return nil, errorx.New(errorx.CodeInvalidPassword, "密码不正确，请重试")
	}

	pair, err := u.auth.Issue(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	return &respond.LoginRespond{
		UserID:       user.ID,
		Username:     user.Username,
		DisplayName:  user.Name(),
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
	}, nil
}

// Refresh 轮换令牌
func (u *userService) Refresh(ctx context.Context, req request.RefreshTokenRequest) (*respond.TokenRespond, error) {
	pair, err := u.auth.Rotate(ctx, req.RefreshToken)
	if err != nil {
		return nil, err
	}
	return &respond.TokenRespond{AccessToken: pair.AccessToken, RefreshToken: pair.RefreshToken}, nil
}

// Logout 吊销当前会话
func (u *userService) Logout(ctx context.Context, userID string) error {
	return u.auth.Revoke(ctx, userID)
}

// Me 当前用户资料
func (u *userService) Me(ctx context.Context, userID string) (*respond.UserRespond, error) {
	ctx, cancel := context.WithTimeout(ctx, u.timeout)
	defer cancel()

	user, err := u.store.FindUserByID(ctx, userID)
	if err != nil {
		if errorx.IsNotFound(err) {
			return nil, errorx.New(errorx.CodeUserNotExist, "用户不存在")
		}
		zap.L().Error("查询用户失败", zap.String("user_id", userID), zap.Error(err))
		return nil, errorx.ErrServerBusy
	}
	rsp := respond.NewUserRespond(user)
	return &rsp, nil
}

// UpdateProfile 只能修改自己的显示名
func (u *userService) UpdateProfile(ctx context.Context, userID string, req request.UpdateProfileRequest) error {
	ctx, cancel := context.WithTimeout(ctx, u.timeout)
	defer cancel()

	if err := u.store.UpdateDisplayName(ctx, userID, strings.TrimSpace(req.DisplayName)); err != nil {
		if errorx.IsNotFound(err) {
			return errorx.New(errorx.CodeUserNotExist, "用户不存在")
		}
		zap.L().Error("更新资料失败", zap.String("user_id", userID), zap.Error(err))
		return errorx.ErrServerBusy
	}
	return nil
}
