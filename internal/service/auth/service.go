// Package auth 实现 Authenticator：校验访问令牌，签发、轮换、吊销会话令牌
package auth

import (
	"context"
	"strings"

	myredis "roomchat_server/internal/dao/redis"
	"roomchat_server/internal/service/chat"
	"roomchat_server/pkg/errorx"
	"roomchat_server/pkg/util/jwt"

	"go.uber.org/zap"
)

// Service 认证服务实现
type Service struct {
	cache myredis.CacheService // 缓存服务（依赖倒置）
	// enforceRevocation 缓存是真实 Redis 时才按 user_token:<uid> 判断会话是否已吊销
	enforceRevocation bool
}

// NewAuthService 创建认证服务实例
func NewAuthService(cache myredis.CacheService, enforceRevocation bool) *Service {
	if cache == nil {
		cache = myredis.NopCache{}
		enforceRevocation = false
	}
	return &Service{
		cache:             cache,
		enforceRevocation: enforceRevocation,
	}
}

// Verify 校验访问令牌
// 会话已吊销（登出）时拒绝；缓存不可达时只看令牌本身
func (s *Service) Verify(ctx context.Context, token string) (*chat.Identity, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, errorx.New(errorx.CodeUnauthorized, "缺少访问令牌")
	}
	claims, err := jwt.ParseAccessToken(token)
	if err != nil {
		return nil, errorx.Wrap(err, errorx.CodeUnauthorized, "访问令牌无效或已过期")
	}

	if s.enforceRevocation {
		stored, err := s.cache.Get(ctx, myredis.UserTokenKey(claims.UserID))
		if err != nil {
			zap.L().Warn("check session revocation failed, trusting token", zap.String("user_id", claims.UserID), zap.Error(err))
		} else if stored == "" {
			return nil, errorx.New(errorx.CodeUnauthorized, "会话已失效，请重新登录")
		}
	}

	identity := &chat.Identity{UserID: claims.UserID}
	if claims.IssuedAt != nil {
		identity.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		identity.ExpiresAt = claims.ExpiresAt.Time
	}
	return identity, nil
}

// Issue 签发一对新令牌，并把 refresh token id 写入缓存
// 同一用户只保留最后一次登录的 refresh token
func (s *Service) Issue(ctx context.Context, userID string) (*jwt.TokenPair, error) {
	pair, err := jwt.GeneratePair(userID)
	if err != nil {
		zap.L().Error("生成令牌失败", zap.String("user_id", userID), zap.Error(err))
		return nil, errorx.ErrServerBusy
	}
	if err := s.cache.Set(ctx, myredis.UserTokenKey(userID), pair.TokenID, jwt.RefreshTTL()); err != nil {
		// 不阻塞登录流程，仅记录日志
		zap.L().Error("存储 Token ID 失败", zap.String("user_id", userID), zap.Error(err))
	}
	return pair, nil
}

// Rotate 用 refresh token 换一对新令牌，旧 refresh token 随即失效
func (s *Service) Rotate(ctx context.Context, refreshToken string) (*jwt.TokenPair, error) {
	claims, err := jwt.ParseRefreshToken(refreshToken)
	if err != nil {
		return nil, errorx.Wrap(err, errorx.CodeUnauthorized, "刷新令牌无效或已过期")
	}
	if s.enforceRevocation {
		valid, err := s.ValidateTokenID(ctx, claims.UserID, claims.TokenID)
		if err != nil {
			return nil, err
		}
		if !valid {
			return nil, errorx.New(errorx.CodeUnauthorized, "刷新令牌已失效，请重新登录")
		}
	}
	return s.Issue(ctx, claims.UserID)
}

// Revoke 登出：删除缓存中的 refresh token id
func (s *Service) Revoke(ctx context.Context, userID string) error {
	if err := s.cache.Delete(ctx, myredis.UserTokenKey(userID)); err != nil {
		return errorx.Wrapf(err, errorx.CodeCacheError, "revoke session user=%s", userID)
	}
	return nil
}

// ValidateTokenID 验证用户的 Token ID 是否为当前有效的那个
func (s *Service) ValidateTokenID(ctx context.Context, userID, tokenID string) (bool, error) {
	validTokenID, err := s.cache.Get(ctx, myredis.UserTokenKey(userID))
	if err != nil {
		return false, err
	}
	if validTokenID == "" {
		return false, nil
	}
	return tokenID == validTokenID, nil
}

var _ chat.Authenticator = (*Service)(nil)
