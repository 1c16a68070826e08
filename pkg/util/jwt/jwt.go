// Package jwt 签发和解析访问令牌、刷新令牌
package jwt

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	issuer         = "roomchat"
	SubjectAccess  = "access_token"
	SubjectRefresh = "refresh_token"
)

// ErrWrongSubject 令牌类型不符（例如拿刷新令牌访问接口）
var ErrWrongSubject = errors.New("jwt: unexpected token subject")

// JWTConfig JWT 配置
type JWTConfig struct {
	Secret             string
	AccessTokenExpiry  time.Duration // Access Token 有效期
	RefreshTokenExpiry time.Duration // Refresh Token 有效期
}

// 全局配置，由 Init 函数初始化
var jwtConfig = &JWTConfig{
	Secret:             "roomchat-dev-secret",
	AccessTokenExpiry:  30 * time.Minute,
	RefreshTokenExpiry: 168 * time.Hour,
}

// Init 初始化 JWT 配置
func Init(secret string, accessExpiryMinutes, refreshExpiryHours int) {
	jwtConfig = &JWTConfig{
		Secret:             secret,
		AccessTokenExpiry:  time.Duration(accessExpiryMinutes) * time.Minute,
		RefreshTokenExpiry: time.Duration(refreshExpiryHours) * time.Hour,
	}
}

// Claims 自定义 JWT 声明
type Claims struct {
	UserID  string `json:"user_id"`
	TokenID string `json:"token_id,omitempty"` // 仅 Refresh Token 使用，对应缓存里 user_token:<uid> 的值
	jwt.RegisteredClaims
}

// TokenPair 登录和刷新时返回的一对令牌
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	TokenID      string
}

// GenerateAccessToken 生成 Access Token (短期，用于接口和 WebSocket 认证)
func GenerateAccessToken(userID string) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(jwtConfig.AccessTokenExpiry)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    issuer,
			Subject:   SubjectAccess,
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(jwtConfig.Secret))
}

// GenerateRefreshToken 生成 Refresh Token，同时返回写入缓存的 tokenID
func GenerateRefreshToken(userID string) (tokenString string, tokenID string, err error) {
	now := time.Now()
	tokenID = uuid.NewString()
	claims := Claims{
		UserID:  userID,
		TokenID: tokenID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(jwtConfig.RefreshTokenExpiry)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    issuer,
			Subject:   SubjectRefresh,
		},
	}
	tokenString, err = jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(jwtConfig.Secret))
	return
}

// GeneratePair 一次生成 Access + Refresh
func GeneratePair(userID string) (*TokenPair, error) {
	access, err := GenerateAccessToken(userID)
	if err != nil {
		return nil, err
	}
	refresh, tokenID, err := GenerateRefreshToken(userID)
	if err != nil {
		return nil, err
	}
	return &TokenPair{AccessToken: access, RefreshToken: refresh, TokenID: tokenID}, nil
}

// RefreshTTL 刷新令牌有效期，缓存 tokenID 时使用同样的 TTL
func RefreshTTL() time.Duration {
	return jwtConfig.RefreshTokenExpiry
}

// ParseToken 解析并验证 Token
func ParseToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return []byte(jwtConfig.Secret), nil
	})
	if err != nil {
		return nil, err
	}
	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return claims, nil
	}
	return nil, jwt.ErrSignatureInvalid
}

// ParseAccessToken 解析 Token 并要求是 Access Token
func ParseAccessToken(tokenString string) (*Claims, error) {
	return parseWithSubject(tokenString, SubjectAccess)
}

// ParseRefreshToken 解析 Token 并要求是 Refresh Token
func ParseRefreshToken(tokenString string) (*Claims, error) {
	return parseWithSubject(tokenString, SubjectRefresh)
}

func parseWithSubject(tokenString, subject string) (*Claims, error) {
	claims, err := ParseToken(tokenString)
	if err != nil {
		return nil, err
	}
	if claims.Subject != subject {
		return nil, ErrWrongSubject
	}
	return claims, nil
}
