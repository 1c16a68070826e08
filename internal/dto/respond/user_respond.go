package respond

import (
	"time"

	"roomchat_server/internal/model"
)

// UserRespond 用户公开信息
type UserRespond struct {
	UserID      string     `json:"userId"`
	Username    string     `json:"username"`
	DisplayName string     `json:"displayName"`
	LastSeen    *time.Time `json:"lastSeen,omitempty"`
	Online      *bool      `json:"online,omitempty"`
}

func NewUserRespond(u *model.User) UserRespond {
	rsp := UserRespond{
		UserID:      u.ID,
		Username:    u.Username,
		DisplayName: u.Name(),
	}
	if u.LastSeenAt.Valid {
		lastSeen := u.LastSeenAt.Time
		rsp.LastSeen = &lastSeen
	}
	return rsp
}

// RegisterRespond 注册响应
type RegisterRespond struct {
	UserID      string `json:"userId"`
	Username    string `json:"username"`
	DisplayName string `json:"displayName"`
}

// LoginRespond 登录响应
type LoginRespond struct {
	UserID       string `json:"userId"`
	Username     string `json:"username"`
	DisplayName  string `json:"displayName"`
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// TokenRespond 刷新 token 响应
type TokenRespond struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}
