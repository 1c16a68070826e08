package request

// RegisterRequest 注册
type RegisterRequest struct {
	Username    string `json:"username" binding:"required,username"`
	Password    string `json:"password" binding:"required,min=8,max=72"`
	DisplayName string `json:"displayName" binding:"omitempty,max=64"`
}

// LoginRequest 用户名密码登录
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// RefreshTokenRequest 刷新 token
type RefreshTokenRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

// UpdateProfileRequest 只能修改自己的资料
type UpdateProfileRequest struct {
	DisplayName string `json:"displayName" binding:"required,max=64"`
}
