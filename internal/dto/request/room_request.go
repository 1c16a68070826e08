package request

// StartDirectRequest 按用户名发起单聊
type StartDirectRequest struct {
	Username string `json:"username" binding:"required"`
}

// CreateGroupRequest 建群，创建者自动成为群主
type CreateGroupRequest struct {
	Name      string   `json:"name" binding:"required,max=64"`
	Usernames []string `json:"usernames" binding:"omitempty,max=200,dive,required"`
}

// AddMembersRequest 只有房间成员可以拉人
type AddMembersRequest struct {
	RoomID    string   `json:"roomId" binding:"required,max=64"`
	Usernames []string `json:"usernames" binding:"required,min=1,max=200,dive,required"`
}

// MessageListRequest GET /room/messages
type MessageListRequest struct {
	RoomID string `form:"room_id" binding:"required,max=64"`
	Limit  int    `form:"limit" binding:"omitempty,min=1,max=200"`
}
