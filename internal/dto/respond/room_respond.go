package respond

// StartDirectRespond 发起单聊
type StartDirectRespond struct {
	RoomID  string `json:"roomId"`
	Created bool   `json:"created"`
}

// RoomRespond 房间详情
type RoomRespond struct {
	RoomID  string   `json:"roomId"`
	Name    string   `json:"name"`
	IsGroup bool     `json:"isGroup"`
	Members []string `json:"members"`
}

// AddMembersRespond added 为本次新加入的用户 id
type AddMembersRespond struct {
	RoomID string   `json:"roomId"`
	Added  []string `json:"added"`
}

// ConversationRespond 会话列表中的一项
// Peer 仅单聊有值，LastMessage 为空表示还没有消息
type ConversationRespond struct {
	RoomID      string          `json:"roomId"`
	Name        string          `json:"name"`
	IsGroup     bool            `json:"isGroup"`
	Peer        *UserRespond    `json:"peer,omitempty"`
	LastMessage *MessageRespond `json:"lastMessage,omitempty"`
}
