package respond

import (
	"time"

	"roomchat_server/internal/model"
)

// MessageRespond 消息，HTTP 历史接口与实时事件共用
type MessageRespond struct {
	ID          string                `json:"id"`
	RoomID      string                `json:"roomId"`
	SenderID    string                `json:"senderId"`
	Content     string                `json:"content"`
	ClientMsgID string                `json:"clientMsgId,omitempty"`
	ReplyToID   *string               `json:"replyToId"`
	CreatedAt   time.Time             `json:"createdAt"`
	Reactions   []model.ReactionGroup `json:"reactions"`
}

// NewMessageRespond reactions 为 nil 时输出空数组
func NewMessageRespond(m *model.Message, reactions []model.ReactionGroup) MessageRespond {
	if reactions == nil {
		reactions = []model.ReactionGroup{}
	}
	rsp := MessageRespond{
		ID:        m.ID,
		RoomID:    m.RoomID,
		SenderID:  m.SenderID,
		Content:   m.Content,
		ReplyToID: m.ReplyToID,
		CreatedAt: m.CreatedAt,
		Reactions: reactions,
	}
	if m.ClientMsgID != nil {
		rsp.ClientMsgID = *m.ClientMsgID
	}
	return rsp
}

// NewMessageListRespond 按 messages 顺序组装，reactions 以消息 id 为键
func NewMessageListRespond(messages []model.Message, reactions map[string][]model.ReactionGroup) []MessageRespond {
	out := make([]MessageRespond, 0, len(messages))
	for i := range messages {
		out = append(out, NewMessageRespond(&messages[i], reactions[messages[i].ID]))
	}
	return out
}
