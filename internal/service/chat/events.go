package chat

import (
	"encoding/json"
	"time"

	"roomchat_server/internal/dto/respond"
	"roomchat_server/internal/model"
)

// 客户端 -> 服务端
const (
	EventAuth      = "auth"
	EventRoomJoin  = "room:join"
	EventRoomLeave = "room:leave"
	EventMsgSend   = "msg:send"
	EventMsgReact  = "msg:react"
	EventTyping    = "typing"
)

// 服务端 -> 客户端
const (
	EventSessionReady = "session:ready"
	EventUnauthorized = "unauthorized"
	EventRoomHistory  = "room:history"
	EventMsgNew       = "msg:new"
	EventMsgAck       = "msg:ack"
	EventMsgNack      = "msg:nack"
	EventMsgReactAck  = "msg:react:ack"
	EventMsgReactNack = "msg:react:nack"
	EventPresence     = "presence:update"
	EventError        = "error"
)

// Inbound 入站帧 {"event": "...", "data": {...}}
type Inbound struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Outbound 出站帧
type Outbound struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// Encode 序列化出站帧
func Encode(event string, data any) ([]byte, error) {
	return json.Marshal(Outbound{Event: event, Data: data})
}

// AuthPayload 首帧鉴权
type AuthPayload struct {
	Token string `json:"token" binding:"required"`
}

// RoomPayload room:join / room:leave
type RoomPayload struct {
	RoomID string `json:"roomId" binding:"required,max=64"`
}

// SendPayload msg:send，content 允许为空，按字符数限制长度
type SendPayload struct {
	RoomID      string  `json:"roomId" binding:"required,max=64"`
	Content     string  `json:"content" binding:"max=4000"`
	ClientMsgID string  `json:"clientMsgId" binding:"required,max=64"`
	ReplyToID   *string `json:"replyToId" binding:"omitempty,max=20"`
}

// ReactPayload msg:react
type ReactPayload struct {
	MessageID string `json:"messageId" binding:"required,max=20"`
	RoomID    string `json:"roomId" binding:"required,max=64"`
	Emoji     string `json:"emoji" binding:"required,max=32"`
}

// TypingPayload typing
type TypingPayload struct {
	RoomID   string `json:"roomId" binding:"required,max=64"`
	IsTyping bool   `json:"isTyping"`
}

// ReadyData session:ready
type ReadyData struct {
	ConnID string   `json:"connId"`
	UserID string   `json:"userId"`
	Rooms  []string `json:"rooms"`
}

// HistoryData room:history，history 从旧到新
type HistoryData struct {
	RoomID  string                   `json:"roomId"`
	History []respond.MessageRespond `json:"history"`
}

// AckData msg:ack
type AckData struct {
	ClientMsgID string    `json:"clientMsgId"`
	ServerID    string    `json:"serverId"`
	RoomID      string    `json:"roomId"`
	CreatedAt   time.Time `json:"createdAt"`
	Duplicate   bool      `json:"duplicate,omitempty"`
}

// NackData msg:nack / msg:react:nack
// Code 为 invalid_payload / forbidden / not_found / internal，Detail 为字段 -> 错误说明
type NackData struct {
	ClientMsgID string            `json:"clientMsgId,omitempty"`
	MessageID   string            `json:"messageId,omitempty"`
	RoomID      string            `json:"roomId,omitempty"`
	Code        string            `json:"code"`
	Detail      map[string]string `json:"detail,omitempty"`
}

// ReactData 广播给房间的 msg:react，reactions 是该消息完整的聚合结果
type ReactData struct {
	MessageID string                `json:"messageId"`
	RoomID    string                `json:"roomId"`
	UserID    string                `json:"userId"`
	Emoji     string                `json:"emoji"`
	Action    string                `json:"action"`
	Reactions []model.ReactionGroup `json:"reactions"`
}

// ReactAckData msg:react:ack
type ReactAckData struct {
	MessageID string `json:"messageId"`
	RoomID    string `json:"roomId"`
	Emoji     string `json:"emoji"`
	Action    string `json:"action"`
}

// TypingData typing 广播，带上发送者 id
type TypingData struct {
	RoomID   string `json:"roomId"`
	UserID   string `json:"userId"`
	IsTyping bool   `json:"isTyping"`
}

// PresenceData presence:update，LastSeen 仅离线时有值
type PresenceData struct {
	UserID   string     `json:"userId"`
	Online   bool       `json:"online"`
	LastSeen *time.Time `json:"lastSeen,omitempty"`
}

// ErrorData 事件级错误，连接保持
type ErrorData struct {
	Code    string            `json:"code"`
	Event   string            `json:"event,omitempty"`
	RoomID  string            `json:"roomId,omitempty"`
	Message string            `json:"message,omitempty"`
	Detail  map[string]string `json:"detail,omitempty"`
}
