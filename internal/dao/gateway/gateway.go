// Package gateway 定义实时核心依赖的持久化能力
// 提供两个实现：基于 gorm 的 MySQL 实现和单进程内存实现（storeMode = memory）
package gateway

import (
	"context"
	"time"

	"roomchat_server/internal/model"
)

// ReactionAction 回应切换结果
type ReactionAction string

const (
	ReactionAdded   ReactionAction = "added"
	ReactionRemoved ReactionAction = "removed"
)

// NewMessage 待写入的消息
// ClientMsgID 为空时不做幂等去重
type NewMessage struct {
	RoomID      string
	SenderID    string
	Content     string
	ClientMsgID string
	ReplyToID   *string
}

// Gateway 持久化网关
// 返回的错误都是 errorx.CodeError：不存在为 CodeNotFound，唯一键冲突为 CodeConflict
type Gateway interface {
	// UpsertUser 用户不存在时以 usernameHint 补建（带外创建的身份），已存在则不变
	UpsertUser(ctx context.Context, id, usernameHint string) error
	CreateUser(ctx context.Context, user *model.User) error
	FindUserByID(ctx context.Context, id string) (*model.User, error)
	FindUserByUsername(ctx context.Context, username string) (*model.User, error)
	FindUsersByIDs(ctx context.Context, ids []string) ([]model.User, error)
	UpdateDisplayName(ctx context.Context, id, displayName string) error
	TouchLastSeen(ctx context.Context, id string, at time.Time) error

	// EnsureRoom 首次引用的房间 id 直接建出来（群聊），created 表示本次是否新建
	// 并发补建同一个 id 时只有一方拿到 created=true
	EnsureRoom(ctx context.Context, id string) (room *model.Room, created bool, err error)
	FindRoom(ctx context.Context, id string) (*model.Room, error)
	FindRoomsByIDs(ctx context.Context, ids []string) ([]model.Room, error)
	FindDirectRoomBetween(ctx context.Context, userA, userB string) (*model.Room, error)
	// StartDirectRoom 原子地查找或创建两人单聊，created 表示本次是否新建
	StartDirectRoom(ctx context.Context, userA, userB string) (room *model.Room, created bool, err error)
	// CreateGroupRoom 单个事务内建群并写入全部成员，owner 为群主
	CreateGroupRoom(ctx context.Context, name, ownerID string, memberIDs []string) (*model.Room, error)

	// AddMembership 已是成员时 added=false
	AddMembership(ctx context.Context, userID, roomID, role string) (added bool, err error)
	IsMember(ctx context.Context, userID, roomID string) (bool, error)
	ListMemberships(ctx context.Context, userID string) ([]model.RoomMember, error)
	ListRoomMembers(ctx context.Context, roomID string) ([]model.RoomMember, error)

	// InsertMessageIdempotent (roomId, clientMsgId) 已存在时返回原消息且 duplicate=true
	InsertMessageIdempotent(ctx context.Context, in NewMessage) (msg *model.Message, duplicate bool, err error)
	FindMessage(ctx context.Context, id string) (*model.Message, error)
	// ListRecentMessages 按时间从旧到新
	ListRecentMessages(ctx context.Context, roomID string, limit int) ([]model.Message, error)

	// ToggleReaction 原子地完成 读取-删除/覆盖
	ToggleReaction(ctx context.Context, messageID, userID, emoji string) (ReactionAction, error)
	ListReactions(ctx context.Context, messageID string) ([]model.ReactionGroup, error)
	ListReactionsForMessages(ctx context.Context, messageIDs []string) (map[string][]model.ReactionGroup, error)

	Ping(ctx context.Context) error
}

// now 截断到毫秒，与 datetime(3) 精度一致，内存实现和 MySQL 实现排序结果相同
func now() time.Time {
	return time.Now().Truncate(time.Millisecond)
}

// hintUsername 补建用户时生成不冲突的用户名
func hintUsername(id, hint string) string {
	if hint != "" {
		return hint
	}
	if len(id) > 8 {
		id = id[:8]
	}
	return "user_" + id
}

func groupByMessage(rows []model.Reaction) map[string][]model.ReactionGroup {
	byMessage := make(map[string][]model.Reaction)
	for _, r := range rows {
		byMessage[r.MessageID] = append(byMessage[r.MessageID], r)
	}
	out := make(map[string][]model.ReactionGroup, len(byMessage))
	for id, list := range byMessage {
		out[id] = model.AggregateReactions(list)
	}
	return out
}
