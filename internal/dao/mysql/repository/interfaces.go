package repository

import (
	"context"
	"time"

	"roomchat_server/internal/model"

	"gorm.io/gorm"
)

// UserRepository 用户数据访问接口
type UserRepository interface {
	FindByID(ctx context.Context, id string) (*model.User, error)
	FindByUsername(ctx context.Context, username string) (*model.User, error)
	FindByIDs(ctx context.Context, ids []string) ([]model.User, error)
	Create(ctx context.Context, user *model.User) error
	// CreateIfAbsent 主键或用户名已存在时什么都不做
	CreateIfAbsent(ctx context.Context, user *model.User) error
	UpdateDisplayName(ctx context.Context, id, displayName string) error
	UpdateLastSeen(ctx context.Context, id string, at time.Time) error
}

// RoomRepository 房间数据访问接口
type RoomRepository interface {
	FindByID(ctx context.Context, id string) (*model.Room, error)
	FindByIDs(ctx context.Context, ids []string) ([]model.Room, error)
	FindByDirectKey(ctx context.Context, key string) (*model.Room, error)
	Create(ctx context.Context, room *model.Room) error
	// CreateIfAbsent 返回是否真的插入了新行
	CreateIfAbsent(ctx context.Context, room *model.Room) (bool, error)
}

// RoomMemberRepository 成员关系数据访问接口
type RoomMemberRepository interface {
	Create(ctx context.Context, member *model.RoomMember) error
	// CreateIfAbsent 返回是否真的插入了新行
	CreateIfAbsent(ctx context.Context, member *model.RoomMember) (bool, error)
	Exists(ctx context.Context, userID, roomID string) (bool, error)
	FindByUser(ctx context.Context, userID string) ([]model.RoomMember, error)
	FindByRoom(ctx context.Context, roomID string) ([]model.RoomMember, error)
}

// MessageRepository 消息数据访问接口
type MessageRepository interface {
	Create(ctx context.Context, message *model.Message) error
	FindByID(ctx context.Context, id string) (*model.Message, error)
	FindByClientMsgID(ctx context.Context, roomID, clientMsgID string) (*model.Message, error)
	// FindRecent 返回最近 limit 条，按时间从旧到新
	FindRecent(ctx context.Context, roomID string, limit int) ([]model.Message, error)
}

// ReactionRepository 表情回应数据访问接口
type ReactionRepository interface {
	// Find 不加锁读取，不存在返回 CodeNotFound
	Find(ctx context.Context, messageID, userID string) (*model.Reaction, error)
	// FindForUpdate 在事务中加行锁读取，不存在返回 CodeNotFound
	FindForUpdate(ctx context.Context, messageID, userID string) (*model.Reaction, error)
	Upsert(ctx context.Context, reaction *model.Reaction) error
	Delete(ctx context.Context, messageID, userID string) error
	FindByMessage(ctx context.Context, messageID string) ([]model.Reaction, error)
	FindByMessages(ctx context.Context, messageIDs []string) ([]model.Reaction, error)
}

// Repositories 聚合所有 Repository 实例
type Repositories struct {
	db       *gorm.DB
	User     UserRepository
	Room     RoomRepository
	Member   RoomMemberRepository
	Message  MessageRepository
	Reaction ReactionRepository
}

// NewRepositories 创建所有 Repository 实例
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		db:       db,
		User:     NewUserRepository(db),
		Room:     NewRoomRepository(db),
		Member:   NewRoomMemberRepository(db),
		Message:  NewMessageRepository(db),
		Reaction: NewReactionRepository(db),
	}
}

// Transaction 在数据库事务中执行函数，fn 返回错误时整体回滚
func (r *Repositories) Transaction(ctx context.Context, fn func(txRepos *Repositories) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(NewRepositories(tx))
	})
}

// DB 暴露底层连接，健康检查使用
func (r *Repositories) DB() *gorm.DB {
	return r.db
}
