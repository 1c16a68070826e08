package gateway

import (
	"context"
	"strings"
	"time"

	"roomchat_server/internal/dao/mysql/repository"
	"roomchat_server/internal/model"
	"roomchat_server/pkg/constants"
	"roomchat_server/pkg/errorx"
	"roomchat_server/pkg/util/snowflake"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// GormGateway 基于 Repository 层的 MySQL 实现
type GormGateway struct {
	repos *repository.Repositories
}

// NewGormGateway 创建 MySQL 网关
func NewGormGateway(repos *repository.Repositories) *GormGateway {
	return &GormGateway{repos: repos}
}

func (g *GormGateway) UpsertUser(ctx context.Context, id, usernameHint string) error {
	if _, err := g.repos.User.FindByID(ctx, id); err == nil {
		return nil
	} else if !errorx.IsNotFound(err) {
		return err
	}
	user := &model.User{ID: id, Username: strings.ToLower(hintUsername(id, usernameHint)), CreatedAt: now(), UpdatedAt: now()}
	if err := g.repos.User.CreateIfAbsent(ctx, user); err != nil {
		return err
	}
	// 用户名被占用时 DoNothing 不会插入，换一个由 id 派生的名字再试一次
	if _, err := g.repos.User.FindByID(ctx, id); errorx.IsNotFound(err) {
		user.Username = hintUsername(id, "")
		return g.repos.User.CreateIfAbsent(ctx, user)
	}
	return nil
}

func (g *GormGateway) CreateUser(ctx context.Context, user *model.User) error {
	return g.repos.User.Create(ctx, user)
}

func (g *GormGateway) FindUserByID(ctx context.Context, id string) (*model.User, error) {
	return g.repos.User.FindByID(ctx, id)
}

func (g *GormGateway) FindUserByUsername(ctx context.Context, username string) (*model.User, error) {
	return g.repos.User.FindByUsername(ctx, username)
}

func (g *GormGateway) FindUsersByIDs(ctx context.Context, ids []string) ([]model.User, error) {
	return g.repos.User.FindByIDs(ctx, ids)
}

func (g *GormGateway) UpdateDisplayName(ctx context.Context, id, displayName string) error {
	return g.repos.User.UpdateDisplayName(ctx, id, displayName)
}

func (g *GormGateway) TouchLastSeen(ctx context.Context, id string, at time.Time) error {
	return g.repos.User.UpdateLastSeen(ctx, id, at)
}

func (g *GormGateway) EnsureRoom(ctx context.Context, id string) (*model.Room, bool, error) {
	if room, err := g.repos.Room.FindByID(ctx, id); err == nil {
		return room, false, nil
	} else if !errorx.IsNotFound(err) {
		return nil, false, err
	}
	// 并发补建时 DoNothing 不插入，RowsAffected 为 0 的一方不算创建者
	created, err := g.repos.Room.CreateIfAbsent(ctx, &model.Room{ID: id, IsGroup: true, CreatedAt: now()})
	if err != nil {
		return nil, false, err
	}
	room, err := g.repos.Room.FindByID(ctx, id)
	if err != nil {
		return nil, false, err
	}
	return room, created, nil
}

func (g *GormGateway) FindRoom(ctx context.Context, id string) (*model.Room, error) {
	return g.repos.Room.FindByID(ctx, id)
}

func (g *GormGateway) FindRoomsByIDs(ctx context.Context, ids []string) ([]model.Room, error) {
	return g.repos.Room.FindByIDs(ctx, ids)
}

func (g *GormGateway) FindDirectRoomBetween(ctx context.Context, userA, userB string) (*model.Room, error) {
	return g.repos.Room.FindByDirectKey(ctx, model.DirectKeyOf(userA, userB))
}

func (g *GormGateway) StartDirectRoom(ctx context.Context, userA, userB string) (*model.Room, bool, error) {
	if userA == userB {
		return nil, false, errorx.New(errorx.CodeInvalidParam, "不能和自己创建单聊")
	}
	key := model.DirectKeyOf(userA, userB)
	if room, err := g.repos.Room.FindByDirectKey(ctx, key); err == nil {
		return room, false, nil
	} else if !errorx.IsNotFound(err) {
		return nil, false, err
	}

	room := &model.Room{ID: uuid.NewString(), IsGroup: false, DirectKey: &key, CreatedAt: now()}
	err := g.repos.Transaction(ctx, func(tx *repository.Repositories) error {
		if err := tx.Room.Create(ctx, room); err != nil {
			return err
		}
		for _, uid := range []string{userA, userB} {
			if err := tx.Member.Create(ctx, &model.RoomMember{UserID: uid, RoomID: room.ID, Role: constants.ROLE_MEMBER, CreatedAt: now()}); err != nil {
				return err
			}
		}
		return nil
	})
	if err == nil {
		return room, true, nil
	}
	// 对方同时发起，唯一键 direct_key 冲突，读回已提交的那一间
	if errorx.IsConflict(err) {
		existing, findErr := g.repos.Room.FindByDirectKey(ctx, key)
		if findErr != nil {
			return nil, false, findErr
		}
		zap.L().Debug("direct room race resolved", zap.String("room_id", existing.ID))
		return existing, false, nil
	}
	return nil, false, err
}

func (g *GormGateway) CreateGroupRoom(ctx context.Context, name, ownerID string, memberIDs []string) (*model.Room, error) {
	room := &model.Room{ID: uuid.NewString(), Name: name, IsGroup: true, CreatedAt: now()}
	err := g.repos.Transaction(ctx, func(tx *repository.Repositories) error {
		if err := tx.Room.Create(ctx, room); err != nil {
			return err
		}
		if err := tx.Member.Create(ctx, &model.RoomMember{UserID: ownerID, RoomID: room.ID, Role: constants.ROLE_OWNER, CreatedAt: now()}); err != nil {
			return err
		}
		for _, uid := range dedupe(memberIDs, ownerID) {
			if err := tx.Member.Create(ctx, &model.RoomMember{UserID: uid, RoomID: room.ID, Role: constants.ROLE_MEMBER, CreatedAt: now()}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return room, nil
}

func (g *GormGateway) AddMembership(ctx context.Context, userID, roomID, role string) (bool, error) {
	if role == "" {
		role = constants.ROLE_MEMBER
	}
	return g.repos.Member.CreateIfAbsent(ctx, &model.RoomMember{UserID: userID, RoomID: roomID, Role: role, CreatedAt: now()})
}

func (g *GormGateway) IsMember(ctx context.Context, userID, roomID string) (bool, error) {
	return g.repos.Member.Exists(ctx, userID, roomID)
}

func (g *GormGateway) ListMemberships(ctx context.Context, userID string) ([]model.RoomMember, error) {
	return g.repos.Member.FindByUser(ctx, userID)
}

func (g *GormGateway) ListRoomMembers(ctx context.Context, roomID string) ([]model.RoomMember, error) {
	return g.repos.Member.FindByRoom(ctx, roomID)
}

func (g *GormGateway) InsertMessageIdempotent(ctx context.Context, in NewMessage) (*model.Message, bool, error) {
	if in.ClientMsgID != "" {
		existing, err := g.repos.Message.FindByClientMsgID(ctx, in.RoomID, in.ClientMsgID)
		if err == nil {
			return existing, true, nil
		}
		if !errorx.IsNotFound(err) {
			return nil, false, err
		}
	}

	msg := &model.Message{
		ID:        snowflake.GenerateIDString(),
		RoomID:    in.RoomID,
		SenderID:  in.SenderID,
		Content:   in.Content,
		ReplyToID: in.ReplyToID,
		CreatedAt: now(),
	}
	if in.ClientMsgID != "" {
		clientID := in.ClientMsgID
		msg.ClientMsgID = &clientID
	}
	err := g.repos.Message.Create(ctx, msg)
	if err == nil {
		return msg, false, nil
	}
	// 并发重试撞上唯一索引，返回先落库的那条
	if errorx.IsConflict(err) && in.ClientMsgID != "" {
		existing, findErr := g.repos.Message.FindByClientMsgID(ctx, in.RoomID, in.ClientMsgID)
		if findErr != nil {
			return nil, false, findErr
		}
		return existing, true, nil
	}
	return nil, false, err
}

func (g *GormGateway) FindMessage(ctx context.Context, id string) (*model.Message, error) {
	return g.repos.Message.FindByID(ctx, id)
}

func (g *GormGateway) ListRecentMessages(ctx context.Context, roomID string, limit int) ([]model.Message, error) {
	return g.repos.Message.FindRecent(ctx, roomID, limit)
}

// ToggleReaction 同一用户对同一消息只有一行回应
// 为什么不一上来就 SELECT ... FOR UPDATE：行不存在时 InnoDB 加的是间隙锁，
// 几个用户同时给同一条消息点第一个表情，会互相等对方的插入意向锁而死锁
//  1. 先不加锁读一次，没有记录就直接 INSERT ... ON DUPLICATE KEY UPDATE，不经过间隙锁
//  2. 已有记录才进事务加行锁，同表情删除，不同表情覆盖
//  3. 仍然撞上死锁时 InnoDB 已回滚，整体重试一次
func (g *GormGateway) ToggleReaction(ctx context.Context, messageID, userID, emoji string) (ReactionAction, error) {
	action, err := g.toggleReaction(ctx, messageID, userID, emoji)
	if repository.IsDeadlock(err) {
		zap.L().Warn("reaction toggle deadlock, retrying",
			zap.String("message_id", messageID), zap.String("user_id", userID))
		action, err = g.toggleReaction(ctx, messageID, userID, emoji)
	}
	return action, err
}

func (g *GormGateway) toggleReaction(ctx context.Context, messageID, userID, emoji string) (ReactionAction, error) {
	if _, err := g.repos.Reaction.Find(ctx, messageID, userID); errorx.IsNotFound(err) {
		if err := g.upsertReaction(ctx, g.repos, messageID, userID, emoji); err != nil {
			return "", err
		}
		return ReactionAdded, nil
	} else if err != nil {
		return "", err
	}

	var action ReactionAction
	err := g.repos.Transaction(ctx, func(tx *repository.Repositories) error {
		existing, err := tx.Reaction.FindForUpdate(ctx, messageID, userID)
		if err != nil && !errorx.IsNotFound(err) {
			return err
		}
		if existing != nil && existing.Emoji == emoji {
			action = ReactionRemoved
			return tx.Reaction.Delete(ctx, messageID, userID)
		}
		// 表情不同，或者两次读取之间已被删掉，都按新增处理
		action = ReactionAdded
		return g.upsertReaction(ctx, tx, messageID, userID, emoji)
	})
	if err != nil {
		return "", err
	}
	return action, nil
}

func (g *GormGateway) upsertReaction(ctx context.Context, repos *repository.Repositories, messageID, userID, emoji string) error {
	ts := now()
	return repos.Reaction.Upsert(ctx, &model.Reaction{MessageID: messageID, UserID: userID, Emoji: emoji, CreatedAt: ts, UpdatedAt: ts})
}

func (g *GormGateway) ListReactions(ctx context.Context, messageID string) ([]model.ReactionGroup, error) {
	rows, err := g.repos.Reaction.FindByMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}
	return model.AggregateReactions(rows), nil
}

func (g *GormGateway) ListReactionsForMessages(ctx context.Context, messageIDs []string) (map[string][]model.ReactionGroup, error) {
	rows, err := g.repos.Reaction.FindByMessages(ctx, messageIDs)
	if err != nil {
		return nil, err
	}
	return groupByMessage(rows), nil
}

func (g *GormGateway) Ping(ctx context.Context) error {
	sqlDB, err := g.repos.DB().DB()
	if err != nil {
		return errorx.Wrap(err, errorx.CodeDBError, "获取数据库连接")
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return errorx.Wrap(err, errorx.CodeDBError, "数据库不可用")
	}
	return nil
}

// dedupe 去重并剔除 exclude
func dedupe(ids []string, exclude string) []string {
	seen := map[string]bool{exclude: true}
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

var _ Gateway = (*GormGateway)(nil)
