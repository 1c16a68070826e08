package gateway

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"roomchat_server/internal/model"
	"roomchat_server/pkg/constants"
	"roomchat_server/pkg/errorx"
	"roomchat_server/pkg/util/snowflake"

	"github.com/google/uuid"
)

type memberKey struct{ userID, roomID string }

type reactionKey struct{ messageID, userID string }

type clientKey struct{ roomID, clientMsgID string }

// MemoryGateway 单进程内存实现，开发模式和测试使用
// 一把互斥锁覆盖全部表，每个方法即一个原子单元
type MemoryGateway struct {
	mu sync.Mutex

	users      map[string]*model.User
	usernames  map[string]string // username -> id
	rooms      map[string]*model.Room
	directKeys map[string]string // direct_key -> room id
	members    map[memberKey]*model.RoomMember
	memberSeq  uint
	messages   map[string]*model.Message
	byRoom     map[string][]*model.Message
	byClientID map[clientKey]*model.Message
	reactions  map[reactionKey]*model.Reaction
}

// NewMemoryGateway 创建内存网关
func NewMemoryGateway() *MemoryGateway {
	return &MemoryGateway{
		users:      make(map[string]*model.User),
		usernames:  make(map[string]string),
		rooms:      make(map[string]*model.Room),
		directKeys: make(map[string]string),
		members:    make(map[memberKey]*model.RoomMember),
		messages:   make(map[string]*model.Message),
		byRoom:     make(map[string][]*model.Message),
		byClientID: make(map[clientKey]*model.Message),
		reactions:  make(map[reactionKey]*model.Reaction),
	}
}

func notFound(format string, args ...any) error {
	return errorx.Newf(errorx.CodeNotFound, format, args...)
}

func (m *MemoryGateway) UpsertUser(ctx context.Context, id, usernameHint string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[id]; ok {
		return nil
	}
	name := strings.ToLower(hintUsername(id, usernameHint))
	if _, taken := m.usernames[name]; taken {
		name = hintUsername(id, "")
	}
	ts := now()
	m.users[id] = &model.User{ID: id, Username: name, CreatedAt: ts, UpdatedAt: ts}
	m.usernames[name] = id
	return nil
}

func (m *MemoryGateway) CreateUser(ctx context.Context, user *model.User) error {
	if err := user.HashRawPassword(); err != nil {
		return errorx.Wrap(err, errorx.CodeServerBusy, "密码加密失败")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[user.ID]; ok {
		return errorx.Newf(errorx.CodeConflict, "创建用户 id=%s 已存在", user.ID)
	}
	if _, ok := m.usernames[user.Username]; ok {
		return errorx.Newf(errorx.CodeConflict, "创建用户 username=%s 已存在", user.Username)
	}
	ts := now()
	user.CreatedAt, user.UpdatedAt = ts, ts
	cp := *user
	m.users[user.ID] = &cp
	m.usernames[user.Username] = user.ID
	return nil
}

func (m *MemoryGateway) FindUserByID(ctx context.Context, id string) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, notFound("查询用户 id=%s", id)
	}
	cp := *u
	return &cp, nil
}

func (m *MemoryGateway) FindUserByUsername(ctx context.Context, username string) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.usernames[username]
	if !ok {
		return nil, notFound("查询用户 username=%s", username)
	}
	cp := *m.users[id]
	return &cp, nil
}

func (m *MemoryGateway) FindUsersByIDs(ctx context.Context, ids []string) ([]model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.User, 0, len(ids))
	for _, id := range ids {
		if u, ok := m.users[id]; ok {
			out = append(out, *u)
		}
	}
	return out, nil
}

func (m *MemoryGateway) UpdateDisplayName(ctx context.Context, id, displayName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return notFound("更新显示名 id=%s", id)
	}
	u.DisplayName = displayName
	u.UpdatedAt = now()
	return nil
}

func (m *MemoryGateway) TouchLastSeen(ctx context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[id]; ok {
		u.LastSeenAt.Time, u.LastSeenAt.Valid = at, true
	}
	return nil
}

func (m *MemoryGateway) EnsureRoom(ctx context.Context, id string) (*model.Room, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rooms[id]
	if !ok {
		r = &model.Room{ID: id, IsGroup: true, CreatedAt: now()}
		m.rooms[id] = r
	}
	cp := *r
	return &cp, !ok, nil
}

func (m *MemoryGateway) FindRoom(ctx context.Context, id string) (*model.Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rooms[id]
	if !ok {
		return nil, notFound("查询房间 id=%s", id)
	}
	cp := *r
	return &cp, nil
}

func (m *MemoryGateway) FindRoomsByIDs(ctx context.Context, ids []string) ([]model.Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Room, 0, len(ids))
	for _, id := range ids {
		if r, ok := m.rooms[id]; ok {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (m *MemoryGateway) FindDirectRoomBetween(ctx context.Context, userA, userB string) (*model.Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := model.DirectKeyOf(userA, userB)
	id, ok := m.directKeys[key]
	if !ok {
		return nil, notFound("查询单聊 key=%s", key)
	}
	cp := *m.rooms[id]
	return &cp, nil
}

func (m *MemoryGateway) StartDirectRoom(ctx context.Context, userA, userB string) (*model.Room, bool, error) {
	if userA == userB {
		return nil, false, errorx.New(errorx.CodeInvalidParam, "不能和自己创建单聊")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	key := model.DirectKeyOf(userA, userB)
	if id, ok := m.directKeys[key]; ok {
		cp := *m.rooms[id]
		return &cp, false, nil
	}
	k := key
	r := &model.Room{ID: uuid.NewString(), IsGroup: false, DirectKey: &k, CreatedAt: now()}
	m.rooms[r.ID] = r
	m.directKeys[key] = r.ID
	m.addMemberLocked(userA, r.ID, constants.ROLE_MEMBER)
	m.addMemberLocked(userB, r.ID, constants.ROLE_MEMBER)
	cp := *r
	return &cp, true, nil
}

func (m *MemoryGateway) CreateGroupRoom(ctx context.Context, name, ownerID string, memberIDs []string) (*model.Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := &model.Room{ID: uuid.NewString(), Name: name, IsGroup: true, CreatedAt: now()}
	m.rooms[r.ID] = r
	m.addMemberLocked(ownerID, r.ID, constants.ROLE_OWNER)
	for _, uid := range dedupe(memberIDs, ownerID) {
		m.addMemberLocked(uid, r.ID, constants.ROLE_MEMBER)
	}
	cp := *r
	return &cp, nil
}

func (m *MemoryGateway) addMemberLocked(userID, roomID, role string) bool {
	k := memberKey{userID, roomID}
	if _, ok := m.members[k]; ok {
		return false
	}
	m.memberSeq++
	m.members[k] = &model.RoomMember{ID: m.memberSeq, UserID: userID, RoomID: roomID, Role: role, CreatedAt: now()}
	return true
}

func (m *MemoryGateway) AddMembership(ctx context.Context, userID, roomID, role string) (bool, error) {
	if role == "" {
		role = constants.ROLE_MEMBER
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.addMemberLocked(userID, roomID, role), nil
}

func (m *MemoryGateway) IsMember(ctx context.Context, userID, roomID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.members[memberKey{userID, roomID}]
	return ok, nil
}

func (m *MemoryGateway) ListMemberships(ctx context.Context, userID string) ([]model.RoomMember, error) {
	return m.listMembers(func(rm *model.RoomMember) bool { return rm.UserID == userID }), nil
}

func (m *MemoryGateway) ListRoomMembers(ctx context.Context, roomID string) ([]model.RoomMember, error) {
	return m.listMembers(func(rm *model.RoomMember) bool { return rm.RoomID == roomID }), nil
}

func (m *MemoryGateway) listMembers(match func(*model.RoomMember) bool) []model.RoomMember {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.RoomMember, 0)
	for _, rm := range m.members {
		if match(rm) {
			out = append(out, *rm)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *MemoryGateway) InsertMessageIdempotent(ctx context.Context, in NewMessage) (*model.Message, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, errorx.Wrap(err, errorx.CodeDBError, "写入消息超时")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	ck := clientKey{in.RoomID, in.ClientMsgID}
	if in.ClientMsgID != "" {
		if existing, ok := m.byClientID[ck]; ok {
			cp := *existing
			return &cp, true, nil
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
		m.byClientID[ck] = msg
	}
	m.messages[msg.ID] = msg
	m.byRoom[in.RoomID] = append(m.byRoom[in.RoomID], msg)
	cp := *msg
	return &cp, false, nil
}

func (m *MemoryGateway) FindMessage(ctx context.Context, id string) (*model.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg, ok := m.messages[id]
	if !ok {
		return nil, notFound("查询消息 id=%s", id)
	}
	cp := *msg
	return &cp, nil
}

func (m *MemoryGateway) ListRecentMessages(ctx context.Context, roomID string, limit int) ([]model.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := m.byRoom[roomID]
	if limit > 0 && len(list) > limit {
		list = list[len(list)-limit:]
	}
	out := make([]model.Message, len(list))
	for i, msg := range list {
		out[i] = *msg
	}
	return out, nil
}

func (m *MemoryGateway) ToggleReaction(ctx context.Context, messageID, userID, emoji string) (ReactionAction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := reactionKey{messageID, userID}
	if existing, ok := m.reactions[k]; ok && existing.Emoji == emoji {
		delete(m.reactions, k)
		return ReactionRemoved, nil
	}
	m.upsertReactionLocked(messageID, userID, emoji)
	return ReactionAdded, nil
}

func (m *MemoryGateway) upsertReactionLocked(messageID, userID, emoji string) {
	ts := now()
	k := reactionKey{messageID, userID}
	if existing, ok := m.reactions[k]; ok {
		existing.Emoji = emoji
		existing.UpdatedAt = ts
		return
	}
	m.reactions[k] = &model.Reaction{MessageID: messageID, UserID: userID, Emoji: emoji, CreatedAt: ts, UpdatedAt: ts}
}

func (m *MemoryGateway) ListReactions(ctx context.Context, messageID string) ([]model.ReactionGroup, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rows := make([]model.Reaction, 0)
	for k, r := range m.reactions {
		if k.messageID == messageID {
			rows = append(rows, *r)
		}
	}
	return model.AggregateReactions(rows), nil
}

func (m *MemoryGateway) ListReactionsForMessages(ctx context.Context, messageIDs []string) (map[string][]model.ReactionGroup, error) {
	want := make(map[string]bool, len(messageIDs))
	for _, id := range messageIDs {
		want[id] = true
	}
	m.mu.Lock()
	rows := make([]model.Reaction, 0)
	for k, r := range m.reactions {
		if want[k.messageID] {
			rows = append(rows, *r)
		}
	}
	m.mu.Unlock()
	return groupByMessage(rows), nil
}

func (m *MemoryGateway) Ping(ctx context.Context) error {
	return nil
}

var _ Gateway = (*MemoryGateway)(nil)
