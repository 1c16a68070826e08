// Package room 单聊、群聊的创建与成员管理，会话列表和历史消息查询
// 列表查询走 cache-aside，缓存缺失或不可用时直接读存储
package room

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"time"

	"roomchat_server/internal/dao/gateway"
	myredis "roomchat_server/internal/dao/redis"
	"roomchat_server/internal/dto/request"
	"roomchat_server/internal/dto/respond"
	"roomchat_server/internal/model"
	"roomchat_server/pkg/constants"
	"roomchat_server/pkg/errorx"

	"go.uber.org/zap"
)

// MembershipNotifier 实时层回调：新成员关系需要让在线连接立即订阅房间
type MembershipNotifier interface {
	AttachMembership(ctx context.Context, userID, roomID string)
	Online(ctx context.Context, userID string) bool
}

// Config 缓存与超时参数
type Config struct {
	CacheEnabled   bool
	CacheTTL       time.Duration
	JitterPercent  int
	CacheTimeout   time.Duration
	PersistTimeout time.Duration
	GroupTimeout   time.Duration
	HistoryLimit   int
}

type roomService struct {
	store    gateway.Gateway
	cache    myredis.AsyncCacheService
	notifier MembershipNotifier
	cfg      Config
}

// NewRoomService notifier 可以为 nil（没有实时层时）
func NewRoomService(store gateway.Gateway, cache myredis.AsyncCacheService, notifier MembershipNotifier, cfg Config) *roomService {
	if cache == nil || !cfg.CacheEnabled {
		cache = myredis.NopCache{}
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = constants.HISTORY_LIMIT
	}
	if cfg.CacheTimeout <= 0 {
		cfg.CacheTimeout = constants.CACHE_TIMEOUT
	}
	if cfg.PersistTimeout <= 0 {
		cfg.PersistTimeout = constants.PERSIST_TIMEOUT
	}
	if cfg.GroupTimeout <= 0 {
		cfg.GroupTimeout = constants.GROUP_TIMEOUT
	}
	return &roomService{store: store, cache: cache, notifier: notifier, cfg: cfg}
}

// StartDirect 按用户名发起单聊，同一对用户只会有一个单聊房间
func (s *roomService) StartDirect(ctx context.Context, userID string, req request.StartDirectRequest) (*respond.StartDirectRespond, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.PersistTimeout)
	defer cancel()

	peer, err := s.findUser(ctx, req.Username)
	if err != nil {
		return nil, err
	}
	if peer.ID == userID {
		return nil, errorx.New(errorx.CodeInvalidParam, "不能和自己发起单聊")
	}
	room, created, err := s.store.StartDirectRoom(ctx, userID, peer.ID)
	if err != nil {
		zap.L().Error("发起单聊失败", zap.String("user_id", userID), zap.String("peer_id", peer.ID), zap.Error(err))
		return nil, errorx.ErrServerBusy
	}
	if created {
		s.membershipsCreated(ctx, room.ID, []string{userID, peer.ID})
	}
	return &respond.StartDirectRespond{RoomID: room.ID, Created: created}, nil
}

// CreateGroup 建群：调用者为群主，usernames 对应的用户为普通成员
func (s *roomService) CreateGroup(ctx context.Context, ownerID string, req request.CreateGroupRequest) (*respond.RoomRespond, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.GroupTimeout)
	defer cancel()

	memberIDs, err := s.resolveUsernames(ctx, req.Usernames)
	if err != nil {
		return nil, err
	}
	room, err := s.store.CreateGroupRoom(ctx, strings.TrimSpace(req.Name), ownerID, memberIDs)
	if err != nil {
		zap.L().Error("创建群聊失败", zap.String("owner_id", ownerID), zap.Error(err))
		return nil, errorx.ErrServerBusy
	}
	members, err := s.memberIDs(ctx, room.ID)
	if err != nil {
		return nil, err
	}
	s.membershipsCreated(ctx, room.ID, members)
	return &respond.RoomRespond{RoomID: room.ID, Name: room.Name, IsGroup: room.IsGroup, Members: members}, nil
}

// AddMembers 只有房间成员可以拉人，已是成员的跳过
func (s *roomService) AddMembers(ctx context.Context, userID string, req request.AddMembersRequest) (*respond.AddMembersRespond, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.GroupTimeout)
	defer cancel()

	room, err := s.store.FindRoom(ctx, req.RoomID)
	if err != nil {
		if errorx.IsNotFound(err) {
			return nil, errorx.New(errorx.CodeNotFound, "房间不存在")
		}
		zap.L().Error("查询房间失败", zap.String("room_id", req.RoomID), zap.Error(err))
		return nil, errorx.ErrServerBusy
	}
	if !room.IsGroup {
		return nil, errorx.New(errorx.CodeInvalidParam, "单聊不能添加成员")
	}
	if err := s.requireMember(ctx, userID, room.ID); err != nil {
		return nil, err
	}

	ids, err := s.resolveUsernames(ctx, req.Usernames)
	if err != nil {
		return nil, err
	}
	added := make([]string, 0, len(ids))
	for _, id := range ids {
		ok, err := s.store.AddMembership(ctx, id, room.ID, constants.ROLE_MEMBER)
		if err != nil {
			zap.L().Error("添加成员失败", zap.String("room_id", room.ID), zap.String("user_id", id), zap.Error(err))
			return nil, errorx.ErrServerBusy
		}
		if ok {
			added = append(added, id)
		}
	}
	if len(added) > 0 {
		s.membershipsCreated(ctx, room.ID, added)
	}
	return &respond.AddMembersRespond{RoomID: room.ID, Added: added}, nil
}

// ListConversations 会话列表，按最后一条消息时间倒序
// 缓存中不保存在线状态，读取后实时补上
func (s *roomService) ListConversations(ctx context.Context, userID string) ([]respond.ConversationRespond, error) {
	key := myredis.ConversationListKey(userID)
	var list []respond.ConversationRespond
	if s.readCache(ctx, key, &list) {
		s.fillOnline(ctx, list)
		return list, nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.PersistTimeout)
	defer cancel()
	list, err := s.loadConversations(ctx, userID)
	if err != nil {
		zap.L().Error("加载会话列表失败", zap.String("user_id", userID), zap.Error(err))
		return nil, errorx.ErrServerBusy
	}
	s.writeCache(key, list)
	s.fillOnline(ctx, list)
	return list, nil
}

func (s *roomService) loadConversations(ctx context.Context, userID string) ([]respond.ConversationRespond, error) {
	memberships, err := s.store.ListMemberships(ctx, userID)
	if err != nil {
		return nil, err
	}
	roomIDs := make([]string, 0, len(memberships))
	for _, m := range memberships {
		roomIDs = append(roomIDs, m.RoomID)
	}
	rooms, err := s.store.FindRoomsByIDs(ctx, roomIDs)
	if err != nil {
		return nil, err
	}

	list := make([]respond.ConversationRespond, 0, len(rooms))
	sortKey := make(map[string]time.Time, len(rooms))
	for i := range rooms {
		room := &rooms[i]
		item := respond.ConversationRespond{RoomID: room.ID, Name: room.Name, IsGroup: room.IsGroup}
		sortKey[room.ID] = room.CreatedAt

		if !room.IsGroup {
			peer, err := s.directPeer(ctx, room.ID, userID)
			if err != nil {
				return nil, err
			}
			item.Peer = peer
		}
		last, err := s.store.ListRecentMessages(ctx, room.ID, 1)
		if err != nil {
			return nil, err
		}
		if len(last) == 1 {
			msg := respond.NewMessageRespond(&last[0], nil)
			item.LastMessage = &msg
			sortKey[room.ID] = last[0].CreatedAt
		}
		list = append(list, item)
	}
	sort.SliceStable(list, func(i, j int) bool {
		return sortKey[list[i].RoomID].After(sortKey[list[j].RoomID])
	})
	return list, nil
}

func (s *roomService) directPeer(ctx context.Context, roomID, userID string) (*respond.UserRespond, error) {
	members, err := s.store.ListRoomMembers(ctx, roomID)
	if err != nil {
		return nil, err
	}
	for _, m := range members {
		if m.UserID == userID {
			continue
		}
		users, err := s.store.FindUsersByIDs(ctx, []string{m.UserID})
		if err != nil {
			return nil, err
		}
		if len(users) == 0 {
			return &respond.UserRespond{UserID: m.UserID}, nil
		}
		rsp := respond.NewUserRespond(&users[0])
		return &rsp, nil
	}
	return nil, nil
}

func (s *roomService) fillOnline(ctx context.Context, list []respond.ConversationRespond) {
	if s.notifier == nil {
		return
	}
	for i := range list {
		if list[i].Peer == nil {
			continue
		}
		online := s.notifier.Online(ctx, list[i].Peer.UserID)
		list[i].Peer.Online = &online
	}
}

// ListMessages 最近消息（含回应聚合），仅房间成员可查
func (s *roomService) ListMessages(ctx context.Context, userID string, req request.MessageListRequest) ([]respond.MessageRespond, error) {
	limit := req.Limit
	if limit <= 0 {
		limit = s.cfg.HistoryLimit
	}
	if limit > constants.MAX_HISTORY_LIMIT {
		limit = constants.MAX_HISTORY_LIMIT
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.PersistTimeout)
	defer cancel()
	if err := s.requireMember(ctx, userID, req.RoomID); err != nil {
		return nil, err
	}

	key := myredis.MessageListKey(req.RoomID, limit)
	var list []respond.MessageRespond
	if s.readCache(ctx, key, &list) {
		return list, nil
	}

	messages, err := s.store.ListRecentMessages(ctx, req.RoomID, limit)
	if err != nil {
		zap.L().Error("查询消息失败", zap.String("room_id", req.RoomID), zap.Error(err))
		return nil, errorx.ErrServerBusy
	}
	ids := make([]string, 0, len(messages))
	for _, m := range messages {
		ids = append(ids, m.ID)
	}
	reactions, err := s.store.ListReactionsForMessages(ctx, ids)
	if err != nil {
		zap.L().Error("查询回应失败", zap.String("room_id", req.RoomID), zap.Error(err))
		return nil, errorx.ErrServerBusy
	}
	list = respond.NewMessageListRespond(messages, reactions)
	s.writeCache(key, list)
	return list, nil
}

func (s *roomService) requireMember(ctx context.Context, userID, roomID string) error {
	ok, err := s.store.IsMember(ctx, userID, roomID)
	if err != nil {
		zap.L().Error("成员校验失败", zap.String("user_id", userID), zap.String("room_id", roomID), zap.Error(err))
		return errorx.ErrServerBusy
	}
	if !ok {
		return errorx.ErrForbidden
	}
	return nil
}

func (s *roomService) findUser(ctx context.Context, username string) (*model.User, error) {
	user, err := s.store.FindUserByUsername(ctx, strings.ToLower(strings.TrimSpace(username)))
	if err != nil {
		if errorx.IsNotFound(err) {
			return nil, errorx.Newf(errorx.CodeUserNotExist, "用户 %s 不存在", username)
		}
		zap.L().Error("查询用户失败", zap.String("username", username), zap.Error(err))
		return nil, errorx.ErrServerBusy
	}
	return user, nil
}

func (s *roomService) resolveUsernames(ctx context.Context, usernames []string) ([]string, error) {
	ids := make([]string, 0, len(usernames))
	for _, name := range usernames {
		user, err := s.findUser(ctx, name)
		if err != nil {
			return nil, err
		}
		ids = append(ids, user.ID)
	}
	return ids, nil
}

func (s *roomService) memberIDs(ctx context.Context, roomID string) ([]string, error) {
	members, err := s.store.ListRoomMembers(ctx, roomID)
	if err != nil {
		zap.L().Error("查询成员失败", zap.String("room_id", roomID), zap.Error(err))
		return nil, errorx.ErrServerBusy
	}
	ids := make([]string, 0, len(members))
	for _, m := range members {
		ids = append(ids, m.UserID)
	}
	return ids, nil
}

// membershipsCreated 新成员的在线连接立即订阅房间，并让房间内所有人的会话列表失效
func (s *roomService) membershipsCreated(ctx context.Context, roomID string, userIDs []string) {
	if s.notifier != nil {
		for _, id := range userIDs {
			s.notifier.AttachMembership(ctx, id, roomID)
		}
	}
	s.cache.SubmitTask(func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.CacheTimeout)
		defer cancel()
		members, err := s.store.ListRoomMembers(ctx, roomID)
		if err != nil {
			zap.L().Warn("cache invalidation: list members failed", zap.String("room_id", roomID), zap.Error(err))
			return
		}
		for _, m := range members {
			if err := s.cache.Delete(ctx, myredis.ConversationListKey(m.UserID)); err != nil {
				zap.L().Warn("cache invalidation failed", zap.String("user_id", m.UserID), zap.Error(err))
			}
		}
	})
}

// readCache 命中返回 true；缓存错误按未命中处理
func (s *roomService) readCache(ctx context.Context, key string, dst any) bool {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.CacheTimeout)
	defer cancel()
	raw, err := s.cache.Get(ctx, key)
	if err != nil {
		zap.L().Warn("cache get failed", zap.String("key", key), zap.Error(err))
		return false
	}
	if raw == "" {
		return false
	}
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		zap.L().Warn("cache value corrupted", zap.String("key", key), zap.Error(err))
		return false
	}
	return true
}

// writeCache 异步回填
func (s *roomService) writeCache(key string, value any) {
	raw, err := json.Marshal(value)
	if err != nil {
		return
	}
	s.cache.SubmitTask(func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.CacheTimeout)
		defer cancel()
		if err := s.cache.SetWithJitter(ctx, key, string(raw), s.cfg.CacheTTL, s.cfg.JitterPercent); err != nil {
			zap.L().Warn("cache set failed", zap.String("key", key), zap.Error(err))
		}
	})
}
