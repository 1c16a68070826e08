package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"roomchat_server/internal/dao/gateway"
	myredis "roomchat_server/internal/dao/redis"
	"roomchat_server/internal/dto/respond"
	"roomchat_server/internal/infrastructure/metrics"
	"roomchat_server/pkg/constants"
	"roomchat_server/pkg/errorx"
	"roomchat_server/pkg/validate"

	"go.uber.org/zap"
)

// EffectKind 决策产生的副作用类型
type EffectKind int

const (
	EffectReply EffectKind = iota
	EffectJoin
	EffectLeave
	EffectSend
	EffectReact
	EffectTyping
	EffectFloodDrop
)

// Effect 由 decide 产生、由 Dispatcher 执行
type Effect struct {
	Kind   EffectKind
	RoomID string

	// EffectReply
	Event string
	Data  any

	Send   *SendPayload
	React  *ReactPayload
	Typing *TypingPayload
}

// decide 纯函数：校验入站事件、做发送频率控制，返回新状态和待执行的副作用
// 不做任何 I/O，成员校验等需要存储的判断留给执行阶段
func decide(st State, in Inbound, now time.Time, floodInterval time.Duration) (State, []Effect) {
	switch in.Event {
	case EventRoomJoin, EventRoomLeave:
		var p RoomPayload
		if detail := decodePayload(in.Data, &p); detail != nil {
			return st, []Effect{replyError(in.Event, p.RoomID, errorx.WireInvalidPayload, detail)}
		}
		kind := EffectJoin
		if in.Event == EventRoomLeave {
			kind = EffectLeave
		}
		return st, []Effect{{Kind: kind, RoomID: p.RoomID}}

	case EventMsgSend:
		var p SendPayload
		if detail := decodePayload(in.Data, &p); detail != nil {
			return st, []Effect{{
				Kind:  EffectReply,
				Event: EventMsgNack,
				Data: NackData{
					ClientMsgID: p.ClientMsgID,
					RoomID:      p.RoomID,
					Code:        errorx.WireInvalidPayload,
					Detail:      detail,
				},
			}}
		}
		if !st.LastSendAt.IsZero() && now.Sub(st.LastSendAt) < floodInterval {
			return st, []Effect{{Kind: EffectFloodDrop, RoomID: p.RoomID}}
		}
		st.LastSendAt = now
		return st, []Effect{{Kind: EffectSend, RoomID: p.RoomID, Send: &p}}

	case EventMsgReact:
		var p ReactPayload
		if detail := decodePayload(in.Data, &p); detail != nil {
			return st, []Effect{{
				Kind:  EffectReply,
				Event: EventMsgReactNack,
				Data: NackData{
					MessageID: p.MessageID,
					RoomID:    p.RoomID,
					Code:      errorx.WireInvalidPayload,
					Detail:    detail,
				},
			}}
		}
		return st, []Effect{{Kind: EffectReact, RoomID: p.RoomID, React: &p}}

	case EventTyping:
		var p TypingPayload
		if detail := decodePayload(in.Data, &p); detail != nil {
			return st, []Effect{replyError(in.Event, p.RoomID, errorx.WireInvalidPayload, detail)}
		}
		return st, []Effect{{Kind: EffectTyping, RoomID: p.RoomID, Typing: &p}}

	case EventAuth:
		// 握手之后重复的 auth 帧直接忽略
		return st, nil

	default:
		return st, []Effect{replyError(in.Event, "", errorx.WireInvalidPayload, map[string]string{"event": "unknown event"})}
	}
}

// decodePayload 反序列化并校验，失败时返回 字段 -> 错误说明
func decodePayload(data json.RawMessage, dst any) map[string]string {
	if len(data) == 0 || string(data) == "null" {
		return map[string]string{"payload": "data is required"}
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return validate.Translate(err)
	}
	return validate.Struct(dst)
}

func replyError(event, roomID, code string, detail map[string]string) Effect {
	return Effect{
		Kind:  EffectReply,
		Event: EventError,
		Data:  ErrorData{Code: code, Event: event, RoomID: roomID, Detail: detail},
	}
}

// DispatcherConfig 调度器参数
type DispatcherConfig struct {
	HistoryLimit   int
	FloodInterval  time.Duration
	PersistTimeout time.Duration
	CacheTimeout   time.Duration
	StrictRoomJoin bool
}

// Dispatcher 实时协议状态机：decide 之后按顺序执行副作用
type Dispatcher struct {
	store    gateway.Gateway
	cache    myredis.AsyncCacheService
	registry *Registry
	hub      *Hub
	seq      *Sequencer
	cfg      DispatcherConfig
	now      func() time.Time
}

func NewDispatcher(store gateway.Gateway, cache myredis.AsyncCacheService, registry *Registry, hub *Hub, cfg DispatcherConfig) *Dispatcher {
	if cache == nil {
		cache = myredis.NopCache{}
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = constants.HISTORY_LIMIT
	}
	if cfg.PersistTimeout <= 0 {
		cfg.PersistTimeout = constants.PERSIST_TIMEOUT
	}
	if cfg.CacheTimeout <= 0 {
		cfg.CacheTimeout = constants.CACHE_TIMEOUT
	}
	// 零值取默认间隔，负数表示关闭频率控制
	if cfg.FloodInterval == 0 {
		cfg.FloodInterval = constants.FLOOD_INTERVAL
	}
	return &Dispatcher{
		store:    store,
		cache:    cache,
		registry: registry,
		hub:      hub,
		seq:      NewSequencer(),
		cfg:      cfg,
		now:      time.Now,
	}
}

// Handle 处理一帧入站数据
// 返回的错误表示该事件的持久化失败，客户端已收到对应的 nack/error
func (d *Dispatcher) Handle(ctx context.Context, conn *Conn, raw []byte) error {
	var in Inbound
	if err := json.Unmarshal(raw, &in); err != nil {
		metrics.InboundEvents.WithLabelValues("malformed").Inc()
		d.hub.Reply(conn, EventError, ErrorData{Code: errorx.WireInvalidPayload, Detail: validate.Translate(err)})
		return nil
	}
	metrics.InboundEvents.WithLabelValues(metricEventLabel(in.Event)).Inc()

	st, ok := d.registry.State(conn.ID)
	if !ok {
		return fmt.Errorf("connection %s is not registered", conn.ID)
	}
	next, effects := decide(st, in, d.now(), d.cfg.FloodInterval)
	if !next.LastSendAt.Equal(st.LastSendAt) {
		d.registry.MarkSend(conn.ID, next.LastSendAt)
	}

	var errs []error
	for _, eff := range effects {
		if err := d.execute(ctx, conn, eff); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (d *Dispatcher) execute(ctx context.Context, conn *Conn, eff Effect) error {
	switch eff.Kind {
	case EffectReply:
		d.hub.Reply(conn, eff.Event, eff.Data)
		return nil
	case EffectJoin:
		return d.join(ctx, conn, eff.RoomID)
	case EffectLeave:
		d.registry.Leave(conn.ID, eff.RoomID)
		return nil
	case EffectSend:
		return d.send(ctx, conn, eff.Send)
	case EffectReact:
		return d.react(ctx, conn, eff.React)
	case EffectTyping:
		return d.hub.Publish(ctx, eff.RoomID, EventTyping, TypingData{
			RoomID:   eff.RoomID,
			UserID:   conn.UserID,
			IsTyping: eff.Typing.IsTyping,
		})
	case EffectFloodDrop:
		metrics.FloodDropped.Inc()
		zap.L().Debug("msg:send dropped by flood control", zap.String("conn_id", conn.ID), zap.String("room_id", eff.RoomID))
		return nil
	default:
		return fmt.Errorf("unknown effect kind %d", eff.Kind)
	}
}

// join 默认放行：房间不存在就建、不是成员就加入；StrictRoomJoin 时只允许已有成员
func (d *Dispatcher) join(ctx context.Context, conn *Conn, roomID string) error {
	ctx, cancel := context.WithTimeout(ctx, d.cfg.PersistTimeout)
	defer cancel()

	if err := d.ensureMembership(ctx, conn.UserID, roomID); err != nil {
		d.hub.Reply(conn, EventError, ErrorData{Code: errorx.WireCode(err), Event: EventRoomJoin, RoomID: roomID})
		if errorx.GetCode(err) == errorx.CodeForbidden || errorx.IsNotFound(err) {
			return nil
		}
		return errorx.Wrapf(err, errorx.GetCode(err), "room:join conn=%s room=%s", conn.ID, roomID)
	}

	d.registry.Join(conn.ID, roomID)

	history, err := d.history(ctx, roomID)
	if err != nil {
		d.hub.Reply(conn, EventError, ErrorData{Code: errorx.WireInternal, Event: EventRoomJoin, RoomID: roomID})
		return errorx.Wrapf(err, errorx.GetCode(err), "load history room=%s", roomID)
	}
	d.hub.Reply(conn, EventRoomHistory, HistoryData{RoomID: roomID, History: history})
	return nil
}

// ensureMembership 放行模式下：
// 1. 补建用户和房间，房间由本次新建时加入者就是 owner
// 2. 私聊房间永远只有两名成员，非成员加入一律 forbidden，不补成员也不给历史
// 3. 群聊房间补一条成员关系，新加入时顺带失效会话列表缓存
func (d *Dispatcher) ensureMembership(ctx context.Context, userID, roomID string) error {
	if d.cfg.StrictRoomJoin {
		if _, err := d.store.FindRoom(ctx, roomID); err != nil {
			return err
		}
		isMember, err := d.store.IsMember(ctx, userID, roomID)
		if err != nil {
			return err
		}
		if !isMember {
			return errorx.ErrForbidden
		}
		return nil
	}

	if err := d.store.UpsertUser(ctx, userID, ""); err != nil {
		return err
	}
	room, created, err := d.store.EnsureRoom(ctx, roomID)
	if err != nil {
		return err
	}
	if !room.IsGroup {
		isMember, err := d.store.IsMember(ctx, userID, roomID)
		if err != nil {
			return err
		}
		if !isMember {
			return errorx.ErrForbidden
		}
		return nil
	}
	role := constants.ROLE_MEMBER
	if created {
		role = constants.ROLE_OWNER
	}
	added, err := d.store.AddMembership(ctx, userID, roomID, role)
	if err != nil {
		return err
	}
	if added {
		d.invalidate(func(ctx context.Context) error {
			return d.cache.Delete(ctx, myredis.ConversationListKey(userID))
		})
	}
	return nil
}

func (d *Dispatcher) history(ctx context.Context, roomID string) ([]respond.MessageRespond, error) {
	messages, err := d.store.ListRecentMessages(ctx, roomID, d.cfg.HistoryLimit)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(messages))
	for _, m := range messages {
		ids = append(ids, m.ID)
	}
	reactions, err := d.store.ListReactionsForMessages(ctx, ids)
	if err != nil {
		return nil, err
	}
	return respond.NewMessageListRespond(messages, reactions), nil
}

// send 1. 补建用户 2. 成员校验 3. 幂等写入 + 广播 4. 私有 ack 5. 失效缓存
// 重复的 clientMsgId 只回 ack，不再广播
func (d *Dispatcher) send(ctx context.Context, conn *Conn, p *SendPayload) error {
	ctx, cancel := context.WithTimeout(ctx, d.cfg.PersistTimeout)
	defer cancel()

	nack := func(code string, detail map[string]string) {
		d.hub.Reply(conn, EventMsgNack, NackData{ClientMsgID: p.ClientMsgID, RoomID: p.RoomID, Code: code, Detail: detail})
	}

	if err := d.store.UpsertUser(ctx, conn.UserID, ""); err != nil {
		nack(errorx.WireInternal, nil)
		return errorx.Wrapf(err, errorx.GetCode(err), "msg:send upsert sender user=%s", conn.UserID)
	}
	isMember, err := d.store.IsMember(ctx, conn.UserID, p.RoomID)
	if err != nil {
		nack(errorx.WireInternal, nil)
		return errorx.Wrapf(err, errorx.GetCode(err), "msg:send membership user=%s room=%s", conn.UserID, p.RoomID)
	}
	if !isMember {
		nack(errorx.WireForbidden, nil)
		return nil
	}
	if p.ReplyToID != nil {
		parent, err := d.store.FindMessage(ctx, *p.ReplyToID)
		if err != nil && !errorx.IsNotFound(err) {
			nack(errorx.WireInternal, nil)
			return errorx.Wrapf(err, errorx.GetCode(err), "msg:send reply target %s", *p.ReplyToID)
		}
		if err != nil || parent.RoomID != p.RoomID {
			nack(errorx.WireNotFound, map[string]string{"replyToId": "message not found in room"})
			return nil
		}
	}

	var (
		msg       *respond.MessageRespond
		duplicate bool
	)
	err = d.seq.Do(p.RoomID, func() error {
		row, dup, err := d.store.InsertMessageIdempotent(ctx, gateway.NewMessage{
			RoomID:      p.RoomID,
			SenderID:    conn.UserID,
			Content:     p.Content,
			ClientMsgID: p.ClientMsgID,
			ReplyToID:   p.ReplyToID,
		})
		if err != nil {
			return err
		}
		rsp := respond.NewMessageRespond(row, nil)
		msg, duplicate = &rsp, dup
		if dup {
			return nil
		}
		return d.hub.Publish(ctx, p.RoomID, EventMsgNew, rsp)
	})
	if err != nil {
		nack(errorx.WireInternal, nil)
		return errorx.Wrapf(err, errorx.GetCode(err), "msg:send persist room=%s client_msg_id=%s", p.RoomID, p.ClientMsgID)
	}

	d.hub.Reply(conn, EventMsgAck, AckData{
		ClientMsgID: p.ClientMsgID,
		ServerID:    msg.ID,
		RoomID:      msg.RoomID,
		CreatedAt:   msg.CreatedAt,
		Duplicate:   duplicate,
	})
	if duplicate {
		return nil
	}

	metrics.PersistedMessages.Inc()
	roomID := p.RoomID
	d.invalidate(func(ctx context.Context) error {
		return d.invalidateRoom(ctx, roomID, true)
	})
	return nil
}

// react 读取-删除/覆盖在存储层的一个事务里完成，广播携带该消息完整的聚合结果
func (d *Dispatcher) react(ctx context.Context, conn *Conn, p *ReactPayload) error {
	ctx, cancel := context.WithTimeout(ctx, d.cfg.PersistTimeout)
	defer cancel()

	nack := func(code string) {
		d.hub.Reply(conn, EventMsgReactNack, NackData{MessageID: p.MessageID, RoomID: p.RoomID, Code: code})
	}

	msg, err := d.store.FindMessage(ctx, p.MessageID)
	if err != nil {
		if errorx.IsNotFound(err) {
			nack(errorx.WireNotFound)
			return nil
		}
		nack(errorx.WireInternal)
		return errorx.Wrapf(err, errorx.GetCode(err), "msg:react find message %s", p.MessageID)
	}
	if msg.RoomID != p.RoomID {
		nack(errorx.WireNotFound)
		return nil
	}
	isMember, err := d.store.IsMember(ctx, conn.UserID, msg.RoomID)
	if err != nil {
		nack(errorx.WireInternal)
		return errorx.Wrapf(err, errorx.GetCode(err), "msg:react membership user=%s room=%s", conn.UserID, msg.RoomID)
	}
	if !isMember {
		nack(errorx.WireForbidden)
		return nil
	}

	var action gateway.ReactionAction
	err = d.seq.Do(msg.RoomID, func() error {
		var err error
		action, err = d.store.ToggleReaction(ctx, msg.ID, conn.UserID, p.Emoji)
		if err != nil {
			return err
		}
		groups, err := d.store.ListReactions(ctx, msg.ID)
		if err != nil {
			return err
		}
		return d.hub.Publish(ctx, msg.RoomID, EventMsgReact, ReactData{
			MessageID: msg.ID,
			RoomID:    msg.RoomID,
			UserID:    conn.UserID,
			Emoji:     p.Emoji,
			Action:    string(action),
			Reactions: groups,
		})
	})
	if err != nil {
		nack(errorx.WireInternal)
		return errorx.Wrapf(err, errorx.GetCode(err), "msg:react toggle message=%s user=%s", msg.ID, conn.UserID)
	}

	d.hub.Reply(conn, EventMsgReactAck, ReactAckData{
		MessageID: msg.ID,
		RoomID:    msg.RoomID,
		Emoji:     p.Emoji,
		Action:    string(action),
	})
	roomID := msg.RoomID
	d.invalidate(func(ctx context.Context) error {
		return d.invalidateRoom(ctx, roomID, false)
	})
	return nil
}

// invalidateRoom 删除房间消息列表缓存，withMembers 时连同全部成员的会话列表
func (d *Dispatcher) invalidateRoom(ctx context.Context, roomID string, withMembers bool) error {
	if err := d.cache.DeleteByPattern(ctx, myredis.MessageListPattern(roomID)); err != nil {
		return err
	}
	if !withMembers {
		return nil
	}
	members, err := d.store.ListRoomMembers(ctx, roomID)
	if err != nil {
		return err
	}
	for _, m := range members {
		if err := d.cache.Delete(ctx, myredis.ConversationListKey(m.UserID)); err != nil {
			return err
		}
	}
	return nil
}

// invalidate 缓存失效异步执行，失败只记日志
func (d *Dispatcher) invalidate(fn func(ctx context.Context) error) {
	d.cache.SubmitTask(func() {
		ctx, cancel := context.WithTimeout(context.Background(), d.cfg.CacheTimeout)
		defer cancel()
		if err := fn(ctx); err != nil {
			zap.L().Warn("cache invalidation failed", zap.Error(err))
		}
	})
}

// metricEventLabel 未知事件名统一记为 unknown，避免标签基数失控
func metricEventLabel(event string) string {
	switch event {
	case EventAuth, EventRoomJoin, EventRoomLeave, EventMsgSend, EventMsgReact, EventTyping:
		return event
	default:
		return "unknown"
	}
}
