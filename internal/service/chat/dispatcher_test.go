package chat

import (
	"context"
	"encoding/json"
	"reflect"
	"testing"
	"time"

	"roomchat_server/internal/dto/respond"
	"roomchat_server/pkg/constants"
	"roomchat_server/pkg/errorx"
)

func inbound(t *testing.T, event string, data any) Inbound {
	t.Helper()
	raw, err := json.Marshal(data)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return Inbound{Event: event, Data: raw}
}

func TestDecideIsDeterministic(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	st := State{ConnID: "c1", UserID: "alice"}
	in := inbound(t, EventMsgSend, SendPayload{RoomID: "r", Content: "hi", ClientMsgID: "c1"})

	st1, eff1 := decide(st, in, now, 200*time.Millisecond)
	st2, eff2 := decide(st, in, now, 200*time.Millisecond)
	if !reflect.DeepEqual(st1, st2) || !reflect.DeepEqual(eff1, eff2) {
		t.Fatalf("decide is not deterministic")
	}
	if len(eff1) != 1 || eff1[0].Kind != EffectSend || eff1[0].Send.Content != "hi" {
		t.Fatalf("effects = %+v", eff1)
	}
	if !st1.LastSendAt.Equal(now) {
		t.Fatalf("accepted send should update LastSendAt")
	}
}

func TestDecideFloodControl(t *testing.T) {
	now := time.Now()
	st := State{LastSendAt: now.Add(-100 * time.Millisecond)}
	in := inbound(t, EventMsgSend, SendPayload{RoomID: "r", ClientMsgID: "c2"})

	next, eff := decide(st, in, now, 200*time.Millisecond)
	if len(eff) != 1 || eff[0].Kind != EffectFloodDrop {
		t.Fatalf("effects = %+v, want flood drop", eff)
	}
	if !next.LastSendAt.Equal(st.LastSendAt) {
		t.Fatalf("dropped send must not move LastSendAt")
	}

	_, eff = decide(st, in, now.Add(200*time.Millisecond), 200*time.Millisecond)
	if len(eff) != 1 || eff[0].Kind != EffectSend {
		t.Fatalf("send after the interval should pass, got %+v", eff)
	}
}

func TestDecideInvalidPayloads(t *testing.T) {
	now := time.Now()

	_, eff := decide(State{}, inbound(t, EventMsgSend, map[string]any{"roomId": "r"}), now, 0)
	if len(eff) != 1 || eff[0].Event != EventMsgNack {
		t.Fatalf("effects = %+v, want msg:nack", eff)
	}
	nack := eff[0].Data.(NackData)
	if nack.Code != errorx.WireInvalidPayload || nack.Detail["clientMsgId"] == "" {
		t.Fatalf("nack = %+v, want invalid_payload on clientMsgId", nack)
	}

	long := make([]rune, 4001)
	for i := range long {
		long[i] = '字'
	}
	_, eff = decide(State{}, inbound(t, EventMsgSend, SendPayload{RoomID: "r", ClientMsgID: "x", Content: string(long)}), now, 0)
	if len(eff) != 1 || eff[0].Data.(NackData).Detail["content"] == "" {
		t.Fatalf("4001 characters should be rejected, got %+v", eff)
	}

	_, eff = decide(State{}, Inbound{Event: EventRoomJoin}, now, 0)
	if len(eff) != 1 || eff[0].Event != EventError {
		t.Fatalf("missing data should produce error, got %+v", eff)
	}

	_, eff = decide(State{}, inbound(t, "msg:delete", map[string]string{}), now, 0)
	if len(eff) != 1 || eff[0].Data.(ErrorData).Event != "msg:delete" {
		t.Fatalf("unknown event should echo the event name, got %+v", eff)
	}

	if _, eff = decide(State{}, inbound(t, EventAuth, AuthPayload{Token: "x"}), now, 0); len(eff) != 0 {
		t.Fatalf("auth after handshake should be ignored, got %+v", eff)
	}
}

func TestDispatcherJoinSendDuplicate(t *testing.T) {
	// 同一连接连续重发，关掉频率控制
	s, _ := newTestServer(t, Options{FloodInterval: -1})
	alice := openConn(t, s, "alice")
	ctx := context.Background()

	if err := s.Handle(ctx, alice, mustFrame(t, EventRoomJoin, RoomPayload{RoomID: "r"})); err != nil {
		t.Fatalf("join: %v", err)
	}
	var hist HistoryData
	expectFrame(t, alice, EventRoomHistory, &hist)
	if hist.RoomID != "r" || len(hist.History) != 0 {
		t.Fatalf("history = %+v", hist)
	}

	send := mustFrame(t, EventMsgSend, SendPayload{RoomID: "r", Content: "hi", ClientMsgID: "c1"})
	if err := s.Handle(ctx, alice, send); err != nil {
		t.Fatalf("send: %v", err)
	}
	var msg respond.MessageRespond
	expectFrame(t, alice, EventMsgNew, &msg)
	var ack AckData
	expectFrame(t, alice, EventMsgAck, &ack)
	if ack.ServerID != msg.ID || ack.ClientMsgID != "c1" || msg.SenderID != "alice" || msg.Content != "hi" {
		t.Fatalf("ack = %+v msg = %+v", ack, msg)
	}

	// 重试同一个 clientMsgId：只回 ack，不再广播
	if err := s.Handle(ctx, alice, send); err != nil {
		t.Fatalf("resend: %v", err)
	}
	var dup AckData
	expectFrame(t, alice, EventMsgAck, &dup)
	if dup.ServerID != ack.ServerID || !dup.Duplicate {
		t.Fatalf("duplicate ack = %+v, want same server id", dup)
	}
	expectNoFrame(t, alice)

	// 重新加入房间，历史里只有一条
	_ = s.Handle(ctx, alice, mustFrame(t, EventRoomJoin, RoomPayload{RoomID: "r"}))
	expectFrame(t, alice, EventRoomHistory, &hist)
	if len(hist.History) != 1 || hist.History[0].ID != msg.ID {
		t.Fatalf("history after send = %+v", hist.History)
	}
}

func TestDispatcherSendRequiresMembership(t *testing.T) {
	s, _ := newTestServer(t, Options{})
	alice := openConn(t, s, "alice")
	bob := openConn(t, s, "bob")
	ctx := context.Background()

	_ = s.Handle(ctx, bob, mustFrame(t, EventRoomJoin, RoomPayload{RoomID: "secret"}))
	expectFrame(t, bob, EventRoomHistory, nil)

	_ = s.Handle(ctx, alice, mustFrame(t, EventMsgSend, SendPayload{RoomID: "secret", Content: "x", ClientMsgID: "m1"}))
	var nack NackData
	expectFrame(t, alice, EventMsgNack, &nack)
	if nack.Code != errorx.WireForbidden || nack.ClientMsgID != "m1" {
		t.Fatalf("nack = %+v", nack)
	}
	expectNoFrame(t, bob)
}

func TestDispatcherReplyToMustExistInRoom(t *testing.T) {
	s, _ := newTestServer(t, Options{})
	alice := openConn(t, s, "alice")
	ctx := context.Background()
	_ = s.Handle(ctx, alice, mustFrame(t, EventRoomJoin, RoomPayload{RoomID: "r"}))
	expectFrame(t, alice, EventRoomHistory, nil)

	missing := "123"
	_ = s.Handle(ctx, alice, mustFrame(t, EventMsgSend, SendPayload{RoomID: "r", ClientMsgID: "m1", ReplyToID: &missing}))
	var nack NackData
	expectFrame(t, alice, EventMsgNack, &nack)
	if nack.Code != errorx.WireNotFound {
		t.Fatalf("nack = %+v, want not_found", nack)
	}
}

func TestDispatcherReactToggle(t *testing.T) {
	s, _ := newTestServer(t, Options{})
	alice := openConn(t, s, "alice")
	bob := openConn(t, s, "bob")
	ctx := context.Background()
	for _, c := range []*Conn{alice, bob} {
		_ = s.Handle(ctx, c, mustFrame(t, EventRoomJoin, RoomPayload{RoomID: "r"}))
		expectFrame(t, c, EventRoomHistory, nil)
	}

	_ = s.Handle(ctx, alice, mustFrame(t, EventMsgSend, SendPayload{RoomID: "r", Content: "hi", ClientMsgID: "c1"}))
	var msg respond.MessageRespond
	expectFrame(t, alice, EventMsgNew, &msg)
	expectFrame(t, alice, EventMsgAck, nil)
	expectFrame(t, bob, EventMsgNew, nil)

	react := mustFrame(t, EventMsgReact, ReactPayload{MessageID: msg.ID, RoomID: "r", Emoji: "👍"})
	if err := s.Handle(ctx, bob, react); err != nil {
		t.Fatalf("react: %v", err)
	}
	var broadcast ReactData
	expectFrame(t, alice, EventMsgReact, &broadcast)
	if broadcast.Action != "added" || len(broadcast.Reactions) != 1 ||
		broadcast.Reactions[0].Count != 1 || broadcast.Reactions[0].By[0] != "bob" {
		t.Fatalf("react broadcast = %+v", broadcast)
	}
	expectFrame(t, bob, EventMsgReact, nil)
	var ack ReactAckData
	expectFrame(t, bob, EventMsgReactAck, &ack)
	if ack.Action != "added" {
		t.Fatalf("react ack = %+v", ack)
	}

	// 同一个表情再点一次即撤销
	_ = s.Handle(ctx, bob, react)
	expectFrame(t, alice, EventMsgReact, &broadcast)
	if broadcast.Action != "removed" || len(broadcast.Reactions) != 0 {
		t.Fatalf("toggle off broadcast = %+v", broadcast)
	}

	// 房间不匹配按不存在处理
	_ = s.Handle(ctx, bob, mustFrame(t, EventMsgReact, ReactPayload{MessageID: msg.ID, RoomID: "other", Emoji: "👍"}))
	expectFrame(t, bob, EventMsgReact, nil)
	expectFrame(t, bob, EventMsgReactAck, nil)
	var nack NackData
	expectFrame(t, bob, EventMsgReactNack, &nack)
	if nack.Code != errorx.WireNotFound {
		t.Fatalf("nack = %+v", nack)
	}
}

func TestDispatcherStrictJoin(t *testing.T) {
	s, store := newTestServer(t, Options{StrictRoomJoin: true})
	alice := openConn(t, s, "alice")
	ctx := context.Background()

	_ = s.Handle(ctx, alice, mustFrame(t, EventRoomJoin, RoomPayload{RoomID: "nowhere"}))
	var e ErrorData
	expectFrame(t, alice, EventError, &e)
	if e.Code != errorx.WireNotFound || e.RoomID != "nowhere" {
		t.Fatalf("error = %+v", e)
	}

	_, _, _ = store.EnsureRoom(ctx, "closed")
	_ = s.Handle(ctx, alice, mustFrame(t, EventRoomJoin, RoomPayload{RoomID: "closed"}))
	expectFrame(t, alice, EventError, &e)
	if e.Code != errorx.WireForbidden {
		t.Fatalf("error = %+v, want forbidden", e)
	}
}

func TestDispatcherJoinDirectRoom(t *testing.T) {
	s, store := newTestServer(t, Options{})
	ctx := context.Background()
	dm, _, err := store.StartDirectRoom(ctx, "alice", "bob")
	if err != nil {
		t.Fatalf("StartDirectRoom: %v", err)
	}
	alice := openConn(t, s, "alice")
	mallory := openConn(t, s, "mallory")

	// 非成员加入私聊：forbidden，不补成员，也拿不到历史
	_ = s.Handle(ctx, mallory, mustFrame(t, EventRoomJoin, RoomPayload{RoomID: dm.ID}))
	var e ErrorData
	expectFrame(t, mallory, EventError, &e)
	if e.Code != errorx.WireForbidden || e.RoomID != dm.ID {
		t.Fatalf("error = %+v, want forbidden", e)
	}
	expectNoFrame(t, mallory)
	members, _ := store.ListRoomMembers(ctx, dm.ID)
	if len(members) != 2 {
		t.Fatalf("direct room has %d members, want 2", len(members))
	}
	if isMember, _ := store.IsMember(ctx, "mallory", dm.ID); isMember {
		t.Fatalf("mallory must not become a member")
	}

	// 成员本人照常加入
	_ = s.Handle(ctx, alice, mustFrame(t, EventRoomJoin, RoomPayload{RoomID: dm.ID}))
	var hist HistoryData
	expectFrame(t, alice, EventRoomHistory, &hist)
	if hist.RoomID != dm.ID {
		t.Fatalf("history = %+v", hist)
	}
	members, _ = store.ListRoomMembers(ctx, dm.ID)
	if len(members) != 2 {
		t.Fatalf("member join changed membership: %d", len(members))
	}
}

func TestDispatcherJoinCreatesRoomWithOwner(t *testing.T) {
	s, store := newTestServer(t, Options{})
	ctx := context.Background()
	alice := openConn(t, s, "alice")
	bob := openConn(t, s, "bob")

	for _, c := range []*Conn{alice, bob} {
		_ = s.Handle(ctx, c, mustFrame(t, EventRoomJoin, RoomPayload{RoomID: "adhoc"}))
		expectFrame(t, c, EventRoomHistory, nil)
	}

	members, err := store.ListRoomMembers(ctx, "adhoc")
	if err != nil {
		t.Fatalf("ListRoomMembers: %v", err)
	}
	roles := map[string]string{}
	for _, m := range members {
		roles[m.UserID] = m.Role
	}
	if roles["alice"] != constants.ROLE_OWNER || roles["bob"] != constants.ROLE_MEMBER {
		t.Fatalf("roles = %v, want alice owner and bob member", roles)
	}
}

func TestDispatcherFloodControlThroughServer(t *testing.T) {
	s, store := newTestServer(t, Options{FloodInterval: 200 * time.Millisecond})
	ctx := context.Background()
	alice := openConn(t, s, "alice")
	_ = s.Handle(ctx, alice, mustFrame(t, EventRoomJoin, RoomPayload{RoomID: "r"}))
	expectFrame(t, alice, EventRoomHistory, nil)

	for _, id := range []string{"c1", "c2"} {
		if err := s.Handle(ctx, alice, mustFrame(t, EventMsgSend, SendPayload{RoomID: "r", Content: id, ClientMsgID: id})); err != nil {
			t.Fatalf("send %s: %v", id, err)
		}
	}
	var ack AckData
	expectFrame(t, alice, EventMsgNew, nil)
	expectFrame(t, alice, EventMsgAck, &ack)
	if ack.ClientMsgID != "c1" {
		t.Fatalf("ack = %+v, want c1", ack)
	}
	// 间隔内的第二条静默丢弃，没有 ack 也没有 nack
	expectNoFrame(t, alice)

	messages, err := store.ListRecentMessages(ctx, "r", 10)
	if err != nil {
		t.Fatalf("ListRecentMessages: %v", err)
	}
	if len(messages) != 1 || messages[0].ClientMsgID == nil || *messages[0].ClientMsgID != "c1" {
		t.Fatalf("persisted %d messages, want only c1", len(messages))
	}
}

func TestNewDispatcherDefaultsFloodInterval(t *testing.T) {
	d := NewDispatcher(nil, nil, NewRegistry(), nil, DispatcherConfig{})
	if d.cfg.FloodInterval != constants.FLOOD_INTERVAL {
		t.Fatalf("FloodInterval = %v, want %v", d.cfg.FloodInterval, constants.FLOOD_INTERVAL)
	}
	d = NewDispatcher(nil, nil, NewRegistry(), nil, DispatcherConfig{FloodInterval: -1})
	if d.cfg.FloodInterval >= 0 {
		t.Fatalf("negative interval should be kept to disable flood control")
	}
}

func TestDispatcherTypingAndLeave(t *testing.T) {
	s, _ := newTestServer(t, Options{})
	alice := openConn(t, s, "alice")
	bob := openConn(t, s, "bob")
	ctx := context.Background()
	for _, c := range []*Conn{alice, bob} {
		_ = s.Handle(ctx, c, mustFrame(t, EventRoomJoin, RoomPayload{RoomID: "r"}))
		expectFrame(t, c, EventRoomHistory, nil)
	}

	_ = s.Handle(ctx, alice, mustFrame(t, EventTyping, TypingPayload{RoomID: "r", IsTyping: true}))
	var typing TypingData
	expectFrame(t, bob, EventTyping, &typing)
	if typing.UserID != "alice" || !typing.IsTyping {
		t.Fatalf("typing = %+v", typing)
	}
	expectFrame(t, alice, EventTyping, nil)

	_ = s.Handle(ctx, bob, mustFrame(t, EventRoomLeave, RoomPayload{RoomID: "r"}))
	_ = s.Handle(ctx, alice, mustFrame(t, EventTyping, TypingPayload{RoomID: "r"}))
	expectFrame(t, alice, EventTyping, nil)
	expectNoFrame(t, bob)
}

func TestDispatcherMalformedFrame(t *testing.T) {
	s, _ := newTestServer(t, Options{})
	alice := openConn(t, s, "alice")
	if err := s.Handle(context.Background(), alice, []byte("{not json")); err != nil {
		t.Fatalf("malformed frame should not be an error: %v", err)
	}
	var e ErrorData
	expectFrame(t, alice, EventError, &e)
	if e.Code != errorx.WireInvalidPayload {
		t.Fatalf("error = %+v", e)
	}
}
