package gateway

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"roomchat_server/internal/model"
	"roomchat_server/pkg/errorx"

	"github.com/google/uuid"
)

// runContract 对任意 Gateway 实现跑同一组行为用例
// 所有 id 都带随机后缀，可以在共享数据库上重复执行
func runContract(t *testing.T, gw Gateway) {
	ctx := context.Background()
	suffix := uuid.NewString()[:8]
	alice := "alice-" + suffix
	bob := "bob-" + suffix

	for _, u := range []*model.User{
		{ID: alice, Username: "alice_" + suffix, RawPassword: "pw12345678"},
		{ID: bob, Username: "bob_" + suffix, RawPassword: "pw12345678"},
	} {
		if err := gw.CreateUser(ctx, u); err != nil {
			t.Fatalf("CreateUser(%s): %v", u.ID, err)
		}
	}

	t.Run("duplicate username conflicts", func(t *testing.T) {
		err := gw.CreateUser(ctx, &model.User{ID: "other-" + suffix, Username: "alice_" + suffix})
		if !errorx.IsConflict(err) {
			t.Fatalf("expected conflict, got %v", err)
		}
		u, err := gw.FindUserByUsername(ctx, "alice_"+suffix)
		if err != nil || !u.CheckPassword("pw12345678") {
			t.Fatalf("stored user lost password hash: %v", err)
		}
	})

	t.Run("upsert user is defensive", func(t *testing.T) {
		if err := gw.UpsertUser(ctx, alice, "ignored"); err != nil {
			t.Fatalf("UpsertUser existing: %v", err)
		}
		ghost := "ghost-" + suffix
		if err := gw.UpsertUser(ctx, ghost, "ghost_"+suffix); err != nil {
			t.Fatalf("UpsertUser new: %v", err)
		}
		if _, err := gw.FindUserByID(ctx, ghost); err != nil {
			t.Fatalf("upserted user missing: %v", err)
		}
	})

	var dmRoom *model.Room
	t.Run("concurrent DM creation yields one room", func(t *testing.T) {
		var wg sync.WaitGroup
		rooms := make([]*model.Room, 2)
		errs := make([]error, 2)
		for i, pair := range [][2]string{{alice, bob}, {bob, alice}} {
			wg.Add(1)
			go func(i int, a, b string) {
				defer wg.Done()
				rooms[i], _, errs[i] = gw.StartDirectRoom(ctx, a, b)
			}(i, pair[0], pair[1])
		}
		wg.Wait()
		for _, err := range errs {
			if err != nil {
				t.Fatalf("StartDirectRoom: %v", err)
			}
		}
		if rooms[0].ID != rooms[1].ID {
			t.Fatalf("two DM rooms created: %s %s", rooms[0].ID, rooms[1].ID)
		}
		if rooms[0].IsGroup {
			t.Fatalf("DM room marked as group")
		}
		members, err := gw.ListRoomMembers(ctx, rooms[0].ID)
		if err != nil || len(members) != 2 {
			t.Fatalf("DM members = %v, err=%v", members, err)
		}
		again, created, err := gw.StartDirectRoom(ctx, alice, bob)
		if err != nil || created || again.ID != rooms[0].ID {
			t.Fatalf("second StartDirectRoom: room=%v created=%v err=%v", again, created, err)
		}
		found, err := gw.FindDirectRoomBetween(ctx, bob, alice)
		if err != nil || found.ID != rooms[0].ID {
			t.Fatalf("FindDirectRoomBetween: %v %v", found, err)
		}
		dmRoom = rooms[0]
	})

	t.Run("self DM rejected", func(t *testing.T) {
		if _, _, err := gw.StartDirectRoom(ctx, alice, alice); errorx.GetCode(err) != errorx.CodeInvalidParam {
			t.Fatalf("expected invalid param, got %v", err)
		}
	})

	t.Run("idempotent insert", func(t *testing.T) {
		in := NewMessage{RoomID: dmRoom.ID, SenderID: alice, Content: "hi", ClientMsgID: "c1"}
		first, dup, err := gw.InsertMessageIdempotent(ctx, in)
		if err != nil || dup {
			t.Fatalf("first insert: dup=%v err=%v", dup, err)
		}
		second, dup, err := gw.InsertMessageIdempotent(ctx, in)
		if err != nil || !dup || second.ID != first.ID {
			t.Fatalf("second insert: id=%s dup=%v err=%v, want id=%s", second.ID, dup, err, first.ID)
		}
		recent, err := gw.ListRecentMessages(ctx, dmRoom.ID, 40)
		if err != nil || len(recent) != 1 {
			t.Fatalf("recent = %d messages, err=%v", len(recent), err)
		}
	})

	t.Run("recent messages oldest first and bounded", func(t *testing.T) {
		room, err := gw.CreateGroupRoom(ctx, "g-"+suffix, alice, []string{bob, alice})
		if err != nil {
			t.Fatalf("CreateGroupRoom: %v", err)
		}
		members, _ := gw.ListRoomMembers(ctx, room.ID)
		if len(members) != 2 || members[0].Role != "owner" {
			t.Fatalf("group members = %+v", members)
		}
		for _, c := range []string{"1", "2", "3"} {
			if _, _, err := gw.InsertMessageIdempotent(ctx, NewMessage{RoomID: room.ID, SenderID: bob, Content: c, ClientMsgID: "k" + c}); err != nil {
				t.Fatalf("insert %s: %v", c, err)
			}
		}
		recent, err := gw.ListRecentMessages(ctx, room.ID, 2)
		if err != nil || len(recent) != 2 || recent[0].Content != "2" || recent[1].Content != "3" {
			t.Fatalf("recent = %+v err=%v", recent, err)
		}
	})

	t.Run("reaction toggle", func(t *testing.T) {
		msg, _, err := gw.InsertMessageIdempotent(ctx, NewMessage{RoomID: dmRoom.ID, SenderID: alice, Content: "react me", ClientMsgID: "r1"})
		if err != nil {
			t.Fatalf("insert: %v", err)
		}
		if a, err := gw.ToggleReaction(ctx, msg.ID, bob, "👍"); err != nil || a != ReactionAdded {
			t.Fatalf("toggle on: %v %v", a, err)
		}
		if a, err := gw.ToggleReaction(ctx, msg.ID, bob, "👍"); err != nil || a != ReactionRemoved {
			t.Fatalf("toggle off: %v %v", a, err)
		}
		groups, _ := gw.ListReactions(ctx, msg.ID)
		if len(groups) != 0 {
			t.Fatalf("reactions after toggle off = %+v", groups)
		}
		_, _ = gw.ToggleReaction(ctx, msg.ID, bob, "👍")
		if a, err := gw.ToggleReaction(ctx, msg.ID, bob, "🎉"); err != nil || a != ReactionAdded {
			t.Fatalf("replace: %v %v", a, err)
		}
		groups, _ = gw.ListReactions(ctx, msg.ID)
		if len(groups) != 1 || groups[0].Emoji != "🎉" || groups[0].Count != 1 || groups[0].By[0] != bob {
			t.Fatalf("reactions after replace = %+v", groups)
		}
		byMsg, err := gw.ListReactionsForMessages(ctx, []string{msg.ID})
		if err != nil || len(byMsg[msg.ID]) != 1 {
			t.Fatalf("ListReactionsForMessages = %+v err=%v", byMsg, err)
		}
	})

	t.Run("concurrent first reactions all land", func(t *testing.T) {
		msg, _, err := gw.InsertMessageIdempotent(ctx, NewMessage{RoomID: dmRoom.ID, SenderID: alice, Content: "popular", ClientMsgID: "r2"})
		if err != nil {
			t.Fatalf("insert: %v", err)
		}
		const n = 8
		users := make([]string, n)
		for i := range users {
			users[i] = fmt.Sprintf("fan%d-%s", i, suffix)
			if err := gw.UpsertUser(ctx, users[i], ""); err != nil {
				t.Fatalf("UpsertUser: %v", err)
			}
		}
		var wg sync.WaitGroup
		errs := make(chan error, n)
		for _, u := range users {
			wg.Add(1)
			go func(u string) {
				defer wg.Done()
				action, err := gw.ToggleReaction(ctx, msg.ID, u, "🔥")
				if err == nil && action != ReactionAdded {
					err = fmt.Errorf("user %s got %s", u, action)
				}
				errs <- err
			}(u)
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			if err != nil {
				t.Fatalf("concurrent toggle: %v", err)
			}
		}
		groups, _ := gw.ListReactions(ctx, msg.ID)
		if len(groups) != 1 || groups[0].Count != n {
			t.Fatalf("reactions = %+v, want %d x 🔥", groups, n)
		}
	})

	t.Run("membership is idempotent", func(t *testing.T) {
		room, created, err := gw.EnsureRoom(ctx, "adhoc-"+suffix)
		if err != nil || !created || !room.IsGroup {
			t.Fatalf("EnsureRoom: %+v created=%v err=%v", room, created, err)
		}
		if again, created, err := gw.EnsureRoom(ctx, room.ID); err != nil || again.ID != room.ID || created {
			t.Fatalf("EnsureRoom again: %v created=%v err=%v", again, created, err)
		}
		added, err := gw.AddMembership(ctx, bob, room.ID, "")
		if err != nil || !added {
			t.Fatalf("AddMembership: %v %v", added, err)
		}
		added, err = gw.AddMembership(ctx, bob, room.ID, "")
		if err != nil || added {
			t.Fatalf("AddMembership twice: %v %v", added, err)
		}
		ok, _ := gw.IsMember(ctx, bob, room.ID)
		notOK, _ := gw.IsMember(ctx, alice, room.ID)
		if !ok || notOK {
			t.Fatalf("IsMember mismatch: bob=%v alice=%v", ok, notOK)
		}
		list, _ := gw.ListMemberships(ctx, bob)
		if len(list) < 3 {
			t.Fatalf("bob memberships = %d, want >= 3", len(list))
		}
	})

	t.Run("not found is typed", func(t *testing.T) {
		if _, err := gw.FindMessage(ctx, "missing-"+suffix); !errorx.IsNotFound(err) {
			t.Fatalf("expected not found, got %v", err)
		}
	})
}
