package chat

import (
	"context"
	"errors"
	"testing"
	"time"

	"roomchat_server/pkg/constants"
)

func seedRoom(t *testing.T, s *Server, roomID string, users ...string) {
	t.Helper()
	ctx := context.Background()
	if _, _, err := s.store.EnsureRoom(ctx, roomID); err != nil {
		t.Fatalf("ensure room: %v", err)
	}
	for _, u := range users {
		if err := s.store.UpsertUser(ctx, u, u); err != nil {
			t.Fatalf("upsert %s: %v", u, err)
		}
		if _, err := s.store.AddMembership(ctx, u, roomID, constants.ROLE_MEMBER); err != nil {
			t.Fatalf("add membership %s: %v", u, err)
		}
	}
}

func TestPresenceOnlineOfflineAcrossConnections(t *testing.T) {
	s, store := newTestServer(t, Options{})
	seedRoom(t, s, "r", "alice", "bob")
	bob := openConn(t, s, "bob")

	a1 := openConn(t, s, "alice")
	var p PresenceData
	expectFrame(t, bob, EventPresence, &p)
	if p.UserID != "alice" || !p.Online || p.LastSeen != nil {
		t.Fatalf("presence = %+v, want alice online", p)
	}

	// 第二条连接、关闭其中一条都不会改变在线状态
	a2 := openConn(t, s, "alice")
	expectNoFrame(t, bob)
	s.Close(a1)
	expectNoFrame(t, bob)
	if !s.Online(context.Background(), "alice") {
		t.Fatalf("alice should still be online")
	}

	before := time.Now().Truncate(time.Millisecond)
	s.Close(a2)
	expectFrame(t, bob, EventPresence, &p)
	if p.Online || p.LastSeen == nil || p.LastSeen.Before(before) {
		t.Fatalf("presence = %+v, want offline with lastSeen >= %v", p, before)
	}

	u, err := store.FindUserByID(context.Background(), "alice")
	if err != nil {
		t.Fatalf("find alice: %v", err)
	}
	if !u.LastSeenAt.Valid || !u.LastSeenAt.Time.Equal(*p.LastSeen) {
		t.Fatalf("persisted last seen = %+v, broadcast %v", u.LastSeenAt, *p.LastSeen)
	}
	if s.Online(context.Background(), "alice") {
		t.Fatalf("alice should be offline")
	}
}

func TestOpenSubscribesMemberships(t *testing.T) {
	s, _ := newTestServer(t, Options{})
	seedRoom(t, s, "r1", "alice")
	seedRoom(t, s, "r2", "alice")

	conn := s.NewConn("alice")
	rooms, err := s.Open(context.Background(), conn)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if len(rooms) != 2 || len(s.Registry.RoomsOf(conn.ID)) != 2 {
		t.Fatalf("rooms = %v, registry = %v", rooms, s.Registry.RoomsOf(conn.ID))
	}
	s.Close(conn)
	s.Close(conn)
	if len(s.Registry.All()) != 0 {
		t.Fatalf("connection still registered after close")
	}
}

type failingCounter struct{}

func (failingCounter) Incr(context.Context, string) (int64, error) { return 0, errors.New("down") }

func (failingCounter) Decr(context.Context, string) (int64, error) { return 0, errors.New("down") }

func (failingCounter) Count(context.Context, string) (int64, error) { return 0, errors.New("down") }

// 计数器不可用时按本进程的连接数判断
func TestPresenceFallsBackToLocalCount(t *testing.T) {
	s, _ := newTestServer(t, Options{})
	s.Presence = NewPresence(failingCounter{}, s.store, s.Hub, time.Second)
	seedRoom(t, s, "r", "alice", "bob")
	bob := openConn(t, s, "bob")

	a := openConn(t, s, "alice")
	expectFrame(t, bob, EventPresence, nil)
	s.Close(a)
	var p PresenceData
	expectFrame(t, bob, EventPresence, &p)
	if p.Online {
		t.Fatalf("presence = %+v, want offline", p)
	}
}

func TestShutdownClosesWithGoingAway(t *testing.T) {
	s, _ := newTestServer(t, Options{})
	conn := openConn(t, s, "alice")

	// 模拟网关：Done 之后执行 Close
	go func() {
		<-conn.Done()
		s.Close(conn)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if code := conn.CloseCode(); code != 1001 {
		t.Fatalf("close code = %d, want 1001", code)
	}
}
