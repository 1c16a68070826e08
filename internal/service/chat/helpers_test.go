package chat

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"roomchat_server/internal/dao/gateway"
	myredis "roomchat_server/internal/dao/redis"
)

type frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

func newTestServer(t *testing.T, opts Options) (*Server, *gateway.MemoryGateway) {
	t.Helper()
	store := gateway.NewMemoryGateway()
	if opts.ProcessID == "" {
		opts.ProcessID = "p1"
	}
	return NewServer(store, myredis.NopCache{}, LocalBackplane{}, nil, opts), store
}

// openConn 注册连接并丢弃 Open 期间产生的帧（例如自己的上线通知）
func openConn(t *testing.T, s *Server, userID string) *Conn {
	t.Helper()
	conn := s.NewConn(userID)
	if _, err := s.Open(context.Background(), conn); err != nil {
		t.Fatalf("open %s: %v", userID, err)
	}
	drain(conn)
	return conn
}

func drain(c *Conn) {
	for {
		select {
		case <-c.Outbound():
		default:
			return
		}
	}
}

func nextFrame(t *testing.T, c *Conn) frame {
	t.Helper()
	select {
	case raw := <-c.Outbound():
		var f frame
		if err := json.Unmarshal(raw, &f); err != nil {
			t.Fatalf("decode frame %q: %v", raw, err)
		}
		return f
	case <-time.After(time.Second):
		t.Fatalf("conn %s: no frame within 1s", c.UserID)
	}
	return frame{}
}

func expectFrame(t *testing.T, c *Conn, event string, out any) {
	t.Helper()
	f := nextFrame(t, c)
	if f.Event != event {
		t.Fatalf("conn %s: got event %q (%s), want %q", c.UserID, f.Event, f.Data, event)
	}
	if out != nil {
		if err := json.Unmarshal(f.Data, out); err != nil {
			t.Fatalf("decode %s data: %v", event, err)
		}
	}
}

func expectNoFrame(t *testing.T, c *Conn) {
	t.Helper()
	select {
	case raw := <-c.Outbound():
		t.Fatalf("conn %s: unexpected frame %s", c.UserID, raw)
	case <-time.After(50 * time.Millisecond):
	}
}

func mustFrame(t *testing.T, event string, data any) []byte {
	t.Helper()
	raw, err := Encode(event, data)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	return raw
}
