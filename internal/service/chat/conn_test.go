package chat

import (
	"testing"

	"github.com/gorilla/websocket"
)

func TestConnDropOldest(t *testing.T) {
	c := NewConn("c1", "alice", 2, PolicyDropOldest)
	for _, f := range []string{"a", "b", "c"} {
		if !c.Enqueue([]byte(f)) {
			t.Fatalf("enqueue %s rejected", f)
		}
	}
	got := string(<-c.Outbound()) + string(<-c.Outbound())
	if got != "bc" {
		t.Fatalf("queue = %q, want oldest frame dropped", got)
	}
}

func TestConnDisconnectPolicy(t *testing.T) {
	c := NewConn("c1", "alice", 1, PolicyDisconnect)
	if !c.Enqueue([]byte("a")) {
		t.Fatalf("first frame should fit")
	}
	if c.Enqueue([]byte("b")) {
		t.Fatalf("overflow should be rejected")
	}
	select {
	case <-c.Done():
	default:
		t.Fatalf("slow connection should be closed")
	}
	if code := c.CloseCode(); code != websocket.ClosePolicyViolation {
		t.Fatalf("close code = %d, want %d", code, websocket.ClosePolicyViolation)
	}
	if c.Enqueue([]byte("c")) {
		t.Fatalf("enqueue after close should fail")
	}
}

func TestConnFirstCloseCodeWins(t *testing.T) {
	c := NewConn("c1", "alice", 1, PolicyDropOldest)
	c.CloseWith(websocket.CloseGoingAway)
	c.Close()
	if code := c.CloseCode(); code != websocket.CloseGoingAway {
		t.Fatalf("close code = %d, want going away", code)
	}
}

func TestParseOverflowPolicy(t *testing.T) {
	if ParseOverflowPolicy("disconnect") != PolicyDisconnect {
		t.Fatalf("disconnect not parsed")
	}
	if ParseOverflowPolicy("whatever") != PolicyDropOldest {
		t.Fatalf("unknown policy should fall back to drop_oldest")
	}
}
