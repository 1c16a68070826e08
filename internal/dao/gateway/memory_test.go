package gateway

import (
	"context"
	"sync"
	"testing"
)

func TestMemoryGatewayContract(t *testing.T) {
	runContract(t, NewMemoryGateway())
}

func TestMemoryGatewayConcurrentSendsCollapse(t *testing.T) {
	gw := NewMemoryGateway()
	ctx := context.Background()
	room, _, _ := gw.EnsureRoom(ctx, "r")

	var wg sync.WaitGroup
	ids := make([]string, 16)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			msg, _, err := gw.InsertMessageIdempotent(ctx, NewMessage{RoomID: room.ID, SenderID: "u", Content: "x", ClientMsgID: "same"})
			if err != nil {
				t.Errorf("insert: %v", err)
				return
			}
			ids[i] = msg.ID
		}(i)
	}
	wg.Wait()
	for _, id := range ids[1:] {
		if id != ids[0] {
			t.Fatalf("concurrent retries produced different ids: %v", ids)
		}
	}
	recent, _ := gw.ListRecentMessages(ctx, room.ID, 0)
	if len(recent) != 1 {
		t.Fatalf("persisted %d messages, want 1", len(recent))
	}
}

func TestMemoryGatewayInsertHonoursContext(t *testing.T) {
	gw := NewMemoryGateway()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, _, err := gw.InsertMessageIdempotent(ctx, NewMessage{RoomID: "r", SenderID: "u"}); err == nil {
		t.Fatalf("expected error on cancelled context")
	}
}
