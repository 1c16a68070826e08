package redis

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"roomchat_server/pkg/errorx"
)

func TestJitteredTTLRange(t *testing.T) {
	ttl := time.Minute
	for i := 0; i < 200; i++ {
		got := jitteredTTL(ttl, 20)
		if got < ttl || got >= ttl+12*time.Second {
			t.Fatalf("jitteredTTL = %v, want [1m, 1m12s)", got)
		}
	}
	if got := jitteredTTL(ttl, 0); got != ttl {
		t.Fatalf("zero jitter changed ttl: %v", got)
	}
	if got := jitteredTTL(0, 20); got != 0 {
		t.Fatalf("zero ttl changed: %v", got)
	}
}

func TestCacheKeys(t *testing.T) {
	cases := map[string]string{
		UserTokenKey("U1"):        "user_token:U1",
		ConversationListKey("U1"): "conversation_list_U1",
		MessageListKey("r1", 40):  "message_list_r1_40",
		MessageListPattern("r1"):  "message_list_r1_*",
	}
	for got, want := range cases {
		if got != want {
			t.Fatalf("key = %q, want %q", got, want)
		}
	}
}

func TestWorkerPoolRunsAllTasksBeforeClose(t *testing.T) {
	p := newWorkerPool(2, 4)
	var n int32
	for i := 0; i < 50; i++ {
		p.submit(func() { atomic.AddInt32(&n, 1) })
	}
	p.submit(func() { panic("boom") })
	p.close()
	if got := atomic.LoadInt32(&n); got != 50 {
		t.Fatalf("ran %d tasks, want 50", got)
	}
}

func TestNopCache(t *testing.T) {
	ctx := context.Background()
	var c NopCache
	if err := c.Set(ctx, "k", "v", time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	if v, err := c.Get(ctx, "k"); err != nil || v != "" {
		t.Fatalf("get = %q %v, want miss", v, err)
	}
	if _, err := c.GetOrError(ctx, "k"); !errorx.IsNotFound(err) {
		t.Fatalf("GetOrError err = %v, want not found", err)
	}
	ran := false
	c.SubmitTask(func() { ran = true })
	if !ran {
		t.Fatalf("NopCache.SubmitTask should run synchronously")
	}
}
