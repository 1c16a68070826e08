//go:build integration
// +build integration

package redis

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

func newTestClient(t *testing.T) *redis.Client {
	t.Helper()
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Fatalf("ping redis: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestRedisCacheSetGetDelete(t *testing.T) {
	client := newTestClient(t)
	cache := NewRedisCache(client, 2, 16)
	defer cache.Close()
	ctx := context.Background()
	prefix := "test_" + uuid.NewString() + "_"

	if err := cache.SetWithJitter(ctx, prefix+"a", "1", time.Minute, 20); err != nil {
		t.Fatalf("set: %v", err)
	}
	_ = cache.Set(ctx, prefix+"b", "2", time.Minute)
	if v, _ := cache.Get(ctx, prefix+"a"); v != "1" {
		t.Fatalf("get = %q", v)
	}
	if err := cache.DeleteByPattern(ctx, prefix+"*"); err != nil {
		t.Fatalf("delete by pattern: %v", err)
	}
	if v, _ := cache.Get(ctx, prefix+"b"); v != "" {
		t.Fatalf("key survived pattern delete: %q", v)
	}
}

func TestPresenceCounterAcrossProcesses(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()
	user := "U" + uuid.NewString()
	p1 := NewPresenceCounter(client, "p1", time.Minute)
	p2 := NewPresenceCounter(client, "p2", time.Minute)

	if n, _ := p1.Incr(ctx, user); n != 1 {
		t.Fatalf("first incr total = %d, want 1", n)
	}
	if n, _ := p2.Incr(ctx, user); n != 2 {
		t.Fatalf("second process incr total = %d, want 2", n)
	}
	if n, _ := p1.Decr(ctx, user); n != 1 {
		t.Fatalf("decr total = %d, want 1", n)
	}
	if n, _ := p1.Decr(ctx, user); n != 1 {
		t.Fatalf("extra decr on p1 must not go negative, total = %d", n)
	}
	if n, _ := p2.Decr(ctx, user); n != 0 {
		t.Fatalf("last decr total = %d, want 0", n)
	}
	if n, _ := p1.Count(ctx, user); n != 0 {
		t.Fatalf("count = %d, want 0", n)
	}
}

func TestBackplaneDeliversWithPrefixStripped(t *testing.T) {
	client := newTestClient(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bp := NewBackplane(client, "test_"+uuid.NewString()+":")
	got := make(chan string, 1)
	if err := bp.Subscribe(ctx, func(channel string, payload []byte) {
		got <- channel + "|" + string(payload)
	}); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if err := bp.Publish(ctx, "room:r1", []byte("hello")); err != nil {
		t.Fatalf("publish: %v", err)
	}
	select {
	case m := <-got:
		if m != "room:r1|hello" {
			t.Fatalf("received %q", m)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("no message within 2s")
	}
}
