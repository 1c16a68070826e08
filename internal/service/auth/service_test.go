package auth

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	myredis "roomchat_server/internal/dao/redis"
	"roomchat_server/pkg/errorx"
	"roomchat_server/pkg/util/jwt"
)

func TestMain(m *testing.M) {
	jwt.Init("auth-test-secret", 30, 168)
	os.Exit(m.Run())
}

// mapCache 内存版 CacheService，err 非空时所有读操作返回它
type mapCache struct {
	myredis.NopCache
	mu  sync.Mutex
	m   map[string]string
	err error
}

func newMapCache() *mapCache { return &mapCache{m: make(map[string]string)} }

func (c *mapCache) Set(_ context.Context, key, value string, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[key] = value
	return nil
}

func (c *mapCache) Get(_ context.Context, key string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return "", c.err
	}
	return c.m[key], nil
}

func (c *mapCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.m, key)
	return nil
}

func TestVerifyAccessToken(t *testing.T) {
	svc := NewAuthService(newMapCache(), true)
	ctx := context.Background()
	pair, err := svc.Issue(ctx, "U1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	id, err := svc.Verify(ctx, pair.AccessToken)
	if err != nil || id.UserID != "U1" {
		t.Fatalf("Verify = %+v, %v", id, err)
	}
	if id.ExpiresAt.Before(time.Now()) {
		t.Fatalf("expiry in the past: %v", id.ExpiresAt)
	}

	if _, err := svc.Verify(ctx, pair.RefreshToken); errorx.GetCode(err) != errorx.CodeUnauthorized {
		t.Fatalf("refresh token accepted as access token: %v", err)
	}
	if _, err := svc.Verify(ctx, "  "); err == nil {
		t.Fatalf("empty token accepted")
	}
}

func TestVerifyRejectsRevokedSession(t *testing.T) {
	cache := newMapCache()
	svc := NewAuthService(cache, true)
	ctx := context.Background()
	pair, _ := svc.Issue(ctx, "U1")

	if err := svc.Revoke(ctx, "U1"); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if _, err := svc.Verify(ctx, pair.AccessToken); err == nil {
		t.Fatalf("access token of a logged-out user accepted")
	}

	// 缓存不可达时只看令牌本身
	cache.err = errors.New("redis down")
	if _, err := svc.Verify(ctx, pair.AccessToken); err != nil {
		t.Fatalf("cache outage should not reject: %v", err)
	}
}

func TestRotateInvalidatesOldRefreshToken(t *testing.T) {
	svc := NewAuthService(newMapCache(), true)
	ctx := context.Background()
	first, _ := svc.Issue(ctx, "U1")
	// jti 不同即可，签发时间相同没有影响
	second, err := svc.Rotate(ctx, first.RefreshToken)
	if err != nil {
		t.Fatalf("rotate: %v", err)
	}
	if second.RefreshToken == first.RefreshToken {
		t.Fatalf("rotation returned the same refresh token")
	}
	if _, err := svc.Rotate(ctx, first.RefreshToken); err == nil || !strings.Contains(err.Error(), "失效") {
		t.Fatalf("old refresh token still usable: %v", err)
	}
	if _, err := svc.Rotate(ctx, second.RefreshToken); err != nil {
		t.Fatalf("new refresh token rejected: %v", err)
	}
}

func TestWithoutRevocationStoreTokensStayValid(t *testing.T) {
	svc := NewAuthService(myredis.NopCache{}, false)
	ctx := context.Background()
	pair, _ := svc.Issue(ctx, "U1")
	_ = svc.Revoke(ctx, "U1")
	if _, err := svc.Verify(ctx, pair.AccessToken); err != nil {
		t.Fatalf("verify without revocation store: %v", err)
	}
	if _, err := svc.Rotate(ctx, pair.RefreshToken); err != nil {
		t.Fatalf("rotate without revocation store: %v", err)
	}
}
