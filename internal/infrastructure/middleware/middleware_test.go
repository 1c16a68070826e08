package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"roomchat_server/internal/service/chat"

	"github.com/gin-gonic/gin"
)

type stubVerifier struct{}

func (stubVerifier) Verify(_ context.Context, token string) (*chat.Identity, error) {
	if token != "good" {
		return nil, errors.New("invalid")
	}
	return &chat.Identity{UserID: "U1"}, nil
}

func newEngine(handlers ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/", append(handlers, func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString(ContextUserID))
	})...)
	return r
}

func TestJWTAuth(t *testing.T) {
	r := newEngine(JWTAuth(stubVerifier{}))
	cases := []struct {
		header string
		status int
	}{
		{"", http.StatusUnauthorized},
		{"Token good", http.StatusUnauthorized},
		{"Bearer bad", http.StatusUnauthorized},
		{"Bearer good", http.StatusOK},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if tc.header != "" {
			req.Header.Set("Authorization", tc.header)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		if w.Code != tc.status {
			t.Fatalf("header %q: status = %d, want %d", tc.header, w.Code, tc.status)
		}
		if tc.status == http.StatusOK && w.Body.String() != "U1" {
			t.Fatalf("user id in context = %q", w.Body.String())
		}
	}
}

func TestRateLimitPerClient(t *testing.T) {
	pool := NewLimiterPool(0.001, 2)
	defer pool.Shutdown()
	r := newEngine(RateLimit(pool))

	do := func(ip string) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = ip + ":1234"
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w.Code
	}
	for i := 0; i < 2; i++ {
		if code := do("10.0.0.1"); code != http.StatusOK {
			t.Fatalf("request %d within burst: %d", i, code)
		}
	}
	if code := do("10.0.0.1"); code != http.StatusTooManyRequests {
		t.Fatalf("request over burst: %d, want 429", code)
	}
	if code := do("10.0.0.2"); code != http.StatusOK {
		t.Fatalf("other client limited: %d", code)
	}
}
