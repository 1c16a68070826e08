package logger

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"roomchat_server/internal/config"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func TestInitReplacesGlobal(t *testing.T) {
	cfg := &config.LogConfig{LogPath: t.TempDir(), Level: "debug"}
	if err := Init(cfg, "release"); err != nil {
		t.Fatalf("Init: %v", err)
	}
	defer zap.ReplaceGlobals(zap.NewNop())
	if cfg.FileName != filepath.Join(cfg.LogPath, "app.log") {
		t.Fatalf("FileName = %q", cfg.FileName)
	}
	if !zap.L().Core().Enabled(zap.DebugLevel) {
		t.Fatalf("debug level not enabled on global logger")
	}
}

func TestInitRejectsBadLevel(t *testing.T) {
	if err := Init(&config.LogConfig{LogPath: t.TempDir(), Level: "loud"}, "release"); err == nil {
		t.Fatalf("expected error for unknown level")
	}
}

func TestGinRecoveryReturns500(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(GinLogger(), GinRecovery(false))
	r.GET("/panic", func(c *gin.Context) { panic("boom") })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/panic?access_token=secret", nil))
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestRedactQuery(t *testing.T) {
	if got := redactQuery("a=1&access_token=xyz"); got != "a=1&access_token=***" {
		t.Fatalf("redactQuery = %q", got)
	}
}
