package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := `
[mainConfig]
port = 9100

[gatewayConfig]
storeMode = "memory"
floodIntervalMs = 50
overflowPolicy = "disconnect"
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.MainConfig.Port != 9100 {
		t.Fatalf("port = %d", c.MainConfig.Port)
	}
	if c.StoreMode != "memory" || c.OverflowPolicy != "disconnect" {
		t.Fatalf("gateway config not decoded: %+v", c.GatewayConfig)
	}
	if c.FloodInterval() != 50*time.Millisecond {
		t.Fatalf("FloodInterval = %v", c.FloodInterval())
	}
	if c.HistoryLimit != 40 || c.PersistTimeout() != 10*time.Second || c.GroupTimeout() != 15*time.Second {
		t.Fatalf("defaults not applied: %+v", c.GatewayConfig)
	}
	if c.BackplaneMode != "local" || c.JitterPercent != 20 {
		t.Fatalf("defaults not applied: backplane=%q jitter=%d", c.BackplaneMode, c.JitterPercent)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.toml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestConsumerGroupDefaultsToHostAndPort(t *testing.T) {
	c := Default()
	if !strings.HasPrefix(c.ConsumerGroup, "roomchat-") || !strings.HasSuffix(c.ConsumerGroup, "-8000") {
		t.Fatalf("ConsumerGroup = %q", c.ConsumerGroup)
	}
	if again := Default(); again.ConsumerGroup != c.ConsumerGroup {
		t.Fatalf("consumer group not stable across loads: %q vs %q", c.ConsumerGroup, again.ConsumerGroup)
	}
}
