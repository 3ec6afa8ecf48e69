package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaultsWhenFileMissing(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != 8080 || cfg.WS.Path != "/ws" || cfg.WS.PingPeriod != 54*time.Second {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if cfg.Store.Driver != "memory" || cfg.Relay.ChatRateLimit != 10 {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
}

func TestLoadFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := []byte("port: 9000\nws:\n  ping_period: 10s\n  pong_wait: 15s\nstore:\n  driver: sqlite\n  dsn: /tmp/x.db\n")
	if err := os.WriteFile(path, body, 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("WATCHPARTY_RELAY_KICK_SLOW_PEERS", "true")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != 9000 || cfg.WS.PingPeriod != 10*time.Second || cfg.WS.PongWait != 15*time.Second {
		t.Fatalf("file values not applied: %+v", cfg)
	}
	if cfg.Store.Driver != "sqlite" || cfg.Store.DSN != "/tmp/x.db" {
		t.Fatalf("store = %+v", cfg.Store)
	}
	if !cfg.Relay.KickSlowPeers {
		t.Fatal("env override ignored")
	}
}

func TestValidateRejectsBadTimings(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("ws:\n  ping_period: 90s\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected error when ping_period >= pong_wait")
	}
}
