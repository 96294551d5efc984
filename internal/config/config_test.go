package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	raw := `
server:
  port: "9090"
redis:
  addr: localhost:6379
  ttl: 30m
nats:
  url: nats://localhost:4222
  subject: battle.rooms
battle:
  question_seconds: 15
  answer_settle: 2s
  question_count: 8
log:
  level: debug
  pretty: true
`
	if err := os.WriteFile(path, []byte(raw), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != "9090" || cfg.Redis.Addr != "localhost:6379" || cfg.NATS.Subject != "battle.rooms" {
		t.Fatalf("unexpected config %+v", cfg)
	}
	if cfg.Battle.QuestionSeconds != 15 || cfg.Battle.QuestionCount != 8 || !cfg.Log.Pretty || cfg.Log.Level != "debug" {
		t.Fatalf("unexpected battle/log config %+v %+v", cfg.Battle, cfg.Log)
	}
	if got := TTLDuration(cfg.Redis.TTL, time.Minute); got != 30*time.Minute {
		t.Fatalf("expected 30m, got %v", got)
	}
	if got := TTLDuration(cfg.Battle.TimeoutSettle, time.Second); got != time.Second {
		t.Fatalf("expected fallback, got %v", got)
	}
}

func TestLoadOrDefaultMissingFile(t *testing.T) {
	cfg, err := LoadOrDefault(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("expected missing file tolerated: %v", err)
	}
	if cfg.Server.Port != "" {
		t.Fatalf("expected zero config")
	}
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatalf("expected Load to fail on a missing file")
	}
}

func TestHelpers(t *testing.T) {
	if TTLDuration("bogus", 3*time.Second) != 3*time.Second {
		t.Fatalf("expected fallback on malformed duration")
	}
	if IntOr(0, 10) != 10 || IntOr(4, 10) != 4 {
		t.Fatalf("unexpected IntOr")
	}
}
