package queue

import (
	"context"
	"testing"
	"time"
)

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("PRECHECK_REDIS_ADDR", "localhost:6390")
	t.Setenv("PRECHECK_REDIS_DB", "3")
	t.Setenv("PRECHECK_QUEUE_POLL", "250ms")

	cfg, err := LoadConfigFromEnv()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != "localhost:6390" || cfg.DB != 3 || cfg.Poll != 250*time.Millisecond || cfg.Key != "precheck:tasks" {
		t.Fatalf("unexpected config %+v", cfg)
	}
	if !cfg.Enabled() {
		t.Fatal("expected queue enabled")
	}
}

func TestLoadConfigRejectsBadDB(t *testing.T) {
	t.Setenv("PRECHECK_REDIS_DB", "first")
	if _, err := LoadConfigFromEnv(); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestNewRedisRequiresAddress(t *testing.T) {
	if _, err := NewRedis(context.Background(), Config{}, nil); err == nil {
		t.Fatal("expected error without address")
	}
}

func TestNewRedisUnreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	// Port 1 on loopback refuses connections.
	if _, err := NewRedis(ctx, Config{Addr: "127.0.0.1:1", Poll: time.Second}, nil); err == nil {
		t.Fatal("expected ping failure")
	}
}
