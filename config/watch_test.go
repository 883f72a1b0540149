package config

import (
	"context"
	"os"
	"testing"
	"time"
)

func TestWatcherTriggersOnWrite(t *testing.T) {
	path := writeTempConfig(t, validYAML)

	w, err := NewWatcher(path, time.Millisecond)
	if err != nil {
		t.Fatalf("new watcher: %v", err)
	}
	defer w.Stop()

	ch := make(chan AppConfig, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx, func(cfg AppConfig) {
		select {
		case ch <- cfg:
		default:
		}
	}); err != nil {
		t.Fatalf("start watcher: %v", err)
	}

	if err := os.WriteFile(path, []byte(validYAML), 0o644); err != nil {
		t.Fatalf("rewrite config: %v", err)
	}

	select {
	case cfg := <-ch:
		if cfg.Env != "dev" {
			t.Fatalf("unexpected reloaded config: %+v", cfg)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("expected reload callback")
	}
}

func TestWatcherIgnoresInvalidConfig(t *testing.T) {
	path := writeTempConfig(t, validYAML)

	w, err := NewWatcher(path, time.Millisecond)
	if err != nil {
		t.Fatalf("new watcher: %v", err)
	}
	defer w.Stop()

	ch := make(chan AppConfig, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx, func(cfg AppConfig) {
		select {
		case ch <- cfg:
		default:
		}
	}); err != nil {
		t.Fatalf("start watcher: %v", err)
	}

	if err := os.WriteFile(path, []byte("env: ''\n"), 0o644); err != nil {
		t.Fatalf("rewrite config: %v", err)
	}

	select {
	case cfg := <-ch:
		t.Fatalf("invalid config should not reach callback: %+v", cfg)
	case <-time.After(300 * time.Millisecond):
	}
}

func TestWatcherStopIsIdempotent(t *testing.T) {
	path := writeTempConfig(t, validYAML)

	w, err := NewWatcher(path, time.Millisecond)
	if err != nil {
		t.Fatalf("new watcher: %v", err)
	}
	ctx := context.Background()
	if err := w.Start(ctx, nil); err != nil {
		t.Fatalf("start watcher: %v", err)
	}
	if err := w.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
	_ = w.Stop()
}
