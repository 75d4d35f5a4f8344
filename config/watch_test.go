package config

import (
	"context"
	"os"
	"testing"
	"time"
)

func TestWatcherTriggersOnChange(t *testing.T) {
	path := writeTempConfig(t, validConfig)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch := make(chan AppConfig, 1)
	w := Watcher{Path: path, Debounce: 20 * time.Millisecond}
	go func() {
		_ = w.Start(ctx, func(cfg AppConfig) {
			select {
			case ch <- cfg:
			default:
			}
		})
	}()

	// 等 watcher 挂上目录再改文件
	time.Sleep(100 * time.Millisecond)
	if err := os.WriteFile(path, []byte(validConfig), 0o644); err != nil {
		t.Fatalf("rewrite config: %v", err)
	}

	select {
	case cfg := <-ch:
		if cfg.Env != "prod" {
			t.Fatalf("unexpected reloaded config: %+v", cfg)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("expected reload callback")
	}
}

func TestWatcherIgnoresInvalidConfig(t *testing.T) {
	path := writeTempConfig(t, validConfig)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch := make(chan struct{}, 1)
	w := Watcher{Path: path, Debounce: 20 * time.Millisecond}
	go func() {
		_ = w.Start(ctx, func(AppConfig) {
			select {
			case ch <- struct{}{}:
			default:
			}
		})
	}()

	time.Sleep(100 * time.Millisecond)
	// 验证失败的版本不触发回调
	if err := os.WriteFile(path, []byte("env: ''\n"), 0o644); err != nil {
		t.Fatalf("rewrite config: %v", err)
	}

	select {
	case <-ch:
		t.Fatalf("invalid config must not trigger reload")
	case <-time.After(500 * time.Millisecond):
	}
}

func TestWatcherStopsOnCancel(t *testing.T) {
	path := writeTempConfig(t, validConfig)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	w := Watcher{Path: path}
	if err := w.Start(ctx, nil); err == nil {
		t.Fatalf("expected context cancellation error")
	}
}
