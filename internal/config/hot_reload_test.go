package config

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	appcfg "orderup-go/config"
)

func writeConfig(t *testing.T, path string, duration int) {
	t.Helper()
	content := []byte("env: dev\nround:\n  durationSeconds: " + strconv.Itoa(duration) + "\n")
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func newReloader(t *testing.T, cooldown time.Duration) (*HotReloader, string) {
	t.Helper()
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	writeConfig(t, configPath, 120)

	cfg := DefaultHotReloadConfig()
	cfg.CooldownTime = cooldown
	reloader, err := NewHotReloader(configPath, cfg, nil)
	if err != nil {
		t.Fatalf("Failed to create hot reloader: %v", err)
	}
	t.Cleanup(func() { _ = reloader.Stop() })
	return reloader, configPath
}

func TestHotReloader_New(t *testing.T) {
	reloader, configPath := newReloader(t, time.Second)
	if reloader.configPath != configPath {
		t.Errorf("Expected config path %s, got %s", configPath, reloader.configPath)
	}
	if !reloader.GetLastReloadTime().IsZero() {
		t.Error("Expected no reload yet")
	}
}

func TestHotReloader_HandleValidChange(t *testing.T) {
	reloader, _ := newReloader(t, 0)

	var got appcfg.AppConfig
	calls := 0
	reloader.SetReloadHandler(func(cfg appcfg.AppConfig) error {
		got = cfg
		calls++
		return nil
	})

	reloader.handleConfigChange()
	if calls != 1 {
		t.Fatalf("Expected 1 handler call, got %d", calls)
	}
	if d := got.GameConfig().Round.Duration; d != 120*time.Second {
		t.Errorf("Expected 120s round, got %s", d)
	}
	if reloads, failures := reloader.Stats(); reloads != 1 || failures != 0 {
		t.Errorf("Unexpected stats: reloads=%d failures=%d", reloads, failures)
	}
}

func TestHotReloader_InvalidConfigNotApplied(t *testing.T) {
	reloader, configPath := newReloader(t, 0)
	if err := os.WriteFile(configPath, []byte("env: dev\norders:\n  maxActive: -1\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	calls := 0
	reloader.SetReloadHandler(func(appcfg.AppConfig) error {
		calls++
		return nil
	})
	var results []bool
	reloader.SetObserver(func(ok bool) { results = append(results, ok) })
	reloader.handleConfigChange()

	if len(results) != 1 || results[0] {
		t.Errorf("Expected one failed observation, got %v", results)
	}
	if calls != 0 {
		t.Errorf("Handler should not see invalid config")
	}
	if _, failures := reloader.Stats(); failures != 1 {
		t.Errorf("Expected 1 failure, got %d", failures)
	}
}

func TestHotReloader_Cooldown(t *testing.T) {
	reloader, _ := newReloader(t, time.Hour)
	calls := 0
	reloader.SetReloadHandler(func(appcfg.AppConfig) error {
		calls++
		return nil
	})

	reloader.handleConfigChange()
	reloader.handleConfigChange()
	if calls != 1 {
		t.Errorf("Expected cooldown to suppress second reload, got %d calls", calls)
	}
}

func TestHotReloader_WatchesFile(t *testing.T) {
	reloader, configPath := newReloader(t, 0)
	ch := make(chan time.Duration, 16)
	reloader.SetReloadHandler(func(cfg appcfg.AppConfig) error {
		select {
		case ch <- cfg.GameConfig().Round.Duration:
		default:
		}
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := reloader.Start(ctx); err != nil {
		t.Fatalf("Failed to start reloader: %v", err)
	}

	writeConfig(t, configPath, 240)
	// 截断与写入可能产生多次事件，等到最终内容被加载
	deadline := time.After(2 * time.Second)
	for done := false; !done; {
		select {
		case d := <-ch:
			done = d == 240*time.Second
		case <-deadline:
			t.Fatal("Expected reload after write")
		}
	}

	if err := reloader.Stop(); err != nil {
		t.Errorf("Failed to stop reloader: %v", err)
	}
}

func TestHotReloader_Disabled(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	writeConfig(t, configPath, 60)
	reloader, err := NewHotReloader(configPath, HotReloadConfig{Enabled: false}, nil)
	if err != nil {
		t.Fatalf("Failed to create hot reloader: %v", err)
	}
	if err := reloader.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := reloader.Stop(); err != nil {
		t.Errorf("Stop: %v", err)
	}
}
