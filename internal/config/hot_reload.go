package config

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	appcfg "orderup-go/config"
)

// HotReloadConfig 热更新配置
type HotReloadConfig struct {
	Enabled      bool          // 是否启用热更新
	CooldownTime time.Duration // 冷却时间，避免编辑器连续写入触发多次加载
}

// DefaultHotReloadConfig 默认热更新配置
func DefaultHotReloadConfig() HotReloadConfig {
	return HotReloadConfig{
		Enabled:      true,
		CooldownTime: 2 * time.Second,
	}
}

// ReloadHandler 接收校验通过的新配置。
type ReloadHandler func(cfg appcfg.AppConfig) error

// HotReloader 配置热更新器
type HotReloader struct {
	config     HotReloadConfig
	configPath string
	watcher    *fsnotify.Watcher
	logger     *zap.Logger

	load     func(path string) (appcfg.AppConfig, error)
	handler  ReloadHandler
	observer func(ok bool)

	mu         sync.RWMutex
	lastReload time.Time
	reloads    int
	failures   int
	stopChan   chan struct{}
	doneChan   chan struct{}
	started    bool
}

// NewHotReloader 创建热更新器
func NewHotReloader(configPath string, cfg HotReloadConfig, logger *zap.Logger) (*HotReloader, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &HotReloader{
		config:     cfg,
		configPath: configPath,
		watcher:    watcher,
		logger:     logger.Named("hot_reload"),
		load:       appcfg.LoadWithEnvOverrides,
		stopChan:   make(chan struct{}),
		doneChan:   make(chan struct{}),
	}, nil
}

// SetReloadHandler 设置重载处理函数
func (h *HotReloader) SetReloadHandler(handler ReloadHandler) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.handler = handler
}

// SetObserver 每次重载尝试结束后回调，ok 表示新配置已交给 handler 并被接受
func (h *HotReloader) SetObserver(fn func(ok bool)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.observer = fn
}

func (h *HotReloader) notify(ok bool) {
	if h.observer != nil {
		h.observer(ok)
	}
}

// Start 启动热更新监听
func (h *HotReloader) Start(ctx context.Context) error {
	if !h.config.Enabled {
		return nil
	}

	// 监听所在目录：很多编辑器以 rename 方式保存，直接监听文件会丢失后续事件
	if err := h.watcher.Add(filepath.Dir(h.configPath)); err != nil {
		return fmt.Errorf("failed to watch config dir: %w", err)
	}

	h.mu.Lock()
	h.started = true
	h.mu.Unlock()
	go h.watch(ctx)

	return nil
}

// Stop 停止热更新
func (h *HotReloader) Stop() error {
	h.mu.RLock()
	started := h.started
	h.mu.RUnlock()

	if started {
		select {
		case <-h.stopChan:
		default:
			close(h.stopChan)
		}
		select {
		case <-h.doneChan:
		case <-time.After(time.Second):
			h.logger.Warn("watch loop did not exit in time")
		}
	}

	if h.watcher != nil {
		return h.watcher.Close()
	}
	return nil
}

// watch 监听文件变化
func (h *HotReloader) watch(ctx context.Context) {
	defer close(h.doneChan)

	target := filepath.Clean(h.configPath)
	for {
		select {
		case <-ctx.Done():
			return
		case <-h.stopChan:
			return
		case ev, ok := <-h.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			// 只处理写入和创建事件
			if ev.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				h.handleConfigChange()
			}

		case err, ok := <-h.watcher.Errors:
			if !ok {
				return
			}
			h.logger.Warn("watcher error", zap.Error(err))
		}
	}
}

// handleConfigChange 处理配置变化
func (h *HotReloader) handleConfigChange() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.lastReload.IsZero() && time.Since(h.lastReload) < h.config.CooldownTime {
		h.logger.Debug("config change within cooldown, skipped")
		return
	}

	cfg, err := h.load(h.configPath)
	if err != nil {
		h.failures++
		h.logger.Warn("reloaded config rejected", zap.String("path", h.configPath), zap.Error(err))
		h.notify(false)
		return
	}
	if h.handler != nil {
		if err := h.handler(cfg); err != nil {
			h.failures++
			h.logger.Warn("reload handler failed", zap.Error(err))
			h.notify(false)
			return
		}
	}

	h.reloads++
	h.lastReload = time.Now()
	h.logger.Info("config reloaded", zap.String("path", h.configPath))
	h.notify(true)
}

// GetLastReloadTime 获取最后重载时间
func (h *HotReloader) GetLastReloadTime() time.Time {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.lastReload
}

// Stats 成功与失败的重载次数。
func (h *HotReloader) Stats() (reloads, failures int) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.reloads, h.failures
}
