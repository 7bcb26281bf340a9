package container

import (
	"context"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"orderup-go/config"
	"orderup-go/event"
	"orderup-go/game"
	"orderup-go/infrastructure/alert"
	"orderup-go/infrastructure/logger"
	"orderup-go/infrastructure/monitor"
	internalcfg "orderup-go/internal/config"
	"orderup-go/internal/engine"
	"orderup-go/internal/feed"
	"orderup-go/internal/store"
)

// Container 依赖注入容器，管理所有组件的生命周期
type Container struct {
	// 配置
	cfg        *config.AppConfig
	configPath string

	// 基础设施
	logger  *logger.Logger
	monitor *monitor.Monitor
	alerts  *alert.Manager
	logSub  event.Subscription
	history *store.Store
	histSub event.Subscription

	// 核心服务
	hub     *event.Hub
	session *game.Session
	engine  *engine.Engine

	// 接入层
	feed     *feed.Server
	api      *httpServerComponent
	metrics  *httpServerComponent
	reloader *internalcfg.HotReloader

	// 生命周期管理
	lifecycle *LifecycleManager
}

// New 从配置文件创建 Container，并监听该文件的变更
func New(configPath string) (*Container, error) {
	cfg, err := config.LoadWithEnvOverrides(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config failed: %w", err)
	}
	return NewFromConfig(cfg, configPath), nil
}

// NewFromConfig 使用已加载的配置；configPath 为空时不启用热更新
func NewFromConfig(cfg config.AppConfig, configPath string) *Container {
	return &Container{
		cfg:        &cfg,
		configPath: configPath,
		lifecycle:  NewLifecycleManager(),
	}
}

// Build 构建所有组件
func (c *Container) Build() error {
	if err := c.buildInfrastructure(); err != nil {
		return fmt.Errorf("build infrastructure failed: %w", err)
	}

	if err := c.buildCoreServices(); err != nil {
		return fmt.Errorf("build core services failed: %w", err)
	}

	if err := c.buildServers(); err != nil {
		return fmt.Errorf("build servers failed: %w", err)
	}

	c.registerLifecycleComponents()
	c.logger.Info("container built successfully")
	return nil
}

func (c *Container) buildInfrastructure() error {
	logCfg := logger.Config{
		Level:      c.cfg.Log.Level,
		Outputs:    c.cfg.Log.Outputs,
		OutputFile: c.cfg.Log.File,
		ErrorFile:  c.cfg.Log.ErrorFile,
		Format:     c.cfg.Log.Format,
	}

	var err error
	c.logger, err = logger.New(logCfg)
	if err != nil {
		return fmt.Errorf("create logger failed: %w", err)
	}
	c.logger = c.logger.WithFields(map[string]interface{}{"env": c.cfg.Env})

	c.monitor = monitor.New(monitor.DefaultConfig())
	c.alerts = alert.NewManager([]alert.Channel{alert.NewLogChannel("log", c.logger.Logger)}, alert.DefaultThrottle)

	c.logger.Info("infrastructure built")
	return nil
}

func (c *Container) buildCoreServices() error {
	catalog, err := c.cfg.BuildCatalog()
	if err != nil {
		return err
	}

	c.hub = event.NewHub()
	// 观察者先于会话挂上，开局事件不会漏
	c.monitor.Attach(c.hub)
	c.logSub = c.logger.AttachEvents(c.hub)
	c.history = store.New(0)
	c.histSub = c.history.Attach(c.hub)

	c.session, err = game.New(c.cfg.GameConfig(), catalog,
		game.WithHub(c.hub),
		game.WithLogger(c.logger.Logger))
	if err != nil {
		return fmt.Errorf("create session failed: %w", err)
	}

	c.engine, err = engine.New(engine.Config{TickInterval: c.cfg.TickInterval()}, engine.Components{
		Session:      c.session,
		Logger:       c.logger,
		AlertManager: c.alerts,
	})
	if err != nil {
		return fmt.Errorf("create engine failed: %w", err)
	}

	c.logger.Info("core services built",
		zap.Int("products", len(catalog.Products())),
		zap.Int("orders", len(catalog.Definitions())))
	return nil
}

func (c *Container) buildServers() error {
	c.feed = feed.New(feed.Config{AuthToken: c.cfg.Server.AuthToken}, c.engine, c.monitor, c.logger.Logger)
	c.feed.Attach(c.hub)
	c.feed.SetHistory(c.history)

	c.api = &httpServerComponent{
		name:    "api_server",
		handler: c.feed.Routes(),
		addr:    c.cfg.Server.ListenAddr,
		logger:  c.logger,
		onStop:  c.feed.Close,
	}
	if c.cfg.Server.MetricsAddr != "" {
		c.metrics = &httpServerComponent{
			name:    "metrics_server",
			handler: c.monitor.Handler(),
			addr:    c.cfg.Server.MetricsAddr,
			logger:  c.logger,
		}
	}

	if c.configPath == "" {
		return nil
	}
	var err error
	c.reloader, err = internalcfg.NewHotReloader(c.configPath, internalcfg.DefaultHotReloadConfig(), c.logger.Logger)
	if err != nil {
		return err
	}
	c.reloader.SetReloadHandler(c.applyConfig)
	c.reloader.SetObserver(c.observeReload)
	return nil
}

func (c *Container) observeReload(ok bool) {
	c.monitor.RecordConfigReload(ok)
	if !ok {
		_ = c.alerts.Warn("hot_reload", "config reload rejected", map[string]interface{}{"path": c.configPath})
	}
}

// applyConfig 暂存新配置，下一次开局生效；server 与 log 段需要重启
func (c *Container) applyConfig(next config.AppConfig) error {
	catalog, err := next.BuildCatalog()
	if err != nil {
		return err
	}
	if err := c.engine.Stage(next.GameConfig(), catalog); err != nil {
		return err
	}
	if next.Server != c.cfg.Server {
		c.logger.Warn("server settings changed, restart required to apply")
	}
	return nil
}

func (c *Container) registerLifecycleComponents() {
	c.lifecycle.Register(&engineComponent{engine: c.engine})
	c.lifecycle.Register(c.api)
	if c.metrics != nil {
		c.lifecycle.Register(c.metrics)
	}
	if c.reloader != nil {
		c.lifecycle.Register(&reloaderComponent{start: c.reloader.Start, stop: c.reloader.Stop})
	}
}

func (c *Container) Start(ctx context.Context) error {
	c.logger.Info("starting container...")

	if err := c.lifecycle.StartAll(ctx); err != nil {
		return fmt.Errorf("start failed: %w", err)
	}

	c.logger.Info("container started")
	return nil
}

func (c *Container) Stop() error {
	c.logger.Info("stopping container...")

	err := c.lifecycle.StopAll()
	if err != nil {
		c.logger.LogError(err, map[string]interface{}{"action": "stop"})
	}

	// 引擎已停，可以安全地解除 hub 上的观察者
	if c.feed != nil {
		c.feed.Detach()
	}
	if c.hub != nil {
		c.monitor.Detach()
		c.hub.Untap(c.logSub)
		c.hub.Untap(c.histSub)
		c.session.Close()
	}

	if c.logger != nil {
		_ = c.logger.Close()
	}
	return err
}

// HealthCheck 检查各组件健康状态，失败时发出告警
func (c *Container) HealthCheck() error {
	err := c.lifecycle.CheckHealth()
	if err != nil {
		_ = c.alerts.Error("health", "health check failed", map[string]interface{}{"error": err.Error()})
	}
	return err
}

// Alerts 告警管理器，Build 之后可用
func (c *Container) Alerts() *alert.Manager { return c.alerts }

// History 回合历史
func (c *Container) History() *store.Store { return c.history }

// Engine 返回游戏引擎
func (c *Container) Engine() *engine.Engine { return c.engine }

// APIAddr API 实际监听地址
func (c *Container) APIAddr() string { return c.api.Addr() }

// MetricsAddr 指标服务实际监听地址，未启用时为空
func (c *Container) MetricsAddr() string {
	if c.metrics == nil {
		return ""
	}
	return c.metrics.Addr()
}

// Handler 返回 API 路由，供测试直接挂到 httptest
func (c *Container) Handler() http.Handler { return c.feed.Routes() }
