package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"orderup-go/game"
	"orderup-go/order"
	"orderup-go/round"
)

// AppConfig holds the main runtime configuration.
type AppConfig struct {
	Env     string        `yaml:"env"`
	Round   RoundConfig   `yaml:"round"`
	Orders  OrdersConfig  `yaml:"orders"`
	Engine  EngineConfig  `yaml:"engine"`
	Server  ServerConfig  `yaml:"server"`
	Log     LogConfig     `yaml:"log"`
	Catalog CatalogConfig `yaml:"catalog"`
}

type RoundConfig struct {
	DurationSeconds float64   `yaml:"durationSeconds"`
	WarningSeconds  []float64 `yaml:"warningSeconds"` // 剩余时间提醒，缺省 120/60/30
}

type OrdersConfig struct {
	SpawnIntervalSeconds float64 `yaml:"spawnIntervalSeconds"`
	MaxActive            int     `yaml:"maxActive"`
	InitialSpawn         *int    `yaml:"initialSpawn"` // nil 时取默认 3，允许显式 0
}

type EngineConfig struct {
	TickIntervalMs int `yaml:"tickIntervalMs"`
}

type ServerConfig struct {
	ListenAddr  string `yaml:"listenAddr"`
	MetricsAddr string `yaml:"metricsAddr"`
	AuthToken   string `yaml:"authToken"`
}

type LogConfig struct {
	Level     string   `yaml:"level"`
	Format    string   `yaml:"format"`
	Outputs   []string `yaml:"outputs"`   // stdout, stderr, file
	File      string   `yaml:"file"`      // outputs 含 file 时必填
	ErrorFile string   `yaml:"errorFile"` // 可选，仅 error 级别
}

type CatalogConfig struct {
	Products []ProductConfig `yaml:"products"`
	Orders   []OrderConfig   `yaml:"orders"`
}

// ProductConfig 商品条目，字段与 order.Product 对应。
type ProductConfig struct {
	ID          string  `yaml:"id"`
	Name        string  `yaml:"name"`
	Description string  `yaml:"description"`
	Category    string  `yaml:"category"`
	Rarity      string  `yaml:"rarity"`
	Weight      float64 `yaml:"weight"`
	BasePoints  int     `yaml:"basePoints"`
	SpawnWeight int     `yaml:"spawnWeight"`
	Available   *bool   `yaml:"available"` // 缺省可用
}

// OrderConfig 订单定义条目。
type OrderConfig struct {
	ID                      string   `yaml:"id"`
	Type                    string   `yaml:"type"`
	Difficulty              string   `yaml:"difficulty"`
	Products                []string `yaml:"products"`
	BasePoints              int      `yaml:"basePoints"`
	ExpressBonus            int      `yaml:"expressBonus"`
	ExpressTimeLimitSeconds float64  `yaml:"expressTimeLimitSeconds"`
	Requirements            []string `yaml:"requirements"`
	PriorityLevel           int      `yaml:"priorityLevel"`
	PriorityColor           string   `yaml:"priorityColor"`
	CustomerName            string   `yaml:"customerName"`
	CustomerNotes           string   `yaml:"customerNotes"`
}

// Load reads YAML config from path, fills defaults and validates.
func Load(path string) (AppConfig, error) {
	var cfg AppConfig
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	cfg, err = Parse(raw)
	if err != nil {
		return cfg, err
	}
	if err := Validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Parse 解析 YAML 并补齐默认值，不做校验。
func Parse(raw []byte) (AppConfig, error) {
	var cfg AppConfig
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("parse yaml: %w", err)
	}
	applyDefaults(&cfg)
	return cfg, nil
}

// 环境变量覆盖项。
const (
	EnvRoundDuration = "ORDERUP_ROUND_DURATION_SECONDS"
	EnvListenAddr    = "ORDERUP_LISTEN_ADDR"
	EnvMetricsAddr   = "ORDERUP_METRICS_ADDR"
	EnvAuthToken     = "ORDERUP_AUTH_TOKEN"
	EnvLogLevel      = "ORDERUP_LOG_LEVEL"
)

// LoadWithEnvOverrides loads config then overrides deployment fields from env vars if present.
func LoadWithEnvOverrides(path string) (AppConfig, error) {
	cfg, err := Load(path)
	if err != nil {
		return cfg, err
	}
	if v := os.Getenv(EnvRoundDuration); v != "" {
		secs, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return cfg, fmt.Errorf("%s: %w", EnvRoundDuration, err)
		}
		cfg.Round.DurationSeconds = secs
	}
	if v := os.Getenv(EnvListenAddr); v != "" {
		cfg.Server.ListenAddr = v
	}
	if v := os.Getenv(EnvMetricsAddr); v != "" {
		cfg.Server.MetricsAddr = v
	}
	if v := os.Getenv(EnvAuthToken); v != "" {
		cfg.Server.AuthToken = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		cfg.Log.Level = v
	}
	return cfg, Validate(cfg)
}

func applyDefaults(cfg *AppConfig) {
	if cfg.Env == "" {
		cfg.Env = "dev"
	}
	if cfg.Round.DurationSeconds == 0 {
		cfg.Round.DurationSeconds = round.DefaultConfig().Duration.Seconds()
	}
	if cfg.Round.WarningSeconds == nil {
		for _, w := range round.DefaultConfig().Warnings {
			cfg.Round.WarningSeconds = append(cfg.Round.WarningSeconds, w.Seconds())
		}
	}
	def := order.DefaultConfig()
	if cfg.Orders.SpawnIntervalSeconds == 0 {
		cfg.Orders.SpawnIntervalSeconds = def.SpawnInterval.Seconds()
	}
	if cfg.Orders.MaxActive == 0 {
		cfg.Orders.MaxActive = def.MaxActiveOrders
	}
	if cfg.Orders.InitialSpawn == nil {
		n := def.InitialSpawnCount
		cfg.Orders.InitialSpawn = &n
	}
	if cfg.Engine.TickIntervalMs == 0 {
		cfg.Engine.TickIntervalMs = 100
	}
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = ":8080"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if len(cfg.Log.Outputs) == 0 {
		cfg.Log.Outputs = []string{"stdout"}
	}
}

const defaultSpawnWeight = 10

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// GameConfig 转换为会话参数。
func (c AppConfig) GameConfig() game.Config {
	warnings := make([]time.Duration, 0, len(c.Round.WarningSeconds))
	for _, w := range c.Round.WarningSeconds {
		warnings = append(warnings, seconds(w))
	}
	initial := order.DefaultConfig().InitialSpawnCount
	if c.Orders.InitialSpawn != nil {
		initial = *c.Orders.InitialSpawn
	}
	return game.Config{
		Round: round.Config{
			Duration: seconds(c.Round.DurationSeconds),
			Warnings: warnings,
		},
		Orders: order.Config{
			SpawnInterval:     seconds(c.Orders.SpawnIntervalSeconds),
			MaxActiveOrders:   c.Orders.MaxActive,
			InitialSpawnCount: initial,
		},
	}
}

// TickInterval 引擎驱动周期。
func (c AppConfig) TickInterval() time.Duration {
	return time.Duration(c.Engine.TickIntervalMs) * time.Millisecond
}

// BuildCatalog 根据配置构建订单目录。
func (c AppConfig) BuildCatalog() (*order.Catalog, error) {
	products := make([]order.Product, 0, len(c.Catalog.Products))
	for _, p := range c.Catalog.Products {
		available := true
		if p.Available != nil {
			available = *p.Available
		}
		weight := p.SpawnWeight
		if weight == 0 {
			weight = defaultSpawnWeight
		}
		products = append(products, order.Product{
			ID:          p.ID,
			Name:        p.Name,
			Description: p.Description,
			Category:    order.Category(upper(p.Category, string(order.CategoryUncategorized))),
			Rarity:      order.Rarity(upper(p.Rarity, string(order.RarityCommon))),
			Weight:      p.Weight,
			BasePoints:  p.BasePoints,
			SpawnWeight: weight,
			Available:   available,
		})
	}
	defs := make([]order.Definition, 0, len(c.Catalog.Orders))
	for _, o := range c.Catalog.Orders {
		var req order.Requirement
		for _, name := range o.Requirements {
			r, err := order.ParseRequirement(name)
			if err != nil {
				return nil, fmt.Errorf("order %s: %w", o.ID, err)
			}
			req |= r
		}
		defs = append(defs, order.Definition{
			ID:               o.ID,
			Type:             order.Type(upper(o.Type, string(order.TypeStandard))),
			Difficulty:       order.Difficulty(upper(o.Difficulty, string(order.DifficultyEasy))),
			CustomerName:     o.CustomerName,
			CustomerNotes:    o.CustomerNotes,
			RequiredProducts: o.Products,
			BasePoints:       o.BasePoints,
			ExpressBonus:     o.ExpressBonus,
			ExpressTimeLimit: seconds(o.ExpressTimeLimitSeconds),
			Requirements:     req,
			PriorityLevel:    max(o.PriorityLevel, 1),
			PriorityColor:    o.PriorityColor,
		})
	}
	return order.NewCatalog(products, defs)
}

func upper(v, fallback string) string {
	v = strings.ToUpper(strings.TrimSpace(v))
	if v == "" {
		return fallback
	}
	return v
}
