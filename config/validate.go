package config

import (
	"fmt"
	"strings"
)

// ErrInvalid 用于参数验证错误。
type ErrInvalid string

func (e ErrInvalid) Error() string { return string(e) }

// Validate ensures required fields are present and the catalog builds.
func Validate(cfg AppConfig) error {
	if cfg.Env == "" {
		return ErrInvalid("env is required")
	}
	if cfg.Round.DurationSeconds <= 0 {
		return ErrInvalid("round.durationSeconds must be > 0")
	}
	for _, w := range cfg.Round.WarningSeconds {
		if w <= 0 {
			return ErrInvalid(fmt.Sprintf("round.warningSeconds entry %v must be > 0", w))
		}
	}
	if cfg.Orders.SpawnIntervalSeconds <= 0 {
		return ErrInvalid("orders.spawnIntervalSeconds must be > 0")
	}
	if cfg.Orders.MaxActive < 1 {
		return ErrInvalid("orders.maxActive must be >= 1")
	}
	if cfg.Orders.InitialSpawn != nil && *cfg.Orders.InitialSpawn < 0 {
		return ErrInvalid("orders.initialSpawn must be >= 0")
	}
	if cfg.Engine.TickIntervalMs <= 0 {
		return ErrInvalid("engine.tickIntervalMs must be > 0")
	}
	switch strings.ToLower(cfg.Log.Level) {
	case "", "debug", "info", "warn", "error":
	default:
		return ErrInvalid(fmt.Sprintf("log.level %q is not supported", cfg.Log.Level))
	}
	switch cfg.Log.Format {
	case "", "json", "console":
	default:
		return ErrInvalid(fmt.Sprintf("log.format %q is not supported", cfg.Log.Format))
	}
	for _, out := range cfg.Log.Outputs {
		switch out {
		case "stdout", "stderr":
		case "file":
			if cfg.Log.File == "" {
				return ErrInvalid("log.file is required when outputs include file")
			}
		default:
			return ErrInvalid(fmt.Sprintf("log.outputs %q is not supported", out))
		}
	}
	if err := cfg.GameConfig().Validate(); err != nil {
		return fmt.Errorf("game config: %w", err)
	}
	if _, err := cfg.BuildCatalog(); err != nil {
		return fmt.Errorf("catalog: %w", err)
	}
	return nil
}
