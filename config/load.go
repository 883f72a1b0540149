package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"trade-executor-go/infrastructure/logger"
)

// Load reads YAML config from path and applies validation.
func Load(path string) (AppConfig, error) {
	var cfg AppConfig
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("parse yaml: %w", err)
	}
	normalize(&cfg)
	if err := Validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// LoadWithEnvOverrides loads config then overrides sensitive fields from env
// vars if present.
func LoadWithEnvOverrides(path string) (AppConfig, error) {
	cfg, err := Load(path)
	if err != nil {
		return cfg, err
	}
	if v := os.Getenv("TE_GATEWAY_API_KEY"); v != "" {
		cfg.Gateway.APIKey = v
	}
	if v := os.Getenv("TE_GATEWAY_API_SECRET"); v != "" {
		cfg.Gateway.APISecret = v
	}
	return cfg, Validate(cfg)
}

// normalize fills log defaults and stamps map keys into Assignment.Ticker so
// assignments do not have to repeat the ticker inline.
func normalize(cfg *AppConfig) {
	if cfg.Log.Level == "" {
		cfg.Log = logger.DefaultConfig()
	}
	for ticker, a := range cfg.Assignments {
		if a.Ticker == "" {
			a.Ticker = ticker
			cfg.Assignments[ticker] = a
		}
	}
}

// Validate ensures required fields are present and assignment parameters are
// internally consistent.
func Validate(cfg AppConfig) error {
	if cfg.Env == "" {
		return errors.New("env is required")
	}
	if len(cfg.Assignments) == 0 {
		return errors.New("assignments config is required")
	}
	if cfg.Portfolio.MaxLossCumulative <= 0 {
		return errors.New("portfolio.maxLossCumulative must be > 0")
	}
	for ticker, a := range cfg.Assignments {
		if err := validateAssignment(a); err != nil {
			return fmt.Errorf("assignment %s: %w", ticker, err)
		}
	}
	return nil
}

func validateAssignment(a Assignment) error {
	if a.UnitSize <= 0 {
		return errors.New("unitSize must be > 0")
	}
	if a.MaxPositionSize < a.UnitSize {
		return errors.New("maxPositionSize must be >= unitSize")
	}
	if a.TradeThresholdSec <= 0 {
		return errors.New("tradeThresholdSec must be > 0")
	}
	if a.HoldThresholdSec <= 0 {
		return errors.New("holdThresholdSec must be > 0")
	}
	if a.TakeProfitTarget <= 0 {
		return errors.New("takeProfitTarget must be > 0")
	}
	if a.StopLossTarget <= 0 {
		return errors.New("stopLossTarget must be > 0")
	}
	if a.MaxLossPerTrade <= 0 {
		return errors.New("maxLossPerTrade must be > 0")
	}
	switch a.SpreadStrategy {
	case SpreadBest, SpreadWorst:
	default:
		return fmt.Errorf("spreadStrategy must be %s or %s", SpreadBest, SpreadWorst)
	}
	return nil
}
