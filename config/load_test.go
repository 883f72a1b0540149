package config

import (
	"os"
	"path/filepath"
	"testing"
)

const validYAML = `
env: dev
portfolio:
  maxLossCumulative: 5000
  shutdownGraceSec: 30
gateway:
  apiKey: foo
  apiSecret: bar
  baseURL: https://api.test
  streamURL: wss://stream.test
metrics:
  listen: :9091
assignments:
  AAPL:
    unitSize: 100
    maxPositionSize: 300
    tradeThresholdSec: 60
    holdThresholdSec: 300
    takeProfitTarget: 0.30
    stopLossTarget: 2.00
    spreadStrategy: BEST
    maxLossPerTrade: 500
    entrySpacingMs: 250
`

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "cfg.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := writeTempConfig(t, validYAML)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Env != "dev" || cfg.Gateway.APIKey != "foo" {
		t.Fatalf("unexpected cfg values: %+v", cfg)
	}
	a, ok := cfg.Assignments["AAPL"]
	if !ok {
		t.Fatalf("missing AAPL assignment")
	}
	if a.Ticker != "AAPL" {
		t.Fatalf("ticker not stamped from map key: %+v", a)
	}
	if a.TradeThreshold().Seconds() != 60 {
		t.Fatalf("unexpected trade threshold: %v", a.TradeThreshold())
	}
}

func TestLoadWithEnvOverrides(t *testing.T) {
	path := writeTempConfig(t, validYAML)
	t.Setenv("TE_GATEWAY_API_KEY", "env-key")
	t.Setenv("TE_GATEWAY_API_SECRET", "env-secret")
	cfg, err := LoadWithEnvOverrides(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Gateway.APIKey != "env-key" || cfg.Gateway.APISecret != "env-secret" {
		t.Fatalf("env overrides not applied: %+v", cfg.Gateway)
	}
}

func TestValidateRejectsBadAssignments(t *testing.T) {
	base := func() AppConfig {
		return AppConfig{
			Env:       "dev",
			Portfolio: PortfolioConfig{MaxLossCumulative: 1000},
			Assignments: map[string]Assignment{
				"AAPL": {
					Ticker:            "AAPL",
					UnitSize:          100,
					MaxPositionSize:   300,
					TradeThresholdSec: 60,
					HoldThresholdSec:  300,
					TakeProfitTarget:  0.3,
					StopLossTarget:    2.0,
					SpreadStrategy:    SpreadBest,
					MaxLossPerTrade:   500,
				},
			},
		}
	}

	cases := []struct {
		name   string
		mutate func(*AppConfig)
	}{
		{"empty", func(c *AppConfig) { *c = AppConfig{} }},
		{"no assignments", func(c *AppConfig) { c.Assignments = nil }},
		{"zero unit size", func(c *AppConfig) {
			a := c.Assignments["AAPL"]
			a.UnitSize = 0
			c.Assignments["AAPL"] = a
		}},
		{"max below unit", func(c *AppConfig) {
			a := c.Assignments["AAPL"]
			a.MaxPositionSize = 50
			c.Assignments["AAPL"] = a
		}},
		{"bad spread strategy", func(c *AppConfig) {
			a := c.Assignments["AAPL"]
			a.SpreadStrategy = "MIDDLE"
			c.Assignments["AAPL"] = a
		}},
		{"zero portfolio limit", func(c *AppConfig) { c.Portfolio.MaxLossCumulative = 0 }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := base()
			tc.mutate(&cfg)
			if err := Validate(cfg); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}

	if err := Validate(base()); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}
}
