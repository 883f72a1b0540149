package config

import (
	"time"

	"trade-executor-go/infrastructure/logger"
)

// SpreadStrategy selects which side of the spread entry orders rest on.
type SpreadStrategy string

const (
	// SpreadBest prices entries at the passive touch: bid when buying
	// into a long, ask when selling into a short.
	SpreadBest SpreadStrategy = "BEST"
	// SpreadWorst crosses the spread for immediate fills.
	SpreadWorst SpreadStrategy = "WORST"
)

// Assignment holds the per-ticker trading parameters.
type Assignment struct {
	Ticker string `yaml:"ticker"`

	UnitSize        float64 `yaml:"unitSize"`
	MaxPositionSize float64 `yaml:"maxPositionSize"`

	// TradeThresholdSec bounds the entry-pooling window and doubles as the
	// stop loss cooldown length.
	TradeThresholdSec int `yaml:"tradeThresholdSec"`
	// HoldThresholdSec is the hold period measured from the midpoint of a
	// trade's first and last entry fills.
	HoldThresholdSec int `yaml:"holdThresholdSec"`

	// Targets <= 1.0 are fractions of the anchor price, > 1.0 are flat
	// dollar offsets.
	TakeProfitTarget float64 `yaml:"takeProfitTarget"`
	StopLossTarget   float64 `yaml:"stopLossTarget"`

	SpreadStrategy SpreadStrategy `yaml:"spreadStrategy"`

	MaxLossPerTrade float64 `yaml:"maxLossPerTrade"`
	EntrySpacingMs  int     `yaml:"entrySpacingMs"`
}

func (a Assignment) TradeThreshold() time.Duration {
	return time.Duration(a.TradeThresholdSec) * time.Second
}

func (a Assignment) HoldThreshold() time.Duration {
	return time.Duration(a.HoldThresholdSec) * time.Second
}

func (a Assignment) EntrySpacing() time.Duration {
	return time.Duration(a.EntrySpacingMs) * time.Millisecond
}

// PortfolioConfig holds account-wide risk settings.
type PortfolioConfig struct {
	// MaxLossCumulative is the realized loss across all tickers that
	// triggers a coordinated shutdown. Stored as a positive number.
	MaxLossCumulative float64 `yaml:"maxLossCumulative"`
	// ShutdownGraceSec bounds how long shutdown waits for positions to
	// flatten before giving up.
	ShutdownGraceSec int `yaml:"shutdownGraceSec"`
}

func (p PortfolioConfig) ShutdownGrace() time.Duration {
	return time.Duration(p.ShutdownGraceSec) * time.Second
}

type GatewayConfig struct {
	APIKey    string `yaml:"apiKey"`
	APISecret string `yaml:"apiSecret"`
	BaseURL   string `yaml:"baseURL"`
	StreamURL string `yaml:"streamURL"`
}

type MetricsConfig struct {
	Listen string `yaml:"listen"`
}

// AppConfig is the root runtime configuration.
type AppConfig struct {
	Env         string                `yaml:"env"`
	Log         logger.Config         `yaml:"log"`
	Portfolio   PortfolioConfig       `yaml:"portfolio"`
	Gateway     GatewayConfig         `yaml:"gateway"`
	Metrics     MetricsConfig         `yaml:"metrics"`
	Assignments map[string]Assignment `yaml:"assignments"`
}
