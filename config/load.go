package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// AppConfig holds the main runtime configuration. Loaded once at
// startup and immutable for the lifetime of the run.
type AppConfig struct {
	Env      string         `yaml:"env"`
	Pair     PairConfig     `yaml:"pair"`
	Strategy StrategyConfig `yaml:"strategy"`
	Risk     RiskConfig     `yaml:"risk"`
	Engine   EngineConfig   `yaml:"engine"`
	Logging  LoggingConfig  `yaml:"logging"`
	Monitor  MonitorConfig  `yaml:"monitor"`
	Store    StoreConfig    `yaml:"store"`
}

// PairConfig 交易对与精度；精度可被场所元数据覆盖。
type PairConfig struct {
	Symbol           string `yaml:"symbol"`
	PriceDecimals    int    `yaml:"priceDecimals"`
	QuantityDecimals int    `yaml:"quantityDecimals"`
}

type StrategyConfig struct {
	SpreadPct          float64 `yaml:"spreadPct"`          // 基准半边价差
	NumLevels          int     `yaml:"numLevels"`          // 每侧档位数
	LevelStepPct       float64 `yaml:"levelStepPct"`       // 档间步长
	BaseQuantity       float64 `yaml:"baseQuantity"`       // 第 0 档数量
	QuantityMultiplier float64 `yaml:"quantityMultiplier"` // 档位数量倍率
	MinSpreadPct       float64 `yaml:"minSpreadPct"`       // 任意 skew 下的价差下限
	SkewMultiplier     float64 `yaml:"skewMultiplier"`     // 库存 skew 放大系数
}

type RiskConfig struct {
	MaxBaseExposure      float64 `yaml:"maxBaseExposure"`
	MaxQuoteExposure     float64 `yaml:"maxQuoteExposure"`
	StopLossUSDT         float64 `yaml:"stopLossUSDT"`         // 负值
	DailyLossLimitUSDT   float64 `yaml:"dailyLossLimitUSDT"`   // 负值
	BalanceUsageCap      float64 `yaml:"balanceUsageCap"`      // (0,1]
	TargetInventoryRatio float64 `yaml:"targetInventoryRatio"` // [0,1]
	MaxSkew              float64 `yaml:"maxSkew"`
	MaxOpenOrders        int     `yaml:"maxOpenOrders"`
}

type EngineConfig struct {
	RefreshIntervalSec int     `yaml:"refreshIntervalSec"`
	RequestTimeoutMs   int     `yaml:"requestTimeoutMs"`
	ShutdownGraceMs    int     `yaml:"shutdownGraceMs"`
	RestRate           float64 `yaml:"restRate"`  // REST 限流：每秒令牌数
	RestBurst          int     `yaml:"restBurst"` // REST 限流：突发上限
}

type LoggingConfig struct {
	Level      string   `yaml:"level"`
	Format     string   `yaml:"format"` // json 或 console
	Outputs    []string `yaml:"outputs"`
	OutputFile string   `yaml:"outputFile"`
}

type MonitorConfig struct {
	MetricsAddr   string `yaml:"metricsAddr"`   // 留空关闭
	DashboardAddr string `yaml:"dashboardAddr"` // 留空关闭
}

type StoreConfig struct {
	TradesDB string `yaml:"tradesDB"` // sqlite 文件路径，留空关闭持久化
}

// Load reads YAML config from path and applies validation.
func Load(path string) (AppConfig, error) {
	var cfg AppConfig
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, Error(fmt.Sprintf("parse yaml: %v", err))
	}
	if err := Validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// LoadWithEnvOverrides loads config then overrides selected fields
// from env vars if present.
func LoadWithEnvOverrides(path string) (AppConfig, error) {
	cfg, err := Load(path)
	if err != nil {
		return cfg, err
	}
	if v := os.Getenv("QUOTER_PAIR"); v != "" {
		cfg.Pair.Symbol = v
	}
	if v := os.Getenv("QUOTER_TRADES_DB"); v != "" {
		cfg.Store.TradesDB = v
	}
	return cfg, Validate(cfg)
}
