package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validYAML = `
env: test
pair:
  symbol: MEWC/USDT
  priceDecimals: 8
  quantityDecimals: 0
strategy:
  spreadPct: 0.02
  numLevels: 3
  levelStepPct: 0.005
  baseQuantity: 1000
  quantityMultiplier: 1.5
  minSpreadPct: 0.01
  skewMultiplier: 0.5
risk:
  maxBaseExposure: 50000
  maxQuoteExposure: 500
  stopLossUSDT: -50
  dailyLossLimitUSDT: -100
  balanceUsageCap: 0.8
  targetInventoryRatio: 0.5
  maxSkew: 1.0
  maxOpenOrders: 20
engine:
  refreshIntervalSec: 30
  requestTimeoutMs: 5000
  shutdownGraceMs: 10000
  restRate: 5
  restBurst: 10
logging:
  level: info
  format: json
  outputs: [stdout]
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_Valid(t *testing.T) {
	cfg, err := Load(writeConfig(t, validYAML))
	require.NoError(t, err)
	assert.Equal(t, "MEWC/USDT", cfg.Pair.Symbol)
	assert.Equal(t, 3, cfg.Strategy.NumLevels)
	assert.InDelta(t, -50, cfg.Risk.StopLossUSDT, 1e-9)
	assert.Equal(t, 30, cfg.Engine.RefreshIntervalSec)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoad_BadYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "pair: [broken"))
	var ce Error
	assert.ErrorAs(t, err, &ce)
}

func TestLoadWithEnvOverrides(t *testing.T) {
	t.Setenv("QUOTER_PAIR", "DOGE/USDT")
	cfg, err := LoadWithEnvOverrides(writeConfig(t, validYAML))
	require.NoError(t, err)
	assert.Equal(t, "DOGE/USDT", cfg.Pair.Symbol)
}

// 风控上限字段缺失/非法必须是致命错误，绝不静默使用默认值。
func TestValidate_RiskFieldsFatal(t *testing.T) {
	base, err := Load(writeConfig(t, validYAML))
	require.NoError(t, err)

	cases := []struct {
		name   string
		mutate func(*AppConfig)
	}{
		{"missing stop loss", func(c *AppConfig) { c.Risk.StopLossUSDT = 0 }},
		{"positive stop loss", func(c *AppConfig) { c.Risk.StopLossUSDT = 50 }},
		{"missing daily limit", func(c *AppConfig) { c.Risk.DailyLossLimitUSDT = 0 }},
		{"missing base exposure", func(c *AppConfig) { c.Risk.MaxBaseExposure = 0 }},
		{"missing quote exposure", func(c *AppConfig) { c.Risk.MaxQuoteExposure = 0 }},
		{"cap above one", func(c *AppConfig) { c.Risk.BalanceUsageCap = 1.2 }},
		{"missing cap", func(c *AppConfig) { c.Risk.BalanceUsageCap = 0 }},
		{"target ratio out of range", func(c *AppConfig) { c.Risk.TargetInventoryRatio = 1.5 }},
		{"missing max skew", func(c *AppConfig) { c.Risk.MaxSkew = 0 }},
		{"zero levels", func(c *AppConfig) { c.Strategy.NumLevels = 0 }},
		{"missing min spread", func(c *AppConfig) { c.Strategy.MinSpreadPct = 0 }},
		{"zero refresh", func(c *AppConfig) { c.Engine.RefreshIntervalSec = 0 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := base
			tc.mutate(&cfg)
			err := Validate(cfg)
			require.Error(t, err)
			var ce Error
			assert.ErrorAs(t, err, &ce)
		})
	}
}
