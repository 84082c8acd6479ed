package config

import "fmt"

// Error 配置错误；启动期唯一的致命错误类别。
type Error string

func (e Error) Error() string { return string(e) }

func invalidf(format string, args ...interface{}) error {
	return Error(fmt.Sprintf(format, args...))
}

// Validate ensures required fields are present. 任何影响风控上限的
// 字段缺失或非法都是致命错误，绝不落入静默默认值。
func Validate(cfg AppConfig) error {
	if cfg.Pair.Symbol == "" {
		return invalidf("pair.symbol is required")
	}
	if cfg.Pair.PriceDecimals < 0 || cfg.Pair.QuantityDecimals < 0 {
		return invalidf("pair decimals must be >= 0")
	}

	s := cfg.Strategy
	if s.SpreadPct <= 0 {
		return invalidf("strategy.spreadPct must be > 0")
	}
	if s.NumLevels < 1 {
		return invalidf("strategy.numLevels must be >= 1")
	}
	if s.LevelStepPct < 0 {
		return invalidf("strategy.levelStepPct must be >= 0")
	}
	if s.BaseQuantity <= 0 {
		return invalidf("strategy.baseQuantity must be > 0")
	}
	if s.QuantityMultiplier <= 0 {
		return invalidf("strategy.quantityMultiplier must be > 0")
	}
	if s.MinSpreadPct <= 0 {
		return invalidf("strategy.minSpreadPct must be > 0")
	}
	if s.SkewMultiplier < 0 {
		return invalidf("strategy.skewMultiplier must be >= 0")
	}

	r := cfg.Risk
	if r.MaxBaseExposure <= 0 {
		return invalidf("risk.maxBaseExposure must be > 0")
	}
	if r.MaxQuoteExposure <= 0 {
		return invalidf("risk.maxQuoteExposure must be > 0")
	}
	if r.StopLossUSDT >= 0 {
		return invalidf("risk.stopLossUSDT must be < 0, got %.4f", r.StopLossUSDT)
	}
	if r.DailyLossLimitUSDT >= 0 {
		return invalidf("risk.dailyLossLimitUSDT must be < 0, got %.4f", r.DailyLossLimitUSDT)
	}
	if r.BalanceUsageCap <= 0 || r.BalanceUsageCap > 1 {
		return invalidf("risk.balanceUsageCap must be in (0,1], got %.4f", r.BalanceUsageCap)
	}
	if r.TargetInventoryRatio < 0 || r.TargetInventoryRatio > 1 {
		return invalidf("risk.targetInventoryRatio must be in [0,1], got %.4f", r.TargetInventoryRatio)
	}
	if r.MaxSkew <= 0 {
		return invalidf("risk.maxSkew must be > 0")
	}
	if r.MaxOpenOrders < 2 {
		return invalidf("risk.maxOpenOrders must be >= 2")
	}

	e := cfg.Engine
	if e.RefreshIntervalSec < 1 {
		return invalidf("engine.refreshIntervalSec must be >= 1")
	}
	if e.RequestTimeoutMs < 0 || e.ShutdownGraceMs < 0 {
		return invalidf("engine timeouts must be >= 0")
	}
	return nil
}
