package strategy

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quoter-go/exchange"
)

func baseConfig() Config {
	return Config{
		SpreadPct:          0.02,
		NumLevels:          2,
		LevelStepPct:       0.005,
		BaseQuantity:       1000,
		QuantityMultiplier: 1.5,
		MinSpreadPct:       0.01,
		SkewMultiplier:     0.5,
		BalanceUsageCap:    0.8,
		PriceDecimals:      10,
		QuantityDecimals:   0,
	}
}

func wideBook(mid float64) Inputs {
	return Inputs{
		Mid:            mid,
		BestBid:        mid * 0.9,
		BestAsk:        mid * 1.1,
		BaseAvailable:  1e9,
		QuoteAvailable: 1e9,
	}
}

func TestCompute_LadderOffsets(t *testing.T) {
	cfg := baseConfig()
	in := wideBook(0.0000375)

	ladder, dropped := Compute(cfg, in)
	require.Empty(t, dropped)
	require.Len(t, ladder.Bids, 2)
	require.Len(t, ladder.Asks, 2)

	// 档位 0：offset=0.02；档位 1：offset=0.025。
	assert.True(t, ladder.Bids[0].Price.Equal(decimal.RequireFromString("0.00003675")), "bid0 %s", ladder.Bids[0].Price)
	assert.True(t, ladder.Asks[0].Price.Equal(decimal.RequireFromString("0.00003825")), "ask0 %s", ladder.Asks[0].Price)
	assert.True(t, ladder.Bids[1].Price.Equal(decimal.RequireFromString("0.0000365625")), "bid1 %s", ladder.Bids[1].Price)
	assert.True(t, ladder.Asks[1].Price.Equal(decimal.RequireFromString("0.0000384375")), "ask1 %s", ladder.Asks[1].Price)

	// 最近档在前。
	assert.Equal(t, 0, ladder.Bids[0].Level)
	assert.Equal(t, 1, ladder.Bids[1].Level)
}

func TestCompute_QuantityGeometric(t *testing.T) {
	cfg := baseConfig()
	cfg.NumLevels = 4
	in := wideBook(0.0000375)

	ladder, _ := Compute(cfg, in)
	require.Len(t, ladder.Bids, 4)
	for i, q := range ladder.Bids {
		assert.InDelta(t, RawQuantity(cfg, i), q.Quantity.InexactFloat64(), 1.0, "level %d", i)
	}
	assert.InDelta(t, 1000*1.5*1.5*1.5, RawQuantity(cfg, 3), 1e-9)
}

func TestCompute_SkewTiltsQuotes(t *testing.T) {
	cfg := baseConfig()
	cfg.NumLevels = 1
	in := wideBook(1.0)

	// 基础币过重（ratio 0.8, target 0.5）→ skew=-0.3：bid 外移、ask 内收。
	in.Skew = -0.3
	ladder, _ := Compute(cfg, in)
	require.Len(t, ladder.Bids, 1)
	require.Len(t, ladder.Asks, 1)

	// bid_offset = 0.02 + 0.3*0.5 = 0.17；ask_offset = max(0.02-0.15, 0.01) = 0.01（触底）。
	assert.InDelta(t, 0.83, ladder.Bids[0].Price.InexactFloat64(), 1e-9)
	assert.InDelta(t, 1.01, ladder.Asks[0].Price.InexactFloat64(), 1e-9)
}

func TestCompute_MinSpreadFloorForAllSkews(t *testing.T) {
	cfg := baseConfig()
	cfg.NumLevels = 1
	for _, skew := range []float64{-1, -0.5, -0.1, 0, 0.1, 0.5, 1} {
		in := wideBook(1.0)
		in.Skew = skew
		ladder, _ := Compute(cfg, in)
		require.Len(t, ladder.Bids, 1, "skew %f", skew)
		require.Len(t, ladder.Asks, 1, "skew %f", skew)
		assert.LessOrEqual(t, ladder.Bids[0].Price.InexactFloat64(), 1.0-cfg.MinSpreadPct+1e-9, "skew %f", skew)
		assert.GreaterOrEqual(t, ladder.Asks[0].Price.InexactFloat64(), 1.0+cfg.MinSpreadPct-1e-9, "skew %f", skew)
	}
}

func TestCompute_NeverCrossesTouch(t *testing.T) {
	cfg := baseConfig()
	cfg.NumLevels = 3
	// 极窄盘口：部分档位必须收敛或被丢弃。
	in := Inputs{
		Mid:            1.0,
		BestBid:        0.999,
		BestAsk:        1.001,
		Skew:           0.9, // 大幅内收 bid
		BaseAvailable:  1e9,
		QuoteAvailable: 1e9,
	}
	cfg.MinSpreadPct = 0.0001
	cfg.SkewMultiplier = 1.0

	ladder, _ := Compute(cfg, in)
	for _, q := range ladder.Bids {
		assert.Less(t, q.Price.InexactFloat64(), in.BestAsk)
	}
	for _, q := range ladder.Asks {
		assert.Greater(t, q.Price.InexactFloat64(), in.BestBid)
	}
}

func TestCompute_CrossedLevelClampedToTick(t *testing.T) {
	cfg := baseConfig()
	cfg.NumLevels = 1
	cfg.MinSpreadPct = 0.0000001
	cfg.SpreadPct = 0.0000001
	cfg.PriceDecimals = 2
	in := Inputs{
		Mid: 1.0, BestBid: 0.90, BestAsk: 0.98,
		BaseAvailable: 1e9, QuoteAvailable: 1e9,
	}

	ladder, dropped := Compute(cfg, in)
	require.Empty(t, dropped)
	require.Len(t, ladder.Bids, 1)
	// bid 0.9999999 取整到 1.00，退到下限边界 0.99 后仍触及卖一 0.98
	// → 收敛到卖一下方一跳。
	assert.True(t, ladder.Bids[0].Price.Equal(decimal.RequireFromString("0.97")), "bid %s", ladder.Bids[0].Price)
}

func TestCompute_UnclampableLevelDropped(t *testing.T) {
	cfg := baseConfig()
	cfg.NumLevels = 1
	cfg.MinSpreadPct = 0.0000001
	cfg.SpreadPct = 0.0000001
	cfg.PriceDecimals = 0 // tick = 1：收敛后买价归零，必须放弃
	in := Inputs{
		Mid: 1.0, BestBid: 1.0, BestAsk: 1.0,
		BaseAvailable: 1e9, QuoteAvailable: 1e9,
	}

	ladder, dropped := Compute(cfg, in)
	assert.Empty(t, ladder.Bids)
	require.NotEmpty(t, dropped)
	assert.Equal(t, DropCrossed, dropped[0].Reason)
}

func TestCompute_ZeroQuantityDropped(t *testing.T) {
	cfg := baseConfig()
	cfg.BaseQuantity = 0.4 // 数量精度 0 位 → 向下取整为 0
	cfg.NumLevels = 1
	ladder, dropped := Compute(cfg, wideBook(1.0))
	assert.Empty(t, ladder.Bids)
	assert.Empty(t, ladder.Asks)
	require.Len(t, dropped, 2)
	assert.Equal(t, DropPrecision, dropped[0].Reason)
}

func TestCompute_BudgetCapsSideNotional(t *testing.T) {
	cfg := baseConfig()
	cfg.NumLevels = 3
	in := wideBook(1.0)
	// 买侧预算只够第一档：1000*0.98≈980。
	in.QuoteAvailable = 1500 // cap 0.8 → 预算 1200
	in.BaseAvailable = 1e9

	ladder, dropped := Compute(cfg, in)
	require.Len(t, ladder.Bids, 1)
	assert.Len(t, ladder.Asks, 3)

	var budgetDrops int
	for _, d := range dropped {
		if d.Reason == DropBudget && d.Side == exchange.SideBuy {
			budgetDrops++
		}
	}
	assert.Equal(t, 2, budgetDrops)

	// 侧向总名义不超过 cap*余额。
	total := 0.0
	for _, q := range ladder.Bids {
		total += q.Price.Mul(q.Quantity).InexactFloat64()
	}
	assert.LessOrEqual(t, total, in.QuoteAvailable*cfg.BalanceUsageCap)
}

func TestCompute_RoundingDirections(t *testing.T) {
	cfg := baseConfig()
	cfg.NumLevels = 2
	cfg.PriceDecimals = 8
	in := wideBook(0.0000375)

	ladder, _ := Compute(cfg, in)
	require.Len(t, ladder.Bids, 2)
	// bid1 原始 0.0000365625：价格向 mid（向上）取整。
	assert.True(t, ladder.Bids[1].Price.Equal(decimal.RequireFromString("0.00003657")), "bid1 %s", ladder.Bids[1].Price)
	// ask1 原始 0.0000384375：向 mid（向下）取整。
	assert.True(t, ladder.Asks[1].Price.Equal(decimal.RequireFromString("0.00003843")), "ask1 %s", ladder.Asks[1].Price)
}

func TestCompute_CoarseTickRoundingHoldsMinSpread(t *testing.T) {
	// 粗跳场所：向 mid 取整会把报价抬回价差下限以内，
	// 必须退到下限边界价之外，绝不贴着 mid 挂单。
	cfg := baseConfig()
	cfg.NumLevels = 1
	cfg.SpreadPct = 0.02
	cfg.MinSpreadPct = 0.02
	cfg.PriceDecimals = 1 // tick = 0.1
	in := Inputs{
		Mid: 1.0, BestBid: 0.5, BestAsk: 1.5,
		BaseAvailable: 1e9, QuoteAvailable: 1e9,
	}

	ladder, dropped := Compute(cfg, in)
	require.Empty(t, dropped)
	require.Len(t, ladder.Bids, 1)
	require.Len(t, ladder.Asks, 1)

	// 原始 bid 0.98 向上取整到 1.0（价差归零）→ 退到 floor(0.98)=0.9。
	assert.True(t, ladder.Bids[0].Price.Equal(decimal.RequireFromString("0.9")), "bid %s", ladder.Bids[0].Price)
	// 原始 ask 1.02 向下取整到 1.0 → 退到 ceil(1.02)=1.1。
	assert.True(t, ladder.Asks[0].Price.Equal(decimal.RequireFromString("1.1")), "ask %s", ladder.Asks[0].Price)

	// 两侧有效价差都不低于下限。
	bid := ladder.Bids[0].Price.InexactFloat64()
	ask := ladder.Asks[0].Price.InexactFloat64()
	assert.GreaterOrEqual(t, (in.Mid-bid)/in.Mid, cfg.MinSpreadPct)
	assert.GreaterOrEqual(t, (ask-in.Mid)/in.Mid, cfg.MinSpreadPct)
}

func TestCompute_InvalidInputs(t *testing.T) {
	cfg := baseConfig()
	ladder, dropped := Compute(cfg, Inputs{Mid: 0})
	assert.Empty(t, ladder.Bids)
	assert.Empty(t, dropped)

	cfg.NumLevels = 0
	ladder, _ = Compute(cfg, wideBook(1.0))
	assert.Empty(t, ladder.Asks)
}
