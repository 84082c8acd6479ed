// Package strategy 实现纯函数式的多档报价计算：
// (mid, 配置, skew) → 目标买卖梯子。无内部状态，可完全确定性测试。
package strategy

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"quoter-go/exchange"
)

// Config 报价参数；运行期不可变。
type Config struct {
	SpreadPct          float64
	NumLevels          int
	LevelStepPct       float64
	BaseQuantity       float64
	QuantityMultiplier float64
	MinSpreadPct       float64
	SkewMultiplier     float64
	BalanceUsageCap    float64

	PriceDecimals    int
	QuantityDecimals int
}

// Inputs 单次计算的输入快照。
type Inputs struct {
	Mid     float64
	BestBid float64
	BestAsk float64
	// Skew 已由风控按配置上限截断；负值表示基础币持仓过重。
	Skew float64
	// 可用余额，用于侧向预算上限。
	BaseAvailable  float64
	QuoteAvailable float64
}

// Quote 单档目标挂单；价格数量已按场所精度规整。
type Quote struct {
	Side     exchange.Side
	Level    int
	Price    decimal.Decimal
	Quantity decimal.Decimal
}

// Ladder 目标挂单集合，距 mid 最近的档位在前。每周期重算并丢弃。
type Ladder struct {
	Bids []Quote
	Asks []Quote
}

// DropReason 档位被丢弃的原因。
type DropReason string

const (
	DropCrossed   DropReason = "crossed"
	DropPrecision DropReason = "precision"
	DropBudget    DropReason = "budget"
)

// Dropped 记录被放弃的档位，供观测端还原决策。
type Dropped struct {
	Side   exchange.Side
	Level  int
	Reason DropReason
	Detail string
}

// PrecisionError 精度规整后价格/数量不再合法。
type PrecisionError struct {
	Side  exchange.Side
	Level int
	Msg   string
}

func (e *PrecisionError) Error() string {
	return fmt.Sprintf("precision: %s level %d: %s", e.Side, e.Level, e.Msg)
}

// Compute 生成目标梯子。
//
// 每档 i：base_offset = spreadPct + i*levelStepPct，
// bid_offset = max(base_offset - skew*skewMultiplier, minSpreadPct)，
// ask_offset = max(base_offset + skew*skewMultiplier, minSpreadPct)。
// skew < 0（基础币过重）时 bid 外移、ask 内收，反向对称；
// 任何 skew 下单侧有效价差不低于 minSpreadPct。
// 数量 = baseQuantity * multiplier^i（规整前），
// 数量向下取整，价格向 mid 取整；取整把价格抬回价差下限以内时
// 退到下限边界价之外；穿越对侧触价时收敛到一跳以内，
// 仍不合法则放弃该档而不冒吃单风险。
func Compute(cfg Config, in Inputs) (Ladder, []Dropped) {
	var (
		ladder  Ladder
		dropped []Dropped
	)
	if cfg.NumLevels < 1 || in.Mid <= 0 {
		return ladder, dropped
	}

	tick := decimal.New(1, int32(-cfg.PriceDecimals))
	bestBid := decimal.NewFromFloat(in.BestBid)
	bestAsk := decimal.NewFromFloat(in.BestAsk)

	// 价差下限的边界价。下限价向远离 mid 的方向取整：粗跳场所上
	// 向 mid 取整可能把价格抬回下限以内，越界时收敛到这里。
	floorBid := decimal.NewFromFloat(in.Mid * (1 - cfg.MinSpreadPct)).RoundFloor(int32(cfg.PriceDecimals))
	floorAsk := decimal.NewFromFloat(in.Mid * (1 + cfg.MinSpreadPct)).RoundCeil(int32(cfg.PriceDecimals))

	buyBudget := in.QuoteAvailable * cfg.BalanceUsageCap
	sellBudget := in.BaseAvailable * cfg.BalanceUsageCap

	for i := 0; i < cfg.NumLevels; i++ {
		baseOffset := cfg.SpreadPct + float64(i)*cfg.LevelStepPct
		bidOffset := math.Max(baseOffset-in.Skew*cfg.SkewMultiplier, cfg.MinSpreadPct)
		askOffset := math.Max(baseOffset+in.Skew*cfg.SkewMultiplier, cfg.MinSpreadPct)
		rawQty := cfg.BaseQuantity * math.Pow(cfg.QuantityMultiplier, float64(i))

		// --- bid ---
		bidPrice := decimal.NewFromFloat(in.Mid * (1 - bidOffset)).RoundCeil(int32(cfg.PriceDecimals))
		if bidPrice.GreaterThan(floorBid) {
			bidPrice = floorBid
		}
		qty := decimal.NewFromFloat(rawQty).RoundFloor(int32(cfg.QuantityDecimals))
		if q, drop := buildLevel(exchange.SideBuy, i, bidPrice, qty, bestBid, bestAsk, tick); drop != nil {
			dropped = append(dropped, *drop)
		} else {
			notional := q.Price.Mul(q.Quantity).InexactFloat64()
			if notional > buyBudget {
				dropped = append(dropped, Dropped{
					Side: exchange.SideBuy, Level: i, Reason: DropBudget,
					Detail: fmt.Sprintf("notional %.8f exceeds remaining budget %.8f", notional, buyBudget),
				})
			} else {
				buyBudget -= notional
				ladder.Bids = append(ladder.Bids, q)
			}
		}

		// --- ask ---
		askPrice := decimal.NewFromFloat(in.Mid * (1 + askOffset)).RoundFloor(int32(cfg.PriceDecimals))
		if askPrice.LessThan(floorAsk) {
			askPrice = floorAsk
		}
		if q, drop := buildLevel(exchange.SideSell, i, askPrice, qty, bestBid, bestAsk, tick); drop != nil {
			dropped = append(dropped, *drop)
		} else {
			qf := q.Quantity.InexactFloat64()
			if qf > sellBudget {
				dropped = append(dropped, Dropped{
					Side: exchange.SideSell, Level: i, Reason: DropBudget,
					Detail: fmt.Sprintf("quantity %.8f exceeds remaining inventory %.8f", qf, sellBudget),
				})
			} else {
				sellBudget -= qf
				ladder.Asks = append(ladder.Asks, q)
			}
		}
	}
	return ladder, dropped
}

// buildLevel 应用穿越保护与精度校验，返回合法档位或丢弃记录。
func buildLevel(side exchange.Side, level int, price, qty, bestBid, bestAsk, tick decimal.Decimal) (Quote, *Dropped) {
	if qty.Sign() <= 0 {
		return Quote{}, &Dropped{Side: side, Level: level, Reason: DropPrecision,
			Detail: (&PrecisionError{Side: side, Level: level, Msg: "quantity rounds to zero"}).Error()}
	}

	if side == exchange.SideBuy {
		// 买价不得触及对侧卖一；先收敛到卖一下方一跳。
		if bestAsk.Sign() > 0 && price.GreaterThanOrEqual(bestAsk) {
			price = bestAsk.Sub(tick)
		}
		if price.Sign() <= 0 || (bestAsk.Sign() > 0 && price.GreaterThanOrEqual(bestAsk)) {
			return Quote{}, &Dropped{Side: side, Level: level, Reason: DropCrossed,
				Detail: fmt.Sprintf("bid %s would cross ask %s", price, bestAsk)}
		}
	} else {
		if bestBid.Sign() > 0 && price.LessThanOrEqual(bestBid) {
			price = bestBid.Add(tick)
		}
		if price.Sign() <= 0 || (bestBid.Sign() > 0 && price.LessThanOrEqual(bestBid)) {
			return Quote{}, &Dropped{Side: side, Level: level, Reason: DropCrossed,
				Detail: fmt.Sprintf("ask %s would cross bid %s", price, bestBid)}
		}
	}
	return Quote{Side: side, Level: level, Price: price, Quantity: qty}, nil
}

// RawQuantity 返回规整前的第 i 档数量（供测试与观测对账）。
func RawQuantity(cfg Config, level int) float64 {
	return cfg.BaseQuantity * math.Pow(cfg.QuantityMultiplier, float64(level))
}
