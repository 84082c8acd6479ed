package market

import (
	"time"

	"github.com/shopspring/decimal"
)

// Snapshot 表示一次规整后的盘口快照；每个周期由外部提供。
type Snapshot struct {
	BestBid   float64
	BestAsk   float64
	Mid       float64
	LastPrice float64 // 盘口单边为空时的回退价
	Timestamp time.Time
}

// NewSnapshot 由 decimal 盘口字段构造快照；bid/ask 任一为空时 mid 退化为 last。
func NewSnapshot(bestBid, bestAsk, last decimal.Decimal, ts time.Time) Snapshot {
	s := Snapshot{
		BestBid:   bestBid.InexactFloat64(),
		BestAsk:   bestAsk.InexactFloat64(),
		LastPrice: last.InexactFloat64(),
		Timestamp: ts,
	}
	if s.BestBid > 0 && s.BestAsk > 0 {
		s.Mid = (s.BestBid + s.BestAsk) / 2
	} else {
		s.Mid = s.LastPrice
	}
	return s
}

// Valid 报告快照是否包含可用的参考价。
func (s Snapshot) Valid() bool {
	return s.Mid > 0
}

// Spread 返回盘口绝对价差；单边为空时为 0。
func (s Snapshot) Spread() float64 {
	if s.BestBid <= 0 || s.BestAsk <= 0 {
		return 0
	}
	return s.BestAsk - s.BestBid
}

// Balances 持仓余额视图：可用与冻结（挂单占用）分开记录。
type Balances struct {
	BaseAvailable  float64
	BaseHeld       float64
	QuoteAvailable float64
	QuoteHeld      float64
}

// NewBalances 由交易所返回的 decimal 值构造。
func NewBalances(baseAvail, baseHeld, quoteAvail, quoteHeld decimal.Decimal) Balances {
	return Balances{
		BaseAvailable:  baseAvail.InexactFloat64(),
		BaseHeld:       baseHeld.InexactFloat64(),
		QuoteAvailable: quoteAvail.InexactFloat64(),
		QuoteHeld:      quoteHeld.InexactFloat64(),
	}
}

// BaseTotal 返回基础币总量（可用+冻结）。
func (b Balances) BaseTotal() float64 { return b.BaseAvailable + b.BaseHeld }

// QuoteTotal 返回计价币总量（可用+冻结）。
func (b Balances) QuoteTotal() float64 { return b.QuoteAvailable + b.QuoteHeld }
