// Package exchange 定义撮合场所抽象：报价引擎只依赖这里的接口，
// 不关心签名、限流与报文格式。价格与数量以 decimal 过界，绝不使用二进制浮点。
package exchange

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Side 买卖方向。
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Status 订单在场所侧的生命周期状态。
type Status string

const (
	StatusOpen     Status = "OPEN"
	StatusPartial  Status = "PARTIAL"
	StatusFilled   Status = "FILLED"
	StatusCanceled Status = "CANCELED"
)

// BookLevel 盘口档位。
type BookLevel struct {
	Price    decimal.Decimal
	Quantity decimal.Decimal
}

// Orderbook 成交簿快照；Bids/Asks 由优到劣排序。
type Orderbook struct {
	Bids      []BookLevel
	Asks      []BookLevel
	LastPrice decimal.Decimal
	Timestamp time.Time
}

// AccountBalances 账户余额（可用/冻结），以交易对基础币与计价币区分。
type AccountBalances struct {
	BaseAvailable  decimal.Decimal
	BaseHeld       decimal.Decimal
	QuoteAvailable decimal.Decimal
	QuoteHeld      decimal.Decimal
}

// OrderHandle 场所侧的挂单视图。
type OrderHandle struct {
	ID             string
	Side           Side
	Price          decimal.Decimal
	Quantity       decimal.Decimal
	FilledQuantity decimal.Decimal
	Status         Status
}

// PairMetadata 交易对精度元数据，开机时加载一次。
type PairMetadata struct {
	PriceDecimals    int
	QuantityDecimals int
}

// Tick 返回该精度下的最小价格步长。
func (m PairMetadata) Tick() decimal.Decimal {
	return decimal.New(1, int32(-m.PriceDecimals))
}

// Client 交易所协作方接口；所有调用可阻塞，必须受 context 超时约束。
type Client interface {
	GetOrderbook(ctx context.Context, pair string) (Orderbook, error)
	GetBalances(ctx context.Context) (AccountBalances, error)
	PlaceLimitOrder(ctx context.Context, pair string, side Side, price, qty decimal.Decimal) (string, error)
	CancelOrder(ctx context.Context, orderID string) error
	CancelAllOrders(ctx context.Context, pair string) error
	ListOpenOrders(ctx context.Context, pair string) ([]OrderHandle, error)
	GetPairMetadata(ctx context.Context, pair string) (PairMetadata, error)
}
