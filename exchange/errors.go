package exchange

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// ErrOrderNotFound 撤单/查询时订单已不存在。
var ErrOrderNotFound = errors.New("order not found")

// FetchError 行情/余额拉取失败；瞬态错误，下个周期重试。
type FetchError struct {
	Op  string // orderbook / balances / open_orders / metadata
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.Op, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// PlacementError 单笔下单失败；携带足够上下文供观测端还原决策。
type PlacementError struct {
	Side     Side
	Price    decimal.Decimal
	Quantity decimal.Decimal
	Err      error
}

func (e *PlacementError) Error() string {
	return fmt.Sprintf("place %s %s@%s: %v", e.Side, e.Quantity, e.Price, e.Err)
}

func (e *PlacementError) Unwrap() error { return e.Err }

// CancellationError 单笔撤单失败。
type CancellationError struct {
	OrderID string
	Err     error
}

func (e *CancellationError) Error() string {
	return fmt.Sprintf("cancel %s: %v", e.OrderID, e.Err)
}

func (e *CancellationError) Unwrap() error { return e.Err }
