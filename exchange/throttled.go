package exchange

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"
)

// Throttled 包装任意 Client：限速 + 每次调用的有界超时，
// 并把底层错误收敛到 FetchError/PlacementError/CancellationError。
// 超时是错误，绝不是崩溃。
type Throttled struct {
	inner   Client
	limiter *rate.Limiter
	timeout time.Duration
}

// NewThrottled 构造包装器；rps 为每秒请求数，burst 为突发上限。
func NewThrottled(inner Client, rps float64, burst int, timeout time.Duration) *Throttled {
	if rps <= 0 {
		rps = 5
	}
	if burst <= 0 {
		burst = 1
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Throttled{
		inner:   inner,
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
		timeout: timeout,
	}
}

func (t *Throttled) acquire(ctx context.Context) (context.Context, context.CancelFunc, error) {
	cctx, cancel := context.WithTimeout(ctx, t.timeout)
	if err := t.limiter.Wait(cctx); err != nil {
		cancel()
		return nil, nil, err
	}
	return cctx, cancel, nil
}

func (t *Throttled) GetOrderbook(ctx context.Context, pair string) (Orderbook, error) {
	cctx, cancel, err := t.acquire(ctx)
	if err != nil {
		return Orderbook{}, &FetchError{Op: "orderbook", Err: err}
	}
	defer cancel()
	ob, err := t.inner.GetOrderbook(cctx, pair)
	if err != nil {
		return Orderbook{}, &FetchError{Op: "orderbook", Err: err}
	}
	return ob, nil
}

func (t *Throttled) GetBalances(ctx context.Context) (AccountBalances, error) {
	cctx, cancel, err := t.acquire(ctx)
	if err != nil {
		return AccountBalances{}, &FetchError{Op: "balances", Err: err}
	}
	defer cancel()
	b, err := t.inner.GetBalances(cctx)
	if err != nil {
		return AccountBalances{}, &FetchError{Op: "balances", Err: err}
	}
	return b, nil
}

func (t *Throttled) PlaceLimitOrder(ctx context.Context, pair string, side Side, price, qty decimal.Decimal) (string, error) {
	cctx, cancel, err := t.acquire(ctx)
	if err != nil {
		return "", &PlacementError{Side: side, Price: price, Quantity: qty, Err: err}
	}
	defer cancel()
	id, err := t.inner.PlaceLimitOrder(cctx, pair, side, price, qty)
	if err != nil {
		return "", &PlacementError{Side: side, Price: price, Quantity: qty, Err: err}
	}
	return id, nil
}

func (t *Throttled) CancelOrder(ctx context.Context, orderID string) error {
	cctx, cancel, err := t.acquire(ctx)
	if err != nil {
		return &CancellationError{OrderID: orderID, Err: err}
	}
	defer cancel()
	if err := t.inner.CancelOrder(cctx, orderID); err != nil {
		return &CancellationError{OrderID: orderID, Err: err}
	}
	return nil
}

func (t *Throttled) CancelAllOrders(ctx context.Context, pair string) error {
	cctx, cancel, err := t.acquire(ctx)
	if err != nil {
		return &CancellationError{OrderID: "*", Err: err}
	}
	defer cancel()
	if err := t.inner.CancelAllOrders(cctx, pair); err != nil {
		return &CancellationError{OrderID: "*", Err: err}
	}
	return nil
}

func (t *Throttled) ListOpenOrders(ctx context.Context, pair string) ([]OrderHandle, error) {
	cctx, cancel, err := t.acquire(ctx)
	if err != nil {
		return nil, &FetchError{Op: "open_orders", Err: err}
	}
	defer cancel()
	hs, err := t.inner.ListOpenOrders(cctx, pair)
	if err != nil {
		return nil, &FetchError{Op: "open_orders", Err: err}
	}
	return hs, nil
}

func (t *Throttled) GetPairMetadata(ctx context.Context, pair string) (PairMetadata, error) {
	cctx, cancel, err := t.acquire(ctx)
	if err != nil {
		return PairMetadata{}, &FetchError{Op: "metadata", Err: err}
	}
	defer cancel()
	md, err := t.inner.GetPairMetadata(cctx, pair)
	if err != nil {
		return PairMetadata{}, &FetchError{Op: "metadata", Err: err}
	}
	return md, nil
}
