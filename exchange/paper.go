package exchange

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ErrInsufficientBalance 下单资金不足。
var ErrInsufficientBalance = errors.New("insufficient balance")

// Paper 进程内模拟场所：维护合成盘口与账户，撮合规则为
// “对侧触价穿过挂单价即成交”。用于 --paper 运行与集成测试。
type Paper struct {
	mu   sync.Mutex
	pair string
	meta PairMetadata

	mid        decimal.Decimal
	touchWidth decimal.Decimal // mid 两侧合成触价的半宽

	bal    AccountBalances
	orders map[string]*OrderHandle
}

// NewPaper 构造模拟场所。
func NewPaper(pair string, meta PairMetadata, baseStart, quoteStart, startMid decimal.Decimal) *Paper {
	return &Paper{
		pair:       pair,
		meta:       meta,
		mid:        startMid,
		touchWidth: startMid.Mul(decimal.NewFromFloat(0.001)),
		bal: AccountBalances{
			BaseAvailable:  baseStart,
			QuoteAvailable: quoteStart,
			BaseHeld:       decimal.Zero,
			QuoteHeld:      decimal.Zero,
		},
		orders: make(map[string]*OrderHandle),
	}
}

func (p *Paper) bestBid() decimal.Decimal { return p.mid.Sub(p.touchWidth) }
func (p *Paper) bestAsk() decimal.Decimal { return p.mid.Add(p.touchWidth) }

// SetMid 移动中间价并撮合被穿过的挂单。
func (p *Paper) SetMid(mid decimal.Decimal) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if mid.Sign() <= 0 {
		return
	}
	p.mid = mid
	p.matchLocked()
}

// Mid 返回当前中间价。
func (p *Paper) Mid() decimal.Decimal {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.mid
}

// matchLocked 以当前触价撮合：买单在 bestAsk <= price 时成交，卖单对称。
func (p *Paper) matchLocked() {
	for id, o := range p.orders {
		remaining := o.Quantity.Sub(o.FilledQuantity)
		if remaining.Sign() <= 0 {
			continue
		}
		crossed := (o.Side == SideBuy && p.bestAsk().LessThanOrEqual(o.Price)) ||
			(o.Side == SideSell && p.bestBid().GreaterThanOrEqual(o.Price))
		if !crossed {
			continue
		}
		p.fillLocked(o, remaining)
		if o.Status == StatusFilled {
			delete(p.orders, id)
		}
	}
}

// FillOrder 按指定数量部分成交一笔挂单（测试钩子）。
func (p *Paper) FillOrder(orderID string, qty decimal.Decimal) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	o, ok := p.orders[orderID]
	if !ok {
		return ErrOrderNotFound
	}
	remaining := o.Quantity.Sub(o.FilledQuantity)
	if qty.GreaterThan(remaining) {
		qty = remaining
	}
	p.fillLocked(o, qty)
	if o.Status == StatusFilled {
		delete(p.orders, orderID)
	}
	return nil
}

func (p *Paper) fillLocked(o *OrderHandle, qty decimal.Decimal) {
	notional := o.Price.Mul(qty)
	if o.Side == SideBuy {
		p.bal.QuoteHeld = p.bal.QuoteHeld.Sub(notional)
		p.bal.BaseAvailable = p.bal.BaseAvailable.Add(qty)
	} else {
		p.bal.BaseHeld = p.bal.BaseHeld.Sub(qty)
		p.bal.QuoteAvailable = p.bal.QuoteAvailable.Add(notional)
	}
	o.FilledQuantity = o.FilledQuantity.Add(qty)
	if o.FilledQuantity.GreaterThanOrEqual(o.Quantity) {
		o.Status = StatusFilled
	} else {
		o.Status = StatusPartial
	}
}

// RandomWalk 以固定间隔对 mid 做小幅随机游走，直到 ctx 结束。
func (p *Paper) RandomWalk(ctx context.Context, interval time.Duration, stepPct float64) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			jitter := (rand.Float64()*2 - 1) * stepPct
			next := p.Mid().Mul(decimal.NewFromFloat(1 + jitter))
			p.SetMid(next)
		}
	}
}

func (p *Paper) GetOrderbook(ctx context.Context, pair string) (Orderbook, error) {
	if err := ctx.Err(); err != nil {
		return Orderbook{}, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	tick := p.meta.Tick()
	depthQty := decimal.NewFromInt(1000)
	ob := Orderbook{LastPrice: p.mid, Timestamp: time.Now()}
	for i := 0; i < 5; i++ {
		step := tick.Mul(decimal.NewFromInt(int64(i)))
		ob.Bids = append(ob.Bids, BookLevel{Price: p.bestBid().Sub(step), Quantity: depthQty})
		ob.Asks = append(ob.Asks, BookLevel{Price: p.bestAsk().Add(step), Quantity: depthQty})
	}
	return ob, nil
}

func (p *Paper) GetBalances(ctx context.Context) (AccountBalances, error) {
	if err := ctx.Err(); err != nil {
		return AccountBalances{}, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.bal, nil
}

func (p *Paper) PlaceLimitOrder(ctx context.Context, pair string, side Side, price, qty decimal.Decimal) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if price.Sign() <= 0 || qty.Sign() <= 0 {
		return "", errors.New("invalid price or quantity")
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	// 冻结资金；余额不足直接拒单。
	if side == SideBuy {
		notional := price.Mul(qty)
		if p.bal.QuoteAvailable.LessThan(notional) {
			return "", ErrInsufficientBalance
		}
		p.bal.QuoteAvailable = p.bal.QuoteAvailable.Sub(notional)
		p.bal.QuoteHeld = p.bal.QuoteHeld.Add(notional)
	} else {
		if p.bal.BaseAvailable.LessThan(qty) {
			return "", ErrInsufficientBalance
		}
		p.bal.BaseAvailable = p.bal.BaseAvailable.Sub(qty)
		p.bal.BaseHeld = p.bal.BaseHeld.Add(qty)
	}

	id := uuid.NewString()
	p.orders[id] = &OrderHandle{
		ID:             id,
		Side:           side,
		Price:          price,
		Quantity:       qty,
		FilledQuantity: decimal.Zero,
		Status:         StatusOpen,
	}
	p.matchLocked()
	return id, nil
}

func (p *Paper) CancelOrder(ctx context.Context, orderID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cancelLocked(orderID)
}

func (p *Paper) cancelLocked(orderID string) error {
	o, ok := p.orders[orderID]
	if !ok {
		return ErrOrderNotFound
	}
	remaining := o.Quantity.Sub(o.FilledQuantity)
	if o.Side == SideBuy {
		notional := o.Price.Mul(remaining)
		p.bal.QuoteHeld = p.bal.QuoteHeld.Sub(notional)
		p.bal.QuoteAvailable = p.bal.QuoteAvailable.Add(notional)
	} else {
		p.bal.BaseHeld = p.bal.BaseHeld.Sub(remaining)
		p.bal.BaseAvailable = p.bal.BaseAvailable.Add(remaining)
	}
	delete(p.orders, orderID)
	return nil
}

func (p *Paper) CancelAllOrders(ctx context.Context, pair string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	for id := range p.orders {
		_ = p.cancelLocked(id)
	}
	return nil
}

func (p *Paper) ListOpenOrders(ctx context.Context, pair string) ([]OrderHandle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]OrderHandle, 0, len(p.orders))
	for _, o := range p.orders {
		out = append(out, *o)
	}
	return out, nil
}

func (p *Paper) GetPairMetadata(ctx context.Context, pair string) (PairMetadata, error) {
	if err := ctx.Err(); err != nil {
		return PairMetadata{}, err
	}
	return p.meta, nil
}
