package order

import (
	"sync"

	"quoter-go/exchange"
)

// lot 未配对的持仓批次。
type lot struct {
	qty   float64
	price float64
}

// Ledger FIFO 盈亏台账：买入批次与卖出批次先进先出配对，
// 配对部分计入已实现盈亏，未配对持仓按当前 mid 计未实现。
type Ledger struct {
	mu       sync.Mutex
	longs    []lot // 待配对的买入
	shorts   []lot // 以初始库存卖出形成的待配对卖出
	realized float64
}

// NewLedger 创建空台账。
func NewLedger() *Ledger {
	return &Ledger{}
}

// Record 记入一笔成交，返回本笔产生的已实现盈亏增量（已扣手续费）。
func (l *Ledger) Record(side exchange.Side, qty, price, fee float64) float64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	delta := -fee
	if side == exchange.SideBuy {
		// 先与未配对卖出配对：卖价 − 买价。
		rest := qty
		for rest > 0 && len(l.shorts) > 0 {
			s := &l.shorts[0]
			matched := min(rest, s.qty)
			delta += (s.price - price) * matched
			s.qty -= matched
			rest -= matched
			if s.qty <= 0 {
				l.shorts = l.shorts[1:]
			}
		}
		if rest > 0 {
			l.longs = append(l.longs, lot{qty: rest, price: price})
		}
	} else {
		rest := qty
		for rest > 0 && len(l.longs) > 0 {
			b := &l.longs[0]
			matched := min(rest, b.qty)
			delta += (price - b.price) * matched
			b.qty -= matched
			rest -= matched
			if b.qty <= 0 {
				l.longs = l.longs[1:]
			}
		}
		if rest > 0 {
			l.shorts = append(l.shorts, lot{qty: rest, price: price})
		}
	}

	l.realized += delta
	return delta
}

// Realized 返回累计已实现盈亏。
func (l *Ledger) Realized() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.realized
}

// Unrealized 按当前 mid 给未配对持仓估值。
func (l *Ledger) Unrealized(mid float64) float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	u := 0.0
	for _, b := range l.longs {
		u += (mid - b.price) * b.qty
	}
	for _, s := range l.shorts {
		u += (s.price - mid) * s.qty
	}
	return u
}

// OpenPosition 返回未配对净持仓（正=多）。
func (l *Ledger) OpenPosition() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	net := 0.0
	for _, b := range l.longs {
		net += b.qty
	}
	for _, s := range l.shorts {
		net -= s.qty
	}
	return net
}
