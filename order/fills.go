package order

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"quoter-go/exchange"
	"quoter-go/market"
)

// Fill 一次检出的成交。每个 (OrderID, Seq) 只记录一次，
// 对相同状态的重复轮询保持幂等。
type Fill struct {
	OrderID    string
	Seq        int
	Side       exchange.Side
	Price      decimal.Decimal
	Quantity   decimal.Decimal
	DetectedAt time.Time
}

// Notional 返回成交名义价值。
func (f Fill) Notional() decimal.Decimal {
	return f.Price.Mul(f.Quantity)
}

// Detector 周期间成交侦测：对比上一周期的“假定在场”集合与余额
// 和当前场所状态的差异。
type Detector struct {
	mu    sync.Mutex
	acked map[string]decimal.Decimal // 已入账的累计成交量
	seq   map[string]int
	done  map[string]bool // 已整单入账、等待登记簿清理的订单
}

// NewDetector 创建侦测器。
func NewDetector() *Detector {
	return &Detector{
		acked: make(map[string]decimal.Decimal),
		seq:   make(map[string]int),
		done:  make(map[string]bool),
	}
}

// Diff 返回新检出的成交与应从登记簿移除的订单号。
//
// 场所侧仍在的订单按累计成交量的增量入账；从场所消失的订单
// 先视为整单成交候选，再用余额位移方向验证——余额未朝成交方向
// 移动的消失订单按外部撤单处理（removed 但不入账），避免把
// 丢单记成成交。
func (d *Detector) Diff(tracked []Handle, open []exchange.OrderHandle, prev, cur market.Balances) (fills []Fill, removed []string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	byID := make(map[string]exchange.OrderHandle, len(open))
	for _, o := range open {
		byID[o.ID] = o
	}

	baseDelta := cur.BaseTotal() - prev.BaseTotal()
	buyBudget := baseDelta   // 买成交消耗的余额位移额度
	sellBudget := -baseDelta // 卖成交对称

	now := time.Now()
	for _, h := range tracked {
		if d.done[h.ID] {
			removed = append(removed, h.ID)
			continue
		}

		if venue, ok := byID[h.ID]; ok {
			prevAcked := d.acked[h.ID]
			if venue.FilledQuantity.GreaterThan(prevAcked) {
				delta := venue.FilledQuantity.Sub(prevAcked)
				d.seq[h.ID]++
				d.acked[h.ID] = venue.FilledQuantity
				fills = append(fills, Fill{
					OrderID: h.ID, Seq: d.seq[h.ID], Side: h.Side,
					Price: h.Price, Quantity: delta, DetectedAt: now,
				})
			}
			continue
		}

		// 订单已从场所消失：剩余量即候选成交量。
		remaining := h.Quantity.Sub(d.acked[h.ID])
		if remaining.Sign() <= 0 {
			removed = append(removed, h.ID)
			d.forget(h.ID)
			continue
		}

		qty := remaining.InexactFloat64()
		confirmed := false
		if h.Side == exchange.SideBuy && buyBudget >= qty*0.5 {
			buyBudget -= qty
			confirmed = true
		} else if h.Side == exchange.SideSell && sellBudget >= qty*0.5 {
			sellBudget -= qty
			confirmed = true
		}

		if confirmed {
			d.seq[h.ID]++
			fills = append(fills, Fill{
				OrderID: h.ID, Seq: d.seq[h.ID], Side: h.Side,
				Price: h.Price, Quantity: remaining, DetectedAt: now,
			})
			d.acked[h.ID] = h.Quantity
			d.done[h.ID] = true
		}
		removed = append(removed, h.ID)
	}

	d.gc(tracked)
	return fills, removed
}

// Forget 主动清除某订单的侦测状态（主动撤单确认后调用）。
func (d *Detector) Forget(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.forget(id)
}

func (d *Detector) forget(id string) {
	delete(d.acked, id)
	delete(d.seq, id)
	delete(d.done, id)
}

// gc 丢弃不再被跟踪的订单状态，防止长跑泄漏。
func (d *Detector) gc(tracked []Handle) {
	live := make(map[string]bool, len(tracked))
	for _, h := range tracked {
		live[h.ID] = true
	}
	for id := range d.acked {
		if !live[id] {
			d.forget(id)
		}
	}
}
