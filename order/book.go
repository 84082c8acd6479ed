// Package order 维护“假定在场”的挂单集合、周期间成交侦测与 FIFO 盈亏核算。
package order

import (
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"quoter-go/exchange"
)

// Handle 编排器侧的挂单句柄：下单回执时建立，撤单回执或检出成交时移除。
type Handle struct {
	ID       string
	Side     exchange.Side
	Price    decimal.Decimal
	Quantity decimal.Decimal
	Filled   decimal.Decimal
	Level    int
	PlacedAt time.Time
}

// Remaining 返回未成交数量。
func (h Handle) Remaining() decimal.Decimal {
	return h.Quantity.Sub(h.Filled)
}

// Book 挂单登记簿；编排器独占写，观测端通过快照只读。
type Book struct {
	mu     sync.RWMutex
	orders map[string]*Handle
}

// NewBook 创建空登记簿。
func NewBook() *Book {
	return &Book{orders: make(map[string]*Handle)}
}

// Add 登记一笔已确认的挂单。
func (b *Book) Add(h Handle) {
	b.mu.Lock()
	defer b.mu.Unlock()
	cp := h
	b.orders[h.ID] = &cp
}

// Remove 移除挂单；不存在时为空操作。
func (b *Book) Remove(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.orders, id)
}

// MarkFilled 更新累计成交量。
func (b *Book) MarkFilled(id string, filled decimal.Decimal) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if o, ok := b.orders[id]; ok {
		o.Filled = filled
	}
}

// Get 返回句柄副本。
func (b *Book) Get(id string) (Handle, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	o, ok := b.orders[id]
	if !ok {
		return Handle{}, false
	}
	return *o, true
}

// Handles 返回全部句柄副本，按登记时间排序。
func (b *Book) Handles() []Handle {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]Handle, 0, len(b.orders))
	for _, o := range b.orders {
		out = append(out, *o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PlacedAt.Before(out[j].PlacedAt) })
	return out
}

// Len 返回在场挂单数。
func (b *Book) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.orders)
}

// Clear 清空登记簿（全量撤单后调用）。
func (b *Book) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.orders = make(map[string]*Handle)
}
