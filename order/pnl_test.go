package order

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"quoter-go/exchange"
)

func TestLedger_FIFORoundTrip(t *testing.T) {
	l := NewLedger()

	assert.Zero(t, l.Record(exchange.SideBuy, 1000, 0.000030, 0))
	assert.Zero(t, l.Record(exchange.SideBuy, 500, 0.000032, 0))

	// 卖 1200：先配对 1000@30，再配对 200@32。
	delta := l.Record(exchange.SideSell, 1200, 0.000040, 0)
	want := (0.000040-0.000030)*1000 + (0.000040-0.000032)*200
	assert.InDelta(t, want, delta, 1e-12)
	assert.InDelta(t, want, l.Realized(), 1e-12)
	assert.InDelta(t, 300, l.OpenPosition(), 1e-9)
}

func TestLedger_SellFirstFromInventory(t *testing.T) {
	l := NewLedger()

	// 从初始库存先卖，再买回配对。
	assert.Zero(t, l.Record(exchange.SideSell, 1000, 0.000040, 0))
	delta := l.Record(exchange.SideBuy, 600, 0.000030, 0)
	assert.InDelta(t, (0.000040-0.000030)*600, delta, 1e-12)
	assert.InDelta(t, -400, l.OpenPosition(), 1e-9)
}

func TestLedger_UnrealizedAgainstMid(t *testing.T) {
	l := NewLedger()
	l.Record(exchange.SideBuy, 1000, 0.000030, 0)
	l.Record(exchange.SideSell, 400, 0.000040, 0)

	// 余下 600@30 多头按 mid 估值。
	mid := 0.000035
	assert.InDelta(t, (mid-0.000030)*600, l.Unrealized(mid), 1e-12)

	// 空头方向对称。
	l2 := NewLedger()
	l2.Record(exchange.SideSell, 500, 0.000040, 0)
	assert.InDelta(t, (0.000040-mid)*500, l2.Unrealized(mid), 1e-12)
}

func TestLedger_FeesReduceRealized(t *testing.T) {
	l := NewLedger()
	d1 := l.Record(exchange.SideBuy, 100, 1.0, 0.05)
	assert.InDelta(t, -0.05, d1, 1e-12)

	d2 := l.Record(exchange.SideSell, 100, 1.1, 0.05)
	assert.InDelta(t, 0.1*100-0.05, d2, 1e-12)
	assert.InDelta(t, 10-0.1, l.Realized(), 1e-12)
}
