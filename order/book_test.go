package order

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quoter-go/exchange"
)

func TestBook_Lifecycle(t *testing.T) {
	b := NewBook()
	now := time.Now()

	b.Add(Handle{ID: "b", Side: exchange.SideBuy, Quantity: decimal.NewFromInt(100), PlacedAt: now.Add(time.Second)})
	b.Add(Handle{ID: "a", Side: exchange.SideSell, Quantity: decimal.NewFromInt(200), PlacedAt: now})
	require.Equal(t, 2, b.Len())

	hs := b.Handles()
	assert.Equal(t, "a", hs[0].ID, "按登记时间排序")
	assert.Equal(t, "b", hs[1].ID)

	b.MarkFilled("b", decimal.NewFromInt(40))
	h, ok := b.Get("b")
	require.True(t, ok)
	assert.True(t, h.Remaining().Equal(decimal.NewFromInt(60)))

	b.Remove("a")
	_, ok = b.Get("a")
	assert.False(t, ok)

	b.Clear()
	assert.Zero(t, b.Len())
}

func TestBook_CopySemantics(t *testing.T) {
	b := NewBook()
	h := Handle{ID: "x", Quantity: decimal.NewFromInt(10)}
	b.Add(h)

	got := b.Handles()[0]
	got.Filled = decimal.NewFromInt(10)

	fresh, _ := b.Get("x")
	assert.True(t, fresh.Filled.IsZero(), "外部修改不得回写登记簿")
}
