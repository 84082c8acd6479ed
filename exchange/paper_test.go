package exchange

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func newTestPaper() *Paper {
	meta := PairMetadata{PriceDecimals: 8, QuantityDecimals: 0}
	return NewPaper("MEWC/USDT", meta, dec("100000"), dec("500"), dec("0.0000375"))
}

func TestPaper_PlaceHoldsFunds(t *testing.T) {
	p := newTestPaper()
	ctx := context.Background()

	id, err := p.PlaceLimitOrder(ctx, "MEWC/USDT", SideBuy, dec("0.00003"), dec("1000"))
	require.NoError(t, err)
	require.NotEmpty(t, id)

	bal, err := p.GetBalances(ctx)
	require.NoError(t, err)
	assert.True(t, bal.QuoteHeld.Equal(dec("0.03")), "quote held %s", bal.QuoteHeld)
	assert.True(t, bal.QuoteAvailable.Equal(dec("499.97")))

	open, err := p.ListOpenOrders(ctx, "MEWC/USDT")
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, StatusOpen, open[0].Status)
}

func TestPaper_RejectsInsufficientBalance(t *testing.T) {
	p := newTestPaper()
	_, err := p.PlaceLimitOrder(context.Background(), "MEWC/USDT", SideSell, dec("0.00004"), dec("200000"))
	assert.ErrorIs(t, err, ErrInsufficientBalance)
}

func TestPaper_CancelReleasesFunds(t *testing.T) {
	p := newTestPaper()
	ctx := context.Background()
	id, err := p.PlaceLimitOrder(ctx, "MEWC/USDT", SideSell, dec("0.00004"), dec("1000"))
	require.NoError(t, err)

	require.NoError(t, p.CancelOrder(ctx, id))
	bal, _ := p.GetBalances(ctx)
	assert.True(t, bal.BaseHeld.IsZero())
	assert.True(t, bal.BaseAvailable.Equal(dec("100000")))

	assert.ErrorIs(t, p.CancelOrder(ctx, id), ErrOrderNotFound)
}

func TestPaper_FillOnCross(t *testing.T) {
	p := newTestPaper()
	ctx := context.Background()

	// 卖单挂在 mid 上方；mid 上穿后应整单成交。
	id, err := p.PlaceLimitOrder(ctx, "MEWC/USDT", SideSell, dec("0.0000380"), dec("1000"))
	require.NoError(t, err)

	p.SetMid(dec("0.0000390"))

	open, _ := p.ListOpenOrders(ctx, "MEWC/USDT")
	assert.Empty(t, open)

	bal, _ := p.GetBalances(ctx)
	assert.True(t, bal.BaseHeld.IsZero())
	assert.True(t, bal.QuoteAvailable.Equal(dec("500.038")), "quote %s", bal.QuoteAvailable)
	_ = id
}

func TestPaper_PartialFillHook(t *testing.T) {
	p := newTestPaper()
	ctx := context.Background()
	id, err := p.PlaceLimitOrder(ctx, "MEWC/USDT", SideBuy, dec("0.00003"), dec("1000"))
	require.NoError(t, err)

	require.NoError(t, p.FillOrder(id, dec("400")))
	open, _ := p.ListOpenOrders(ctx, "MEWC/USDT")
	require.Len(t, open, 1)
	assert.Equal(t, StatusPartial, open[0].Status)
	assert.True(t, open[0].FilledQuantity.Equal(dec("400")))

	bal, _ := p.GetBalances(ctx)
	assert.True(t, bal.BaseAvailable.Equal(dec("100400")))
}

func TestThrottled_WrapsErrors(t *testing.T) {
	p := newTestPaper()
	th := NewThrottled(p, 100, 10, 0)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := th.GetOrderbook(ctx, "MEWC/USDT")
	var fe *FetchError
	assert.ErrorAs(t, err, &fe)

	_, err = th.PlaceLimitOrder(ctx, "MEWC/USDT", SideBuy, dec("1"), dec("1"))
	var pe *PlacementError
	assert.ErrorAs(t, err, &pe)

	err = th.CancelOrder(ctx, "nope")
	var ce *CancellationError
	assert.ErrorAs(t, err, &ce)
}

func TestThrottled_PassThrough(t *testing.T) {
	p := newTestPaper()
	th := NewThrottled(p, 1000, 10, 0)
	ctx := context.Background()

	ob, err := th.GetOrderbook(ctx, "MEWC/USDT")
	require.NoError(t, err)
	assert.Len(t, ob.Bids, 5)
	assert.Len(t, ob.Asks, 5)

	id, err := th.PlaceLimitOrder(ctx, "MEWC/USDT", SideBuy, dec("0.00003"), dec("100"))
	require.NoError(t, err)
	require.NoError(t, th.CancelOrder(ctx, id))
}
