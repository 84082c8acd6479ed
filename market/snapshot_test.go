package market

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func d(s string) decimal.Decimal {
	v, _ := decimal.NewFromString(s)
	return v
}

func TestNewSnapshot_Mid(t *testing.T) {
	s := NewSnapshot(d("0.0000370"), d("0.0000380"), d("0.0000376"), time.Now())
	assert.InDelta(t, 0.0000375, s.Mid, 1e-12)
	assert.True(t, s.Valid())
	assert.InDelta(t, 0.0000010, s.Spread(), 1e-12)
}

func TestNewSnapshot_FallbackToLast(t *testing.T) {
	s := NewSnapshot(decimal.Zero, d("0.0000380"), d("0.0000376"), time.Now())
	assert.InDelta(t, 0.0000376, s.Mid, 1e-12)
	assert.Zero(t, s.Spread())

	empty := NewSnapshot(decimal.Zero, decimal.Zero, decimal.Zero, time.Now())
	assert.False(t, empty.Valid())
}

func TestBalances_Totals(t *testing.T) {
	b := NewBalances(d("1000"), d("500"), d("20.5"), d("4.5"))
	assert.InDelta(t, 1500, b.BaseTotal(), 1e-9)
	assert.InDelta(t, 25, b.QuoteTotal(), 1e-9)
}
