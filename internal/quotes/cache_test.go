package quotes

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"algotrader/internal/models"
)

func TestCacheKeepsLatestPrice(t *testing.T) {
	c := NewCache()

	assert.True(t, c.CMP("NIFTY 50").IsZero(), "unseen symbol")
	assert.False(t, c.Has("NIFTY 50"))

	c.Apply(models.TickData{TradingSymbol: "NIFTY 50", LastTradedPrice: decimal.NewFromInt(24500)})
	c.Apply(models.TickData{TradingSymbol: "NIFTY 50", LastTradedPrice: decimal.RequireFromString("24512.35")})

	assert.Equal(t, "24512.35", c.CMP("NIFTY 50").String())
	assert.True(t, c.Has("NIFTY 50"))
	assert.ElementsMatch(t, []string{"NIFTY 50"}, c.Symbols())
}

func TestCacheMarketClockNeverRewinds(t *testing.T) {
	c := NewCache()
	newer := time.Date(2024, 10, 8, 10, 30, 0, 0, time.Local)

	c.Apply(models.TickData{TradingSymbol: "A", ExchangeTimestamp: newer.Unix()})
	c.Apply(models.TickData{TradingSymbol: "B", ExchangeTimestamp: newer.Add(-time.Minute).Unix()})

	assert.Equal(t, newer.Unix(), c.LastExchangeTimestamp().Unix())
}

func TestCacheZeroPriceIsNotAQuote(t *testing.T) {
	c := NewCache()
	c.Apply(models.TickData{TradingSymbol: "INDIA VIX"})

	assert.False(t, c.Has("INDIA VIX"))
	assert.True(t, c.CMP("INDIA VIX").IsZero())
}
