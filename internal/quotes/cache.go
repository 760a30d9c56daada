// Package quotes maintains the last traded price cache fed by the
// ticker stream and consumed by strategies and the trade engine.
package quotes

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"algotrader/internal/models"
)

// Cache holds the latest tick per trading symbol for one account.
// A zero price is returned for symbols that have not ticked yet;
// callers treat that as "price unknown" rather than an error.
type Cache struct {
	mu       sync.RWMutex
	prices   map[string]decimal.Decimal
	lastTick time.Time
}

func NewCache() *Cache {
	return &Cache{prices: make(map[string]decimal.Decimal)}
}

// Apply ingests one tick. The exchange timestamp of the most recent
// tick is kept as the cache-wide market clock.
func (c *Cache) Apply(tick models.TickData) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.prices[tick.TradingSymbol] = tick.LastTradedPrice
	if ts := time.Unix(tick.ExchangeTimestamp, 0); ts.After(c.lastTick) {
		c.lastTick = ts
	}
}

// CMP returns the current market price for a symbol, or zero when the
// symbol has not been seen on the stream.
func (c *Cache) CMP(tradingSymbol string) decimal.Decimal {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.prices[tradingSymbol]
}

// Has reports whether a non-zero price has been observed for the symbol.
func (c *Cache) Has(tradingSymbol string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.prices[tradingSymbol]
	return ok && !p.IsZero()
}

// LastExchangeTimestamp is the exchange timestamp of the newest tick
// applied to the cache.
func (c *Cache) LastExchangeTimestamp() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastTick
}

// Symbols returns every symbol currently present in the cache.
func (c *Cache) Symbols() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.prices))
	for s := range c.prices {
		out = append(out, s)
	}
	return out
}
