package mock

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"algotrader/internal/broker"
	"algotrader/internal/models"
)

// Ticker implements broker.Ticker in memory. Tests push ticks with
// Emit; when started with a backing Broker it can also replay the
// broker's quote map on demand via EmitQuotes.
type Ticker struct {
	mu             sync.RWMutex
	started        bool
	subscribed     map[string]struct{}
	tickListeners  []broker.TickListener
	orderListeners []broker.OrderUpdateListener
}

func NewTicker() *Ticker {
	return &Ticker{subscribed: make(map[string]struct{})}
}

func (t *Ticker) Start(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.started = true
	return nil
}

func (t *Ticker) Stop() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.started = false
	return nil
}

func (t *Ticker) RegisterTickListener(fn broker.TickListener) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.tickListeners = append(t.tickListeners, fn)
}

func (t *Ticker) RegisterOrderUpdateListener(fn broker.OrderUpdateListener) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.orderListeners = append(t.orderListeners, fn)
}

func (t *Ticker) RegisterSymbols(ctx context.Context, symbols []string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, s := range symbols {
		t.subscribed[s] = struct{}{}
	}
	return nil
}

func (t *Ticker) UnregisterSymbols(ctx context.Context, symbols []string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, s := range symbols {
		delete(t.subscribed, s)
	}
	return nil
}

// IsSubscribed reports whether a symbol is currently registered.
func (t *Ticker) IsSubscribed(symbol string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.subscribed[symbol]
	return ok
}

// Emit delivers one tick to every tick listener.
func (t *Ticker) Emit(symbol string, ltp decimal.Decimal) {
	t.mu.RLock()
	listeners := append([]broker.TickListener(nil), t.tickListeners...)
	t.mu.RUnlock()

	tick := models.TickData{
		TradingSymbol:     symbol,
		LastTradedPrice:   ltp,
		ExchangeTimestamp: time.Now().Unix(),
	}
	for _, fn := range listeners {
		fn(tick)
	}
}

// EmitOrderUpdate delivers one order update to every order listener.
func (t *Ticker) EmitOrderUpdate(update models.OrderUpdate) {
	t.mu.RLock()
	listeners := append([]broker.OrderUpdateListener(nil), t.orderListeners...)
	t.mu.RUnlock()
	for _, fn := range listeners {
		fn(update)
	}
}
