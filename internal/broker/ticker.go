package broker

import (
	"context"

	"algotrader/internal/models"
)

// TickListener receives market ticks for subscribed symbols.
type TickListener func(tick models.TickData)

// OrderUpdateListener receives streamed order lifecycle updates.
type OrderUpdateListener func(update models.OrderUpdate)

// Ticker is the streaming market data connection for one account.
// Implementations own reconnection and must re-subscribe registered
// symbols after a reconnect.
type Ticker interface {
	Start(ctx context.Context) error
	Stop() error

	RegisterTickListener(fn TickListener)
	RegisterOrderUpdateListener(fn OrderUpdateListener)

	// RegisterSymbols subscribes the given trading symbols; already
	// subscribed symbols are skipped.
	RegisterSymbols(ctx context.Context, symbols []string) error
	UnregisterSymbols(ctx context.Context, symbols []string) error
}
