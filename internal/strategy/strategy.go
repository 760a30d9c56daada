// Package strategy hosts the strategy runtime: the contract a strategy
// exposes to the trade engine, the shared base implementation with the
// capital gates and strategy-level stop management, and the bundled
// strategies.
package strategy

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"algotrader/internal/models"
)

// Trader is the engine surface a strategy drives: queueing new trades,
// inspecting its own trades and fetching quotes. Implemented by the
// trade engine.
type Trader interface {
	// QueueTrade hands a created trade to the engine intake queue.
	QueueTrade(ctx context.Context, trade *models.Trade) error
	// TradesFor returns every trade owned by the named strategy today.
	TradesFor(strategyName string) []*models.Trade
	// SquareOffStrategy exits all active trades of the strategy and
	// disables it.
	SquareOffStrategy(ctx context.Context, strategyName string, reason models.ExitReason) error
	// CMP returns the cached market price for a symbol, zero when the
	// symbol has not ticked yet.
	CMP(tradingSymbol string) decimal.Decimal
	// GetQuote fetches a fresh quote from the broker.
	GetQuote(ctx context.Context, tradingSymbol, exchange string, isFnO bool) (*models.Quote, error)
	// RegisterSymbols subscribes symbols on the market data stream.
	RegisterSymbols(ctx context.Context, symbols []string) error
}

// Strategy is what the engine holds for each registered strategy.
// Run blocks for the whole session; a returned DeregisterError removes
// the strategy from the engine without stopping the account.
type Strategy interface {
	Name() string
	Enabled() bool
	Disable()

	StartTime() time.Time
	// StopTime is the no-new-trades cutoff; existing trades keep running.
	StopTime() time.Time
	SquareOffTime() time.Time
	MaxTradesPerDay() int

	// ShouldPlaceTrade is the admission check run by the engine before
	// the entry order goes out.
	ShouldPlaceTrade(trade *models.Trade) error

	// TrailingSL returns the stop for an active trade given the current
	// market price, zero when the strategy does not trail.
	TrailingSL(trade *models.Trade) decimal.Decimal

	// State and Restore persist the mutable strategy state across
	// restarts.
	State() State
	Restore(State)

	Run(ctx context.Context) error
}
