package engine

import (
	"context"
	"time"

	"algotrader/internal/strategy"
)

// Run drives the engine until the context is cancelled: it consumes
// the trade intake queue and runs the reconciliation loop, phase
// aligned so every account ticks on the same wall-clock boundaries.
func (e *Engine) Run(ctx context.Context) error {
	go e.consumeIntake(ctx)

	interval := int(e.cfg.TrackInterval / time.Second)
	for {
		wait := time.Duration(interval-e.cal.Now().Second()%interval) * time.Second
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
		e.ReconcileOnce(ctx)
	}
}

// ReconcileOnce runs one reconciliation cycle: refresh the order book
// when due, track every trade's legs, and persist the day's state.
// Persistence failures are logged, never fatal; the next cycle retries.
func (e *Engine) ReconcileOnce(ctx context.Context) {
	now := e.cal.Now()

	if e.lastBookFetch.IsZero() || now.Sub(e.lastBookFetch) >= e.cfg.OrderBookRefresh {
		children, err := e.exec.FetchUpdateAllOrders(ctx, e.idx)
		if err != nil {
			e.logger.Error("order book refresh failed", "error", err)
		} else {
			e.lastBookFetch = now
			e.attachDiscovered(children)
		}
	}

	e.TrackAndUpdateAllTrades(ctx)

	trades := e.Trades()
	for _, trade := range trades {
		// terminal trades keep the marks they closed with
		if trade.State.IsTerminal() {
			continue
		}
		trade.CMP = e.quotes.CMP(trade.TradingSymbol)
		trade.ComputePnL()
	}

	if err := e.store.SaveTrades(now, trades); err != nil {
		e.logger.Error("failed to snapshot trades", "error", err)
	}
	states := make(map[string]strategy.State)
	for _, s := range e.Strategies() {
		states[s.Name()] = s.State()
	}
	if err := e.store.SaveStrategies(now, states); err != nil {
		e.logger.Error("failed to snapshot strategy states", "error", err)
	}

	if e.series != nil {
		if err := e.series.Append(now, trades); err != nil {
			e.logger.Error("failed to append pnl series", "error", err)
		}
	}
}
