package engine

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"algotrader/internal/broker"
	"algotrader/internal/models"
	"algotrader/internal/strategy"
)

// TrackAndUpdateAllTrades runs one reconciliation pass over every
// trade. A failure on one trade is logged and never blocks the rest.
func (e *Engine) TrackAndUpdateAllTrades(ctx context.Context) {
	now := e.cal.Now().Unix()
	for _, trade := range e.Trades() {
		strat, _ := e.strategyFor(trade.Strategy)

		if trade.State == models.TradeStateActive &&
			trade.IntradaySquareOffTimestamp > 0 && now >= trade.IntradaySquareOffTimestamp {
			trade.Target = e.quotes.CMP(trade.TradingSymbol)
			e.squareOffTrade(ctx, trade, models.ExitReasonSquareOff)
		}

		e.trackEntryOrders(ctx, trade, strat)
		e.trackSLOrders(ctx, trade, strat)
		e.trackTargetOrders(ctx, trade, strat)
	}
}

// trackEntryOrders reconciles the entry legs: recompute the weighted
// average entry from fills, chase unfilled limit legs toward the
// market, and resolve all-cancelled / all-rejected terminal states.
func (e *Engine) trackEntryOrders(ctx context.Context, trade *models.Trade, strat strategy.Strategy) {
	if trade.State != models.TradeStateActive || len(trade.EntryOrders) == 0 {
		return
	}

	var (
		filledQty int64
		entry     decimal.Decimal
		cancelled int
		rejected  int
	)
	for _, entryOrder := range trade.EntryOrders {
		switch broker.EffectiveStatus(entryOrder) {
		case models.OrderStatusCancelled:
			cancelled++
		case models.OrderStatusRejected:
			rejected++
		}

		if entryOrder.FilledQty > 0 {
			entry = weightedAverage(entry, filledQty, entryOrder.AveragePrice, entryOrder.FilledQty)
		} else if !entryOrder.Status.IsTerminal() && entryOrder.Status != "" &&
			entryOrder.OrderType != models.OrderTypeSLLimit {
			e.chaseEntryOrder(ctx, trade, entryOrder)
		} else if entryOrder.Status == models.OrderStatusTriggerPending {
			// a stop-entry that never triggered is cancelled once the
			// no-new-trades cutoff passes
			if strat != nil && !strat.StopTime().IsZero() && e.cal.Now().After(strat.StopTime()) {
				if err := e.exec.CancelOrder(ctx, entryOrder); err != nil {
					e.logger.Error("failed to cancel stale stop-entry",
						"orderId", entryOrder.OrderID, "error", err)
				}
			}
		}

		filledQty += entryOrder.FilledQty
	}
	trade.Entry = entry
	trade.FilledQty = filledQty

	if cancelled == len(trade.EntryOrders) {
		trade.State = models.TradeStateCancelled
		e.activeTrades.Add(ctx, -1)
		e.logger.Info("all entry orders cancelled", "tradeId", trade.TradeID)
	}
	if rejected == len(trade.EntryOrders) {
		trade.State = models.TradeStateDisabled
		e.activeTrades.Add(ctx, -1)
		e.logger.Warn("all entry orders rejected", "tradeId", trade.TradeID)
	}
	if rejected > 0 && strat != nil {
		// a rejected leg poisons the whole strategy for the day
		e.poisonStrategy(ctx, strat)
	}

	trade.CMP = e.quotes.CMP(trade.TradingSymbol)
	trade.ComputePnL()
}

// chaseEntryOrder bumps an unfilled limit entry 1% toward the market.
// When the broker refuses further modifications the order is cancelled.
func (e *Engine) chaseEntryOrder(ctx context.Context, trade *models.Trade, entryOrder *models.Order) {
	var newPrice decimal.Decimal
	if trade.Direction == models.DirectionLong {
		newPrice = e.instruments.RoundToTick(trade.TradingSymbol, entryOrder.Price.Mul(onePct)).Add(oneTick)
	} else {
		newPrice = e.instruments.RoundToTick(trade.TradingSymbol, entryOrder.Price.Mul(downPct)).Sub(oneTick)
	}
	params := models.ModifyParams{NewPrice: newPrice, NewQty: trade.Qty}
	if err := e.exec.ModifyOrder(ctx, entryOrder, params); err != nil {
		if errors.Is(err, broker.ErrModifyLimitExceeded) {
			if cerr := e.exec.CancelOrder(ctx, entryOrder); cerr != nil {
				e.logger.Error("failed to cancel over-modified entry",
					"orderId", entryOrder.OrderID, "error", cerr)
			}
			return
		}
		e.logger.Error("failed to chase entry order", "orderId", entryOrder.OrderID, "error", err)
	}
}

// poisonStrategy squares off every active trade of the strategy and
// disables it after a broker rejection.
func (e *Engine) poisonStrategy(ctx context.Context, strat strategy.Strategy) {
	e.logger.Warn("order rejected, failing the whole strategy", "strategy", strat.Name())
	e.alerts.StrategyFailed(ctx, strat.Name(), "order rejected by broker")
	for _, t := range e.TradesFor(strat.Name()) {
		if t.State == models.TradeStateActive {
			t.Target = e.quotes.CMP(t.TradingSymbol)
			e.squareOffTrade(ctx, t, models.ExitReasonTradeFailed)
		}
	}
	strat.Disable()
}

// trackSLOrders reconciles the stop legs: lazily computes the first
// stop from the strategy's trail hook, places the stop once the entry
// fills, detects stop hits and externally cancelled stops, and trails.
func (e *Engine) trackSLOrders(ctx context.Context, trade *models.Trade, strat strategy.Strategy) {
	if trade.State != models.TradeStateActive {
		for _, entryOrder := range trade.EntryOrders {
			if entryOrder.IsOpen() {
				return
			}
		}
	}

	if trade.StopLoss.IsZero() {
		if strat == nil {
			return
		}
		newSL := strat.TrailingSL(trade)
		if newSL.IsZero() {
			return
		}
		trade.StopLoss = newSL
		if trade.InitialStopLoss.IsZero() {
			trade.InitialStopLoss = newSL
		}
	}

	if len(trade.SLOrders) == 0 {
		if trade.Entry.IsPositive() {
			if err := e.placeSLOrder(ctx, trade); err != nil {
				e.logger.Error("SL placement failed", "tradeId", trade.TradeID, "error", err)
			}
		}
		return
	}

	var (
		completed int
		cancelled int
		rejected  int
		open      int
		exitAvg   decimal.Decimal
		exitQty   int64
	)
	for _, slOrder := range trade.SLOrders {
		switch broker.EffectiveStatus(slOrder) {
		case models.OrderStatusComplete:
			completed++
			exitAvg = weightedAverage(exitAvg, exitQty, slOrder.AveragePrice, slOrder.FilledQty)
			exitQty += slOrder.FilledQty
		case models.OrderStatusCancelled:
			cancelled++
		case models.OrderStatusRejected:
			rejected++
		case models.OrderStatusOpen:
			// a triggered stop sitting open is drifting away from its
			// limit price; walk it to the midpoint of stop and market
			open++
			e.walkOpenSLOrder(ctx, trade, slOrder)
		}
	}

	switch {
	case completed == len(trade.SLOrders):
		reason := models.ExitReasonSLHit
		if !trade.InitialStopLoss.Equal(trade.StopLoss) {
			reason = models.ExitReasonTrailSLHit
		}
		e.setTradeToCompleted(ctx, trade, exitAvg, reason)
		if err := e.cancelOrders(ctx, trade.TargetOrders); err != nil {
			e.logger.Error("failed to cancel target orders after SL hit",
				"tradeId", trade.TradeID, "error", err)
		}
	case cancelled == len(trade.SLOrders):
		// stop cancelled outside the engine; flatten bookkeeping at
		// market unless a target leg is still working
		pending := 0
		for _, targetOrder := range trade.TargetOrders {
			if targetOrder.Status != models.OrderStatusComplete && targetOrder.Status != models.OrderStatusOpen {
				pending++
			}
		}
		if pending == len(trade.TargetOrders) {
			if err := e.cancelOrders(ctx, trade.TargetOrders); err != nil {
				e.logger.Error("failed to cancel target orders",
					"tradeId", trade.TradeID, "error", err)
			}
			e.logger.Error("SL order cancelled outside the engine, closing at market price",
				"tradeId", trade.TradeID)
			e.setTradeToCompleted(ctx, trade, e.quotes.CMP(trade.TradingSymbol), models.ExitReasonSLCancelled)
		}
	case rejected > 0:
		if strat != nil {
			e.poisonStrategy(ctx, strat)
		}
	case open > 0:
		// handled above, skip trailing this cycle
	default:
		e.checkAndUpdateTrailSL(ctx, trade, strat)
	}
}

func (e *Engine) walkOpenSLOrder(ctx context.Context, trade *models.Trade, slOrder *models.Order) {
	mid := slOrder.Price.Add(e.quotes.CMP(trade.TradingSymbol)).Mul(decimal.NewFromFloat(0.5))
	var params models.ModifyParams
	if trade.Direction == models.DirectionLong {
		params.NewTriggerPrice = e.instruments.RoundToTick(trade.TradingSymbol, mid).Sub(oneTick)
		params.NewPrice = e.instruments.RoundToTick(trade.TradingSymbol, mid.Mul(downPct)).Sub(oneTick)
	} else {
		params.NewTriggerPrice = e.instruments.RoundToTick(trade.TradingSymbol, mid).Add(oneTick)
		params.NewPrice = e.instruments.RoundToTick(trade.TradingSymbol, mid.Mul(onePct)).Add(oneTick)
	}
	params.NewQty = trade.Qty
	if params.NewTriggerPrice.Equal(slOrder.TriggerPrice) && params.NewPrice.Equal(slOrder.Price) {
		return
	}
	if err := e.exec.ModifyOrder(ctx, slOrder, params); err != nil {
		e.logger.Error("failed to walk open SL order", "orderId", slOrder.OrderID, "error", err)
	}
}

// checkAndUpdateTrailSL asks the strategy for a new stop and applies
// it when it tightens the trade. A stop that already crossed the
// market forces an immediate market exit instead.
func (e *Engine) checkAndUpdateTrailSL(ctx context.Context, trade *models.Trade, strat strategy.Strategy) {
	if strat == nil {
		return
	}
	newTrailSL := e.instruments.RoundToTick(trade.TradingSymbol, strat.TrailingSL(trade))
	if !newTrailSL.IsPositive() {
		return
	}

	tightens := false
	if trade.Direction == models.DirectionLong && newTrailSL.GreaterThan(trade.StopLoss) {
		if newTrailSL.LessThan(trade.CMP) {
			tightens = true
		} else {
			e.logger.Info("trail SL crossed market, exiting at market",
				"tradeId", trade.TradeID, "trailSL", newTrailSL)
			e.squareOffTrade(ctx, trade, models.ExitReasonSLHit)
			return
		}
	} else if trade.Direction == models.DirectionShort && newTrailSL.LessThan(trade.StopLoss) {
		if newTrailSL.GreaterThan(trade.CMP) {
			tightens = true
		} else {
			e.logger.Info("trail SL crossed market, exiting at market",
				"tradeId", trade.TradeID, "trailSL", newTrailSL)
			e.squareOffTrade(ctx, trade, models.ExitReasonSLHit)
			return
		}
	}
	if !tightens {
		return
	}

	params := models.ModifyParams{NewTriggerPrice: newTrailSL, NewQty: trade.Qty}
	params.NewPrice = e.instruments.RoundToTick(trade.TradingSymbol,
		exitPrice(newTrailSL, trade.Direction))

	oldSL := trade.StopLoss
	for _, slOrder := range trade.SLOrders {
		if params.NewTriggerPrice.Equal(slOrder.TriggerPrice) {
			continue
		}
		if err := e.exec.ModifyOrder(ctx, slOrder, params); err != nil {
			e.logger.Error("failed to trail SL order",
				"orderId", slOrder.OrderID, "tradeId", trade.TradeID, "error", err)
			return
		}
	}
	// update only after every leg accepted the new stop
	trade.StopLoss = newTrailSL
	e.logger.Info("trailed stop", "tradeId", trade.TradeID, "from", oldSL, "to", newTrailSL)
}

// trackTargetOrders reconciles the profit legs: places the target once
// the entry fills, detects target hits and external cancellations, and
// chases targets repriced by a square-off.
func (e *Engine) trackTargetOrders(ctx context.Context, trade *models.Trade, strat strategy.Strategy) {
	if trade.State != models.TradeStateActive && (strat == nil || !strat.Enabled()) {
		return
	}
	if trade.Target.IsZero() {
		return
	}

	if len(trade.TargetOrders) == 0 {
		if trade.Entry.IsPositive() {
			if err := e.placeTargetOrder(ctx, trade, false, trade.Target); err != nil {
				e.logger.Error("target placement failed", "tradeId", trade.TradeID, "error", err)
			}
		}
		return
	}

	var (
		completed int
		cancelled int
		exitAvg   decimal.Decimal
		exitQty   int64
	)
	for _, targetOrder := range trade.TargetOrders {
		switch broker.EffectiveStatus(targetOrder) {
		case models.OrderStatusComplete:
			completed++
			exitAvg = weightedAverage(exitAvg, exitQty, targetOrder.AveragePrice, targetOrder.FilledQty)
			exitQty += targetOrder.FilledQty
		case models.OrderStatusCancelled:
			cancelled++
		case models.OrderStatusOpen:
			if trade.ExitReason != models.ExitReasonNone {
				e.chaseTargetOrder(ctx, trade, targetOrder)
			}
		}
	}

	switch {
	case completed == len(trade.TargetOrders):
		e.setTradeToCompleted(ctx, trade, exitAvg, models.ExitReasonTargetHit)
		if err := e.cancelOrders(ctx, trade.SLOrders); err != nil {
			e.logger.Error("failed to cancel SL orders after target hit",
				"tradeId", trade.TradeID, "error", err)
		}
	case cancelled == len(trade.TargetOrders):
		e.logger.Error("target order cancelled outside the engine, closing at market price",
			"tradeId", trade.TradeID)
		e.setTradeToCompleted(ctx, trade, e.quotes.CMP(trade.TradingSymbol), models.ExitReasonTargetCancelled)
		if err := e.cancelOrders(ctx, trade.SLOrders); err != nil {
			e.logger.Error("failed to cancel SL orders",
				"tradeId", trade.TradeID, "error", err)
		}
	}
}

// chaseTargetOrder walks a square-off target 1% further toward the
// market each cycle until it fills.
func (e *Engine) chaseTargetOrder(ctx context.Context, trade *models.Trade, targetOrder *models.Order) {
	var params models.ModifyParams
	if trade.Direction == models.DirectionLong {
		params.NewTriggerPrice = e.instruments.RoundToTick(trade.TradingSymbol, targetOrder.Price.Mul(downPct)).Sub(oneTick)
		params.NewPrice = e.instruments.RoundToTick(trade.TradingSymbol, params.NewTriggerPrice.Mul(downPct)).Sub(oneTick)
	} else {
		params.NewTriggerPrice = e.instruments.RoundToTick(trade.TradingSymbol, targetOrder.Price.Mul(onePct)).Add(oneTick)
		params.NewPrice = e.instruments.RoundToTick(trade.TradingSymbol, params.NewTriggerPrice.Mul(onePct)).Add(oneTick)
	}
	params.NewQty = trade.Qty
	if err := e.exec.ModifyOrder(ctx, targetOrder, params); err != nil {
		e.logger.Error("failed to chase target order", "orderId", targetOrder.OrderID, "error", err)
	}
}

// weightedAverage folds one order's fill into a running volume
// weighted average price.
func weightedAverage(avg decimal.Decimal, qty int64, fillPrice decimal.Decimal, fillQty int64) decimal.Decimal {
	if qty+fillQty == 0 {
		return avg
	}
	total := avg.Mul(decimal.NewFromInt(qty)).Add(fillPrice.Mul(decimal.NewFromInt(fillQty)))
	return total.Div(decimal.NewFromInt(qty + fillQty))
}
