package engine

import (
	"context"

	"github.com/shopspring/decimal"

	"algotrader/internal/models"
)

var (
	onePct  = decimal.NewFromFloat(1.01)
	downPct = decimal.NewFromFloat(0.99)
	oneTick = decimal.RequireFromString("0.05")
)

// SquareOffStrategy exits every active trade of the strategy at market
// and disables it. Implements strategy.Trader.
func (e *Engine) SquareOffStrategy(ctx context.Context, strategyName string, reason models.ExitReason) error {
	e.logger.Warn("squaring off strategy", "strategy", strategyName, "reason", reason)
	for _, trade := range e.TradesFor(strategyName) {
		if trade.State == models.TradeStateActive {
			trade.Target = e.quotes.CMP(trade.TradingSymbol)
			e.squareOffTrade(ctx, trade, reason)
		}
	}
	if strat, ok := e.strategyFor(strategyName); ok {
		strat.Disable()
	}
	return nil
}

// squareOffTrade drives one active trade to a market exit: cancel the
// open entry legs, cancel the stops, then convert or place the target
// leg at a price that fills immediately. If a stop cancel fails the
// trade is left active for the next cycle rather than risking a naked
// double exit.
func (e *Engine) squareOffTrade(ctx context.Context, trade *models.Trade, reason models.ExitReason) {
	if trade == nil || trade.State != models.TradeStateActive {
		return
	}
	e.logger.Info("square off trade", "tradeId", trade.TradeID, "reason", reason)
	trade.ExitReason = reason

	for _, entryOrder := range trade.EntryOrders {
		if entryOrder.IsOpen() {
			if err := e.cancelOrders(ctx, trade.EntryOrders); err != nil {
				e.logger.Error("could not cancel entry orders", "tradeId", trade.TradeID, "error", err)
			}
			break
		}
	}

	if len(trade.SLOrders) > 0 {
		if err := e.cancelOrders(ctx, trade.SLOrders); err != nil {
			e.logger.Warn("could not cancel SL orders, leaving trade active for next cycle",
				"tradeId", trade.TradeID, "error", err)
			return
		}
	}

	if len(trade.TargetOrders) > 0 {
		for _, targetOrder := range trade.TargetOrders {
			if targetOrder.Status != models.OrderStatusOpen {
				continue
			}
			newPrice := e.instruments.RoundToTick(trade.TradingSymbol,
				exitPrice(trade.CMP, trade.Direction))
			params := models.ModifyParams{NewPrice: newPrice, NewQty: trade.FilledQty}
			if err := e.exec.ModifyOrder(ctx, targetOrder, params); err != nil {
				e.logger.Error("could not reprice target order to market",
					"orderId", targetOrder.OrderID, "error", err)
			}
		}
	} else if trade.Entry.IsPositive() {
		target := exitPrice(trade.CMP, trade.Direction)
		if err := e.placeTargetOrder(ctx, trade, true, target); err != nil {
			e.logger.Error("could not place square off target order",
				"tradeId", trade.TradeID, "error", err)
		}
	}
}

// exitPrice pads the market price 1% against the position so the exit
// order crosses the book.
func exitPrice(cmp decimal.Decimal, direction models.Direction) decimal.Decimal {
	if direction == models.DirectionLong {
		return cmp.Mul(downPct)
	}
	return cmp.Mul(onePct)
}

// cancelOrders cancels every non-cancelled order; the first failure
// aborts so the caller can decide whether proceeding is safe.
func (e *Engine) cancelOrders(ctx context.Context, orders []*models.Order) error {
	for _, order := range orders {
		if order.Status == models.OrderStatusCancelled {
			continue
		}
		if err := e.exec.CancelOrder(ctx, order); err != nil {
			e.logger.Error("failed to cancel order", "orderId", order.OrderID, "error", err)
			return err
		}
	}
	return nil
}

// placeSLOrder places the stop leg: a stop-limit on the opposite side
// at the trade's current stop.
func (e *Engine) placeSLOrder(ctx context.Context, trade *models.Trade) error {
	params := models.NewOrderParams(trade.TradingSymbol)
	params.Exchange = trade.Exchange
	params.Direction = trade.Direction.Opposite()
	params.ProductType = trade.ProductType
	params.OrderType = models.OrderTypeSLLimit
	params.Qty = trade.Qty
	params.Tag = trade.Strategy
	params.IsFnO = trade.IsFutures || trade.IsOptions
	params.TriggerPrice = e.instruments.RoundToTick(trade.TradingSymbol, trade.StopLoss)
	params.Price = e.instruments.RoundToTick(trade.TradingSymbol,
		exitPrice(trade.StopLoss, trade.Direction))

	order, err := e.exec.PlaceOrder(ctx, params)
	if err != nil {
		e.logger.Error("failed to place SL order", "tradeId", trade.TradeID, "error", err)
		return err
	}
	trade.SLOrders = append(trade.SLOrders, order)
	e.idx.Add(order)
	e.logger.Info("placed SL order", "orderId", order.OrderID, "tradeId", trade.TradeID)
	return nil
}

// placeTargetOrder places the profit leg. Market orders are used for
// square-offs; zero target falls back to the trade's target.
func (e *Engine) placeTargetOrder(ctx context.Context, trade *models.Trade, isMarketOrder bool, target decimal.Decimal) error {
	if target.IsZero() {
		target = trade.Target
	}
	params := models.NewOrderParams(trade.TradingSymbol)
	params.Exchange = trade.Exchange
	params.Direction = trade.Direction.Opposite()
	params.ProductType = trade.ProductType
	params.Qty = trade.FilledQty
	params.Tag = trade.Strategy
	params.IsFnO = trade.IsFutures || trade.IsOptions
	if isMarketOrder {
		params.OrderType = models.OrderTypeMarket
	} else {
		params.OrderType = models.OrderTypeLimit
	}
	params.TriggerPrice = e.instruments.RoundToTick(trade.TradingSymbol, target)
	if trade.Direction == models.DirectionLong {
		params.Price = e.instruments.RoundToTick(trade.TradingSymbol, target.Mul(onePct))
	} else {
		params.Price = e.instruments.RoundToTick(trade.TradingSymbol, target.Mul(downPct))
	}

	order, err := e.exec.PlaceOrder(ctx, params)
	if err != nil {
		e.logger.Error("failed to place target order", "tradeId", trade.TradeID, "error", err)
		return err
	}
	trade.TargetOrders = append(trade.TargetOrders, order)
	e.idx.Add(order)
	trade.Target = target
	e.logger.Info("placed target order", "orderId", order.OrderID, "tradeId", trade.TradeID)
	return nil
}

// setTradeToCompleted finalizes a trade. The first exit reason set on
// the trade wins.
func (e *Engine) setTradeToCompleted(ctx context.Context, trade *models.Trade, exit decimal.Decimal, reason models.ExitReason) {
	wasActive := trade.State == models.TradeStateActive
	trade.State = models.TradeStateCompleted
	trade.Exit = exit
	if trade.ExitReason == models.ExitReasonNone {
		trade.ExitReason = reason
	}
	trade.EndTimestamp = e.cal.Now().Unix()
	trade.ComputePnL()
	if wasActive {
		e.activeTrades.Add(ctx, -1)
	}
	e.logger.Info("trade completed", "tradeId", trade.TradeID,
		"exit", exit, "reason", trade.ExitReason, "pnl", trade.PnL)
	e.alerts.TradeCompleted(ctx, trade)
}
