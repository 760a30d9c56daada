// Package engine owns the trade lifecycle: admission of new trades,
// bracket order management, the reconciliation loop and persistence of
// the day's state.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/metric"

	"algotrader/internal/alert"
	"algotrader/internal/broker"
	"algotrader/internal/core"
	"algotrader/internal/instruments"
	"algotrader/internal/marketcal"
	"algotrader/internal/models"
	"algotrader/internal/quotes"
	"algotrader/internal/snapshot"
	"algotrader/internal/strategy"
	"algotrader/pkg/telemetry"
)

// intakeBuffer bounds how many trade intents can queue before
// QueueTrade blocks.
const intakeBuffer = 64

// Config carries the per-account engine settings.
type Config struct {
	ShortCode        string
	TrackInterval    time.Duration // reconciliation cadence, phase aligned
	OrderBookRefresh time.Duration // full order book fetch cadence
}

// Engine runs the trade lifecycle for one account. All trade state is
// owned by the engine; strategies interact with it only through the
// strategy.Trader surface.
type Engine struct {
	cfg    Config
	logger core.Logger

	exec        *Executor
	ticker      broker.Ticker
	quotes      *quotes.Cache
	cal         *marketcal.Calendar
	instruments *instruments.Repository
	store       *snapshot.Store
	series      *snapshot.PnLSeries // optional

	alerts *alert.Notifier

	idx    *broker.OrderIndex
	intake chan *models.Trade

	mu         sync.Mutex
	trades     []*models.Trade
	strategies map[string]strategy.Strategy
	// restoredStates holds today's strategy snapshot until each
	// strategy registers and claims its entry.
	restoredStates map[string]strategy.State

	lastBookFetch time.Time

	tradesPlaced   metric.Int64Counter
	tradesDisabled metric.Int64Counter
	activeTrades   metric.Int64UpDownCounter
}

func New(cfg Config, exec *Executor, ticker broker.Ticker, qc *quotes.Cache,
	cal *marketcal.Calendar, repo *instruments.Repository,
	store *snapshot.Store, series *snapshot.PnLSeries, logger core.Logger) *Engine {

	if cfg.TrackInterval <= 0 {
		cfg.TrackInterval = 5 * time.Second
	}
	if cfg.OrderBookRefresh <= 0 {
		cfg.OrderBookRefresh = 30 * time.Second
	}

	meter := telemetry.GetMeter("trade-engine")
	tradesPlaced, _ := meter.Int64Counter("engine_trades_placed_total",
		metric.WithDescription("Trades whose entry order was placed"))
	tradesDisabled, _ := meter.Int64Counter("engine_trades_disabled_total",
		metric.WithDescription("Trades refused at admission or rejected by the broker"))
	activeTrades, _ := meter.Int64UpDownCounter("engine_active_trades",
		metric.WithDescription("Currently active trades"))

	return &Engine{
		cfg:            cfg,
		logger:         logger.WithField("component", "engine").WithField("account", cfg.ShortCode),
		exec:           exec,
		ticker:         ticker,
		quotes:         qc,
		cal:            cal,
		instruments:    repo,
		store:          store,
		series:         series,
		idx:            broker.NewOrderIndex(),
		intake:         make(chan *models.Trade, intakeBuffer),
		strategies:     make(map[string]strategy.Strategy),
		restoredStates: make(map[string]strategy.State),
		tradesPlaced:   tradesPlaced,
		tradesDisabled: tradesDisabled,
		activeTrades:   activeTrades,
	}
}

// SetNotifier attaches an alert sink for trade completions and
// strategy failures. Optional.
func (e *Engine) SetNotifier(n *alert.Notifier) {
	e.alerts = n
}

// RestoreDay loads today's snapshots so a restart resumes mid-session:
// trades re-enter the reconciliation set and their orders re-enter the
// order index.
func (e *Engine) RestoreDay() error {
	day := e.cal.Now()
	trades, err := e.store.LoadTrades(day)
	if err != nil {
		return fmt.Errorf("restore trades: %w", err)
	}
	states, err := e.store.LoadStrategies(day)
	if err != nil {
		return fmt.Errorf("restore strategies: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.trades = trades
	e.restoredStates = states
	for _, trade := range trades {
		for _, order := range allOrders(trade) {
			e.idx.Add(order)
		}
		if trade.State == models.TradeStateActive {
			e.activeTrades.Add(context.Background(), 1)
		}
	}
	if len(trades) > 0 || len(states) > 0 {
		e.logger.Info("restored session snapshot", "trades", len(trades), "strategies", len(states))
	}
	return nil
}

// RegisterStrategy adds a strategy to the engine, applying today's
// restored state when the snapshot carries one.
func (e *Engine) RegisterStrategy(s strategy.Strategy) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if state, ok := e.restoredStates[s.Name()]; ok {
		s.Restore(state)
	}
	e.strategies[s.Name()] = s
	e.logger.Info("registered strategy", "strategy", s.Name())
}

// DeregisterStrategy removes a strategy; its existing trades keep
// being reconciled.
func (e *Engine) DeregisterStrategy(name string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.strategies, name)
	e.logger.Info("deregistered strategy", "strategy", name)
}

func (e *Engine) strategyFor(name string) (strategy.Strategy, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.strategies[name]
	return s, ok
}

// Strategies returns the currently registered strategies.
func (e *Engine) Strategies() []strategy.Strategy {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]strategy.Strategy, 0, len(e.strategies))
	for _, s := range e.strategies {
		out = append(out, s)
	}
	return out
}

// Trades returns a snapshot of every trade of the day.
func (e *Engine) Trades() []*models.Trade {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]*models.Trade(nil), e.trades...)
}

// TradesFor returns the trades owned by one strategy.
func (e *Engine) TradesFor(strategyName string) []*models.Trade {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []*models.Trade
	for _, t := range e.trades {
		if t.Strategy == strategyName {
			out = append(out, t)
		}
	}
	return out
}

// QueueTrade puts a trade intent on the intake queue. The single
// intake consumer serializes admission and entry placement.
func (e *Engine) QueueTrade(ctx context.Context, trade *models.Trade) error {
	select {
	case e.intake <- trade:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// CMP returns the cached market price of a symbol.
func (e *Engine) CMP(tradingSymbol string) decimal.Decimal {
	return e.quotes.CMP(tradingSymbol)
}

// GetQuote fetches a fresh quote through the rate-limited executor.
func (e *Engine) GetQuote(ctx context.Context, tradingSymbol, exchange string, isFnO bool) (*models.Quote, error) {
	return e.exec.GetQuote(ctx, tradingSymbol, exchange, isFnO)
}

// RegisterSymbols subscribes symbols on the market data stream.
func (e *Engine) RegisterSymbols(ctx context.Context, symbols []string) error {
	return e.ticker.RegisterSymbols(ctx, symbols)
}

// OnTick feeds one market tick into the quote cache and updates the
// CMP of trades on that symbol.
func (e *Engine) OnTick(tick models.TickData) {
	e.quotes.Apply(tick)
}

// OnOrderUpdate applies a streamed order update to the tracked order.
func (e *Engine) OnOrderUpdate(update models.OrderUpdate) {
	if order, ok := e.idx.Get(update.OrderID); ok {
		order.Status = update.Status
		order.AveragePrice = update.AveragePrice
		order.FilledQty = update.FilledQty
		order.PendingQty = update.PendingQty
		order.UpdateTimestamp = update.Timestamp
		if update.Message != "" {
			order.Message = update.Message
		}
	}
}

// consumeIntake is the single consumer of the trade intake queue.
func (e *Engine) consumeIntake(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case trade := <-e.intake:
			e.admitTrade(ctx, trade)
		}
	}
}

// admitTrade runs the strategy admission gate and places the entry
// order. A refused or failed trade lands in the disabled state.
func (e *Engine) admitTrade(ctx context.Context, trade *models.Trade) {
	strat, ok := e.strategyFor(trade.Strategy)
	if !ok {
		trade.State = models.TradeStateDisabled
		e.addTrade(trade)
		e.tradesDisabled.Add(ctx, 1)
		e.logger.Warn("refused trade for unknown strategy", "tradeId", trade.TradeID, "strategy", trade.Strategy)
		return
	}
	if err := strat.ShouldPlaceTrade(trade); err != nil {
		derr := &DisableTradeError{TradeID: trade.TradeID, Reason: err.Error()}
		trade.State = models.TradeStateDisabled
		e.addTrade(trade)
		e.tradesDisabled.Add(ctx, 1)
		e.logger.Info("trade refused at admission", "tradeId", trade.TradeID, "reason", derr.Reason)
		return
	}

	if err := e.placeEntryOrder(ctx, trade); err != nil {
		trade.State = models.TradeStateDisabled
		e.addTrade(trade)
		e.tradesDisabled.Add(ctx, 1)
		e.logger.Error("entry order failed", "tradeId", trade.TradeID, "error", err)
		return
	}

	trade.State = models.TradeStateActive
	trade.StartTimestamp = e.cal.Now().Unix()
	e.addTrade(trade)
	e.tradesPlaced.Add(ctx, 1)
	e.activeTrades.Add(ctx, 1)
	e.logger.Info("trade is live", "trade", trade.String())
}

func (e *Engine) addTrade(trade *models.Trade) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.trades = append(e.trades, trade)
}

// placeEntryOrder places the entry leg: a LIMIT chase for market-style
// entries, otherwise a stop-entry waiting on the requested trigger.
func (e *Engine) placeEntryOrder(ctx context.Context, trade *models.Trade) error {
	trade.InitialStopLoss = trade.StopLoss

	params := models.NewOrderParams(trade.TradingSymbol)
	params.Exchange = trade.Exchange
	params.Direction = trade.Direction
	params.ProductType = trade.ProductType
	params.Qty = trade.Qty
	params.Tag = trade.Strategy
	params.IsFnO = trade.IsFutures || trade.IsOptions
	if trade.PlaceMarketOrder {
		params.OrderType = models.OrderTypeLimit
	} else {
		params.OrderType = models.OrderTypeSLLimit
	}
	params.TriggerPrice = e.instruments.RoundToTick(trade.TradingSymbol, trade.RequestedEntry)
	params.Price = e.instruments.RoundToTick(trade.TradingSymbol, chasePrice(trade.RequestedEntry, trade.Direction))

	order, err := e.exec.PlaceOrder(ctx, params)
	if err != nil {
		return err
	}
	trade.EntryOrders = append(trade.EntryOrders, order)
	e.idx.Add(order)
	return nil
}

// chasePrice pads a reference price 1% toward the aggressive side so a
// LIMIT order fills like a protected market order.
func chasePrice(price decimal.Decimal, direction models.Direction) decimal.Decimal {
	if direction == models.DirectionLong {
		return price.Mul(decimal.NewFromFloat(1.01))
	}
	return price.Mul(decimal.NewFromFloat(0.99))
}

func allOrders(trade *models.Trade) []*models.Order {
	out := make([]*models.Order, 0, len(trade.EntryOrders)+len(trade.SLOrders)+len(trade.TargetOrders))
	out = append(out, trade.EntryOrders...)
	out = append(out, trade.SLOrders...)
	out = append(out, trade.TargetOrders...)
	return out
}

// attachDiscovered files broker-spawned child orders under the trade
// leg owning their parent.
func (e *Engine) attachDiscovered(children []*models.Order) {
	if len(children) == 0 {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, child := range children {
		trade, leg := e.findLegLocked(child.ParentOrderID)
		if trade == nil {
			e.logger.Warn("discovered order with unknown parent",
				"orderId", child.OrderID, "parentOrderId", child.ParentOrderID)
			continue
		}
		*leg = append(*leg, child)
		e.idx.Add(child)
		e.logger.Info("attached discovered child order",
			"orderId", child.OrderID, "tradeId", trade.TradeID)
	}
}

func (e *Engine) findLegLocked(orderID string) (*models.Trade, *[]*models.Order) {
	for _, trade := range e.trades {
		for _, o := range trade.EntryOrders {
			if o.OrderID == orderID {
				return trade, &trade.EntryOrders
			}
		}
		for _, o := range trade.SLOrders {
			if o.OrderID == orderID {
				return trade, &trade.SLOrders
			}
		}
		for _, o := range trade.TargetOrders {
			if o.OrderID == orderID {
				return trade, &trade.TargetOrders
			}
		}
	}
	return nil, nil
}

// IsDeregisterError reports whether err asks for strategy removal and
// returns the typed error.
func IsDeregisterError(err error) (*strategy.DeregisterError, bool) {
	var derr *strategy.DeregisterError
	if errors.As(err, &derr) {
		return derr, true
	}
	return nil, false
}
