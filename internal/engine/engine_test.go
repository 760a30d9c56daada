package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"algotrader/internal/instruments"
	"algotrader/internal/marketcal"
	"algotrader/internal/mock"
	"algotrader/internal/models"
	"algotrader/internal/quotes"
	"algotrader/internal/snapshot"
	"algotrader/internal/strategy"
	"algotrader/pkg/logging"
)

const testSymbol = "NIFTY24O0924500CE"

type stubStrategy struct {
	name     string
	enabled  bool
	admitErr error
	trailSL  decimal.Decimal
	stopTime time.Time
}

func (s *stubStrategy) Name() string { return s.name }

func (s *stubStrategy) Enabled() bool { return s.enabled }

func (s *stubStrategy) Disable() { s.enabled = false }

func (s *stubStrategy) StartTime() time.Time { return time.Time{} }

func (s *stubStrategy) StopTime() time.Time { return s.stopTime }

func (s *stubStrategy) SquareOffTime() time.Time { return time.Time{} }

func (s *stubStrategy) MaxTradesPerDay() int { return 10 }

func (s *stubStrategy) ShouldPlaceTrade(trade *models.Trade) error { return s.admitErr }

func (s *stubStrategy) TrailingSL(trade *models.Trade) decimal.Decimal { return s.trailSL }

func (s *stubStrategy) State() strategy.State { return strategy.State{Enabled: s.enabled} }

func (s *stubStrategy) Restore(st strategy.State) { s.enabled = st.Enabled }

func (s *stubStrategy) Run(ctx context.Context) error { return nil }

type harness struct {
	eng     *Engine
	gateway *mock.Broker
	ticker  *mock.Ticker
	strat   *stubStrategy
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	logger, err := logging.NewLoggerFromString("error")
	require.NoError(t, err)

	gateway := mock.NewBroker()
	gateway.SetInstruments([]models.Instrument{{
		TradingSymbol: testSymbol,
		Exchange:      "NFO",
		LotSize:       25,
		TickSize:      decimal.RequireFromString("0.05"),
	}})

	repo := instruments.NewRepository("test", t.TempDir(), gateway, logger)
	require.NoError(t, repo.Load(context.Background()))

	ticker := mock.NewTicker()
	qc := quotes.NewCache()
	cal := marketcal.New(nil)
	store := snapshot.NewStore(t.TempDir(), "mock", "C0001", logger)
	exec := NewExecutor(gateway, 100, logger)

	eng := New(Config{ShortCode: "test"}, exec, ticker, qc, cal, repo, store, nil, logger)
	strat := &stubStrategy{name: "stub", enabled: true}
	eng.RegisterStrategy(strat)

	return &harness{eng: eng, gateway: gateway, ticker: ticker, strat: strat}
}

func (h *harness) tick(ltp string) {
	h.eng.OnTick(models.TickData{
		TradingSymbol:     testSymbol,
		LastTradedPrice:   decimal.RequireFromString(ltp),
		ExchangeTimestamp: time.Now().Unix(),
	})
}

func newStubTrade() *models.Trade {
	trade := models.NewTrade(testSymbol, "stub")
	trade.Exchange = "NFO"
	trade.IsOptions = true
	trade.PlaceMarketOrder = true
	trade.RequestedEntry = decimal.NewFromInt(100)
	trade.Qty = 75
	return trade
}

// admit pushes a trade through admission and returns it live.
func (h *harness) admit(t *testing.T, trade *models.Trade) *models.Trade {
	t.Helper()
	h.eng.admitTrade(context.Background(), trade)
	require.Equal(t, models.TradeStateActive, trade.State)
	return trade
}

// fillEntry completes the entry order in the broker book and delivers
// the matching stream update, the way a real fill arrives twice.
func (h *harness) fillEntry(t *testing.T, trade *models.Trade, avgPrice string) {
	t.Helper()
	require.NotEmpty(t, trade.EntryOrders)
	avg := decimal.RequireFromString(avgPrice)
	h.gateway.CompleteOrder(trade.EntryOrders[0].OrderID, avg)
	h.eng.OnOrderUpdate(models.OrderUpdate{
		OrderID:      trade.EntryOrders[0].OrderID,
		Status:       models.OrderStatusComplete,
		AveragePrice: avg,
		FilledQty:    trade.Qty,
	})
}

func TestAdmissionRefusedTradeIsDisabled(t *testing.T) {
	h := newHarness(t)
	h.strat.admitErr = strategy.ErrMaxTradesPerDayHit

	trade := newStubTrade()
	h.eng.admitTrade(context.Background(), trade)

	assert.Equal(t, models.TradeStateDisabled, trade.State)
	assert.Empty(t, trade.EntryOrders)
	assert.Zero(t, h.gateway.PlaceCalls())
}

func TestAdmissionUnknownStrategyIsDisabled(t *testing.T) {
	h := newHarness(t)

	trade := models.NewTrade(testSymbol, "nobody")
	h.eng.admitTrade(context.Background(), trade)

	assert.Equal(t, models.TradeStateDisabled, trade.State)
	assert.Zero(t, h.gateway.PlaceCalls())
}

func TestEntryOrderTypes(t *testing.T) {
	h := newHarness(t)

	market := newStubTrade()
	h.admit(t, market)
	assert.Equal(t, models.OrderTypeLimit, market.EntryOrders[0].OrderType)
	assert.Equal(t, "100", market.EntryOrders[0].TriggerPrice.String())
	assert.Equal(t, "101", market.EntryOrders[0].Price.String())

	stopEntry := newStubTrade()
	stopEntry.PlaceMarketOrder = false
	h.admit(t, stopEntry)
	assert.Equal(t, models.OrderTypeSLLimit, stopEntry.EntryOrders[0].OrderType)
}

func TestEntryFillsAverageByVolume(t *testing.T) {
	h := newHarness(t)
	trade := h.admit(t, newStubTrade())
	h.tick("101")

	h.gateway.PartialFill(trade.EntryOrders[0].OrderID, 50, decimal.RequireFromString("100.4"))

	// the broker split the remainder into a child order
	child := models.NewOrder(models.NewOrderParams(testSymbol))
	child.OrderID = "MOCK-CHILD"
	child.Status = models.OrderStatusComplete
	child.AveragePrice = decimal.RequireFromString("102.8")
	child.FilledQty = 25
	h.gateway.AddChildOrder(trade.EntryOrders[0].OrderID, child)

	discovered, err := h.eng.exec.FetchUpdateAllOrders(context.Background(), h.eng.idx)
	require.NoError(t, err)
	h.eng.attachDiscovered(discovered)
	require.Len(t, trade.EntryOrders, 2)

	h.eng.TrackAndUpdateAllTrades(context.Background())

	assert.Equal(t, "101.2", trade.Entry.String())
	assert.Equal(t, int64(75), trade.FilledQty)
}

func TestAllEntryOrdersCancelled(t *testing.T) {
	h := newHarness(t)
	trade := h.admit(t, newStubTrade())

	h.eng.OnOrderUpdate(models.OrderUpdate{
		OrderID: trade.EntryOrders[0].OrderID,
		Status:  models.OrderStatusCancelled,
	})
	h.eng.TrackAndUpdateAllTrades(context.Background())

	assert.Equal(t, models.TradeStateCancelled, trade.State)
	assert.True(t, h.strat.Enabled())
}

func TestEntryRejectionPoisonsStrategy(t *testing.T) {
	h := newHarness(t)
	h.tick("101")

	survivor := h.admit(t, newStubTrade())
	h.fillEntry(t, survivor, "100.4")

	rejectedTrade := h.admit(t, newStubTrade())
	h.eng.OnOrderUpdate(models.OrderUpdate{
		OrderID: rejectedTrade.EntryOrders[0].OrderID,
		Status:  models.OrderStatusRejected,
		Message: "insufficient margin",
	})
	h.eng.TrackAndUpdateAllTrades(context.Background())

	assert.Equal(t, models.TradeStateDisabled, rejectedTrade.State)
	assert.False(t, h.strat.Enabled())
	assert.Equal(t, models.ExitReasonTradeFailed, survivor.ExitReason)
}

func TestEntryChaseWalksLimitTowardMarket(t *testing.T) {
	h := newHarness(t)
	trade := h.admit(t, newStubTrade())

	// entry rests OPEN unfilled at 101; one cycle bumps it 1% plus a tick
	h.eng.TrackAndUpdateAllTrades(context.Background())

	assert.Equal(t, "102.1", trade.EntryOrders[0].Price.String())
}

func TestEntryChaseCancelsOnModifyLimit(t *testing.T) {
	h := newHarness(t)
	trade := h.admit(t, newStubTrade())

	h.gateway.FailNextModify(errModifyExceeded())
	h.eng.TrackAndUpdateAllTrades(context.Background())

	book, ok := h.gateway.BookOrder(trade.EntryOrders[0].OrderID)
	require.True(t, ok)
	assert.Equal(t, models.OrderStatusCancelled, book.Status)
}

func TestStopLossPlacedAfterEntryFill(t *testing.T) {
	h := newHarness(t)
	h.tick("101")
	trade := newStubTrade()
	trade.StopLoss = decimal.NewFromInt(95)
	h.admit(t, trade)
	h.fillEntry(t, trade, "100.4")

	h.eng.TrackAndUpdateAllTrades(context.Background())

	require.Len(t, trade.SLOrders, 1)
	slOrder := trade.SLOrders[0]
	assert.Equal(t, models.OrderTypeSLLimit, slOrder.OrderType)
	assert.Equal(t, models.DirectionShort, slOrder.Direction)
	assert.Equal(t, "95", slOrder.TriggerPrice.String())
	assert.Equal(t, "94.05", slOrder.Price.String())
}

func TestLazyStopFromStrategyTrail(t *testing.T) {
	h := newHarness(t)
	h.tick("101")
	h.strat.trailSL = decimal.NewFromInt(96)

	trade := h.admit(t, newStubTrade())
	h.fillEntry(t, trade, "100.4")
	h.eng.TrackAndUpdateAllTrades(context.Background())

	assert.Equal(t, "96", trade.StopLoss.String())
	assert.Equal(t, "96", trade.InitialStopLoss.String())
	require.Len(t, trade.SLOrders, 1)
}

func TestStopLossHitCompletesTrade(t *testing.T) {
	h := newHarness(t)
	h.tick("101")
	trade := newStubTrade()
	trade.StopLoss = decimal.NewFromInt(95)
	trade.Target = decimal.NewFromInt(110)
	h.admit(t, trade)
	h.fillEntry(t, trade, "100.4")
	h.eng.TrackAndUpdateAllTrades(context.Background())
	require.Len(t, trade.SLOrders, 1)
	require.Len(t, trade.TargetOrders, 1)

	h.eng.OnOrderUpdate(models.OrderUpdate{
		OrderID:      trade.SLOrders[0].OrderID,
		Status:       models.OrderStatusComplete,
		AveragePrice: decimal.RequireFromString("94.95"),
		FilledQty:    75,
	})
	h.eng.TrackAndUpdateAllTrades(context.Background())

	assert.Equal(t, models.TradeStateCompleted, trade.State)
	assert.Equal(t, models.ExitReasonSLHit, trade.ExitReason)
	assert.Equal(t, "94.95", trade.Exit.String())

	book, ok := h.gateway.BookOrder(trade.TargetOrders[0].OrderID)
	require.True(t, ok)
	assert.Equal(t, models.OrderStatusCancelled, book.Status)
}

func TestTrailedStopHitUsesTrailReason(t *testing.T) {
	h := newHarness(t)
	h.tick("110")
	trade := newStubTrade()
	trade.StopLoss = decimal.NewFromInt(95)
	h.admit(t, trade)
	h.fillEntry(t, trade, "100.4")
	h.eng.TrackAndUpdateAllTrades(context.Background())
	require.Len(t, trade.SLOrders, 1)

	// trail tightens the stop above the initial one
	h.strat.trailSL = decimal.NewFromInt(105)
	h.eng.TrackAndUpdateAllTrades(context.Background())
	require.Equal(t, "105", trade.StopLoss.String())
	assert.Equal(t, "105", trade.SLOrders[0].TriggerPrice.String())
	assert.Equal(t, "103.95", trade.SLOrders[0].Price.String())

	h.eng.OnOrderUpdate(models.OrderUpdate{
		OrderID:      trade.SLOrders[0].OrderID,
		Status:       models.OrderStatusComplete,
		AveragePrice: decimal.RequireFromString("104.9"),
		FilledQty:    75,
	})
	h.eng.TrackAndUpdateAllTrades(context.Background())

	assert.Equal(t, models.ExitReasonTrailSLHit, trade.ExitReason)
}

func TestTrailCrossingMarketExitsAtMarket(t *testing.T) {
	h := newHarness(t)
	h.tick("110")
	trade := newStubTrade()
	trade.StopLoss = decimal.NewFromInt(95)
	h.admit(t, trade)
	h.fillEntry(t, trade, "100.4")
	h.eng.TrackAndUpdateAllTrades(context.Background())
	require.Len(t, trade.SLOrders, 1)

	// a stop above the market cannot rest; exit immediately instead
	h.strat.trailSL = decimal.NewFromInt(115)
	h.eng.TrackAndUpdateAllTrades(context.Background())

	assert.Equal(t, models.ExitReasonSLHit, trade.ExitReason)
	book, ok := h.gateway.BookOrder(trade.SLOrders[0].OrderID)
	require.True(t, ok)
	assert.Equal(t, models.OrderStatusCancelled, book.Status)
	types := h.gateway.PlacedOrderTypes()
	assert.Equal(t, models.OrderTypeMarket, types[len(types)-1])
}

func TestStopCancelledOutsideClosesAtMarket(t *testing.T) {
	h := newHarness(t)
	h.tick("103")
	trade := newStubTrade()
	trade.StopLoss = decimal.NewFromInt(95)
	trade.Target = decimal.NewFromInt(110)
	h.admit(t, trade)
	h.fillEntry(t, trade, "100.4")
	h.eng.TrackAndUpdateAllTrades(context.Background())
	require.Len(t, trade.SLOrders, 1)

	h.eng.OnOrderUpdate(models.OrderUpdate{
		OrderID: trade.SLOrders[0].OrderID,
		Status:  models.OrderStatusCancelled,
	})
	h.eng.TrackAndUpdateAllTrades(context.Background())

	assert.Equal(t, models.TradeStateCompleted, trade.State)
	assert.Equal(t, models.ExitReasonSLCancelled, trade.ExitReason)
	assert.Equal(t, "103", trade.Exit.String())
}

func TestTargetHitCompletesTradeAndCancelsStop(t *testing.T) {
	h := newHarness(t)
	h.tick("101")
	trade := newStubTrade()
	trade.StopLoss = decimal.NewFromInt(95)
	trade.Target = decimal.NewFromInt(110)
	h.admit(t, trade)
	h.fillEntry(t, trade, "100.4")
	h.eng.TrackAndUpdateAllTrades(context.Background())
	require.Len(t, trade.TargetOrders, 1)
	assert.Equal(t, "110", trade.TargetOrders[0].TriggerPrice.String())
	assert.Equal(t, "111.1", trade.TargetOrders[0].Price.String())

	h.eng.OnOrderUpdate(models.OrderUpdate{
		OrderID:      trade.TargetOrders[0].OrderID,
		Status:       models.OrderStatusComplete,
		AveragePrice: decimal.RequireFromString("110.2"),
		FilledQty:    75,
	})
	h.eng.TrackAndUpdateAllTrades(context.Background())

	assert.Equal(t, models.TradeStateCompleted, trade.State)
	assert.Equal(t, models.ExitReasonTargetHit, trade.ExitReason)
	assert.Equal(t, "110.2", trade.Exit.String())

	book, ok := h.gateway.BookOrder(trade.SLOrders[0].OrderID)
	require.True(t, ok)
	assert.Equal(t, models.OrderStatusCancelled, book.Status)
}

func TestTargetCancelledOutsideClosesAtMarket(t *testing.T) {
	h := newHarness(t)
	h.tick("104")
	trade := newStubTrade()
	trade.Target = decimal.NewFromInt(110)
	h.admit(t, trade)
	h.fillEntry(t, trade, "100.4")
	h.eng.TrackAndUpdateAllTrades(context.Background())
	require.Len(t, trade.TargetOrders, 1)

	h.eng.OnOrderUpdate(models.OrderUpdate{
		OrderID: trade.TargetOrders[0].OrderID,
		Status:  models.OrderStatusCancelled,
	})
	h.eng.TrackAndUpdateAllTrades(context.Background())

	assert.Equal(t, models.TradeStateCompleted, trade.State)
	assert.Equal(t, models.ExitReasonTargetCancelled, trade.ExitReason)
	assert.Equal(t, "104", trade.Exit.String())
}

func TestIntradaySquareOffDeadline(t *testing.T) {
	h := newHarness(t)
	h.tick("102")
	trade := newStubTrade()
	trade.IntradaySquareOffTimestamp = time.Now().Add(-time.Minute).Unix()
	h.admit(t, trade)
	h.fillEntry(t, trade, "100.4")

	h.eng.TrackAndUpdateAllTrades(context.Background())

	assert.Equal(t, models.ExitReasonSquareOff, trade.ExitReason)
	assert.Equal(t, "102", trade.Target.String())
}

func TestSquareOffStrategyDisablesAndExits(t *testing.T) {
	h := newHarness(t)
	h.tick("102")
	trade := h.admit(t, newStubTrade())
	h.fillEntry(t, trade, "100.4")
	h.eng.TrackAndUpdateAllTrades(context.Background())

	err := h.eng.SquareOffStrategy(context.Background(), "stub", models.ExitReasonManualExit)
	require.NoError(t, err)

	assert.False(t, h.strat.Enabled())
	assert.Equal(t, models.ExitReasonManualExit, trade.ExitReason)
	require.Len(t, trade.TargetOrders, 1)
	assert.Equal(t, models.OrderTypeMarket, trade.TargetOrders[0].OrderType)
	assert.Equal(t, trade.FilledQty, trade.TargetOrders[0].Qty)
}

func TestSquareOffLeavesTradeActiveWhenStopCancelFails(t *testing.T) {
	h := newHarness(t)
	h.tick("102")
	trade := newStubTrade()
	trade.StopLoss = decimal.NewFromInt(95)
	h.admit(t, trade)
	h.fillEntry(t, trade, "100.4")
	h.eng.TrackAndUpdateAllTrades(context.Background())
	require.Len(t, trade.SLOrders, 1)

	h.gateway.FailNextCancel(assert.AnError)
	h.eng.squareOffTrade(context.Background(), trade, models.ExitReasonSquareOff)

	assert.Equal(t, models.TradeStateActive, trade.State)
	assert.Empty(t, trade.TargetOrders)
}

func TestReconcileSnapshotRoundTrip(t *testing.T) {
	h := newHarness(t)
	h.tick("102")
	trade := h.admit(t, newStubTrade())
	h.fillEntry(t, trade, "100.4")

	h.eng.ReconcileOnce(context.Background())

	restored := New(Config{ShortCode: "test"}, h.eng.exec, h.ticker, h.eng.quotes,
		h.eng.cal, h.eng.instruments, h.eng.store, nil, h.eng.logger)
	require.NoError(t, restored.RestoreDay())

	trades := restored.Trades()
	require.Len(t, trades, 1)
	got := trades[0]
	assert.Equal(t, trade.TradeID, got.TradeID)
	assert.Equal(t, models.TradeStateActive, got.State)
	assert.Equal(t, "100.4", got.Entry.String())

	// restored orders are reachable through the order index again
	restored.OnOrderUpdate(models.OrderUpdate{
		OrderID: got.EntryOrders[0].OrderID,
		Status:  models.OrderStatusComplete,
	})
	assert.Equal(t, models.OrderStatusComplete, got.EntryOrders[0].Status)

	states, err := h.eng.store.LoadStrategies(time.Now())
	require.NoError(t, err)
	assert.True(t, states["stub"].Enabled)
}

func TestActiveTradePnLIsMarkedToMarket(t *testing.T) {
	h := newHarness(t)
	trade := h.admit(t, newStubTrade())
	h.fillEntry(t, trade, "100")

	h.tick("102")
	h.eng.ReconcileOnce(context.Background())

	// 75 filled, 2 points in favor
	assert.Equal(t, "150", trade.PnL.String())
}

func TestSecondPassLeavesStopOrderAlone(t *testing.T) {
	h := newHarness(t)
	h.tick("101")
	trade := newStubTrade()
	trade.StopLoss = decimal.NewFromInt(95)
	trade.Target = decimal.NewFromInt(110)
	h.admit(t, trade)
	h.fillEntry(t, trade, "100.4")

	h.eng.TrackAndUpdateAllTrades(context.Background())
	require.Len(t, trade.SLOrders, 1)
	require.Len(t, trade.TargetOrders, 1)

	h.eng.TrackAndUpdateAllTrades(context.Background())
	h.eng.TrackAndUpdateAllTrades(context.Background())

	assert.Len(t, trade.SLOrders, 1)
	assert.Len(t, trade.TargetOrders, 1)

	// exactly one stop leg ever reached the broker
	stopLegs := 0
	for _, orderType := range h.gateway.PlacedOrderTypes() {
		if orderType == models.OrderTypeSLLimit || orderType == models.OrderTypeSLMarket {
			stopLegs++
		}
	}
	assert.Equal(t, 1, stopLegs)

	// and both bracket legs are still working at the broker
	book, ok := h.gateway.BookOrder(trade.SLOrders[0].OrderID)
	require.True(t, ok)
	assert.Equal(t, models.OrderStatusTriggerPending, book.Status)
	book, ok = h.gateway.BookOrder(trade.TargetOrders[0].OrderID)
	require.True(t, ok)
	assert.Equal(t, models.OrderStatusTriggerPending, book.Status)
}

func TestZeroStopSentinelNeverPlacesStopOrder(t *testing.T) {
	h := newHarness(t)
	h.tick("101")
	trade := h.admit(t, newStubTrade())
	h.fillEntry(t, trade, "100.4")

	h.eng.TrackAndUpdateAllTrades(context.Background())
	h.eng.TrackAndUpdateAllTrades(context.Background())

	assert.Empty(t, trade.SLOrders)
	assert.True(t, trade.StopLoss.IsZero())
	for _, orderType := range h.gateway.PlacedOrderTypes() {
		assert.NotEqual(t, models.OrderTypeSLLimit, orderType)
		assert.NotEqual(t, models.OrderTypeSLMarket, orderType)
	}
}

func TestCompletedTradeKeepsItsClosingMarks(t *testing.T) {
	h := newHarness(t)
	h.tick("101")
	trade := newStubTrade()
	trade.StopLoss = decimal.NewFromInt(95)
	h.admit(t, trade)
	h.fillEntry(t, trade, "100.4")
	h.eng.TrackAndUpdateAllTrades(context.Background())
	require.Len(t, trade.SLOrders, 1)

	h.eng.OnOrderUpdate(models.OrderUpdate{
		OrderID:      trade.SLOrders[0].OrderID,
		Status:       models.OrderStatusComplete,
		AveragePrice: decimal.RequireFromString("94.95"),
		FilledQty:    75,
	})
	h.eng.TrackAndUpdateAllTrades(context.Background())
	require.Equal(t, models.TradeStateCompleted, trade.State)

	cmpAtClose := trade.CMP
	pnlAtClose := trade.PnL

	h.tick("150")
	h.eng.ReconcileOnce(context.Background())

	assert.True(t, trade.CMP.Equal(cmpAtClose), "CMP moved after close")
	assert.True(t, trade.PnL.Equal(pnlAtClose), "PnL moved after close")
}

func errModifyExceeded() error {
	return errors.New("Maximum allowed order modifications exceeded.")
}
