package models

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputePnLActiveMarksToMarket(t *testing.T) {
	trade := NewTrade("NIFTY24O0924500CE", "test")
	trade.State = TradeStateActive
	trade.Entry = decimal.NewFromInt(100)
	trade.FilledQty = 75
	trade.CMP = decimal.NewFromInt(110)

	trade.ComputePnL()
	assert.Equal(t, "750", trade.PnL.String())
	assert.Equal(t, "10", trade.PnLPercentage.String())

	trade.Direction = DirectionShort
	trade.ComputePnL()
	assert.Equal(t, "-750", trade.PnL.String())
}

func TestComputePnLTerminalUsesExitPrice(t *testing.T) {
	trade := NewTrade("NIFTY24O0924500CE", "test")
	trade.State = TradeStateCompleted
	trade.Entry = decimal.NewFromInt(100)
	trade.Exit = decimal.NewFromInt(105)
	trade.FilledQty = 75
	trade.CMP = decimal.NewFromInt(400) // stale, must be ignored

	trade.ComputePnL()
	assert.Equal(t, "375", trade.PnL.String())
}

func TestComputePnLWithoutPriceLeavesPnLAlone(t *testing.T) {
	trade := NewTrade("NIFTY24O0924500CE", "test")
	trade.State = TradeStateActive
	trade.Entry = decimal.NewFromInt(100)
	trade.FilledQty = 75
	trade.PnL = decimal.NewFromInt(42)

	trade.ComputePnL()
	assert.Equal(t, "42", trade.PnL.String())
}

func TestTradeIDCarriesStrategyPrefix(t *testing.T) {
	trade := NewTrade("NIFTY24O0924500CE", "OptionSeller")
	assert.Contains(t, trade.TradeID, "OptionSeller:")
	assert.Equal(t, TradeStateCreated, trade.State)
}

func TestTradeEqualsMatchesByIntent(t *testing.T) {
	a := NewTrade("NIFTY24O0924500CE", "test")
	a.RequestedEntry = decimal.NewFromInt(100)
	a.Qty = 75

	b := NewTrade("NIFTY24O0924500CE", "test")
	b.RequestedEntry = decimal.NewFromInt(100)
	b.Qty = 75

	assert.True(t, a.Equals(b), "same intent, different ids")

	b.Qty = 150
	assert.False(t, a.Equals(b))

	b.TradeID = a.TradeID
	assert.True(t, a.Equals(b), "identity wins over intent")
	assert.False(t, a.Equals(nil))
}

func TestTradeSnapshotRoundTrip(t *testing.T) {
	trade := NewTrade("NIFTY24O0924500CE", "test")
	trade.State = TradeStateActive
	trade.Direction = DirectionShort
	trade.Entry = decimal.RequireFromString("100.35")
	trade.FilledQty = 75
	trade.EntryOrders = []*Order{{
		OrderID:       "OID1",
		TradingSymbol: trade.TradingSymbol,
		Status:        OrderStatusComplete,
		FilledQty:     75,
		AveragePrice:  decimal.RequireFromString("100.35"),
	}}

	data, err := json.Marshal(trade)
	require.NoError(t, err)

	var restored Trade
	require.NoError(t, json.Unmarshal(data, &restored))
	assert.Equal(t, trade.TradeID, restored.TradeID)
	assert.Equal(t, TradeStateActive, restored.State)
	assert.True(t, restored.Entry.Equal(trade.Entry))
	require.Len(t, restored.EntryOrders, 1)
	assert.Equal(t, "OID1", restored.EntryOrders[0].OrderID)
}

func TestResumableExitReasons(t *testing.T) {
	resumable := []ExitReason{
		ExitReasonNone, ExitReasonSLHit, ExitReasonTargetHit,
		ExitReasonTrailSLHit, ExitReasonManualExit,
	}
	for _, r := range resumable {
		assert.True(t, r.IsResumable(), string(r))
	}

	blocked := []ExitReason{
		ExitReasonSquareOff, ExitReasonSLCancelled, ExitReasonTargetCancelled,
		ExitReasonStrategySLHit, ExitReasonStrategyTrailSL,
		ExitReasonStrategyTarget, ExitReasonTradeFailed,
	}
	for _, r := range blocked {
		assert.False(t, r.IsResumable(), string(r))
	}
}

func TestDirectionOpposite(t *testing.T) {
	assert.Equal(t, DirectionShort, DirectionLong.Opposite())
	assert.Equal(t, DirectionLong, DirectionShort.Opposite())
}
