package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Trade aggregates one strategy position: its requested and actual entry,
// stop-loss, target, and the order legs placed for each of them.
type Trade struct {
	// TradeID is unique per creation: "{strategy}:{uuid}".
	TradeID       string      `json:"trade_id"`
	TradingSymbol string      `json:"trading_symbol"`
	Strategy      string      `json:"strategy"`
	Direction     Direction   `json:"direction"`
	ProductType   ProductType `json:"product_type"`
	Exchange      string      `json:"exchange"`

	IsFutures  bool   `json:"is_futures"`
	IsOptions  bool   `json:"is_options"`
	OptionType string `json:"option_type,omitempty"` // CE/PE when IsOptions
	Underlying string `json:"underlying,omitempty"`

	// PlaceMarketOrder selects LIMIT entry at requested price instead of a
	// stop-entry (SL_LIMIT) that waits for the trigger.
	PlaceMarketOrder bool `json:"place_market_order"`

	// IntradaySquareOffTimestamp forces a market square-off once reached.
	IntradaySquareOffTimestamp int64 `json:"intraday_squareoff_timestamp"`

	RequestedEntry decimal.Decimal `json:"requested_entry"`
	// Entry is the volume-weighted average of all filled entry legs.
	Entry     decimal.Decimal `json:"entry"`
	Qty       int64           `json:"qty"`
	FilledQty int64           `json:"filled_qty"`

	InitialStopLoss decimal.Decimal `json:"initial_stoploss"`
	// StopLoss is the current stop; diverges from InitialStopLoss once the
	// trail updates it. Zero means "not yet computed".
	StopLoss decimal.Decimal `json:"stop_loss"`
	Target   decimal.Decimal `json:"target"`
	// CMP is the last market price seen for the trading symbol.
	CMP decimal.Decimal `json:"cmp"`

	StopLossPercentage           decimal.Decimal `json:"stoploss_percentage"`
	StopLossUnderlyingPercentage decimal.Decimal `json:"stoploss_underlying_percentage"`

	State TradeState `json:"state"`

	Timestamp       int64 `json:"timestamp"`        // strategy reference timestamp
	CreateTimestamp int64 `json:"create_timestamp"` // when created, not triggered
	StartTimestamp  int64 `json:"start_timestamp"`  // when the entry order was placed
	EndTimestamp    int64 `json:"end_timestamp"`    // when the trade ended

	PnL           decimal.Decimal `json:"pnl"`
	PnLPercentage decimal.Decimal `json:"pnl_percentage"`
	Exit          decimal.Decimal `json:"exit"`
	ExitReason    ExitReason      `json:"exit_reason"`

	EntryOrders  []*Order `json:"entry_orders"`
	SLOrders     []*Order `json:"sl_orders"`
	TargetOrders []*Order `json:"target_orders"`
}

// NewTrade creates a trade owned by the named strategy.
func NewTrade(tradingSymbol, strategy string) *Trade {
	id := uuid.NewString()
	if strategy != "" {
		id = strategy + ":" + id
	}
	return &Trade{
		TradeID:         id,
		TradingSymbol:   tradingSymbol,
		Strategy:        strategy,
		Direction:       DirectionLong,
		ProductType:     ProductMIS,
		Exchange:        "NSE",
		State:           TradeStateCreated,
		CreateTimestamp: time.Now().Unix(),
	}
}

// ComputePnL recomputes realized/unrealized P&L from the current market
// price (when active) or the exit price (when terminal), signed by
// direction and scaled by the filled quantity.
func (t *Trade) ComputePnL() {
	qty := decimal.NewFromInt(t.FilledQty)
	if t.State == TradeStateActive {
		if t.CMP.IsPositive() {
			if t.Direction == DirectionLong {
				t.PnL = qty.Mul(t.CMP.Sub(t.Entry)).Round(2)
			} else {
				t.PnL = qty.Mul(t.Entry.Sub(t.CMP)).Round(2)
			}
		}
	} else if t.Exit.IsPositive() {
		if t.Direction == DirectionLong {
			t.PnL = qty.Mul(t.Exit.Sub(t.Entry)).Round(2)
		} else {
			t.PnL = qty.Mul(t.Entry.Sub(t.Exit)).Round(2)
		}
	}

	tradeValue := t.Entry.Mul(qty)
	if tradeValue.IsPositive() {
		t.PnLPercentage = t.PnL.Mul(decimal.NewFromInt(100)).Div(tradeValue).Round(2)
	}
}

// Equals compares two trades by identity first, then by intent fields.
func (t *Trade) Equals(other *Trade) bool {
	if other == nil {
		return false
	}
	if t.TradeID == other.TradeID {
		return true
	}
	switch {
	case t.TradingSymbol != other.TradingSymbol,
		t.Strategy != other.Strategy,
		t.Direction != other.Direction,
		t.ProductType != other.ProductType,
		!t.RequestedEntry.Equal(other.RequestedEntry),
		t.Qty != other.Qty,
		t.Timestamp != other.Timestamp,
		!t.StopLossPercentage.Equal(other.StopLossPercentage),
		!t.StopLoss.Equal(other.StopLoss),
		!t.Target.Equal(other.Target):
		return false
	}
	return true
}

func (t *Trade) String() string {
	return fmt.Sprintf("ID=%s, state=%s, symbol=%s, strategy=%s, direction=%s, marketOrder=%t, productType=%s, reqEntry=%s, stopLoss=%s, target=%s, entry=%s, exit=%s, pnl=%s",
		t.TradeID, t.State, t.TradingSymbol, t.Strategy, t.Direction, t.PlaceMarketOrder, t.ProductType, t.RequestedEntry, t.StopLoss, t.Target, t.Entry, t.Exit, t.PnL)
}
