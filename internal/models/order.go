package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// OrderParams carries everything needed to place one broker order.
type OrderParams struct {
	TradingSymbol string          `json:"trading_symbol"`
	Exchange      string          `json:"exchange"`
	IsFnO         bool            `json:"is_fno"`
	Segment       Segment         `json:"segment"`
	ProductType   ProductType     `json:"product_type"`
	Direction     Direction       `json:"direction"`
	OrderType     OrderType       `json:"order_type"`
	Qty           int64           `json:"qty"`
	Price         decimal.Decimal `json:"price"`
	TriggerPrice  decimal.Decimal `json:"trigger_price"` // Applicable for SL order types
	Tag           string          `json:"tag"`
}

// NewOrderParams returns params with the venue defaults filled in.
func NewOrderParams(tradingSymbol string) OrderParams {
	return OrderParams{
		TradingSymbol: tradingSymbol,
		Exchange:      "NSE",
		Segment:       SegmentEquity,
		ProductType:   ProductMIS,
	}
}

func (p OrderParams) String() string {
	return fmt.Sprintf("symbol=%s, exchange=%s, productType=%s, direction=%s, orderType=%s, qty=%d, price=%s, triggerPrice=%s, isFnO=%t",
		p.TradingSymbol, p.Exchange, p.ProductType, p.Direction, p.OrderType, p.Qty, p.Price, p.TriggerPrice, p.IsFnO)
}

// ModifyParams carries the mutable attributes of an order modification.
// Zero-valued fields mean "leave unchanged".
type ModifyParams struct {
	NewPrice        decimal.Decimal `json:"new_price"`
	NewTriggerPrice decimal.Decimal `json:"new_trigger_price"`
	NewQty          int64           `json:"new_qty"`
	NewOrderType    OrderType       `json:"new_order_type"`
}

func (p ModifyParams) String() string {
	return fmt.Sprintf("newPrice=%s, newTriggerPrice=%s, newQty=%d, newOrderType=%s",
		p.NewPrice, p.NewTriggerPrice, p.NewQty, p.NewOrderType)
}

// Order represents one broker order leg (entry, stop-loss or target) and
// its fill lifecycle. Orders are never deleted; they stay on the owning
// trade for audit and P&L computation.
type Order struct {
	TradingSymbol string      `json:"trading_symbol"`
	Exchange      string      `json:"exchange"`
	ProductType   ProductType `json:"product_type"`
	OrderType     OrderType   `json:"order_type"`
	Direction     Direction   `json:"direction"`

	Price        decimal.Decimal `json:"price"`
	TriggerPrice decimal.Decimal `json:"trigger_price"`
	Qty          int64           `json:"qty"`
	Tag          string          `json:"tag"`

	// OrderID is broker-assigned; empty until the order is placed.
	OrderID string `json:"order_id"`
	// ParentOrderID links a bracket child to its parent on reconstruction.
	ParentOrderID string `json:"parent_order_id"`

	Status          OrderStatus     `json:"order_status"`
	AveragePrice    decimal.Decimal `json:"average_price"`
	FilledQty       int64           `json:"filled_qty"`
	PendingQty      int64           `json:"pending_qty"`
	PlaceTimestamp  int64           `json:"place_timestamp"`
	UpdateTimestamp int64           `json:"update_timestamp"`
	Message         string          `json:"message"`
}

// NewOrder creates a client-side order from placement params. The broker
// fills in OrderID and status once the order is acknowledged.
func NewOrder(params OrderParams) *Order {
	now := time.Now().Unix()
	return &Order{
		TradingSymbol:   params.TradingSymbol,
		Exchange:        params.Exchange,
		ProductType:     params.ProductType,
		OrderType:       params.OrderType,
		Direction:       params.Direction,
		Price:           params.Price,
		TriggerPrice:    params.TriggerPrice,
		Qty:             params.Qty,
		Tag:             params.Tag,
		PlaceTimestamp:  now,
		UpdateTimestamp: now,
	}
}

// IsOpen reports whether the order is still working at the broker.
func (o *Order) IsOpen() bool {
	return o.Status == OrderStatusOpen || o.Status == OrderStatusTriggerPending
}

func (o *Order) String() string {
	return fmt.Sprintf("orderId=%s, orderStatus=%s, symbol=%s, productType=%s, orderType=%s, price=%s, triggerPrice=%s, qty=%d, filledQty=%d, pendingQty=%d, averagePrice=%s",
		o.OrderID, o.Status, o.TradingSymbol, o.ProductType, o.OrderType, o.Price, o.TriggerPrice, o.Qty, o.FilledQty, o.PendingQty, o.AveragePrice)
}
