// Package models defines the order and trade value objects shared across the engine.
package models

// Direction is the side of a trade or order.
type Direction string

const (
	DirectionLong  Direction = "LONG"
	DirectionShort Direction = "SHORT"
)

// Opposite returns the reverse side, used for exit legs of a bracket.
func (d Direction) Opposite() Direction {
	if d == DirectionLong {
		return DirectionShort
	}
	return DirectionLong
}

// OrderType is the venue order type.
type OrderType string

const (
	OrderTypeLimit    OrderType = "LIMIT"
	OrderTypeMarket   OrderType = "MARKET"
	OrderTypeSLMarket OrderType = "SL_MARKET"
	OrderTypeSLLimit  OrderType = "SL_LIMIT"
)

// OrderStatus is the broker-reported order state.
type OrderStatus string

const (
	OrderStatusOpen              OrderStatus = "OPEN"
	OrderStatusComplete          OrderStatus = "COMPLETE"
	OrderStatusOpenPending       OrderStatus = "OPEN PENDING"
	OrderStatusValidationPending OrderStatus = "VALIDATION PENDING"
	OrderStatusPutOrderReceived  OrderStatus = "PUT ORDER REQ RECEIVED"
	OrderStatusTriggerPending    OrderStatus = "TRIGGER PENDING"
	OrderStatusRejected          OrderStatus = "REJECTED"
	OrderStatusCancelled         OrderStatus = "CANCELLED"
)

// IsTerminal reports whether no further broker updates are expected.
func (s OrderStatus) IsTerminal() bool {
	switch s {
	case OrderStatusComplete, OrderStatusCancelled, OrderStatusRejected:
		return true
	}
	return false
}

// ProductType is the broker product class.
type ProductType string

const (
	ProductMIS  ProductType = "MIS"
	ProductNRML ProductType = "NRML"
	ProductCNC  ProductType = "CNC"
)

// Segment is the market segment an instrument trades in.
type Segment string

const (
	SegmentEquity    Segment = "EQUITY"
	SegmentFnO       Segment = "FNO"
	SegmentCurrency  Segment = "CURRENCY"
	SegmentCommodity Segment = "COMMODITY"
)

// TradeState is the lifecycle state of a trade.
type TradeState string

const (
	// TradeStateCreated means the trade exists but no order is placed yet.
	TradeStateCreated TradeState = "created"
	// TradeStateActive means an entry order has been placed and acknowledged.
	TradeStateActive TradeState = "active"
	// TradeStateCompleted means the trade exited via SL, target or square-off.
	TradeStateCompleted TradeState = "completed"
	// TradeStateCancelled means all entry legs were cancelled.
	TradeStateCancelled TradeState = "cancelled"
	// TradeStateDisabled means the trade was refused or rejected before going live.
	TradeStateDisabled TradeState = "disabled"
)

// IsTerminal reports whether the trade can no longer place orders.
func (s TradeState) IsTerminal() bool {
	switch s {
	case TradeStateCompleted, TradeStateCancelled, TradeStateDisabled:
		return true
	}
	return false
}

// ExitReason records why a trade left the ACTIVE state.
type ExitReason string

const (
	ExitReasonNone             ExitReason = ""
	ExitReasonSLHit            ExitReason = "SL HIT"
	ExitReasonTrailSLHit       ExitReason = "TRAIL SL HIT"
	ExitReasonTargetHit        ExitReason = "TARGET HIT"
	ExitReasonSquareOff        ExitReason = "SQUARE OFF"
	ExitReasonSLCancelled      ExitReason = "SL CANCELLED"
	ExitReasonTargetCancelled  ExitReason = "TARGET CANCELLED"
	ExitReasonStrategySLHit    ExitReason = "STGY SL HIT"
	ExitReasonStrategyTrailSL  ExitReason = "STGY TRAIL SL HIT"
	ExitReasonStrategyTarget   ExitReason = "STGY TARGET HIT"
	ExitReasonTradeFailed      ExitReason = "TRADE FAILED"
	ExitReasonManualExit       ExitReason = "MANUAL EXIT"
)

// resumable exit reasons: anything else on a restored trade means an
// external actor intervened and the strategy must not resume.
var resumableExitReasons = map[ExitReason]bool{
	ExitReasonNone:       true,
	ExitReasonSLHit:      true,
	ExitReasonTargetHit:  true,
	ExitReasonTrailSLHit: true,
	ExitReasonManualExit: true,
}

// IsResumable reports whether a strategy may resume after restart with a
// trade carrying this exit reason.
func (r ExitReason) IsResumable() bool {
	return resumableExitReasons[r]
}

// AlgoStatus tracks the per-account supervisor state.
type AlgoStatus string

const (
	AlgoStatusInitiated AlgoStatus = "INITIATED"
	AlgoStatusStarted   AlgoStatus = "STARTED"
	AlgoStatusStopped   AlgoStatus = "STOPPED"
)
