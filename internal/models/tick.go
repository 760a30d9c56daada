package models

import "github.com/shopspring/decimal"

// TickData is one market data update delivered by a ticker stream.
type TickData struct {
	TradingSymbol      string
	LastTradedPrice    decimal.Decimal
	LastTradedQuantity int64
	AvgTradedPrice     decimal.Decimal
	Volume             int64
	TotalBuyQuantity   int64
	TotalSellQuantity  int64
	Open               decimal.Decimal
	High               decimal.Decimal
	Low                decimal.Decimal
	Close              decimal.Decimal
	Change             decimal.Decimal
	ExchangeTimestamp  int64
}

// OrderUpdate is a push notification about one of our orders, delivered on
// the same stream as ticks by most brokers.
type OrderUpdate struct {
	OrderID      string
	Status       OrderStatus
	AveragePrice decimal.Decimal
	FilledQty    int64
	PendingQty   int64
	Timestamp    int64
	Message      string
}

// Quote is a point-in-time snapshot for a symbol, fetched on demand.
type Quote struct {
	TradingSymbol     string
	LastTradedPrice   decimal.Decimal
	Volume            int64
	TotalBuyQuantity  int64
	TotalSellQuantity int64
	Open              decimal.Decimal
	High              decimal.Decimal
	Low               decimal.Decimal
	Close             decimal.Decimal
	UpperCircuitLimit decimal.Decimal
	LowerCircuitLimit decimal.Decimal
}
