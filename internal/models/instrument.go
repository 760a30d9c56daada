package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Instrument is one record from the broker's instrument master dump.
type Instrument struct {
	InstrumentToken string          `json:"instrument_token"`
	TradingSymbol   string          `json:"trading_symbol"`
	Name            string          `json:"name"`
	Exchange        string          `json:"exchange"`
	Segment         Segment         `json:"segment"`
	InstrumentType  string          `json:"instrument_type"` // EQ/FUT/CE/PE
	Expiry          time.Time       `json:"expiry"`
	Strike          decimal.Decimal `json:"strike"`
	LotSize         int64           `json:"lot_size"`
	TickSize        decimal.Decimal `json:"tick_size"`
}
