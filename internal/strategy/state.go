package strategy

import "github.com/shopspring/decimal"

// State is the part of a strategy that survives restarts: whether it
// is still enabled and the current strategy-level stop and target,
// which the ratchet moves during the day.
type State struct {
	Enabled        bool            `json:"enabled"`
	StrategySL     decimal.Decimal `json:"strategySL"`
	StrategyTarget decimal.Decimal `json:"strategyTarget"`
}
