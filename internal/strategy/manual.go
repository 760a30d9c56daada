package strategy

import (
	"time"

	"algotrader/internal/marketcal"
)

// NewManual builds the manual strategy: it never generates trades on
// its own, it only hosts trades placed through the control surface so
// they get bracket management, square-off and snapshots like any other
// trade.
func NewManual(deps Deps, multiple int64) *BaseStrategy {
	now := deps.Calendar.Now()
	day := marketcal.Midnight(now)
	return NewBaseStrategy(deps, Params{
		Name:            "ManualStrategy",
		Multiple:        multiple,
		MaxTradesPerDay: 10,
		StartTime:       day.Add(9*time.Hour + 16*time.Minute),
		StopTime:        day.Add(15*time.Hour + 24*time.Minute),
		SquareOffTime:   day.Add(15*time.Hour + 24*time.Minute),
	})
}
