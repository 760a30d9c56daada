package engine

import "fmt"

// DisableTradeError marks a trade as refused before any order went
// out. The engine moves the trade to the disabled state instead of
// treating the refusal as a failure.
type DisableTradeError struct {
	TradeID string
	Reason  string
}

func (e *DisableTradeError) Error() string {
	return fmt.Sprintf("trade %s disabled: %s", e.TradeID, e.Reason)
}
