package strategy

import "fmt"

// DeregisterError signals that a strategy cannot run today (or any
// more today) and should be removed from the engine. It is a control
// flow signal, not a failure.
type DeregisterError struct {
	StrategyName string
	Reason       string
}

func (e *DeregisterError) Error() string {
	return fmt.Sprintf("deregister strategy %s: %s", e.StrategyName, e.Reason)
}

// Deregister builds a DeregisterError for the named strategy.
func Deregister(name, reason string) *DeregisterError {
	return &DeregisterError{StrategyName: name, Reason: reason}
}
