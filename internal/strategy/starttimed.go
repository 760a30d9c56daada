package strategy

import "time"

// NewStartTimed builds a base strategy whose name carries its start
// time, so several instances of the same strategy can run in one day
// without colliding in the registry or the snapshots.
func NewStartTimed(deps Deps, params Params, startTime time.Time) *BaseStrategy {
	params.Name = params.Name + "_" + startTime.Format("15:04:05")
	params.StartTime = startTime
	return NewBaseStrategy(deps, params)
}
