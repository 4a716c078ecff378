package detection

import (
	"github.com/memlab/memwatch/internal/sampling"
	"github.com/memlab/memwatch/internal/types"
	"gopkg.in/guregu/null.v3"
)

// Evaluate applies the firing policy to a single sample. It has no side effects:
// identical inputs always produce identical outputs, and at most one event.
func Evaluate(config MonitorConfig, state MonitorState, sample sampling.Sample) (MonitorState, *AlertEvent) {
	if !sample.Found {
		wasPresent := state.LastKnownPresent
		state.LastKnownPresent = false
		state.LastAlertWatermark = null.Float{}

		if wasPresent || config.RepeatCrashAlerts {
			return state, NewCrashEvent(config.ProcessName)
		}
		return state, nil
	}

	state.LastKnownPresent = true
	usagePercent := types.UsagePercent(sample.VirtualMb, config.TotalMemoryMb)

	if usagePercent < config.ThresholdPercent {
		state.LastAlertWatermark = null.Float{}
		return state, nil
	}

	if !state.LastAlertWatermark.Valid ||
		usagePercent >= state.LastAlertWatermark.Float64+config.HysteresisStepPercent {
		state.LastAlertWatermark = null.FloatFrom(usagePercent)
		return state, NewHighMemoryEvent(config.ProcessName, sample.VirtualMb, sample.ResidentMb, usagePercent)
	}

	return state, nil
}
