package detection

import "gopkg.in/guregu/null.v3"

type AlertKind int

const (
	AlertKindHighMemory AlertKind = iota + 1
	AlertKindCrash
)

var alertKindNames = map[AlertKind]string{
	AlertKindHighMemory: "high-memory",
	AlertKindCrash:      "crash",
}

func (ak AlertKind) Name() string {
	name, found := alertKindNames[ak]
	if !found {
		return ""
	}
	return name
}

// AlertEvent is either a high-memory event carrying the sampled metrics or a crash
// event carrying only the process identity.
type AlertEvent struct {
	Kind         AlertKind
	Process      string
	VirtualMb    float64
	ResidentMb   float64
	UsagePercent float64
}

func NewHighMemoryEvent(process string, virtualMb, residentMb, usagePercent float64) *AlertEvent {
	return &AlertEvent{
		Kind:         AlertKindHighMemory,
		Process:      process,
		VirtualMb:    virtualMb,
		ResidentMb:   residentMb,
		UsagePercent: usagePercent,
	}
}

func NewCrashEvent(process string) *AlertEvent {
	return &AlertEvent{Kind: AlertKindCrash, Process: process}
}

// MonitorState belongs to a single session's worker.
type MonitorState struct {
	// LastAlertWatermark is the usage at which the last high-memory alert fired.
	// Invalid means no alert since the last (re)start, crash, or drop below threshold.
	LastAlertWatermark null.Float

	LastKnownPresent bool
}

// NewMonitorState assumes the process is present so the first failed sample is
// treated as a transition.
func NewMonitorState() MonitorState {
	return MonitorState{LastKnownPresent: true}
}
