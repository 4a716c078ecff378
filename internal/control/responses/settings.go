package responses

import (
	"github.com/memlab/memwatch/internal/detection"
)

type Settings struct {
	ProcessName           string   `json:"process_name"`
	ThresholdPercent      float64  `json:"threshold_percent"`
	Recipients            []string `json:"recipients"`
	PollInterval          string   `json:"poll_interval"`
	HysteresisStepPercent float64  `json:"hysteresis_step_percent"`
	TotalMemoryMb         float64  `json:"total_memory_mb"`
	RepeatCrashAlerts     bool     `json:"repeat_crash_alerts"`

	// Warnings lists input that was rejected and replaced by a fallback.
	Warnings []string `json:"warnings,omitempty"`
}

func NewSettings(config detection.MonitorConfig) *Settings {
	recipients := make([]string, len(config.Recipients))
	copy(recipients, config.Recipients)

	return &Settings{
		ProcessName:           config.ProcessName,
		ThresholdPercent:      config.ThresholdPercent,
		Recipients:            recipients,
		PollInterval:          config.PollInterval.String(),
		HysteresisStepPercent: config.HysteresisStepPercent,
		TotalMemoryMb:         config.TotalMemoryMb,
		RepeatCrashAlerts:     config.RepeatCrashAlerts,
	}
}
