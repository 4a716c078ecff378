package detection

import (
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
)

const (
	DefaultProcessName           = "AutomationDesk.exe"
	DefaultThresholdPercent      = 70.0
	DefaultPollInterval          = 5 * time.Second
	DefaultHysteresisStepPercent = 5.0
	DefaultTotalMemoryMb         = 4096.0
)

// MonitorConfig is read-only once a session starts.
type MonitorConfig struct {
	ProcessName           string
	ThresholdPercent      float64
	Recipients            []string
	PollInterval          time.Duration
	HysteresisStepPercent float64
	TotalMemoryMb         float64

	// RepeatCrashAlerts emits a crash event on every tick the process stays absent,
	// instead of once per present-to-absent transition.
	RepeatCrashAlerts bool
}

func DefaultMonitorConfig() MonitorConfig {
	return MonitorConfig{
		ProcessName:           DefaultProcessName,
		ThresholdPercent:      DefaultThresholdPercent,
		Recipients:            []string{},
		PollInterval:          DefaultPollInterval,
		HysteresisStepPercent: DefaultHysteresisStepPercent,
		TotalMemoryMb:         DefaultTotalMemoryMb,
	}
}

func (mc *MonitorConfig) Valid() (bool, error) {
	var errs error

	if mc.ProcessName == "" {
		errs = multierror.Append(errs, errors.New("empty process name"))
	}

	if mc.ThresholdPercent < 0 || mc.ThresholdPercent > 100 {
		errs = multierror.Append(errs, errors.Errorf("threshold '%.2f' out of range [0, 100]",
			mc.ThresholdPercent))
	}

	if mc.PollInterval <= 0 {
		errs = multierror.Append(errs, errors.New("uninitialized poll interval"))
	}

	if mc.HysteresisStepPercent < 0 {
		errs = multierror.Append(errs, errors.Errorf("negative hysteresis step '%.2f'",
			mc.HysteresisStepPercent))
	}

	if mc.TotalMemoryMb <= 0 {
		errs = multierror.Append(errs, errors.New("uninitialized total memory"))
	}

	if errs != nil {
		return false, errs
	}
	return true, nil
}

// Clone returns a copy that shares no slices with mc.
func (mc MonitorConfig) Clone() MonitorConfig {
	recipients := make([]string, len(mc.Recipients))
	copy(recipients, mc.Recipients)
	mc.Recipients = recipients
	return mc
}
