package control

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/memlab/memwatch/internal/detection"
	internalErrors "github.com/memlab/memwatch/internal/errors"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// SettingsFile is the persisted form of the operator settings. Zero values leave
// the corresponding monitor setting untouched.
type SettingsFile struct {
	ProcessName           string   `yaml:"process_name,omitempty"`
	ThresholdPercent      *float64 `yaml:"threshold_percent,omitempty"`
	Recipients            []string `yaml:"recipients,omitempty"`
	PollInterval          string   `yaml:"poll_interval,omitempty"`
	HysteresisStepPercent *float64 `yaml:"hysteresis_step_percent,omitempty"`
	TotalMemoryMb         float64  `yaml:"total_memory_mb,omitempty"`
	RepeatCrashAlerts     *bool    `yaml:"repeat_crash_alerts,omitempty"`
}

// LoadSettingsFile reads the file at path. A missing file yields empty settings.
func LoadSettingsFile(path string) (*SettingsFile, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &SettingsFile{}, nil
	} else if err != nil {
		return nil, internalErrors.WrappedErrLoadSettings(err)
	}

	settings := &SettingsFile{}
	if err := yaml.Unmarshal(data, settings); err != nil {
		return nil, internalErrors.WrappedErrLoadSettings(err)
	}
	return settings, nil
}

// SaveSettingsFile replaces the file at path through a rename so readers never see
// a partial file.
func SaveSettingsFile(path string, settings *SettingsFile) error {
	data, err := yaml.Marshal(settings)
	if err != nil {
		return internalErrors.WrappedErrSaveSettings(err)
	}

	temp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return internalErrors.WrappedErrSaveSettings(err)
	}
	defer os.Remove(temp.Name())

	if _, err := temp.Write(data); err != nil {
		temp.Close()
		return internalErrors.WrappedErrSaveSettings(err)
	}
	if err := temp.Close(); err != nil {
		return internalErrors.WrappedErrSaveSettings(err)
	}

	if err := os.Rename(temp.Name(), path); err != nil {
		return internalErrors.WrappedErrSaveSettings(err)
	}
	return nil
}

func NewSettingsFile(config detection.MonitorConfig) *SettingsFile {
	threshold := config.ThresholdPercent
	hysteresis := config.HysteresisStepPercent
	repeat := config.RepeatCrashAlerts

	return &SettingsFile{
		ProcessName:           config.ProcessName,
		ThresholdPercent:      &threshold,
		Recipients:            append([]string(nil), config.Recipients...),
		PollInterval:          config.PollInterval.String(),
		HysteresisStepPercent: &hysteresis,
		TotalMemoryMb:         config.TotalMemoryMb,
		RepeatCrashAlerts:     &repeat,
	}
}

// ApplyTo overlays the set fields on config. Out-of-range values and malformed
// recipients keep the value already in config and are reported as warnings, one
// audit sentence each. Only a config that is still invalid afterwards is an error.
func (sf *SettingsFile) ApplyTo(config detection.MonitorConfig) (detection.MonitorConfig, []string, error) {
	config = config.Clone()
	var warnings []string

	if sf.ProcessName != "" {
		config.ProcessName = sf.ProcessName
	}
	if sf.ThresholdPercent != nil {
		threshold := *sf.ThresholdPercent
		if threshold < minThresholdPercent || threshold > maxThresholdPercent {
			warnings = append(warnings, fmt.Sprintf("Invalid threshold '%s'; using %s%%.",
				formatThreshold(threshold), formatThreshold(config.ThresholdPercent)))
		} else {
			config.ThresholdPercent = threshold
		}
	}
	if sf.Recipients != nil {
		recipients, rejected := ParseRecipients(joinRecipients(sf.Recipients))
		for _, address := range rejected {
			warnings = append(warnings, fmt.Sprintf("Ignoring invalid email address '%s'.", address))
		}
		config.Recipients = recipients
	}
	if sf.PollInterval != "" {
		pollInterval, err := time.ParseDuration(sf.PollInterval)
		if err != nil || pollInterval <= 0 {
			warnings = append(warnings, fmt.Sprintf("Invalid poll interval '%s'; using %s.",
				sf.PollInterval, config.PollInterval))
		} else {
			config.PollInterval = pollInterval
		}
	}
	if sf.HysteresisStepPercent != nil {
		if step := *sf.HysteresisStepPercent; step < 0 {
			warnings = append(warnings, fmt.Sprintf("Invalid hysteresis step '%s'; using %s%%.",
				formatThreshold(step), formatThreshold(config.HysteresisStepPercent)))
		} else {
			config.HysteresisStepPercent = step
		}
	}
	if sf.TotalMemoryMb < 0 {
		warnings = append(warnings, fmt.Sprintf("Invalid total memory '%s'; using %s MB.",
			formatThreshold(sf.TotalMemoryMb), formatThreshold(config.TotalMemoryMb)))
	} else if sf.TotalMemoryMb != 0 {
		config.TotalMemoryMb = sf.TotalMemoryMb
	}
	if sf.RepeatCrashAlerts != nil {
		config.RepeatCrashAlerts = *sf.RepeatCrashAlerts
	}

	if valid, err := config.Valid(); !valid {
		return config, warnings, errors.WithMessage(err, "validate settings")
	}
	return config, warnings, nil
}
