package control

import (
	"context"
	"strconv"
	"strings"

	"github.com/memlab/memwatch/internal/detection"
	"github.com/memlab/memwatch/internal/reports/postdetection"
	"github.com/pkg/errors"
)

const (
	minThresholdPercent = 0
	maxThresholdPercent = 100
)

type ProcessInspector interface {
	Inspect(ctx context.Context, processName string) (*postdetection.MetadataReport, error)
}

type PlaneConfig struct {
	MonitorConfig detection.MonitorConfig

	// SettingsPath is where changed settings are persisted. Empty keeps them in
	// memory only.
	SettingsPath string

	// Inspector is optional.
	Inspector ProcessInspector
}

func (pc *PlaneConfig) Valid() (bool, error) {
	if valid, err := pc.MonitorConfig.Valid(); !valid {
		return false, errors.WithMessage(err, "validate monitor config")
	}

	return true, nil
}

// ParseRecipients splits raw on ';' or ','. Entries are trimmed, blanks and
// case-insensitive duplicates are removed and first-seen order is kept. Malformed
// addresses are returned separately.
func ParseRecipients(raw string) (recipients []string, rejected []string) {
	recipients = make([]string, 0)
	seen := make(map[string]bool)

	fields := strings.FieldsFunc(raw, func(r rune) bool {
		return r == ';' || r == ','
	})

	for _, field := range fields {
		address := strings.TrimSpace(field)
		if address == "" {
			continue
		}

		if !validAddress(address) {
			rejected = append(rejected, address)
			continue
		}

		key := strings.ToLower(address)
		if seen[key] {
			continue
		}
		seen[key] = true
		recipients = append(recipients, address)
	}

	return recipients, rejected
}

func validAddress(address string) bool {
	if strings.ContainsAny(address, " \t") || strings.Count(address, "@") != 1 {
		return false
	}

	at := strings.Index(address, "@")
	return at > 0 && at < len(address)-1
}

// ParseThreshold returns fallback together with an error when raw is not a number
// within [0, 100].
func ParseThreshold(raw string, fallback float64) (float64, error) {
	raw = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(raw), "%"))

	threshold, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fallback, errors.Errorf("invalid threshold '%s'", raw)
	}
	if threshold < minThresholdPercent || threshold > maxThresholdPercent {
		return fallback, errors.Errorf("threshold '%s' out of range [%d, %d]", raw, minThresholdPercent,
			maxThresholdPercent)
	}

	return threshold, nil
}

func formatThreshold(threshold float64) string {
	return strconv.FormatFloat(threshold, 'f', -1, 64)
}
