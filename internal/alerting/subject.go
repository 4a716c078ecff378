package alerting

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/memlab/memwatch/internal/detection"
	"github.com/pkg/errors"
)

const (
	highMemorySubjectPrefix = "[ALERT] High Memory Usage Alert: "
	crashSubjectPrefix      = "[ALERT] Process Crash: "
)

func highMemorySubject(process string, usagePercent float64) string {
	return fmt.Sprintf("%s%s (%.2f%%)", highMemorySubjectPrefix, process, usagePercent)
}

func crashSubject(process string) string {
	return crashSubjectPrefix + process
}

// ParsedSubject is what can be recovered from a rendered subject line.
type ParsedSubject struct {
	Kind         detection.AlertKind
	Process      string
	UsagePercent float64
}

func ParseSubject(subject string) (*ParsedSubject, error) {
	switch {
	case strings.HasPrefix(subject, crashSubjectPrefix):
		process := strings.TrimPrefix(subject, crashSubjectPrefix)
		if process == "" {
			return nil, errors.Errorf("missing process in subject '%s'", subject)
		}
		return &ParsedSubject{Kind: detection.AlertKindCrash, Process: process}, nil

	case strings.HasPrefix(subject, highMemorySubjectPrefix):
		rest := strings.TrimPrefix(subject, highMemorySubjectPrefix)
		open := strings.LastIndex(rest, " (")
		if open <= 0 || !strings.HasSuffix(rest, "%)") {
			return nil, errors.Errorf("missing usage in subject '%s'", subject)
		}

		usagePercent, err := strconv.ParseFloat(rest[open+2:len(rest)-2], 64)
		if err != nil {
			return nil, errors.WithMessagef(err, "parse usage in subject '%s'", subject)
		}
		return &ParsedSubject{
			Kind:         detection.AlertKindHighMemory,
			Process:      rest[:open],
			UsagePercent: usagePercent,
		}, nil
	}

	return nil, errors.Errorf("unrecognized subject '%s'", subject)
}
