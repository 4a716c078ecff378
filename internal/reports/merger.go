package reports

import (
	"encoding/json"

	"github.com/pkg/errors"
)

// MergeReports folds the reports' top-level JSON keys into one object. Later reports
// win on key collisions; nil reports are skipped.
func MergeReports(reports ...Report) (map[string]interface{}, error) {
	merged := make(map[string]interface{})

	for _, report := range reports {
		if report == nil {
			continue
		}

		reportName := report.ReportName()
		reportDump, err := report.DumpReport()
		if err != nil {
			return nil, errors.WithMessagef(err, "dump report '%s'", reportName)
		}

		if err := json.Unmarshal(reportDump, &merged); err != nil {
			return nil, errors.WithMessagef(err, "merge with report '%s'", reportName)
		}
	}

	return merged, nil
}
