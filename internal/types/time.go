package types

import "time"

const AuditTimeLayout = "2006-01-02 15:04:05"

func TimeFromTimestamp(timestamp int64) time.Time {
	return time.Unix(timestamp, 0).UTC()
}

func TimeFromMilliseconds(milliseconds int64) time.Time {
	return time.Unix(0, milliseconds*int64(time.Millisecond)).UTC()
}

// FormatAuditTime renders t the way audit records prefix their lines.
func FormatAuditTime(t time.Time) string {
	return "[" + t.Format(AuditTimeLayout) + "]"
}
