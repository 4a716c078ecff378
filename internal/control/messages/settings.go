package messages

// SettingsUpdate carries the operator's raw input. Recipients are ';' or ','
// delimited and the threshold is parsed leniently, falling back to the current
// value when invalid.
type SettingsUpdate struct {
	Recipients       *string `json:"recipients"`
	ThresholdPercent *string `json:"threshold_percent"`
}
