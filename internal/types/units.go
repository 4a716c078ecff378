package types

const bytesPerMegabyte = 1024.0 * 1024.0

func MegabytesFromBytes(bytes uint64) float64 {
	return float64(bytes) / bytesPerMegabyte
}

// UsagePercent is virtual memory relative to the configured total, in percent.
func UsagePercent(virtualMb, totalMemoryMb float64) float64 {
	if totalMemoryMb <= 0 {
		return 0
	}
	return virtualMb / totalMemoryMb * 100
}
