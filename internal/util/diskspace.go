package util

const gib = 1024 * 1024 * 1024

func newDiskSpaceInfo(avail, total uint64) DiskSpaceInfo {
	availGB := float64(avail) / gib
	totalGB := float64(total) / gib
	return DiskSpaceInfo{
		AvailBytes: avail,
		TotalBytes: total,
		AvailGB:    availGB,
		TotalGB:    totalGB,
		UsedGB:     totalGB - availGB,
	}
}
