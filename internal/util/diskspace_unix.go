//go:build !windows

package util

import (
	"syscall"
)

type DiskSpaceInfo struct {
	AvailBytes uint64
	TotalBytes uint64
	AvailGB    float64
	TotalGB    float64
	UsedGB     float64
}

// GetDiskSpace reports free and total space on the filesystem holding path.
func GetDiskSpace(path string) (DiskSpaceInfo, error) {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(path, &stat); err != nil {
		return DiskSpaceInfo{}, err
	}
	return newDiskSpaceInfo(stat.Bavail*uint64(stat.Bsize), stat.Blocks*uint64(stat.Bsize)), nil
}
