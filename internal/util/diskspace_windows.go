//go:build windows

package util

import (
	"syscall"
	"unsafe"
)

type DiskSpaceInfo struct {
	AvailBytes uint64
	TotalBytes uint64
	AvailGB    float64
	TotalGB    float64
	UsedGB     float64
}

// GetDiskSpace reports free and total space on the volume holding path.
func GetDiskSpace(path string) (DiskSpaceInfo, error) {
	kernel32 := syscall.NewLazyDLL("kernel32.dll")
	getDiskFreeSpaceEx := kernel32.NewProc("GetDiskFreeSpaceExW")

	var freeBytesAvailable, totalBytes, totalFreeBytes uint64
	pathPtr, err := syscall.UTF16PtrFromString(path)
	if err != nil {
		return DiskSpaceInfo{}, err
	}

	ret, _, err := getDiskFreeSpaceEx.Call(
		uintptr(unsafe.Pointer(pathPtr)),
		uintptr(unsafe.Pointer(&freeBytesAvailable)),
		uintptr(unsafe.Pointer(&totalBytes)),
		uintptr(unsafe.Pointer(&totalFreeBytes)),
	)
	if ret == 0 {
		return DiskSpaceInfo{}, err
	}
	return newDiskSpaceInfo(freeBytesAvailable, totalBytes), nil
}
