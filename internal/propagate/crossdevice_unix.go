//go:build !windows

package propagate

import (
	"errors"
	"syscall"
)

// isCrossDeviceErr reports whether err is the EXDEV rename failure that
// happens when the source and destination straddle different mounts.
func isCrossDeviceErr(err error) bool {
	return errors.Is(err, syscall.EXDEV)
}
