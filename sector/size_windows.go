//go:build windows

package sector

import "os"

// deviceSizeIoctl is not implemented on Windows; regular files fall
// through to the seek strategy and raw devices to read probing.
func deviceSizeIoctl(_ *os.File) (int64, error) {
	return 0, os.ErrInvalid
}
