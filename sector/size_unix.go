//go:build !windows

package sector

import (
	"os"
	"unsafe"

	"golang.org/x/sys/unix"
)

// ioctl request numbers for block device sizing. Linux reports the byte
// size directly; macOS/BSD report block size and block count separately.
const (
	blkGetSize64       = 0x80081272 // Linux BLKGETSIZE64
	dkiocGetBlockSize  = 0x40046418 // Darwin DKIOCGETBLOCKSIZE
	dkiocGetBlockCount = 0x40086419 // Darwin DKIOCGETBLOCKCOUNT
)

// deviceSizeIoctl queries the kernel for the size of a block device.
// Regular files fail here and fall through to the seek strategy.
func deviceSizeIoctl(f *os.File) (int64, error) {
	var size uint64
	if _, _, errno := unix.Syscall(unix.SYS_IOCTL, f.Fd(), blkGetSize64, uintptr(unsafe.Pointer(&size))); errno == 0 && size > 0 {
		return int64(size), nil
	}

	var blockSize uint32
	if _, _, errno := unix.Syscall(unix.SYS_IOCTL, f.Fd(), dkiocGetBlockSize, uintptr(unsafe.Pointer(&blockSize))); errno != 0 {
		return 0, errno
	}
	var blockCount uint64
	if _, _, errno := unix.Syscall(unix.SYS_IOCTL, f.Fd(), dkiocGetBlockCount, uintptr(unsafe.Pointer(&blockCount))); errno != 0 {
		return 0, errno
	}
	return int64(blockSize) * int64(blockCount), nil
}
