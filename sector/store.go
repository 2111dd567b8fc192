// Package sector provides raw sector-addressed access to disk images and
// block devices. The Store interface is the only capability the recovery
// core depends on; FileStore implements it for anything that looks like a
// file, which on every supported OS includes the device nodes themselves.
package sector

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/afero"
)

// DefaultSectorSize is the logical sector size assumed for all stores.
const DefaultSectorSize = 512

// Store is sector-addressed read/write access to a volume.
type Store interface {
	// ReadSectors returns exactly count sectors starting at index.
	ReadSectors(index, count int64) ([]byte, error)
	// WriteSectors writes data at index. The data length must be a
	// positive multiple of the sector size, and the write reaches the
	// physical medium before WriteSectors returns.
	WriteSectors(index int64, data []byte) error
	// Size is the device size in bytes, best effort; 0 means unknown.
	Size() int64
	// SectorSize is the sector size used for addressing.
	SectorSize() int
	Close() error
}

// DeviceError wraps any I/O failure at the store boundary.
type DeviceError struct {
	Op     string
	Sector int64
	Err    error
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("device %s at sector %d: %v", e.Op, e.Sector, e.Err)
}

func (e *DeviceError) Unwrap() error { return e.Err }

// FileStore is a Store over an afero.File. *os.File satisfies afero.File,
// so the same implementation backs plain images, in-memory test fixtures
// and raw block devices.
type FileStore struct {
	f          afero.File
	sectorSize int
	size       int64
}

// OpenImage opens a disk image for read/write access on the given
// filesystem.
func OpenImage(fsys afero.Fs, path string) (*FileStore, error) {
	f, err := fsys.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, &DeviceError{Op: "open", Err: err}
	}
	return NewFileStore(f), nil
}

// OpenDevice opens a raw block device for read/write access.
func OpenDevice(path string) (*FileStore, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, &DeviceError{Op: "open", Err: err}
	}
	return NewFileStore(f), nil
}

// OpenReadOnly opens an image or device without write access; WriteSectors
// on the resulting store fails at the OS boundary.
func OpenReadOnly(path string) (*FileStore, error) {
	f, err := os.OpenFile(path, os.O_RDONLY, 0)
	if err != nil {
		return nil, &DeviceError{Op: "open", Err: err}
	}
	return NewFileStore(f), nil
}

// NewFileStore wraps an already opened file. The device size is probed
// once, up front.
func NewFileStore(f afero.File) *FileStore {
	return &FileStore{f: f, sectorSize: DefaultSectorSize, size: DetectSize(f)}
}

func (s *FileStore) SectorSize() int { return s.sectorSize }

func (s *FileStore) Size() int64 { return s.size }

func (s *FileStore) Name() string { return s.f.Name() }

func (s *FileStore) ReadSectors(index, count int64) ([]byte, error) {
	if index < 0 || count <= 0 {
		return nil, &DeviceError{Op: "read", Sector: index, Err: fmt.Errorf("invalid range (%d sectors at %d)", count, index)}
	}
	buf := make([]byte, count*int64(s.sectorSize))
	if _, err := s.f.ReadAt(buf, index*int64(s.sectorSize)); err != nil {
		return nil, &DeviceError{Op: "read", Sector: index, Err: err}
	}
	return buf, nil
}

func (s *FileStore) WriteSectors(index int64, data []byte) error {
	if index < 0 {
		return &DeviceError{Op: "write", Sector: index, Err: fmt.Errorf("negative sector index")}
	}
	if len(data) == 0 || len(data)%s.sectorSize != 0 {
		return &DeviceError{Op: "write", Sector: index, Err: fmt.Errorf("length %d is not a positive multiple of the %d-byte sector size", len(data), s.sectorSize)}
	}
	if _, err := s.f.WriteAt(data, index*int64(s.sectorSize)); err != nil {
		return &DeviceError{Op: "write", Sector: index, Err: err}
	}
	// The caller relies on the data being on the medium, not in a cache.
	if err := s.f.Sync(); err != nil {
		return &DeviceError{Op: "sync", Sector: index, Err: err}
	}
	return nil
}

func (s *FileStore) Close() error { return s.f.Close() }

// DetectSize determines the size of a file or device in bytes through a
// chain of strategies: the platform geometry ioctl for real devices, a
// seek to the end, and finally a binary search over readable sectors.
// Returns 0 when every strategy fails.
func DetectSize(f afero.File) int64 {
	if osf, ok := f.(*os.File); ok {
		if n, err := deviceSizeIoctl(osf); err == nil && n > 0 {
			return n
		}
	}
	if end, err := f.Seek(0, io.SeekEnd); err == nil && end > 0 {
		_, _ = f.Seek(0, io.SeekStart)
		return end
	}
	return probeSize(f)
}

// probeSize binary searches for the last readable sector. Some device
// nodes refuse both geometry queries and seeks but still honor positioned
// reads; this is the fallback of last resort.
func probeSize(f afero.File) int64 {
	const maxProbeSector = int64(1) << 42 // 2 PiB, beyond any real device
	buf := make([]byte, DefaultSectorSize)
	readable := func(sec int64) bool {
		_, err := f.ReadAt(buf, sec*DefaultSectorSize)
		return err == nil
	}
	if !readable(0) {
		return 0
	}
	lo, hi := int64(0), int64(1)
	for hi < maxProbeSector && readable(hi) {
		lo = hi
		hi *= 2
	}
	for lo+1 < hi {
		mid := lo + (hi-lo)/2
		if readable(mid) {
			lo = mid
		} else {
			hi = mid
		}
	}
	return (lo + 1) * DefaultSectorSize
}
