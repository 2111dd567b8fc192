// Package bootsector decodes, validates and synthesizes FAT12/16/32 boot
// sectors. All functions are pure: they operate on byte buffers and Info
// values and never touch a device.
package bootsector

import (
	"encoding/binary"
	"fmt"
)

// Type represents the FAT variant (12, 16, or 32-bit entries).
type Type int

// FAT variants. The value is the entry width in bits.
const (
	FAT12 Type = 12
	FAT16 Type = 16
	FAT32 Type = 32
)

func (t Type) String() string {
	return fmt.Sprintf("FAT%d", int(t))
}

const (
	// SectorSize is the size of a boot sector. FAT volumes may use larger
	// logical sectors, but the boot record itself always fits in the
	// first 512 bytes, signature included.
	SectorSize = 512

	// SignatureMarker is the little-endian value of the 0x55 0xAA marker
	// at offset 510.
	SignatureMarker = 0xAA55

	maxClusterBytes  = 32 * 1024
	fat12MaxClusters = 4085
	fat16MaxClusters = 65525
)

// Info is a decoded boot sector. Values are carried exactly as stored on
// disk; Type is the only derived field and is recomputed from the
// geometry, never trusted from the FS-type text in the sector.
type Info struct {
	OEMName           string
	BytesPerSector    uint16
	SectorsPerCluster uint8
	ReservedSectors   uint16
	NumFATs           uint8
	RootEntries       uint16
	TotalSectors16    uint16
	Media             uint8
	SectorsPerFAT16   uint16
	SectorsPerTrack   uint16
	NumHeads          uint16
	HiddenSectors     uint32
	TotalSectors32    uint32

	// FAT32 extension. Populated only when SectorsPerFAT16 is zero.
	SectorsPerFAT32  uint32
	ExtFlags         uint16
	FSVersion        uint16
	RootCluster      uint32
	FSInfoSector     uint16
	BackupBootSector uint16

	BootSignatureExt uint8
	VolumeID         uint32
	VolumeLabel      string

	Signature uint16

	Type Type
}

// ParseError reports a buffer that is not exactly one boot sector long.
type ParseError struct {
	Size int
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("boot sector must be exactly %d bytes, got %d", SectorSize, e.Size)
}

// Decode extracts a boot sector from a 512-byte buffer. Only structural
// extraction happens here: field values are not range checked, so a
// garbage sector still decodes and can be handed to Validate.
func Decode(buf []byte) (Info, error) {
	if len(buf) != SectorSize {
		return Info{}, &ParseError{Size: len(buf)}
	}

	in := Info{
		OEMName:           string(buf[3:11]),
		BytesPerSector:    binary.LittleEndian.Uint16(buf[11:13]),
		SectorsPerCluster: buf[13],
		ReservedSectors:   binary.LittleEndian.Uint16(buf[14:16]),
		NumFATs:           buf[16],
		RootEntries:       binary.LittleEndian.Uint16(buf[17:19]),
		TotalSectors16:    binary.LittleEndian.Uint16(buf[19:21]),
		Media:             buf[21],
		SectorsPerFAT16:   binary.LittleEndian.Uint16(buf[22:24]),
		SectorsPerTrack:   binary.LittleEndian.Uint16(buf[24:26]),
		NumHeads:          binary.LittleEndian.Uint16(buf[26:28]),
		HiddenSectors:     binary.LittleEndian.Uint32(buf[28:32]),
		TotalSectors32:    binary.LittleEndian.Uint32(buf[32:36]),
		Signature:         binary.LittleEndian.Uint16(buf[510:512]),
	}

	if in.SectorsPerFAT16 == 0 {
		// Extended BPB of a FAT32 layout; the signature block shifts to 64.
		in.SectorsPerFAT32 = binary.LittleEndian.Uint32(buf[36:40])
		in.ExtFlags = binary.LittleEndian.Uint16(buf[40:42])
		in.FSVersion = binary.LittleEndian.Uint16(buf[42:44])
		in.RootCluster = binary.LittleEndian.Uint32(buf[44:48])
		in.FSInfoSector = binary.LittleEndian.Uint16(buf[48:50])
		in.BackupBootSector = binary.LittleEndian.Uint16(buf[50:52])
		in.BootSignatureExt = buf[66]
		in.VolumeID = binary.LittleEndian.Uint32(buf[67:71])
		in.VolumeLabel = string(buf[71:82])
	} else {
		in.BootSignatureExt = buf[38]
		in.VolumeID = binary.LittleEndian.Uint32(buf[39:43])
		in.VolumeLabel = string(buf[43:54])
	}

	in.Type = Classify(in)
	return in, nil
}

// Classify derives the FAT variant from the geometry fields alone:
// below 4085 clusters the volume is FAT12, below 65525 FAT16, otherwise
// FAT32. The FS-type text stored in the sector plays no part in this.
func Classify(in Info) Type {
	c := in.ClusterCount()
	switch {
	case c < fat12MaxClusters:
		return FAT12
	case c < fat16MaxClusters:
		return FAT16
	default:
		return FAT32
	}
}

// FATSize returns the sectors per FAT, preferring the 16-bit field.
func (in Info) FATSize() uint32 {
	if in.SectorsPerFAT16 != 0 {
		return uint32(in.SectorsPerFAT16)
	}
	return in.SectorsPerFAT32
}

// TotalSectors returns the volume size in sectors, preferring the 16-bit
// field when it is nonzero.
func (in Info) TotalSectors() uint32 {
	if in.TotalSectors16 != 0 {
		return uint32(in.TotalSectors16)
	}
	return in.TotalSectors32
}

// RootDirSectors returns the size of the fixed root directory region in
// sectors. Zero for FAT32 layouts and for unusable geometry.
func (in Info) RootDirSectors() uint32 {
	if in.BytesPerSector == 0 {
		return 0
	}
	return (uint32(in.RootEntries)*32 + uint32(in.BytesPerSector) - 1) / uint32(in.BytesPerSector)
}

// ClusterCount returns the number of data clusters. Degenerate geometry
// (zero sector or cluster size, overhead exceeding the volume) counts as
// zero clusters rather than faulting.
func (in Info) ClusterCount() uint32 {
	if in.BytesPerSector == 0 || in.SectorsPerCluster == 0 {
		return 0
	}
	total := in.TotalSectors()
	overhead := uint32(in.ReservedSectors) + uint32(in.NumFATs)*in.FATSize() + in.RootDirSectors()
	if total <= overhead {
		return 0
	}
	return (total - overhead) / uint32(in.SectorsPerCluster)
}

// Layout describes where the on-disk regions of the volume sit, in
// sectors from the start of the volume.
type Layout struct {
	FATSectors      uint32
	RootDirSectors  uint32
	FirstDataSector uint32
	DataSectors     uint32
	ClusterCount    uint32
}

// Layout computes the region breakdown used by the CLI display.
func (in Info) Layout() Layout {
	fat := in.FATSize()
	root := in.RootDirSectors()
	first := uint32(in.ReservedSectors) + uint32(in.NumFATs)*fat + root
	total := in.TotalSectors()
	var data uint32
	if total > first {
		data = total - first
	}
	return Layout{
		FATSectors:      fat,
		RootDirSectors:  root,
		FirstDataSector: first,
		DataSectors:     data,
		ClusterCount:    in.ClusterCount(),
	}
}

// Encode writes the Info back into a fresh 512-byte sector, the inverse of
// Decode. The FAT size is placed into the 16- or 32-bit field according to
// in.Type, and a benign non-system boot stub is included so the sector
// behaves sensibly if the volume is ever booted from.
func Encode(in Info) []byte {
	sec := make([]byte, SectorSize)

	if in.Type == FAT32 {
		sec[0], sec[1], sec[2] = 0xEB, 0x58, 0x90
	} else {
		sec[0], sec[1], sec[2] = 0xEB, 0x3C, 0x90
	}
	copy(sec[3:11], padField(in.OEMName, 8))
	binary.LittleEndian.PutUint16(sec[11:], in.BytesPerSector)
	sec[13] = in.SectorsPerCluster
	binary.LittleEndian.PutUint16(sec[14:], in.ReservedSectors)
	sec[16] = in.NumFATs
	binary.LittleEndian.PutUint16(sec[17:], in.RootEntries)
	binary.LittleEndian.PutUint16(sec[19:], in.TotalSectors16)
	sec[21] = in.Media
	binary.LittleEndian.PutUint16(sec[22:], in.SectorsPerFAT16)
	binary.LittleEndian.PutUint16(sec[24:], in.SectorsPerTrack)
	binary.LittleEndian.PutUint16(sec[26:], in.NumHeads)
	binary.LittleEndian.PutUint32(sec[28:], in.HiddenSectors)
	binary.LittleEndian.PutUint32(sec[32:], in.TotalSectors32)

	var stub, msg int
	if in.Type == FAT32 {
		binary.LittleEndian.PutUint32(sec[36:], in.SectorsPerFAT32)
		binary.LittleEndian.PutUint16(sec[40:], in.ExtFlags)
		binary.LittleEndian.PutUint16(sec[42:], in.FSVersion)
		binary.LittleEndian.PutUint32(sec[44:], in.RootCluster)
		binary.LittleEndian.PutUint16(sec[48:], in.FSInfoSector)
		binary.LittleEndian.PutUint16(sec[50:], in.BackupBootSector)
		sec[64] = 0x80
		sec[66] = in.BootSignatureExt
		binary.LittleEndian.PutUint32(sec[67:], in.VolumeID)
		copy(sec[71:82], padField(in.VolumeLabel, 11))
		copy(sec[82:90], []byte("FAT32   "))
		stub, msg = 90, 163
	} else {
		sec[38] = in.BootSignatureExt
		binary.LittleEndian.PutUint32(sec[39:], in.VolumeID)
		copy(sec[43:54], padField(in.VolumeLabel, 11))
		if in.Type == FAT12 {
			copy(sec[54:62], []byte("FAT12   "))
		} else {
			copy(sec[54:62], []byte("FAT16   "))
		}
		stub, msg = 62, 119
	}

	copy(sec[stub:], bootStub(msg))
	copy(sec[msg:], bootMessage)

	binary.LittleEndian.PutUint16(sec[510:], in.Signature)
	return sec
}

const bootMessage = "This volume is not bootable\r\nInsert a system disk and press any key\r\n\x00"

// bootStub returns a tiny real-mode loop that prints the boot message via
// int 10h teletype output, waits for a key and reboots.
func bootStub(msgOffset int) []byte {
	lo := byte(0x7C00 + msgOffset)
	hi := byte((0x7C00 + msgOffset) >> 8)
	return []byte{
		0x0E,           // push cs
		0x1F,           // pop ds
		0xBE, lo, hi,   // mov si, message
		0xAC,           // lodsb
		0x22, 0xC0,     // and al, al
		0x74, 0x0B,     // jz halt
		0x56,           // push si
		0xB4, 0x0E,     // mov ah, 0x0E
		0xBB, 0x07, 0x00, // mov bx, 0x0007
		0xCD, 0x10,     // int 0x10
		0x5E,           // pop si
		0xEB, 0xF0,     // jmp print loop
		0x32, 0xE4,     // xor ah, ah
		0xCD, 0x16,     // int 0x16
		0xCD, 0x19,     // int 0x19
		0xEB, 0xFE,     // jmp $
	}
}

// padField truncates or space-pads s to exactly n bytes.
func padField(s string, n int) []byte {
	if len(s) > n {
		s = s[:n]
	}
	b := make([]byte, n)
	copy(b, s)
	for i := len(s); i < n; i++ {
		b[i] = ' '
	}
	return b
}
