package bootsector

import "fmt"

// Severity grades a validation finding. Only Error findings make a sector
// untrustworthy; warnings are surfaced but never block recovery decisions.
type Severity int

const (
	SeverityWarning Severity = iota
	SeverityError
)

func (s Severity) String() string {
	if s == SeverityError {
		return "error"
	}
	return "warning"
}

// Finding is one validation result. Field names the boot sector field the
// check applies to.
type Finding struct {
	Field    string
	Severity Severity
	Message  string
}

func (f Finding) String() string {
	return fmt.Sprintf("[%s] %s: %s", f.Severity, f.Field, f.Message)
}

var validBytesPerSector = map[uint16]bool{512: true, 1024: true, 2048: true, 4096: true}

// Legacy media descriptor codes: 0xF0 plus the 0xF8..0xFF range.
var validMediaDescriptors = map[uint8]bool{
	0xF0: true, 0xF8: true, 0xF9: true, 0xFA: true, 0xFB: true,
	0xFC: true, 0xFD: true, 0xFE: true, 0xFF: true,
}

// Validate runs the full battery of consistency checks against a decoded
// sector. Checks are independent and never short-circuit, so a badly
// damaged sector reports everything wrong with it at once. diskSize is
// the measured device size in bytes; zero or negative means unknown, and
// the capacity check is skipped.
func Validate(in Info, diskSize int64) []Finding {
	var out []Finding
	add := func(field string, sev Severity, format string, args ...interface{}) {
		out = append(out, Finding{Field: field, Severity: sev, Message: fmt.Sprintf(format, args...)})
	}

	if in.Signature != SignatureMarker {
		add("boot_signature", SeverityError, "signature is 0x%04X, want 0x%04X", in.Signature, uint16(SignatureMarker))
	}

	if !validBytesPerSector[in.BytesPerSector] {
		add("bytes_per_sector", SeverityError, "%d is not one of 512, 1024, 2048, 4096", in.BytesPerSector)
	}

	spc := in.SectorsPerCluster
	if spc == 0 || spc&(spc-1) != 0 {
		add("sectors_per_cluster", SeverityError, "%d is not a power of two", spc)
	} else if int(spc)*int(in.BytesPerSector) > maxClusterBytes {
		add("sectors_per_cluster", SeverityError, "cluster size %d exceeds %d bytes", int(spc)*int(in.BytesPerSector), maxClusterBytes)
	}

	if in.ReservedSectors < 1 {
		add("reserved_sectors", SeverityError, "reserved sector count is zero; the boot sector itself must be reserved")
	}

	if in.NumFATs != 1 && in.NumFATs != 2 {
		add("num_fats", SeverityWarning, "%d FATs is unusual, expected 1 or 2", in.NumFATs)
	}

	if !validMediaDescriptors[in.Media] {
		add("media_descriptor", SeverityWarning, "0x%02X is not a known media code", in.Media)
	}

	switch {
	case in.TotalSectors16 == 0 && in.TotalSectors32 == 0:
		add("total_sectors", SeverityError, "both the 16-bit and 32-bit sector counts are zero")
	case in.TotalSectors16 != 0 && in.TotalSectors32 != 0 && uint32(in.TotalSectors16) != in.TotalSectors32:
		add("total_sectors", SeverityError, "16-bit count %d contradicts 32-bit count %d", in.TotalSectors16, in.TotalSectors32)
	}

	if diskSize > 0 && in.TotalSectors() > 0 {
		volume := int64(in.TotalSectors()) * int64(in.BytesPerSector)
		tolerance := int64(in.SectorsPerCluster) * int64(in.BytesPerSector)
		if tolerance == 0 {
			tolerance = SectorSize
		}
		if volume > diskSize+tolerance {
			add("total_sectors", SeverityError, "volume claims %d bytes but the device holds only %d", volume, diskSize)
		} else if volume*2 < diskSize {
			add("total_sectors", SeverityWarning, "volume uses %d of %d device bytes; size may be stale", volume, diskSize)
		}
	}

	if in.Type == FAT32 {
		if in.RootEntries != 0 {
			add("root_entry_count", SeverityError, "FAT32 volumes must have zero root entries, got %d", in.RootEntries)
		}
		if in.SectorsPerFAT32 == 0 {
			add("fat_size_32", SeverityError, "FAT32 volume with zero sectors per FAT")
		}
	} else {
		if in.RootEntries == 0 {
			add("root_entry_count", SeverityError, "%s volumes need a fixed root directory, got zero entries", in.Type)
		} else if epb := in.BytesPerSector / 32; epb > 0 && in.RootEntries%epb != 0 {
			add("root_entry_count", SeverityError, "%d is not a multiple of %d entries per sector", in.RootEntries, epb)
		}
	}

	return out
}

// IsValid reports whether a finding list contains no errors. Warnings do
// not count against validity.
func IsValid(findings []Finding) bool {
	for _, f := range findings {
		if f.Severity == SeverityError {
			return false
		}
	}
	return true
}
