package bootsector

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func findingFields(findings []Finding, sev Severity) []string {
	var out []string
	for _, f := range findings {
		if f.Severity == sev {
			out = append(out, f.Field)
		}
	}
	return out
}

func TestValidateAllZero(t *testing.T) {
	in, err := Decode(make([]byte, SectorSize))
	require.NoError(t, err)

	findings := Validate(in, 0)
	assert.False(t, IsValid(findings))

	errs := findingFields(findings, SeverityError)
	assert.Contains(t, errs, "boot_signature")
	assert.Contains(t, errs, "bytes_per_sector")
	assert.Contains(t, errs, "sectors_per_cluster")
	assert.Contains(t, errs, "reserved_sectors")
	assert.Contains(t, errs, "total_sectors")
	assert.Contains(t, errs, "root_entry_count")

	warns := findingFields(findings, SeverityWarning)
	assert.Contains(t, warns, "num_fats")
	assert.Contains(t, warns, "media_descriptor")
}

func TestValidateSignatureAlwaysChecked(t *testing.T) {
	in := withClusters(1000)
	in.Media = 0xF8
	in.Signature = 0x1234
	findings := Validate(in, 0)
	assert.Equal(t, []string{"boot_signature"}, findingFields(findings, SeverityError))

	in.Signature = SignatureMarker
	assert.True(t, IsValid(Validate(in, 0)))
}

func TestValidateClusterSize(t *testing.T) {
	in := withClusters(1000)
	in.Media = 0xF8
	in.Signature = SignatureMarker

	in.SectorsPerCluster = 3
	assert.Contains(t, findingFields(Validate(in, 0), SeverityError), "sectors_per_cluster")

	// 128 * 512 = 64K exceeds the 32K cluster ceiling.
	in.SectorsPerCluster = 128
	assert.Contains(t, findingFields(Validate(in, 0), SeverityError), "sectors_per_cluster")

	in.SectorsPerCluster = 64
	assert.NotContains(t, findingFields(Validate(in, 0), SeverityError), "sectors_per_cluster")
}

func TestValidateTotalSectors(t *testing.T) {
	in := withClusters(1000)
	in.Media = 0xF8
	in.Signature = SignatureMarker

	in.TotalSectors16 = 0
	in.TotalSectors32 = 0
	assert.Contains(t, findingFields(Validate(in, 0), SeverityError), "total_sectors")

	in.TotalSectors16 = 1053
	in.TotalSectors32 = 2000
	assert.Contains(t, findingFields(Validate(in, 0), SeverityError), "total_sectors")

	// Redundant but agreeing counts are fine.
	in.TotalSectors32 = 1053
	assert.True(t, IsValid(Validate(in, 0)))
}

func TestValidateAgainstDiskSize(t *testing.T) {
	in := withClusters(1000)
	in.Media = 0xF8
	in.Signature = SignatureMarker
	volume := int64(in.TotalSectors()) * 512

	// Volume exceeding the device by more than one cluster is an error.
	findings := Validate(in, volume-4096)
	assert.Contains(t, findingFields(findings, SeverityError), "total_sectors")

	// Within the one-cluster tolerance.
	assert.True(t, IsValid(Validate(in, volume-256)))

	// Volume under half the device is only suspicious, not fatal.
	findings = Validate(in, volume*3)
	assert.True(t, IsValid(findings))
	assert.Contains(t, findingFields(findings, SeverityWarning), "total_sectors")

	// Unknown device size skips the capacity check entirely.
	assert.True(t, IsValid(Validate(in, 0)))
}

func TestValidateRootEntries(t *testing.T) {
	in := withClusters(1000)
	in.Media = 0xF8
	in.Signature = SignatureMarker

	in.RootEntries = 0
	assert.Contains(t, findingFields(Validate(in, 0), SeverityError), "root_entry_count")

	// 512 bytes per sector holds 16 entries; 100 does not divide evenly.
	in.RootEntries = 100
	assert.Contains(t, findingFields(Validate(in, 0), SeverityError), "root_entry_count")

	in.RootEntries = 224
	assert.NotContains(t, findingFields(Validate(in, 0), SeverityError), "root_entry_count")
}

func TestValidateFAT32Rules(t *testing.T) {
	in, err := Decode(rawFAT32(t))
	require.NoError(t, err)

	in.RootEntries = 512
	assert.Contains(t, findingFields(Validate(in, 0), SeverityError), "root_entry_count")

	in.RootEntries = 0
	in.SectorsPerFAT32 = 0
	assert.Contains(t, findingFields(Validate(in, 0), SeverityError), "fat_size_32")
}

func TestValidateWarningsDoNotBlock(t *testing.T) {
	in := withClusters(1000)
	in.Signature = SignatureMarker
	in.NumFATs = 3
	in.Media = 0x00

	findings := Validate(in, 0)
	assert.True(t, IsValid(findings))
	warns := findingFields(findings, SeverityWarning)
	assert.Contains(t, warns, "num_fats")
	assert.Contains(t, warns, "media_descriptor")
}
