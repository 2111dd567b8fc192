package bootsector

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSynthesizeAcrossSizes(t *testing.T) {
	sizes := []int64{
		1 << 20,
		1474560,
		8 << 20,
		8000000,
		64 << 20,
		256 << 20,
		1 << 30,
		2 << 30,
		4 << 30,
		32 << 30,
		64 << 30,
	}
	for _, size := range sizes {
		out, err := Synthesize(Info{}, size)
		require.NoError(t, err, "size %d", size)

		findings := Validate(out, size)
		assert.True(t, IsValid(findings), "size %d: %v", size, findings)

		volume := int64(out.TotalSectors()) * int64(out.BytesPerSector)
		assert.LessOrEqual(t, volume, size, "size %d", size)
		assert.Positive(t, out.ClusterCount(), "size %d", size)
		assert.Equal(t, out.Type, Classify(out), "size %d", size)
	}
}

func TestSynthesizeFloppySizedImage(t *testing.T) {
	out, err := Synthesize(Info{}, 8000000)
	require.NoError(t, err)
	assert.Equal(t, FAT12, out.Type)
	assert.Equal(t, uint32(15625), out.TotalSectors())
	assert.Equal(t, uint8(4), out.SectorsPerCluster)
}

func TestSynthesizeSalvagesValidFields(t *testing.T) {
	damaged := Info{
		OEMName:           "OLDBOX  ",
		BytesPerSector:    1024,
		SectorsPerCluster: 3,
		ReservedSectors:   0,
		NumFATs:           1,
		Media:             0xF0,
		SectorsPerTrack:   32,
		NumHeads:          16,
		VolumeID:          0xDEAD0001,
		VolumeLabel:       "HOLIDAY2019",
	}
	out, err := Synthesize(damaged, 64<<20)
	require.NoError(t, err)

	assert.Equal(t, uint16(1024), out.BytesPerSector)
	assert.Equal(t, uint8(1), out.NumFATs)
	assert.Equal(t, uint8(0xF0), out.Media)
	assert.Equal(t, uint16(32), out.SectorsPerTrack)
	assert.Equal(t, uint16(16), out.NumHeads)
	assert.Equal(t, uint32(0xDEAD0001), out.VolumeID)
	assert.Equal(t, "HOLIDAY2019", out.VolumeLabel)
	assert.Equal(t, "OLDBOX  ", out.OEMName)

	// 3 is not a power of two and 0 reserved sectors is illegal, so both
	// come from the recomputed geometry instead.
	assert.NotEqual(t, uint8(3), out.SectorsPerCluster)
	assert.GreaterOrEqual(t, out.ReservedSectors, uint16(1))
	assert.True(t, IsValid(Validate(out, 64<<20)))
}

func TestSynthesizeKeepsUsableClusterSize(t *testing.T) {
	damaged := Info{SectorsPerCluster: 8}
	out, err := Synthesize(damaged, 256<<20)
	require.NoError(t, err)
	assert.Equal(t, uint8(8), out.SectorsPerCluster)
}

func TestSynthesizeUnknownDiskSize(t *testing.T) {
	// No device size and nothing salvageable: the 20 MiB fallback applies.
	out, err := Synthesize(Info{}, 0)
	require.NoError(t, err)
	assert.Equal(t, uint32(40960), out.TotalSectors())
	assert.Equal(t, FAT16, out.Type)

	// A surviving sector count in the damaged sector wins over the
	// fallback.
	out, err = Synthesize(Info{TotalSectors16: 2880}, 0)
	require.NoError(t, err)
	assert.Equal(t, uint32(2880), out.TotalSectors())
	assert.Equal(t, FAT12, out.Type)
}

func TestSynthesizeLargeSectorGeometry(t *testing.T) {
	// A surviving 2048 or 4096 bytes-per-sector must not push the tier
	// table's cluster sizes past the 32 KiB cap.
	for _, bps := range []uint16{1024, 2048, 4096} {
		for _, size := range []int64{64 << 20, 2 << 30, 32 << 30} {
			out, err := Synthesize(Info{BytesPerSector: bps}, size)
			require.NoError(t, err, "bps %d size %d", bps, size)

			assert.Equal(t, bps, out.BytesPerSector)
			assert.LessOrEqual(t, int(out.SectorsPerCluster)*int(bps), maxClusterBytes)
			findings := Validate(out, size)
			assert.True(t, IsValid(findings), "bps %d size %d: %v", bps, size, findings)
		}
	}
}

func TestSynthesizeRejectsTinyDevices(t *testing.T) {
	_, err := Synthesize(Info{}, 4096)
	require.ErrorIs(t, err, ErrUnsolvable)
}

func TestSynthesizeDefaultsText(t *testing.T) {
	damaged := Info{
		OEMName:     string([]byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08}),
		VolumeLabel: "           ",
	}
	out, err := Synthesize(damaged, 64<<20)
	require.NoError(t, err)
	assert.Equal(t, defaultOEM, out.OEMName)
	assert.Equal(t, defaultLabel, out.VolumeLabel)
	assert.Equal(t, uint32(defaultVolumeID), out.VolumeID)
}

func TestSynthesizedSectorRoundTrips(t *testing.T) {
	for _, size := range []int64{8 << 20, 256 << 20, 4 << 30} {
		in, err := Synthesize(Info{}, size)
		require.NoError(t, err)

		out, err := Decode(Encode(in))
		require.NoError(t, err, "size %d", size)
		assert.Equal(t, in, out, "size %d", size)
	}
}

func TestSynthesizeFAT32Shape(t *testing.T) {
	out, err := Synthesize(Info{}, 4<<30)
	require.NoError(t, err)
	assert.Equal(t, FAT32, out.Type)
	assert.Equal(t, uint16(0), out.RootEntries)
	assert.GreaterOrEqual(t, out.ReservedSectors, uint16(32))
	assert.Equal(t, uint32(2), out.RootCluster)
	assert.Equal(t, uint16(1), out.FSInfoSector)
	assert.Equal(t, uint16(6), out.BackupBootSector)
	assert.Equal(t, uint16(0), out.SectorsPerFAT16)
	assert.Positive(t, out.SectorsPerFAT32)
}
