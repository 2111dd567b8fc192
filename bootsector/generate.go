package bootsector

import "errors"

// ErrUnsolvable is returned when no internally consistent geometry exists
// for the requested disk size: every cluster-size tier either failed to
// reach a FAT-size fixed point or produced a sector that still validates
// with errors.
var ErrUnsolvable = errors.New("no consistent boot sector geometry found for this disk size")

// Defaults used when a damaged field cannot be salvaged. The fixed-disk
// media code is assumed; recovery targets are overwhelmingly hard disks
// and flash media, not floppies.
const (
	defaultBytesPerSector = 512
	defaultReserved       = 1
	defaultReservedFAT32  = 32
	defaultNumFATs        = 2
	defaultRootEntries    = 512
	defaultMedia          = 0xF8
	defaultVolumeID       = 0x12345678
	defaultLabel          = "NO NAME    "
	defaultOEM            = "FATFIX  "

	// Fallback volume size when neither the device nor the damaged sector
	// can tell us anything: 20 MiB of 512-byte sectors.
	defaultTotalSectors = 40960

	// Rounds the FAT-size solver may take before a tier is abandoned.
	maxSolveRounds = 8
)

// sizeTier maps a maximum disk size to the cluster size a formatter would
// pick for it, mirroring the standard formatting heuristic: clusters get
// coarser as disks grow, keeping the cluster count inside the range the
// FAT variant can address.
type sizeTier struct {
	maxBytes          int64
	fatType           Type
	sectorsPerCluster uint8
}

var sizeTiers = []sizeTier{
	{2 << 20, FAT12, 1},
	{8 << 20, FAT12, 4},
	{16 << 20, FAT16, 1},
	{128 << 20, FAT16, 4},
	{256 << 20, FAT16, 8},
	{512 << 20, FAT16, 16},
	{1 << 30, FAT16, 32},
	{2 << 30, FAT16, 64},
	{8 << 30, FAT32, 8},
	{16 << 30, FAT32, 16},
	{32 << 30, FAT32, 32},
	{1 << 62, FAT32, 64},
}

// Synthesize builds a replacement boot sector for a damaged one. Fields
// whose individual validation checks pass are salvaged from the damaged
// sector; everything else is recomputed from the disk size. The result is
// guaranteed to validate with zero errors, or ErrUnsolvable is returned
// instead of an inconsistent sector.
func Synthesize(damaged Info, diskSize int64) (Info, error) {
	bps := uint16(defaultBytesPerSector)
	if validBytesPerSector[damaged.BytesPerSector] {
		bps = damaged.BytesPerSector
	}

	if diskSize <= 0 {
		// No measured size: trust the damaged sector's count if it has
		// one, otherwise fall back to the historical 20 MiB assumption.
		if t := damaged.TotalSectors(); t != 0 {
			diskSize = int64(t) * int64(bps)
		} else {
			diskSize = defaultTotalSectors * defaultBytesPerSector
		}
	}
	sectors := diskSize / int64(bps)
	if sectors > 0xFFFFFFFF {
		// The 32-bit sector count caps addressable volumes; larger devices
		// get a volume covering the first 2 TiB worth of sectors.
		sectors = 0xFFFFFFFF
	}
	totalSectors := uint32(sectors)

	for _, cand := range candidateTiers(damaged, bps, totalSectors, diskSize) {
		out, ok := buildCandidate(damaged, bps, totalSectors, cand)
		if !ok {
			continue
		}
		if IsValid(Validate(out, diskSize)) {
			return out, nil
		}
	}
	return Info{}, ErrUnsolvable
}

// candidateTiers orders the geometries to try. A salvageable cluster size
// from the damaged sector is attempted first, with the FAT type its
// cluster projection implies; after that the standard tiers from the
// smallest one covering the disk upward, so failed tiers fall through to
// coarser clusters.
func candidateTiers(damaged Info, bps uint16, totalSectors uint32, diskSize int64) []sizeTier {
	var cands []sizeTier
	spc := damaged.SectorsPerCluster
	if spc != 0 && spc&(spc-1) == 0 && int(spc)*int(bps) <= maxClusterBytes {
		projected := totalSectors / uint32(spc)
		t := FAT12
		switch {
		case projected >= fat16MaxClusters:
			t = FAT32
		case projected >= fat12MaxClusters:
			t = FAT16
		}
		cands = append(cands, sizeTier{fatType: t, sectorsPerCluster: spc})
	}
	for i, tier := range sizeTiers {
		if tier.maxBytes >= diskSize || i == len(sizeTiers)-1 {
			for _, t := range sizeTiers[i:] {
				t.sectorsPerCluster = tierClusterSize(t.sectorsPerCluster, bps)
				cands = append(cands, t)
			}
			break
		}
	}
	return cands
}

// tierClusterSize converts a tier's sectors-per-cluster, which the table
// states in 512-byte sectors, to the candidate's sector size. Halving the
// sector count per doubling keeps the cluster byte size, and with it the
// cluster count the tier was chosen for, the same.
func tierClusterSize(spc uint8, bps uint16) uint8 {
	for scale := bps / defaultBytesPerSector; scale > 1 && spc > 1; scale /= 2 {
		spc /= 2
	}
	return spc
}

// buildCandidate assembles a full Info for one tier, salvaging whatever
// individually valid fields the damaged sector still has, and solves for
// the FAT size. ok is false when the solver finds no fixed point or the
// cluster count lands outside the tier's FAT type.
func buildCandidate(damaged Info, bps uint16, totalSectors uint32, tier sizeTier) (Info, bool) {
	out := Info{
		OEMName:           salvageText(damaged.OEMName, defaultOEM),
		BytesPerSector:    bps,
		SectorsPerCluster: tier.sectorsPerCluster,
		NumFATs:           defaultNumFATs,
		Media:             defaultMedia,
		SectorsPerTrack:   damaged.SectorsPerTrack,
		NumHeads:          damaged.NumHeads,
		HiddenSectors:     damaged.HiddenSectors,
		BootSignatureExt:  0x29,
		VolumeID:          damaged.VolumeID,
		VolumeLabel:       salvageText(damaged.VolumeLabel, defaultLabel),
		Signature:         SignatureMarker,
		Type:              tier.fatType,
	}
	if damaged.NumFATs == 1 || damaged.NumFATs == 2 {
		out.NumFATs = damaged.NumFATs
	}
	if validMediaDescriptors[damaged.Media] {
		out.Media = damaged.Media
	}
	if out.SectorsPerTrack == 0 {
		out.SectorsPerTrack = 63
	}
	if out.NumHeads == 0 {
		out.NumHeads = 255
	}
	if out.VolumeID == 0 {
		out.VolumeID = defaultVolumeID
	}

	if tier.fatType == FAT32 {
		out.ReservedSectors = defaultReservedFAT32
		if damaged.ReservedSectors >= defaultReservedFAT32 {
			out.ReservedSectors = damaged.ReservedSectors
		}
		out.RootEntries = 0
		out.RootCluster = 2
		out.FSInfoSector = 1
		out.BackupBootSector = 6
	} else {
		out.ReservedSectors = defaultReserved
		if damaged.ReservedSectors >= 1 {
			out.ReservedSectors = damaged.ReservedSectors
		}
		out.RootEntries = defaultRootEntries
		epb := bps / 32
		if damaged.RootEntries != 0 && epb > 0 && damaged.RootEntries%epb == 0 {
			out.RootEntries = damaged.RootEntries
		}
	}

	if totalSectors > 0xFFFF || tier.fatType == FAT32 {
		out.TotalSectors32 = totalSectors
	} else {
		out.TotalSectors16 = uint16(totalSectors)
	}

	fatSize, ok := solveFATSize(tier.fatType, out, totalSectors)
	if !ok {
		return Info{}, false
	}
	if tier.fatType == FAT32 {
		out.SectorsPerFAT32 = fatSize
	} else {
		out.SectorsPerFAT16 = uint16(fatSize)
	}
	return out, true
}

// solveFATSize iterates the mutual dependency between FAT size and
// cluster count to a fixed point: a larger FAT leaves fewer data sectors,
// which needs a smaller FAT. Converges in two or three rounds for sane
// geometry; a tier that cannot stabilize within maxSolveRounds, or whose
// stable cluster count falls outside the FAT type's range, is rejected.
func solveFATSize(t Type, in Info, totalSectors uint32) (uint32, bool) {
	overheadBase := uint32(in.ReservedSectors) + in.RootDirSectors()
	fatSize := uint32(1)
	for round := 0; round < maxSolveRounds; round++ {
		overhead := overheadBase + uint32(in.NumFATs)*fatSize
		if totalSectors <= overhead {
			return 0, false
		}
		clusters := (totalSectors - overhead) / uint32(in.SectorsPerCluster)
		need := fatSectorsFor(t, clusters, uint32(in.BytesPerSector))
		if need == fatSize {
			return fatSize, clusterCountFits(t, clusters)
		}
		fatSize = need
	}
	return 0, false
}

// fatSectorsFor sizes one FAT for the given cluster count: entries are
// the clusters plus the two reserved head entries, at 1.5, 2 or 4 bytes
// each depending on the variant.
func fatSectorsFor(t Type, clusters, bps uint32) uint32 {
	entries := clusters + 2
	var bytes uint32
	switch t {
	case FAT12:
		bytes = (entries*3 + 1) / 2
	case FAT16:
		bytes = entries * 2
	default:
		bytes = entries * 4
	}
	n := (bytes + bps - 1) / bps
	if n == 0 {
		n = 1
	}
	return n
}

func clusterCountFits(t Type, clusters uint32) bool {
	switch t {
	case FAT12:
		return clusters > 0 && clusters < fat12MaxClusters
	case FAT16:
		return clusters >= fat12MaxClusters && clusters < fat16MaxClusters
	default:
		return clusters >= fat16MaxClusters
	}
}

// salvageText keeps an on-disk text field only when it is entirely
// printable ASCII and not blank.
func salvageText(s, fallback string) string {
	blank := true
	for i := 0; i < len(s); i++ {
		if s[i] < 0x20 || s[i] > 0x7E {
			return fallback
		}
		if s[i] != ' ' {
			blank = false
		}
	}
	if blank || s == "" {
		return fallback
	}
	return s
}
