// Package ntfs decodes the raw on-disk NTFS structures this core reads
// directly off the volume: the boot sector, File Record Segment headers,
// the Update Sequence Array fix-up, attribute headers, and mapping-pair
// cluster runs. Every function here is pure — it operates on byte slices
// already in memory and never touches a handle or a device.
package ntfs

import (
	"encoding/binary"
	"fmt"
)

// BootSector is sector 0 of an NTFS volume, decoded.
type BootSector struct {
	BytesPerSector            uint16
	SectorsPerCluster         uint8
	MFTStartLCN               int64
	MFTMirrorStartLCN         int64
	ClustersPerFileRecordSeg  int8
	ClustersPerIndexBuffer    int8
	TotalSectors              int64
}

// ClusterSize is BytesPerSector * SectorsPerCluster.
func (b BootSector) ClusterSize() int {
	return int(b.BytesPerSector) * int(b.SectorsPerCluster)
}

// FileRecordSize derives the FRS size the way the boot sector's signed
// ClustersPerFileRecordSegment byte encodes it: a positive count of whole
// clusters, or 1<<(-n) bytes when negative.
func (b BootSector) FileRecordSize() int {
	return sizeFromSignedByte(b.ClustersPerFileRecordSeg, b.ClusterSize())
}

// IndexBufferSize is the analogous size for $INDEX_ALLOCATION buffers.
func (b BootSector) IndexBufferSize() int {
	return sizeFromSignedByte(b.ClustersPerIndexBuffer, b.ClusterSize())
}

func sizeFromSignedByte(n int8, clusterSize int) int {
	if n > 0 {
		return int(n) * clusterSize
	}
	return 1 << uint(-n)
}

// ParseBootSector decodes sector 0. sector must be at least 0x48 bytes.
func ParseBootSector(sector []byte) (BootSector, error) {
	if len(sector) < 0x48 {
		return BootSector{}, fmt.Errorf("ntfs: boot sector too short: %d bytes", len(sector))
	}
	if string(sector[3:11]) != "NTFS    " {
		return BootSector{}, fmt.Errorf("ntfs: not an NTFS volume (oem id %q)", sector[3:11])
	}

	b := BootSector{
		BytesPerSector:           binary.LittleEndian.Uint16(sector[0x0B:0x0D]),
		SectorsPerCluster:        sector[0x0D],
		TotalSectors:             int64(binary.LittleEndian.Uint64(sector[0x28:0x30])),
		MFTStartLCN:              int64(binary.LittleEndian.Uint64(sector[0x30:0x38])),
		MFTMirrorStartLCN:        int64(binary.LittleEndian.Uint64(sector[0x38:0x40])),
		ClustersPerFileRecordSeg: int8(sector[0x40]),
		ClustersPerIndexBuffer:   int8(sector[0x44]),
	}
	if b.BytesPerSector == 0 || b.SectorsPerCluster == 0 {
		return BootSector{}, fmt.Errorf("ntfs: degenerate geometry: bytes/sector=%d sectors/cluster=%d", b.BytesPerSector, b.SectorsPerCluster)
	}
	return b, nil
}
