// Package volume opens a raw NTFS volume and exposes its $MFT::$DATA and
// $MFT::$BITMAP streams as block-aligned extents (spec.md §4.1). The
// platform-specific half (opening `\\.\<volume>`, DeviceIoControl calls) is
// isolated behind a build-tagged Device implementation so the extent
// splitting and reserved-zone accounting here stay portable and testable.
package volume

import (
	"context"
	"fmt"

	mfterrors "github.com/cobaltfs/mftindex/internal/errors"
)

// StreamKind selects which $MFT stream to enumerate.
type StreamKind int

const (
	StreamData StreamKind = iota
	StreamBitmap
)

// Geometry is the fixed volume layout the scheduler needs before it can
// plan reads (spec.md §4.1: "query_geometry").
type Geometry struct {
	BytesPerSector    uint32
	SectorsPerCluster uint32
	BytesPerFRS       uint32
	MFTCapacity       uint64 // records
	MFTStartLCN       int64
	MFTZoneStartLCN   int64
	MFTZoneEndLCN     int64
}

// ClusterSize is BytesPerSector * SectorsPerCluster.
func (g Geometry) ClusterSize() int {
	return int(g.BytesPerSector) * int(g.SectorsPerCluster)
}

// Extent is one contiguous run of a stream, as returned by
// get_retrieval_pointers and walked via DecodeMappingPairs on real media
// (spec.md §4.1: "(vcn, clusters, lcn) triples").
type Extent struct {
	VCN      int64
	Clusters int64
	LCN      int64
	Sparse   bool
}

// Bytes returns the extent's length in bytes given the volume's cluster
// size.
func (e Extent) Bytes(clusterSize int) int64 {
	return e.Clusters * int64(clusterSize)
}

// Device is the platform-specific surface this package drives: opening the
// volume, reading its geometry, enumerating extents, and reading raw
// bytes. internal/ioengine consumes the same Reader shape for its actual
// overlapped dispatch.
type Device interface {
	QueryGeometry(ctx context.Context) (Geometry, error)
	EnumerateExtents(ctx context.Context, stream StreamKind) ([]Extent, error)
	ReadAt(ctx context.Context, buf []byte, offset int64) (int, error)
	Close() error
}

// Descriptor is an opened volume: its Device plus geometry cached after
// the first query (spec.md §4.1: "open(root_path)").
type Descriptor struct {
	RootPath string
	Device   Device
	Geometry Geometry
}

// Open opens rootPath (e.g. `C:`) for overlapped, unbuffered access and
// queries its geometry. Returns a *mfterrors.VolumeError on any failure,
// classified as Unrecognised (not NTFS) or Inaccessible (permissions, in
// use) per spec.md §7.
func Open(ctx context.Context, rootPath string) (*Descriptor, error) {
	dev, err := newDevice(rootPath)
	if err != nil {
		return nil, err
	}
	geo, err := dev.QueryGeometry(ctx)
	if err != nil {
		dev.Close()
		return nil, mfterrors.NewUnrecognisedVolumeError(rootPath, err)
	}
	if geo.ClusterSize() == 0 || geo.BytesPerFRS == 0 {
		dev.Close()
		return nil, mfterrors.NewUnrecognisedVolumeError(rootPath, fmt.Errorf("degenerate geometry"))
	}
	if int(geo.BytesPerFRS) > geo.ClusterSize() {
		// spec.md §4.1 edge case: the reader assumes at least one FRS per
		// read granularity; a FRS spanning less than a cluster is fine but
		// the inverse is not supported.
		dev.Close()
		return nil, mfterrors.NewUnrecognisedVolumeError(rootPath, fmt.Errorf("FRS size %d exceeds cluster size %d", geo.BytesPerFRS, geo.ClusterSize()))
	}
	return &Descriptor{RootPath: rootPath, Device: dev, Geometry: geo}, nil
}

// BlockSizeMaxClusters is spec.md §4.1's "block_size_max = 1 MiB /
// cluster_size", the longest run the scheduler is willing to read in one
// request.
func BlockSizeMaxClusters(clusterSize int) int64 {
	const oneMiB = 1 << 20
	if clusterSize <= 0 {
		return 1
	}
	n := oneMiB / int64(clusterSize)
	if n < 1 {
		n = 1
	}
	return n
}

// SplitExtents splits any run longer than blockMaxClusters into several
// contiguous runs at block boundaries, and drops zero-length runs
// (spec.md §4.1 edge cases).
func SplitExtents(extents []Extent, blockMaxClusters int64) []Extent {
	if blockMaxClusters < 1 {
		blockMaxClusters = 1
	}
	out := make([]Extent, 0, len(extents))
	for _, e := range extents {
		if e.Clusters <= 0 {
			continue
		}
		remaining := e.Clusters
		vcn := e.VCN
		lcn := e.LCN
		for remaining > 0 {
			n := remaining
			if n > blockMaxClusters {
				n = blockMaxClusters
			}
			out = append(out, Extent{VCN: vcn, Clusters: n, LCN: lcn, Sparse: e.Sparse})
			vcn += n
			if !e.Sparse {
				lcn += n
			}
			remaining -= n
		}
	}
	return out
}

// ReservedOverlap computes the byte length of e's intersection with the
// half-open MFT zone [zoneStartLCN, zoneEndLCN), clipped to e's own span
// (spec.md §4.1: "A cluster run that straddles the MFT zone still counts
// as reserved-zone usage").
func ReservedOverlap(e Extent, clusterSize int, zoneStartLCN, zoneEndLCN int64) int64 {
	if e.Sparse || zoneEndLCN <= zoneStartLCN || e.Clusters <= 0 {
		return 0
	}
	runStart := e.LCN
	runEnd := e.LCN + e.Clusters
	lo := runStart
	if zoneStartLCN > lo {
		lo = zoneStartLCN
	}
	hi := runEnd
	if zoneEndLCN < hi {
		hi = zoneEndLCN
	}
	if hi <= lo {
		return 0
	}
	return (hi - lo) * int64(clusterSize)
}
