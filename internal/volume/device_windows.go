//go:build windows

package volume

import (
	"context"
	"fmt"
	"unsafe"

	"golang.org/x/sys/windows"

	mfterrors "github.com/cobaltfs/mftindex/internal/errors"
)

// FSCTL codes per [MS-FSCC] — not exposed by golang.org/x/sys/windows.
const (
	fsctlGetNtfsVolumeData     = 0x00090064
	fsctlGetRetrievalPointers  = 0x00090073
)

// ntfsVolumeDataBuffer mirrors the fixed-size prefix of Win32's
// NTFS_VOLUME_DATA_BUFFER (winioctl.h), enough to derive Geometry.
type ntfsVolumeDataBuffer struct {
	VolumeSerialNumber           int64
	NumberSectors                int64
	TotalClusters                int64
	FreeClusters                 int64
	TotalReserved                int64
	BytesPerSector                uint32
	BytesPerCluster                uint32
	BytesPerFileRecordSegment    uint32
	ClustersPerFileRecordSegment uint32
	MftValidDataLength            int64
	MftStartLcn                  int64
	Mft2StartLcn                 int64
	MftZoneStart                 int64
	MftZoneEnd                   int64
}

type startingVcnInputBuffer struct {
	StartingVcn int64
}

type retrievalPointerExtent struct {
	NextVcn int64
	Lcn     int64
}

// winDevice is the real Win32 volume.Device: a raw `\\.\<root>` handle plus
// a `\$MFT` handle (and its :$BITMAP alternate stream) used purely for
// FSCTL_GET_RETRIEVAL_POINTERS; all actual data reads go through the
// volume handle directly, since $MFT::$DATA's physical offsets are LCNs on
// that same volume (spec.md §6: "Volume reader ... device_io_control for
// geometry, get_retrieval_pointers(path, stream) -> runs").
type winDevice struct {
	rootPath     string
	volumeHandle windows.Handle
	mftHandle    windows.Handle
	bitmapHandle windows.Handle
	geometry     Geometry
}

func newDevice(rootPath string) (Device, error) {
	path := fmt.Sprintf(`\\.\%s`, rootPath)
	h, err := windows.CreateFile(
		windows.StringToUTF16Ptr(path),
		windows.GENERIC_READ,
		windows.FILE_SHARE_READ|windows.FILE_SHARE_WRITE,
		nil,
		windows.OPEN_EXISTING,
		windows.FILE_FLAG_OVERLAPPED|windows.FILE_FLAG_NO_BUFFERING,
		0,
	)
	if err != nil {
		return nil, mfterrors.NewInaccessibleVolumeError(rootPath, err)
	}

	mftPath := fmt.Sprintf(`\\.\%s\$MFT`, rootPath)
	mftHandle, err := windows.CreateFile(
		windows.StringToUTF16Ptr(mftPath),
		windows.GENERIC_READ,
		windows.FILE_SHARE_READ|windows.FILE_SHARE_WRITE,
		nil,
		windows.OPEN_EXISTING,
		windows.FILE_FLAG_BACKUP_SEMANTICS,
		0,
	)
	if err != nil {
		windows.CloseHandle(h)
		return nil, mfterrors.NewInaccessibleVolumeError(rootPath, err)
	}

	bitmapPath := fmt.Sprintf(`\\.\%s\$MFT:$BITMAP`, rootPath)
	bitmapHandle, err := windows.CreateFile(
		windows.StringToUTF16Ptr(bitmapPath),
		windows.GENERIC_READ,
		windows.FILE_SHARE_READ|windows.FILE_SHARE_WRITE,
		nil,
		windows.OPEN_EXISTING,
		windows.FILE_FLAG_BACKUP_SEMANTICS,
		0,
	)
	if err != nil {
		windows.CloseHandle(mftHandle)
		windows.CloseHandle(h)
		return nil, mfterrors.NewInaccessibleVolumeError(rootPath, err)
	}

	return &winDevice{rootPath: rootPath, volumeHandle: h, mftHandle: mftHandle, bitmapHandle: bitmapHandle}, nil
}

func (d *winDevice) QueryGeometry(ctx context.Context) (Geometry, error) {
	var buf ntfsVolumeDataBuffer
	var bytesReturned uint32
	err := windows.DeviceIoControl(
		d.volumeHandle,
		fsctlGetNtfsVolumeData,
		nil, 0,
		(*byte)(unsafe.Pointer(&buf)), uint32(unsafe.Sizeof(buf)),
		&bytesReturned, nil,
	)
	if err != nil {
		return Geometry{}, fmt.Errorf("volume: FSCTL_GET_NTFS_VOLUME_DATA: %w", err)
	}

	clusterSize := int64(buf.BytesPerCluster)
	frsSize := buf.BytesPerFileRecordSegment
	capacity := uint64(0)
	if frsSize > 0 {
		capacity = uint64(buf.MftValidDataLength) / uint64(frsSize)
	}

	g := Geometry{
		BytesPerSector:    buf.BytesPerSector,
		SectorsPerCluster: buf.BytesPerCluster / maxu32(buf.BytesPerSector, 1),
		BytesPerFRS:       frsSize,
		MFTCapacity:       capacity,
		MFTStartLCN:       buf.MftStartLcn,
		MFTZoneStartLCN:   buf.MftZoneStart,
		MFTZoneEndLCN:     buf.MftZoneEnd,
	}
	_ = clusterSize
	d.geometry = g
	return g, nil
}

func maxu32(a, b uint32) uint32 {
	if a > b {
		return a
	}
	return b
}

func (d *winDevice) EnumerateExtents(ctx context.Context, stream StreamKind) ([]Extent, error) {
	handle := d.mftHandle
	if stream == StreamBitmap {
		handle = d.bitmapHandle
	}
	return getRetrievalPointers(handle)
}

// getRetrievalPointers drives FSCTL_GET_RETRIEVAL_POINTERS to completion,
// resuming from the last reported NextVcn whenever the output buffer was
// too small for the whole mapping (ERROR_MORE_DATA).
func getRetrievalPointers(handle windows.Handle) ([]Extent, error) {
	var extents []Extent
	startVCN := int64(0)

	const maxExtentsPerCall = 512
	outSize := int(unsafe.Sizeof(uint32(0))) + int(unsafe.Sizeof(int64(0))) + maxExtentsPerCall*int(unsafe.Sizeof(retrievalPointerExtent{}))
	out := make([]byte, outSize)

	for {
		in := startingVcnInputBuffer{StartingVcn: startVCN}
		var bytesReturned uint32
		err := windows.DeviceIoControl(
			handle,
			fsctlGetRetrievalPointers,
			(*byte)(unsafe.Pointer(&in)), uint32(unsafe.Sizeof(in)),
			&out[0], uint32(len(out)),
			&bytesReturned, nil,
		)
		moreData := err == windows.ERROR_MORE_DATA
		if err != nil && !moreData {
			if err == windows.ERROR_HANDLE_EOF {
				break
			}
			return nil, fmt.Errorf("volume: FSCTL_GET_RETRIEVAL_POINTERS: %w", err)
		}

		extentCount := *(*uint32)(unsafe.Pointer(&out[0]))
		startingVCN := *(*int64)(unsafe.Pointer(&out[8]))
		prevVCN := startingVCN
		base := 16
		for i := uint32(0); i < extentCount; i++ {
			off := base + int(i)*int(unsafe.Sizeof(retrievalPointerExtent{}))
			rp := (*retrievalPointerExtent)(unsafe.Pointer(&out[off]))
			clusters := rp.NextVcn - prevVCN
			sparse := rp.Lcn == -1
			extents = append(extents, Extent{VCN: prevVCN, Clusters: clusters, LCN: rp.Lcn, Sparse: sparse})
			prevVCN = rp.NextVcn
		}

		if !moreData || extentCount == 0 {
			break
		}
		startVCN = prevVCN
	}
	return extents, nil
}

func (d *winDevice) ReadAt(ctx context.Context, buf []byte, offset int64) (int, error) {
	if len(buf) == 0 {
		return 0, nil
	}
	ov := windows.Overlapped{
		Offset:     uint32(offset),
		OffsetHigh: uint32(offset >> 32),
	}
	var n uint32
	err := windows.ReadFile(d.volumeHandle, buf, &n, &ov)
	if err == windows.ERROR_IO_PENDING {
		err = windows.GetOverlappedResult(d.volumeHandle, &ov, &n, true)
	}
	if err != nil {
		return int(n), fmt.Errorf("volume: ReadFile at offset %d: %w", offset, err)
	}
	return int(n), nil
}

func (d *winDevice) Close() error {
	windows.CloseHandle(d.bitmapHandle)
	windows.CloseHandle(d.mftHandle)
	return windows.CloseHandle(d.volumeHandle)
}
