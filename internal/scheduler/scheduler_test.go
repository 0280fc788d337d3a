package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/cobaltfs/mftindex/internal/index"
	"github.com/cobaltfs/mftindex/internal/ioengine"
	"github.com/cobaltfs/mftindex/internal/volume"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const (
	testClusterSize = 64
	testFRSSize     = 16 // 4 records per cluster
)

func newTestDescriptor(backing []byte, dataExtents, bitmapExtents []volume.Extent, mftCapacity uint64) *volume.Descriptor {
	dev := &volume.FakeDevice{
		Geo: volume.Geometry{
			BytesPerSector:    testClusterSize,
			SectorsPerCluster: 1,
			BytesPerFRS:       testFRSSize,
			MFTCapacity:       mftCapacity,
			MFTZoneStartLCN:   0,
			MFTZoneEndLCN:     0,
		},
		DataExtents:   dataExtents,
		BitmapExtents: bitmapExtents,
		Backing:       backing,
	}
	return &volume.Descriptor{RootPath: "T:", Device: dev, Geometry: dev.Geo}
}

type capturedCall struct {
	virtualOffset      int64
	buf                []byte
	skipBegin, skipEnd int
}

func TestBitmapSkipsAreComputedBeforeDataRead(t *testing.T) {
	backing := make([]byte, 2048)
	backing[0] = 0x03 // records 0,1 in use; records 2,3 free
	backing[1] = 0x00 // records 8..15 free

	dataExtents := []volume.Extent{{VCN: 0, Clusters: 4, LCN: 10}}
	bitmapExtents := []volume.Extent{{VCN: 0, Clusters: 1, LCN: 0}}

	dev := newTestDescriptor(backing, dataExtents, bitmapExtents, 16)
	idx := index.New("T:")
	idx.Init()
	eng := ioengine.NewEngine(2, deviceReader{dev.Device}, 8)
	s := New(dev, eng, idx)
	defer eng.Close()

	var mu sync.Mutex
	var calls []capturedCall
	err := s.Run(context.Background(), func(ctx context.Context, virtualOffset int64, buf []byte, skipBegin, skipEnd int) error {
		mu.Lock()
		defer mu.Unlock()
		cp := make([]byte, len(buf))
		copy(cp, buf)
		calls = append(calls, capturedCall{virtualOffset, cp, skipBegin, skipEnd})
		return nil
	})
	require.NoError(t, err)

	require.Len(t, calls, 1)
	c := calls[0]
	require.EqualValues(t, 0, c.virtualOffset)
	require.Equal(t, 0, c.skipBegin)
	require.Equal(t, 3, c.skipEnd, "clusters 1-3 hold only free FRS slots and should be skipped")
	require.Len(t, c.buf, testClusterSize, "only the one non-free cluster should be read")

	require.EqualValues(t, 2, idx.ValidRecords(), "two set bits in the bitmap")
	require.EqualValues(t, 16, idx.RecordsSoFar(), "skipped + read records must account for every slot")
}

func TestSparseDataExtentSkipsReadEntirely(t *testing.T) {
	backing := make([]byte, 1024)
	// All bits clear: every record in the bitmap is free.
	dataExtents := []volume.Extent{{VCN: 0, Clusters: 2, LCN: 0, Sparse: true}}
	bitmapExtents := []volume.Extent{{VCN: 0, Clusters: 1, LCN: 0}}

	dev := newTestDescriptor(backing, dataExtents, bitmapExtents, 8)
	idx := index.New("T:")
	idx.Init()
	eng := ioengine.NewEngine(2, deviceReader{dev.Device}, 8)
	s := New(dev, eng, idx)
	defer eng.Close()

	called := false
	err := s.Run(context.Background(), func(ctx context.Context, virtualOffset int64, buf []byte, skipBegin, skipEnd int) error {
		called = true
		return nil
	})
	require.NoError(t, err)
	require.False(t, called, "an entirely free sparse extent should be skipped without ever invoking the handler")
	require.EqualValues(t, 8, idx.RecordsSoFar())
}

func TestMultipleExtentsAllDeliveredUnderConcurrencyBound(t *testing.T) {
	backing := make([]byte, 4096)
	for i := range backing {
		backing[i] = 0xFF // every record in use, nothing skippable
	}

	var dataExtents []volume.Extent
	var bitmapExtents []volume.Extent
	const n = 6
	for i := 0; i < n; i++ {
		dataExtents = append(dataExtents, volume.Extent{VCN: int64(i * 4), Clusters: 4, LCN: int64(i * 4)})
	}
	bitmapExtents = append(bitmapExtents, volume.Extent{VCN: 0, Clusters: 1, LCN: 0})

	dev := newTestDescriptor(backing, dataExtents, bitmapExtents, uint64(n*16))
	idx := index.New("T:")
	idx.Init()
	eng := ioengine.NewEngine(4, deviceReader{dev.Device}, 32)
	s := New(dev, eng, idx)
	defer eng.Close()

	var mu sync.Mutex
	seen := map[int64]bool{}
	err := s.Run(context.Background(), func(ctx context.Context, virtualOffset int64, buf []byte, skipBegin, skipEnd int) error {
		mu.Lock()
		defer mu.Unlock()
		seen[virtualOffset] = true
		return nil
	})
	require.NoError(t, err)
	require.Len(t, seen, n, "every data extent must be delivered exactly once")
}

func TestHandlerErrorPropagatesAndRecordsFinishError(t *testing.T) {
	backing := make([]byte, 4096)
	for i := range backing {
		backing[i] = 0xFF
	}
	dataExtents := []volume.Extent{
		{VCN: 0, Clusters: 4, LCN: 0},
		{VCN: 4, Clusters: 4, LCN: 4},
	}
	bitmapExtents := []volume.Extent{{VCN: 0, Clusters: 1, LCN: 0}}

	dev := newTestDescriptor(backing, dataExtents, bitmapExtents, 32)
	idx := index.New("T:")
	idx.Init()
	eng := ioengine.NewEngine(2, deviceReader{dev.Device}, 8)
	s := New(dev, eng, idx)
	defer eng.Close()

	boom := errors.New("handler refused extent")
	err := s.Run(context.Background(), func(ctx context.Context, virtualOffset int64, buf []byte, skipBegin, skipEnd int) error {
		return boom
	})
	require.ErrorIs(t, err, boom)
	require.ErrorIs(t, idx.FinishError(), boom)
}

// deviceReader adapts a volume.Device to ioengine.Reader for tests; the
// real wiring does this in pkg/mftsearch once volume.Device is opened.
type deviceReader struct {
	dev volume.Device
}

func (d deviceReader) ReadAt(ctx context.Context, buf []byte, offset int64) (int, error) {
	return d.dev.ReadAt(ctx, buf, offset)
}
