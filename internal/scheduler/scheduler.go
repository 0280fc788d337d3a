// Package scheduler drives the MFT's bitmap and data streams through
// internal/ioengine into the record parser, computing the bitmap-derived
// skip_begin/skip_end per data extent so whole runs of free FRS slots
// never need a read (spec.md §4.3).
package scheduler

import (
	"context"
	"math/bits"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	mfterrors "github.com/cobaltfs/mftindex/internal/errors"
	"github.com/cobaltfs/mftindex/internal/index"
	"github.com/cobaltfs/mftindex/internal/ioengine"
	"github.com/cobaltfs/mftindex/internal/volume"
)

// DataHandler receives one decoded data extent's buffer, already trimmed
// to FRS boundaries, the way spec.md §4.3 step 6 hands it to the parser:
// "(virtual_offset, buffer, size, skipped_begin, skipped_end)".
type DataHandler func(ctx context.Context, virtualOffset int64, buf []byte, skipBegin, skipEnd int) error

// Extent augments a volume.Extent with the bitmap-derived skip counts the
// scheduler computes once every bitmap chunk has been read
// (spec.md §4.3 step 5).
type Extent struct {
	volume.Extent
	SkipBegin int64 // whole clusters at the head containing only free FRS slots
	SkipEnd   int64 // whole clusters at the tail containing only free FRS slots
}

// InitialConcurrency is spec.md §4.3 step 3's fixed fan-out before any
// completion has arrived.
const InitialConcurrency = 2

// volumeHandle is the single ioengine.Handle this scheduler associates
// with its volume's device; there is only ever one handle per volume, so
// the key the engine threads through completions is unused and always 0.
const volumeHandle ioengine.Handle = 1

type readResult struct {
	n   int
	err error
}

// syncRead submits offset/buf through the I/O engine and blocks until its
// completion callback fires, giving the scheduler's own call sites a
// simple synchronous ReadAt-shaped call while every byte still flows
// through ioengine's worker pool and pending-request queue
// (spec.md §4.2, §4.3).
func (s *Scheduler) syncRead(ctx context.Context, offset int64, buf []byte) (int, error) {
	resultCh := make(chan readResult, 1)
	ov := ioengine.NewOverlapped(offset, func(bytesTransferred uint32, key uintptr) ioengine.Action {
		resultCh <- readResult{n: int(bytesTransferred)}
		return ioengine.Destroy
	})
	if err := s.engine.ReadFile(volumeHandle, buf, len(buf), ov); err != nil {
		return 0, err
	}
	select {
	case res := <-resultCh:
		return res.n, res.err
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// Scheduler owns one volume's read plan: bitmap extents first, then data
// extents, both drained through a bounded worker pool (spec.md §4.3).
type Scheduler struct {
	dev    *volume.Descriptor
	engine *ioengine.Engine
	idx    *index.Index

	clusterSize   int
	frsSize       int
	framesPerFRS  int
	mftZoneStart  int64
	mftZoneEnd    int64

	dataExtents   []*Extent
	bitmapExtents []volume.Extent

	bitmap      []byte
	validBits   uint64 // atomic
}

// New builds a Scheduler bound to an opened volume, an index to populate,
// and the I/O engine to read through.
func New(dev *volume.Descriptor, eng *ioengine.Engine, idx *index.Index) *Scheduler {
	g := dev.Geometry
	return &Scheduler{
		dev:          dev,
		engine:       eng,
		idx:          idx,
		clusterSize:  g.ClusterSize(),
		frsSize:      int(g.BytesPerFRS),
		mftZoneStart: g.MFTZoneStartLCN,
		mftZoneEnd:   g.MFTZoneEndLCN,
	}
}

// Run enumerates bitmap and data extents, reads the bitmap to completion
// (establishing the bitmap-happens-before-data-skip ordering guarantee of
// spec.md §5), computes skip_begin/skip_end for each data extent, then
// drains the data queue through handler, bounding in-flight reads to
// InitialConcurrency the way spec.md §4.3 steps 3-4 describe.
func (s *Scheduler) Run(ctx context.Context, handler DataHandler) error {
	g := s.dev.Geometry
	if s.clusterSize <= 0 || s.frsSize <= 0 {
		return mfterrors.NewUnrecognisedVolumeError(s.dev.RootPath, nil)
	}
	blockMax := volume.BlockSizeMaxClusters(s.clusterSize)

	bitmapRaw, err := s.dev.Device.EnumerateExtents(ctx, volume.StreamBitmap)
	if err != nil {
		return mfterrors.NewIoError(0, 0, 0, err)
	}
	s.bitmapExtents = volume.SplitExtents(bitmapRaw, blockMax)

	dataRaw, err := s.dev.Device.EnumerateExtents(ctx, volume.StreamData)
	if err != nil {
		return mfterrors.NewIoError(0, 0, 0, err)
	}
	split := volume.SplitExtents(dataRaw, blockMax)
	s.dataExtents = make([]*Extent, len(split))
	for i, e := range split {
		s.dataExtents[i] = &Extent{Extent: e}
	}

	s.idx.SetReservedClusters((s.mftZoneEnd - s.mftZoneStart) * int64(s.clusterSize))
	s.idx.Reserve(uint32(g.MFTCapacity))

	s.bitmap = make([]byte, (g.MFTCapacity+7)/8)

	s.engine.Start(ctx)
	s.engine.Associate(volumeHandle, 0)

	if err := s.readBitmap(ctx); err != nil {
		return err
	}
	s.computeSkips()

	if err := s.readData(ctx, handler); err != nil {
		s.idx.SetFinished(err)
		return err
	}

	s.idx.SetFinished(nil)
	return nil
}

// readBitmap reads every bitmap extent to completion (bounded to
// InitialConcurrency in flight) and folds each chunk into the dense
// bitmap array, counting set bits as it goes (spec.md §4.3 step 5).
func (s *Scheduler) readBitmap(ctx context.Context) error {
	sem := semaphore.NewWeighted(InitialConcurrency)
	g, gctx := errgroup.WithContext(ctx)

	for _, extent := range s.bitmapExtents {
		extent := extent
		if err := sem.Acquire(gctx, 1); err != nil {
			return err
		}
		g.Go(func() error {
			defer sem.Release(1)
			size := extent.Bytes(s.clusterSize)
			buf := make([]byte, size)
			offset := extent.LCN * int64(s.clusterSize)
			if extent.Sparse {
				// A sparse bitmap run reads as all-zero (no allocated FRSs).
				s.foldBitmapChunk(extent.VCN, buf)
				return nil
			}
			n, err := s.syncRead(gctx, offset, buf)
			if err != nil {
				return mfterrors.NewIoError(0, offset, len(buf), err)
			}
			s.idx.AddBytesRead(uint64(n))
			s.foldBitmapChunk(extent.VCN, buf[:n])
			return nil
		})
	}
	return g.Wait()
}

// foldBitmapChunk copies buf into the dense bitmap at the byte offset
// implied by vcn (bitmap cluster vcn starts at byte vcn*clusterSize) and
// accumulates the popcount into valid_records (spec.md §4.3 step 5:
// "atomically count set bits to get valid_records").
func (s *Scheduler) foldBitmapChunk(vcn int64, buf []byte) {
	byteOffset := vcn * int64(s.clusterSize)
	set := 0
	for i, b := range buf {
		idx := byteOffset + int64(i)
		if idx >= int64(len(s.bitmap)) {
			break
		}
		s.bitmap[idx] = b
		set += bits.OnesCount8(b)
	}
	atomic.AddUint64(&s.validBits, uint64(set))
	s.idx.AddValidRecords(uint64(set))
}

// recordsPerCluster is how many FRS slots live in one cluster of the
// $MFT::$DATA stream.
func (s *Scheduler) recordsPerCluster() int64 {
	if s.frsSize == 0 {
		return 1
	}
	n := int64(s.clusterSize) / int64(s.frsSize)
	if n < 1 {
		n = 1
	}
	return n
}

func (s *Scheduler) bitSet(recordIndex int64) bool {
	byteIdx := recordIndex / 8
	if byteIdx < 0 || int(byteIdx) >= len(s.bitmap) {
		return false
	}
	bit := uint(recordIndex % 8)
	return s.bitmap[byteIdx]&(1<<bit) != 0
}

// clusterAllFree reports whether every FRS slot addressed by cluster vcn
// is unset in the bitmap.
func (s *Scheduler) clusterAllFree(vcn int64) bool {
	perCluster := s.recordsPerCluster()
	base := vcn * perCluster
	for i := int64(0); i < perCluster; i++ {
		if s.bitSet(base + i) {
			return false
		}
	}
	return true
}

// computeSkips derives skip_begin/skip_end for every data extent: the
// count of whole clusters at the head/tail containing only free FRS slots
// (spec.md §4.3 step 5).
func (s *Scheduler) computeSkips() {
	for _, e := range s.dataExtents {
		var begin, end int64
		for begin < e.Clusters && s.clusterAllFree(e.VCN+begin) {
			begin++
		}
		for end < e.Clusters-begin && s.clusterAllFree(e.VCN+e.Clusters-1-end) {
			end++
		}
		e.SkipBegin = begin
		e.SkipEnd = end
	}
}

// readData drains the data queue, handing each extent's buffer (minus any
// bitmap-skipped head/tail) to handler, bounded to InitialConcurrency
// in-flight reads (spec.md §4.3 steps 3-4, 6-7).
func (s *Scheduler) readData(ctx context.Context, handler DataHandler) error {
	sem := semaphore.NewWeighted(InitialConcurrency)
	g, gctx := errgroup.WithContext(ctx)
	perCluster := s.recordsPerCluster()

	for _, e := range s.dataExtents {
		e := e
		if err := sem.Acquire(gctx, 1); err != nil {
			return err
		}
		g.Go(func() error {
			defer sem.Release(1)

			totalRecords := e.Clusters * perCluster
			skippedRecords := (e.SkipBegin + e.SkipEnd) * perCluster
			if skippedRecords > totalRecords {
				skippedRecords = totalRecords
			}
			s.idx.AddRecordsSoFar(uint64(skippedRecords))

			readClusters := e.Clusters - e.SkipBegin - e.SkipEnd
			if readClusters <= 0 {
				return nil
			}
			size := readClusters * int64(s.clusterSize)
			buf := make([]byte, size)
			virtualOffset := (e.VCN + e.SkipBegin) * int64(s.clusterSize)
			physicalOffset := (e.LCN + e.SkipBegin) * int64(s.clusterSize)

			if !e.Sparse {
				n, err := s.syncRead(gctx, physicalOffset, buf)
				if err != nil {
					return mfterrors.NewIoError(0, physicalOffset, len(buf), err)
				}
				s.idx.AddBytesRead(uint64(n))
				buf = buf[:n]
			}

			if err := handler(gctx, virtualOffset, buf, int(e.SkipBegin), int(e.SkipEnd)); err != nil {
				return err
			}
			s.idx.AddRecordsSoFar(uint64(readClusters * perCluster))
			return nil
		})
	}
	return g.Wait()
}
