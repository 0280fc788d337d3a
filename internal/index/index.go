package index

import (
	"sync/atomic"
	"time"

	"github.com/cobaltfs/mftindex/internal/ntfs"
)

// MatchCallback mirrors spec.md §6's Index::matches callback signature: a
// return > 0 recurses into the entity's children, == 0 stops descent
// without pruning, and < 0 prunes the subtree.
type MatchCallback func(name string, ascii bool, key Key, depth int) int

// Matcher is the subset of internal/pattern's compiled matcher that
// traversal needs; kept local to avoid an import cycle (pattern depends on
// nothing here, but traverse depends on both).
type Matcher interface {
	IsMatch(corpus string) bool
}

// Index is the public facade over one volume's in-memory MFT index
// (spec.md §6): NtfsIndex::new / init / reserve / load / set_finished /
// matches / accessors.
type Index struct {
	rootPath string
	s        *store

	recordsSoFar  uint64 // atomic
	validRecords  uint64 // atomic
	reservedBytes int64  // atomic; may go negative transiently, never below zero once settled

	bytesRead uint64 // atomic
	startTime time.Time

	finishedCh chan struct{}
}

// New creates an Index bound to rootPath. Mirrors spec.md §6's
// NtfsIndex::new(root_path) -> Index.
func New(rootPath string) *Index {
	return &Index{
		rootPath:   rootPath,
		s:          newStore(),
		finishedCh: make(chan struct{}),
	}
}

// Init prepares the index for loading: resets counters and marks the
// start time used by Speed().
func (idx *Index) Init() {
	idx.startTime = time.Now()
	atomic.StoreUint64(&idx.recordsSoFar, 0)
	atomic.StoreUint64(&idx.validRecords, 0)
	atomic.StoreUint64(&idx.bytesRead, 0)
}

// Reserve grows the record lookup table so FRS numbers up to n-1 can be
// addressed without reallocation mid-parse (spec.md §4.5).
func (idx *Index) Reserve(n uint32) {
	idx.s.reserve(n)
}

// SetReservedClusters seeds the reserved-cluster counter to the MFT zone
// size in bytes, before any non-resident run accounting begins
// (spec.md §3: "Reserved-cluster counter starts at (MFT zone size)").
func (idx *Index) SetReservedClusters(zoneBytes int64) {
	atomic.StoreInt64(&idx.reservedBytes, zoneBytes)
}

// SubtractReservedOverlap atomically decrements the reserved-cluster
// counter by the clipped overlap between a non-resident run and the MFT
// zone (spec.md §4.4 step 5, §4.1 edge cases).
func (idx *Index) SubtractReservedOverlap(bytes int64) {
	atomic.AddInt64(&idx.reservedBytes, -bytes)
}

// ReservedClusters returns the current reserved-cluster counter in bytes.
func (idx *Index) ReservedClusters() int64 {
	return atomic.LoadInt64(&idx.reservedBytes)
}

// Builder returns the mutation surface the parser uses while a buffer is
// being decoded (internal/parser).
func (idx *Index) Builder() *Builder {
	return newBuilder(idx.s)
}

// AddRecordsSoFar advances the monotonic records_so_far counter by delta
// (which includes both parsed and bitmap-skipped records, per
// spec.md §4.3 step 6).
func (idx *Index) AddRecordsSoFar(delta uint64) {
	atomic.AddUint64(&idx.recordsSoFar, delta)
}

// RecordsSoFar returns the monotonic count of records accounted for
// (parsed or skipped), for progress reporting (spec.md §4.3, §6).
func (idx *Index) RecordsSoFar() uint64 {
	return atomic.LoadUint64(&idx.recordsSoFar)
}

// AddValidRecords accumulates bits counted true while scanning a bitmap
// chunk (spec.md §4.3 step 5).
func (idx *Index) AddValidRecords(delta uint64) {
	atomic.AddUint64(&idx.validRecords, delta)
}

// ValidRecords returns the running count of set bits observed in the MFT
// bitmap.
func (idx *Index) ValidRecords() uint64 {
	return atomic.LoadUint64(&idx.validRecords)
}

// AddBytesRead accumulates raw bytes pulled off the volume, for Speed().
func (idx *Index) AddBytesRead(n uint64) {
	atomic.AddUint64(&idx.bytesRead, n)
}

// SetFinished marks the index sealed, records err for FinishError, and
// unblocks FinishedEvent() (spec.md §6). The Builder does not check the
// sealed state, so Builder calls made after SetFinished still grow the
// arenas.
func (idx *Index) SetFinished(err error) {
	idx.s.setFinished(err)
	select {
	case <-idx.finishedCh:
		// already closed
	default:
		close(idx.finishedCh)
	}
}

// FinishedEvent returns a channel closed once SetFinished has been called,
// the Go analogue of spec.md §6's Waitable.
func (idx *Index) FinishedEvent() <-chan struct{} {
	return idx.finishedCh
}

// FinishError returns the error SetFinished was called with, if any.
func (idx *Index) FinishError() error {
	_, err := idx.s.isFinished()
	return err
}

// RootPath returns the root path the index was constructed for.
func (idx *Index) RootPath() string {
	return idx.rootPath
}

// Checksum returns a fingerprint over the sealed name/record arenas,
// wiring xxhash the way SPEC_FULL.md §3 describes.
func (idx *Index) Checksum() uint64 {
	return idx.s.checksum()
}

// Speed returns the bytes read so far and the elapsed duration since Init,
// letting a caller derive a throughput figure (SPEC_FULL.md §6, mirroring
// the original's nformat.hpp speed reporting — formatting stays a
// GUI/CLI concern).
func (idx *Index) Speed() (bytesRead uint64, elapsed time.Duration) {
	return atomic.LoadUint64(&idx.bytesRead), time.Since(idx.startTime)
}

// TotalNamesAndStreams returns the number of name links and stream nodes
// recorded across the whole index, for progress/debug reporting.
func (idx *Index) TotalNamesAndStreams() (names, streams int) {
	idx.s.mu.Lock()
	defer idx.s.mu.Unlock()
	for _, r := range idx.s.recordsData {
		names += int(r.NameCount)
		streams += int(r.StreamCount)
	}
	return names, streams
}

// GetStdInfo returns the decoded $STANDARD_INFORMATION for frs.
func (idx *Index) GetStdInfo(frs uint32) (ntfs.StandardInformation, bool) {
	idx.s.mu.Lock()
	defer idx.s.mu.Unlock()
	if int(frs) >= len(idx.s.recordsLookup) {
		return ntfs.StandardInformation{}, false
	}
	ri := idx.s.recordsLookup[frs]
	if ri == invalidIndex {
		return ntfs.StandardInformation{}, false
	}
	return idx.s.recordsData[ri].StdInfo, true
}

// GetSizes returns the aggregate SizeInfo for the stream identified by
// key.StreamIndex on key.FRS (spec.md §6: Index::get_sizes). When the
// record has more than one name (hardlinks), internal/aggregate stores the
// stream's raw, unsplit totals; GetSizes applies the delta rule here, at
// query time, to attribute a proportional share of Length/Allocated to
// key.NameIndex (spec.md §4.6 step 4): the i-th name out of n receives
// value*(i+1)/n - value*i/n, a partition that sums exactly to value with
// no rounding drift (spec.md §8). Bulkiness and TreeSize are subtree-wide
// metrics, not per-hardlink, and pass through unsplit.
func (idx *Index) GetSizes(key Key) (SizeInfo, bool) {
	idx.s.mu.Lock()
	defer idx.s.mu.Unlock()
	rec, ok := idx.recordAtLocked(key.FRS)
	if !ok {
		return SizeInfo{}, false
	}
	stream, ok := idx.streamAtLocked(rec, key.StreamIndex)
	if !ok {
		return SizeInfo{}, false
	}
	sizes := stream.Sizes
	if rec.NameCount > 1 && key.NameIndex != NoIndex {
		n := uint64(rec.NameCount)
		i := uint64(key.NameIndex)
		sizes.Length = deltaShare(sizes.Length, i, n)
		sizes.Allocated = deltaShare(sizes.Allocated, i, n)
	}
	return sizes, true
}

// deltaShare computes the i-th out of n proportional shares of value using
// the delta rule (spec.md §4.6 step 4, §8): value*(i+1)/n - value*i/n.
// Computing it as a difference of two floor divisions, rather than
// value/n, is what makes the shares sum exactly to value regardless of how
// unevenly value divides by n.
func deltaShare(value, i, n uint64) uint64 {
	if n == 0 {
		return 0
	}
	hi := value * (i + 1) / n
	lo := value * i / n
	return hi - lo
}
