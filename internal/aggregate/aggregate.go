// Package aggregate computes per-subtree aggregates — length, allocated,
// bulkiness, and tree size — over an internal/index.Index with a single
// depth-first pass starting at the root directory (spec.md §4.6). It runs
// once, after the parser has sealed the index (Index.SetFinished), and
// never touches the index again afterward.
package aggregate

import (
	"container/heap"
	"sort"

	"github.com/cobaltfs/mftindex/internal/debug"
	"github.com/cobaltfs/mftindex/internal/index"
	"github.com/cobaltfs/mftindex/internal/ntfs"
)

// rootFRS is the NTFS root directory's well-known segment number
// (spec.md §4.4, §4.6: "Single recursive pass starting at FRS 5").
const rootFRS = 5

// Run walks idx's parent/child graph depth-first from the root, writing
// the aggregate SizeInfo for every record's default stream back into the
// index via SetSizes (spec.md §4.6). It holds no lock of its own beyond
// what Index's accessors already take; the caller is expected to have
// already observed FinishedEvent so no parser goroutine is still mutating
// the arenas concurrently.
func Run(idx *index.Index) {
	p := &processor{idx: idx, builder: idx.Builder(), visited: make(map[uint32]bool)}
	p.visit(rootFRS, 0)
	debug.LogSearch("post-processing complete: %d records visited", len(p.visited))
}

type processor struct {
	idx     *index.Index
	builder *index.Builder
	visited map[uint32]bool
}

// subtree is what a record contributes to its parent's aggregate once its
// own post-processing is complete (spec.md §4.6's "children_size").
type subtree struct {
	length    uint64
	allocated uint64
	bulkiness uint64
	treeSize  uint64
}

// visit computes and stores the aggregate SizeInfo for frs's default
// stream, then returns the totals the parent folds into its own
// children_size (spec.md §4.6 steps 1-5). depth is only used to detect the
// root, whose reserved-cluster count gets added to its own allocated total
// (step 3).
func (p *processor) visit(frs uint32, depth int) subtree {
	if p.visited[frs] {
		// Safety net beyond the documented FRS-5 self-loop: a corrupt or
		// adversarial parent/child graph must not recurse forever.
		return subtree{}
	}
	p.visited[frs] = true

	var childrenLength, childrenAllocated, childrenTreeSize uint64
	var bulkinessValues []uint64

	p.idx.ForEachChild(frs, func(c index.ChildInfo) {
		if c.RecordNumber == frs {
			// spec.md §4.4 edge cases / §8: "FRS 5 is ... referenced as its
			// own child for the synthetic self-loop." Count it toward
			// treesize without recursing (recursing would never
			// terminate).
			childrenTreeSize++
			return
		}
		child := p.visit(c.RecordNumber, depth+1)
		childrenLength += child.length
		childrenAllocated += child.allocated
		childrenTreeSize += child.treeSize
		bulkinessValues = append(bulkinessValues, child.allocated)
	})

	// Step 2: bulkiness is the part of the children's total footprint not
	// already dominated by one or two outsized children. Threshold and
	// heap-popping per spec.md §4.6 step 2; the Open Question in spec.md
	// §9 ("a test suite cannot verify correctness here, only stability")
	// is resolved by weighting each child with its own rolled-up allocated
	// size (DESIGN.md).
	childrenBulkiness := sumUint64(bulkinessValues)
	threshold := childrenAllocated / 100
	h := &maxHeap{bulkinessValues}
	heap.Init(h)
	for h.Len() > 0 && (*h)[0] >= threshold {
		childrenBulkiness -= heap.Pop(h).(uint64)
	}

	// Step 3: the root absorbs the MFT zone's reserved-but-unused bytes
	// into its own allocated total.
	if depth == 0 {
		if reserved := p.idx.ReservedClusters(); reserved > 0 {
			childrenAllocated += uint64(reserved)
		}
	}

	own := p.ownDefaultStream(frs)

	mergedAdd, mergedIndex := p.mergeWOFStreams(frs)

	final := index.SizeInfo{
		Length:    own.Sizes.Length + childrenLength,
		Allocated: own.Sizes.Allocated + mergedAdd + childrenAllocated,
		Bulkiness: childrenBulkiness,
		TreeSize:  1 + childrenTreeSize,
	}
	p.idx.SetSizes(frs, own.streamIndex, final)
	for _, si := range mergedIndex {
		// Step 5: the WOF reparse-point stream's own allocation has been
		// folded into the default stream above; it now reports
		// length=0, allocated=0 on its own entry (spec.md §4.6 step 5,
		// scenario 4).
		p.idx.SetSizes(frs, si, index.SizeInfo{})
	}

	return subtree{
		length:    final.Length,
		allocated: final.Allocated,
		bulkiness: final.Bulkiness,
		treeSize:  final.TreeSize,
	}
}

type defaultStream struct {
	Sizes       index.SizeInfo
	streamIndex uint16
}

// ownDefaultStream returns the stream internal/index.GetSizes would treat
// as "the default" for frs: the unnamed $DATA attribute for a file, or
// (falling back, per internal/index's streamAtLocked) the single folded
// directory stream for a directory (spec.md §4.6 step 4: "the default
// data stream ... also absorbs children_size").
func (p *processor) ownDefaultStream(frs uint32) defaultStream {
	var out defaultStream
	found, isData := false, false
	p.idx.ForEachStream(frs, func(streamIndex uint16, s index.StreamInfo, name string) {
		if isData || name != "" {
			return
		}
		if !found || s.TypeNameID == ntfs.AttrData {
			out = defaultStream{Sizes: s.Sizes, streamIndex: streamIndex}
			found = true
			isData = s.TypeNameID == ntfs.AttrData
		}
	})
	if !found {
		// No stream at all yet (e.g. a directory only ever reached through
		// name/child links, with no $INDEX_ROOT/$BITMAP attribute parsed):
		// materialize the unnamed stream through the Builder so HasStream
		// and StreamCount are set correctly before SetSizes writes to it.
		p.builder.UpdateStream(frs, index.StreamUpdate{TypeNameID: 0, Name: "", Replace: true})
		return defaultStream{streamIndex: 0}
	}
	return out
}

// mergeWOFStreams sums the allocated size of every stream flagged
// MergedAllocated (the WofCompressedData reparse stream, spec.md §4.4
// edge cases) and returns that sum plus the stream indices to zero out
// (spec.md §4.6 step 5).
func (p *processor) mergeWOFStreams(frs uint32) (sum uint64, indices []uint16) {
	p.idx.ForEachStream(frs, func(streamIndex uint16, s index.StreamInfo, name string) {
		if s.MergedAllocated {
			sum += s.Sizes.Allocated
			indices = append(indices, streamIndex)
		}
	})
	return sum, indices
}

func sumUint64(vs []uint64) uint64 {
	var s uint64
	for _, v := range vs {
		s += v
	}
	return s
}

// maxHeap is a container/heap max-heap over uint64 bulkiness/allocated
// candidates (spec.md §4.6 step 2: "pop the scratch heap while the top is
// >= threshold").
type maxHeap []uint64

func (h maxHeap) Len() int            { return len(h) }
func (h maxHeap) Less(i, j int) bool  { return h[i] > h[j] }
func (h maxHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *maxHeap) Push(x interface{}) { *h = append(*h, x.(uint64)) }
func (h *maxHeap) Pop() interface{} {
	old := *h
	n := len(old)
	v := old[n-1]
	*h = old[:n-1]
	return v
}

var _ sort.Interface = maxHeap{}
