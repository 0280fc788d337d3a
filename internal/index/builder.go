package index

import "github.com/cobaltfs/mftindex/internal/ntfs"

// Builder is the mutation surface the parser drives while decoding FRS
// buffers (internal/parser). It exists as a distinct type from Index so
// the read-only query surface (Matches, accessors) cannot accidentally be
// called mid-parse holding the wrong lock ordering.
type Builder struct {
	s *store
}

func newBuilder(s *store) *Builder { return &Builder{s: s} }

// EnsureRecord returns the (possibly newly created) record index for frs
// and initializes its StandardInformation and Attributes if not already
// present. Safe to call repeatedly for the same FRS.
func (b *Builder) EnsureRecord(frs uint32) uint32 {
	b.s.mu.Lock()
	defer b.s.mu.Unlock()
	return b.s.recordIndexLocked(frs)
}

// SetStandardInformation stores stdinfo and folds the FRS header's
// directory flag into the record's recomposed attribute bits
// (spec.md §4.4 step 5).
func (b *Builder) SetStandardInformation(frs uint32, stdinfo ntfs.StandardInformation, isDirectory bool) {
	b.s.mu.Lock()
	defer b.s.mu.Unlock()
	idx := b.s.recordIndexLocked(frs)
	rec := &b.s.recordsData[idx]
	rec.StdInfo = stdinfo
	rec.Attributes = stdinfo.FileAttributes
	if isDirectory {
		rec.Attributes |= ntfs.FileAttrDirectory
	}
}

// AddName appends a (parent, name) link to frs's name chain. The first
// call becomes the in-place FirstName; later calls push onto the shared
// linkInfos arena and become the new head (LIFO, per spec.md §4.5).
// DOS short names (handled by the parser skipping Flags==0x02) never reach
// here.
func (b *Builder) AddName(frs, parent uint32, name string) NameInfo {
	b.s.mu.Lock()
	defer b.s.mu.Unlock()

	idx := b.s.recordIndexLocked(frs)
	info := b.s.appendName(name, ntfs.IsASCII(name))
	rec := &b.s.recordsData[idx]

	if !rec.HasName {
		rec.FirstName = LinkInfo{Parent: parent, Name: info, NextLink: invalidIndex}
		rec.HasName = true
	} else {
		prevHeadAsLink := rec.FirstName
		headLinkIdx := uint32(len(b.s.linkInfos))
		b.s.linkInfos = append(b.s.linkInfos, prevHeadAsLink)
		rec.FirstName = LinkInfo{Parent: parent, Name: info, NextLink: headLinkIdx}
	}
	rec.NameCount++
	return info
}

// AddChild appends (recordNumber, nameIndex) to parentFRS's child chain,
// in insertion order (spec.md §4.4: "order within a directory is insertion
// order" — unlike the name/stream chains, which are LIFO).
func (b *Builder) AddChild(parentFRS, childFRS uint32, nameIndex uint16) {
	b.s.mu.Lock()
	defer b.s.mu.Unlock()

	parentIdx := b.s.recordIndexLocked(parentFRS)
	parent := &b.s.recordsData[parentIdx]

	newChildIdx := uint32(len(b.s.childInfos))
	b.s.childInfos = append(b.s.childInfos, ChildInfo{
		NextChild:    invalidIndex,
		RecordNumber: childFRS,
		NameIndex:    nameIndex,
	})

	if parent.FirstChild == invalidIndex {
		parent.FirstChild = newChildIdx
		return
	}
	// Walk to the tail so children iterate in insertion order.
	cur := parent.FirstChild
	for b.s.childInfos[cur].NextChild != invalidIndex {
		cur = b.s.childInfos[cur].NextChild
	}
	b.s.childInfos[cur].NextChild = newChildIdx
}

// StreamUpdate describes one (type, name) stream's contribution, as
// accumulated by the parser while walking non-resident/resident $DATA-like
// attributes (spec.md §4.4 step 5, "Stream folding").
type StreamUpdate struct {
	TypeNameID      uint32
	Name            string
	LengthDelta     uint64
	AllocatedDelta  uint64
	Sparse          bool
	MergedAllocated bool
	// Replace overwrites the stream's Length and Allocated with the deltas
	// instead of adding to them.
	Replace bool
}

// UpdateStream finds the existing (TypeNameID, Name) stream on frs's chain
// and accumulates into it, or pushes a new stream node. Directory-shaped
// attributes ($I30 index root/allocation/bitmap) are expected to already
// be folded to TypeNameID==0 by the caller before this is invoked.
func (b *Builder) UpdateStream(frs uint32, u StreamUpdate) {
	b.s.mu.Lock()
	defer b.s.mu.Unlock()

	idx := b.s.recordIndexLocked(frs)
	rec := &b.s.recordsData[idx]

	if target := b.findStreamLocked(rec, u.TypeNameID, u.Name); target != nil {
		applyStreamUpdate(target, u)
		return
	}

	info := NameInfo{}
	if u.Name != "" {
		info = b.s.appendName(u.Name, ntfs.IsASCII(u.Name))
	}
	node := StreamInfo{Name: info, TypeNameID: u.TypeNameID, NextStream: invalidIndex}
	applyStreamUpdate(&node, u)

	if !rec.HasStream {
		rec.FirstStream = node
		rec.HasStream = true
	} else {
		prevHead := rec.FirstStream
		headIdx := uint32(len(b.s.streamInfos))
		b.s.streamInfos = append(b.s.streamInfos, prevHead)
		node.NextStream = headIdx
		rec.FirstStream = node
	}
	rec.StreamCount++
}

func applyStreamUpdate(target *StreamInfo, u StreamUpdate) {
	if u.Replace {
		target.Sizes.Length = u.LengthDelta
		target.Sizes.Allocated = u.AllocatedDelta
	} else {
		target.Sizes.Length += u.LengthDelta
		target.Sizes.Allocated += u.AllocatedDelta
	}
	if u.Sparse {
		target.Sparse = true
	}
	if u.MergedAllocated {
		target.MergedAllocated = true
	}
}

func (b *Builder) findStreamLocked(rec *Record, typeNameID uint32, name string) *StreamInfo {
	if !rec.HasStream {
		return nil
	}
	if rec.FirstStream.TypeNameID == typeNameID && b.s.readName(rec.FirstStream.Name) == name {
		return &rec.FirstStream
	}
	cur := rec.FirstStream.NextStream
	for cur != invalidIndex {
		node := &b.s.streamInfos[cur]
		if node.TypeNameID == typeNameID && b.s.readName(node.Name) == name {
			return node
		}
		cur = node.NextStream
	}
	return nil
}

// Index.SubtractReservedOverlap is called by the parser when a non-resident
// run intersects the MFT zone (spec.md §4.4 step 5); it decrements reserved
// clusters by the clipped overlap. Bookkeeping itself lives on Index, not
// the builder, since it's a volume-wide counter rather than per-record.
