package index

import "github.com/cobaltfs/mftindex/internal/ntfs"

// NameInfo packs an offset into the shared names arena, a length, and
// whether the name is stored as ASCII bytes or UTF-16 wide chars
// (spec.md §3). Go gives us a plain struct instead of bit-packing into the
// offset's low bit; nothing here crosses a wire format.
type NameInfo struct {
	Offset uint32
	Length uint16
	ASCII  bool
}

// LinkInfo is one entry in a record's singly-linked list of names: which
// FRS it is filed under (its parent directory) and the packed name.
type LinkInfo struct {
	Parent   uint32
	Name     NameInfo
	NextLink uint32 // invalidIndex terminates the list
}

// ChildInfo is one entry in a global arena of parent->child links,
// referenced from the parent Record's FirstChild.
type ChildInfo struct {
	NextChild    uint32 // invalidIndex terminates the list
	RecordNumber uint32 // the child's FRS
	NameIndex    uint16 // which of the child's names this link corresponds to
}

// SizeInfo holds the aggregate fields the post-processor computes exactly
// once, after parsing completes (spec.md §3, §4.6).
type SizeInfo struct {
	Length    uint64
	Allocated uint64
	Bulkiness uint64
	TreeSize  uint64
}

// StreamInfo is one entry in a record's singly-linked list of streams.
type StreamInfo struct {
	Sizes      SizeInfo
	Name       NameInfo
	TypeNameID uint32 // ntfs.AttrData, ntfs.AttrIndexRoot folded to 0 ("directory"), ...
	Sparse     bool
	// MergedAllocated marks a stream (the WOF WofCompressedData stream)
	// whose allocation is folded into the default data stream during
	// post-processing rather than reported on its own (spec.md §4.6 step 4).
	MergedAllocated bool
	NextStream      uint32 // invalidIndex terminates the list
}

// Record is one File Record Segment's worth of index state (spec.md §3).
type Record struct {
	StdInfo ntfs.StandardInformation

	NameCount   uint16
	StreamCount uint16

	FirstChild uint32 // head index into the childInfos arena; invalidIndex if none

	// The first name/stream is stored in-place; subsequent entries are
	// pushed onto the shared arena and linked via FirstName.NextLink /
	// FirstStream.NextStream (spec.md §9: "Inline(Node) | Linked{head,
	// next}"). Insertion is LIFO: each new name/stream becomes the new
	// head, so name_index counts down from insertion order
	// (name_index = name_count - 1 - insertion_index).
	FirstName   LinkInfo
	HasName     bool
	FirstStream StreamInfo
	HasStream   bool

	Attributes uint32 // recomposed FileAttribute bits, directory flag folded in
}
