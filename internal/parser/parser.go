// Package parser decodes contiguous buffers of File Record Segments
// handed over by internal/scheduler and mutates an internal/index.Index
// through its Builder (spec.md §4.4).
package parser

import (
	"context"
	"encoding/binary"

	"github.com/cobaltfs/mftindex/internal/index"
	"github.com/cobaltfs/mftindex/internal/ntfs"
	"github.com/cobaltfs/mftindex/internal/volume"
)

// rootFRS is the NTFS root directory's well-known segment number; it is
// the one record allowed to appear as its own child (spec.md §4.4 edge
// cases).
const rootFRS = 5

// wellKnownBadClusFRS is $BadClus's well-known segment number; its $Bad
// stream reports InitializedSize rather than DataSize for length
// (spec.md §4.4 edge cases).
const wellKnownBadClusFRS = 8

// Parser decodes FRS buffers for one volume, threading sizes and reserved-
// zone accounting into a shared index.
type Parser struct {
	builder *index.Builder
	idx     *index.Index

	clusterSize  int
	frsSize      int
	mftZoneStart int64
	mftZoneEnd   int64
}

// New builds a Parser bound to idx. clusterSize/frsSize/mftZoneStart/
// mftZoneEnd come from the volume's Geometry (internal/volume).
func New(idx *index.Index, clusterSize, frsSize int, mftZoneStart, mftZoneEnd int64) *Parser {
	return &Parser{
		builder:      idx.Builder(),
		idx:          idx,
		clusterSize:  clusterSize,
		frsSize:      frsSize,
		mftZoneStart: mftZoneStart,
		mftZoneEnd:   mftZoneEnd,
	}
}

// ParseBuffer decodes every FRS-sized slot in buf. Its signature matches
// scheduler.DataHandler so a Parser can be passed directly as the
// scheduler's callback; skipBegin/skipEnd are accepted for that reason but
// unused here since the scheduler has already trimmed buf to the clusters
// actually worth reading.
func (p *Parser) ParseBuffer(ctx context.Context, virtualOffset int64, buf []byte, skipBegin, skipEnd int) error {
	if p.frsSize <= 0 {
		return nil
	}
	count := len(buf) / p.frsSize
	for i := 0; i < count; i++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		p.parseRecord(buf[i*p.frsSize : (i+1)*p.frsSize])
	}
	return nil
}

// parseRecord decodes a single FRS, silently skipping anything that fails
// magic/USA validation or lacks the InUse flag (spec.md §4.4 steps 1-3).
func (p *Parser) parseRecord(raw []byte) {
	hdr, err := ntfs.ParseRecordHeader(raw)
	if err != nil {
		return
	}
	if err := ntfs.ApplyFixup(raw, hdr.USAOffset, hdr.USACount); err != nil {
		return
	}
	if hdr.Flags&ntfs.FlagInUse == 0 {
		return
	}

	frs := hdr.SegmentNumber
	base := frs
	if hdr.BaseFileRecordSegment != 0 {
		base = uint32(hdr.BaseFileRecordSegment & 0x0000FFFFFFFFFFFF)
	}
	p.builder.EnsureRecord(base)

	isDirectory := hdr.Flags&ntfs.FlagDirectory != 0

	off := int(hdr.FirstAttributeOffset)
	limit := int(hdr.BytesInUse)
	if limit > len(raw) {
		limit = len(raw)
	}
	for off+4 <= limit {
		attrType := binary.LittleEndian.Uint32(raw[off : off+4])
		if attrType == ntfs.AttrEnd || attrType == 0 {
			break
		}
		ah, err := ntfs.ParseAttributeHeader(raw[off:])
		if err != nil || ah.Length == 0 {
			break
		}
		p.handleAttribute(base, isDirectory, ah, raw[off:])
		off += int(ah.Length)
	}
}

func (p *Parser) handleAttribute(base uint32, isDirectory bool, ah ntfs.AttributeHeader, attrBuf []byte) {
	switch ah.Type {
	case ntfs.AttrStandardInformation:
		p.handleStandardInformation(base, isDirectory, ah, attrBuf)
	case ntfs.AttrFileName:
		p.handleFileName(base, ah, attrBuf)
	case ntfs.AttrData, ntfs.AttrIndexRoot, ntfs.AttrIndexAllocation, ntfs.AttrBitmap:
		p.handleStreamAttribute(base, ah, attrBuf)
	}
}

func (p *Parser) handleStandardInformation(base uint32, isDirectory bool, ah ntfs.AttributeHeader, attrBuf []byte) {
	v := ah.ResidentValue(attrBuf)
	if v == nil {
		return
	}
	si, ok := ntfs.ParseStandardInformation(v)
	if !ok {
		return
	}
	p.builder.SetStandardInformation(base, si, isDirectory)
}

// handleFileName appends a name/child link for base, skipping DOS short
// names (spec.md §4.4 step 5: "skip DOS short names (Flags == 0x02)"). The
// newly appended name is always the head of its record's LIFO name chain,
// so its name_index at this moment is always 0 (internal/index §4.5);
// later hardlink insertions shift it, which is inherent to the reversed-
// insertion-order indexing scheme, not a defect introduced here.
func (p *Parser) handleFileName(base uint32, ah ntfs.AttributeHeader, attrBuf []byte) {
	v := ah.ResidentValue(attrBuf)
	if v == nil {
		return
	}
	fn, ok := ntfs.ParseFileName(v)
	if !ok || fn.NameType == ntfs.FileNameDOS {
		return
	}
	parent := fn.ParentFRSNumber()
	p.builder.AddName(base, parent, fn.Name)
	if parent != base || base == rootFRS {
		p.builder.AddChild(parent, base, 0)
	}
}

// handleStreamAttribute subtracts any reserved-zone overlap from the
// attribute's non-resident runs regardless of whether this header is the
// stream's primary segment, then — only for the primary segment — folds
// directory-shaped attributes into the synthetic directory stream and
// updates (or creates) the matching stream entry (spec.md §4.4 step 5).
func (p *Parser) handleStreamAttribute(base uint32, ah ntfs.AttributeHeader, attrBuf []byte) {
	if ah.IsNonResident {
		p.subtractReservedOverlap(ah, attrBuf)
	}

	primary := !ah.IsNonResident || ah.LowestVCN == 0
	if !primary {
		return
	}

	typeNameID := ah.Type
	name := ah.Name(attrBuf)
	if ah.Type == ntfs.AttrIndexRoot || ah.Type == ntfs.AttrIndexAllocation || ah.Type == ntfs.AttrBitmap {
		typeNameID = 0
		name = ""
	}

	isBadClusBad := base == wellKnownBadClusFRS && name == "$Bad"
	merged := name == "WofCompressedData"

	var length, allocated uint64
	if !ah.IsNonResident {
		length = uint64(ah.ValueLength)
	} else {
		length = ah.DataSize
		if isBadClusBad {
			length = ah.InitializedSize
		}
		switch {
		case ah.Flags&ntfs.AttrFlagCompressed != 0:
			allocated = ah.CompressedSize
		case isBadClusBad:
			allocated = ah.InitializedSize
		default:
			allocated = ah.AllocatedSize
		}
	}
	if merged {
		length = 0
	}

	p.builder.UpdateStream(base, index.StreamUpdate{
		TypeNameID:      typeNameID,
		Name:            name,
		LengthDelta:     length,
		AllocatedDelta:  allocated,
		Sparse:          ah.Flags&ntfs.AttrFlagSparse != 0,
		MergedAllocated: merged,
	})
}

// subtractReservedOverlap walks a non-resident attribute's mapping pairs
// and, for every allocated (non-sparse) run that intersects the MFT zone,
// atomically decrements the index's reserved-cluster counter by the
// clipped overlap (spec.md §4.4 step 5), computed by
// internal/volume.ReservedOverlap.
func (p *Parser) subtractReservedOverlap(ah ntfs.AttributeHeader, attrBuf []byte) {
	mp := ah.MappingPairs(attrBuf)
	if mp == nil {
		return
	}
	for _, r := range ntfs.DecodeMappingPairs(mp, ah.LowestVCN) {
		if r.Sparse || r.LCN == 0 {
			continue
		}
		ext := volume.Extent{VCN: r.VCN, Clusters: int64(r.Clusters), LCN: r.LCN}
		if overlap := volume.ReservedOverlap(ext, p.clusterSize, p.mftZoneStart, p.mftZoneEnd); overlap > 0 {
			p.idx.SubtractReservedOverlap(overlap)
		}
	}
}
