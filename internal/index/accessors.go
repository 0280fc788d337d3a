package index

import "github.com/cobaltfs/mftindex/internal/ntfs"

// recordAtLocked resolves frs to its Record. Callers must hold idx.s.mu.
func (idx *Index) recordAtLocked(frs uint32) (*Record, bool) {
	if int(frs) >= len(idx.s.recordsLookup) {
		return nil, false
	}
	ri := idx.s.recordsLookup[frs]
	if ri == invalidIndex {
		return nil, false
	}
	return &idx.s.recordsData[ri], true
}

// RecordExists reports whether frs has been touched by the parser.
func (idx *Index) RecordExists(frs uint32) bool {
	idx.s.mu.Lock()
	defer idx.s.mu.Unlock()
	_, ok := idx.recordAtLocked(frs)
	return ok
}

// nameAtLocked walks the name chain for rec and returns the nameIndex-th
// entry, where nameIndex counts down from insertion order
// (name_index = name_count - 1 - insertion_index, spec.md §4.5) — index 0
// is the most-recently-inserted name, which is also the head of the list,
// so a direct walk from FirstName already yields entries in that order.
func (idx *Index) nameAtLocked(rec *Record, nameIndex uint16) (LinkInfo, bool) {
	if !rec.HasName {
		return LinkInfo{}, false
	}
	if nameIndex == NoIndex || nameIndex == 0 {
		return rec.FirstName, true
	}
	cur := rec.FirstName.NextLink
	for i := uint16(1); cur != invalidIndex; i++ {
		node := idx.s.linkInfos[cur]
		if i == nameIndex {
			return node, true
		}
		cur = node.NextLink
	}
	return LinkInfo{}, false
}

// streamAtLocked walks the stream chain the same way nameAtLocked walks
// names. StreamIndex == NoIndex selects the default ($DATA, empty name)
// stream (spec.md §3: "all-ones means default data stream").
func (idx *Index) streamAtLocked(rec *Record, streamIndex uint16) (StreamInfo, bool) {
	if !rec.HasStream {
		return StreamInfo{}, false
	}
	if streamIndex == NoIndex {
		if rec.FirstStream.TypeNameID == ntfs.AttrData && rec.FirstStream.Name.Length == 0 {
			return rec.FirstStream, true
		}
		cur := rec.FirstStream.NextStream
		for cur != invalidIndex {
			node := idx.s.streamInfos[cur]
			if node.TypeNameID == ntfs.AttrData && node.Name.Length == 0 {
				return node, true
			}
			cur = node.NextStream
		}
		// No explicit default stream recorded (e.g. directory-only record):
		// fall back to the head entry.
		return rec.FirstStream, true
	}
	if streamIndex == 0 {
		return rec.FirstStream, true
	}
	cur := rec.FirstStream.NextStream
	for i := uint16(1); cur != invalidIndex; i++ {
		node := idx.s.streamInfos[cur]
		if i == streamIndex {
			return node, true
		}
		cur = node.NextStream
	}
	return StreamInfo{}, false
}

// ForEachName invokes fn for every LinkInfo on frs's chain, in head-first
// (LIFO / reverse-insertion) order, passing the name_index each would be
// addressed at.
func (idx *Index) ForEachName(frs uint32, fn func(nameIndex uint16, link LinkInfo, name string)) {
	idx.s.mu.Lock()
	defer idx.s.mu.Unlock()
	rec, ok := idx.recordAtLocked(frs)
	if !ok || !rec.HasName {
		return
	}
	fn(0, rec.FirstName, idx.s.readName(rec.FirstName.Name))
	cur := rec.FirstName.NextLink
	i := uint16(1)
	for cur != invalidIndex {
		node := idx.s.linkInfos[cur]
		fn(i, node, idx.s.readName(node.Name))
		cur = node.NextLink
		i++
	}
}

// ForEachStream invokes fn for every StreamInfo on frs's chain.
func (idx *Index) ForEachStream(frs uint32, fn func(streamIndex uint16, s StreamInfo, name string)) {
	idx.s.mu.Lock()
	defer idx.s.mu.Unlock()
	rec, ok := idx.recordAtLocked(frs)
	if !ok || !rec.HasStream {
		return
	}
	fn(0, rec.FirstStream, idx.s.readName(rec.FirstStream.Name))
	cur := rec.FirstStream.NextStream
	i := uint16(1)
	for cur != invalidIndex {
		node := idx.s.streamInfos[cur]
		fn(i, node, idx.s.readName(node.Name))
		cur = node.NextStream
		i++
	}
}

// ForEachChild invokes fn for every ChildInfo on parentFRS's chain, in
// insertion order.
func (idx *Index) ForEachChild(parentFRS uint32, fn func(c ChildInfo)) {
	idx.s.mu.Lock()
	defer idx.s.mu.Unlock()
	rec, ok := idx.recordAtLocked(parentFRS)
	if !ok {
		return
	}
	cur := rec.FirstChild
	for cur != invalidIndex {
		node := idx.s.childInfos[cur]
		fn(node)
		cur = node.NextChild
	}
}

// SetSizes overwrites the aggregate SizeInfo for a stream. Called only by
// internal/aggregate's post-processor, which owns the arenas exclusively
// once parsing has sealed the index.
func (idx *Index) SetSizes(frs uint32, streamIndex uint16, sizes SizeInfo) {
	idx.s.mu.Lock()
	defer idx.s.mu.Unlock()
	rec, ok := idx.recordAtLocked(frs)
	if !ok {
		return
	}
	if streamIndex == 0 {
		rec.FirstStream.Sizes = sizes
		return
	}
	cur := rec.FirstStream.NextStream
	for i := uint16(1); cur != invalidIndex; i++ {
		if i == streamIndex {
			idx.s.streamInfos[cur].Sizes = sizes
			return
		}
		cur = idx.s.streamInfos[cur].NextStream
	}
}

// NameCount returns the number of names recorded for frs.
func (idx *Index) NameCount(frs uint32) uint16 {
	idx.s.mu.Lock()
	defer idx.s.mu.Unlock()
	rec, ok := idx.recordAtLocked(frs)
	if !ok {
		return 0
	}
	return rec.NameCount
}

// StreamCount returns the number of streams recorded for frs.
func (idx *Index) StreamCount(frs uint32) uint16 {
	idx.s.mu.Lock()
	defer idx.s.mu.Unlock()
	rec, ok := idx.recordAtLocked(frs)
	if !ok {
		return 0
	}
	return rec.StreamCount
}

// Attributes returns the recomposed FileAttribute bits for frs.
func (idx *Index) Attributes(frs uint32) (uint32, bool) {
	idx.s.mu.Lock()
	defer idx.s.mu.Unlock()
	rec, ok := idx.recordAtLocked(frs)
	if !ok {
		return 0, false
	}
	return rec.Attributes, true
}
