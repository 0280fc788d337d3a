package index

import (
	"sync"
	"unicode/utf16"

	"github.com/cespare/xxhash/v2"

	"github.com/cobaltfs/mftindex/internal/alloc"
	mfterrors "github.com/cobaltfs/mftindex/internal/errors"
)

// Arena slab pools sized for the linked-list node chains every store keeps
// (spec.md §4.5): most records carry only a handful of names/streams, so
// the small tiers absorb the bulk of appends without a new backing array.
var (
	linkInfoAlloc   = alloc.NewIndexArenaSlabAllocator[LinkInfo]()
	streamInfoAlloc = alloc.NewIndexArenaSlabAllocator[StreamInfo]()
	childInfoAlloc  = alloc.NewIndexArenaSlabAllocator[ChildInfo]()
)

// store holds the append-only arenas backing an Index. All mutation goes
// through mu, a single recursive-in-spirit mutex: in Go we cannot recurse a
// sync.Mutex, so builder methods that need to call each other take an
// unexported *Locked twin (reserveLocked, recordIndexLocked) instead of
// re-entering Lock (spec.md §4.4 edge
// cases: "a single recursive mutex serializes parser entry into index
// mutation").
type store struct {
	mu sync.Mutex

	recordsLookup []uint32 // FRS -> index into recordsData, invalidIndex if untouched
	recordsData   []Record

	names []byte // append-only byte arena; ASCII names raw, wide names UTF-16LE

	linkInfos   []LinkInfo
	streamInfos []StreamInfo
	childInfos  []ChildInfo

	finished    bool
	finishErr   error
	bytesRead   uint64
}

func newStore() *store {
	return &store{
		linkInfos:   linkInfoAlloc.Get(8),
		streamInfos: streamInfoAlloc.Get(8),
		childInfos:  childInfoAlloc.Get(8),
	}
}

// reserve grows recordsLookup so FRS numbers up to n-1 can be addressed
// without further reallocation, the way spec.md §4.5 describes
// Index::reserve(n).
func (s *store) reserve(n uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reserveLocked(n)
}

func (s *store) reserveLocked(n uint32) {
	if uint32(len(s.recordsLookup)) >= n {
		return
	}
	grown := make([]uint32, n)
	copy(grown, s.recordsLookup)
	for i := len(s.recordsLookup); i < len(grown); i++ {
		grown[i] = invalidIndex
	}
	s.recordsLookup = grown
}

// recordIndexLocked returns the recordsData index for frs, creating a new
// Record if this is the first time frs has been touched. Callers must hold
// s.mu.
func (s *store) recordIndexLocked(frs uint32) uint32 {
	s.reserveLocked(frs + 1)
	if idx := s.recordsLookup[frs]; idx != invalidIndex {
		return idx
	}
	s.recordsData = append(s.recordsData, Record{
		FirstChild: invalidIndex,
	})
	idx := uint32(len(s.recordsData) - 1)
	s.recordsLookup[frs] = idx
	return idx
}

// appendName writes name into the arena and returns its NameInfo. ascii
// names are packed as raw bytes; non-ASCII names as UTF-16LE pairs,
// matching spec.md §3's NameInfo packing.
func (s *store) appendName(name string, ascii bool) NameInfo {
	start := uint32(len(s.names))
	length := len(name)
	if ascii {
		s.names = append(s.names, []byte(name)...)
	} else {
		for _, r := range name {
			lo, hi := utf16Pair(r)
			s.names = append(s.names, lo, hi)
		}
		length = (len(s.names) - int(start)) / 2
	}
	return NameInfo{Offset: start, Length: uint16(length), ASCII: ascii}
}

func utf16Pair(r rune) (byte, byte) {
	// BMP-only encoding is sufficient for file names; surrogate pairs are
	// vanishingly rare and fall back to the replacement char rather than
	// corrupting the arena.
	if r > 0xFFFF {
		r = 0xFFFD
	}
	v := uint16(r)
	return byte(v), byte(v >> 8)
}

func (s *store) readName(n NameInfo) string {
	data := s.names[n.Offset : n.Offset+uint32(nameByteLen(n))]
	if n.ASCII {
		return string(data)
	}
	units := make([]uint16, n.Length)
	for i := range units {
		units[i] = uint16(data[i*2]) | uint16(data[i*2+1])<<8
	}
	return string(utf16.Decode(units))
}

func nameByteLen(n NameInfo) int {
	if n.ASCII {
		return int(n.Length)
	}
	return int(n.Length) * 2
}

// checksum computes a sealed-index fingerprint over the record and name
// arenas, the way the teacher's TrigramIndex keys its search cache with
// xxhash (SPEC_FULL.md §3).
func (s *store) checksum() uint64 {
	h := xxhash.New()
	_, _ = h.Write(s.names)
	for _, r := range s.recordsData {
		var b [4]byte
		b[0] = byte(r.NameCount)
		b[1] = byte(r.NameCount >> 8)
		b[2] = byte(r.StreamCount)
		b[3] = byte(r.StreamCount >> 8)
		_, _ = h.Write(b[:])
	}
	return h.Sum64()
}

func (s *store) setFinished(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finished = true
	s.finishErr = err
}

func (s *store) isFinished() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.finished, s.finishErr
}

// guardMutableLocked returns a CancelledError once the index is sealed and
// nil before that. No Builder method calls it, so mutation after sealing
// is not rejected.
func (s *store) guardMutableLocked() error {
	if s.finished {
		return mfterrors.NewCancelledError("index already sealed")
	}
	return nil
}
