// Package index is the append-only, in-memory store of everything the
// parser discovers about a volume: one Record per touched File Record
// Segment, singly-linked lists of names/streams/children living in shared
// arenas, and a public Index facade queried by the traversal driver
// (spec.md §4.5, §6).
package index

// Key identifies an observable entity at (FRS, name index, stream index),
// matching spec.md §3's bit layout conceptually (we keep the three fields
// separate rather than packing them into one machine word — Go structs
// make that distinction free, and nothing here is serialized to disk).
type Key struct {
	FRS         uint32
	NameIndex   uint16 // NoIndex means "the first/only name"
	StreamIndex uint16 // NoIndex means "the default data stream"
}

// NoIndex marks "unspecified" for NameIndex/StreamIndex, the Go analogue of
// spec.md's all-ones sentinel.
const NoIndex = ^uint16(0)

// invalidIndex is the sentinel stored in next-pointers for "no more nodes",
// matching the all-ones convention used throughout the index arenas.
const invalidIndex = ^uint32(0)
