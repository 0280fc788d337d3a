// Package traverse drives a structured walk of an internal/index.Index,
// evaluating a compiled internal/pattern.Matcher against each visited
// entity and reporting matches through a user callback (spec.md §4.8).
// It depends on internal/index and internal/pattern but neither of those
// packages depends back on it; internal/index exposes the narrow Matcher
// and MatchCallback shapes traverse needs so no import cycle exists.
package traverse

import (
	"strings"

	mfterrors "github.com/cobaltfs/mftindex/internal/errors"
	"github.com/cobaltfs/mftindex/internal/index"
)

// rootFRS is the NTFS root directory's well-known segment number.
const rootFRS = 5

// shellSyntheticChildFRS is the well-known segment number the original
// tool substitutes with rootFRS when it appears as a direct child of the
// root, surfacing the shell's virtual root a second time
// (spec.md §4.8 step 2, §9 Open Questions).
const shellSyntheticChildFRS = 6

// streamTypeNames maps a StreamInfo.TypeNameID to the display name used
// in a path's ":name:type" suffix for alternate/attribute streams
// (SPEC_FULL.md §6, grounded in spec.md §6's attribute type list).
var streamTypeNames = map[uint32]string{
	0x10: "$STANDARD_INFORMATION",
	0x20: "$ATTRIBUTE_LIST",
	0x30: "$FILE_NAME",
	0x40: "$OBJECT_ID",
	0x80: "$DATA",
	0x90: "$INDEX_ROOT",
	0xA0: "$INDEX_ALLOCATION",
	0xB0: "$BITMAP",
	0xC0: "$REPARSE_POINT",
}

// nameOnlyHinter is implemented by internal/pattern.Matcher; traverse uses
// it to pick the zero-copy name-only mode over path-buffered traversal
// (spec.md §4.8).
type nameOnlyHinter interface {
	IsNameOnly() bool
}

// trackingMatcher is implemented by internal/pattern.Matcher; traverse
// uses the high-water mark it reports to prune subtrees that cannot
// possibly match (spec.md §4.7, §4.8 step 3).
type trackingMatcher interface {
	IsMatchTracking(corpus string) (matched bool, highWaterMark int)
}

// Options controls how Walk drives the index.
type Options struct {
	// IncludeAttributes opts into visiting non-default streams (alternate
	// data streams, the folded directory stream's siblings); off by
	// default (spec.md §4.8 step 1: "Skip attributes unless the caller
	// opted in").
	IncludeAttributes bool
	// Reverse requests deepest-first emission order, used by GUI
	// depth-shift sorting; the default is insertion order (spec.md §4.8).
	Reverse bool
	// Cancelled is polled at the top of every loop iteration; once it
	// returns true, Walk stops and returns a CancelledError
	// (spec.md §4.8, §7).
	Cancelled func() bool
}

type result struct {
	name  string
	ascii bool
	key   index.Key
	depth int
}

// Walk performs the structured traversal described in spec.md §4.8,
// calling cb once per matching (FRS, name, stream) entity. A callback
// return > 0 recurses into that entity's children; == 0 and < 0 both skip
// its children. Separately, a stream that fails to match with a high-water
// mark short of the corpus length also skips the children (step 3).
func Walk(idx *index.Index, m index.Matcher, opts Options, cb index.MatchCallback) error {
	nameOnly := false
	if h, ok := m.(nameOnlyHinter); ok {
		nameOnly = h.IsNameOnly()
	}

	w := &walker{idx: idx, matcher: m, opts: opts, nameOnly: nameOnly}
	if opts.Reverse {
		w.visit(rootFRS, index.NoIndex, 0, "", true)
		if w.err != nil {
			return w.err
		}
		for i := len(w.results) - 1; i >= 0; i-- {
			r := w.results[i]
			cb(r.name, r.ascii, r.key, r.depth)
		}
		return nil
	}

	w.cb = cb
	w.visit(rootFRS, index.NoIndex, 0, "", false)
	return w.err
}

type walker struct {
	idx      *index.Index
	matcher  index.Matcher
	opts     Options
	nameOnly bool

	cb      index.MatchCallback
	results []result
	err     error
}

// visit walks frs and its descendants. nameIndex identifies which of
// frs's (possibly several hardlink) names this visit arrived through.
// path is the already-built path prefix (ignored entirely in name-only
// mode, where the matcher only ever sees the leaf name — spec.md §4.8:
// "The match string is a direct pointer into the names arena"). collect,
// when true, appends to w.results instead of calling w.cb directly, for
// Options.Reverse.
func (w *walker) visit(frs uint32, nameIndex uint16, depth int, path string, collect bool) {
	if w.err != nil {
		return
	}
	if w.opts.Cancelled != nil && w.opts.Cancelled() {
		w.err = mfterrors.NewCancelledError("traversal cancelled")
		return
	}

	recurseChildren := true

	if frs != rootFRS {
		// spec.md §4.8 step 1: "For the root record, suppress the root's
		// directory-stream name" — the root itself never produces a
		// callback, only its descendants do.
		recurseChildren = w.emitStreams(frs, nameIndex, depth, path, collect)
	}
	if !recurseChildren {
		return
	}

	w.idx.ForEachChild(frs, func(c index.ChildInfo) {
		if w.err != nil {
			return
		}
		if w.opts.Cancelled != nil && w.opts.Cancelled() {
			w.err = mfterrors.NewCancelledError("traversal cancelled")
			return
		}
		if c.RecordNumber == frs {
			// The documented FRS-5 self-loop (spec.md §4.4, §8): never
			// recurse into a record via itself.
			return
		}

		childFRS := c.RecordNumber
		if depth == 0 && childFRS == shellSyntheticChildFRS {
			// spec.md §4.8 step 2: "if record_number == 6 at depth 1,
			// substitute FRS 5 and restart the iteration for that child
			// slot (so the shell's virtual root appears)."
			childFRS = rootFRS
		}

		name, _, ok := w.leafName(childFRS, c.NameIndex)
		if !ok {
			return
		}
		childPath := name
		if !w.nameOnly && path != "" {
			childPath = path + `\` + name
		}
		w.visit(childFRS, c.NameIndex, depth+1, childPath, collect)
	})
}

// leafName reads the display name for frs's nameIndex-th link.
func (w *walker) leafName(frs uint32, nameIndex uint16) (name string, ascii bool, ok bool) {
	found := false
	var out string
	var isAscii bool
	w.idx.ForEachName(frs, func(idx uint16, link index.LinkInfo, n string) {
		if found || idx != nameIndex {
			return
		}
		out = n
		isAscii = link.Name.ASCII
		found = true
	})
	return out, isAscii, found
}

// emitStreams calls the callback (or appends to w.results) once per
// visible stream on frs, then reports whether the caller wants to recurse
// into frs's children (spec.md §4.8 step 2: "If the callback's return is
// positive ... recurse").
func (w *walker) emitStreams(frs uint32, nameIndex uint16, depth int, path string, collect bool) bool {
	wantsRecurse := true
	sawCallback := false

	w.idx.ForEachStream(frs, func(streamIndex uint16, s index.StreamInfo, streamName string) {
		if w.err != nil {
			return
		}
		isAttribute := s.TypeNameID != 0 && s.TypeNameID != 0x80
		if isAttribute && !w.opts.IncludeAttributes {
			return
		}

		corpus := path
		if w.nameOnly {
			corpus = lastComponent(path)
		}
		if streamName != "" {
			suffix := ":" + streamName + ":" + streamTypeName(s.TypeNameID)
			corpus += suffix
		}

		matched, highWater := w.matchTracking(corpus)
		if !matched {
			if isPruned(corpus, highWater) {
				wantsRecurse = false
			}
			return
		}

		sawCallback = true
		key := index.Key{FRS: frs, NameIndex: nameIndex, StreamIndex: streamIndex}
		ret := w.report(corpus, isASCIIName(corpus), key, depth, collect)
		if ret <= 0 {
			wantsRecurse = wantsRecurse && ret > 0
		}
	})

	if !sawCallback {
		// No stream matched (or frs has no streams at all, e.g. a bare
		// directory record still being assembled); still recurse unless
		// pruning proved the whole subtree can't match.
		return true
	}
	return wantsRecurse
}

func (w *walker) report(name string, ascii bool, key index.Key, depth int, collect bool) int {
	if collect {
		w.results = append(w.results, result{name: name, ascii: ascii, key: key, depth: depth})
		return 1
	}
	return w.cb(name, ascii, key, depth)
}

func (w *walker) matchTracking(corpus string) (bool, int) {
	if tm, ok := w.matcher.(trackingMatcher); ok {
		return tm.IsMatchTracking(corpus)
	}
	return w.matcher.IsMatch(corpus), len(corpus)
}

// isPruned reports whether a failed match's high-water mark proves no
// descendant of this path can match either (spec.md §4.8 step 3): the
// matcher examined less than the full corpus and still refuted it, which
// for a prefix-anchored pattern means appending more components can never
// help.
func isPruned(corpus string, highWater int) bool {
	return highWater < len(corpus)
}

func lastComponent(path string) string {
	if i := strings.LastIndexByte(path, '\\'); i >= 0 {
		return path[i+1:]
	}
	return path
}

func isASCIIName(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= 0x80 {
			return false
		}
	}
	return true
}

func streamTypeName(typeNameID uint32) string {
	if n, ok := streamTypeNames[typeNameID]; ok {
		return n
	}
	return "$DATA"
}
