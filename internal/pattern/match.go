package pattern

import (
	"io"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/bmatcuk/doublestar/v4"
)

// IsMatch reports whether corpus satisfies m, matching the signature
// internal/index.Matcher and internal/traverse expect (spec.md §4.7:
// "is_match(corpus, length, *high_water_mark?) -> bool").
func (m *Matcher) IsMatch(corpus string) bool {
	matched, _ := m.IsMatchTracking(corpus)
	return matched
}

// IsMatchTracking matches corpus and also returns the high-water mark: the
// furthest byte offset into corpus the matcher needed to examine to reach
// its verdict. Traversal uses this to prune a subtree when the examined
// prefix already proves no descendant can match (spec.md §4.7, §4.8).
func (m *Matcher) IsMatchTracking(corpus string) (matched bool, highWaterMark int) {
	switch m.kind {
	case Anything:
		return true, 0

	case Verbatim:
		return m.matchVerbatim(corpus)

	case Regex:
		return regexTracking(m.regex, corpus)

	case Glob, Globstar:
		if m.regex != nil {
			return regexTracking(m.regex, corpus)
		}
		ok, err := doublestar.Match(m.globPattern, corpus)
		if err != nil || ok {
			return ok && err == nil, len(corpus)
		}
		// doublestar itself has no way to report how much of corpus it
		// needed to refute a match; fall back to the lowered tracking
		// regex (pattern.go) purely to learn the high-water mark, so
		// traversal can still prune subtrees under an unmatched prefix
		// (spec.md §4.7, §4.8 step 3) the way the Verbatim and Regex
		// paths already do.
		if m.trackRegex != nil {
			_, highWater := regexTracking(m.trackRegex, corpus)
			return false, highWater
		}
		return false, len(corpus)
	}
	return false, len(corpus)
}

func (m *Matcher) matchVerbatim(corpus string) (bool, int) {
	r := newFoldingReader(corpus, m.caseInsensitive)
	needle := m.verbatimNeedle
	if m.caseInsensitive {
		needle = strings.ToLower(needle)
	}

	switch {
	case m.unanchoredBegin && m.unanchoredEnd:
		idx := horspoolSearch(r.folded, needle)
		// Walk the folded corpus once so the high-water mark reflects
		// what the search actually examined (the tail, in the worst case).
		for i := 0; i < r.len(); i++ {
			r.at(i)
		}
		return idx >= 0, r.HighWaterMark()

	case m.unanchoredEnd: // prefix match
		if len(needle) > r.len() {
			return false, r.len()
		}
		for i := 0; i < len(needle); i++ {
			if r.at(i) != needle[i] {
				return false, r.HighWaterMark()
			}
		}
		return true, r.HighWaterMark()

	case m.unanchoredBegin: // suffix match
		if len(needle) > r.len() {
			return false, r.len()
		}
		offset := r.len() - len(needle)
		for i := 0; i < len(needle); i++ {
			if r.at(offset+i) != needle[i] {
				return false, r.HighWaterMark()
			}
		}
		return true, r.HighWaterMark()

	default: // full match
		if len(needle) != r.len() {
			return false, r.len()
		}
		for i := 0; i < r.len(); i++ {
			if r.at(i) != needle[i] {
				return false, r.HighWaterMark()
			}
		}
		return true, r.HighWaterMark()
	}
}

// Kind returns the (possibly lowered) kind this matcher was ultimately
// compiled to.
func (m *Matcher) Kind() Kind { return m.kind }

// IsNameOnly reports whether this pattern needs only the leaf name to
// evaluate (no "\", ":", or "**" component) — spec.md §4.8's name-only
// traversal mode decision.
func (m *Matcher) IsNameOnly() bool {
	if m.kind == Anything {
		return true
	}
	raw := m.originalRaw
	return !strings.ContainsAny(raw, `\:`) && !strings.Contains(raw, "**")
}

// regexTracking runs re against corpus through a tracking RuneReader
// instead of FindStringIndex, so a failed match reports how far the
// regexp engine actually advanced before every live thread died, rather
// than always claiming the whole corpus was examined (spec.md §4.7's
// tracking iterator, §4.8 step 3's high-water-mark pruning). Go's regexp
// package runs an unanchored search as a single forward Thompson-NFA
// pass — it starts a new thread at each position but never rewinds — so a
// RuneReader it reads from is read strictly left to right regardless of
// anchoring, making byte-position tracking on that reader meaningful.
func regexTracking(re *regexp.Regexp, corpus string) (bool, int) {
	r := &trackingRuneReader{s: corpus}
	loc := re.FindReaderIndex(r)
	if loc == nil {
		return false, r.highWater
	}
	return true, loc[1]
}

// trackingRuneReader is an io.RuneReader over a string that records the
// furthest byte offset read, so a caller driving a regexp match through it
// can learn how much of the string the engine actually needed.
type trackingRuneReader struct {
	s         string
	pos       int
	highWater int
}

func (r *trackingRuneReader) ReadRune() (rune, int, error) {
	if r.pos >= len(r.s) {
		return 0, 0, io.EOF
	}
	ch, size := utf8.DecodeRuneInString(r.s[r.pos:])
	r.pos += size
	if r.pos > r.highWater {
		r.highWater = r.pos
	}
	return ch, size, nil
}
