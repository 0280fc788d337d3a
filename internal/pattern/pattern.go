// Package pattern compiles user search patterns (verbatim, glob, globstar,
// regex) into a uniform matcher (spec.md §4.7). Glob and globstar patterns
// are validated/matched through doublestar where possible and otherwise
// lowered to regex; verbatim patterns use a Boyer-Moore-Horspool substring
// search. A case-folding tracking reader supports early-exit pruning by
// recording the high-water mark of the corpus examined.
package pattern

import (
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/cespare/xxhash/v2"
)

// Kind is the pattern syntax requested by the caller (spec.md §4.7).
type Kind int

const (
	// Anything always matches, regardless of corpus.
	Anything Kind = iota
	// Verbatim matches a literal substring/prefix/suffix/full string
	// depending on anchoring.
	Verbatim
	// Glob is a single-component wildcard pattern: "*" does not cross "\".
	Glob
	// Globstar allows "**" to cross "\" separators.
	Globstar
	// Regex is a user-supplied regular expression, used as-is.
	Regex
)

// Options controls pattern compilation defaults (spec.md §4.7, wired to
// internal/config.Pattern).
type Options struct {
	CaseInsensitive      bool
	MinWildcardThreshold int
}

// Matcher is a compiled, immutable pattern (spec.md §3 lifecycle: "Pattern
// matcher: created per search, immutable thereafter").
type Matcher struct {
	kind Kind
	// raw is the pattern text as it exists at this matcher's compiled
	// kind (e.g. the verbatim body after anchors are stripped); originalRaw
	// is the text exactly as the caller supplied it, used only to decide
	// name-only vs path-buffered traversal mode (spec.md §4.8).
	raw             string
	originalRaw     string
	caseInsensitive bool

	unanchoredBegin bool
	unanchoredEnd   bool

	verbatimNeedle string // for Verbatim
	regex          *regexp.Regexp
	globPattern    string // usable directly via doublestar when no folding is needed
	// trackRegex is the same pattern lowered to a regex, kept alongside
	// globPattern purely so IsMatchTracking can compute a genuine
	// high-water mark on a failed match (doublestar.Match itself has no
	// partial-match/position-tracking API); the match verdict still comes
	// from doublestar when globPattern is set (match.go).
	trackRegex *regexp.Regexp
}

// cache mirrors the teacher's TrigramIndex.searchCache: compiled patterns
// keyed by an xxhash of their (kind, raw, options) tuple, so repeated
// searches with the same pattern string skip recompilation.
var (
	cacheMu sync.Mutex
	cache   = map[uint64]*Matcher{}
)

func cacheKey(kind Kind, raw string, opts Options) uint64 {
	h := xxhash.New()
	fmt.Fprintf(h, "%d|%s|%v|%d", kind, raw, opts.CaseInsensitive, opts.MinWildcardThreshold)
	return h.Sum64()
}

// Compile builds a Matcher for raw under the requested kind, applying the
// lowering pipeline described in spec.md §4.7.
func Compile(kind Kind, raw string, opts Options) (*Matcher, error) {
	key := cacheKey(kind, raw, opts)
	cacheMu.Lock()
	if m, ok := cache[key]; ok {
		cacheMu.Unlock()
		return m, nil
	}
	cacheMu.Unlock()

	m, err := compile(kind, raw, opts)
	if err != nil {
		return nil, err
	}

	cacheMu.Lock()
	cache[key] = m
	cacheMu.Unlock()
	return m, nil
}

func compile(kind Kind, raw string, opts Options) (*Matcher, error) {
	if kind == Anything {
		return &Matcher{kind: Anything, raw: raw, originalRaw: raw, caseInsensitive: opts.CaseInsensitive}, nil
	}

	if kind == Regex {
		expr := raw
		if opts.CaseInsensitive {
			expr = "(?i)" + expr
		}
		re, err := regexp.Compile(expr)
		if err != nil {
			return nil, fmt.Errorf("pattern: invalid regex %q: %w", raw, err)
		}
		return &Matcher{kind: Regex, raw: raw, originalRaw: raw, caseInsensitive: opts.CaseInsensitive, regex: re}, nil
	}

	if kind == Verbatim {
		return compileVerbatim(raw, raw, opts)
	}

	// Glob / Globstar: step 1, strip leading/trailing "**" (or "*" for a
	// Glob) to derive anchor flags.
	body, unanchoredBegin, unanchoredEnd := stripGlobAnchors(raw, kind)

	// Step 2: a glob with no "?" can be generalized to globstar by
	// doubling each lone "*"; if after that the body has no inner "*" at
	// all and the literal boundaries clear MinWildcardThreshold, lower
	// all the way to Verbatim.
	effectiveKind := kind
	lowered := body
	if kind == Glob && !strings.Contains(body, "?") {
		lowered = doubleStars(body)
		effectiveKind = Globstar
		if !strings.Contains(lowered, "*") && len(lowered) >= opts.MinWildcardThreshold {
			return compileVerbatimBody(lowered, raw, unanchoredBegin, unanchoredEnd, opts)
		}
	}

	if !doublestar.ValidatePattern(lowered) {
		return nil, fmt.Errorf("pattern: invalid glob %q", raw)
	}

	// Case-insensitive matching and the "**\" => quantified-group
	// collapsing doublestar doesn't perform on its own both require the
	// regex lowering path (SPEC_FULL.md §3).
	if opts.CaseInsensitive || strings.Contains(lowered, `**\`) {
		re, err := globToRegex(lowered, effectiveKind, unanchoredBegin, unanchoredEnd, opts.CaseInsensitive)
		if err != nil {
			return nil, err
		}
		return &Matcher{kind: effectiveKind, raw: raw, originalRaw: raw, caseInsensitive: opts.CaseInsensitive, regex: re, unanchoredBegin: unanchoredBegin, unanchoredEnd: unanchoredEnd}, nil
	}

	// doublestar.Match has no way to report how much of the corpus it
	// examined before refuting a match, so traversal's high-water-mark
	// pruning (spec.md §4.8 step 3) would never fire for this pattern
	// without help. Lower it to the same regex the caller would have
	// gotten above and keep it purely for tracking; the match verdict
	// itself still comes from doublestar.Match (match.go), preserving the
	// "doublestar evaluates what it can evaluate directly" wiring.
	trackRegex, err := globToRegex(lowered, effectiveKind, unanchoredBegin, unanchoredEnd, false)
	if err != nil {
		return nil, err
	}

	return &Matcher{
		kind:            effectiveKind,
		raw:             raw,
		originalRaw:     raw,
		globPattern:     reattachAnchors(lowered, unanchoredBegin, unanchoredEnd),
		trackRegex:      trackRegex,
		unanchoredBegin: unanchoredBegin,
		unanchoredEnd:   unanchoredEnd,
	}, nil
}

func reattachAnchors(body string, unanchoredBegin, unanchoredEnd bool) string {
	if unanchoredBegin {
		body = "**" + body
	}
	if unanchoredEnd {
		body = body + "**"
	}
	return body
}

func stripGlobAnchors(raw string, kind Kind) (body string, unanchoredBegin, unanchoredEnd bool) {
	marker := "*"
	if kind == Globstar {
		marker = "**"
	}
	body = raw
	if strings.HasPrefix(body, marker) {
		unanchoredBegin = true
		body = strings.TrimPrefix(body, marker)
	}
	if strings.HasSuffix(body, marker) {
		unanchoredEnd = true
		body = strings.TrimSuffix(body, marker)
	}
	return body, unanchoredBegin, unanchoredEnd
}

func doubleStars(body string) string {
	var b strings.Builder
	for _, r := range body {
		if r == '*' {
			b.WriteString("**")
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}
