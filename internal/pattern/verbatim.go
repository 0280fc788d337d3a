package pattern

import "strings"

func compileVerbatim(raw, originalRaw string, opts Options) (*Matcher, error) {
	body, unanchoredBegin, unanchoredEnd := stripStarAnchors(raw)
	return compileVerbatimBody(body, originalRaw, unanchoredBegin, unanchoredEnd, opts)
}

func compileVerbatimBody(body, originalRaw string, unanchoredBegin, unanchoredEnd bool, opts Options) (*Matcher, error) {
	return &Matcher{
		kind:            Verbatim,
		raw:             body,
		originalRaw:     originalRaw,
		caseInsensitive: opts.CaseInsensitive,
		verbatimNeedle:  body,
		unanchoredBegin: unanchoredBegin,
		unanchoredEnd:   unanchoredEnd,
	}, nil
}

func stripStarAnchors(raw string) (body string, unanchoredBegin, unanchoredEnd bool) {
	body = raw
	if strings.HasPrefix(body, "*") {
		unanchoredBegin = true
		body = strings.TrimPrefix(body, "*")
	}
	if strings.HasSuffix(body, "*") {
		unanchoredEnd = true
		body = strings.TrimSuffix(body, "*")
	}
	return body, unanchoredBegin, unanchoredEnd
}

// horspoolSearch implements Boyer-Moore-Horspool substring search, used for
// verbatim patterns anchored on neither side (spec.md §4.7 step 3). Corpus
// and needle are matched byte-for-byte; callers fold case beforehand via
// foldingReader when a case-insensitive match is requested.
func horspoolSearch(corpus, needle string) int {
	n, m := len(corpus), len(needle)
	if m == 0 {
		return 0
	}
	if m > n {
		return -1
	}

	var shift [256]int
	for i := range shift {
		shift[i] = m
	}
	for i := 0; i < m-1; i++ {
		shift[needle[i]] = m - 1 - i
	}

	pos := 0
	for pos <= n-m {
		i := m - 1
		for i >= 0 && corpus[pos+i] == needle[i] {
			i--
		}
		if i < 0 {
			return pos
		}
		pos += shift[corpus[pos+m-1]]
	}
	return -1
}
