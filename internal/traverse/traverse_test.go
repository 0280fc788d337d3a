package traverse

import (
	"strings"
	"testing"

	"github.com/cobaltfs/mftindex/internal/index"
	"github.com/cobaltfs/mftindex/internal/ntfs"
)

const root = 5

func newIndex() *index.Index {
	idx := index.New(`\\.\C:`)
	idx.Init()
	return idx
}

// suffixMatcher matches any corpus ending in want. It deliberately doesn't
// implement trackingMatcher, so Walk falls back to a highWater of
// len(corpus) (never prunes) — exactly what a caller without
// high-water-mark support gets.
type suffixMatcher struct {
	want     string
	nameOnly bool
}

func (m suffixMatcher) IsMatch(corpus string) bool {
	return strings.HasSuffix(corpus, m.want)
}

func (m suffixMatcher) IsNameOnly() bool { return m.nameOnly }

// neverMatcher never matches and reports a high-water mark proving every
// subtree beneath the first component is unreachable, exercising
// isPruned's subtree-skip path (spec.md §4.8 step 3).
type neverMatcher struct{}

func (neverMatcher) IsMatch(string) bool { return false }

func (neverMatcher) IsMatchTracking(corpus string) (bool, int) {
	if i := strings.LastIndexByte(corpus, '\\'); i >= 0 {
		return false, i
	}
	return false, 0
}

func buildTree(t *testing.T) *index.Index {
	t.Helper()
	idx := newIndex()
	b := idx.Builder()

	b.AddName(root, root, "")

	b.AddName(10, root, "docs")
	b.AddChild(root, 10, 0)
	b.UpdateStream(10, index.StreamUpdate{TypeNameID: 0})

	b.AddName(20, 10, "readme.txt")
	b.AddChild(10, 20, 0)
	b.UpdateStream(20, index.StreamUpdate{TypeNameID: ntfs.AttrData, LengthDelta: 10, AllocatedDelta: 4096})

	b.AddName(21, 10, "notes.md")
	b.AddChild(10, 21, 0)
	b.UpdateStream(21, index.StreamUpdate{TypeNameID: ntfs.AttrData, LengthDelta: 20, AllocatedDelta: 4096})

	b.AddName(30, root, "bin")
	b.AddChild(root, 30, 0)
	b.UpdateStream(30, index.StreamUpdate{TypeNameID: 0})

	b.AddName(40, 30, "app.exe")
	b.AddChild(30, 40, 0)
	b.UpdateStream(40, index.StreamUpdate{TypeNameID: ntfs.AttrData, LengthDelta: 500, AllocatedDelta: 4096})

	return idx
}

func TestWalkPathBuffered(t *testing.T) {
	idx := buildTree(t)
	m := suffixMatcher{want: "readme.txt"}

	var paths []string
	err := Walk(idx, m, Options{}, func(name string, ascii bool, key index.Key, depth int) int {
		paths = append(paths, name)
		return 1
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(paths) != 1 || paths[0] != `docs\readme.txt` {
		t.Errorf("expected one match with full path, got %v", paths)
	}
}

func TestWalkNameOnly(t *testing.T) {
	idx := buildTree(t)
	m := suffixMatcher{want: "readme.txt", nameOnly: true}

	var names []string
	err := Walk(idx, m, Options{}, func(name string, ascii bool, key index.Key, depth int) int {
		names = append(names, name)
		return 1
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(names) != 1 || names[0] != "readme.txt" {
		t.Errorf("name-only mode should report the bare leaf name, got %v", names)
	}
}

func TestWalkPrunesNonMatchingSubtree(t *testing.T) {
	idx := buildTree(t)

	calls := 0
	err := Walk(idx, neverMatcher{}, Options{}, func(name string, ascii bool, key index.Key, depth int) int {
		calls++
		return 1
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 0 {
		t.Errorf("expected no matches with a matcher that never matches, got %d", calls)
	}
}

func TestWalkReverseOrderIsReverseOfForward(t *testing.T) {
	m := suffixMatcher{want: ""} // matches every corpus, including ""

	var forward []string
	if err := Walk(buildTree(t), m, Options{}, func(name string, ascii bool, key index.Key, depth int) int {
		forward = append(forward, name)
		return 1
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var reverse []string
	if err := Walk(buildTree(t), m, Options{Reverse: true}, func(name string, ascii bool, key index.Key, depth int) int {
		reverse = append(reverse, name)
		return 1
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(forward) == 0 || len(forward) != len(reverse) {
		t.Fatalf("expected matching non-empty result sets, forward=%v reverse=%v", forward, reverse)
	}
	for i := range forward {
		if forward[i] != reverse[len(reverse)-1-i] {
			t.Errorf("expected reverse to be the exact reversal of forward order: forward=%v reverse=%v", forward, reverse)
			break
		}
	}
}

func TestWalkCancellation(t *testing.T) {
	idx := buildTree(t)
	m := suffixMatcher{want: ""}

	calls := 0
	err := Walk(idx, m, Options{Cancelled: func() bool { return true }}, func(name string, ascii bool, key index.Key, depth int) int {
		calls++
		return 1
	})
	if err == nil {
		t.Fatal("expected a cancellation error")
	}
	if calls != 0 {
		t.Errorf("expected no callbacks once cancelled, got %d", calls)
	}
}

func TestWalkFRS6SubstitutesRootAtDepth1(t *testing.T) {
	idx := newIndex()
	b := idx.Builder()

	b.AddName(root, root, "")
	b.AddChild(root, shellSyntheticChildFRS, 0)

	b.AddName(50, root, "under-root.txt")
	b.AddChild(root, 50, 0)
	b.UpdateStream(50, index.StreamUpdate{TypeNameID: ntfs.AttrData, LengthDelta: 10, AllocatedDelta: 4096})

	m := suffixMatcher{want: ".txt"}

	var paths []string
	err := Walk(idx, m, Options{}, func(name string, ascii bool, key index.Key, depth int) int {
		paths = append(paths, name)
		return 1
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// The substituted FRS-5 visit recurses into root's own children a
	// second time, so the real child surfaces twice: once via the direct
	// root->50 link, once via root->6(=5)->50.
	count := 0
	for _, p := range paths {
		if p == "under-root.txt" {
			count++
		}
	}
	if count != 2 {
		t.Errorf("expected the shell-root substitution to double-visit the real child, got %d occurrences in %v", count, paths)
	}
}

func TestWalkIncludeAttributes(t *testing.T) {
	idx := newIndex()
	b := idx.Builder()

	b.AddName(root, root, "")
	b.AddName(60, root, "file.txt")
	b.AddChild(root, 60, 0)
	b.UpdateStream(60, index.StreamUpdate{TypeNameID: ntfs.AttrData, LengthDelta: 10, AllocatedDelta: 4096})
	b.UpdateStream(60, index.StreamUpdate{TypeNameID: ntfs.AttrObjectID, LengthDelta: 5, AllocatedDelta: 4096})

	m := suffixMatcher{want: ""}

	withoutAttrs := 0
	err := Walk(idx, m, Options{}, func(name string, ascii bool, key index.Key, depth int) int {
		if strings.HasPrefix(name, "file.txt") {
			withoutAttrs++
		}
		return 1
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if withoutAttrs != 1 {
		t.Errorf("expected only the default stream without IncludeAttributes, got %d", withoutAttrs)
	}

	withAttrs := 0
	err = Walk(idx, m, Options{IncludeAttributes: true}, func(name string, ascii bool, key index.Key, depth int) int {
		if strings.HasPrefix(name, "file.txt") {
			withAttrs++
		}
		return 1
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if withAttrs != 2 {
		t.Errorf("expected default stream + $OBJECT_ID attribute stream with IncludeAttributes, got %d", withAttrs)
	}
}
