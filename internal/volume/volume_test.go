package volume

import "testing"

func TestSplitExtentsRespectsBlockMax(t *testing.T) {
	in := []Extent{{VCN: 0, Clusters: 10, LCN: 100}}
	out := SplitExtents(in, 4)
	if len(out) != 3 {
		t.Fatalf("expected 3 split extents, got %d: %+v", len(out), out)
	}
	want := []Extent{
		{VCN: 0, Clusters: 4, LCN: 100},
		{VCN: 4, Clusters: 4, LCN: 104},
		{VCN: 8, Clusters: 2, LCN: 108},
	}
	for i, w := range want {
		if out[i] != w {
			t.Errorf("extent %d: got %+v, want %+v", i, out[i], w)
		}
	}
}

func TestSplitExtentsDropsZeroLength(t *testing.T) {
	in := []Extent{{VCN: 0, Clusters: 0, LCN: 0}, {VCN: 0, Clusters: 2, LCN: 5}}
	out := SplitExtents(in, 100)
	if len(out) != 1 {
		t.Fatalf("expected zero-length run dropped, got %d extents", len(out))
	}
}

func TestSplitExtentsPreservesSparseLCN(t *testing.T) {
	in := []Extent{{VCN: 0, Clusters: 10, Sparse: true}}
	out := SplitExtents(in, 4)
	for _, e := range out {
		if !e.Sparse {
			t.Errorf("expected split sparse run to remain sparse: %+v", e)
		}
	}
	if out[1].VCN != 4 {
		t.Errorf("expected VCN to advance across sparse splits, got %d", out[1].VCN)
	}
}

func TestBlockSizeMaxClusters(t *testing.T) {
	if got := BlockSizeMaxClusters(4096); got != 256 {
		t.Errorf("expected 256 clusters per 1MiB block at 4KiB clusters, got %d", got)
	}
	if got := BlockSizeMaxClusters(0); got != 1 {
		t.Errorf("expected degenerate cluster size to floor at 1, got %d", got)
	}
}

func TestReservedOverlapNoIntersection(t *testing.T) {
	e := Extent{VCN: 0, Clusters: 10, LCN: 1000}
	got := ReservedOverlap(e, 4096, 0, 100)
	if got != 0 {
		t.Errorf("expected zero overlap, got %d", got)
	}
}

func TestReservedOverlapFullyInside(t *testing.T) {
	e := Extent{VCN: 0, Clusters: 10, LCN: 1000}
	got := ReservedOverlap(e, 4096, 995, 1015)
	if want := int64(10 * 4096); got != want {
		t.Errorf("expected full overlap %d, got %d", want, got)
	}
}

func TestReservedOverlapStraddles(t *testing.T) {
	// Run spans LCN [1000, 1010); zone is [1005, 2000) -> overlap [1005,1010) = 5 clusters.
	e := Extent{VCN: 0, Clusters: 10, LCN: 1000}
	got := ReservedOverlap(e, 4096, 1005, 2000)
	if want := int64(5 * 4096); got != want {
		t.Errorf("expected straddling overlap %d, got %d", want, got)
	}
}

func TestReservedOverlapSparseRunIsZero(t *testing.T) {
	e := Extent{VCN: 0, Clusters: 10, LCN: 0, Sparse: true}
	if got := ReservedOverlap(e, 4096, 0, 1000); got != 0 {
		t.Errorf("sparse runs never count as reserved usage, got %d", got)
	}
}
