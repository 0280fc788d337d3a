// Package mftsearch is the public facade over the raw-MFT search core:
// open a volume, build its in-memory index, then evaluate a compiled
// pattern against it (spec.md §6). It composes internal/volume,
// internal/ioengine, internal/scheduler, internal/parser,
// internal/aggregate, internal/pattern, and internal/traverse the way
// spec.md §2's data-flow diagram describes: "Volume -> Extent enumerator
// -> MFT read scheduler <-> I/O engine -> Record parser -> Index store ->
// (after completion) Post-processor -> Traversal -> Matcher -> user
// callback."
package mftsearch

import (
	"context"

	"github.com/cobaltfs/mftindex/internal/aggregate"
	"github.com/cobaltfs/mftindex/internal/config"
	"github.com/cobaltfs/mftindex/internal/debug"
	mfterrors "github.com/cobaltfs/mftindex/internal/errors"
	"github.com/cobaltfs/mftindex/internal/index"
	"github.com/cobaltfs/mftindex/internal/ioengine"
	"github.com/cobaltfs/mftindex/internal/parser"
	"github.com/cobaltfs/mftindex/internal/pattern"
	"github.com/cobaltfs/mftindex/internal/progress"
	"github.com/cobaltfs/mftindex/internal/scheduler"
	"github.com/cobaltfs/mftindex/internal/traverse"
	"github.com/cobaltfs/mftindex/internal/volume"
)

// Request describes one volume search (spec.md §6: NtfsIndex::new,
// Index::matches).
type Request struct {
	// RootPath is the volume to index, e.g. "C:" (internal/volume.Open
	// prepends "\\.\").
	RootPath string
	// PatternKind / Pattern / Options select and compile the matcher
	// (spec.md §4.7).
	PatternKind pattern.Kind
	Pattern     string
	Options     pattern.Options
	// Traverse controls attribute visibility and emission order
	// (spec.md §4.8).
	Traverse traverse.Options
	// Config overrides the default worker/scheduler knobs
	// (internal/config). The zero value uses config.Default().
	Config config.Config
	// Progress receives numerator/denominator updates and is polled for
	// cancellation (spec.md §6); defaults to progress.Null.
	Progress progress.Sink
}

// Result is one match emitted by Search, flattened from the traversal
// callback's arguments (spec.md §4.8).
type Result struct {
	Name  string
	Path  string
	ASCII bool
	Key   index.Key
	Depth int
}

// Search opens RootPath, builds its index by reading the raw MFT, then
// evaluates Pattern against it, returning matches in traversal order
// (spec.md §6, §8 scenario 1-6). Cancellation mid-build or mid-traversal
// surfaces as a *mfterrors.CancelledError wrapped error, not a partial
// Result slice with an error.
func Search(ctx context.Context, req Request) ([]Result, error) {
	idx, err := BuildIndex(ctx, req.RootPath, req.Config, req.Progress)
	if err != nil {
		return nil, err
	}

	m, err := pattern.Compile(req.PatternKind, req.Pattern, req.Options)
	if err != nil {
		return nil, err
	}

	var results []Result
	sink := req.Progress
	if sink == nil {
		sink = progress.Null{}
	}
	to := req.Traverse
	to.Cancelled = sink.HasUserCancelled

	err = traverse.Walk(idx, m, to, func(name string, ascii bool, key index.Key, depth int) int {
		path, _ := idx.GetPath(key, false)
		results = append(results, Result{Name: name, Path: path, ASCII: ascii, Key: key, Depth: depth})
		return 1
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

// BuildIndex drives the full read/parse/aggregate pipeline for rootPath
// and returns the sealed index, without running any traversal. Callers
// that want to issue several searches against the same volume without
// re-reading the MFT should call this once and pass the result to
// traverse.Walk directly.
func BuildIndex(ctx context.Context, rootPath string, cfg config.Config, sink progress.Sink) (*index.Index, error) {
	if sink == nil {
		sink = progress.Null{}
	}
	if (cfg == config.Config{}) {
		cfg = config.Default()
	}

	dev, err := volume.Open(ctx, rootPath)
	if err != nil {
		return nil, err
	}

	idx := index.New(rootPath)
	idx.Init()

	eng := ioengine.NewEngine(cfg.ResolvedWorkers(), dev.Device, cfg.IO.MaxPendingReads)
	defer eng.Close()

	p := parser.New(idx, dev.Geometry.ClusterSize(), int(dev.Geometry.BytesPerFRS),
		dev.Geometry.MFTZoneStartLCN, dev.Geometry.MFTZoneEndLCN)

	sched := scheduler.New(dev, eng, idx)

	sink.SetText("reading MFT")
	runErr := sched.Run(ctx, func(ctx context.Context, virtualOffset int64, buf []byte, skipBegin, skipEnd int) error {
		if sink.HasUserCancelled() {
			return mfterrors.NewCancelledError("mft read")
		}
		if err := p.ParseBuffer(ctx, virtualOffset, buf, skipBegin, skipEnd); err != nil {
			return err
		}
		if sink.ShouldUpdate() {
			sink.SetProgress(idx.RecordsSoFar(), dev.Geometry.MFTCapacity)
		}
		return nil
	})
	dev.Device.Close()
	if runErr != nil {
		return nil, runErr
	}

	sink.SetText("aggregating subtree sizes")
	aggregate.Run(idx)
	debug.LogSearch("index built for %s: %d records so far", rootPath, idx.RecordsSoFar())

	return idx, nil
}
