// Package config holds the search-time configuration for the MFT search
// core: worker pool sizing, read scheduling knobs, and pattern defaults.
// Command-line option parsing is out of scope (spec §1); this package only
// describes the shape of that configuration and how it is validated and
// loaded from a project-local ".mftsearch.kdl" file, the way the teacher
// loads ".lci.kdl".
package config

import "runtime"

// Config is the full set of knobs the search core reads before starting
// a volume scan.
type Config struct {
	IO        IO
	Scheduler Scheduler
	Pattern   Pattern
}

// IO controls the completion-port worker pool (spec §4.2).
type IO struct {
	// Workers is the number of OS threads servicing the completion port.
	// 0 means auto-detect: NumCPU, floored at 1.
	Workers int
	// MaxPendingReads bounds the priority-sortable pending queue so a slow
	// volume cannot grow it without bound.
	MaxPendingReads int
}

// Scheduler controls the MFT read scheduler (spec §4.3).
type Scheduler struct {
	// InitialConcurrency is the number of in-flight reads launched before
	// any completion arrives. Spec default is 2.
	InitialConcurrency int
	// BlockSizeBytes is the target read size before flooring to whole
	// FRSs; spec default is 1 MiB.
	BlockSizeBytes int64
}

// Pattern controls default pattern-compilation behavior (spec §4.7).
type Pattern struct {
	// CaseInsensitive is the default case-folding mode for compiled
	// patterns when the caller does not specify one explicitly.
	CaseInsensitive bool
	// MinWildcardThreshold is the minimum number of literal characters a
	// glob boundary needs before the compiler is willing to lower it all
	// the way to Verbatim (spec §4.7 step 2).
	MinWildcardThreshold int
}

// Default returns a Config with CPU-aware defaults, the way the teacher's
// Validator.setSmartDefaults derives worker counts from runtime.NumCPU.
func Default() Config {
	return Config{
		IO: IO{
			Workers:         0,
			MaxPendingReads: 4096,
		},
		Scheduler: Scheduler{
			InitialConcurrency: 2,
			BlockSizeBytes:     1 << 20,
		},
		Pattern: Pattern{
			CaseInsensitive:      false,
			MinWildcardThreshold: 3,
		},
	}
}

// ResolvedWorkers returns cfg.IO.Workers, or a CPU-derived default when it
// is zero.
func (c Config) ResolvedWorkers() int {
	if c.IO.Workers > 0 {
		return c.IO.Workers
	}
	n := runtime.NumCPU()
	if n < 1 {
		n = 1
	}
	return n
}
