// Package progress defines the ProgressSink contract the core consumes
// from its external collaborator (spec.md §6): a numerator/denominator
// progress report, a status string, and cooperative cancellation. GUI
// dialogs, CLI progress bars, and tests each provide their own
// implementation; this package also ships a Null sink (the default,
// silent) and a Logging sink built on internal/debug.
package progress

import "github.com/cobaltfs/mftindex/internal/debug"

// Sink is the external collaborator a search reports progress to and
// polls for cancellation (spec.md §6): "set_progress(numerator,
// denominator)", "set_text(str)", "has_user_cancelled() -> bool",
// "should_update() -> bool".
type Sink interface {
	SetProgress(numerator, denominator uint64)
	SetText(text string)
	HasUserCancelled() bool
	ShouldUpdate() bool
}

// Null is a Sink that reports progress nowhere and is never cancelled; the
// default when a caller doesn't supply one.
type Null struct{}

func (Null) SetProgress(uint64, uint64) {}
func (Null) SetText(string)             {}
func (Null) HasUserCancelled() bool     { return false }
func (Null) ShouldUpdate() bool         { return true }

// Logging is a Sink that writes progress and status updates through
// internal/debug.LogSearch instead of a GUI or CLI surface; useful for the
// demonstration binary and for tests that want to observe progress
// without building a real UI collaborator.
type Logging struct {
	Cancelled bool
}

func (l *Logging) SetProgress(numerator, denominator uint64) {
	debug.LogSearch("progress %d/%d", numerator, denominator)
}

func (l *Logging) SetText(text string) {
	debug.LogSearch("status: %s", text)
}

func (l *Logging) HasUserCancelled() bool { return l.Cancelled }

func (l *Logging) ShouldUpdate() bool { return true }
