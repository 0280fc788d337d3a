// Package errors defines the typed error kinds surfaced by the MFT search
// core: volume access failures, I/O failures, corrupt records, user
// cancellation, and out-of-memory conditions.
package errors

import (
	"fmt"
	"time"
)

// ErrorKind classifies an error raised by the core.
type ErrorKind string

const (
	// KindVolumeUnrecognised: not NTFS, or the filesystem attribute query failed.
	KindVolumeUnrecognised ErrorKind = "volume_unrecognised"
	// KindVolumeInaccessible: open failed (permissions, no such drive, locked).
	KindVolumeInaccessible ErrorKind = "volume_inaccessible"
	KindIoFailed           ErrorKind = "io_failed"
	KindCorrupt            ErrorKind = "corrupt"
	KindCancelled          ErrorKind = "cancelled"
	KindOutOfMemory        ErrorKind = "out_of_memory"
	KindConfig             ErrorKind = "config_invalid"
)

// VolumeError represents a failure to recognize or open a volume. Fatal to
// that volume's search only; other volumes in a multi-volume search continue.
type VolumeError struct {
	Kind       ErrorKind
	RootPath   string
	Underlying error
	Timestamp  time.Time
}

func newVolumeError(kind ErrorKind, rootPath string, err error) *VolumeError {
	return &VolumeError{Kind: kind, RootPath: rootPath, Underlying: err, Timestamp: time.Now()}
}

// NewUnrecognisedVolumeError reports that rootPath is not an NTFS volume.
func NewUnrecognisedVolumeError(rootPath string, err error) *VolumeError {
	return newVolumeError(KindVolumeUnrecognised, rootPath, err)
}

// NewInaccessibleVolumeError reports that rootPath could not be opened.
// Callers should recommend elevation, not retry automatically.
func NewInaccessibleVolumeError(rootPath string, err error) *VolumeError {
	return newVolumeError(KindVolumeInaccessible, rootPath, err)
}

func (e *VolumeError) Error() string {
	return fmt.Sprintf("%s: volume %s: %v", e.Kind, e.RootPath, e.Underlying)
}

func (e *VolumeError) Unwrap() error { return e.Underlying }

// IoError wraps a fatal overlapped-read completion that is not Cancelled.
// Retries are not performed at this layer: an IoError aborts the search
// for the volume that produced it.
type IoError struct {
	Status     uint32 // raw status code from the I/O subsystem
	Offset     int64
	Length     int
	Underlying error
	Timestamp  time.Time
}

func NewIoError(status uint32, offset int64, length int, err error) *IoError {
	return &IoError{Status: status, Offset: offset, Length: length, Underlying: err, Timestamp: time.Now()}
}

func (e *IoError) Error() string {
	return fmt.Sprintf("io_failed: status=0x%x offset=%d length=%d: %v", e.Status, e.Offset, e.Length, e.Underlying)
}

func (e *IoError) Unwrap() error { return e.Underlying }

// CorruptRecordError is a soft error: the parser marks the record "BAAD"
// and skips it. Never returned from a search; kept as a typed value so
// debug logging and tests can distinguish corruption reasons.
type CorruptRecordError struct {
	FRS    uint32
	Reason string
}

func NewCorruptRecordError(frs uint32, reason string) *CorruptRecordError {
	return &CorruptRecordError{FRS: frs, Reason: reason}
}

func (e *CorruptRecordError) Error() string {
	return fmt.Sprintf("corrupt: frs=%d: %s", e.FRS, e.Reason)
}

// CancelledError is raised when a user cancellation flag is observed at a
// top-of-loop checkpoint. The driver absorbs it and converts it into an
// empty (or partial, if already committed) result set.
type CancelledError struct {
	Stage string
}

func NewCancelledError(stage string) *CancelledError {
	return &CancelledError{Stage: stage}
}

func (e *CancelledError) Error() string {
	return fmt.Sprintf("cancelled during %s", e.Stage)
}

// Is lets errors.Is(err, ErrCancelled) match any *CancelledError regardless
// of which stage raised it.
func (e *CancelledError) Is(target error) bool {
	_, ok := target.(*CancelledError)
	return ok
}

// ErrCancelled is a sentinel usable with errors.Is.
var ErrCancelled = &CancelledError{Stage: "unspecified"}

// OutOfMemoryError surfaces immediately when arena growth fails; the
// caller discards partial results.
type OutOfMemoryError struct {
	Arena     string
	Requested int
}

func NewOutOfMemoryError(arena string, requested int) *OutOfMemoryError {
	return &OutOfMemoryError{Arena: arena, Requested: requested}
}

func (e *OutOfMemoryError) Error() string {
	return fmt.Sprintf("out_of_memory: arena=%s requested=%d", e.Arena, e.Requested)
}

// MultiError aggregates independent failures (one per volume in a
// multi-volume search) without losing any of them.
type MultiError struct {
	Errors []error
}

func NewMultiError(errs []error) *MultiError {
	filtered := make([]error, 0, len(errs))
	for _, err := range errs {
		if err != nil {
			filtered = append(filtered, err)
		}
	}
	return &MultiError{Errors: filtered}
}

func (e *MultiError) Error() string {
	switch len(e.Errors) {
	case 0:
		return "no errors"
	case 1:
		return e.Errors[0].Error()
	default:
		return fmt.Sprintf("%d errors: %v", len(e.Errors), e.Errors)
	}
}

func (e *MultiError) Unwrap() []error { return e.Errors }

// ConfigError reports a rejected configuration section, the way the
// teacher's Validator rejects a malformed .lci.kdl section.
type ConfigError struct {
	Section    string
	Field      string
	Underlying error
}

func NewConfigError(section, field string, err error) *ConfigError {
	return &ConfigError{Section: section, Field: field, Underlying: err}
}

func (e *ConfigError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("config_invalid: section=%s: %v", e.Section, e.Underlying)
	}
	return fmt.Sprintf("config_invalid: section=%s field=%s: %v", e.Section, e.Field, e.Underlying)
}

func (e *ConfigError) Unwrap() error { return e.Underlying }
