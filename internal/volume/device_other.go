//go:build !windows

package volume

import (
	"fmt"

	mfterrors "github.com/cobaltfs/mftindex/internal/errors"
)

// newDevice on non-Windows platforms always fails: a raw NTFS volume
// handle and FSCTL_GET_RETRIEVAL_POINTERS have no portable equivalent
// (spec.md Non-goals exclude non-NTFS filesystems and network shares, and
// this core never reads through a mounted filesystem driver). Tests on
// this platform exercise SplitExtents/ReservedOverlap and a fake Device
// directly rather than newDevice.
func newDevice(rootPath string) (Device, error) {
	return nil, mfterrors.NewUnrecognisedVolumeError(rootPath, fmt.Errorf("raw volume access requires windows"))
}
