package volume

import (
	"bytes"
	"context"
	"io"
)

// FakeDevice is an in-memory Device backing scheduler/parser/ioengine
// tests: it serves DataExtents/BitmapExtents from a fixed Geometry and
// reads out of a single backing byte slice addressed by physical (LCN)
// offset, the way a real volume handle addresses bytes by cluster.
type FakeDevice struct {
	Geo           Geometry
	DataExtents   []Extent
	BitmapExtents []Extent
	Backing       []byte // indexed by byte offset == LCN * ClusterSize
	Closed        bool
}

func (f *FakeDevice) QueryGeometry(ctx context.Context) (Geometry, error) {
	return f.Geo, nil
}

func (f *FakeDevice) EnumerateExtents(ctx context.Context, stream StreamKind) ([]Extent, error) {
	if stream == StreamBitmap {
		return f.BitmapExtents, nil
	}
	return f.DataExtents, nil
}

func (f *FakeDevice) ReadAt(ctx context.Context, buf []byte, offset int64) (int, error) {
	r := bytes.NewReader(f.Backing)
	n, err := r.ReadAt(buf, offset)
	if err == io.EOF && n > 0 {
		err = nil
	}
	return n, err
}

func (f *FakeDevice) Close() error {
	f.Closed = true
	return nil
}
