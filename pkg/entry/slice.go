package entry

import (
	"archive/tar"
	"bytes"
	"context"
	"io"
	"time"
)

// Spec describes an in-memory entry for SliceSource.
type Spec struct {
	Name    string
	Kind    Kind
	Content []byte
	// Size overrides len(Content) for files when non-zero. Content is then
	// padded with zero bytes up to Size.
	Size int64
}

// SliceSource yields a fixed sequence of entries held in memory.
type SliceSource struct {
	specs   []Spec
	pos     int
	modTime time.Time
}

// NewSliceSource creates a source over specs, in order.
func NewSliceSource(specs ...Spec) *SliceSource {
	return &SliceSource{
		specs:   specs,
		modTime: time.Unix(1700000000, 0).UTC(),
	}
}

// Next implements Source.
func (s *SliceSource) Next(ctx context.Context) (Entry, error) {
	if err := ctx.Err(); err != nil {
		return Entry{}, err
	}
	if s.pos >= len(s.specs) {
		return Entry{}, io.EOF
	}
	spec := s.specs[s.pos]
	s.pos++

	hdr := &tar.Header{
		Name:    spec.Name,
		ModTime: s.modTime,
		Format:  tar.FormatPAX,
	}
	switch spec.Kind {
	case KindDir:
		hdr.Typeflag = tar.TypeDir
		hdr.Mode = 0o755
		return Entry{Header: hdr}, nil
	case KindOther:
		hdr.Typeflag = tar.TypeSymlink
		hdr.Linkname = "target"
		hdr.Mode = 0o777
		return Entry{Header: hdr}, nil
	}

	size := int64(len(spec.Content))
	var body io.Reader = bytes.NewReader(spec.Content)
	if spec.Size > size {
		body = io.MultiReader(body, io.LimitReader(zeroReader{}, spec.Size-size))
		size = spec.Size
	}
	hdr.Typeflag = tar.TypeReg
	hdr.Mode = 0o644
	hdr.Size = size
	return Entry{Header: hdr, Body: body}, nil
}

// Close implements Source.
func (s *SliceSource) Close() error {
	return nil
}

type zeroReader struct{}

func (zeroReader) Read(p []byte) (int, error) {
	clear(p)
	return len(p), nil
}
