// Package source adapts archives and directory trees into entry sequences.
package source

import (
	"archive/tar"
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/eunmann/tarsplit/pkg/entry"
)

const readBufferSize = 256 * 1024

var (
	magicGzip = []byte{0x1f, 0x8b}
	magicZstd = []byte{0x28, 0xb5, 0x2f, 0xfd}
	magicLZ4  = []byte{0x04, 0x22, 0x4d, 0x18}
)

// Compression identifies the outer compression of an input archive.
type Compression string

const (
	CompressionNone Compression = "none"
	CompressionGzip Compression = "gzip"
	CompressionZstd Compression = "zstd"
	CompressionLZ4  Compression = "lz4"
)

// TarSource yields the entries of a tar stream in archive order.
type TarSource struct {
	tr          *tar.Reader
	compression Compression
	closers     []func() error
}

// NewTarSource reads a tar stream from r. Gzip, zstd and LZ4 framed input is
// detected by its magic bytes and decompressed on the fly.
func NewTarSource(r io.Reader) (*TarSource, error) {
	br := bufio.NewReaderSize(r, readBufferSize)
	magic, err := br.Peek(4)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("read archive header: %w", err)
	}

	s := &TarSource{compression: CompressionNone}
	var body io.Reader = br
	switch {
	case bytes.HasPrefix(magic, magicGzip):
		zr, err := gzip.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("open gzip stream: %w", err)
		}
		s.compression = CompressionGzip
		s.closers = append(s.closers, zr.Close)
		body = zr
	case bytes.HasPrefix(magic, magicZstd):
		dec, err := zstd.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("open zstd stream: %w", err)
		}
		s.compression = CompressionZstd
		s.closers = append(s.closers, func() error {
			dec.Close()
			return nil
		})
		body = dec
	case bytes.HasPrefix(magic, magicLZ4):
		s.compression = CompressionLZ4
		body = lz4.NewReader(br)
	}

	s.tr = tar.NewReader(body)
	return s, nil
}

// Compression returns the detected input compression.
func (s *TarSource) Compression() Compression {
	return s.compression
}

// Next implements entry.Source.
func (s *TarSource) Next(ctx context.Context) (entry.Entry, error) {
	if err := ctx.Err(); err != nil {
		return entry.Entry{}, err
	}
	hdr, err := s.tr.Next()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return entry.Entry{}, io.EOF
		}
		return entry.Entry{}, fmt.Errorf("read tar header: %w", err)
	}

	e := entry.Entry{Header: hdr}
	if e.Kind() == entry.KindFile {
		e.Body = s.tr
	}
	return e, nil
}

// onClose registers a closer run by Close, after the decompressors.
func (s *TarSource) onClose(fn func() error) {
	s.closers = append(s.closers, fn)
}

// Close releases decompressors and the underlying stream when owned.
func (s *TarSource) Close() error {
	var errs []error
	for _, fn := range s.closers {
		if err := fn(); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}
