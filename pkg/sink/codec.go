package sink

import (
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Codec identifies the compression applied to a split archive stream.
// Compression wraps the finished tar byte stream; split boundaries are always
// decided on uncompressed entry sizes.
type Codec uint8

const (
	// CodecNone writes plain .tar files.
	CodecNone Codec = iota
	// CodecGzip writes .tar.gz files.
	CodecGzip
	// CodecZstd writes .tar.zst files.
	CodecZstd
	// CodecLZ4 writes .tar.lz4 files (LZ4 frame format).
	CodecLZ4
)

// String returns the codec name as accepted by ParseCodec.
func (c Codec) String() string {
	switch c {
	case CodecNone:
		return "none"
	case CodecGzip:
		return "gzip"
	case CodecZstd:
		return "zstd"
	case CodecLZ4:
		return "lz4"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(c))
	}
}

// ParseCodec parses a codec name. The empty string means CodecNone.
func ParseCodec(name string) (Codec, error) {
	switch name {
	case "", "none":
		return CodecNone, nil
	case "gzip", "gz":
		return CodecGzip, nil
	case "zstd", "zst":
		return CodecZstd, nil
	case "lz4":
		return CodecLZ4, nil
	default:
		return 0, fmt.Errorf("unknown codec: %q", name)
	}
}

// Extension returns the archive file suffix, including the leading dot.
func (c Codec) Extension() string {
	switch c {
	case CodecGzip:
		return ".tar.gz"
	case CodecZstd:
		return ".tar.zst"
	case CodecLZ4:
		return ".tar.lz4"
	default:
		return ".tar"
	}
}

// Wrap returns a writer that compresses into w. Closing the returned writer
// flushes the compressed trailer but does not close w.
func (c Codec) Wrap(w io.Writer) (io.WriteCloser, error) {
	switch c {
	case CodecNone:
		return nopCloser{w}, nil
	case CodecGzip:
		zw, err := gzip.NewWriterLevel(w, gzip.DefaultCompression)
		if err != nil {
			return nil, fmt.Errorf("create gzip writer: %w", err)
		}
		return zw, nil
	case CodecZstd:
		enc, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			return nil, fmt.Errorf("create zstd encoder: %w", err)
		}
		return enc, nil
	case CodecLZ4:
		return lz4.NewWriter(w), nil
	default:
		return nil, fmt.Errorf("unsupported codec: %s", c)
	}
}

type nopCloser struct {
	io.Writer
}

func (nopCloser) Close() error { return nil }
