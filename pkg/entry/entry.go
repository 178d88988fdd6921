// Package entry defines the archive entry model and the pull-based source contract.
package entry

import (
	"archive/tar"
	"context"
	"fmt"
	"io"
)

// Kind classifies an entry.
type Kind uint8

const (
	// KindFile is a regular file with content bytes.
	KindFile Kind = iota
	// KindDir is a directory record. It never carries content.
	KindDir
	// KindOther covers symlinks, hard links, devices and FIFOs.
	KindOther
)

// String returns the lower-case name of the kind.
func (k Kind) String() string {
	switch k {
	case KindFile:
		return "file"
	case KindDir:
		return "directory"
	case KindOther:
		return "other"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(k))
	}
}

// KindOf maps a tar type flag to a Kind. GNU sparse members are files:
// tar.Reader expands their holes, so the body carries the full content.
func KindOf(typeflag byte) Kind {
	switch typeflag {
	case tar.TypeReg, tar.TypeCont, tar.TypeGNUSparse:
		return KindFile
	case tar.TypeDir:
		return KindDir
	default:
		return KindOther
	}
}

// Entry is one record of a logical archive. Header carries the full tar
// metadata; Body is non-nil only for files and yields exactly Size() bytes.
// Body is valid until the next call to Source.Next.
type Entry struct {
	Header *tar.Header
	Body   io.Reader
}

// Name returns the entry path.
func (e Entry) Name() string {
	return e.Header.Name
}

// Kind returns the entry classification.
func (e Entry) Kind() Kind {
	return KindOf(e.Header.Typeflag)
}

// Size returns the uncompressed content length. Non-file entries report 0.
func (e Entry) Size() int64 {
	if e.Kind() != KindFile {
		return 0
	}
	return e.Header.Size
}

// Source is a finite, forward-only sequence of entries.
type Source interface {
	// Next returns the next entry, or io.EOF once the sequence is exhausted.
	// The previous entry's Body must not be used after Next is called.
	Next(ctx context.Context) (Entry, error)
	io.Closer
}
