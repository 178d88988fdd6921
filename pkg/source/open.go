package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/eunmann/tarsplit/pkg/entry"
	"github.com/eunmann/tarsplit/pkg/s3store"
)

// ErrNoObjectStore indicates an s3:// input without an object store.
var ErrNoObjectStore = errors.New("s3 input requires an object store")

// ObjectOpener streams remote objects. *s3store.Client implements it.
type ObjectOpener interface {
	Open(ctx context.Context, bucket, key string) (io.ReadCloser, error)
}

// Open returns the entry source for input: a directory tree, a local tar
// archive (optionally compressed), or an s3://bucket/key archive object.
// objects may be nil when input is local.
func Open(ctx context.Context, input string, objects ObjectOpener) (entry.Source, error) {
	if s3store.IsURI(input) {
		if objects == nil {
			return nil, ErrNoObjectStore
		}
		bucket, key, err := s3store.ParseURI(input, false)
		if err != nil {
			return nil, err
		}
		rc, err := objects.Open(ctx, bucket, key)
		if err != nil {
			return nil, err
		}
		return newOwnedTarSource(rc)
	}

	info, err := os.Stat(input)
	if err != nil {
		return nil, fmt.Errorf("stat input: %w", err)
	}
	if info.IsDir() {
		return NewDirSource(input)
	}

	f, err := os.Open(input)
	if err != nil {
		return nil, fmt.Errorf("open input: %w", err)
	}
	adviseSequential(f)
	return newOwnedTarSource(f)
}

// newOwnedTarSource builds a TarSource that closes rc on Close.
func newOwnedTarSource(rc io.ReadCloser) (*TarSource, error) {
	s, err := NewTarSource(rc)
	if err != nil {
		rc.Close()
		return nil, err
	}
	s.onClose(rc.Close)
	return s, nil
}
