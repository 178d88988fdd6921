package sink

import (
	"context"
	"io"

	"github.com/eunmann/tarsplit/pkg/fileutil"
)

// FileDestination stores outputs on the local filesystem. Names are paths.
type FileDestination struct{}

// Exists implements Destination.
func (FileDestination) Exists(_ context.Context, name string) (bool, error) {
	return fileutil.Exists(name), nil
}

// Create implements Destination.
func (FileDestination) Create(_ context.Context, name string, overwrite bool) (io.WriteCloser, error) {
	f, err := fileutil.Create(name, overwrite)
	if err != nil {
		return nil, err
	}
	return f, nil
}
