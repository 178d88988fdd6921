// Package sink opens and encodes split archives.
//
// A Sink is a chain of writers:
//
//	tar.Writer -> bufio.Writer -> codec -> digest tee -> Destination
//
// plus an optional manifest line writer. Compression is chosen once when the
// Factory is built; the split controller never branches on it.
package sink

import (
	"archive/tar"
	"bufio"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"strconv"
	"strings"

	"github.com/zeebo/blake3"

	"github.com/eunmann/tarsplit/pkg/entry"
)

const (
	// writeBufferSize batches tar's 512-byte block writes before compression.
	writeBufferSize = 256 * 1024
	// copyBufferSize bounds the bytes of one entry held in memory at a time.
	copyBufferSize = 64 * 1024
)

// ErrShortBody indicates an entry body ended before its declared size.
var ErrShortBody = errors.New("entry body shorter than declared size")

// Destination stores named byte streams.
type Destination interface {
	// Exists reports whether name already holds data.
	Exists(ctx context.Context, name string) (bool, error)
	// Create opens name for writing. When overwrite is false and name
	// exists, the returned error wraps fs.ErrExist and nothing is written.
	Create(ctx context.Context, name string, overwrite bool) (io.WriteCloser, error)
}

// Options configures a Factory.
type Options struct {
	// Prefix is prepended to every output name ("<Prefix>-<index>.tar").
	Prefix string
	// Codec compresses each archive stream.
	Codec Codec
	// Manifest enables "<Prefix>-<index>.manifest" files.
	Manifest bool
	// Overwrite allows replacing existing outputs.
	Overwrite bool
}

// Factory opens sinks for consecutive split indices.
type Factory struct {
	dest Destination
	opts Options
}

// NewFactory creates a Factory writing to dest.
func NewFactory(dest Destination, opts Options) *Factory {
	return &Factory{dest: dest, opts: opts}
}

// ArchiveName returns the archive name for a split index.
func (f *Factory) ArchiveName(index int) string {
	return fmt.Sprintf("%s-%d%s", f.opts.Prefix, index, f.opts.Codec.Extension())
}

// ManifestName returns the manifest name for a split index.
func (f *Factory) ManifestName(index int) string {
	return fmt.Sprintf("%s-%d.manifest", f.opts.Prefix, index)
}

// IsOutput reports whether name is the archive or manifest name of some split
// index under this factory's options.
func (f *Factory) IsOutput(name string) bool {
	rest, ok := strings.CutPrefix(name, f.opts.Prefix+"-")
	if !ok {
		return false
	}
	digits, ext, ok := strings.Cut(rest, ".")
	if !ok || digits == "" {
		return false
	}
	if _, err := strconv.ParseUint(digits, 10, 63); err != nil {
		return false
	}
	ext = "." + ext
	return ext == f.opts.Codec.Extension() || (f.opts.Manifest && ext == ".manifest")
}

// Conflicts returns the outputs of index that already exist and would be
// overwritten. It always returns nil when overwriting is allowed.
func (f *Factory) Conflicts(ctx context.Context, index int) ([]string, error) {
	if f.opts.Overwrite {
		return nil, nil
	}
	names := []string{f.ArchiveName(index)}
	if f.opts.Manifest {
		names = append(names, f.ManifestName(index))
	}

	var existing []string
	for _, name := range names {
		ok, err := f.dest.Exists(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("check %s: %w", name, err)
		}
		if ok {
			existing = append(existing, name)
		}
	}
	return existing, nil
}

// Open creates the outputs for split index.
func (f *Factory) Open(ctx context.Context, index int) (*Sink, error) {
	name := f.ArchiveName(index)
	out, err := f.dest.Create(ctx, name, f.opts.Overwrite)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", name, err)
	}

	tee := &digestWriter{w: out, h: blake3.New()}
	compressed, err := f.opts.Codec.Wrap(tee)
	if err != nil {
		out.Close()
		return nil, err
	}
	buffered := bufio.NewWriterSize(compressed, writeBufferSize)

	s := &Sink{
		name:       name,
		out:        out,
		tee:        tee,
		compressed: compressed,
		buffered:   buffered,
		tw:         tar.NewWriter(buffered),
		copyBuf:    make([]byte, copyBufferSize),
	}

	if f.opts.Manifest {
		mname := f.ManifestName(index)
		mout, err := f.dest.Create(ctx, mname, f.opts.Overwrite)
		if err != nil {
			s.abort(err)
			return nil, fmt.Errorf("create %s: %w", mname, err)
		}
		s.manifestName = mname
		s.manifestOut = mout
		s.manifest = bufio.NewWriter(mout)
	}
	return s, nil
}

// Stats summarizes a closed sink.
type Stats struct {
	// Archive is the archive output name.
	Archive string
	// Manifest is the manifest output name, empty when disabled.
	Manifest string
	// Entries is the number of entries written.
	Entries int
	// ContentBytes is the sum of entry sizes (uncompressed).
	ContentBytes int64
	// StoredBytes is the number of bytes handed to the destination.
	StoredBytes int64
	// Digest is the hex BLAKE3 of the stored archive bytes.
	Digest string
}

// Sink encodes entries into one split archive.
type Sink struct {
	name       string
	out        io.WriteCloser
	tee        *digestWriter
	compressed io.WriteCloser
	buffered   *bufio.Writer
	tw         *tar.Writer
	copyBuf    []byte

	manifestName string
	manifestOut  io.WriteCloser
	manifest     *bufio.Writer

	entries      int
	contentBytes int64
	closed       bool
}

// Name returns the archive output name.
func (s *Sink) Name() string {
	return s.name
}

// WriteEntry writes e's header and drains its body into the archive, then
// appends its name to the manifest when enabled.
func (s *Sink) WriteEntry(e entry.Entry) error {
	if s.closed {
		return errors.New("write to closed sink")
	}

	hdr := *e.Header
	size := e.Size()
	hdr.Size = size
	if hdr.Typeflag == tar.TypeGNUSparse {
		// The body arrives with holes filled in; store it as a plain file.
		hdr.Typeflag = tar.TypeReg
	}
	if err := s.tw.WriteHeader(&hdr); err != nil {
		return fmt.Errorf("write header %s: %w", hdr.Name, err)
	}

	if size > 0 {
		if e.Body == nil {
			return fmt.Errorf("write %s: %w", hdr.Name, ErrShortBody)
		}
		n, err := io.CopyBuffer(s.tw, io.LimitReader(e.Body, size), s.copyBuf)
		if err != nil {
			return fmt.Errorf("write body %s: %w", hdr.Name, err)
		}
		if n != size {
			return fmt.Errorf("write body %s: %w (%d of %d bytes)", hdr.Name, ErrShortBody, n, size)
		}
	}

	if s.manifest != nil {
		if _, err := s.manifest.WriteString(hdr.Name + "\n"); err != nil {
			return fmt.Errorf("write manifest line: %w", err)
		}
	}

	s.entries++
	s.contentBytes += size
	return nil
}

// Close writes the archive trailer, flushes every layer and closes the
// destinations. Close must be called exactly once.
func (s *Sink) Close() (Stats, error) {
	if s.closed {
		return Stats{}, errors.New("sink already closed")
	}
	s.closed = true

	err := s.finish()
	if s.manifestOut != nil {
		if ferr := s.manifest.Flush(); ferr != nil && err == nil {
			err = fmt.Errorf("flush manifest: %w", ferr)
		}
		if cerr := s.manifestOut.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close %s: %w", s.manifestName, cerr)
		}
	}
	if err != nil {
		return Stats{}, err
	}

	return Stats{
		Archive:      s.name,
		Manifest:     s.manifestName,
		Entries:      s.entries,
		ContentBytes: s.contentBytes,
		StoredBytes:  s.tee.n,
		Digest:       hex.EncodeToString(s.tee.h.Sum(nil)),
	}, nil
}

func (s *Sink) finish() error {
	if err := s.tw.Close(); err != nil {
		err = fmt.Errorf("write tar trailer: %w", err)
		closeWithError(s.out, err)
		return err
	}
	if err := s.buffered.Flush(); err != nil {
		err = fmt.Errorf("flush archive: %w", err)
		closeWithError(s.out, err)
		return err
	}
	if err := s.compressed.Close(); err != nil {
		err = fmt.Errorf("close compressor: %w", err)
		closeWithError(s.out, err)
		return err
	}
	if err := s.out.Close(); err != nil {
		return fmt.Errorf("close %s: %w", s.name, err)
	}
	return nil
}

// Abort releases the destinations without writing the archive trailer. The
// partial output is left as it is. Destinations that support it (streaming
// uploads) are told about cause so they do not commit a partial object.
func (s *Sink) Abort(cause error) {
	if s.closed {
		return
	}
	s.abort(cause)
}

func (s *Sink) abort(cause error) {
	s.closed = true
	// Release compressor resources; the bytes it flushes are part of the
	// partial output.
	s.compressed.Close()
	closeWithError(s.out, cause)
	if s.manifestOut != nil {
		if s.manifest != nil {
			s.manifest.Flush()
		}
		closeWithError(s.manifestOut, cause)
	}
}

type errorCloser interface {
	CloseWithError(error) error
}

func closeWithError(w io.WriteCloser, cause error) {
	if ec, ok := w.(errorCloser); ok && cause != nil {
		ec.CloseWithError(cause)
		return
	}
	w.Close()
}

// digestWriter counts and hashes bytes on their way to the destination.
type digestWriter struct {
	w io.Writer
	h hash.Hash
	n int64
}

func (d *digestWriter) Write(p []byte) (int, error) {
	n, err := d.w.Write(p)
	d.h.Write(p[:n])
	d.n += int64(n)
	return n, err
}
