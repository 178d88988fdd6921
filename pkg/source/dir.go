package source

import (
	"archive/tar"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/eunmann/tarsplit/internal/logctx"
	"github.com/eunmann/tarsplit/pkg/entry"
)

// DirSource walks a directory tree in lexical pre-order and yields an entry
// per file, directory and symlink below the root. Symlinks are stored, not
// followed. Only the current file is open at any time.
type DirSource struct {
	root    string
	pending []string // relative paths, next to visit at the end
	current *os.File
	started bool
	skip    func(path string) bool
}

// NewDirSource creates a source over the tree rooted at root.
func NewDirSource(root string) (*DirSource, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("stat input: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s: not a directory", root)
	}
	return &DirSource{root: root}, nil
}

// Skip excludes regular files for which fn returns true. fn receives the
// file's path as root joined with its relative name. The split command uses
// it to keep its own outputs out of the archives when they are written inside
// the tree being walked.
func (s *DirSource) Skip(fn func(path string) bool) {
	s.skip = fn
}

// Next implements entry.Source.
func (s *DirSource) Next(ctx context.Context) (entry.Entry, error) {
	if err := s.closeCurrent(); err != nil {
		return entry.Entry{}, err
	}
	if !s.started {
		s.started = true
		if err := s.push(""); err != nil {
			return entry.Entry{}, err
		}
	}

	for len(s.pending) > 0 {
		if err := ctx.Err(); err != nil {
			return entry.Entry{}, err
		}
		rel := s.pending[len(s.pending)-1]
		s.pending = s.pending[:len(s.pending)-1]

		e, ok, err := s.visit(ctx, rel)
		if err != nil {
			return entry.Entry{}, err
		}
		if ok {
			return e, nil
		}
	}
	return entry.Entry{}, io.EOF
}

func (s *DirSource) visit(ctx context.Context, rel string) (entry.Entry, bool, error) {
	full := filepath.Join(s.root, rel)
	info, err := os.Lstat(full)
	if err != nil {
		return entry.Entry{}, false, fmt.Errorf("stat %s: %w", full, err)
	}

	if s.skip != nil && info.Mode().IsRegular() && s.skip(full) {
		log := logctx.FromContext(ctx)
		log.Info().Str("path", full).Msg("skipping split output inside input tree")
		return entry.Entry{}, false, nil
	}

	var link string
	if info.Mode()&fs.ModeSymlink != 0 {
		if link, err = os.Readlink(full); err != nil {
			return entry.Entry{}, false, fmt.Errorf("read link %s: %w", full, err)
		}
	}

	hdr, err := tar.FileInfoHeader(info, link)
	if err != nil {
		// Sockets and other unsupported types cannot be archived.
		log := logctx.FromContext(ctx)
		log.Warn().Str("path", full).Err(err).Msg("skipping unsupported file")
		return entry.Entry{}, false, nil
	}
	hdr.Name = filepath.ToSlash(rel)
	hdr.Format = tar.FormatPAX

	switch {
	case info.IsDir():
		hdr.Name += "/"
		if err := s.push(rel); err != nil {
			return entry.Entry{}, false, err
		}
		return entry.Entry{Header: hdr}, true, nil
	case info.Mode().IsRegular():
		f, err := os.Open(full)
		if err != nil {
			return entry.Entry{}, false, fmt.Errorf("open %s: %w", full, err)
		}
		adviseSequential(f)
		s.current = f
		return entry.Entry{Header: hdr, Body: f}, true, nil
	default:
		return entry.Entry{Header: hdr}, true, nil
	}
}

// push schedules the children of rel so they are visited in lexical order.
func (s *DirSource) push(rel string) error {
	dir := filepath.Join(s.root, rel)
	children, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read dir %s: %w", dir, err)
	}
	names := make([]string, 0, len(children))
	for _, c := range children {
		names = append(names, filepath.Join(rel, c.Name()))
	}
	slices.SortFunc(names, func(a, b string) int { return strings.Compare(b, a) })
	s.pending = append(s.pending, names...)
	return nil
}

func (s *DirSource) closeCurrent() error {
	if s.current == nil {
		return nil
	}
	err := s.current.Close()
	s.current = nil
	if err != nil && !errors.Is(err, os.ErrClosed) {
		return fmt.Errorf("close file: %w", err)
	}
	return nil
}

// Close implements entry.Source.
func (s *DirSource) Close() error {
	s.pending = nil
	return s.closeCurrent()
}
