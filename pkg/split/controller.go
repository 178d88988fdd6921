// Package split implements the entry-aware splitter: it assigns each entry of
// a source to exactly one size-bounded output archive, in order, without ever
// fragmenting an entry, so every split extracts on its own.
package split

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/eunmann/tarsplit/internal/logctx"
	"github.com/eunmann/tarsplit/pkg/entry"
	"github.com/eunmann/tarsplit/pkg/logging"
	"github.com/eunmann/tarsplit/pkg/sink"
)

const phaseSplit = "split"

// Opener opens the outputs of one split. *sink.Factory implements it.
type Opener interface {
	// Conflicts lists the outputs of index that already exist and may not be overwritten.
	Conflicts(ctx context.Context, index int) ([]string, error)
	// Open creates the outputs of index.
	Open(ctx context.Context, index int) (*sink.Sink, error)
}

// Record is one committed entry.
type Record struct {
	Name string
	Size int64
	Kind entry.Kind
}

// Summary describes a finalized split.
type Summary struct {
	Index    int
	Archive  string
	Manifest string
	Entries  []Record
	// RunningSize is the sum of committed entry sizes.
	RunningSize int64
	// StoredBytes is the archive size as written (after compression).
	StoredBytes int64
	// Digest is the hex BLAKE3 of the stored archive.
	Digest string
}

// Result is the outcome of a completed run.
type Result struct {
	Splits []Summary
}

// Entries returns the total number of committed entries.
func (r Result) Entries() int {
	n := 0
	for _, s := range r.Splits {
		n += len(s.Entries)
	}
	return n
}

// ContentBytes returns the total uncompressed bytes committed.
func (r Result) ContentBytes() int64 {
	var n int64
	for _, s := range r.Splits {
		n += s.RunningSize
	}
	return n
}

type state uint8

const (
	stateRunning state = iota
	stateFinalized
	stateFailed
)

// Controller classifies entries into splits and drives the sink lifecycle.
// Exactly one split is open while the controller is running. A Controller is
// not safe for concurrent use; entries must be accepted one at a time.
type Controller struct {
	cfg    Config
	opener Opener
	state  state

	index   int
	running int64
	records []Record
	sink    *sink.Sink
	opened  time.Time

	done []Summary
}

// NewController validates cfg and opens split 0. It fails with a
// DestinationConflictError before any entry is processed when split 0's
// outputs already exist and overwriting is disabled.
func NewController(ctx context.Context, cfg Config, opener Opener) (*Controller, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	c := &Controller{cfg: cfg, opener: opener}
	if err := c.open(ctx, 0); err != nil {
		c.state = stateFailed
		return nil, err
	}
	return c, nil
}

// Index returns the index of the open split.
func (c *Controller) Index() int {
	return c.index
}

// RunningSize returns the committed size of the open split.
func (c *Controller) RunningSize() int64 {
	return c.running
}

// Accept commits e to the open split, rolling over to a new split first when
// e does not fit. Entries whose size reaches MaxSplitBytes are rejected with
// an EntryTooLargeError before any byte is written; the run is then failed.
//
// The too-large check is size >= MaxSplitBytes, one byte stricter than
// rejecting only size > MaxSplitBytes. An entry of exactly MaxSplitBytes is
// rejected instead of being admitted alone, so every split, including one
// holding a single entry, keeps RunningSize < MaxSplitBytes.
//
// The first entry of a fresh split is admitted without the fit check. Because
// oversized entries are rejected up front, that entry always satisfies the
// same bound as any other.
func (c *Controller) Accept(ctx context.Context, e entry.Entry) error {
	if c.state != stateRunning {
		return ErrNotRunning
	}
	if err := ctx.Err(); err != nil {
		return c.fail(err)
	}

	size := e.Size()
	if tooLarge(size, c.cfg.MaxSplitBytes) {
		return c.fail(&EntryTooLargeError{Name: e.Name(), Size: size, Limit: c.cfg.MaxSplitBytes})
	}

	if !fits(c.running, size, c.cfg.MaxSplitBytes) {
		if c.cfg.Verbose {
			logging.Rollover(logctx.FromContext(ctx), phaseSplit, c.index, c.index+1, e.Name(), size, c.running)
		}
		if err := c.close(ctx); err != nil {
			return c.fail(err)
		}
		if err := c.open(ctx, c.index+1); err != nil {
			return c.fail(err)
		}
	}

	if err := c.sink.WriteEntry(e); err != nil {
		return c.fail(fmt.Errorf("split %d: %w", c.index, err))
	}
	c.running += size
	c.records = append(c.records, Record{Name: e.Name(), Size: size, Kind: e.Kind()})

	if c.cfg.Verbose {
		log := logctx.FromContext(logctx.WithSplit(ctx, c.index))
		log.Debug().
			Str("event", "entry_committed").
			Str("entry", e.Name()).
			Str("kind", e.Kind().String()).
			Int64("size", size).
			Int64("running_size", c.running).
			Msg("entry committed")
	}
	return nil
}

// Finalize closes the open split and returns the run result. No entries may
// be accepted afterwards.
func (c *Controller) Finalize(ctx context.Context) (Result, error) {
	if c.state != stateRunning {
		return Result{}, ErrNotRunning
	}
	if err := c.close(ctx); err != nil {
		return Result{}, c.fail(err)
	}
	c.state = stateFinalized
	return Result{Splits: c.done}, nil
}

// Abort fails the run. The open split is released as-is without a trailer;
// finalized splits are left untouched.
func (c *Controller) Abort(cause error) {
	if c.state != stateRunning {
		return
	}
	c.fail(cause)
}

// Finalized returns the summaries of splits closed so far.
func (c *Controller) Finalized() []Summary {
	return c.done
}

func (c *Controller) fail(err error) error {
	c.state = stateFailed
	if c.sink != nil {
		c.sink.Abort(err)
		c.sink = nil
	}
	return err
}

func (c *Controller) open(ctx context.Context, index int) error {
	existing, err := c.opener.Conflicts(ctx, index)
	if err != nil {
		return fmt.Errorf("split %d: %w", index, err)
	}
	if len(existing) > 0 {
		return &DestinationConflictError{Index: index, Path: existing[0]}
	}

	s, err := c.opener.Open(ctx, index)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return &DestinationConflictError{Index: index, Err: err}
		}
		return fmt.Errorf("open split %d: %w", index, err)
	}

	c.index = index
	c.running = 0
	c.records = nil
	c.sink = s
	c.opened = time.Now()

	log := logctx.FromContext(logctx.WithSplit(ctx, index))
	log.Debug().
		Str("event", "split_opened").
		Str("archive", s.Name()).
		Msg("split opened")
	return nil
}

func (c *Controller) close(ctx context.Context) error {
	stats, err := c.sink.Close()
	c.sink = nil
	if err != nil {
		return fmt.Errorf("finalize split %d: %w", c.index, err)
	}

	c.done = append(c.done, Summary{
		Index:       c.index,
		Archive:     stats.Archive,
		Manifest:    stats.Manifest,
		Entries:     c.records,
		RunningSize: c.running,
		StoredBytes: stats.StoredBytes,
		Digest:      stats.Digest,
	})

	log := logctx.FromContext(logctx.WithSplit(ctx, c.index))
	logging.SplitFinalized(log, phaseSplit, time.Since(c.opened)).
		Str("archive", stats.Archive).
		Count("entries", int64(stats.Entries)).
		Bytes("content_bytes", stats.ContentBytes).
		Bytes("stored_bytes", stats.StoredBytes).
		Str("digest", stats.Digest).
		Throughput(stats.ContentBytes).
		Log("split finalized")
	return nil
}
