package split

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/eunmann/tarsplit/internal/logctx"
	"github.com/eunmann/tarsplit/pkg/entry"
	"github.com/eunmann/tarsplit/pkg/logging"
)

// Run pulls every entry from src, one at a time, and splits them according
// to cfg. Each entry's body is fully drained before the next is requested.
// Any error aborts the run; splits finalized before it remain on disk.
func Run(ctx context.Context, src entry.Source, cfg Config, opener Opener) (Result, error) {
	start := time.Now()

	c, err := NewController(ctx, cfg, opener)
	if err != nil {
		return Result{}, err
	}

	for {
		e, err := src.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			err = fmt.Errorf("read entry: %w", err)
			c.Abort(err)
			return Result{Splits: c.Finalized()}, err
		}
		if err := c.Accept(ctx, e); err != nil {
			return Result{Splits: c.Finalized()}, err
		}
	}

	res, err := c.Finalize(ctx)
	if err != nil {
		return Result{Splits: c.Finalized()}, err
	}

	logging.PhaseComplete(logctx.FromContext(ctx), phaseSplit, time.Since(start)).
		Int("splits", len(res.Splits)).
		Count("entries", int64(res.Entries())).
		Bytes("content_bytes", res.ContentBytes()).
		Throughput(res.ContentBytes()).
		Log("split complete")
	return res, nil
}

// PlanSource drains src without writing and returns the split boundaries a
// Run with the same limit would produce, along with the entry names.
func PlanSource(ctx context.Context, src entry.Source, limit int64) ([]PlannedSplit, []string, error) {
	var sizes []int64
	var names []string
	for {
		e, err := src.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, names, fmt.Errorf("read entry: %w", err)
		}
		sizes = append(sizes, e.Size())
		names = append(names, e.Name())
	}
	plan, err := Plan(sizes, names, limit)
	return plan, names, err
}
