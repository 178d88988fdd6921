// Package catalog records which split archive holds each entry of a run, as a
// Parquet file that can be queried without opening any archive.
package catalog

import (
	"fmt"
	"os"

	"github.com/parquet-go/parquet-go"

	"github.com/eunmann/tarsplit/pkg/fileutil"
	"github.com/eunmann/tarsplit/pkg/split"
)

// Row is one committed entry.
type Row struct {
	Split   int32  `parquet:"split"`
	Name    string `parquet:"name"`
	Size    int64  `parquet:"size"`
	Kind    string `parquet:"kind"`
	Archive string `parquet:"archive"`
	// Digest is the BLAKE3 of the archive holding the entry.
	Digest string `parquet:"digest"`
}

// Rows flattens a run result in commit order.
func Rows(res split.Result) []Row {
	rows := make([]Row, 0, res.Entries())
	for _, s := range res.Splits {
		for _, r := range s.Entries {
			rows = append(rows, Row{
				Split:   int32(s.Index),
				Name:    r.Name,
				Size:    r.Size,
				Kind:    r.Kind.String(),
				Archive: s.Archive,
				Digest:  s.Digest,
			})
		}
	}
	return rows
}

// Write stores the catalog of res at path, replacing it atomically.
func Write(path string, res split.Result) error {
	return fileutil.WriteTmpThenMove(path, func(tmpPath string) error {
		f, err := os.Create(tmpPath)
		if err != nil {
			return fmt.Errorf("create catalog: %w", err)
		}

		w := parquet.NewGenericWriter[Row](f)
		for _, s := range res.Splits {
			rows := Rows(split.Result{Splits: []split.Summary{s}})
			if _, err := w.Write(rows); err != nil {
				f.Close()
				return fmt.Errorf("write catalog rows: %w", err)
			}
		}
		if err := w.Close(); err != nil {
			f.Close()
			return fmt.Errorf("close catalog writer: %w", err)
		}
		return f.Close()
	})
}

// Read loads every row of a catalog.
func Read(path string) ([]Row, error) {
	rows, err := parquet.ReadFile[Row](path)
	if err != nil {
		return nil, fmt.Errorf("read catalog %s: %w", path, err)
	}
	return rows, nil
}

// Locate returns the row of each requested name found in the catalog.
// Names not present are absent from the result.
func Locate(path string, names ...string) (map[string]Row, error) {
	rows, err := Read(path)
	if err != nil {
		return nil, err
	}

	want := make(map[string]struct{}, len(names))
	for _, n := range names {
		want[n] = struct{}{}
	}

	found := make(map[string]Row, len(names))
	for _, r := range rows {
		if _, ok := want[r.Name]; ok {
			found[r.Name] = r
		}
	}
	return found, nil
}
