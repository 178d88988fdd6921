package benchutil

import (
	"os"
	"testing"

	"github.com/eunmann/tarsplit/pkg/entry"
)

// SkipIfNoLongBench skips the benchmark if TARSPLIT_LONG_BENCH is not set.
// Use this to gate long-running benchmarks that shouldn't run by default.
func SkipIfNoLongBench(b *testing.B) {
	if os.Getenv("TARSPLIT_LONG_BENCH") == "" {
		b.Skip("set TARSPLIT_LONG_BENCH=1 to run scaling benchmark")
	}
}

// Sizes returns the sizes of specs in order, with 0 for non-files.
func Sizes(specs []entry.Spec) []int64 {
	sizes := make([]int64, len(specs))
	for i, s := range specs {
		if s.Kind == entry.KindFile {
			sizes[i] = max(s.Size, int64(len(s.Content)))
		}
	}
	return sizes
}
