// Package humanfmt formats byte sizes, durations and throughput for logs and
// dry-run output, and converts the MiB split size given on the command line.
package humanfmt

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"
)

// Binary (IEC) units for bytes.
const (
	KiB = 1024
	MiB = 1024 * KiB
	GiB = 1024 * MiB
	TiB = 1024 * GiB
)

// iecUnits is ordered from largest to smallest.
var iecUnits = []struct {
	size   float64
	suffix string
}{
	{TiB, "TiB"},
	{GiB, "GiB"},
	{MiB, "MiB"},
	{KiB, "KiB"},
}

// scale renders v with two decimals in the largest unit not exceeding it, or
// as whole bytes below 1 KiB.
func scale(v float64, rate string) string {
	for _, u := range iecUnits {
		if v >= u.size {
			return fmt.Sprintf("%.2f %s%s", v/u.size, u.suffix, rate)
		}
	}
	return fmt.Sprintf("%.0f B%s", v, rate)
}

// Bytes formats a byte count like "1.23 GiB". Counts below 1 KiB and
// negative counts are printed as whole bytes.
func Bytes(b int64) string {
	if b < 0 {
		return fmt.Sprintf("%d B", b)
	}
	return scale(float64(b), "")
}

// Throughput formats bytes per duration like "123.40 MiB/s".
func Throughput(bytes int64, d time.Duration) string {
	if d <= 0 {
		return "∞"
	}
	return scale(float64(bytes)/d.Seconds(), "/s")
}

// Duration formats d compactly: "2h15m", "1m30s", "1.23s", "45.6ms", "789.0µs".
func Duration(d time.Duration) string {
	switch {
	case d < 0:
		return d.String()
	case d >= time.Hour:
		return trimZero(int64(d/time.Hour), "h", int64(d%time.Hour/time.Minute), "m")
	case d >= time.Minute:
		return trimZero(int64(d/time.Minute), "m", int64(d%time.Minute/time.Second), "s")
	case d >= time.Second:
		return fmt.Sprintf("%.2fs", d.Seconds())
	case d >= time.Millisecond:
		return fmt.Sprintf("%.1fms", float64(d)/float64(time.Millisecond))
	case d >= time.Microsecond:
		return fmt.Sprintf("%.1fµs", float64(d)/float64(time.Microsecond))
	default:
		return fmt.Sprintf("%dns", d.Nanoseconds())
	}
}

// trimZero joins a major and minor component, dropping a zero minor.
func trimZero(major int64, majorUnit string, minor int64, minorUnit string) string {
	if minor == 0 {
		return strconv.FormatInt(major, 10) + majorUnit
	}
	return fmt.Sprintf("%d%s%d%s", major, majorUnit, minor, minorUnit)
}

// Count formats an entry count with decimal suffixes: "1.23M", "4.56K", "789".
func Count(n int64) string {
	switch {
	case n >= 1e9:
		return fmt.Sprintf("%.2fB", float64(n)/1e9)
	case n >= 1e6:
		return fmt.Sprintf("%.2fM", float64(n)/1e6)
	case n >= 1e3:
		return fmt.Sprintf("%.2fK", float64(n)/1e3)
	default:
		return strconv.FormatInt(n, 10)
	}
}

// ErrSizeOverflow indicates a size conversion that does not fit in int64.
var ErrSizeOverflow = errors.New("size overflows int64")

// FromMiB converts a whole number of mebibytes to bytes.
func FromMiB(n int64) (int64, error) {
	if n < 0 {
		return 0, fmt.Errorf("negative size: %d", n)
	}
	if n > math.MaxInt64/MiB {
		return 0, fmt.Errorf("%d MiB: %w", n, ErrSizeOverflow)
	}
	return n * MiB, nil
}
