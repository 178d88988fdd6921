package humanfmt

import (
	"errors"
	"testing"
	"time"
)

func TestBytes(t *testing.T) {
	tests := map[int64]string{
		0:             "0 B",
		150:           "150 B",
		1023:          "1023 B",
		KiB:           "1.00 KiB",
		1536:          "1.50 KiB",
		200 * MiB:     "200.00 MiB",
		MiB + MiB/2:   "1.50 MiB",
		GiB:           "1.00 GiB",
		3 * TiB / 2:   "1.50 TiB",
		-100:          "-100 B",
		4*GiB - 1:     "4.00 GiB",
		64 * KiB:      "64.00 KiB",
		256*KiB + 512: "256.50 KiB",
	}
	for in, want := range tests {
		if got := Bytes(in); got != want {
			t.Errorf("Bytes(%d) = %q, want %q", in, got, want)
		}
	}
}

func TestThroughput(t *testing.T) {
	tests := []struct {
		bytes int64
		d     time.Duration
		want  string
	}{
		{0, time.Second, "0 B/s"},
		{1000, time.Second, "1000 B/s"},
		{100 * MiB, time.Second, "100.00 MiB/s"},
		{MiB, 2 * time.Second, "512.00 KiB/s"},
		{TiB, time.Second, "1.00 TiB/s"},
		{MiB, 0, "∞"},
	}
	for _, tt := range tests {
		if got := Throughput(tt.bytes, tt.d); got != tt.want {
			t.Errorf("Throughput(%d, %v) = %q, want %q", tt.bytes, tt.d, got, tt.want)
		}
	}
}

func TestDuration(t *testing.T) {
	tests := map[time.Duration]string{
		0:                       "0ns",
		500 * time.Nanosecond:   "500ns",
		500 * time.Microsecond:  "500.0µs",
		time.Millisecond:        "1.0ms",
		1230 * time.Millisecond: "1.23s",
		59 * time.Second:        "59.00s",
		time.Minute:             "1m",
		90 * time.Second:        "1m30s",
		time.Hour:               "1h",
		8100 * time.Second:      "2h15m",
		-time.Second:            "-1s",
	}
	for in, want := range tests {
		if got := Duration(in); got != want {
			t.Errorf("Duration(%v) = %q, want %q", in, got, want)
		}
	}
}

func TestCount(t *testing.T) {
	tests := map[int64]string{
		0:             "0",
		999:           "999",
		1500:          "1.50K",
		1_000_000:     "1.00M",
		1_500_000_000: "1.50B",
		-100:          "-100",
	}
	for in, want := range tests {
		if got := Count(in); got != want {
			t.Errorf("Count(%d) = %q, want %q", in, got, want)
		}
	}
}

func TestFromMiB(t *testing.T) {
	for in, want := range map[int64]int64{0: 0, 1: 1048576, 200: 209715200, 4096: 4294967296} {
		got, err := FromMiB(in)
		if err != nil {
			t.Fatalf("FromMiB(%d): %v", in, err)
		}
		if got != want {
			t.Errorf("FromMiB(%d) = %d, want %d", in, got, want)
		}
	}

	if _, err := FromMiB(-1); err == nil {
		t.Error("expected error for negative size")
	}
	if _, err := FromMiB(1 << 50); !errors.Is(err, ErrSizeOverflow) {
		t.Errorf("expected ErrSizeOverflow, got %v", err)
	}
}
