//go:build linux

package source

import (
	"os"

	"golang.org/x/sys/unix"
)

// adviseSequential tells the kernel f is read once front to back, which
// enlarges readahead and lets consumed pages be dropped early.
func adviseSequential(f *os.File) {
	_ = unix.Fadvise(int(f.Fd()), 0, 0, unix.FADV_SEQUENTIAL)
}
