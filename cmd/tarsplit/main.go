// Command tarsplit repackages a tar archive or directory tree into a sequence
// of independent, size-bounded tar archives.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/eunmann/tarsplit/internal/cli"
	"github.com/eunmann/tarsplit/pkg/split"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := cli.RunContext(ctx, os.Args[1:], os.Stdout)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		if errors.Is(err, split.ErrConfig) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}
