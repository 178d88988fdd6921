// Package cli implements the command-line interface for tarsplit.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"github.com/eunmann/tarsplit/internal/logctx"
	"github.com/eunmann/tarsplit/pkg/catalog"
	"github.com/eunmann/tarsplit/pkg/entry"
	"github.com/eunmann/tarsplit/pkg/fileutil"
	"github.com/eunmann/tarsplit/pkg/humanfmt"
	"github.com/eunmann/tarsplit/pkg/logging"
	"github.com/eunmann/tarsplit/pkg/memdiag"
	"github.com/eunmann/tarsplit/pkg/s3store"
	"github.com/eunmann/tarsplit/pkg/sink"
	"github.com/eunmann/tarsplit/pkg/source"
	"github.com/eunmann/tarsplit/pkg/split"
)

const usage = `usage: tarsplit <command> [options]
commands:
  split   repackage an archive or directory into independent size-bounded archives
  locate  find the split archive holding an entry, using a catalog`

// Run executes the CLI with the given arguments.
func Run(args []string) error {
	return RunContext(context.Background(), args, os.Stdout)
}

// RunContext executes the CLI, writing command output to stdout.
func RunContext(ctx context.Context, args []string, stdout io.Writer) error {
	if len(args) == 0 {
		return &split.ConfigError{Field: "command", Reason: usage}
	}

	switch args[0] {
	case "split":
		return runSplit(ctx, args[1:], stdout)
	case "locate":
		return runLocate(args[1:], stdout)
	case "help", "-h", "--help":
		fmt.Fprintln(stdout, usage)
		return nil
	default:
		return &split.ConfigError{Field: "command", Reason: fmt.Sprintf("unknown command: %s\n%s", args[0], usage)}
	}
}

func parseFlags(fs *pflag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return err
		}
		return &split.ConfigError{Field: "arguments", Reason: err.Error()}
	}
	return nil
}

func runSplit(ctx context.Context, args []string, stdout io.Writer) error {
	fs := pflag.NewFlagSet("split", pflag.ContinueOnError)
	fs.SetOutput(io.Discard)
	var flags splitOptions
	flags.bind(fs)
	configPath := fs.String("config", "", "YAML file with default option values")

	if err := parseFlags(fs, args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			fs.SetOutput(stdout)
			fs.PrintDefaults()
			return nil
		}
		return err
	}
	if fs.NArg() > 0 {
		return &split.ConfigError{Field: "arguments", Reason: fmt.Sprintf("unexpected arguments: %s", strings.Join(fs.Args(), " "))}
	}

	var base splitOptions
	if *configPath != "" {
		var err error
		if base, err = loadOptionsFile(*configPath); err != nil {
			return err
		}
	}
	opts := flags.merge(base, fs)

	cfg, err := opts.splitConfig()
	if err != nil {
		return err
	}

	logging.Init(opts.Verbose, opts.Human)
	ctx = logctx.WithLogger(ctx, logging.WithPhase("split"))
	ctx = logctx.WithStr(ctx, "input", opts.Input)

	mem := memdiag.NewTracker(memdiag.DefaultConfig(), logctx.FromContext(ctx))
	mem.Start()
	defer mem.Stop()

	var client *s3store.Client
	if s3store.IsURI(opts.Input) || s3store.IsURI(opts.Output) {
		if client, err = s3store.NewClient(ctx, s3store.DefaultUploaderConfig()); err != nil {
			return err
		}
	}

	var objects source.ObjectOpener
	if client != nil {
		objects = client
	}
	src, err := source.Open(ctx, opts.Input, objects)
	if err != nil {
		return fmt.Errorf("open input: %w", err)
	}
	defer src.Close()

	if dir, ok := src.(*source.DirSource); ok && !s3store.IsURI(opts.Output) {
		skip, err := outputMatcher(cfg)
		if err != nil {
			return err
		}
		dir.Skip(skip)
	}

	if opts.DryRun {
		return printPlan(ctx, stdout, src, cfg)
	}

	dest, prefix, err := destinationFor(opts.Output, client)
	if err != nil {
		return err
	}
	cfg.OutputPrefix = prefix

	res, err := split.Run(ctx, src, cfg, sink.NewFactory(dest, cfg.SinkOptions()))
	mem.LogNow("split_complete")
	if err != nil {
		return err
	}

	if opts.Catalog != "" {
		start := time.Now()
		if err := catalog.Write(opts.Catalog, res); err != nil {
			return err
		}
		logging.FileCreated(logctx.FromContext(ctx), "catalog", time.Since(start)).
			Str("path", opts.Catalog).
			Count("rows", int64(res.Entries())).
			Log("catalog written")
	}
	return nil
}

// splitConfig validates the merged options before any processing starts.
func (o splitOptions) splitConfig() (split.Config, error) {
	if o.Input == "" {
		return split.Config{}, &split.ConfigError{Field: "--input", Reason: "is required"}
	}
	if !s3store.IsURI(o.Input) && !fileutil.Exists(o.Input) {
		return split.Config{}, &split.ConfigError{Field: "--input", Reason: fmt.Sprintf("%s does not exist", o.Input)}
	}

	maxBytes := o.SizeBytes
	if maxBytes == 0 {
		if o.SizeMiB <= 0 {
			return split.Config{}, &split.ConfigError{Field: "--size", Reason: "a positive number of MiB is required"}
		}
		var err error
		if maxBytes, err = humanfmt.FromMiB(o.SizeMiB); err != nil {
			return split.Config{}, &split.ConfigError{Field: "--size", Reason: err.Error()}
		}
	}

	codec, err := sink.ParseCodec(o.Codec)
	if err != nil {
		return split.Config{}, &split.ConfigError{Field: "--codec", Reason: err.Error()}
	}

	cfg := split.Config{
		MaxSplitBytes:     maxBytes,
		Compress:          o.Compress,
		Codec:             codec,
		Manifest:          o.Manifest,
		OverwriteExisting: o.Overwrite,
		OutputPrefix:      o.Output,
		Verbose:           o.Verbose,
	}
	if err := cfg.Validate(); err != nil {
		return split.Config{}, err
	}
	return cfg, nil
}

// destinationFor resolves the output prefix to a destination and the name
// prefix used inside it.
func destinationFor(output string, client *s3store.Client) (sink.Destination, string, error) {
	if !s3store.IsURI(output) {
		return sink.FileDestination{}, output, nil
	}
	bucket, key, err := s3store.ParseURI(output, false)
	if err != nil {
		return nil, "", &split.ConfigError{Field: "--output", Reason: err.Error()}
	}
	return client.Destination(bucket), key, nil
}

// outputMatcher reports whether a local path is one of this run's outputs,
// comparing absolute paths.
func outputMatcher(cfg split.Config) (func(path string) bool, error) {
	prefix, err := filepath.Abs(cfg.OutputPrefix)
	if err != nil {
		return nil, fmt.Errorf("resolve output prefix: %w", err)
	}
	opts := cfg.SinkOptions()
	opts.Prefix = prefix
	naming := sink.NewFactory(nil, opts)
	return func(path string) bool {
		abs, err := filepath.Abs(path)
		return err == nil && naming.IsOutput(abs)
	}, nil
}

// printPlan writes one line per planned split: index, archive name, entry
// count, size, and the first and last entry names.
func printPlan(ctx context.Context, stdout io.Writer, src entry.Source, cfg split.Config) error {
	plan, names, err := split.PlanSource(ctx, src, cfg.MaxSplitBytes)
	if err != nil {
		return err
	}

	naming := sink.NewFactory(nil, cfg.SinkOptions())
	for _, p := range plan {
		first, last := "-", "-"
		if p.Count > 0 {
			first, last = names[p.First], names[p.First+p.Count-1]
		}
		fmt.Fprintf(stdout, "%d\t%s\t%d entries\t%s\t%s .. %s\n",
			p.Index, naming.ArchiveName(p.Index), p.Count, humanfmt.Bytes(p.Size), first, last)
	}
	return nil
}

func runLocate(args []string, stdout io.Writer) error {
	fs := pflag.NewFlagSet("locate", pflag.ContinueOnError)
	fs.SetOutput(io.Discard)
	catalogPath := fs.StringP("catalog", "c", "", "Parquet catalog written by split --catalog (required)")

	if err := parseFlags(fs, args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			fs.SetOutput(stdout)
			fs.PrintDefaults()
			return nil
		}
		return err
	}
	if *catalogPath == "" {
		return &split.ConfigError{Field: "--catalog", Reason: "is required"}
	}
	names := fs.Args()
	if len(names) == 0 {
		return &split.ConfigError{Field: "arguments", Reason: "at least one entry name is required"}
	}

	found, err := catalog.Locate(*catalogPath, names...)
	if err != nil {
		return err
	}

	var missing []string
	for _, name := range names {
		row, ok := found[name]
		if !ok {
			missing = append(missing, name)
			continue
		}
		fmt.Fprintf(stdout, "%s\t%d\t%s\n", row.Name, row.Split, row.Archive)
	}
	if len(missing) > 0 {
		return fmt.Errorf("not found in catalog: %s", strings.Join(missing, ", "))
	}
	return nil
}
