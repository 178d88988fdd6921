package cli

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/eunmann/tarsplit/pkg/split"
)

// splitOptions holds every split setting. Values come from an optional YAML
// file first; flags set on the command line win.
type splitOptions struct {
	Input     string `yaml:"input"`
	SizeMiB   int64  `yaml:"size_mib"`
	SizeBytes int64  `yaml:"size_bytes"`
	Output    string `yaml:"output"`
	Compress  bool   `yaml:"compress"`
	Codec     string `yaml:"codec"`
	Overwrite bool   `yaml:"overwrite"`
	Manifest  bool   `yaml:"manifest"`
	Verbose   bool   `yaml:"verbose"`
	Human     bool   `yaml:"human"`
	Catalog   string `yaml:"catalog"`
	DryRun    bool   `yaml:"dry_run"`
}

// bind registers the split flags on fs, storing into o.
func (o *splitOptions) bind(fs *pflag.FlagSet) {
	fs.StringVarP(&o.Input, "input", "i", "", "input archive (.tar, .tar.gz, .tar.zst, .tar.lz4), directory, or s3://bucket/key (required)")
	fs.Int64VarP(&o.SizeMiB, "size", "s", 0, "split size threshold in MiB (required unless --size-bytes)")
	fs.Int64Var(&o.SizeBytes, "size-bytes", 0, "split size threshold in bytes (overrides --size)")
	fs.StringVarP(&o.Output, "output", "o", split.DefaultOutputPrefix, "output prefix, local path or s3://bucket/prefix")
	fs.BoolVarP(&o.Compress, "compress", "z", false, "gzip-compress each split")
	fs.StringVar(&o.Codec, "codec", "", "compression codec: none, gzip, zstd, lz4 (implies --compress)")
	fs.BoolVarP(&o.Overwrite, "overwrite", "f", false, "overwrite existing split and manifest files")
	fs.BoolVarP(&o.Manifest, "manifest", "m", false, "write a .manifest file listing each split's entries")
	fs.BoolVarP(&o.Verbose, "verbose", "v", false, "log every entry and rollover")
	fs.BoolVar(&o.Human, "human", false, "human-friendly console logs instead of JSON")
	fs.StringVar(&o.Catalog, "catalog", "", "write a Parquet catalog of entry locations to this path")
	fs.BoolVar(&o.DryRun, "dry-run", false, "print split boundaries without writing anything")
}

// merge returns base overridden by every flag explicitly set in fs.
func (o splitOptions) merge(base splitOptions, fs *pflag.FlagSet) splitOptions {
	out := base
	set := func(name string, apply func()) {
		if fs.Changed(name) {
			apply()
		}
	}
	set("input", func() { out.Input = o.Input })
	set("size", func() { out.SizeMiB = o.SizeMiB })
	set("size-bytes", func() { out.SizeBytes = o.SizeBytes })
	set("output", func() { out.Output = o.Output })
	set("compress", func() { out.Compress = o.Compress })
	set("codec", func() { out.Codec = o.Codec })
	set("overwrite", func() { out.Overwrite = o.Overwrite })
	set("manifest", func() { out.Manifest = o.Manifest })
	set("verbose", func() { out.Verbose = o.Verbose })
	set("human", func() { out.Human = o.Human })
	set("catalog", func() { out.Catalog = o.Catalog })
	set("dry-run", func() { out.DryRun = o.DryRun })
	if out.Output == "" {
		out.Output = split.DefaultOutputPrefix
	}
	return out
}

// loadOptionsFile reads split options from a YAML file. Unknown keys are
// rejected so typos do not silently fall back to defaults.
func loadOptionsFile(path string) (splitOptions, error) {
	var o splitOptions
	f, err := os.Open(path)
	if err != nil {
		return o, &split.ConfigError{Field: "config", Reason: err.Error()}
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&o); err != nil && !errors.Is(err, io.EOF) {
		return o, &split.ConfigError{Field: "config", Reason: fmt.Sprintf("parse %s: %v", path, err)}
	}
	return o, nil
}
