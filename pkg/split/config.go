package split

import (
	"github.com/eunmann/tarsplit/pkg/sink"
)

// Config controls a split run.
type Config struct {
	// MaxSplitBytes is the uncompressed size every split stays below.
	MaxSplitBytes int64
	// Compress enables compression. With Codec unset it means gzip.
	Compress bool
	// Codec selects the compression algorithm. Setting it implies Compress.
	Codec sink.Codec
	// Manifest writes one "<prefix>-<index>.manifest" per split.
	Manifest bool
	// OverwriteExisting allows replacing existing outputs.
	OverwriteExisting bool
	// OutputPrefix names the outputs: "<prefix>-<index>.tar".
	OutputPrefix string
	// Verbose logs every committed entry and every rollover.
	Verbose bool
}

// DefaultOutputPrefix is used when no prefix is configured.
const DefaultOutputPrefix = "output"

// EffectiveCodec returns the codec applied to split archives.
func (c Config) EffectiveCodec() sink.Codec {
	if c.Codec != sink.CodecNone {
		return c.Codec
	}
	if c.Compress {
		return sink.CodecGzip
	}
	return sink.CodecNone
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.MaxSplitBytes <= 0 {
		return &ConfigError{Field: "split size", Reason: "must be a positive number of bytes"}
	}
	if c.OutputPrefix == "" {
		return &ConfigError{Field: "output prefix", Reason: "must not be empty"}
	}
	if _, err := sink.ParseCodec(c.EffectiveCodec().String()); err != nil {
		return &ConfigError{Field: "codec", Reason: err.Error()}
	}
	return nil
}

// SinkOptions derives the sink factory options.
func (c Config) SinkOptions() sink.Options {
	return sink.Options{
		Prefix:    c.OutputPrefix,
		Codec:     c.EffectiveCodec(),
		Manifest:  c.Manifest,
		Overwrite: c.OverwriteExisting,
	}
}
