package split

import (
	"errors"
	"fmt"
)

var (
	// ErrConfig indicates missing or invalid options. Nothing was processed.
	ErrConfig = errors.New("configuration error")
	// ErrDestinationConflict indicates an output already exists and overwriting is disabled.
	ErrDestinationConflict = errors.New("destination conflict")
	// ErrEntryTooLarge indicates an entry that no split can hold.
	ErrEntryTooLarge = errors.New("entry too large")
	// ErrNotRunning indicates a call on a finalized or failed controller.
	ErrNotRunning = errors.New("split controller is not running")
)

// ConfigError describes an invalid option.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Is reports whether target is ErrConfig.
func (e *ConfigError) Is(target error) bool {
	return target == ErrConfig
}

// DestinationConflictError names the output that would have been overwritten.
type DestinationConflictError struct {
	Index int
	Path  string
	// Err is the underlying create error when the conflict was detected
	// by an exclusive create rather than the pre-check.
	Err error
}

func (e *DestinationConflictError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("split %d: output already exists (use overwrite to replace it): %v", e.Index, e.Err)
	}
	return fmt.Sprintf("split %d: %s already exists (use overwrite to replace it)", e.Index, e.Path)
}

// Is reports whether target is ErrDestinationConflict.
func (e *DestinationConflictError) Is(target error) bool {
	return target == ErrDestinationConflict
}

func (e *DestinationConflictError) Unwrap() error {
	return e.Err
}

// EntryTooLargeError names an entry whose size reaches the split limit.
type EntryTooLargeError struct {
	Name  string
	Size  int64
	Limit int64
}

func (e *EntryTooLargeError) Error() string {
	return fmt.Sprintf("entry %q is %d bytes, which does not fit in a split of %d bytes", e.Name, e.Size, e.Limit)
}

// Is reports whether target is ErrEntryTooLarge.
func (e *EntryTooLargeError) Is(target error) bool {
	return target == ErrEntryTooLarge
}
