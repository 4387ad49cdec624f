package engine

import (
	"errors"
	"fmt"
)

// ErrCancelled reports that an invocation stopped because its session's
// cancellation flag was set. Nonzero engine exits are reclassified to this
// error so user-initiated stops are never surfaced as engine failures.
var ErrCancelled = errors.New("transcription cancelled")

// LaunchError reports that the engine subprocess failed to start.
type LaunchError struct {
	Binary string
	Err    error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("failed to launch engine %s: %v", e.Binary, e.Err)
}

func (e *LaunchError) Unwrap() error { return e.Err }

// ExecutionError reports a nonzero engine exit not attributable to
// cancellation, with the captured diagnostic output.
type ExecutionError struct {
	ExitCode int
	Stderr   string
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("engine exited with code %d: %s", e.ExitCode, e.Stderr)
}

// ResultError reports that the engine's result file was missing or
// malformed after a successful exit.
type ResultError struct {
	Path string
	Err  error
}

func (e *ResultError) Error() string {
	return fmt.Sprintf("failed to read engine result %s: %v", e.Path, e.Err)
}

func (e *ResultError) Unwrap() error { return e.Err }
