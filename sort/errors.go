package sort

import (
	"errors"
	"fmt"
	"syscall"

	"txsort/record"
)

// MalformedRecordError is record.MalformedRecordError, re-exported so callers of
// Sort can match every failure kind from one package.
type MalformedRecordError = record.MalformedRecordError

// IOError wraps a failed filesystem operation on the input, a run, or the output.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string { return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err) }
func (e *IOError) Unwrap() error { return e.Err }

// ResourceExhaustionError is returned when the process runs out of file
// handles while opening runs. Lowering MaxOpenRuns or raising the chunk size
// reduces the number of handles the merge needs.
type ResourceExhaustionError struct {
	Resource string
	Limit    int
	Path     string
	Err      error
}

func (e *ResourceExhaustionError) Error() string {
	return fmt.Sprintf("%s exhausted opening %s (max open runs %d): %v", e.Resource, e.Path, e.Limit, e.Err)
}

func (e *ResourceExhaustionError) Unwrap() error { return e.Err }

// ErrQueueFull is returned by PriorityQueue.Push when the queue is at capacity.
var ErrQueueFull = errors.New("priority queue is full")

func ioErr(op, path string, err error) error {
	if err == nil {
		return nil
	}
	return &IOError{Op: op, Path: path, Err: err}
}

// openErr classifies an open failure; running out of descriptors is reported
// as ResourceExhaustionError, anything else as IOError.
func openErr(path string, limit int, err error) error {
	if errors.Is(err, syscall.EMFILE) || errors.Is(err, syscall.ENFILE) {
		return &ResourceExhaustionError{Resource: "file handles", Limit: limit, Path: path, Err: err}
	}
	return ioErr("open", path, err)
}
