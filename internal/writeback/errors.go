package writeback

import (
	"errors"
	"fmt"
)

var (
	ErrRootFilter       = errors.New("the root filter cannot be deleted or moved")
	ErrCycle            = errors.New("destination is the filter itself or one of its descendants")
	ErrInvalidName      = errors.New("filter name must be non-empty and must not contain a backslash")
	ErrOutsideWorkspace = errors.New("location is outside the workspace")
)

// InvalidOperationError is returned for requests rejected before the
// sidecar is read. The sidecar is left untouched.
type InvalidOperationError struct {
	Op     string
	Reason error
}

func (e *InvalidOperationError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Reason)
}

func (e *InvalidOperationError) Unwrap() error { return e.Reason }

func invalid(op string, reason error) error {
	return &InvalidOperationError{Op: op, Reason: reason}
}

// OpError wraps an I/O or parse failure with the operation and sidecar it
// happened on.
type OpError struct {
	Op   string
	Path string
	Err  error
}

func (e *OpError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *OpError) Unwrap() error { return e.Err }
